package codec

import (
	"errors"
	"fmt"

	"crossplay/message"

	"gopkg.in/yaml.v3"
)

// YAMLCodec serializes wire trees with gopkg.in/yaml.v3. Not understood by
// the engine; meant for inspection output and Go-to-Go peers.
type YAMLCodec struct{}

func (c *YAMLCodec) Encode(tree message.Tree) ([]byte, error) {
	return yaml.Marshal(tree)
}

func (c *YAMLCodec) Decode(data []byte) (message.Tree, error) {
	var tree message.Tree
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("codec: yaml: %w", err)
	}
	if tree == nil {
		return nil, errors.New("codec: yaml: empty document")
	}
	return tree, nil
}

func (c *YAMLCodec) Type() CodecType {
	return CodecTypeYAML
}
