package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"crossplay/message"
)

// JSONCodec uses Go's standard library encoding/json for serialization.
// Numbers decode as json.Number so integer tags and handles survive without
// a detour through float64.
type JSONCodec struct{}

func (c *JSONCodec) Encode(tree message.Tree) ([]byte, error) {
	return json.Marshal(tree)
}

func (c *JSONCodec) Decode(data []byte) (message.Tree, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var tree message.Tree
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("codec: json: %w", err)
	}
	if tree == nil {
		return nil, errors.New("codec: json: document is null")
	}
	// A second value after the record means a torn or doubled write.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("codec: json: trailing data after record")
	}
	return tree, nil
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
