// Package codec turns wire trees into bytes and back.
//
// The engine reads and writes JSON, so JSON is the default and the only codec
// that should face it. YAML is offered for dumps a person reads, CBOR for
// compact traffic between peers that are both built from this module.
package codec

import (
	"fmt"
	"strings"

	"crossplay/message"
)

type CodecType byte

const (
	CodecTypeJSON CodecType = 0
	CodecTypeYAML CodecType = 1
	CodecTypeCBOR CodecType = 2
)

var cborCodec = newCBORCodec()

type Codec interface {
	Encode(tree message.Tree) ([]byte, error)
	Decode(data []byte) (message.Tree, error)
	Type() CodecType // 0=JSON, 1=YAML, 2=CBOR
}

func GetCodec(codecType CodecType) Codec {
	switch codecType {
	case CodecTypeYAML:
		return &YAMLCodec{}
	case CodecTypeCBOR:
		return cborCodec
	}
	return &JSONCodec{}
}

// ParseCodecType maps a config name ("json", "yaml", "cbor") to a CodecType.
func ParseCodecType(name string) (CodecType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return CodecTypeJSON, nil
	case "yaml", "yml":
		return CodecTypeYAML, nil
	case "cbor":
		return CodecTypeCBOR, nil
	default:
		return CodecTypeJSON, fmt.Errorf("codec: unknown codec %q", name)
	}
}

func (t CodecType) String() string {
	switch t {
	case CodecTypeYAML:
		return "yaml"
	case CodecTypeCBOR:
		return "cbor"
	}
	return "json"
}
