package codec

import (
	"errors"
	"fmt"
	"reflect"

	"crossplay/message"

	cbor "github.com/fxamacker/cbor/v2"
)

// CBORCodec is a compact binary codec for peers that are both built from this
// module. Encoding is canonical, so equal trees produce equal bytes. Nested
// maps decode as message.Tree rather than map[any]any.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORCodec() *CBORCodec {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: cbor enc mode: %v", err))
	}
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(message.Tree(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: cbor dec mode: %v", err))
	}
	return &CBORCodec{enc: em, dec: dm}
}

func (c *CBORCodec) Encode(tree message.Tree) ([]byte, error) {
	return c.enc.Marshal(tree)
}

func (c *CBORCodec) Decode(data []byte) (message.Tree, error) {
	var tree message.Tree
	if err := c.dec.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("codec: cbor: %w", err)
	}
	if tree == nil {
		return nil, errors.New("codec: cbor: document is null")
	}
	return tree, nil
}

func (c *CBORCodec) Type() CodecType {
	return CodecTypeCBOR
}
