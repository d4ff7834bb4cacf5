package message

import (
	"encoding/json"
	"math"

	"crossplay/protocol"
)

// Tree is the generic wire form of an Object: maps, sequences and scalars,
// ready for any codec that speaks that shape.
type Tree = map[string]any

// Wire record keys.
const (
	KeyType   = "type"
	KeyID     = "id"
	KeyOID    = "oid" // the engine's name for the id, accepted on decode
	KeyValue  = "value"
	KeyMethod = "method"
	KeyParams = "params"
)

// Encode converts obj to its wire tree.
func Encode(obj Object) Tree {
	tree := Tree{
		KeyType: int(obj.Type()),
		KeyID:   obj.ID(),
	}
	switch o := obj.(type) {
	case *Literal:
		tree[KeyValue] = encodeScalar(o.Tag, o.Value)
	case *Array:
		tree[KeyValue] = encodeList(o.Elements)
	case *Call:
		tree[KeyMethod] = int(o.Method)
		tree[KeyParams] = encodeList(o.Params)
	}
	return tree
}

func encodeList(objs []Object) []any {
	out := make([]any, len(objs))
	for i, o := range objs {
		out[i] = Encode(o)
	}
	return out
}

func encodeScalar(tag ValueType, v any) any {
	if tag == TypeNull {
		return nil
	}
	if tag == TypeInteger || tag == TypeTeam {
		if n, ok := toInt64(v); ok {
			return n
		}
	}
	return v
}

// Decode reconstructs an Object from a wire tree, dispatching on its tag.
func Decode(v any) (Object, error) {
	tree, err := asTree(v)
	if err != nil {
		return nil, err
	}
	tag, err := readTag(tree)
	if err != nil {
		return nil, err
	}
	switch KindOf(tag) {
	case KindCall:
		return decodeCall(tree)
	case KindLiteral:
		return decodeLiteral(tree, tag)
	case KindArray:
		return decodeArray(tree)
	case KindHandle:
		return decodeReference(tree, tag)
	default:
		return nil, protocol.WrongShape("unknown value type %s", tag)
	}
}

// DecodeCall decodes a tree that must be a Call. Any other tag is rejected;
// the tree is never coerced.
func DecodeCall(v any) (*Call, error) {
	tree, err := asTree(v)
	if err != nil {
		return nil, err
	}
	tag, err := readTag(tree)
	if err != nil {
		return nil, err
	}
	if tag != TypeCall {
		return nil, protocol.WrongShape("expected a call, got %s", tag)
	}
	return decodeCall(tree)
}

// DecodeLiteral decodes a tree that must be a Literal.
func DecodeLiteral(v any) (*Literal, error) {
	tree, err := asTree(v)
	if err != nil {
		return nil, err
	}
	tag, err := readTag(tree)
	if err != nil {
		return nil, err
	}
	if KindOf(tag) != KindLiteral {
		return nil, protocol.WrongShape("expected a literal, got %s", tag)
	}
	return decodeLiteral(tree, tag)
}

// DecodeReference decodes a tree that must be a plain handle record.
func DecodeReference(v any) (*Reference, error) {
	tree, err := asTree(v)
	if err != nil {
		return nil, err
	}
	tag, err := readTag(tree)
	if err != nil {
		return nil, err
	}
	if KindOf(tag) != KindHandle {
		return nil, protocol.WrongShape("expected a handle, got %s", tag)
	}
	return decodeReference(tree, tag)
}

func decodeCall(tree Tree) (*Call, error) {
	id, err := readID(tree)
	if err != nil {
		return nil, err
	}
	raw, ok := tree[KeyMethod]
	if !ok {
		return nil, protocol.WrongShape("call without %q", KeyMethod)
	}
	n, ok := toInt64(raw)
	if !ok {
		return nil, protocol.WrongShape("call %q is %T, not an integer", KeyMethod, raw)
	}
	method := Method(n)
	if !method.Known() {
		return nil, protocol.WrongShape("unknown method %s", method)
	}
	params, err := decodeList(tree[KeyParams], KeyParams)
	if err != nil {
		return nil, err
	}
	return &Call{Handle: id, Method: method, Params: params}, nil
}

// decodeLiteral reads value as the scalar it already is; it is not a nested record.
func decodeLiteral(tree Tree, tag ValueType) (*Literal, error) {
	id, err := readID(tree)
	if err != nil {
		return nil, err
	}
	raw, present := tree[KeyValue]
	if tag == TypeNull {
		return &Literal{Tag: tag, Handle: id}, nil
	}
	if !present {
		return nil, protocol.WrongShape("%s literal without %q", tag, KeyValue)
	}
	value, ok := scalarFor(tag, raw)
	if !ok {
		return nil, protocol.WrongShape("%s literal carries %T", tag, raw)
	}
	return &Literal{Tag: tag, Handle: id, Value: value}, nil
}

func decodeArray(tree Tree) (*Array, error) {
	id, err := readID(tree)
	if err != nil {
		return nil, err
	}
	elems, err := decodeList(tree[KeyValue], KeyValue)
	if err != nil {
		return nil, err
	}
	return &Array{Handle: id, Elements: elems}, nil
}

func decodeReference(tree Tree, tag ValueType) (*Reference, error) {
	id, err := readID(tree)
	if err != nil {
		return nil, err
	}
	return &Reference{Tag: tag, Handle: id}, nil
}

func decodeList(raw any, key string) ([]Object, error) {
	if raw == nil {
		return []Object{}, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, protocol.WrongShape("%q is %T, not a sequence", key, raw)
	}
	out := make([]Object, len(list))
	for i, item := range list {
		obj, err := Decode(item)
		if err != nil {
			return nil, err
		}
		out[i] = obj
	}
	return out, nil
}

// scalarFor checks that raw's runtime kind matches tag and normalizes it.
func scalarFor(tag ValueType, raw any) (any, bool) {
	switch tag {
	case TypeInteger, TypeTeam:
		return toInt64(raw)
	case TypeDouble:
		return toFloat64(raw)
	case TypeString:
		s, ok := raw.(string)
		return s, ok
	case TypeBoolean:
		b, ok := raw.(bool)
		return b, ok
	}
	// registered extension literals pass through untouched
	switch raw.(type) {
	case map[string]any, []any:
		return nil, false
	}
	return raw, true
}

func asTree(v any) (Tree, error) {
	tree, ok := v.(map[string]any)
	if !ok {
		return nil, protocol.WrongShape("record is %T, not a map", v)
	}
	return tree, nil
}

func readTag(tree Tree) (ValueType, error) {
	raw, ok := tree[KeyType]
	if !ok {
		return TypeInvalid, protocol.WrongShape("record without %q", KeyType)
	}
	n, ok := toInt64(raw)
	if !ok {
		return TypeInvalid, protocol.WrongShape("%q is %T, not an integer", KeyType, raw)
	}
	tag := ValueType(n)
	if tag == TypeInvalid {
		return TypeInvalid, protocol.WrongShape("record tagged INVALID")
	}
	return tag, nil
}

func readID(tree Tree) (int64, error) {
	raw, ok := tree[KeyID]
	if !ok {
		raw, ok = tree[KeyOID]
	}
	if !ok || raw == nil {
		return NoHandle, nil
	}
	n, ok := toInt64(raw)
	if !ok {
		return 0, protocol.WrongShape("%q is %T, not an integer", KeyID, raw)
	}
	return n, nil
}

// toInt64 accepts every integer representation the codecs produce, including
// integral floats from decoders that do not distinguish the two.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), uint64(n) <= math.MaxInt64
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}
