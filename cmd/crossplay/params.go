package main

import (
	"fmt"
	"strconv"
	"strings"

	"crossplay/message"
)

// paramList collects repeated -param flags.
type paramList []message.Object

func (p *paramList) String() string {
	parts := make([]string, len(*p))
	for i, obj := range *p {
		parts[i] = fmt.Sprint(obj)
	}
	return strings.Join(parts, ",")
}

func (p *paramList) Set(raw string) error {
	obj, err := parseParam(raw)
	if err != nil {
		return err
	}
	*p = append(*p, obj)
	return nil
}

// parseParam reads TYPE:VALUE. Literal tags parse VALUE as their scalar, handle
// tags as the handle number, and NULL takes no value.
func parseParam(raw string) (message.Object, error) {
	name, value, hasValue := strings.Cut(raw, ":")
	tag, err := message.ParseValueType(name)
	if err != nil {
		return nil, err
	}

	switch message.KindOf(tag) {
	case message.KindLiteral:
		if tag == message.TypeNull {
			return message.Null(), nil
		}
		if !hasValue {
			return nil, fmt.Errorf("param %q: %s needs a value", raw, tag)
		}
		return parseLiteral(tag, value)
	case message.KindHandle:
		if !hasValue {
			return nil, fmt.Errorf("param %q: %s needs a handle", raw, tag)
		}
		handle, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("param %q: bad handle: %w", raw, err)
		}
		return message.Ref(tag, handle), nil
	default:
		return nil, fmt.Errorf("param %q: %s cannot be given on the command line", raw, tag)
	}
}

func parseLiteral(tag message.ValueType, value string) (message.Object, error) {
	switch tag {
	case message.TypeString:
		return message.Str(value), nil
	case message.TypeBoolean:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("param %s:%s: %w", tag, value, err)
		}
		return message.Bool(b), nil
	case message.TypeDouble:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("param %s:%s: %w", tag, value, err)
		}
		return message.Double(f), nil
	default:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("param %s:%s: %w", tag, value, err)
		}
		return &message.Literal{Tag: tag, Handle: message.NoHandle, Value: n}, nil
	}
}
