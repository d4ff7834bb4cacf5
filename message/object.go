// Package message defines the typed values exchanged between the agent and the engine.
//
// Every value on the wire is a record carrying a ValueType tag and an integer id.
// The tag decides the rest of the record:
//
//	Reference {type, id}                  a live object held by the remote side, or a bare tag
//	Literal   {type, id, value}           a primitive payload (integer, string, boolean, double, team, null)
//	Array     {type, id, value: [...]}    an ordered sequence of nested records
//	Call      {type: CALL, id, method, params: [...]}
//
// An id of NoHandle (-1) means "stateless value". Any other id names an object the
// remote endpoint owns; this side only ever holds the number.
package message

import (
	"fmt"
	"strings"
)

// NoHandle is the id of values that do not reference a remote object.
const NoHandle int64 = -1

// Object is the closed set of wire values: *Reference, *Literal, *Array, *Call.
type Object interface {
	Type() ValueType
	ID() int64
	isObject()
}

// Reference is a plain tagged record, typically a handle to a remote object.
type Reference struct {
	Tag    ValueType
	Handle int64
}

// Literal carries a primitive payload. The Go type of Value follows Tag:
// int64 for INTEGER and TEAM, float64 for DOUBLE, string, bool, nil for NULL.
type Literal struct {
	Tag    ValueType
	Handle int64
	Value  any
}

// Array is an ordered sequence of values.
type Array struct {
	Handle   int64
	Elements []Object
}

// Call asks the remote endpoint to run Method with positional Params.
type Call struct {
	Handle int64
	Method Method
	Params []Object
}

func (r *Reference) Type() ValueType { return r.Tag }
func (r *Reference) ID() int64 { return r.Handle }
func (*Reference) isObject() {}

func (l *Literal) Type() ValueType { return l.Tag }
func (l *Literal) ID() int64 { return l.Handle }
func (*Literal) isObject() {}

func (a *Array) Type() ValueType { return TypeArray }
func (a *Array) ID() int64 { return a.Handle }
func (*Array) isObject() {}

func (c *Call) Type() ValueType { return TypeCall }
func (c *Call) ID() int64 { return c.Handle }
func (*Call) isObject() {}

// NewCall builds a stateless call.
func NewCall(method Method, params ...Object) *Call {
	if params == nil {
		params = []Object{}
	}
	return &Call{Handle: NoHandle, Method: method, Params: params}
}

// Ref builds a handle reference.
func Ref(tag ValueType, handle int64) *Reference {
	return &Reference{Tag: tag, Handle: handle}
}

func Int(v int64) *Literal { return &Literal{Tag: TypeInteger, Handle: NoHandle, Value: v} }
func Str(v string) *Literal { return &Literal{Tag: TypeString, Handle: NoHandle, Value: v} }
func Bool(v bool) *Literal { return &Literal{Tag: TypeBoolean, Handle: NoHandle, Value: v} }
func Double(v float64) *Literal { return &Literal{Tag: TypeDouble, Handle: NoHandle, Value: v} }
func Team(ordinal int64) *Literal { return &Literal{Tag: TypeTeam, Handle: NoHandle, Value: ordinal} }
func Null() *Literal { return &Literal{Tag: TypeNull, Handle: NoHandle} }

// NewArray builds a stateless array.
func NewArray(elems ...Object) *Array {
	if elems == nil {
		elems = []Object{}
	}
	return &Array{Handle: NoHandle, Elements: elems}
}

// LiteralOf wraps a Go scalar in the matching literal. Ints of any width
// become INTEGER, floats DOUBLE, nil NULL.
func LiteralOf(v any) (*Literal, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case string:
		return Str(x), nil
	case float64:
		return Double(x), nil
	case float32:
		return Double(float64(x)), nil
	}
	if n, ok := toInt64(v); ok {
		return Int(n), nil
	}
	return nil, fmt.Errorf("message: cannot make a literal from %T", v)
}

// Unwrap returns a Literal's scalar payload, or the object itself for
// anything else (handles, arrays, calls).
func Unwrap(obj Object) any {
	if lit, ok := obj.(*Literal); ok {
		return lit.Value
	}
	return obj
}

func (r *Reference) String() string {
	return fmt.Sprintf("Reference(type=%s, id=%d)", r.Tag, r.Handle)
}

func (l *Literal) String() string {
	return fmt.Sprintf("Literal(type=%s, id=%d, value=%v)", l.Tag, l.Handle, l.Value)
}

func (a *Array) String() string {
	parts := make([]string, len(a.Elements))
	for i, e := range a.Elements {
		parts[i] = fmt.Sprint(e)
	}
	return fmt.Sprintf("Array(id=%d, [%s])", a.Handle, strings.Join(parts, ", "))
}

func (c *Call) String() string {
	parts := make([]string, len(c.Params))
	for i, p := range c.Params {
		parts[i] = fmt.Sprint(p)
	}
	return fmt.Sprintf("Call(method=%s, id=%d, params=[%s])", c.Method, c.Handle, strings.Join(parts, ", "))
}
