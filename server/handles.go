package server

import (
	"fmt"
	"sync"

	"crossplay/message"
	"crossplay/protocol"
)

// Handles is the engine's table of live objects. A Reference sent to the
// agent carries an index into this table; the agent only ever holds the number.
type Handles struct {
	mu      sync.RWMutex
	objects []any
}

func NewHandles() *Handles {
	return &Handles{}
}

// Put stores v in the next free slot and returns a reference to it.
func (h *Handles) Put(tag message.ValueType, v any) *message.Reference {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.objects = append(h.objects, v)
	return message.Ref(tag, int64(len(h.objects)-1))
}

// Set stores v under ref's handle, growing the table as needed.
func (h *Handles) Set(ref *message.Reference, v any) error {
	if ref.Handle < 0 {
		return fmt.Errorf("server: cannot store under handle %d", ref.Handle)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for int64(len(h.objects)) <= ref.Handle {
		h.objects = append(h.objects, nil)
	}
	h.objects[ref.Handle] = v
	return nil
}

// Get returns the object ref points at.
func (h *Handles) Get(ref *message.Reference) (any, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if ref.Handle < 0 || ref.Handle >= int64(len(h.objects)) {
		return nil, protocol.WrongShape("no live object under %s", ref)
	}
	return h.objects[ref.Handle], nil
}

func (h *Handles) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.objects)
}

// Reset forgets every object.
func (h *Handles) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.objects = nil
}

// Lookup resolves obj, which must be a reference, to a live object of type T.
func Lookup[T any](h *Handles, obj message.Object) (T, error) {
	var zero T
	ref, ok := obj.(*message.Reference)
	if !ok {
		return zero, protocol.WrongShape("expected a reference, got %v", obj)
	}
	v, err := h.Get(ref)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, protocol.WrongShape("%s holds %T, want %T", ref, v, zero)
	}
	return out, nil
}

// LiteralValue extracts the scalar payload of obj, which must be a literal of Go type T.
func LiteralValue[T any](obj message.Object) (T, error) {
	var zero T
	lit, ok := obj.(*message.Literal)
	if !ok {
		return zero, protocol.WrongShape("expected a literal, got %v", obj)
	}
	out, ok := lit.Value.(T)
	if !ok {
		return zero, protocol.WrongShape("%s literal holds %T, want %T", lit.Tag, lit.Value, zero)
	}
	return out, nil
}

// Param returns params[i], or a wrong-shape error when the call was too short.
func Param(params []message.Object, i int) (message.Object, error) {
	if i < 0 || i >= len(params) {
		return nil, protocol.WrongShape("missing parameter %d of %d", i, len(params))
	}
	return params[i], nil
}
