// Package middleware wraps a round trip with cross-cutting behavior. The same
// chain type serves the agent-side client and the engine-side responder.
package middleware

import (
	"context"
	"crossplay/message"

	"github.com/google/uuid"
)

type HandlerFunc func(ctx context.Context, call *message.Call) (message.Object, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain 将多个中间件组合成一个中间件
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

type callIDKey struct{}

// WithCallID tags ctx with a correlation id for one round trip. An empty id
// generates a fresh one.
func WithCallID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, callIDKey{}, id)
}

// CallID returns the correlation id carried by ctx, or "".
func CallID(ctx context.Context) string {
	id, _ := ctx.Value(callIDKey{}).(string)
	return id
}
