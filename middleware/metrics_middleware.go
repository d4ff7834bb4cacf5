package middleware

import (
	"context"
	"crossplay/message"
	"crossplay/metrics"
	"crossplay/protocol"
	"errors"
)

// MetricsMiddleware records every round trip in c under the given endpoint label.
func MetricsMiddleware(c *metrics.Collector, endpoint string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) (message.Object, error) {
			end := c.Begin(endpoint, call.Method.String())
			result, err := next(ctx, call)
			end(outcome(err))
			return result, err
		}
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if reason := protocol.ReasonOf(err); reason != "" {
		return string(reason)
	}
	if errors.Is(err, ErrRateLimited) {
		return "rate-limited"
	}
	return "error"
}
