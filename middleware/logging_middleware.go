package middleware

import (
	"context"
	"crossplay/message"
	"crossplay/protocol"
	"time"

	"github.com/rs/zerolog"
)

// LoggingMiddleware emits one structured event per round trip. Failures are
// logged at error level with the protocol reason attached.
func LoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) (message.Object, error) {
			start := time.Now()
			result, err := next(ctx, call)
			duration := time.Since(start)

			event := logger.Debug()
			if err != nil {
				event = logger.Error().Err(err)
				if reason := protocol.ReasonOf(err); reason != "" {
					event = event.Str("reason", string(reason))
				}
			}
			if id := CallID(ctx); id != "" {
				event = event.Str("call_id", id)
			}
			event.
				Str("method", call.Method.String()).
				Int("params", len(call.Params)).
				Dur("duration", duration).
				Msg("crossplay_call")
			return result, err
		}
	}
}
