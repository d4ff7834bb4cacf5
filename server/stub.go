package server

import (
	"context"

	"crossplay/message"

	"github.com/rs/zerolog"
)

// Robot is a fixed robot-controller state for exercising an agent without the engine.
type Robot struct {
	Round  int64
	Width  int64
	Height int64
}

// RegisterStub binds the four engine methods to r and returns the reference the
// agent should pass as the robot controller. LOG writes its message to logger.
func RegisterStub(s *Server, r *Robot, logger zerolog.Logger) (*message.Reference, error) {
	ref := s.Handles().Put(message.TypeRobotController, r)

	robotGetter := func(get func(*Robot) int64) MethodFunc {
		return func(_ context.Context, params []message.Object) (message.Object, error) {
			p, err := Param(params, 0)
			if err != nil {
				return nil, err
			}
			rc, err := Lookup[*Robot](s.Handles(), p)
			if err != nil {
				return nil, err
			}
			return message.Int(get(rc)), nil
		}
	}

	methods := map[message.Method]MethodFunc{
		message.MethodGetRoundNum:  robotGetter(func(r *Robot) int64 { return r.Round }),
		message.MethodGetMapWidth:  robotGetter(func(r *Robot) int64 { return r.Width }),
		message.MethodGetMapHeight: robotGetter(func(r *Robot) int64 { return r.Height }),
		message.MethodLog: func(_ context.Context, params []message.Object) (message.Object, error) {
			p, err := Param(params, 0)
			if err != nil {
				return nil, err
			}
			text, err := LiteralValue[string](p)
			if err != nil {
				return nil, err
			}
			logger.Info().Str("source", "agent").Msg(text)
			return nil, nil
		},
	}
	for m, fn := range methods {
		if err := s.Register(m, fn); err != nil {
			return nil, err
		}
	}
	return ref, nil
}
