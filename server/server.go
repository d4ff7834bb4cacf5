// Package server implements the engine side of the channel: it waits for a
// deposited call, evaluates it against registered methods and writes the reply.
//
// Exchange pipeline:
//
//	wait (request present, reply absent, agent idle) → claim engine lock
//	  → read + decode Call → evaluate nested Call params depth-first
//	    → Middleware Chain → method dispatch → delete request → write reply → release
//
// Only one exchange is in flight at a time; the channel has a single slot per direction.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"crossplay/message"
	"crossplay/middleware"
	"crossplay/protocol"
	"crossplay/transport"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MethodFunc implements one method. params have their nested calls already
// evaluated. A nil result is sent back as a null literal.
type MethodFunc func(ctx context.Context, params []message.Object) (message.Object, error)

// ErrUnknownMethod is returned when a call names a method nothing handles.
var ErrUnknownMethod = errors.New("server: unknown method")

// Server answers calls deposited on a channel.
type Server struct {
	channel      *transport.Channel
	view         transport.View
	handles      *Handles
	logger       zerolog.Logger
	pollInterval time.Duration

	mu          sync.RWMutex
	methods     map[message.Method]MethodFunc
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc // built lazily from middlewares on first exchange

	exchange sync.Mutex     // one exchange at a time
	wg       sync.WaitGroup // tracks the in-flight exchange for graceful shutdown
	shutdown atomic.Bool
	cancel   context.CancelFunc
}

type Option func(*Server)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Server) {
		s.pollInterval = d
	}
}

// NewServer creates the engine-side endpoint of ch with an empty method table.
func NewServer(ch *transport.Channel, opts ...Option) *Server {
	s := &Server{
		channel:      ch,
		view:         ch.View(transport.Engine),
		handles:      NewHandles(),
		logger:       log.Logger.With().Str("component", "crossplay.server").Logger(),
		pollInterval: transport.DefaultPollInterval,
		methods:      make(map[message.Method]MethodFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pollInterval <= 0 {
		s.pollInterval = transport.DefaultPollInterval
	}
	return s
}

// Register binds fn to method, replacing any earlier binding.
func (s *Server) Register(method message.Method, fn MethodFunc) error {
	if !method.Known() {
		return fmt.Errorf("server: register %s: %w", method, ErrUnknownMethod)
	}
	if fn == nil {
		return fmt.Errorf("server: register %s: nil handler", method)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[method] = fn
	return nil
}

// Use registers a middleware. Middlewares are applied in the order they are added.
func (s *Server) Use(mw middleware.Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middlewares = append(s.middlewares, mw)
	s.handler = nil
}

// Handles returns the table of live objects the engine hands out references to.
func (s *Server) Handles() *Handles {
	return s.handles
}

// Reset forgets all handles, creates the channel directory and removes stale artifacts.
func (s *Server) Reset() error {
	s.handles.Reset()
	return s.channel.Reset()
}

// Clear removes the channel artifacts and directory.
func (s *Server) Clear() error {
	return s.channel.Clear()
}

// Serve answers calls until ctx is done or Shutdown is called. Failed
// exchanges are logged and serving continues; a channel that can no longer be
// read or written, or a stray engine lock, ends the loop with that error.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	for !s.shutdown.Load() {
		err := s.ServeOne(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil || s.shutdown.Load() {
			return nil
		}
		if fatal(err) {
			return err
		}
		s.logger.Error().Err(err).Msg("exchange failed")
	}
	return nil
}

// fatal reports errors that would fail every following exchange too.
func fatal(err error) bool {
	var pe *protocol.ProtocolError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Reason == protocol.ReasonChannelIO || pe.Phase == protocol.PhaseClaim
}

// ServeOne waits for one call, answers it and returns. Decode failures,
// unknown methods and method errors are returned after the request is deleted
// and the engine lock released; no reply is written for them.
func (s *Server) ServeOne(ctx context.Context) error {
	v := s.view
	ready := s.channel.All(
		[]transport.Artifact{v.Inbound},
		[]transport.Artifact{v.Outbound, v.Peer},
	)
	if err := transport.WaitFor(ctx, s.pollInterval, ready); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return protocol.Timeout(protocol.PhaseAwaitRequest, protocol.DirectionRequest, err)
		}
		if ctx.Err() != nil {
			return err
		}
		return protocol.ChannelIO(protocol.PhaseAwaitRequest, protocol.DirectionRequest, err)
	}

	s.exchange.Lock()
	defer s.exchange.Unlock()
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.channel.Claim(v.Self); err != nil {
		if errors.Is(err, transport.ErrClaimed) {
			// only this side ever creates the engine lock
			pe := protocol.WrongShape("engine lock already present while a request was waiting")
			return protocol.WithPhase(pe, protocol.PhaseClaim, protocol.DirectionRequest)
		}
		return protocol.ChannelIO(protocol.PhaseClaim, protocol.DirectionRequest, err)
	}

	reply, err := s.answer(context.WithoutCancel(ctx))

	if rmErr := s.channel.Remove(v.Inbound); rmErr != nil && err == nil {
		err = protocol.ChannelIO(protocol.PhaseRead, protocol.DirectionRequest, rmErr)
	}
	if err == nil {
		if wErr := s.channel.WriteObject(v.Outbound, reply); wErr != nil {
			err = protocol.ChannelIO(protocol.PhaseWrite, protocol.DirectionResponse, wErr)
		}
	}
	if relErr := s.channel.Remove(v.Self); relErr != nil && err == nil {
		err = protocol.ChannelIO(protocol.PhaseRelease, protocol.DirectionResponse, relErr)
	}
	return err
}

// answer reads the pending request and evaluates it.
func (s *Server) answer(ctx context.Context) (message.Object, error) {
	obj, err := s.channel.ReadObject(s.view.Inbound)
	if err != nil {
		var pe *protocol.ProtocolError
		if errors.As(err, &pe) {
			return nil, protocol.WithPhase(err, protocol.PhaseRead, protocol.DirectionRequest)
		}
		return nil, protocol.ChannelIO(protocol.PhaseRead, protocol.DirectionRequest, err)
	}
	call, ok := obj.(*message.Call)
	if !ok {
		pe := protocol.WrongShape("request is a %s, not a call", obj.Type())
		return nil, protocol.WithPhase(pe, protocol.PhaseRead, protocol.DirectionRequest)
	}

	ctx = middleware.WithCallID(ctx, "")
	return s.evaluate(ctx, s.chain(), call)
}

// evaluate replaces every Call param with its result, innermost first, then
// dispatches call itself.
func (s *Server) evaluate(ctx context.Context, handler middleware.HandlerFunc, call *message.Call) (message.Object, error) {
	params := make([]message.Object, len(call.Params))
	for i, p := range call.Params {
		nested, ok := p.(*message.Call)
		if !ok {
			params[i] = p
			continue
		}
		result, err := s.evaluate(ctx, handler, nested)
		if err != nil {
			return nil, err
		}
		params[i] = result
	}
	return handler(ctx, &message.Call{Handle: call.Handle, Method: call.Method, Params: params})
}

func (s *Server) chain() middleware.HandlerFunc {
	s.mu.RLock()
	h := s.handler
	s.mu.RUnlock()
	if h != nil {
		return h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler == nil {
		s.handler = middleware.Chain(s.middlewares...)(s.dispatch)
	}
	return s.handler
}

// dispatch is the innermost handler: it looks the method up and runs it.
func (s *Server) dispatch(ctx context.Context, call *message.Call) (message.Object, error) {
	s.mu.RLock()
	fn, ok := s.methods[call.Method]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, call.Method)
	}
	result, err := fn(ctx, call.Params)
	if err != nil {
		return nil, fmt.Errorf("server: %s: %w", call.Method, err)
	}
	if result == nil {
		return message.Null(), nil
	}
	return result, nil
}

// Shutdown performs graceful shutdown:
//  1. Set the shutdown flag so Serve stops after the current exchange
//  2. Stop waiting for new requests
//  3. Wait for the in-flight exchange to finish (with timeout)
//  4. Remove the channel artifacts and directory
func (s *Server) Shutdown(timeout time.Duration) error {
	s.shutdown.Store(true)
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		return fmt.Errorf("server: timeout waiting for the in-flight exchange to finish")
	}
	return s.channel.Clear()
}
