// Package client issues synchronous calls into the engine over a shared-directory channel.
//
// One Call is one rendezvous:
//
//	AWAIT_WRITABLE  wait until the engine does not hold the channel; drop any stale reply
//	CLAIM           create our busy sentinel
//	WRITE           atomically deposit the request
//	RELEASE         remove our busy sentinel, letting the engine proceed
//	AWAIT_RESPONSE  wait until the reply is present, the request consumed, and the engine idle
//	CLAIM, READ     read the reply and delete it
//	RELEASE         remove our busy sentinel and return the unwrapped result
//
// Each wait has its own deadline of the call's timeout. Calls on one Client are
// sequenced: a second Call blocks until the first has fully resolved.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crossplay/message"
	"crossplay/middleware"
	"crossplay/protocol"
	"crossplay/transport"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds each wait of a call when no timeout is given.
const DefaultTimeout = time.Second

type Client struct {
	channel      *transport.Channel
	view         transport.View
	timeout      time.Duration
	pollInterval time.Duration
	logger       zerolog.Logger
	middlewares  []middleware.Middleware
	handler      middleware.HandlerFunc
	mu           sync.Mutex // one exchange in flight per channel
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = d
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// Use appends middlewares; they wrap the rendezvous in the order given.
func Use(mws ...middleware.Middleware) Option {
	return func(c *Client) {
		c.middlewares = append(c.middlewares, mws...)
	}
}

// NewClient creates the agent-side endpoint of ch.
func NewClient(ch *transport.Channel, opts ...Option) *Client {
	c := &Client{
		channel:      ch,
		view:         ch.View(transport.Agent),
		timeout:      DefaultTimeout,
		pollInterval: transport.DefaultPollInterval,
		logger:       log.Logger.With().Str("component", "crossplay.client").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.pollInterval <= 0 {
		c.pollInterval = transport.DefaultPollInterval
	}
	// Build the middleware chain once (not per call)
	c.handler = middleware.Chain(c.middlewares...)(c.roundTrip)
	return c
}

// Call deposits msg for the engine, blocks for the reply, and returns it:
// a Literal's scalar value, or the decoded Object for anything else.
// A timeout <= 0 uses the client's default.
func (c *Client) Call(msg *message.Call, timeout time.Duration) (any, error) {
	obj, err := c.CallObject(msg, timeout)
	if err != nil {
		return nil, err
	}
	return message.Unwrap(obj), nil
}

// CallObject is Call without unwrapping the reply.
func (c *Client) CallObject(msg *message.Call, timeout time.Duration) (message.Object, error) {
	if msg == nil {
		return nil, errors.New("client: nil call")
	}
	if timeout <= 0 {
		timeout = c.timeout
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx := middleware.WithCallID(context.Background(), "")
	ctx = context.WithValue(ctx, timeoutKey{}, timeout)
	return c.handler(ctx, msg)
}

// CallAs calls msg and asserts the unwrapped result is a T. A reply of
// another type is a wrong-shape protocol error.
func CallAs[T any](c *Client, msg *message.Call, timeout time.Duration) (T, error) {
	var zero T
	v, err := c.Call(msg, timeout)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, protocol.WithPhase(
			protocol.WrongShape("%s replied %T, want %T", msg.Method, v, zero),
			protocol.PhaseRead, protocol.DirectionResponse)
	}
	return out, nil
}

type timeoutKey struct{}

// roundTrip runs the rendezvous state machine. It is the innermost handler of
// the middleware chain and runs under c.mu.
func (c *Client) roundTrip(ctx context.Context, msg *message.Call) (message.Object, error) {
	timeout, _ := ctx.Value(timeoutKey{}).(time.Duration)
	if timeout <= 0 {
		timeout = c.timeout
	}
	logger := c.logger.With().Str("call_id", middleware.CallID(ctx)).Logger()
	v := c.view

	// AWAIT_WRITABLE
	if err := c.await(timeout, c.channel.All(nil, []transport.Artifact{v.Peer})); err != nil {
		return nil, c.fail(err, protocol.PhaseAwaitWritable, protocol.DirectionRequest)
	}
	if stale, err := c.channel.Exists(v.Inbound); err == nil && stale {
		logger.Warn().Str("artifact", string(v.Inbound)).Msg("discarding stale reply")
		if err := c.channel.Remove(v.Inbound); err != nil {
			return nil, protocol.ChannelIO(protocol.PhaseAwaitWritable, protocol.DirectionRequest, err)
		}
	}

	// CLAIM
	if err := c.channel.Touch(v.Self); err != nil {
		return nil, protocol.ChannelIO(protocol.PhaseClaim, protocol.DirectionRequest, err)
	}

	// WRITE
	if err := c.channel.WriteObject(v.Outbound, msg); err != nil {
		c.release(logger)
		return nil, protocol.ChannelIO(protocol.PhaseWrite, protocol.DirectionRequest, err)
	}

	// RELEASE
	if err := c.channel.Remove(v.Self); err != nil {
		return nil, protocol.ChannelIO(protocol.PhaseRelease, protocol.DirectionRequest, err)
	}
	logger.Trace().Str("method", msg.Method.String()).Msg("request deposited")

	// AWAIT_RESPONSE
	ready := c.channel.All(
		[]transport.Artifact{v.Inbound},
		[]transport.Artifact{v.Outbound, v.Peer},
	)
	if err := c.await(timeout, ready); err != nil {
		c.retract(logger)
		return nil, c.fail(err, protocol.PhaseAwaitResponse, protocol.DirectionResponse)
	}

	// CLAIM, READ
	if err := c.channel.Touch(v.Self); err != nil {
		return nil, protocol.ChannelIO(protocol.PhaseClaim, protocol.DirectionResponse, err)
	}
	obj, readErr := c.channel.Consume(v.Inbound)

	// RELEASE
	if err := c.channel.Remove(v.Self); err != nil && readErr == nil {
		return nil, protocol.ChannelIO(protocol.PhaseRelease, protocol.DirectionResponse, err)
	}
	if readErr != nil {
		return nil, readFailure(readErr)
	}
	return obj, nil
}

func (c *Client) await(timeout time.Duration, cond transport.Condition) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return transport.WaitFor(ctx, c.pollInterval, cond)
}

func (c *Client) fail(err error, phase protocol.Phase, dir protocol.Direction) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return protocol.Timeout(phase, dir, err)
	}
	return protocol.ChannelIO(phase, dir, err)
}

// retract withdraws an unanswered request so a late engine cannot answer a
// call nobody is waiting for. A request the engine already claimed is left alone.
func (c *Client) retract(logger zerolog.Logger) {
	busy, err := c.channel.Exists(c.view.Peer)
	if err != nil || busy {
		return
	}
	if err := c.channel.Remove(c.view.Outbound); err != nil {
		logger.Warn().Err(err).Msg("retract request failed")
	}
}

func (c *Client) release(logger zerolog.Logger) {
	if err := c.channel.Remove(c.view.Self); err != nil {
		logger.Warn().Err(err).Msg("release failed")
	}
}

func readFailure(err error) error {
	var pe *protocol.ProtocolError
	if errors.As(err, &pe) {
		return protocol.WithPhase(err, protocol.PhaseRead, protocol.DirectionResponse)
	}
	return protocol.ChannelIO(protocol.PhaseRead, protocol.DirectionResponse, err)
}

// Timeout returns the default per-wait timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

func (c *Client) String() string {
	return fmt.Sprintf("client(%s)", c.channel.Layout().Dir)
}
