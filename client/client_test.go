package client

import (
	"context"
	"crossplay/message"
	"crossplay/middleware"
	"crossplay/protocol"
	"crossplay/transport"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newChannel(t testing.TB) *transport.Channel {
	t.Helper()
	ch, err := transport.NewChannel(transport.DefaultLayout(filepath.Join(t.TempDir(), "crossplay")), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := ch.Reset(); err != nil {
		t.Fatal(err)
	}
	return ch
}

// fakeEngine plays the engine side of the channel: it takes each request,
// answers it with reply (or raw bytes when raw is set) and releases.
type fakeEngine struct {
	ch    *transport.Channel
	reply func(*message.Call) message.Object
	raw   []byte

	mu   sync.Mutex
	seen []*message.Call
}

func (e *fakeEngine) start(t testing.TB) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.Cleanup(func() {
		cancel()
		<-done
	})
	go func() {
		defer close(done)
		for {
			if err := e.serveOne(ctx); err != nil {
				return
			}
		}
	}()
}

func (e *fakeEngine) serveOne(ctx context.Context) error {
	v := e.ch.View(transport.Engine)
	ready := e.ch.All([]transport.Artifact{v.Inbound}, []transport.Artifact{v.Outbound, v.Peer})
	if err := transport.WaitFor(ctx, 50*time.Microsecond, ready); err != nil {
		return err
	}
	if err := e.ch.Touch(v.Self); err != nil {
		return err
	}
	defer e.ch.Remove(v.Self)

	obj, err := e.ch.Consume(v.Inbound)
	if err != nil {
		return err
	}
	call := obj.(*message.Call)
	e.mu.Lock()
	e.seen = append(e.seen, call)
	e.mu.Unlock()

	if e.raw != nil {
		tmp := filepath.Join(e.ch.Layout().Dir, "raw.partial")
		if err := os.WriteFile(tmp, e.raw, 0o644); err != nil {
			return err
		}
		return os.Rename(tmp, e.ch.Path(v.Outbound))
	}
	return e.ch.WriteObject(v.Outbound, e.reply(call))
}

func (e *fakeEngine) calls() []*message.Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*message.Call(nil), e.seen...)
}

func quiet() Option {
	return WithLogger(zerolog.Nop())
}

func assertIdle(t *testing.T, ch *transport.Channel) {
	t.Helper()
	idle, err := ch.Idle()
	if err != nil {
		t.Fatal(err)
	}
	if !idle {
		t.Fatal("expect channel idle after the call")
	}
}

func TestClientCall(t *testing.T) {
	ch := newChannel(t)
	engine := &fakeEngine{ch: ch, reply: func(*message.Call) message.Object { return message.Int(7) }}
	engine.start(t)

	c := NewClient(ch, quiet())
	got, err := c.Call(message.NewCall(message.MethodGetRoundNum), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(7) {
		t.Fatalf("expect 7, got %v (%T)", got, got)
	}

	seen := engine.calls()
	if len(seen) != 1 || seen[0].Method != message.MethodGetRoundNum {
		t.Fatalf("engine saw %v", seen)
	}
	assertIdle(t, ch)
}

func TestClientCallParams(t *testing.T) {
	ch := newChannel(t)
	engine := &fakeEngine{ch: ch, reply: func(call *message.Call) message.Object {
		return message.Int(int64(len(call.Params)))
	}}
	engine.start(t)

	c := NewClient(ch, quiet())
	msg := message.NewCall(message.MethodLog,
		message.Ref(message.TypeRobotController, 0),
		message.Str("hello"),
	)
	got, err := c.Call(msg, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(2) {
		t.Fatalf("expect 2, got %v", got)
	}

	seen := engine.calls()[0]
	ref, ok := seen.Params[0].(*message.Reference)
	if !ok || ref.Tag != message.TypeRobotController || ref.Handle != 0 {
		t.Fatalf("first param = %v", seen.Params[0])
	}
	if lit, ok := seen.Params[1].(*message.Literal); !ok || lit.Value != "hello" {
		t.Fatalf("second param = %v", seen.Params[1])
	}
}

func TestClientReferenceReply(t *testing.T) {
	ch := newChannel(t)
	engine := &fakeEngine{ch: ch, reply: func(*message.Call) message.Object {
		return message.Ref(message.TypeMapLocation, 12)
	}}
	engine.start(t)

	c := NewClient(ch, quiet())
	got, err := CallAs[*message.Reference](c, message.NewCall(message.MethodGetMapWidth), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if got.Tag != message.TypeMapLocation || got.Handle != 12 {
		t.Fatalf("got %v", got)
	}
}

func TestCallAs(t *testing.T) {
	ch := newChannel(t)
	engine := &fakeEngine{ch: ch, reply: func(*message.Call) message.Object { return message.Int(30) }}
	engine.start(t)

	c := NewClient(ch, quiet())
	width, err := CallAs[int64](c, message.NewCall(message.MethodGetMapWidth), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if width != 30 {
		t.Fatalf("expect 30, got %v", width)
	}

	_, err = CallAs[string](c, message.NewCall(message.MethodGetMapWidth), time.Second)
	if !errors.Is(err, protocol.ErrWrongShape) {
		t.Fatalf("expect wrong-shape, got %v", err)
	}
}

func TestClientTimeout(t *testing.T) {
	ch := newChannel(t)
	c := NewClient(ch, quiet())

	const timeout = 50 * time.Millisecond
	start := time.Now()
	_, err := c.Call(message.NewCall(message.MethodGetRoundNum), timeout)
	elapsed := time.Since(start)

	if !errors.Is(err, protocol.ErrTimeout) {
		t.Fatalf("expect timeout, got %v", err)
	}
	var pe *protocol.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expect *ProtocolError, got %T", err)
	}
	if pe.Phase != protocol.PhaseAwaitResponse || pe.Direction != protocol.DirectionResponse {
		t.Errorf("phase %q direction %q", pe.Phase, pe.Direction)
	}
	if elapsed < timeout {
		t.Errorf("returned after %v, before the %v timeout", elapsed, timeout)
	}
	if elapsed > timeout+2*time.Second {
		t.Errorf("returned after %v, far past the %v timeout", elapsed, timeout)
	}
	// the unanswered request is withdrawn
	assertIdle(t, ch)
}

func TestClientTimeoutWhileEngineBusy(t *testing.T) {
	ch := newChannel(t)
	engineView := ch.View(transport.Engine)
	if err := ch.Touch(engineView.Self); err != nil {
		t.Fatal(err)
	}

	c := NewClient(ch, quiet())
	_, err := c.Call(message.NewCall(message.MethodGetRoundNum), 30*time.Millisecond)

	var pe *protocol.ProtocolError
	if !errors.As(err, &pe) || pe.Reason != protocol.ReasonTimeout {
		t.Fatalf("expect timeout, got %v", err)
	}
	if pe.Phase != protocol.PhaseAwaitWritable || pe.Direction != protocol.DirectionRequest {
		t.Errorf("phase %q direction %q", pe.Phase, pe.Direction)
	}
	if ok, _ := ch.Exists(ch.View(transport.Agent).Outbound); ok {
		t.Error("request must not be deposited while the engine holds the channel")
	}
}

func TestClientDefaultTimeout(t *testing.T) {
	ch := newChannel(t)
	c := NewClient(ch, quiet(), WithTimeout(-1))
	if c.Timeout() != DefaultTimeout {
		t.Fatalf("expect default timeout, got %v", c.Timeout())
	}

	c = NewClient(ch, quiet(), WithTimeout(20*time.Millisecond))
	start := time.Now()
	_, err := c.Call(message.NewCall(message.MethodGetRoundNum), 0)
	if !errors.Is(err, protocol.ErrTimeout) {
		t.Fatalf("expect timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("returned after %v", elapsed)
	}
}

func TestStaleReplyDiscarded(t *testing.T) {
	ch := newChannel(t)
	if err := ch.WriteObject(ch.View(transport.Agent).Inbound, message.Int(99)); err != nil {
		t.Fatal(err)
	}
	engine := &fakeEngine{ch: ch, reply: func(*message.Call) message.Object { return message.Int(7) }}
	engine.start(t)

	c := NewClient(ch, quiet())
	got, err := c.Call(message.NewCall(message.MethodGetRoundNum), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(7) {
		t.Fatalf("expect the fresh reply 7, got %v", got)
	}
}

func TestReplyConsumedOnce(t *testing.T) {
	ch := newChannel(t)
	engine := &fakeEngine{ch: ch, reply: func(*message.Call) message.Object { return message.Str("once") }}
	engine.start(t)

	c := NewClient(ch, quiet())
	for i := 0; i < 3; i++ {
		got, err := c.Call(message.NewCall(message.MethodGetRoundNum), time.Second)
		if err != nil {
			t.Fatal(err)
		}
		if got != "once" {
			t.Fatalf("call %d: got %v", i, got)
		}
		if ok, _ := ch.Exists(ch.View(transport.Agent).Inbound); ok {
			t.Fatalf("call %d: reply left on the channel", i)
		}
	}
	if n := len(engine.calls()); n != 3 {
		t.Fatalf("engine answered %d requests, want 3", n)
	}
}

func TestWrongShapeReply(t *testing.T) {
	ch := newChannel(t)
	engine := &fakeEngine{ch: ch, raw: []byte(`{"type": 99, "id": -1}`)}
	engine.start(t)

	c := NewClient(ch, quiet())
	_, err := c.Call(message.NewCall(message.MethodGetRoundNum), time.Second)
	if !errors.Is(err, protocol.ErrWrongShape) {
		t.Fatalf("expect wrong-shape, got %v", err)
	}
	var pe *protocol.ProtocolError
	errors.As(err, &pe)
	if pe.Direction != protocol.DirectionResponse {
		t.Errorf("direction %q", pe.Direction)
	}
	// a bad reply is consumed, not left to poison the next call
	assertIdle(t, ch)
}

func TestUndecodableReply(t *testing.T) {
	ch := newChannel(t)
	engine := &fakeEngine{ch: ch, raw: []byte(`{"type": 2, "value": `)}
	engine.start(t)

	c := NewClient(ch, quiet())
	_, err := c.Call(message.NewCall(message.MethodGetRoundNum), time.Second)
	if !errors.Is(err, protocol.ErrWrongShape) {
		t.Fatalf("expect wrong-shape, got %v", err)
	}
	assertIdle(t, ch)
}

func TestConcurrentCallsAreSequenced(t *testing.T) {
	ch := newChannel(t)
	engine := &fakeEngine{ch: ch, reply: func(call *message.Call) message.Object {
		n := message.Unwrap(call.Params[0]).(int64)
		return message.Int(n * 10)
	}}
	engine.start(t)

	c := NewClient(ch, quiet())
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			got, err := CallAs[int64](c, message.NewCall(message.MethodLog, message.Int(n)), 5*time.Second)
			if err != nil {
				errs <- err
				return
			}
			if got != n*10 {
				errs <- errors.New("reply crossed between calls")
			}
		}(int64(i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if n := len(engine.calls()); n != 8 {
		t.Fatalf("engine answered %d requests, want 8", n)
	}
}

func TestClientMiddleware(t *testing.T) {
	ch := newChannel(t)
	engine := &fakeEngine{ch: ch, reply: func(*message.Call) message.Object { return message.Bool(true) }}
	engine.start(t)

	var ids []string
	record := func(next middleware.HandlerFunc) middleware.HandlerFunc {
		return func(ctx context.Context, call *message.Call) (message.Object, error) {
			ids = append(ids, middleware.CallID(ctx))
			return next(ctx, call)
		}
	}

	c := NewClient(ch, quiet(), Use(record, middleware.LoggingMiddleware(zerolog.Nop())))
	for i := 0; i < 2; i++ {
		if _, err := c.Call(message.NewCall(message.MethodGetRoundNum), time.Second); err != nil {
			t.Fatal(err)
		}
	}
	if len(ids) != 2 || ids[0] == "" || ids[0] == ids[1] {
		t.Fatalf("expect two distinct call ids, got %v", ids)
	}
}

func TestNilCall(t *testing.T) {
	c := NewClient(newChannel(t), quiet())
	if _, err := c.Call(nil, time.Second); err == nil {
		t.Fatal("expect error for nil call")
	}
}

func BenchmarkClientCall(b *testing.B) {
	ch := newChannel(b)
	engine := &fakeEngine{ch: ch, reply: func(*message.Call) message.Object { return message.Int(1) }}
	engine.start(b)

	c := NewClient(ch, quiet())
	msg := message.NewCall(message.MethodGetRoundNum)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Call(msg, time.Second); err != nil {
			b.Fatal(err)
		}
	}
}
