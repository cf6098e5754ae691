package transport

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/mycelia/internal/command"
	"github.com/danmuck/mycelia/internal/protocol"
	"github.com/danmuck/mycelia/internal/protocol/frame"
	"github.com/danmuck/mycelia/internal/protocol/schema"
	"github.com/danmuck/mycelia/internal/testutil/testlog"
	"github.com/google/uuid"
)

func loopback(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	return ln, ln.Addr().(*net.TCPAddr).Port
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.DialTimeout = time.Second
	cfg.WriteTimeout = time.Second
	cfg.ReadTimeout = time.Second
	cfg.Backoff = BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond}
	return cfg
}

func TestSendFrameDelivers(t *testing.T) {
	testlog.Start(t)
	ln, port := loopback(t)
	got := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fr, err := frame.ReadFrame(conn, frame.DefaultLimits())
		if err != nil {
			return
		}
		got <- fr
	}()

	cmd, err := command.Message("A", "orders", "hello")
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if err := SendFrame(context.Background(), cmd, "127.0.0.1", port); err != nil {
		t.Fatalf("send frame: %v", err)
	}

	select {
	case fr := <-got:
		decoded, err := protocol.Decode(fr)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if decoded.CorrelationID != cmd.CorrelationID || string(decoded.Payload) != "hello" {
			t.Fatalf("unexpected delivered command: %s", decoded)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server never received frame")
	}
}

func TestSendFrameEncodesBeforeDialing(t *testing.T) {
	testlog.Start(t)
	cmd := protocol.NewCommand(schema.ObjMessage, schema.CmdSend, "")
	cmd.Args[0] = "orders"
	err := SendFrame(context.Background(), cmd, "127.0.0.1", closedPort(t))
	if !errors.Is(err, protocol.ErrMissingReturnAddress) {
		t.Fatalf("expected ErrMissingReturnAddress, got %v", err)
	}
	if protocol.IsRetryable(err) {
		t.Fatalf("validation error must not be retryable")
	}
}

func TestSendFrameTransportFailure(t *testing.T) {
	testlog.Start(t)
	cmd, _ := command.Message("A", "orders", "x")
	err := SendFrame(context.Background(), cmd, "127.0.0.1", closedPort(t))
	if !errors.Is(err, protocol.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if protocol.KindOf(err) != protocol.KindTransport {
		t.Fatalf("expected transport kind, got %s", protocol.KindOf(err))
	}
}

func TestSenderGivesUpAfterMaxAttempts(t *testing.T) {
	testlog.Start(t)
	cfg := fastConfig()
	cfg.MaxAttempts = 3
	s := NewSender(cfg)
	cmd, _ := command.Message("A", "orders", "x")
	addr := (&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: closedPort(t)}).String()

	err := s.Send(context.Background(), cmd, addr)
	if !errors.Is(err, protocol.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if len(s.Pending()) != 0 {
		t.Fatalf("outbox should be drained after giving up: %+v", s.Pending())
	}
}

func TestSenderDoesNotRetryValidation(t *testing.T) {
	testlog.Start(t)
	s := NewSender(fastConfig())
	cmd := protocol.NewCommand(schema.ObjSubscriber, schema.CmdAdd, "A")
	if err := s.Send(context.Background(), cmd, "127.0.0.1:1"); !errors.Is(err, protocol.ErrIncompleteArguments) {
		t.Fatalf("expected ErrIncompleteArguments, got %v", err)
	}
}

func TestSenderRequestRetriesUntilReply(t *testing.T) {
	testlog.Start(t)
	ln, _ := loopback(t)
	var accepted atomic.Int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			n := accepted.Add(1)
			fr, err := frame.ReadFrame(conn, frame.DefaultLimits())
			if err == nil && n > 1 {
				_ = frame.WriteFrame(conn, fr)
			}
			_ = conn.Close()
		}
	}()

	cfg := fastConfig()
	cfg.MaxAttempts = 5
	s := NewSender(cfg)
	cmd, _ := command.Message("A", "orders", "ping")
	reply, err := s.Request(context.Background(), cmd, ln.Addr().String())
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	decoded, err := protocol.Decode(reply)
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if decoded.CorrelationID != cmd.CorrelationID {
		t.Fatalf("reply correlation mismatch: %s", decoded)
	}
	if accepted.Load() < 2 {
		t.Fatalf("expected a retry, accepted=%d", accepted.Load())
	}
}

func TestSenderHonorsContext(t *testing.T) {
	testlog.Start(t)
	cfg := fastConfig()
	cfg.MaxAttempts = -1
	cfg.Backoff.InitialDelay = time.Second
	cfg.Backoff.MaxDelay = time.Second
	s := NewSender(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	cmd, _ := command.Message("A", "orders", "x")
	addr := (&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: closedPort(t)}).String()

	start := time.Now()
	err := s.Send(ctx, cmd, addr)
	if !errors.Is(err, protocol.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("send ignored context cancellation")
	}
}

func TestNextBackoffDelay(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{10, time.Second},
	}
	for _, tc := range cases {
		if got := NextBackoffDelay(cfg, tc.attempt, nil); got != tc.want {
			t.Fatalf("attempt=%d got=%s want=%s", tc.attempt, got, tc.want)
		}
	}

	cfg.Jitter = true
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		got := NextBackoffDelay(cfg, 2, rng)
		if got < 100*time.Millisecond || got >= 300*time.Millisecond {
			t.Fatalf("jittered delay out of range: %s", got)
		}
	}
	if got := NextBackoffDelay(BackoffConfig{}, 3, nil); got != 0 {
		t.Fatalf("zero config should not wait, got %s", got)
	}
}

func TestOutboxLifecycle(t *testing.T) {
	testlog.Start(t)
	o := NewOutbox()
	first := uuid.New()
	second := uuid.New()
	now := time.Now()
	o.Upsert(PendingSend{CorrelationID: second, QueuedAt: now.Add(time.Second)})
	o.Upsert(PendingSend{CorrelationID: first, QueuedAt: now})
	o.Upsert(PendingSend{CorrelationID: uuid.Nil})

	if o.Len() != 2 {
		t.Fatalf("expected 2 items, got %d", o.Len())
	}
	item, ok := o.MarkAttempt(first, now, errors.New("refused"))
	if !ok || item.Attempts != 1 || item.LastError != "refused" {
		t.Fatalf("unexpected mark attempt: %+v ok=%v", item, ok)
	}
	item, _ = o.MarkAttempt(first, now, nil)
	if item.Attempts != 2 || item.LastError != "" {
		t.Fatalf("unexpected second attempt: %+v", item)
	}
	if _, ok := o.MarkAttempt(uuid.New(), now, nil); ok {
		t.Fatalf("unknown id should not be marked")
	}

	list := o.List()
	if len(list) != 2 || list[0].CorrelationID != first {
		t.Fatalf("list should be ordered by queue time: %+v", list)
	}
	o.Remove(first)
	if _, ok := o.Get(first); ok {
		t.Fatalf("removed item still present")
	}
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{MaxAttempts: 7}.WithDefaults()
	def := DefaultConfig()
	if cfg.DialTimeout != def.DialTimeout || cfg.Backoff.InitialDelay != def.Backoff.InitialDelay {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.MaxAttempts != 7 {
		t.Fatalf("explicit value overwritten: %d", cfg.MaxAttempts)
	}
	if got := (Config{}).WithDefaults().MaxAttempts; got != def.MaxAttempts {
		t.Fatalf("zero attempts should take the default, got %d", got)
	}
	if got := (Config{MaxAttempts: -1}).WithDefaults().MaxAttempts; got != -1 {
		t.Fatalf("negative attempts must be kept, got %d", got)
	}
}

func TestZeroConfigSenderGivesUp(t *testing.T) {
	testlog.Start(t)
	cfg := Config{Backoff: BackoffConfig{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}}
	s := NewSender(cfg)
	cmd, _ := command.Message("A", "orders", "x")
	addr := (&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: closedPort(t)}).String()

	done := make(chan error, 1)
	go func() { done <- s.Send(context.Background(), cmd, addr) }()
	select {
	case err := <-done:
		if !errors.Is(err, protocol.ErrTransport) {
			t.Fatalf("expected ErrTransport, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("zero-value config kept retrying a dead host")
	}
	if len(s.Pending()) != 0 {
		t.Fatalf("outbox not drained: %+v", s.Pending())
	}
}
