package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/danmuck/mycelia/internal/netutil"
	"github.com/danmuck/mycelia/internal/observability"
	"github.com/danmuck/mycelia/internal/protocol"
	"github.com/danmuck/mycelia/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// SendFrame encodes cmd, dials host:port, writes the frame once and closes.
// Encoding errors are returned before any connection is made.
func SendFrame(ctx context.Context, cmd protocol.Command, host string, port int) error {
	data, err := protocol.Encode(cmd)
	if err != nil {
		return err
	}
	cfg := DefaultConfig()
	start := time.Now()
	err = deliver(ctx, cfg, data, netutil.JoinHostPort(host, port), nil)
	observability.RecordSend(cmd.Object.String(), time.Since(start), err == nil)
	return err
}

// Sender delivers commands with bounded retry on transport failures.
type Sender struct {
	cfg    Config
	outbox *Outbox

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewSender(cfg Config) *Sender {
	return &Sender{
		cfg:    cfg.WithDefaults(),
		outbox: NewOutbox(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Pending returns the sends still awaiting delivery.
func (s *Sender) Pending() []PendingSend {
	return s.outbox.List()
}

// Send delivers cmd to addr. Validation and encoding errors are never retried.
func (s *Sender) Send(ctx context.Context, cmd protocol.Command, addr string) error {
	_, err := s.exchange(ctx, cmd, addr, false)
	return err
}

// Request delivers cmd and reads one response frame from the same connection.
func (s *Sender) Request(ctx context.Context, cmd protocol.Command, addr string) ([]byte, error) {
	return s.exchange(ctx, cmd, addr, true)
}

func (s *Sender) exchange(ctx context.Context, cmd protocol.Command, addr string, wantReply bool) ([]byte, error) {
	data, err := protocol.Encode(cmd)
	if err != nil {
		return nil, err
	}

	id := cmd.CorrelationID
	s.outbox.Upsert(PendingSend{
		CorrelationID: id,
		Object:        cmd.Object.String(),
		Addr:          addr,
		QueuedAt:      time.Now(),
	})

	attempt := 0
	for {
		attempt++
		var reply []byte
		var replyPtr *[]byte
		if wantReply {
			replyPtr = &reply
		}
		start := time.Now()
		err := deliver(ctx, s.cfg, data, addr, replyPtr)
		observability.RecordSend(cmd.Object.String(), time.Since(start), err == nil)
		s.outbox.MarkAttempt(id, time.Now(), err)
		if err == nil {
			s.outbox.Remove(id)
			log.Debug().
				Str("correlation_id", id.String()).
				Str("addr", addr).
				Int("attempt", attempt).
				Int("bytes", len(data)).
				Msg("command sent")
			return reply, nil
		}

		log.Warn().
			Err(err).
			Str("correlation_id", id.String()).
			Str("addr", addr).
			Int("attempt", attempt).
			Msg("send failed")
		if !protocol.IsRetryable(err) || !s.shouldRetry(attempt) {
			s.outbox.Remove(id)
			return nil, err
		}
		if err := sleepCtx(ctx, s.nextDelay(attempt)); err != nil {
			s.outbox.Remove(id)
			return nil, fmt.Errorf("%w: %v", protocol.ErrTransport, err)
		}
	}
}

func (s *Sender) shouldRetry(attempt int) bool {
	if s.cfg.MaxAttempts < 0 {
		return true
	}
	return attempt < s.cfg.MaxAttempts
}

func (s *Sender) nextDelay(attempt int) time.Duration {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return NextBackoffDelay(s.cfg.Backoff, attempt, s.rng)
}

// deliver writes one encoded frame to addr. When reply is non-nil it also
// reads a single response frame before closing.
func deliver(ctx context.Context, cfg Config, data []byte, addr string, reply *[]byte) error {
	conn, err := dial(ctx, cfg, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(deadline(ctx, cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrTransport, err)
	}
	if err := frame.WriteFrame(conn, data); err != nil {
		return fmt.Errorf("%w: write %s: %v", protocol.ErrTransport, addr, err)
	}
	if reply == nil {
		return nil
	}

	if err := conn.SetReadDeadline(deadline(ctx, cfg.ReadTimeout)); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrTransport, err)
	}
	fr, err := frame.ReadFrame(conn, frame.DefaultLimits())
	if err != nil {
		return fmt.Errorf("%w: read reply %s: %v", protocol.ErrTransport, addr, err)
	}
	*reply = fr
	return nil
}

// dial opens a TCP connection to addr, upgrading it to TLS when configured.
// TLS setup mistakes are returned unwrapped so they are never retried.
func dial(ctx context.Context, cfg Config, addr string) (net.Conn, error) {
	tlsCfg, err := cfg.TLS.ClientConfig(addr)
	if err != nil {
		return nil, err
	}
	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", protocol.ErrTransport, addr, err)
	}
	if tlsCfg == nil {
		return raw, nil
	}
	conn := tls.Client(raw, tlsCfg)
	hsCtx, cancel := context.WithTimeout(ctx, cfg.TLS.Handshake())
	defer cancel()
	if err := conn.HandshakeContext(hsCtx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("%w: tls handshake %s: %v", protocol.ErrTransport, addr, err)
	}
	return conn, nil
}

func deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		d = ctxDeadline
	}
	return d
}
