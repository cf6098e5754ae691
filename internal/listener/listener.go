package listener

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var (
	ErrNilProcessor     = errors.New("listener: processor is required")
	ErrAlreadyListening = errors.New("listener: already listening")
	ErrNotListening     = errors.New("listener: not listening")
)

// Processor handles one frame (or raw chunk). A non-empty return value is
// written back on the same connection before the next read.
type Processor func(frame []byte) []byte

type State int32

const (
	StateStopped State = iota
	StateListening
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "LISTENING"
	default:
		return "STOPPED"
	}
}

// Listener accepts TCP connections and feeds their frames to a Processor.
// One instance may be started and stopped repeatedly.
type Listener struct {
	cfg       Config
	processor Processor
	limiter   *rate.Limiter
	tls       *tls.Config

	mu        sync.Mutex
	ln        *net.TCPListener
	startedAt time.Time
	conns     map[net.Conn]struct{}
	wg        sync.WaitGroup

	state    atomic.Int32
	stopping atomic.Bool
	accepted atomic.Uint64
	rejected atomic.Uint64
	frames   atomic.Uint64
}

// Snapshot is the status view served on the admin endpoint.
type Snapshot struct {
	ID          string `json:"id"`
	State       string `json:"state"`
	Addr        string `json:"addr,omitempty"`
	Mode        Mode   `json:"mode"`
	ActiveConns int    `json:"active_conns"`
	Accepted    uint64 `json:"accepted"`
	Rejected    uint64 `json:"rejected"`
	Frames      uint64 `json:"frames"`
	Uptime      string `json:"uptime,omitempty"`
}

func New(processor Processor, cfg Config) (*Listener, error) {
	if processor == nil {
		return nil, ErrNilProcessor
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Listener{
		cfg:       cfg,
		processor: processor,
		conns:     make(map[net.Conn]struct{}),
	}
	tlsCfg, err := cfg.TLS.ServerConfig()
	if err != nil {
		return nil, err
	}
	l.tls = tlsCfg
	if cfg.AcceptRate > 0 {
		l.limiter = rate.NewLimiter(rate.Limit(cfg.AcceptRate), cfg.AcceptBurst)
	}
	return l, nil
}

func (l *Listener) Config() Config { return l.cfg }

func (l *Listener) State() State { return State(l.state.Load()) }

// Addr returns the bound address, or nil when not listening.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Start binds and serves until Stop. It returns after in-flight connections end.
func (l *Listener) Start() error {
	if err := l.Listen(); err != nil {
		return err
	}
	return l.Serve()
}

// Listen binds the socket without accepting.
func (l *Listener) Listen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln != nil {
		return ErrAlreadyListening
	}
	addr, err := net.ResolveTCPAddr("tcp", l.cfg.Addr())
	if err != nil {
		return err
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return err
	}
	l.ln = ln
	l.startedAt = time.Now()
	l.state.Store(int32(StateListening))
	log.Info().
		Str("listener", l.cfg.ID).
		Str("addr", ln.Addr().String()).
		Str("mode", string(l.cfg.Mode)).
		Bool("tls", l.tls != nil).
		Dur("poll_interval", l.cfg.PollInterval).
		Msg("listener started")
	return nil
}

// Serve runs the accept loop on a socket bound by Listen.
func (l *Listener) Serve() error {
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()
	if ln == nil {
		return ErrNotListening
	}

	for !l.stopping.Load() {
		_ = ln.SetDeadline(time.Now().Add(l.cfg.PollInterval))
		conn, err := ln.AcceptTCP()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if !l.stopping.Load() {
				log.Warn().Err(err).Str("listener", l.cfg.ID).Msg("accept failed, closing listener")
			}
			break
		}
		if l.limiter != nil && !l.limiter.Allow() {
			l.rejected.Add(1)
			l.recordRejected(conn)
			continue
		}
		l.accepted.Add(1)
		l.trackConn(conn)
		l.wg.Add(1)
		go l.handleConn(conn)
	}

	// connections notice the flag within one poll interval
	l.stopping.Store(true)
	_ = ln.Close()
	l.wg.Wait()

	l.mu.Lock()
	l.ln = nil
	l.mu.Unlock()
	l.state.Store(int32(StateStopped))
	// re-arm for the next Start
	l.stopping.Store(false)
	log.Info().Str("listener", l.cfg.ID).Msg("listener stopped")
	return nil
}

// Stop asks the accept loop to end. Safe from any goroutine; repeated calls are
// no-ops. A Stop that lands before Listen makes the next Start return at once.
func (l *Listener) Stop() {
	if !l.stopping.CompareAndSwap(false, true) {
		return
	}
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()
	if ln == nil {
		return
	}
	log.Info().Str("listener", l.cfg.ID).Msg("listener stopping")
	_ = ln.Close()
}

// Run starts the listener and stops it on SIGINT, SIGTERM or ctx cancellation.
func (l *Listener) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := l.Listen(); err != nil {
		return err
	}
	done := make(chan struct{})
	watched := make(chan struct{})
	go func() {
		defer close(watched)
		select {
		case <-ctx.Done():
			l.Stop()
		case <-done:
		}
	}()
	err := l.Serve()
	close(done)
	<-watched
	return err
}

func (l *Listener) NodeID() string { return l.cfg.ID }

func (l *Listener) Ready() bool { return l.State() == StateListening }

func (l *Listener) Status() any { return l.Snapshot() }

func (l *Listener) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Snapshot{
		ID:          l.cfg.ID,
		State:       l.State().String(),
		Mode:        l.cfg.Mode,
		ActiveConns: len(l.conns),
		Accepted:    l.accepted.Load(),
		Rejected:    l.rejected.Load(),
		Frames:      l.frames.Load(),
	}
	if l.ln != nil {
		s.Addr = l.ln.Addr().String()
		s.Uptime = time.Since(l.startedAt).Round(time.Second).String()
	}
	return s
}

func (l *Listener) trackConn(conn net.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conns[conn] = struct{}{}
}

func (l *Listener) untrackConn(conn net.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.conns, conn)
}
