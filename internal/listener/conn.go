package listener

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/danmuck/mycelia/internal/observability"
	"github.com/danmuck/mycelia/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

var errStopping = errors.New("listener: stopping")

// pollReader hides read-deadline timeouts from the caller so io.ReadFull keeps
// partial progress across them, and gives up once stop is set.
type pollReader struct {
	conn net.Conn
	poll time.Duration
	stop *atomic.Bool
}

func (r *pollReader) Read(p []byte) (int, error) {
	for {
		if r.stop.Load() {
			return 0, errStopping
		}
		_ = r.conn.SetReadDeadline(time.Now().Add(r.poll))
		n, err := r.conn.Read(p)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if n > 0 {
					return n, nil
				}
				continue
			}
			return n, err
		}
		if n > 0 {
			return n, nil
		}
	}
}

func (l *Listener) handleConn(raw net.Conn) {
	defer l.wg.Done()
	defer l.untrackConn(raw)
	defer raw.Close()

	remote := raw.RemoteAddr().String()
	observability.RecordConnAccepted(l.cfg.ID)
	defer observability.RecordConnClosed(l.cfg.ID)
	log.Debug().Str("listener", l.cfg.ID).Str("remote", remote).Msg("connection opened")

	conn := raw
	if l.tls != nil {
		tlsConn := tls.Server(raw, l.tls)
		_ = tlsConn.SetDeadline(time.Now().Add(l.cfg.TLS.Handshake()))
		if err := tlsConn.Handshake(); err != nil {
			observability.RecordConnError(l.cfg.ID, "handshake")
			log.Warn().Err(err).Str("listener", l.cfg.ID).Str("remote", remote).Msg("tls handshake failed")
			return
		}
		_ = tlsConn.SetDeadline(time.Time{})
		conn = tlsConn
	}

	r := &pollReader{conn: conn, poll: l.cfg.PollInterval, stop: &l.stopping}
	buf := make([]byte, l.cfg.ChunkSize)
	for {
		data, err := l.next(r, buf)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				log.Debug().Str("listener", l.cfg.ID).Str("remote", remote).Msg("connection closed by peer")
			case errors.Is(err, errStopping):
				log.Debug().Str("listener", l.cfg.ID).Str("remote", remote).Msg("connection closed on stop")
			default:
				observability.RecordConnError(l.cfg.ID, "read")
				log.Warn().Err(err).Str("listener", l.cfg.ID).Str("remote", remote).Msg("connection dropped")
			}
			return
		}

		start := time.Now()
		resp, err := l.process(data)
		if err != nil {
			observability.RecordConnError(l.cfg.ID, "process")
			log.Error().Err(err).Str("listener", l.cfg.ID).Str("remote", remote).Msg("connection dropped")
			return
		}
		l.frames.Add(1)
		observability.RecordFrame(l.cfg.ID, string(l.cfg.Mode), len(data), time.Since(start), len(resp) > 0)
		if len(resp) == 0 {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteTimeout))
		if _, err := conn.Write(resp); err != nil {
			observability.RecordConnError(l.cfg.ID, "write")
			log.Warn().Err(err).Str("listener", l.cfg.ID).Str("remote", remote).Msg("response write failed")
			return
		}
	}
}

// next returns one unit of input according to the configured mode.
func (l *Listener) next(r io.Reader, buf []byte) ([]byte, error) {
	if l.cfg.Mode == ModeFrame {
		return frame.ReadFrame(r, l.cfg.Limits)
	}
	n, err := r.Read(buf)
	if n > 0 {
		out := make([]byte, n)
		copy(out, buf[:n])
		return out, nil
	}
	if err == nil {
		err = io.EOF
	}
	return nil, err
}

func (l *Listener) process(data []byte) (resp []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("listener: processor panic: %v", p)
		}
	}()
	return l.processor(data), nil
}

func (l *Listener) recordRejected(conn net.Conn) {
	observability.RecordConnRejected(l.cfg.ID)
	log.Warn().
		Str("listener", l.cfg.ID).
		Str("remote", conn.RemoteAddr().String()).
		Msg("connection rejected by accept rate limit")
	_ = conn.Close()
}
