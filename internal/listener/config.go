package listener

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/mycelia/internal/netutil"
	"github.com/danmuck/mycelia/internal/protocol/frame"
	"github.com/danmuck/mycelia/internal/security"
)

const (
	DefaultPort         = 5500
	DefaultPollInterval = time.Second
	DefaultChunkSize    = 1024
	DefaultWriteTimeout = 10 * time.Second
	DefaultID           = "mycelia.listener"
)

// Mode selects how bytes are cut before they reach the Processor.
type Mode string

const (
	// ModeFrame delivers exactly one length-prefixed frame per call.
	ModeFrame Mode = "frame"
	// ModeRaw delivers whatever a single read returned, up to ChunkSize bytes.
	ModeRaw Mode = "raw"
)

var ErrInvalidConfig = errors.New("listener: invalid config")

type Config struct {
	ID          string
	BindAddress string
	// BindPort 0 lets the OS pick a port; see Addr after Listen.
	BindPort     int
	PollInterval time.Duration
	Mode         Mode
	ChunkSize    int
	Limits       frame.Limits
	// AcceptRate is connections per second; 0 disables throttling.
	AcceptRate   float64
	AcceptBurst  int
	WriteTimeout time.Duration
	TLS          security.TLSConfig
}

func DefaultConfig() Config {
	return Config{
		ID:           DefaultID,
		BindAddress:  netutil.LocalIPv4(),
		BindPort:     DefaultPort,
		PollInterval: DefaultPollInterval,
		Mode:         ModeFrame,
		ChunkSize:    DefaultChunkSize,
		Limits:       frame.DefaultLimits(),
		WriteTimeout: DefaultWriteTimeout,
	}
}

// WithDefaults fills empty fields. BindPort is left alone.
func (c Config) WithDefaults() Config {
	if strings.TrimSpace(c.ID) == "" {
		c.ID = DefaultID
	}
	if strings.TrimSpace(c.BindAddress) == "" {
		c.BindAddress = netutil.LocalIPv4()
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Mode == "" {
		c.Mode = ModeFrame
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Limits.MaxFrameBytes == 0 {
		c.Limits = frame.DefaultLimits()
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.AcceptRate > 0 && c.AcceptBurst <= 0 {
		c.AcceptBurst = 1
	}
	return c
}

func (c Config) Validate() error {
	if c.BindPort < 0 || c.BindPort > 65535 {
		return fmt.Errorf("%w: bind port %d out of range", ErrInvalidConfig, c.BindPort)
	}
	switch c.Mode {
	case ModeFrame, ModeRaw:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidConfig)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidConfig)
	}
	if c.AcceptRate < 0 {
		return fmt.Errorf("%w: accept rate must not be negative", ErrInvalidConfig)
	}
	if err := c.TLS.ValidateServer(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Addr is the configured bind address in host:port form.
func (c Config) Addr() string {
	return netutil.JoinHostPort(c.BindAddress, c.BindPort)
}
