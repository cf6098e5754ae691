package security

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// Mode controls how strict transport checks are.
type Mode string

const (
	ModeDevelopment Mode = "development"
	// ModeProduction requires mutual TLS with verified peers.
	ModeProduction Mode = "production"
)

const DefaultHandshakeTimeout = 5 * time.Second

var (
	ErrInvalidMode          = errors.New("security: invalid mode")
	ErrTLSRequired          = errors.New("security: tls required")
	ErrMTLSRequired         = errors.New("security: mtls required")
	ErrCertFileRequired     = errors.New("security: tls cert file required")
	ErrKeyFileRequired      = errors.New("security: tls key file required")
	ErrCAFileRequired       = errors.New("security: tls ca file required")
	ErrInsecureSkipNotAllow = errors.New("security: insecure skip verify not allowed")
)

// TLSConfig describes one side of a TLS connection. The zero value is plain TCP.
type TLSConfig struct {
	Mode               Mode
	Enabled            bool
	Mutual             bool
	CertFile           string
	KeyFile            string
	CAFile             string
	ServerName         string
	InsecureSkipVerify bool
	HandshakeTimeout   time.Duration
}

func NormalizeMode(mode Mode) Mode {
	m := Mode(strings.ToLower(strings.TrimSpace(string(mode))))
	if m == "" {
		return ModeDevelopment
	}
	return m
}

func (c TLSConfig) Handshake() time.Duration {
	if c.HandshakeTimeout <= 0 {
		return DefaultHandshakeTimeout
	}
	return c.HandshakeTimeout
}

func (c TLSConfig) checkMode() (Mode, error) {
	mode := NormalizeMode(c.Mode)
	switch mode {
	case ModeDevelopment, ModeProduction:
	default:
		return mode, fmt.Errorf("%w: %q", ErrInvalidMode, c.Mode)
	}
	if mode == ModeProduction {
		if !c.Enabled {
			return mode, ErrTLSRequired
		}
		if !c.Mutual {
			return mode, ErrMTLSRequired
		}
	}
	if c.Mutual && !c.Enabled {
		return mode, ErrTLSRequired
	}
	return mode, nil
}

// ValidateServer checks the listening side.
func (c TLSConfig) ValidateServer() error {
	if _, err := c.checkMode(); err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}
	if strings.TrimSpace(c.CertFile) == "" {
		return ErrCertFileRequired
	}
	if strings.TrimSpace(c.KeyFile) == "" {
		return ErrKeyFileRequired
	}
	if c.Mutual && strings.TrimSpace(c.CAFile) == "" {
		return ErrCAFileRequired
	}
	return nil
}

// ValidateClient checks the dialing side.
func (c TLSConfig) ValidateClient() error {
	mode, err := c.checkMode()
	if err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}
	if mode == ModeProduction && c.InsecureSkipVerify {
		return ErrInsecureSkipNotAllow
	}
	if strings.TrimSpace(c.CAFile) == "" && !c.InsecureSkipVerify {
		return ErrCAFileRequired
	}
	if c.Mutual {
		if strings.TrimSpace(c.CertFile) == "" {
			return ErrCertFileRequired
		}
		if strings.TrimSpace(c.KeyFile) == "" {
			return ErrKeyFileRequired
		}
	}
	return nil
}

// ServerConfig builds the listener's tls.Config, or nil when TLS is off.
func (c TLSConfig) ServerConfig() (*tls.Config, error) {
	if err := c.ValidateServer(); err != nil {
		return nil, err
	}
	if !c.Enabled {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("security: load server key pair: %w", err)
	}
	cfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.NoClientCert,
	}
	if c.Mutual {
		pool, err := loadPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
		cfg.ClientCAs = pool
	}
	return cfg, nil
}

// ClientConfig builds a tls.Config for dialing addr, or nil when TLS is off.
// ServerName falls back to the host part of addr.
func (c TLSConfig) ClientConfig(addr string) (*tls.Config, error) {
	if err := c.ValidateClient(); err != nil {
		return nil, err
	}
	if !c.Enabled {
		return nil, nil
	}
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}
	serverName := strings.TrimSpace(c.ServerName)
	if serverName == "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		serverName = host
	}
	cfg.ServerName = serverName

	if strings.TrimSpace(c.CAFile) != "" {
		pool, err := loadPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	if c.Mutual {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("security: load client key pair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

func loadPool(path string) (*x509.CertPool, error) {
	caPEM, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return nil, fmt.Errorf("security: read ca bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(caPEM); !ok {
		return nil, fmt.Errorf("security: parse ca bundle: %s", path)
	}
	return pool, nil
}
