package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/mycelia/internal/listener"
	"github.com/danmuck/mycelia/internal/logging"
	"github.com/danmuck/mycelia/internal/security"
	"github.com/danmuck/mycelia/internal/transport"
	"github.com/rs/zerolog"
)

var ErrInvalid = errors.New("config: invalid")

// Config is the resolved runtime configuration for myceliactl.
type Config struct {
	Listener listener.Config
	Echo     bool
	// SecurityToken, when set, is required on received GLOBALS updates.
	SecurityToken string
	Transport     transport.Config
	Admin         AdminConfig
	Log           logging.Config
}

type AdminConfig struct {
	Enabled bool
	Addr    string
}

// fileConfig mirrors the TOML layout. Durations are strings like "250ms".
type fileConfig struct {
	Listener  listenerFile  `toml:"listener"`
	Transport transportFile `toml:"transport"`
	Admin     adminFile     `toml:"admin"`
	Log       logFile       `toml:"log"`
}

type listenerFile struct {
	ID            string  `toml:"id" comment:"name used in logs and metrics"`
	BindAddress   string  `toml:"bind_address" comment:"empty discovers the primary local IPv4 address"`
	BindPort      int     `toml:"bind_port"`
	PollInterval  string  `toml:"poll_interval" comment:"how often the stop flag is checked"`
	Mode          string  `toml:"mode" comment:"frame (length-prefixed) or raw (read-sized chunks)"`
	ChunkSize     int     `toml:"chunk_size" comment:"raw mode only"`
	MaxFrameBytes uint32  `toml:"max_frame_bytes"`
	AcceptRate    float64 `toml:"accept_rate" comment:"connections per second, 0 disables throttling"`
	AcceptBurst   int     `toml:"accept_burst"`
	WriteTimeout  string  `toml:"write_timeout"`
	Echo          bool    `toml:"echo" comment:"write every decoded frame back to its sender"`
	SecurityToken string  `toml:"security_token" comment:"when set, GLOBALS updates must carry this token"`
	TLS           tlsFile `toml:"tls"`
}

type transportFile struct {
	DialTimeout       string  `toml:"dial_timeout"`
	WriteTimeout      string  `toml:"write_timeout"`
	ReadTimeout       string  `toml:"read_timeout"`
	MaxAttempts       int     `toml:"max_attempts" comment:"0 uses the default (3), negative retries until interrupted"`
	BackoffInitial    string  `toml:"backoff_initial"`
	BackoffMultiplier float64 `toml:"backoff_multiplier"`
	BackoffMax        string  `toml:"backoff_max"`
	BackoffJitter     bool    `toml:"backoff_jitter"`
	TLS               tlsFile `toml:"tls"`
}

type tlsFile struct {
	Mode               string `toml:"mode" comment:"development or production (production requires mutual tls)"`
	Enabled            bool   `toml:"enabled"`
	Mutual             bool   `toml:"mutual"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	CAFile             string `toml:"ca_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	HandshakeTimeout   string `toml:"handshake_timeout"`
}

type adminFile struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr" comment:"serves /health, /ready, /status and /metrics"`
}

type logFile struct {
	Level     string `toml:"level" comment:"trace|debug|info|warn|error|disabled"`
	Timestamp bool   `toml:"timestamp"`
	NoColor   bool   `toml:"no_color"`
	JSON      bool   `toml:"json"`
}

func Default() Config {
	return Config{
		Listener:  listener.DefaultConfig(),
		Transport: transport.DefaultConfig(),
		Admin: AdminConfig{
			Addr: "127.0.0.1:9550",
		},
		Log: logging.DefaultConfig(logging.ProfileRuntime),
	}
}

// Load reads path and overlays every key it defines onto Default.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q", ErrInvalid, undecoded[0].String())
	}
	if err := overlay(&cfg, raw, meta); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func overlay(cfg *Config, raw fileConfig, meta toml.MetaData) error {
	l := &cfg.Listener
	if meta.IsDefined("listener", "id") {
		l.ID = strings.TrimSpace(raw.Listener.ID)
	}
	if meta.IsDefined("listener", "bind_address") {
		l.BindAddress = strings.TrimSpace(raw.Listener.BindAddress)
	}
	if meta.IsDefined("listener", "bind_port") {
		l.BindPort = raw.Listener.BindPort
	}
	if err := durationKey(meta, raw.Listener.PollInterval, &l.PollInterval, "listener", "poll_interval"); err != nil {
		return err
	}
	if meta.IsDefined("listener", "mode") {
		l.Mode = listener.Mode(strings.ToLower(strings.TrimSpace(raw.Listener.Mode)))
	}
	if meta.IsDefined("listener", "chunk_size") {
		l.ChunkSize = raw.Listener.ChunkSize
	}
	if meta.IsDefined("listener", "max_frame_bytes") {
		l.Limits.MaxFrameBytes = raw.Listener.MaxFrameBytes
	}
	if meta.IsDefined("listener", "accept_rate") {
		l.AcceptRate = raw.Listener.AcceptRate
	}
	if meta.IsDefined("listener", "accept_burst") {
		l.AcceptBurst = raw.Listener.AcceptBurst
	}
	if err := durationKey(meta, raw.Listener.WriteTimeout, &l.WriteTimeout, "listener", "write_timeout"); err != nil {
		return err
	}
	if meta.IsDefined("listener", "echo") {
		cfg.Echo = raw.Listener.Echo
	}
	if meta.IsDefined("listener", "security_token") {
		cfg.SecurityToken = strings.TrimSpace(raw.Listener.SecurityToken)
	}
	if err := overlayTLS(&l.TLS, raw.Listener.TLS, meta, "listener"); err != nil {
		return err
	}

	t := &cfg.Transport
	if err := durationKey(meta, raw.Transport.DialTimeout, &t.DialTimeout, "transport", "dial_timeout"); err != nil {
		return err
	}
	if err := durationKey(meta, raw.Transport.WriteTimeout, &t.WriteTimeout, "transport", "write_timeout"); err != nil {
		return err
	}
	if err := durationKey(meta, raw.Transport.ReadTimeout, &t.ReadTimeout, "transport", "read_timeout"); err != nil {
		return err
	}
	if meta.IsDefined("transport", "max_attempts") {
		t.MaxAttempts = raw.Transport.MaxAttempts
	}
	if err := durationKey(meta, raw.Transport.BackoffInitial, &t.Backoff.InitialDelay, "transport", "backoff_initial"); err != nil {
		return err
	}
	if meta.IsDefined("transport", "backoff_multiplier") {
		t.Backoff.Multiplier = raw.Transport.BackoffMultiplier
	}
	if err := durationKey(meta, raw.Transport.BackoffMax, &t.Backoff.MaxDelay, "transport", "backoff_max"); err != nil {
		return err
	}
	if meta.IsDefined("transport", "backoff_jitter") {
		t.Backoff.Jitter = raw.Transport.BackoffJitter
	}
	if err := overlayTLS(&t.TLS, raw.Transport.TLS, meta, "transport"); err != nil {
		return err
	}

	if meta.IsDefined("admin", "enabled") {
		cfg.Admin.Enabled = raw.Admin.Enabled
	}
	if meta.IsDefined("admin", "addr") {
		cfg.Admin.Addr = strings.TrimSpace(raw.Admin.Addr)
	}

	if meta.IsDefined("log", "level") {
		lvl, ok := logging.ParseLevel(raw.Log.Level)
		if !ok {
			return fmt.Errorf("%w: log.level %q", ErrInvalid, raw.Log.Level)
		}
		cfg.Log.Level = lvl
	}
	if meta.IsDefined("log", "timestamp") {
		cfg.Log.Timestamp = raw.Log.Timestamp
	}
	if meta.IsDefined("log", "no_color") {
		cfg.Log.NoColor = raw.Log.NoColor
	}
	if meta.IsDefined("log", "json") {
		cfg.Log.JSON = raw.Log.JSON
	}
	return nil
}

func overlayTLS(dst *security.TLSConfig, raw tlsFile, meta toml.MetaData, table string) error {
	if meta.IsDefined(table, "tls", "mode") {
		dst.Mode = security.NormalizeMode(security.Mode(raw.Mode))
	}
	if meta.IsDefined(table, "tls", "enabled") {
		dst.Enabled = raw.Enabled
	}
	if meta.IsDefined(table, "tls", "mutual") {
		dst.Mutual = raw.Mutual
	}
	if meta.IsDefined(table, "tls", "cert_file") {
		dst.CertFile = strings.TrimSpace(raw.CertFile)
	}
	if meta.IsDefined(table, "tls", "key_file") {
		dst.KeyFile = strings.TrimSpace(raw.KeyFile)
	}
	if meta.IsDefined(table, "tls", "ca_file") {
		dst.CAFile = strings.TrimSpace(raw.CAFile)
	}
	if meta.IsDefined(table, "tls", "server_name") {
		dst.ServerName = strings.TrimSpace(raw.ServerName)
	}
	if meta.IsDefined(table, "tls", "insecure_skip_verify") {
		dst.InsecureSkipVerify = raw.InsecureSkipVerify
	}
	return durationKey(meta, raw.HandshakeTimeout, &dst.HandshakeTimeout, table, "tls", "handshake_timeout")
}

func durationKey(meta toml.MetaData, raw string, dst *time.Duration, key ...string) error {
	if !meta.IsDefined(key...) {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse %s: %w", strings.Join(key, "."), err)
	}
	*dst = d
	return nil
}

// Validate checks the resolved values; empty fields that have defaults are filled first.
func (c *Config) Validate() error {
	c.Listener = c.Listener.WithDefaults()
	if err := c.Listener.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Transport.Backoff.Multiplier != 0 && c.Transport.Backoff.Multiplier < 1 {
		return fmt.Errorf("%w: transport.backoff_multiplier must be >= 1", ErrInvalid)
	}
	if err := c.Transport.TLS.ValidateClient(); err != nil {
		return fmt.Errorf("%w: transport.tls: %w", ErrInvalid, err)
	}
	c.Transport = c.Transport.WithDefaults()
	if c.Admin.Enabled && strings.TrimSpace(c.Admin.Addr) == "" {
		return fmt.Errorf("%w: admin.addr required when admin is enabled", ErrInvalid)
	}
	if c.Log.Level < zerolog.TraceLevel || c.Log.Level > zerolog.Disabled {
		return fmt.Errorf("%w: log level %d", ErrInvalid, c.Log.Level)
	}
	return nil
}
