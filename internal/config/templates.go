package config

import (
	"fmt"
	"os"

	"github.com/danmuck/mycelia/internal/security"
	"github.com/pelletier/go-toml/v2"
)

const templateHeader = "# myceliactl configuration\n# Durations use Go syntax: 250ms, 5s, 1m.\n\n"

// Template renders the default configuration as TOML.
func Template() (string, error) {
	def := Default()
	file := fileConfig{
		Listener: listenerFile{
			ID:            def.Listener.ID,
			BindPort:      def.Listener.BindPort,
			PollInterval:  def.Listener.PollInterval.String(),
			Mode:          string(def.Listener.Mode),
			ChunkSize:     def.Listener.ChunkSize,
			MaxFrameBytes: def.Listener.Limits.MaxFrameBytes,
			AcceptRate:    def.Listener.AcceptRate,
			AcceptBurst:   def.Listener.AcceptBurst,
			WriteTimeout:  def.Listener.WriteTimeout.String(),
			Echo:          def.Echo,
			TLS:           tlsTemplate(def.Listener.TLS),
		},
		Transport: transportFile{
			DialTimeout:       def.Transport.DialTimeout.String(),
			WriteTimeout:      def.Transport.WriteTimeout.String(),
			ReadTimeout:       def.Transport.ReadTimeout.String(),
			MaxAttempts:       def.Transport.MaxAttempts,
			BackoffInitial:    def.Transport.Backoff.InitialDelay.String(),
			BackoffMultiplier: def.Transport.Backoff.Multiplier,
			BackoffMax:        def.Transport.Backoff.MaxDelay.String(),
			BackoffJitter:     def.Transport.Backoff.Jitter,
			TLS:               tlsTemplate(def.Transport.TLS),
		},
		Admin: adminFile{
			Enabled: def.Admin.Enabled,
			Addr:    def.Admin.Addr,
		},
		Log: logFile{
			Level:     def.Log.Level.String(),
			Timestamp: def.Log.Timestamp,
			NoColor:   def.Log.NoColor,
			JSON:      def.Log.JSON,
		},
	}
	body, err := toml.Marshal(file)
	if err != nil {
		return "", fmt.Errorf("render config template: %w", err)
	}
	return templateHeader + string(body), nil
}

func tlsTemplate(c security.TLSConfig) tlsFile {
	return tlsFile{
		Mode:             string(security.NormalizeMode(c.Mode)),
		Enabled:          c.Enabled,
		Mutual:           c.Mutual,
		CertFile:         c.CertFile,
		KeyFile:          c.KeyFile,
		CAFile:           c.CAFile,
		ServerName:       c.ServerName,
		HandshakeTimeout: c.Handshake().String(),
	}
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
