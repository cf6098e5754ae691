package main

import (
	"context"

	"github.com/danmuck/mycelia/internal/auth"
	"github.com/danmuck/mycelia/internal/command"
	"github.com/danmuck/mycelia/internal/config"
	"github.com/danmuck/mycelia/internal/listener"
	"github.com/danmuck/mycelia/internal/observability"
	"github.com/danmuck/mycelia/internal/protocol"
	"github.com/danmuck/mycelia/internal/protocol/schema"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newListenCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Run a listener that decodes and logs incoming commands",
		Long: `Bind a TCP listener and log every command it receives.

With --echo each frame is written back to its sender unchanged. With --admin
an HTTP endpoint serves /health, /ready, /status and /metrics.
Press Ctrl+C to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			if err := applyListenFlags(cmd, &cfg); err != nil {
				return err
			}
			return runListener(cmd.Context(), cfg)
		},
	}
	f := cmd.Flags()
	f.String("bind", "", "bind address (default: discovered local IPv4)")
	f.Int("port", listener.DefaultPort, "bind port")
	f.String("mode", string(listener.ModeFrame), "read mode: frame|raw")
	f.Duration("poll", listener.DefaultPollInterval, "stop-flag poll interval")
	f.Bool("echo", false, "write each frame back to its sender")
	f.String("admin", "", "serve the admin HTTP endpoint on this address")
	f.String("token", "", "reject GLOBALS updates whose security token differs")
	return cmd
}

// applyListenFlags overlays flags the user actually set onto cfg.
func applyListenFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("bind") {
		v, _ := f.GetString("bind")
		cfg.Listener.BindAddress = v
	}
	if f.Changed("port") {
		v, _ := f.GetInt("port")
		cfg.Listener.BindPort = v
	}
	if f.Changed("mode") {
		v, _ := f.GetString("mode")
		cfg.Listener.Mode = listener.Mode(v)
	}
	if f.Changed("poll") {
		v, _ := f.GetDuration("poll")
		cfg.Listener.PollInterval = v
	}
	if f.Changed("echo") {
		v, _ := f.GetBool("echo")
		cfg.Echo = v
	}
	if f.Changed("token") {
		v, _ := f.GetString("token")
		cfg.SecurityToken = v
	}
	if f.Changed("admin") {
		v, _ := f.GetString("admin")
		cfg.Admin.Enabled = v != ""
		cfg.Admin.Addr = v
	}
	return cfg.Validate()
}

func runListener(ctx context.Context, cfg config.Config) error {
	l, err := listener.New(commandProcessor(cfg.Echo, auth.ForToken(cfg.SecurityToken)), cfg.Listener)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Admin.Enabled {
		go func() {
			if err := observability.ServeAdmin(ctx, cfg.Admin.Addr, observability.NewAdminRouter(l)); err != nil {
				log.Error().Err(err).Str("addr", cfg.Admin.Addr).Msg("admin endpoint stopped")
			}
		}()
	}
	return l.Run(ctx)
}

// commandProcessor logs each decoded command and optionally echoes the raw frame.
func commandProcessor(echo bool, tokens auth.Validator) listener.Processor {
	decode := listener.Decoding(func(cmd protocol.Command) []byte {
		logCommand(cmd, tokens)
		return nil
	})
	return func(frame []byte) []byte {
		decode(frame)
		if echo {
			return frame
		}
		return nil
	}
}

func logCommand(cmd protocol.Command, tokens auth.Validator) {
	if err := auth.CheckCommand(tokens, cmd); err != nil {
		log.Warn().
			Err(err).
			Str("correlation_id", cmd.CorrelationID.String()).
			Str("return_address", cmd.ReturnAddress).
			Msg("command rejected")
		return
	}
	ev := log.Info().
		Str("correlation_id", cmd.CorrelationID.String()).
		Stringer("obj_type", cmd.Object).
		Stringer("cmd_type", cmd.Cmd).
		Str("return_address", cmd.ReturnAddress).
		Strs("args", cmd.Args[:]).
		Int("payload_bytes", len(cmd.Payload))
	if cmd.Object == schema.ObjGlobals {
		if g, err := command.DecodeGlobals(cmd.Payload); err == nil {
			g.SecurityToken = "redacted"
			ev = ev.Interface("globals", g)
		}
	}
	ev.Msg("command received")
}
