package main

import (
	"github.com/danmuck/mycelia/internal/config"
	"github.com/danmuck/mycelia/internal/logging"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "myceliactl",
		Short: "myceliactl - send and receive mycelia broker commands",
		Long: `myceliactl speaks the mycelia length-prefixed TCP command protocol.

Use "myceliactl listen" to run a listener that decodes and logs incoming
commands, and "myceliactl send <object>" to build and deliver one command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				lvl, ok := logging.ParseLevel(opts.logLevel)
				if !ok {
					return errInvalidFlag("log-level", opts.logLevel)
				}
				cfg.Log.Level = lvl
			}
			logging.ConfigureWith(cfg.Log)
			opts.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file path (defaults to built-in values)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level: trace|debug|info|warn|error|disabled")

	root.AddCommand(newListenCmd(opts))
	root.AddCommand(newSendCmd(opts))
	return root
}
