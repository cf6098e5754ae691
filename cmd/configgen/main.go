package main

import (
	"flag"

	"github.com/danmuck/mycelia/internal/config"
	"github.com/danmuck/mycelia/internal/logging"
	"github.com/rs/zerolog/log"
)

const defaultPath = "cmd/myceliactl/config.toml"

func main() {
	output := flag.String("output", defaultPath, "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", defaultPath, "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()
	logging.ConfigureRuntime()

	if *validate {
		if _, err := config.Load(*input); err != nil {
			log.Fatal().Err(err).Str("path", *input).Msg("config invalid")
		}
		log.Info().Str("path", *input).Msg("config valid")
		return
	}

	if err := config.WriteTemplate(*output, *force); err != nil {
		log.Fatal().Err(err).Str("path", *output).Msg("write config template")
	}
	log.Info().Str("path", *output).Msg("wrote config template")
}
