package main

import (
	"fmt"
	"strings"

	"github.com/danmuck/mycelia/internal/config"
)

func loadConfig(path string) (config.Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
		return cfg, nil
	}
	return config.Load(path)
}

func errInvalidFlag(name, value string) error {
	return fmt.Errorf("invalid --%s %q", name, value)
}
