package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/shadowmesh/admitcore/internal/config"
	"github.com/shadowmesh/admitcore/internal/daemon"
)

// Run starts the admission daemon from a config file.
type Run struct {
	ConfigPath string `kong:"arg,required,type='existingfile',help='Path to config file.',name='config-path'"`
}

func (r Run) Run() error {
	data, err := os.ReadFile(r.ConfigPath)
	if err != nil {
		return fmt.Errorf("cli: cannot read config: %w", err)
	}

	cfg, err := config.Parse(data)
	if err != nil {
		return err
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if cfg.Debug.Get(false) {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	logger.Info().Str("config", cfg.String()).Msg("starting admitd")

	d, err := daemon.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("cli: cannot build daemon: %w", err)
	}

	return d.Run()
}
