package cli

import (
	"fmt"

	"github.com/shadowmesh/admitcore/internal/config"
)

// GenerateConfig prints a config file populated with the daemon's
// built-in defaults, the same role the retrieved proxy's GenerateSecret
// command plays for its own bootstrap value.
type GenerateConfig struct{}

func (g GenerateConfig) Run() error {
	cfg := config.Config{}
	cfg.BindTo.UnmarshalText([]byte("0.0.0.0:9000")) //nolint: errcheck

	fmt.Print(cfg.String())

	return nil
}
