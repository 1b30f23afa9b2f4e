// Package config defines the TOML-decoded configuration for admitd, in
// the wrapper-type style the retrieved proxy config uses: every tunable
// is a small value type with a Get(default) accessor so a zero value in
// the file means "use the built-in default" rather than "use zero".
package config

import (
	"bytes"
	"fmt"

	"github.com/pelletier/go-toml"
)

// Config is admitd's top-level configuration.
type Config struct {
	Debug  TypeBool     `toml:"debug"`
	BindTo TypeHostPort `toml:"bindTo"`

	Admission struct {
		QueueSize     TypeConcurrency `toml:"queueSize"`
		AcceptTimeout TypeDuration    `toml:"acceptTimeout"`
		IngestRate    TypeConcurrency `toml:"ingestRate"`
		IngestBurst   TypeConcurrency `toml:"ingestBurst"`
	} `toml:"admission"`

	DuplicateFilter struct {
		Duration   TypeDuration    `toml:"duration"`
		EntryBytes TypeConcurrency `toml:"entryBytes"`
		M          TypeConcurrency `toml:"m"`
		K          TypeConcurrency `toml:"k"`
	} `toml:"duplicateFilter"`

	Stats struct {
		StatsD struct {
			Optional

			Address      TypeHostPort     `toml:"address"`
			MetricPrefix string           `toml:"metricPrefix"`
		} `toml:"statsd"`
		Prometheus struct {
			Optional

			BindTo       TypeHostPort `toml:"bindTo"`
			HTTPPath     string       `toml:"httpPath"`
			MetricPrefix string       `toml:"metricPrefix"`
		} `toml:"prometheus"`
	} `toml:"stats"`
}

// Optional marks a config section as disabled unless Enabled is set,
// the same convention the retrieved proxy config uses for its optional
// blocklist/allowlist/statsd/prometheus sections.
type Optional struct {
	Enabled TypeBool `toml:"enabled"`
}

// Parse decodes TOML bytes into a Config and validates the result.
func Parse(data []byte) (Config, error) {
	var cfg Config

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: cannot parse toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the cross-field invariants the zero-value defaults
// cannot express on their own.
func (c *Config) Validate() error {
	if c.BindTo.Get("") == "" {
		return fmt.Errorf("config: bindTo is required")
	}

	if c.Stats.Prometheus.Enabled.Get(false) && c.Stats.Prometheus.BindTo.Get("") == "" {
		return fmt.Errorf("config: stats.prometheus.bindTo is required when prometheus is enabled")
	}

	if c.Stats.StatsD.Enabled.Get(false) && c.Stats.StatsD.Address.Get("") == "" {
		return fmt.Errorf("config: stats.statsd.address is required when statsd is enabled")
	}

	return nil
}

// String renders the config back to TOML for logging at startup.
func (c Config) String() string {
	buf := &bytes.Buffer{}

	if err := toml.NewEncoder(buf).Encode(c); err != nil {
		return "{}"
	}

	return buf.String()
}
