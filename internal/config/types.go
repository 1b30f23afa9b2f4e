package config

import (
	"fmt"
	"strconv"
	"time"
)

// TypeBool distinguishes "absent from the file" (use the built-in
// default) from an explicit false.
type TypeBool struct {
	set   bool
	value bool
}

func (t *TypeBool) UnmarshalText(data []byte) error {
	v, err := strconv.ParseBool(string(data))
	if err != nil {
		return fmt.Errorf("config: not a bool: %s: %w", data, err)
	}

	t.set, t.value = true, v

	return nil
}

func (t TypeBool) Get(defaultValue bool) bool {
	if !t.set {
		return defaultValue
	}

	return t.value
}

// TypeConcurrency is a bounded uint tunable (queue sizes, filter k/m,
// entry widths). Zero means "unset".
type TypeConcurrency struct {
	Value uint
}

func (t *TypeConcurrency) UnmarshalText(data []byte) error {
	v, err := strconv.ParseUint(string(data), 10, strconv.IntSize)
	if err != nil {
		return fmt.Errorf("config: not an unsigned integer: %s: %w", data, err)
	}

	t.Value = uint(v)

	return nil
}

func (t TypeConcurrency) Get(defaultValue uint) uint {
	if t.Value == 0 {
		return defaultValue
	}

	return t.Value
}

// TypeDuration wraps a duration so the config file can use Go duration
// syntax ("3s", "500ms") instead of raw milliseconds.
type TypeDuration struct {
	Value time.Duration
}

func (t *TypeDuration) UnmarshalText(data []byte) error {
	v, err := time.ParseDuration(string(data))
	if err != nil {
		return fmt.Errorf("config: not a duration: %s: %w", data, err)
	}

	t.Value = v

	return nil
}

func (t TypeDuration) Get(defaultValue time.Duration) time.Duration {
	if t.Value == 0 {
		return defaultValue
	}

	return t.Value
}

// Milliseconds takes its default directly in milliseconds (not
// time.Duration units) since every caller in this codebase already has a
// plain millisecond constant on hand; a time.Duration parameter here would
// silently accept a bare integer like 3000 as 3000ns instead of 3000ms.
func (t TypeDuration) Milliseconds(defaultMs int64) int64 {
	if t.Value == 0 {
		return defaultMs
	}

	return t.Value.Milliseconds()
}

// TypeHostPort is a "host:port" string tunable that is empty-aware for
// Validate's required-field checks.
type TypeHostPort struct {
	Value string
}

func (t *TypeHostPort) UnmarshalText(data []byte) error {
	t.Value = string(data)
	return nil
}

func (t TypeHostPort) Get(defaultValue string) string {
	if t.Value == "" {
		return defaultValue
	}

	return t.Value
}

func (t TypeHostPort) String() string {
	return t.Value
}
