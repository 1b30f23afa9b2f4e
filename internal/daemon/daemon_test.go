package daemon

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowmesh/admitcore/internal/config"
)

func TestBuildObserverFactoriesNoneEnabled(t *testing.T) {
	factories, prom, sd := buildObserverFactories(config.Config{})

	assert.Empty(t, factories)
	assert.Nil(t, prom)
	assert.Nil(t, sd)
}

func TestBuildObserverFactoriesPrometheusOnly(t *testing.T) {
	var cfg config.Config
	cfg.Stats.Prometheus.Enabled = boolTrue()
	cfg.Stats.Prometheus.BindTo.Value = "127.0.0.1:0"

	factories, prom, sd := buildObserverFactories(cfg)

	assert.Len(t, factories, 1)
	require.NotNil(t, prom)
	assert.Nil(t, sd)
}

func TestNewAndRunLifecycle(t *testing.T) {
	var cfg config.Config
	cfg.BindTo.Value = "127.0.0.1:0"
	cfg.Admission.QueueSize.Value = 4

	d, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)

	done := make(chan error, 1)

	go func() { done <- d.Run() }()

	// Run binds asynchronously; give it a moment before requesting shutdown.
	time.Sleep(50 * time.Millisecond)
	d.Shutdown()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}

func boolTrue() (b config.TypeBool) {
	_ = b.UnmarshalText([]byte("true"))
	return b
}
