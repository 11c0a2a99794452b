package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigEnabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.False(t, Config{Endpoint: "http://localhost:4318", Disabled: true}.Enabled())
	assert.True(t, Config{Endpoint: "http://localhost:4318"}.Enabled())
}

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := Setup(context.Background(), "hauntd-test", "dev", Config{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, shutdown(ctx), "no-op shutdown ignores a cancelled context")
}

func TestSetup_CreatesProviderWhenEndpointSet(t *testing.T) {
	// Non-routable address: nothing is exported because no spans are recorded.
	cfg := Config{Endpoint: "http://192.0.2.1:4318", SampleRatio: 0.5}
	shutdown, err := Setup(context.Background(), "hauntd-test", "dev", cfg)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
