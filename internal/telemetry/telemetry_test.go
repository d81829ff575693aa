package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnabledOffByDefault(t *testing.T) {
	t.Setenv("VELLUM_OTEL_ENABLED", "")
	assert.False(t, Enabled())
	t.Setenv("VELLUM_OTEL_ENABLED", "true")
	assert.True(t, Enabled())
}

func TestInitDisabledIsNoop(t *testing.T) {
	t.Setenv("VELLUM_OTEL_ENABLED", "")
	require.NoError(t, Init(context.Background(), "vellum", "test"))
	assert.Empty(t, shutdownFns)
	// safe to call with nothing registered
	Shutdown(context.Background())
}

func TestWrapStoragePassthroughWhenDisabled(t *testing.T) {
	t.Setenv("VELLUM_OTEL_ENABLED", "")
	assert.Nil(t, WrapStorage(nil))
}
