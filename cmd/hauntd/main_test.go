package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/haunt.report/internal/config"
	"github.com/banshee-data/haunt.report/internal/spatial"
	"github.com/banshee-data/haunt.report/internal/spatial/scene"
	"github.com/banshee-data/haunt.report/internal/spatial/synthetic"
)

const defaultsPath = "../../" + config.DefaultConfigPath

func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, ":8080", *listen)
	assert.Equal(t, "haunt.db", *dbPath)
	assert.Equal(t, uint64(1), *seed)
	assert.True(t, *loop)
	assert.Equal(t, 500*time.Millisecond, *frameInterval)
	assert.False(t, *debugLog)
}

func TestLogWriters(t *testing.T) {
	var buf bytes.Buffer

	lw := logWriters(&buf, false, false)
	assert.NotNil(t, lw.Ops)
	assert.Nil(t, lw.Diag)
	assert.Nil(t, lw.Trace)

	lw = logWriters(&buf, true, true)
	assert.NotNil(t, lw.Diag)
	assert.NotNil(t, lw.Trace)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("HAUNT_THEME", "ectoplasm")
	t.Setenv("HAUNT_SHOW_MESHES", "false")

	cfg, err := loadConfig(defaultsPath)
	require.NoError(t, err)
	assert.Equal(t, spatial.ThemeEctoplasm, cfg.GetTheme())
	assert.False(t, cfg.GetShowMeshes())
	assert.True(t, cfg.GetShowSurfaces())
}

func TestLoadConfig_BadEnv(t *testing.T) {
	t.Setenv("HAUNT_SHOW_SURFACES", "sometimes")
	_, err := loadConfig(defaultsPath)
	assert.Error(t, err)
}

func TestDecorationRand(t *testing.T) {
	cfg := config.EmptySceneConfig()
	assert.Nil(t, decorationRand(cfg))

	seed := int64(42)
	cfg.DecorationSeed = &seed
	a, b := decorationRand(cfg), decorationRand(cfg)
	require.NotNil(t, a)
	assert.Equal(t, a.Uint64(), b.Uint64())
}

func TestEngineConfig(t *testing.T) {
	cfg, err := config.LoadSceneConfig(defaultsPath)
	require.NoError(t, err)

	sess := synthetic.NewSession(1)
	ec := engineConfig(cfg, scene.NewMemory(), sess, nil)
	assert.Equal(t, time.Second, ec.Warmup)
	assert.Equal(t, 64, ec.StreamBuffer)
	assert.Equal(t, 100*time.Millisecond, ec.PoseInterval)
	assert.True(t, ec.CollideMeshes)
	assert.False(t, ec.CollideSurfaces)
	assert.False(t, ec.ReconcileThemeOnSwitch)
	assert.Equal(t, time.Second, ec.SampleInterval)
	assert.Nil(t, ec.Telemetry)
	assert.Equal(t, spatial.ThemeNormal, ec.Settings.Theme())
}
