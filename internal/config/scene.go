package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/banshee-data/haunt.report/internal/spatial"
)

// DefaultConfigPath is the path to the canonical scene defaults file.
const DefaultConfigPath = "config/scene.defaults.json"

// SceneConfig represents the root configuration for the scene engine.
// Every field is optional; the Get* accessors supply defaults, so partial
// files are safe.
type SceneConfig struct {
	// Global settings (the values a control surface would change at runtime)
	Theme        *string `json:"theme,omitempty"`
	RenderStyle  *string `json:"render_style,omitempty"`
	ShowSurfaces *bool   `json:"show_surfaces,omitempty"`
	ShowMeshes   *bool   `json:"show_meshes,omitempty"`

	// Stream params
	WarmupDuration *string `json:"warmup_duration,omitempty"` // duration string like "1s"
	StreamBuffer   *int    `json:"stream_buffer,omitempty"`

	// Tracking params
	PosePollInterval *string `json:"pose_poll_interval,omitempty"` // duration string like "100ms"

	// Lifecycle params
	ReconcileThemeOnSwitch *bool `json:"reconcile_theme_on_switch,omitempty"`
	CollideSurfaces        *bool `json:"collide_surfaces,omitempty"`
	CollideMeshes          *bool `json:"collide_meshes,omitempty"`

	// Decoration params
	DecorationSeed *int64 `json:"decoration_seed,omitempty"` // 0 picks a time-based seed

	// Telemetry params
	SampleInterval *string `json:"sample_interval,omitempty"`
}

func ptrBool(v bool) *bool       { return &v }
func ptrString(v string) *string { return &v }

// EmptySceneConfig returns a SceneConfig with all fields set to nil.
func EmptySceneConfig() *SceneConfig {
	return &SceneConfig{}
}

// LoadSceneConfig loads a SceneConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadSceneConfig(path string) (*SceneConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySceneConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file cannot
// be loaded; intended for test setup.
func MustLoadDefaultConfig() *SceneConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/spatial/engine/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadSceneConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *SceneConfig) Validate() error {
	if c.Theme != nil {
		if _, err := spatial.ParseTheme(*c.Theme); err != nil {
			return fmt.Errorf("theme: %w", err)
		}
	}
	if c.RenderStyle != nil {
		if _, err := spatial.ParseRenderStyle(*c.RenderStyle); err != nil {
			return fmt.Errorf("render_style: %w", err)
		}
	}
	for name, d := range map[string]*string{
		"warmup_duration":    c.WarmupDuration,
		"pose_poll_interval": c.PosePollInterval,
		"sample_interval":    c.SampleInterval,
	} {
		if d == nil || *d == "" {
			continue
		}
		parsed, err := time.ParseDuration(*d)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *d, err)
		}
		if parsed < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *d)
		}
	}
	if c.StreamBuffer != nil && *c.StreamBuffer < 0 {
		return fmt.Errorf("stream_buffer must be non-negative, got %d", *c.StreamBuffer)
	}
	return nil
}

// GetTheme returns the configured theme or ThemeNormal.
func (c *SceneConfig) GetTheme() spatial.Theme {
	if c.Theme == nil {
		return spatial.ThemeNormal
	}
	t, err := spatial.ParseTheme(*c.Theme)
	if err != nil {
		return spatial.ThemeNormal
	}
	return t
}

// GetRenderStyle returns the configured render style or RenderWireframe.
func (c *SceneConfig) GetRenderStyle() spatial.RenderStyle {
	if c.RenderStyle == nil {
		return spatial.RenderWireframe
	}
	r, err := spatial.ParseRenderStyle(*c.RenderStyle)
	if err != nil {
		return spatial.RenderWireframe
	}
	return r
}

// GetShowSurfaces returns the show_surfaces value or the default.
func (c *SceneConfig) GetShowSurfaces() bool {
	if c.ShowSurfaces == nil {
		return true
	}
	return *c.ShowSurfaces
}

// GetShowMeshes returns the show_meshes value or the default.
func (c *SceneConfig) GetShowMeshes() bool {
	if c.ShowMeshes == nil {
		return true
	}
	return *c.ShowMeshes
}

// GetWarmupDuration returns the delay before the stream relay starts.
func (c *SceneConfig) GetWarmupDuration() time.Duration {
	return parseDurationOr(c.WarmupDuration, time.Second)
}

// GetStreamBuffer returns the per-kind channel capacity.
func (c *SceneConfig) GetStreamBuffer() int {
	if c.StreamBuffer == nil {
		return 64
	}
	return *c.StreamBuffer
}

// GetPosePollInterval returns the device pose polling period (10 Hz default).
func (c *SceneConfig) GetPosePollInterval() time.Duration {
	return parseDurationOr(c.PosePollInterval, 100*time.Millisecond)
}

// GetReconcileThemeOnSwitch returns whether a theme change restyles live entities.
func (c *SceneConfig) GetReconcileThemeOnSwitch() bool {
	if c.ReconcileThemeOnSwitch == nil {
		return false
	}
	return *c.ReconcileThemeOnSwitch
}

// GetCollideSurfaces returns whether surfaces get collision shapes.
func (c *SceneConfig) GetCollideSurfaces() bool {
	if c.CollideSurfaces == nil {
		return false
	}
	return *c.CollideSurfaces
}

// GetCollideMeshes returns whether reconstructed mesh chunks get collision shapes.
func (c *SceneConfig) GetCollideMeshes() bool {
	if c.CollideMeshes == nil {
		return true
	}
	return *c.CollideMeshes
}

// GetDecorationSeed returns the decoration placement seed, 0 meaning time-based.
func (c *SceneConfig) GetDecorationSeed() int64 {
	if c.DecorationSeed == nil {
		return 0
	}
	return *c.DecorationSeed
}

// GetSampleInterval returns how often telemetry samples are taken.
func (c *SceneConfig) GetSampleInterval() time.Duration {
	return parseDurationOr(c.SampleInterval, time.Second)
}

func parseDurationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

// EnvOverrides are HAUNT_* environment variables layered over the file.
// Unset or empty values leave the file setting untouched.
type EnvOverrides struct {
	Theme          string `env:"HAUNT_THEME"`
	RenderStyle    string `env:"HAUNT_RENDER_STYLE"`
	ShowSurfaces   *bool  `env:"HAUNT_SHOW_SURFACES"`
	ShowMeshes     *bool  `env:"HAUNT_SHOW_MESHES"`
	WarmupDuration string `env:"HAUNT_WARMUP_DURATION"`
	SampleInterval string `env:"HAUNT_SAMPLE_INTERVAL"`
}

// ApplyEnv parses HAUNT_* variables and overlays them onto c, then
// re-validates.
func (c *SceneConfig) ApplyEnv() error {
	var o EnvOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return c.applyOverrides(o)
}

func (c *SceneConfig) applyOverrides(o EnvOverrides) error {
	if o.Theme != "" {
		c.Theme = ptrString(o.Theme)
	}
	if o.RenderStyle != "" {
		c.RenderStyle = ptrString(o.RenderStyle)
	}
	if o.ShowSurfaces != nil {
		c.ShowSurfaces = o.ShowSurfaces
	}
	if o.ShowMeshes != nil {
		c.ShowMeshes = o.ShowMeshes
	}
	if o.WarmupDuration != "" {
		c.WarmupDuration = ptrString(o.WarmupDuration)
	}
	if o.SampleInterval != "" {
		c.SampleInterval = ptrString(o.SampleInterval)
	}
	return c.Validate()
}
