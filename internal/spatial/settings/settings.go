// Package settings holds the global, independently settable policy inputs
// (theme, render style, per-kind visibility) that the lifecycle managers
// observe. The engine owns the mutation path; managers only read.
package settings

import (
	"sync"

	"github.com/banshee-data/haunt.report/internal/config"
	"github.com/banshee-data/haunt.report/internal/spatial"
)

// Snapshot is a consistent copy of every setting.
type Snapshot struct {
	Theme       spatial.Theme
	RenderStyle spatial.RenderStyle
	Visible     map[spatial.FeatureKind]bool
}

// Settings is safe for concurrent use.
type Settings struct {
	mu          sync.RWMutex
	theme       spatial.Theme
	renderStyle spatial.RenderStyle
	visible     map[spatial.FeatureKind]bool
}

// New returns settings with the normal theme, wireframe rendering and every
// kind visible.
func New() *Settings {
	s := &Settings{
		theme:       spatial.ThemeNormal,
		renderStyle: spatial.RenderWireframe,
		visible:     make(map[spatial.FeatureKind]bool, len(spatial.Kinds)),
	}
	for _, k := range spatial.Kinds {
		s.visible[k] = true
	}
	return s
}

// FromConfig seeds settings from a scene config.
func FromConfig(cfg *config.SceneConfig) *Settings {
	s := New()
	s.theme = cfg.GetTheme()
	s.renderStyle = cfg.GetRenderStyle()
	s.visible[spatial.KindSurface] = cfg.GetShowSurfaces()
	s.visible[spatial.KindMesh] = cfg.GetShowMeshes()
	return s
}

func (s *Settings) Theme() spatial.Theme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.theme
}

// SetTheme stores t and returns the previous theme.
func (s *Settings) SetTheme(t spatial.Theme) spatial.Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.theme
	s.theme = t
	return prev
}

func (s *Settings) RenderStyle() spatial.RenderStyle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.renderStyle
}

// SetRenderStyle stores r and returns the previous render style.
func (s *Settings) SetRenderStyle(r spatial.RenderStyle) spatial.RenderStyle {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.renderStyle
	s.renderStyle = r
	return prev
}

// Visible reports whether entities of kind k should be enabled.
// Unknown kinds are visible.
func (s *Settings) Visible(k spatial.FeatureKind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.visible[k]
	return v || !ok
}

func (s *Settings) SetVisible(k spatial.FeatureKind, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible[k] = v
}

func (s *Settings) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vis := make(map[spatial.FeatureKind]bool, len(s.visible))
	for k, v := range s.visible {
		vis[k] = v
	}
	return Snapshot{Theme: s.theme, RenderStyle: s.renderStyle, Visible: vis}
}
