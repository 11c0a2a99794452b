// Package decor spawns theme decorations on detected surfaces and removes
// them with their parent.
package decor

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/banshee-data/haunt.report/internal/spatial"
	"github.com/banshee-data/haunt.report/internal/spatial/lifecycle"
	"github.com/banshee-data/haunt.report/internal/spatial/scene"
	"github.com/banshee-data/haunt.report/internal/spatial/settings"
	"github.com/banshee-data/haunt.report/internal/spatial/style"
)

// spread keeps decorations inside the parent outline.
const spread = 0.8

// Config holds dependencies for a Spawner.
type Config struct {
	Renderer scene.Renderer
	// Settings supplies the active theme and surface visibility. Nil means
	// the normal theme, which spawns nothing.
	Settings *settings.Settings
	// Rand drives placement. Nil seeds from the runtime.
	Rand *rand.Rand
}

// Spawner keeps parent surface id -> decoration entities. It implements
// lifecycle.Listener and, like the managers, runs on the consumer goroutine.
type Spawner struct {
	renderer scene.Renderer
	settings *settings.Settings
	rng      *rand.Rand

	byParent map[spatial.FeatureID][]scene.EntityID
	total    int
}

var _ lifecycle.Listener = (*Spawner)(nil)

// New creates a Spawner.
func New(cfg Config) *Spawner {
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Spawner{
		renderer: cfg.Renderer,
		settings: cfg.Settings,
		rng:      rng,
		byParent: make(map[spatial.FeatureID][]scene.EntityID),
	}
}

// FeatureAdded spawns decorations for a newly present surface when the
// active theme has a rule for its classification and alignment.
func (s *Spawner) FeatureAdded(n lifecycle.Notice) {
	if n.Kind != spatial.KindSurface {
		return
	}
	theme := s.theme()
	rule, ok := RuleFor(theme, n.Classification, n.Alignment)
	if !ok {
		return
	}
	if _, exists := s.byParent[n.ID]; exists {
		return
	}

	count := rule.Min
	if rule.Max > rule.Min {
		count += s.rng.IntN(rule.Max - rule.Min + 1)
	}
	material := style.Descriptor{
		Name:     fmt.Sprintf("%s/decor/%s", theme, rule.Primitive),
		Color:    rule.Color,
		Opacity:  1,
		Emissive: rule.Emissive,
	}
	enabled := s.visible()

	children := make([]scene.EntityID, 0, count)
	for i := 0; i < count; i++ {
		id, err := s.renderer.CreateEntity(scene.EntitySpec{
			Name:      fmt.Sprintf("decor/%s/%s/%d", n.ID, rule.Primitive, i),
			Role:      scene.RoleDecoration,
			Primitive: rule.Primitive,
			Material:  material,
			Transform: s.place(n, rule),
			Enabled:   enabled,
		})
		if err != nil {
			spatial.Opsf("[decor] create %s for %s: %v", rule.Primitive, n.ID, err)
			continue
		}
		children = append(children, id)
	}
	if len(children) == 0 {
		return
	}
	s.byParent[n.ID] = children
	s.total += len(children)
	spatial.Tracef("[decor] spawned %d %s on %s %s", len(children), rule.Primitive, n.Classification, n.ID)
}

// FeatureRemoved removes every decoration parented to id in one step.
func (s *Spawner) FeatureRemoved(kind spatial.FeatureKind, id spatial.FeatureID) {
	if kind != spatial.KindSurface {
		return
	}
	s.removeParent(id)
}

// place returns a world transform on the parent's local plane: a random
// in-plane offset inside the outline, a random yaw about the surface normal,
// and a lift along the normal.
func (s *Spawner) place(n lifecycle.Notice, rule Rule) mgl32.Mat4 {
	half := n.Bounds.HalfExtents()
	c := n.Bounds.Centroid
	x := c.X + (s.rng.Float64()*2-1)*half.X*spread
	z := c.Z + (s.rng.Float64()*2-1)*half.Z*spread
	yaw := float32(s.rng.Float64() * 2 * math.Pi)

	local := mgl32.Translate3D(float32(x), float32(c.Y)+rule.Lift, float32(z)).
		Mul4(mgl32.HomogRotate3DY(yaw)).
		Mul4(mgl32.Scale3D(rule.Scale, rule.Scale, rule.Scale))
	return n.Pose.Mul4(local)
}

func (s *Spawner) removeParent(id spatial.FeatureID) {
	children, ok := s.byParent[id]
	if !ok {
		return
	}
	for _, child := range children {
		if err := s.renderer.RemoveEntity(child); err != nil {
			spatial.Opsf("[decor] remove decoration %d of %s: %v", child, id, err)
		}
	}
	delete(s.byParent, id)
	s.total -= len(children)
	spatial.Tracef("[decor] removed %d decorations of %s", len(children), id)
}

// Clear removes every decoration.
func (s *Spawner) Clear() {
	n := s.total
	for id := range s.byParent {
		s.removeParent(id)
	}
	if n > 0 {
		spatial.Diagf("[decor] cleared %d decorations", n)
	}
}

// SetVisibility enables or disables every decoration. Decorations follow
// surface visibility.
func (s *Spawner) SetVisibility(visible bool) {
	for id, children := range s.byParent {
		for _, child := range children {
			if err := s.renderer.SetEnabled(child, visible); err != nil {
				spatial.Opsf("[decor] set enabled on decoration of %s: %v", id, err)
			}
		}
	}
}

// Count returns the number of live decorations.
func (s *Spawner) Count() int { return s.total }

// Parents returns the number of surfaces carrying decorations.
func (s *Spawner) Parents() int { return len(s.byParent) }

// Decorations returns the decoration handles parented to id, sorted.
func (s *Spawner) Decorations(id spatial.FeatureID) []scene.EntityID {
	children := append([]scene.EntityID(nil), s.byParent[id]...)
	sort.Slice(children, func(i, j int) bool { return children[i] < children[j] })
	return children
}

func (s *Spawner) theme() spatial.Theme {
	if s.settings == nil {
		return spatial.ThemeNormal
	}
	return s.settings.Theme()
}

func (s *Spawner) visible() bool {
	if s.settings == nil {
		return true
	}
	return s.settings.Visible(spatial.KindSurface)
}
