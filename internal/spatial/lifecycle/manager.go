// Package lifecycle keeps one visual entity per live sensed feature. A
// Manager applies added/updated/removed events for a single feature kind,
// converting geometry and choosing materials as it goes.
//
// A Manager is not safe for concurrent use. Every method, including the
// collision callbacks it schedules, must run on the consumer goroutine that
// owns it.
package lifecycle

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/banshee-data/haunt.report/internal/spatial"
	"github.com/banshee-data/haunt.report/internal/spatial/geometry"
	"github.com/banshee-data/haunt.report/internal/spatial/scene"
	"github.com/banshee-data/haunt.report/internal/spatial/settings"
	"github.com/banshee-data/haunt.report/internal/spatial/style"
	"github.com/banshee-data/haunt.report/internal/timeutil"
)

// ErrWrongKind is returned when an update for another feature kind is applied.
var ErrWrongKind = errors.New("update kind does not match manager")

// Notice describes a feature that has just become present in the scene.
type Notice struct {
	Kind           spatial.FeatureKind
	ID             spatial.FeatureID
	Classification spatial.Classification
	Alignment      spatial.Alignment
	Pose           mgl32.Mat4
	Bounds         geometry.Bounds
}

// Listener receives presence transitions. Updates of a present feature are
// not reported.
type Listener interface {
	FeatureAdded(n Notice)
	FeatureRemoved(kind spatial.FeatureKind, id spatial.FeatureID)
}

// Config holds dependencies for a Manager.
type Config struct {
	Kind     spatial.FeatureKind
	Renderer scene.Renderer

	// Settings is observed at creation, update and toggle time. When nil
	// the manager uses the defaults of settings.New.
	Settings *settings.Settings

	// Collisions generates collision shapes asynchronously. Nil disables
	// collision shapes for this kind.
	Collisions *CollisionWorker

	// Clock times geometry conversions for Stats. Defaults to RealClock.
	Clock timeutil.Clock
}

type entry struct {
	entity         scene.EntityID
	classification spatial.Classification
	alignment      spatial.Alignment
	pose           mgl32.Mat4
	mesh           geometry.Mesh
	material       style.Descriptor
	generation     uint64
}

// Manager owns the id -> entity map for one feature kind.
type Manager struct {
	kind       spatial.FeatureKind
	renderer   scene.Renderer
	settings   *settings.Settings
	collisions *CollisionWorker
	clock      timeutil.Clock

	entries map[spatial.FeatureID]*entry
	// pending holds ids whose added event failed to convert; their next
	// updated event is retried as an add.
	pending   map[spatial.FeatureID]struct{}
	listeners []Listener
	stats     counters
}

// NewManager creates a Manager for cfg.Kind.
func NewManager(cfg Config) *Manager {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Manager{
		kind:       cfg.Kind,
		renderer:   cfg.Renderer,
		settings:   cfg.Settings,
		collisions: cfg.Collisions,
		clock:      clock,
		entries:    make(map[spatial.FeatureID]*entry),
		pending:    make(map[spatial.FeatureID]struct{}),
		stats:      newCounters(),
	}
}

// Kind returns the feature kind this manager owns.
func (m *Manager) Kind() spatial.FeatureKind { return m.kind }

// AddListener registers l for presence transitions.
func (m *Manager) AddListener(l Listener) {
	m.listeners = append(m.listeners, l)
}

// Apply routes one update through the state machine. Conversion and renderer
// failures are logged, counted and returned; they never leave a partially
// built entity behind. Removing or updating an unknown id is a no-op.
func (m *Manager) Apply(u spatial.Update) error {
	if u.Kind != m.kind {
		return fmt.Errorf("%s manager got %s: %w", m.kind, u, ErrWrongKind)
	}
	switch u.Event {
	case spatial.EventAdded:
		if _, ok := m.entries[u.ID]; ok {
			// Duplicate add: keep a single entity and treat it as an update.
			return m.update(u)
		}
		return m.add(u)
	case spatial.EventUpdated:
		if _, ok := m.entries[u.ID]; ok {
			return m.update(u)
		}
		if _, ok := m.pending[u.ID]; ok {
			return m.add(u)
		}
		m.stats.ignoredUpdates++
		spatial.Tracef("[%s] update for unknown id %s ignored", m.kind, u.ID)
		return nil
	case spatial.EventRemoved:
		m.remove(u.ID)
		return nil
	default:
		return fmt.Errorf("%s manager: unknown event %s", m.kind, u.Event)
	}
}

func (m *Manager) add(u spatial.Update) error {
	mesh, err := m.convert(u)
	if err != nil {
		m.pending[u.ID] = struct{}{}
		return err
	}

	material := m.styleFor(u.Classification, u.Alignment)
	id, err := m.renderer.CreateEntity(scene.EntitySpec{
		Name:      fmt.Sprintf("%s/%s", m.kind, u.ID),
		Role:      m.role(),
		Mesh:      &mesh,
		Material:  material,
		Transform: u.Pose,
		Enabled:   m.visible(),
	})
	if err != nil {
		m.pending[u.ID] = struct{}{}
		m.stats.createFailures++
		spatial.Opsf("[%s] create entity for %s failed: %v", m.kind, u.ID, err)
		return fmt.Errorf("create entity for %s: %w", u.ID, err)
	}

	delete(m.pending, u.ID)
	e := &entry{
		entity:         id,
		classification: u.Classification,
		alignment:      u.Alignment,
		pose:           u.Pose,
		mesh:           mesh,
		material:       material,
		generation:     1,
	}
	m.entries[u.ID] = e
	m.stats.adds++
	spatial.Tracef("[%s] added %s as entity %d (%d tris, %s)", m.kind, u.ID, id, mesh.TriangleCount(), material.Name)

	m.requestCollision(u.ID, e)

	notice := Notice{
		Kind:           m.kind,
		ID:             u.ID,
		Classification: u.Classification,
		Alignment:      u.Alignment,
		Pose:           u.Pose,
		Bounds:         mesh.Bounds(),
	}
	for _, l := range m.listeners {
		l.FeatureAdded(notice)
	}
	return nil
}

func (m *Manager) update(u spatial.Update) error {
	e := m.entries[u.ID]
	mesh, err := m.convert(u)
	if err != nil {
		// The prior entity stays exactly as it was.
		return err
	}

	if err := m.renderer.ReplaceMesh(e.entity, mesh); err != nil {
		spatial.Opsf("[%s] replace mesh for %s failed: %v", m.kind, u.ID, err)
		return fmt.Errorf("replace mesh for %s: %w", u.ID, err)
	}
	material := m.styleFor(u.Classification, u.Alignment)
	if err := m.renderer.SetMaterial(e.entity, material); err != nil {
		spatial.Opsf("[%s] set material for %s failed: %v", m.kind, u.ID, err)
	}
	if err := m.renderer.SetTransform(e.entity, u.Pose); err != nil {
		spatial.Opsf("[%s] set transform for %s failed: %v", m.kind, u.ID, err)
	}

	e.classification = u.Classification
	e.alignment = u.Alignment
	e.pose = u.Pose
	e.mesh = mesh
	e.material = material
	e.generation++
	m.stats.updates++
	spatial.Tracef("[%s] updated %s (generation %d)", m.kind, u.ID, e.generation)

	m.requestCollision(u.ID, e)
	return nil
}

func (m *Manager) remove(id spatial.FeatureID) {
	if _, ok := m.pending[id]; ok {
		delete(m.pending, id)
		spatial.Tracef("[%s] removed %s before it converted", m.kind, id)
		return
	}
	e, ok := m.entries[id]
	if !ok {
		m.stats.ignoredRemoves++
		spatial.Tracef("[%s] remove for unknown id %s ignored", m.kind, id)
		return
	}
	if err := m.renderer.RemoveEntity(e.entity); err != nil {
		spatial.Opsf("[%s] remove entity %d for %s: %v", m.kind, e.entity, id, err)
	}
	delete(m.entries, id)
	m.stats.removes++
	spatial.Tracef("[%s] removed %s", m.kind, id)

	for _, l := range m.listeners {
		l.FeatureRemoved(m.kind, id)
	}
}

func (m *Manager) convert(u spatial.Update) (geometry.Mesh, error) {
	start := m.clock.Now()
	mesh, err := geometry.Convert(u.Geometry)
	m.stats.observeConversion(m.clock.Since(start))
	if err != nil {
		m.stats.conversionFailures++
		spatial.Opsf("[%s] %s %s: geometry conversion failed: %v", m.kind, u.Event, u.ID, err)
		return geometry.Mesh{}, fmt.Errorf("%s %s: %w", u.Event, u.ID, err)
	}
	return mesh, nil
}

// SetVisibility enables or disables every live entity of this kind.
func (m *Manager) SetVisibility(visible bool) {
	for id, e := range m.entries {
		if err := m.renderer.SetEnabled(e.entity, visible); err != nil {
			spatial.Opsf("[%s] set enabled on %s: %v", m.kind, id, err)
		}
	}
	spatial.Diagf("[%s] visibility=%t applied to %d entities", m.kind, visible, len(m.entries))
}

// ApplyStyle replaces the material of every live reconstructed-mesh entity
// for render style r, leaving geometry and pose untouched. Surfaces pick up
// render style changes on their next add or update.
func (m *Manager) ApplyStyle(r spatial.RenderStyle) {
	if m.kind != spatial.KindMesh {
		spatial.Diagf("[%s] render style change not applied to live entities", m.kind)
		return
	}
	m.restyle(m.theme(), r)
}

// Restyle recomputes every live entity's material from the current theme
// and render style.
func (m *Manager) Restyle() {
	m.restyle(m.theme(), m.renderStyle())
}

func (m *Manager) restyle(t spatial.Theme, r spatial.RenderStyle) {
	for id, e := range m.entries {
		material := style.Style(e.classification, e.alignment, t, r)
		if err := m.renderer.SetMaterial(e.entity, material); err != nil {
			spatial.Opsf("[%s] restyle %s: %v", m.kind, id, err)
			continue
		}
		e.material = material
	}
	spatial.Diagf("[%s] restyled %d entities for %s/%s", m.kind, len(m.entries), t, r)
}

// Count returns the number of live entities.
func (m *Manager) Count() int { return len(m.entries) }

// Has reports whether id currently has a live entity.
func (m *Manager) Has(id spatial.FeatureID) bool {
	_, ok := m.entries[id]
	return ok
}

// Entity returns the scene handle for id.
func (m *Manager) Entity(id spatial.FeatureID) (scene.EntityID, bool) {
	e, ok := m.entries[id]
	if !ok {
		return 0, false
	}
	return e.entity, true
}

// Material returns the material currently assigned to id.
func (m *Manager) Material(id spatial.FeatureID) (style.Descriptor, bool) {
	e, ok := m.entries[id]
	if !ok {
		return style.Descriptor{}, false
	}
	return e.material, true
}

// IDs returns the live feature ids in a stable order.
func (m *Manager) IDs() []spatial.FeatureID {
	ids := make([]spatial.FeatureID, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// Pending returns the number of ids awaiting a successful conversion.
func (m *Manager) Pending() int { return len(m.pending) }

// Notices describes every live feature, in IDs order, as it would be
// announced to a Listener now.
func (m *Manager) Notices() []Notice {
	ids := m.IDs()
	out := make([]Notice, 0, len(ids))
	for _, id := range ids {
		e := m.entries[id]
		out = append(out, Notice{
			Kind:           m.kind,
			ID:             id,
			Classification: e.classification,
			Alignment:      e.alignment,
			Pose:           e.pose,
			Bounds:         e.mesh.Bounds(),
		})
	}
	return out
}

// SetCollisionWorker replaces the collision worker, typically once per
// monitoring run. Nil disables collision shapes.
func (m *Manager) SetCollisionWorker(w *CollisionWorker) {
	m.collisions = w
}

func (m *Manager) role() scene.Role {
	if m.kind == spatial.KindMesh {
		return scene.RoleMesh
	}
	return scene.RoleSurface
}

func (m *Manager) styleFor(c spatial.Classification, a spatial.Alignment) style.Descriptor {
	return style.Style(c, a, m.theme(), m.renderStyle())
}

func (m *Manager) theme() spatial.Theme {
	if m.settings == nil {
		return spatial.ThemeNormal
	}
	return m.settings.Theme()
}

func (m *Manager) renderStyle() spatial.RenderStyle {
	if m.settings == nil {
		return spatial.RenderWireframe
	}
	return m.settings.RenderStyle()
}

func (m *Manager) visible() bool {
	if m.settings == nil {
		return true
	}
	return m.settings.Visible(m.kind)
}
