package scene

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/banshee-data/haunt.report/internal/spatial/geometry"
	"github.com/banshee-data/haunt.report/internal/spatial/style"
)

// ErrNoTriangles is returned by GenerateCollision for a mesh without triangles.
var ErrNoTriangles = errors.New("mesh has no triangles")

// Entity is the state the in-memory root keeps for one handle.
type Entity struct {
	ID        EntityID
	Name      string
	Role      Role
	Mesh      *geometry.Mesh
	Primitive string
	Material  style.Descriptor
	Transform mgl32.Mat4
	Enabled   bool
	Collision *CollisionShape
}

// Memory is a Renderer that keeps the scene graph in memory. It backs the
// headless daemon and the tests, and is safe for concurrent use so that
// snapshots can be taken from outside the consumer goroutine.
type Memory struct {
	mu       sync.RWMutex
	nextID   EntityID
	entities map[EntityID]*Entity

	// CollisionFunc, when set, replaces the default collision generator.
	CollisionFunc func(ctx context.Context, mesh geometry.Mesh) (*CollisionShape, error)
	// CreateFunc, when set, is consulted before creating an entity and can
	// reject it with an error.
	CreateFunc func(spec EntitySpec) error
}

// NewMemory returns an empty scene root.
func NewMemory() *Memory {
	return &Memory{entities: make(map[EntityID]*Entity)}
}

var _ Renderer = (*Memory)(nil)

func (m *Memory) CreateEntity(spec EntitySpec) (EntityID, error) {
	if m.CreateFunc != nil {
		if err := m.CreateFunc(spec); err != nil {
			return 0, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e := &Entity{
		ID:        m.nextID,
		Name:      spec.Name,
		Role:      spec.Role,
		Mesh:      copyMesh(spec.Mesh),
		Primitive: spec.Primitive,
		Material:  spec.Material,
		Transform: spec.Transform,
		Enabled:   spec.Enabled,
	}
	m.entities[e.ID] = e
	return e.ID, nil
}

func (m *Memory) ReplaceMesh(id EntityID, mesh geometry.Mesh) error {
	return m.with(id, func(e *Entity) { e.Mesh = copyMesh(&mesh) })
}

func (m *Memory) SetTransform(id EntityID, pose mgl32.Mat4) error {
	return m.with(id, func(e *Entity) { e.Transform = pose })
}

func (m *Memory) SetMaterial(id EntityID, material style.Descriptor) error {
	return m.with(id, func(e *Entity) { e.Material = material })
}

func (m *Memory) SetEnabled(id EntityID, enabled bool) error {
	return m.with(id, func(e *Entity) { e.Enabled = enabled })
}

func (m *Memory) SetCollision(id EntityID, shape *CollisionShape) error {
	return m.with(id, func(e *Entity) { e.Collision = shape })
}

func (m *Memory) RemoveEntity(id EntityID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[id]; !ok {
		return fmt.Errorf("remove %d: %w", id, ErrUnknownEntity)
	}
	delete(m.entities, id)
	return nil
}

func (m *Memory) GenerateCollision(ctx context.Context, mesh geometry.Mesh) (*CollisionShape, error) {
	if m.CollisionFunc != nil {
		return m.CollisionFunc(ctx, mesh)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if mesh.TriangleCount() == 0 {
		return nil, ErrNoTriangles
	}
	return &CollisionShape{TriangleCount: mesh.TriangleCount(), Bounds: mesh.Bounds()}, nil
}

func (m *Memory) with(id EntityID, fn func(e *Entity)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	if !ok {
		return fmt.Errorf("entity %d: %w", id, ErrUnknownEntity)
	}
	fn(e)
	return nil
}

// Entity returns a copy of the entity with the given handle.
func (m *Memory) Entity(id EntityID) (Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[id]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

// Len returns the number of live entities.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities)
}

// CountRole returns the number of live entities with the given role.
func (m *Memory) CountRole(role Role) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.entities {
		if e.Role == role {
			n++
		}
	}
	return n
}

// Entities returns copies of every live entity ordered by handle.
func (m *Memory) Entities() []Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entity, 0, len(m.entities))
	for _, e := range m.entities {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func copyMesh(mesh *geometry.Mesh) *geometry.Mesh {
	if mesh == nil {
		return nil
	}
	cp := geometry.Mesh{
		Positions: append([]float32(nil), mesh.Positions...),
		Normals:   append([]float32(nil), mesh.Normals...),
		Indices:   append([]uint32(nil), mesh.Indices...),
	}
	return &cp
}
