// Package scene defines the boundary to the rendering collaborator and an
// in-memory scene root that owns every entity by handle.
package scene

import (
	"context"
	"errors"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/banshee-data/haunt.report/internal/spatial/geometry"
	"github.com/banshee-data/haunt.report/internal/spatial/style"
)

// EntityID is a handle issued by the scene root. Zero is never issued.
type EntityID uint64

// Role tags what an entity represents, for telemetry and snapshots.
type Role string

const (
	RoleSurface    Role = "surface"
	RoleMesh       Role = "mesh"
	RoleDecoration Role = "decoration"
)

// ErrUnknownEntity is returned for operations on a handle the root does not own.
var ErrUnknownEntity = errors.New("unknown entity")

// EntitySpec describes an entity to create. Mesh is nil for decorations,
// which are drawn from a named Primitive instead.
type EntitySpec struct {
	Name      string
	Role      Role
	Mesh      *geometry.Mesh
	Primitive string
	Material  style.Descriptor
	Transform mgl32.Mat4
	Enabled   bool
}

// CollisionShape is the physics representation generated from a mesh.
type CollisionShape struct {
	TriangleCount int
	Bounds        geometry.Bounds
}

// Renderer is the rendering collaborator. Implementations parent every
// created entity under a single scene root. Calls other than
// GenerateCollision come from the consumer goroutine only.
type Renderer interface {
	CreateEntity(spec EntitySpec) (EntityID, error)
	ReplaceMesh(id EntityID, mesh geometry.Mesh) error
	SetTransform(id EntityID, pose mgl32.Mat4) error
	SetMaterial(id EntityID, material style.Descriptor) error
	SetEnabled(id EntityID, enabled bool) error
	SetCollision(id EntityID, shape *CollisionShape) error
	RemoveEntity(id EntityID) error

	// GenerateCollision builds a collision shape from a mesh. It may be
	// slow and may fail independently of visual creation; it is called
	// off the consumer goroutine.
	GenerateCollision(ctx context.Context, mesh geometry.Mesh) (*CollisionShape, error)
}
