package publisher

import (
	"fmt"
	"image/color"
	"time"

	"github.com/banshee-data/haunt.report/internal/spatial/engine"
	"github.com/banshee-data/haunt.report/internal/spatial/scene"
)

// Frame is one scene snapshot sent to websocket clients.
type Frame struct {
	Seq      uint64        `json:"seq"`
	At       time.Time     `json:"at"`
	Status   engine.Status `json:"status"`
	Entities []EntityView  `json:"entities"`
}

// EntityView is the wire form of a scene entity. Geometry is summarised
// rather than sent in full.
type EntityView struct {
	ID        uint64     `json:"id"`
	Name      string     `json:"name"`
	Role      scene.Role `json:"role"`
	Primitive string     `json:"primitive,omitempty"`
	Material  string     `json:"material"`
	Color     string     `json:"color"`
	Opacity   float32    `json:"opacity"`
	Wireframe bool       `json:"wireframe,omitempty"`
	Emissive  bool       `json:"emissive,omitempty"`
	Enabled   bool       `json:"enabled"`
	Position  [3]float32 `json:"position"`
	Vertices  int        `json:"vertices,omitempty"`
	Triangles int        `json:"triangles,omitempty"`
	Collider  bool       `json:"collider,omitempty"`
}

// BuildFrame converts scene entities into a frame. Entities are expected in
// handle order, as scene.Memory returns them.
func BuildFrame(seq uint64, at time.Time, st engine.Status, entities []scene.Entity) *Frame {
	f := &Frame{
		Seq:      seq,
		At:       at,
		Status:   st,
		Entities: make([]EntityView, 0, len(entities)),
	}
	for _, e := range entities {
		pos := e.Transform.Col(3).Vec3()
		v := EntityView{
			ID:        uint64(e.ID),
			Name:      e.Name,
			Role:      e.Role,
			Primitive: e.Primitive,
			Material:  e.Material.Name,
			Color:     hexColor(e.Material.Color),
			Opacity:   e.Material.Opacity,
			Wireframe: e.Material.Wireframe,
			Emissive:  e.Material.Emissive,
			Enabled:   e.Enabled,
			Position:  [3]float32{pos.X(), pos.Y(), pos.Z()},
			Collider:  e.Collision != nil,
		}
		if e.Mesh != nil {
			v.Vertices = e.Mesh.VertexCount()
			v.Triangles = e.Mesh.TriangleCount()
		}
		f.Entities = append(f.Entities, v)
	}
	return f
}

func hexColor(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
