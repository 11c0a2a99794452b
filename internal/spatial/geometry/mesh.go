// Package geometry converts raw sensor geometry buffers into canonical
// triangle meshes. Everything here is pure: identical input buffers always
// produce identical output arrays.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Mesh is a triangle mesh suitable for upload to a renderer.
// All arrays are flat: Positions and Normals hold 3 floats per vertex,
// Indices holds 3 uint32s per triangle.
type Mesh struct {
	Positions []float32
	Normals   []float32
	Indices   []uint32
}

// VertexCount returns the number of vertices.
func (m Mesh) VertexCount() int {
	return len(m.Positions) / 3
}

// TriangleCount returns the number of triangles.
func (m Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no drawable geometry.
func (m Mesh) IsEmpty() bool {
	return len(m.Positions) == 0 || len(m.Indices) == 0
}

// Bounds is the axis-aligned extent of a mesh in its local frame.
type Bounds struct {
	Min      r3.Vec
	Max      r3.Vec
	Centroid r3.Vec
}

// HalfExtents returns half the size of the box along each axis.
func (b Bounds) HalfExtents() r3.Vec {
	return r3.Scale(0.5, r3.Sub(b.Max, b.Min))
}

// Bounds computes the axis-aligned box and vertex centroid. An empty mesh
// returns the zero Bounds.
func (m Mesh) Bounds() Bounds {
	n := m.VertexCount()
	if n == 0 {
		return Bounds{}
	}
	b := Bounds{
		Min: r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)},
		Max: r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)},
	}
	var sum r3.Vec
	for i := 0; i < n; i++ {
		v := m.vertex(i)
		b.Min = r3.Vec{X: math.Min(b.Min.X, v.X), Y: math.Min(b.Min.Y, v.Y), Z: math.Min(b.Min.Z, v.Z)}
		b.Max = r3.Vec{X: math.Max(b.Max.X, v.X), Y: math.Max(b.Max.Y, v.Y), Z: math.Max(b.Max.Z, v.Z)}
		sum = r3.Add(sum, v)
	}
	b.Centroid = r3.Scale(1/float64(n), sum)
	return b
}

// SurfaceArea sums the area of every triangle, in square metres.
func (m Mesh) SurfaceArea() float64 {
	var area float64
	for t := 0; t+2 < len(m.Indices); t += 3 {
		a := m.vertex(int(m.Indices[t]))
		b := m.vertex(int(m.Indices[t+1]))
		c := m.vertex(int(m.Indices[t+2]))
		area += 0.5 * r3.Norm(r3.Cross(r3.Sub(b, a), r3.Sub(c, a)))
	}
	return area
}

func (m Mesh) vertex(i int) r3.Vec {
	return r3.Vec{
		X: float64(m.Positions[3*i]),
		Y: float64(m.Positions[3*i+1]),
		Z: float64(m.Positions[3*i+2]),
	}
}
