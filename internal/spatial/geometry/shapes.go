package geometry

import "github.com/banshee-data/haunt.report/internal/spatial"

// RawPlane builds the raw buffers a sensor reports for a flat rectangular
// surface centred on the origin in its local XZ plane: four float32
// vertices, no normals, two uint16 triangles.
func RawPlane(width, depth float32) spatial.RawGeometry {
	hx, hz := width/2, depth/2
	return spatial.RawGeometry{
		Vertices: spatial.PackFloat32([]float32{
			-hx, 0, -hz,
			hx, 0, -hz,
			hx, 0, hz,
			-hx, 0, hz,
		}, 3),
		Faces: spatial.PackUint16([]uint16{0, 1, 2, 0, 2, 3}, 3),
	}
}

// RawBox builds an axis-aligned box with per-face normals and uint32
// indices, the shape reconstructed-mesh chunks typically arrive in.
func RawBox(sx, sy, sz float32) spatial.RawGeometry {
	x, y, z := sx/2, sy/2, sz/2
	type face struct {
		n  [3]float32
		vs [4][3]float32
	}
	faces := []face{
		{[3]float32{0, 0, 1}, [4][3]float32{{-x, -y, z}, {x, -y, z}, {x, y, z}, {-x, y, z}}},
		{[3]float32{0, 0, -1}, [4][3]float32{{x, -y, -z}, {-x, -y, -z}, {-x, y, -z}, {x, y, -z}}},
		{[3]float32{1, 0, 0}, [4][3]float32{{x, -y, z}, {x, -y, -z}, {x, y, -z}, {x, y, z}}},
		{[3]float32{-1, 0, 0}, [4][3]float32{{-x, -y, -z}, {-x, -y, z}, {-x, y, z}, {-x, y, -z}}},
		{[3]float32{0, 1, 0}, [4][3]float32{{-x, y, z}, {x, y, z}, {x, y, -z}, {-x, y, -z}}},
		{[3]float32{0, -1, 0}, [4][3]float32{{-x, -y, -z}, {x, -y, -z}, {x, -y, z}, {-x, -y, z}}},
	}

	var positions, normals []float32
	var indices []uint32
	for i, f := range faces {
		for _, v := range f.vs {
			positions = append(positions, v[:]...)
			normals = append(normals, f.n[:]...)
		}
		base := uint32(4 * i)
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}

	n := spatial.PackFloat32(normals, 3)
	return spatial.RawGeometry{
		Vertices: spatial.PackFloat32(positions, 3),
		Normals:  &n,
		Faces:    spatial.PackUint32(indices, 3),
	}
}
