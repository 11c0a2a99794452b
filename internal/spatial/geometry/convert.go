package geometry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/haunt.report/internal/spatial"
)

var (
	// ErrEmptyGeometry is returned when the vertex or face buffer holds no elements.
	ErrEmptyGeometry = errors.New("empty geometry buffer")
	// ErrMalformedGeometry is returned when a buffer cannot be decoded safely.
	ErrMalformedGeometry = errors.New("malformed geometry buffer")
)

// ConversionError reports which buffer failed to convert and why.
type ConversionError struct {
	Buffer string // "vertices", "normals" or "faces"
	Reason string
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s: %s: %v", e.Buffer, e.Reason, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

func malformed(buffer, format string, args ...interface{}) error {
	return &ConversionError{Buffer: buffer, Reason: fmt.Sprintf(format, args...), Err: ErrMalformedGeometry}
}

// upNormal is assigned to every vertex of geometry that arrives without normals.
var upNormal = [3]float32{0, 1, 0}

// Convert decodes raw sensor buffers into a canonical Mesh. Missing normals
// are synthesised as per-vertex up vectors, index widths are widened to
// uint32, and empty or malformed buffers return a *ConversionError.
func Convert(raw spatial.RawGeometry) (Mesh, error) {
	if raw.Vertices.Empty() {
		return Mesh{}, &ConversionError{Buffer: "vertices", Reason: "no vertices", Err: ErrEmptyGeometry}
	}
	if raw.Faces.Empty() {
		return Mesh{}, &ConversionError{Buffer: "faces", Reason: "no faces", Err: ErrEmptyGeometry}
	}

	positions, err := readVectors("vertices", raw.Vertices)
	if err != nil {
		return Mesh{}, err
	}
	vertexCount := raw.Vertices.Count

	var normals []float32
	if raw.Normals != nil && !raw.Normals.Empty() {
		if raw.Normals.Count != vertexCount {
			return Mesh{}, malformed("normals", "count %d does not match %d vertices", raw.Normals.Count, vertexCount)
		}
		normals, err = readVectors("normals", *raw.Normals)
		if err != nil {
			return Mesh{}, err
		}
	} else {
		normals = make([]float32, 0, 3*vertexCount)
		for i := 0; i < vertexCount; i++ {
			normals = append(normals, upNormal[:]...)
		}
	}

	indices, err := readIndices(raw.Faces, vertexCount)
	if err != nil {
		return Mesh{}, err
	}

	return Mesh{Positions: positions, Normals: normals, Indices: indices}, nil
}

// checkLayout verifies that every element of src lies inside its buffer.
func checkLayout(name string, src spatial.Source) error {
	size := src.Format.Size()
	if size == 0 {
		return malformed(name, "unsupported component format %s", src.Format)
	}
	if src.Count < 0 || src.Offset < 0 || src.Stride < 0 {
		return malformed(name, "negative count, offset or stride")
	}
	elem := src.ElementSize()
	stride := src.EffectiveStride()
	if stride < elem {
		return malformed(name, "stride %d smaller than element size %d", stride, elem)
	}
	// Bounds are checked without multiplying by Count so sensor-supplied
	// sizes cannot overflow past the check.
	if src.Offset > len(src.Buffer) {
		return malformed(name, "offset %d beyond %d byte buffer", src.Offset, len(src.Buffer))
	}
	if src.Count == 0 {
		return nil
	}
	avail := len(src.Buffer) - src.Offset - elem
	if avail < 0 || src.Count-1 > avail/stride {
		return malformed(name, "buffer holds %d bytes, too few for %d elements at stride %d",
			len(src.Buffer), src.Count, stride)
	}
	return nil
}

// readVectors decodes a 3-component float source into a flat float32 slice.
func readVectors(name string, src spatial.Source) ([]float32, error) {
	if src.Components != 3 {
		return nil, malformed(name, "expected 3 components, got %d", src.Components)
	}
	if src.Format != spatial.FormatFloat32 && src.Format != spatial.FormatFloat64 {
		return nil, malformed(name, "expected float components, got %s", src.Format)
	}
	if err := checkLayout(name, src); err != nil {
		return nil, err
	}

	out := make([]float32, 0, 3*src.Count)
	stride := src.EffectiveStride()
	width := src.Format.Size()
	for i := 0; i < src.Count; i++ {
		base := src.Offset + i*stride
		for c := 0; c < 3; c++ {
			off := base + c*width
			var v float32
			if src.Format == spatial.FormatFloat32 {
				v = math.Float32frombits(binary.LittleEndian.Uint32(src.Buffer[off:]))
			} else {
				v = float32(math.Float64frombits(binary.LittleEndian.Uint64(src.Buffer[off:])))
			}
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return nil, malformed(name, "non-finite component at element %d", i)
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// readIndices decodes a triangle face source of any unsigned width into uint32s.
func readIndices(src spatial.Source, vertexCount int) ([]uint32, error) {
	if src.Components != 3 {
		return nil, malformed("faces", "expected triangles, got %d indices per face", src.Components)
	}
	switch src.Format {
	case spatial.FormatUint8, spatial.FormatUint16, spatial.FormatUint32:
	default:
		return nil, malformed("faces", "expected unsigned integer indices, got %s", src.Format)
	}
	if err := checkLayout("faces", src); err != nil {
		return nil, err
	}

	out := make([]uint32, 0, 3*src.Count)
	stride := src.EffectiveStride()
	width := src.Format.Size()
	for i := 0; i < src.Count; i++ {
		base := src.Offset + i*stride
		for c := 0; c < 3; c++ {
			off := base + c*width
			var idx uint32
			switch src.Format {
			case spatial.FormatUint8:
				idx = uint32(src.Buffer[off])
			case spatial.FormatUint16:
				idx = uint32(binary.LittleEndian.Uint16(src.Buffer[off:]))
			default:
				idx = binary.LittleEndian.Uint32(src.Buffer[off:])
			}
			if int64(idx) >= int64(vertexCount) {
				return nil, malformed("faces", "index %d out of range for %d vertices", idx, vertexCount)
			}
			out = append(out, idx)
		}
	}
	return out, nil
}
