package spatial

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ComponentFormat is the scalar encoding of one component in a raw buffer.
type ComponentFormat int

const (
	FormatFloat32 ComponentFormat = iota
	FormatFloat64
	FormatUint8
	FormatUint16
	FormatUint32
)

// Size returns the width of one component in bytes, or 0 for an unknown format.
func (f ComponentFormat) Size() int {
	switch f {
	case FormatFloat32, FormatUint32:
		return 4
	case FormatFloat64:
		return 8
	case FormatUint8:
		return 1
	case FormatUint16:
		return 2
	default:
		return 0
	}
}

func (f ComponentFormat) String() string {
	switch f {
	case FormatFloat32:
		return "float32"
	case FormatFloat64:
		return "float64"
	case FormatUint8:
		return "uint8"
	case FormatUint16:
		return "uint16"
	case FormatUint32:
		return "uint32"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Source describes a strided little-endian buffer of Count elements, each
// holding Components scalars of Format. A zero Stride means tightly packed.
type Source struct {
	Buffer     []byte
	Format     ComponentFormat
	Count      int
	Components int
	Offset     int
	Stride     int
}

// ElementSize returns the packed size of one element in bytes.
func (s Source) ElementSize() int {
	return s.Components * s.Format.Size()
}

// EffectiveStride returns Stride, or ElementSize when Stride is zero.
func (s Source) EffectiveStride() int {
	if s.Stride == 0 {
		return s.ElementSize()
	}
	return s.Stride
}

// Empty reports whether the source describes no elements.
func (s Source) Empty() bool {
	return s.Count == 0 || len(s.Buffer) == 0
}

// RawGeometry is the opaque geometry payload attached to an update.
// Normals is nil for flat surfaces.
type RawGeometry struct {
	Vertices Source
	Normals  *Source
	Faces    Source
}

// PackFloat32 builds a tightly packed little-endian float32 source from a
// flat slice. len(values) must be a multiple of components.
func PackFloat32(values []float32, components int) Source {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return Source{Buffer: buf, Format: FormatFloat32, Count: len(values) / components, Components: components}
}

// PackUint16 builds a tightly packed little-endian uint16 index source.
func PackUint16(values []uint16, components int) Source {
	buf := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(buf[2*i:], v)
	}
	return Source{Buffer: buf, Format: FormatUint16, Count: len(values) / components, Components: components}
}

// PackUint32 builds a tightly packed little-endian uint32 index source.
func PackUint32(values []uint32, components int) Source {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], v)
	}
	return Source{Buffer: buf, Format: FormatUint32, Count: len(values) / components, Components: components}
}
