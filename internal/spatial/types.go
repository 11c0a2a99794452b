// Package spatial holds the data model shared by the scene synchronisation
// pipeline: sensed features, their update events, and the global policy
// inputs (theme, render style) that shape how they are drawn.
package spatial

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// FeatureID is the stable identifier a sensor assigns to a feature.
type FeatureID = uuid.UUID

// FeatureKind separates detected surfaces from reconstructed mesh chunks.
// Each kind has its own lifecycle manager and update stream.
type FeatureKind int

const (
	KindSurface FeatureKind = iota
	KindMesh
)

// Kinds lists every feature kind in stream order.
var Kinds = []FeatureKind{KindSurface, KindMesh}

func (k FeatureKind) String() string {
	switch k {
	case KindSurface:
		return "surface"
	case KindMesh:
		return "mesh"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is the transition an update applies to a feature.
type Event int

const (
	EventAdded Event = iota
	EventUpdated
	EventRemoved
)

func (e Event) String() string {
	switch e {
	case EventAdded:
		return "added"
	case EventUpdated:
		return "updated"
	case EventRemoved:
		return "removed"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Classification is the semantic category the sensor assigned to a feature.
type Classification int

const (
	ClassUnknown Classification = iota
	ClassFloor
	ClassWall
	ClassCeiling
	ClassTable
	ClassSeat
	ClassDoor
	ClassWindow
)

// Classifications lists every classification, unknown first.
var Classifications = []Classification{
	ClassUnknown, ClassFloor, ClassWall, ClassCeiling,
	ClassTable, ClassSeat, ClassDoor, ClassWindow,
}

var classificationNames = map[Classification]string{
	ClassUnknown: "unknown",
	ClassFloor:   "floor",
	ClassWall:    "wall",
	ClassCeiling: "ceiling",
	ClassTable:   "table",
	ClassSeat:    "seat",
	ClassDoor:    "door",
	ClassWindow:  "window",
}

func (c Classification) String() string {
	if name, ok := classificationNames[c]; ok {
		return name
	}
	return fmt.Sprintf("classification(%d)", int(c))
}

// Alignment is the orientation of a detected plane. Mesh features carry
// AlignmentNone.
type Alignment int

const (
	AlignmentNone Alignment = iota
	AlignmentHorizontal
	AlignmentVertical
)

// Alignments lists every alignment value.
var Alignments = []Alignment{AlignmentNone, AlignmentHorizontal, AlignmentVertical}

func (a Alignment) String() string {
	switch a {
	case AlignmentNone:
		return "none"
	case AlignmentHorizontal:
		return "horizontal"
	case AlignmentVertical:
		return "vertical"
	default:
		return fmt.Sprintf("alignment(%d)", int(a))
	}
}

// Theme selects both the style palette and the decoration rule set.
type Theme int

const (
	ThemeNormal Theme = iota
	ThemeHauntedHouse
	ThemeEctoplasm
	ThemeParanormal
	ThemeCemetery
)

// Themes lists every theme.
var Themes = []Theme{ThemeNormal, ThemeHauntedHouse, ThemeEctoplasm, ThemeParanormal, ThemeCemetery}

var themeNames = map[Theme]string{
	ThemeNormal:       "normal",
	ThemeHauntedHouse: "hauntedHouse",
	ThemeEctoplasm:    "ectoplasm",
	ThemeParanormal:   "paranormal",
	ThemeCemetery:     "cemetery",
}

func (t Theme) String() string {
	if name, ok := themeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("theme(%d)", int(t))
}

// ParseTheme accepts the theme names produced by Theme.String, case-insensitively.
func ParseTheme(s string) (Theme, error) {
	for t, name := range themeNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return ThemeNormal, fmt.Errorf("unknown theme %q", s)
}

// RenderStyle is the drawing mode, orthogonal to Theme.
type RenderStyle int

const (
	RenderWireframe RenderStyle = iota
	RenderSolid
	RenderTransparent
)

// RenderStyles lists every render style.
var RenderStyles = []RenderStyle{RenderWireframe, RenderSolid, RenderTransparent}

func (r RenderStyle) String() string {
	switch r {
	case RenderWireframe:
		return "wireframe"
	case RenderSolid:
		return "solid"
	case RenderTransparent:
		return "transparent"
	default:
		return fmt.Sprintf("render_style(%d)", int(r))
	}
}

// ParseRenderStyle accepts the names produced by RenderStyle.String.
func ParseRenderStyle(s string) (RenderStyle, error) {
	for _, r := range RenderStyles {
		if strings.EqualFold(r.String(), strings.TrimSpace(s)) {
			return r, nil
		}
	}
	return RenderWireframe, fmt.Errorf("unknown render style %q", s)
}

// Update is one event from a sensor stream. Removal events only need Kind,
// ID and Event; the remaining fields are ignored for them.
type Update struct {
	Kind           FeatureKind
	ID             FeatureID
	Event          Event
	Pose           mgl32.Mat4 // feature -> world, column-major
	Classification Classification
	Alignment      Alignment
	Geometry       RawGeometry
}

func (u Update) String() string {
	return fmt.Sprintf("%s %s %s", u.Kind, u.Event, u.ID)
}
