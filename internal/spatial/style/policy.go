// Package style maps a feature's classification and alignment, under the
// active theme and render style, to the material a renderer should use.
package style

import (
	"fmt"
	"image/color"

	"github.com/banshee-data/haunt.report/internal/spatial"
)

// Descriptor is the renderer-independent description of a material.
type Descriptor struct {
	Name      string // e.g. "cemetery/floor/solid", used in telemetry
	Color     color.NRGBA
	Opacity   float32 // 0..1
	Wireframe bool
	Emissive  bool
}

// swatch is a themed base colour before the render style is applied.
type swatch struct {
	tag      string
	color    color.NRGBA
	opacity  float32
	emissive bool
}

// neutral is used for anything a theme table does not name.
var neutral = swatch{tag: "neutral", color: color.NRGBA{R: 0x99, G: 0x99, B: 0x99, A: 0xff}, opacity: 0.6}

// alignment fallbacks for unclassified planes.
var (
	plainHorizontal = swatch{tag: "horizontal", color: color.NRGBA{R: 0x3d, G: 0x8b, B: 0xd9, A: 0xff}, opacity: 0.6}
	plainVertical   = swatch{tag: "vertical", color: color.NRGBA{R: 0xd9, G: 0x8b, B: 0x3d, A: 0xff}, opacity: 0.6}
)

var palettes = map[spatial.Theme]map[spatial.Classification]swatch{
	spatial.ThemeNormal: {
		spatial.ClassFloor:   {tag: "floor", color: color.NRGBA{R: 0x2e, G: 0xb8, B: 0x5c, A: 0xff}, opacity: 0.6},
		spatial.ClassWall:    {tag: "wall", color: color.NRGBA{R: 0x3d, G: 0x8b, B: 0xd9, A: 0xff}, opacity: 0.6},
		spatial.ClassCeiling: {tag: "ceiling", color: color.NRGBA{R: 0xf2, G: 0xf2, B: 0xf2, A: 0xff}, opacity: 0.6},
		spatial.ClassTable:   {tag: "table", color: color.NRGBA{R: 0xe6, G: 0xa1, B: 0x17, A: 0xff}, opacity: 0.6},
		spatial.ClassSeat:    {tag: "seat", color: color.NRGBA{R: 0x9b, G: 0x59, B: 0xb6, A: 0xff}, opacity: 0.6},
		spatial.ClassDoor:    {tag: "door", color: color.NRGBA{R: 0x8e, G: 0x5a, B: 0x2b, A: 0xff}, opacity: 0.6},
		spatial.ClassWindow:  {tag: "window", color: color.NRGBA{R: 0x7f, G: 0xdb, B: 0xff, A: 0xff}, opacity: 0.4},
	},
	spatial.ThemeHauntedHouse: {
		spatial.ClassFloor:   {tag: "floor", color: color.NRGBA{R: 0x3b, G: 0x2a, B: 0x1e, A: 0xff}, opacity: 0.8},
		spatial.ClassWall:    {tag: "wall", color: color.NRGBA{R: 0x2c, G: 0x1e, B: 0x3f, A: 0xff}, opacity: 0.8},
		spatial.ClassCeiling: {tag: "ceiling", color: color.NRGBA{R: 0x1a, G: 0x1a, B: 0x1a, A: 0xff}, opacity: 0.8},
		spatial.ClassDoor:    {tag: "door", color: color.NRGBA{R: 0x5c, G: 0x0a, B: 0x0a, A: 0xff}, opacity: 0.9},
		spatial.ClassWindow:  {tag: "window", color: color.NRGBA{R: 0xb0, G: 0xff, B: 0xb0, A: 0xff}, opacity: 0.5, emissive: true},
	},
	spatial.ThemeEctoplasm: {
		spatial.ClassFloor:   {tag: "floor", color: color.NRGBA{R: 0x39, G: 0xff, B: 0x14, A: 0xff}, opacity: 0.5, emissive: true},
		spatial.ClassWall:    {tag: "wall", color: color.NRGBA{R: 0x7c, G: 0xff, B: 0x4f, A: 0xff}, opacity: 0.4, emissive: true},
		spatial.ClassCeiling: {tag: "ceiling", color: color.NRGBA{R: 0xa8, G: 0xff, B: 0x8a, A: 0xff}, opacity: 0.4, emissive: true},
		spatial.ClassTable:   {tag: "table", color: color.NRGBA{R: 0x4f, G: 0xc9, B: 0x2e, A: 0xff}, opacity: 0.5, emissive: true},
	},
	spatial.ThemeParanormal: {
		spatial.ClassFloor:   {tag: "floor", color: color.NRGBA{R: 0x1b, G: 0x00, B: 0x33, A: 0xff}, opacity: 0.7},
		spatial.ClassWall:    {tag: "wall", color: color.NRGBA{R: 0x4b, G: 0x00, B: 0x82, A: 0xff}, opacity: 0.6, emissive: true},
		spatial.ClassCeiling: {tag: "ceiling", color: color.NRGBA{R: 0x8a, G: 0x2b, B: 0xe2, A: 0xff}, opacity: 0.5, emissive: true},
		spatial.ClassTable:   {tag: "table", color: color.NRGBA{R: 0xd4, G: 0xaf, B: 0x37, A: 0xff}, opacity: 0.8},
		spatial.ClassSeat:    {tag: "seat", color: color.NRGBA{R: 0x30, G: 0x19, B: 0x34, A: 0xff}, opacity: 0.7},
	},
	spatial.ThemeCemetery: {
		spatial.ClassFloor:   {tag: "floor", color: color.NRGBA{R: 0x2f, G: 0x3b, B: 0x1f, A: 0xff}, opacity: 0.9},
		spatial.ClassWall:    {tag: "wall", color: color.NRGBA{R: 0x6e, G: 0x6e, B: 0x6e, A: 0xff}, opacity: 0.8},
		spatial.ClassCeiling: {tag: "ceiling", color: color.NRGBA{R: 0x0b, G: 0x0c, B: 0x1a, A: 0xff}, opacity: 0.8},
		spatial.ClassDoor:    {tag: "door", color: color.NRGBA{R: 0x3a, G: 0x2f, B: 0x2a, A: 0xff}, opacity: 0.9},
	},
}

// transparentCeiling caps opacity under RenderTransparent.
const transparentCeiling = 0.5

// Style returns the material for a feature. It is total over every
// classification, alignment, theme and render style: combinations without a
// themed entry fall back to an alignment tint for unclassified planes, then
// to a neutral grey.
func Style(c spatial.Classification, a spatial.Alignment, t spatial.Theme, r spatial.RenderStyle) Descriptor {
	sw := lookup(c, a, t)

	d := Descriptor{
		Color:    sw.color,
		Opacity:  sw.opacity,
		Emissive: sw.emissive,
	}
	switch r {
	case spatial.RenderWireframe:
		d.Wireframe = true
		d.Opacity = 1
	case spatial.RenderTransparent:
		if d.Opacity > transparentCeiling {
			d.Opacity = transparentCeiling
		}
	default:
		d.Opacity = 1
	}
	d.Color.A = uint8(d.Opacity*255 + 0.5)
	d.Name = fmt.Sprintf("%s/%s/%s", themeTag(t), sw.tag, r)
	return d
}

func lookup(c spatial.Classification, a spatial.Alignment, t spatial.Theme) swatch {
	if palette, ok := palettes[t]; ok {
		if sw, ok := palette[c]; ok {
			return sw
		}
	}
	if c == spatial.ClassUnknown {
		switch a {
		case spatial.AlignmentHorizontal:
			return plainHorizontal
		case spatial.AlignmentVertical:
			return plainVertical
		}
	}
	return neutral
}

func themeTag(t spatial.Theme) string {
	if _, ok := palettes[t]; ok {
		return t.String()
	}
	return "default"
}
