package decor

import (
	"image/color"

	"github.com/banshee-data/haunt.report/internal/spatial"
)

// Rule describes the decorations spawned on one kind of surface under a theme.
type Rule struct {
	Classification spatial.Classification
	Alignment      spatial.Alignment
	Primitive      string
	Min, Max       int     // inclusive count range
	Scale          float32 // uniform scale applied to the primitive
	Lift           float32 // offset along the surface normal, metres
	Color          color.NRGBA
	Emissive       bool
}

var (
	boneWhite  = color.NRGBA{R: 0xd8, G: 0xd2, B: 0xc4, A: 0xff}
	stoneGrey  = color.NRGBA{R: 0x7a, G: 0x7a, B: 0x78, A: 0xff}
	spiritBlue = color.NRGBA{R: 0x9f, G: 0xd8, B: 0xff, A: 0xff}
	batBlack   = color.NRGBA{R: 0x14, G: 0x10, B: 0x14, A: 0xff}
	slimeGreen = color.NRGBA{R: 0x5c, G: 0xff, B: 0x2b, A: 0xff}
	candleGold = color.NRGBA{R: 0xff, G: 0xc8, B: 0x57, A: 0xff}
	oakBrown   = color.NRGBA{R: 0x6b, G: 0x44, B: 0x23, A: 0xff}
)

var rules = map[spatial.Theme][]Rule{
	spatial.ThemeCemetery: {
		{Classification: spatial.ClassFloor, Alignment: spatial.AlignmentHorizontal, Primitive: "tombstone", Min: 1, Max: 3, Scale: 0.4, Color: stoneGrey},
		{Classification: spatial.ClassWall, Alignment: spatial.AlignmentVertical, Primitive: "portrait", Min: 1, Max: 1, Scale: 0.5, Lift: 0.02, Color: oakBrown},
	},
	spatial.ThemeHauntedHouse: {
		{Classification: spatial.ClassFloor, Alignment: spatial.AlignmentHorizontal, Primitive: "orb", Min: 1, Max: 1, Scale: 0.15, Lift: 0.5, Color: spiritBlue, Emissive: true},
		{Classification: spatial.ClassWall, Alignment: spatial.AlignmentVertical, Primitive: "ghost", Min: 1, Max: 1, Scale: 0.6, Lift: 0.3, Color: boneWhite, Emissive: true},
		{Classification: spatial.ClassCeiling, Alignment: spatial.AlignmentHorizontal, Primitive: "bat", Min: 1, Max: 1, Scale: 0.2, Lift: 0.25, Color: batBlack},
	},
	spatial.ThemeEctoplasm: {
		{Classification: spatial.ClassFloor, Alignment: spatial.AlignmentHorizontal, Primitive: "slime_puddle", Min: 1, Max: 1, Scale: 0.5, Lift: 0.005, Color: slimeGreen, Emissive: true},
		{Classification: spatial.ClassWall, Alignment: spatial.AlignmentVertical, Primitive: "drip", Min: 1, Max: 1, Scale: 0.3, Lift: 0.01, Color: slimeGreen, Emissive: true},
	},
	spatial.ThemeParanormal: {
		{Classification: spatial.ClassCeiling, Alignment: spatial.AlignmentHorizontal, Primitive: "floating_candle", Min: 1, Max: 1, Scale: 0.2, Lift: 0.4, Color: candleGold, Emissive: true},
		{Classification: spatial.ClassTable, Alignment: spatial.AlignmentHorizontal, Primitive: "planchette", Min: 1, Max: 1, Scale: 0.15, Lift: 0.01, Color: oakBrown},
	},
}

// Produces reports whether theme t spawns any decorations.
func Produces(t spatial.Theme) bool {
	return len(rules[t]) > 0
}

// RuleFor returns the rule matching a surface under theme t.
func RuleFor(t spatial.Theme, c spatial.Classification, a spatial.Alignment) (Rule, bool) {
	for _, r := range rules[t] {
		if r.Classification == c && r.Alignment == a {
			return r, true
		}
	}
	return Rule{}, false
}
