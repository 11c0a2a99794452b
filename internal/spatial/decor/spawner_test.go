package decor

import (
	"math/rand/v2"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/haunt.report/internal/spatial"
	"github.com/banshee-data/haunt.report/internal/spatial/geometry"
	"github.com/banshee-data/haunt.report/internal/spatial/lifecycle"
	"github.com/banshee-data/haunt.report/internal/spatial/scene"
	"github.com/banshee-data/haunt.report/internal/spatial/settings"
)

type fixture struct {
	root     *scene.Memory
	settings *settings.Settings
	surfaces *lifecycle.Manager
	spawner  *Spawner
}

func newFixture(t *testing.T, theme spatial.Theme, seed uint64) *fixture {
	t.Helper()
	root := scene.NewMemory()
	s := settings.New()
	s.SetTheme(theme)
	surfaces := lifecycle.NewManager(lifecycle.Config{Kind: spatial.KindSurface, Renderer: root, Settings: s})
	sp := New(Config{Renderer: root, Settings: s, Rand: rand.New(rand.NewPCG(seed, seed))})
	surfaces.AddListener(sp)
	return &fixture{root: root, settings: s, surfaces: surfaces, spawner: sp}
}

func surface(id spatial.FeatureID, ev spatial.Event, c spatial.Classification, a spatial.Alignment) spatial.Update {
	return spatial.Update{
		Kind:           spatial.KindSurface,
		ID:             id,
		Event:          ev,
		Pose:           mgl32.Translate3D(0, 0, -2),
		Classification: c,
		Alignment:      a,
		Geometry:       geometry.RawPlane(2, 2),
	}
}

func TestSpawner_CemeteryFloorTombstones(t *testing.T) {
	// Decorated cemetery floor, then removal.
	for seed := uint64(0); seed < 20; seed++ {
		f := newFixture(t, spatial.ThemeCemetery, seed)
		id := uuid.New()
		require.NoError(t, f.surfaces.Apply(surface(id, spatial.EventAdded, spatial.ClassFloor, spatial.AlignmentHorizontal)))

		decorations := f.spawner.Decorations(id)
		assert.GreaterOrEqual(t, len(decorations), 1)
		assert.LessOrEqual(t, len(decorations), 3)
		for _, d := range decorations {
			e, ok := f.root.Entity(d)
			require.True(t, ok)
			assert.Equal(t, scene.RoleDecoration, e.Role)
			assert.Equal(t, "tombstone", e.Primitive)
		}

		require.NoError(t, f.surfaces.Apply(surface(id, spatial.EventRemoved, spatial.ClassFloor, spatial.AlignmentHorizontal)))
		assert.Empty(t, f.spawner.Decorations(id))
		assert.Equal(t, 0, f.spawner.Count())
		assert.Equal(t, 0, f.root.Len())
	}
}

func TestSpawner_CountCoversRange(t *testing.T) {
	seen := map[int]bool{}
	for seed := uint64(0); seed < 200; seed++ {
		f := newFixture(t, spatial.ThemeCemetery, seed)
		id := uuid.New()
		require.NoError(t, f.surfaces.Apply(surface(id, spatial.EventAdded, spatial.ClassFloor, spatial.AlignmentHorizontal)))
		seen[len(f.spawner.Decorations(id))] = true
	}
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true}, seen)
}

func TestSpawner_UpdateLeavesDecorations(t *testing.T) {
	f := newFixture(t, spatial.ThemeHauntedHouse, 7)
	id := uuid.New()
	require.NoError(t, f.surfaces.Apply(surface(id, spatial.EventAdded, spatial.ClassFloor, spatial.AlignmentHorizontal)))
	before := f.spawner.Decorations(id)
	require.Len(t, before, 1)
	orb, _ := f.root.Entity(before[0])

	up := surface(id, spatial.EventUpdated, spatial.ClassFloor, spatial.AlignmentHorizontal)
	up.Geometry = geometry.RawPlane(6, 6)
	up.Pose = mgl32.Translate3D(3, 0, 0)
	require.NoError(t, f.surfaces.Apply(up))

	after := f.spawner.Decorations(id)
	assert.Equal(t, before, after)
	still, _ := f.root.Entity(after[0])
	assert.Equal(t, orb.Transform, still.Transform)
}

func TestSpawner_CategorySelection(t *testing.T) {
	tests := []struct {
		theme     spatial.Theme
		class     spatial.Classification
		alignment spatial.Alignment
		primitive string
		count     int
	}{
		{spatial.ThemeCemetery, spatial.ClassWall, spatial.AlignmentVertical, "portrait", 1},
		{spatial.ThemeHauntedHouse, spatial.ClassFloor, spatial.AlignmentHorizontal, "orb", 1},
		{spatial.ThemeHauntedHouse, spatial.ClassWall, spatial.AlignmentVertical, "ghost", 1},
		{spatial.ThemeHauntedHouse, spatial.ClassCeiling, spatial.AlignmentHorizontal, "bat", 1},
		{spatial.ThemeEctoplasm, spatial.ClassFloor, spatial.AlignmentHorizontal, "slime_puddle", 1},
		{spatial.ThemeEctoplasm, spatial.ClassWall, spatial.AlignmentVertical, "drip", 1},
		{spatial.ThemeParanormal, spatial.ClassCeiling, spatial.AlignmentHorizontal, "floating_candle", 1},
		{spatial.ThemeParanormal, spatial.ClassTable, spatial.AlignmentHorizontal, "planchette", 1},
		{spatial.ThemeParanormal, spatial.ClassFloor, spatial.AlignmentHorizontal, "", 0},
		{spatial.ThemeCemetery, spatial.ClassSeat, spatial.AlignmentHorizontal, "", 0},
		{spatial.ThemeCemetery, spatial.ClassFloor, spatial.AlignmentVertical, "", 0},
		{spatial.ThemeNormal, spatial.ClassFloor, spatial.AlignmentHorizontal, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.theme.String()+"/"+tt.class.String()+"/"+tt.alignment.String(), func(t *testing.T) {
			f := newFixture(t, tt.theme, 1)
			id := uuid.New()
			require.NoError(t, f.surfaces.Apply(surface(id, spatial.EventAdded, tt.class, tt.alignment)))

			decorations := f.spawner.Decorations(id)
			require.Len(t, decorations, tt.count)
			for _, d := range decorations {
				e, _ := f.root.Entity(d)
				assert.Equal(t, tt.primitive, e.Primitive)
			}
		})
	}
}

func TestSpawner_ClearRemovesEverything(t *testing.T) {
	f := newFixture(t, spatial.ThemeHauntedHouse, 3)
	a, b := uuid.New(), uuid.New()
	require.NoError(t, f.surfaces.Apply(surface(a, spatial.EventAdded, spatial.ClassFloor, spatial.AlignmentHorizontal)))
	require.NoError(t, f.surfaces.Apply(surface(b, spatial.EventAdded, spatial.ClassWall, spatial.AlignmentVertical)))
	require.Equal(t, 2, f.spawner.Count())
	require.Equal(t, 2, f.spawner.Parents())

	f.spawner.Clear()
	assert.Equal(t, 0, f.spawner.Count())
	assert.Equal(t, 0, f.spawner.Parents())
	assert.Equal(t, 0, f.root.CountRole(scene.RoleDecoration))
	assert.Equal(t, 2, f.root.CountRole(scene.RoleSurface))
}

func TestSpawner_IgnoresMeshes(t *testing.T) {
	root := scene.NewMemory()
	s := settings.New()
	s.SetTheme(spatial.ThemeCemetery)
	sp := New(Config{Renderer: root, Settings: s, Rand: rand.New(rand.NewPCG(1, 1))})

	sp.FeatureAdded(lifecycle.Notice{Kind: spatial.KindMesh, ID: uuid.New(), Classification: spatial.ClassFloor, Alignment: spatial.AlignmentHorizontal})
	assert.Equal(t, 0, sp.Count())
	sp.FeatureRemoved(spatial.KindMesh, uuid.New())
	assert.Equal(t, 0, root.Len())
}

func TestSpawner_PlacementStaysOnParent(t *testing.T) {
	f := newFixture(t, spatial.ThemeCemetery, 11)
	id := uuid.New()
	require.NoError(t, f.surfaces.Apply(surface(id, spatial.EventAdded, spatial.ClassFloor, spatial.AlignmentHorizontal)))

	for _, d := range f.spawner.Decorations(id) {
		e, _ := f.root.Entity(d)
		pos := e.Transform.Col(3).Vec3()
		// Plane is 2x2 centred on the parent pose at z=-2.
		assert.InDelta(t, 0, pos.X(), 1.0)
		assert.InDelta(t, -2, pos.Z(), 1.0)
		assert.InDelta(t, 0, pos.Y(), 1e-5)
	}
}

func TestSpawner_DeterministicWithSeed(t *testing.T) {
	place := func() []mgl32.Mat4 {
		f := newFixture(t, spatial.ThemeCemetery, 42)
		id := uuid.New()
		require.NoError(t, f.surfaces.Apply(surface(id, spatial.EventAdded, spatial.ClassFloor, spatial.AlignmentHorizontal)))
		var out []mgl32.Mat4
		for _, d := range f.spawner.Decorations(id) {
			e, _ := f.root.Entity(d)
			out = append(out, e.Transform)
		}
		return out
	}
	assert.Equal(t, place(), place())
}

func TestSpawner_FollowsSurfaceVisibility(t *testing.T) {
	f := newFixture(t, spatial.ThemeHauntedHouse, 5)
	f.settings.SetVisible(spatial.KindSurface, false)
	id := uuid.New()
	require.NoError(t, f.surfaces.Apply(surface(id, spatial.EventAdded, spatial.ClassWall, spatial.AlignmentVertical)))

	ghost := f.spawner.Decorations(id)[0]
	e, _ := f.root.Entity(ghost)
	assert.False(t, e.Enabled)

	f.spawner.SetVisibility(true)
	e, _ = f.root.Entity(ghost)
	assert.True(t, e.Enabled)
}

func TestProduces(t *testing.T) {
	assert.False(t, Produces(spatial.ThemeNormal))
	for _, theme := range []spatial.Theme{spatial.ThemeCemetery, spatial.ThemeHauntedHouse, spatial.ThemeEctoplasm, spatial.ThemeParanormal} {
		assert.True(t, Produces(theme), theme.String())
	}
}
