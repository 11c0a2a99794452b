// Package synthetic provides a sensor session that scans a made-up room, for
// demos and tests.
package synthetic

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/banshee-data/haunt.report/internal/spatial"
	"github.com/banshee-data/haunt.report/internal/spatial/geometry"
	"github.com/banshee-data/haunt.report/internal/timeutil"
)

// ErrStopped is returned when updates are requested from a stopped session.
var ErrStopped = errors.New("synthetic session stopped")

// Session emits a scripted room scan: the room's surfaces and mesh chunks
// are added, refined by updates, and one surface is removed. With Loop set
// it then keeps refining random features until the context ends.
type Session struct {
	// Configuration
	MeshCount int           // reconstructed mesh chunks in the script
	Interval  time.Duration // delay between looped events
	Loop      bool          // keep emitting after the script
	FaultRate float64       // fraction of looped updates sent with empty geometry
	Clock     timeutil.Clock

	seed       uint64
	authorized atomic.Bool
	running    atomic.Bool
	emitted    atomic.Uint64
	pose       atomic.Pointer[mgl32.Mat4]

	mu      sync.Mutex
	stop    chan struct{}
	streams sync.WaitGroup
}

// NewSession creates an authorized session seeded for reproducible output.
func NewSession(seed uint64) *Session {
	s := &Session{
		MeshCount: 6,
		Interval:  250 * time.Millisecond,
		Clock:     timeutil.RealClock{},
		seed:      seed,
	}
	s.authorized.Store(true)
	return s
}

// Run marks the session as running.
func (s *Session) Run() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return
	}
	s.stop = make(chan struct{})
	s.running.Store(true)
}

// Deauthorize simulates the user revoking sensor access.
func (s *Session) Deauthorize() { s.authorized.Store(false) }

func (s *Session) Authorized() bool { return s.authorized.Load() }
func (s *Session) Running() bool    { return s.running.Load() }

// Stop ends the session and waits for its stream goroutines.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.running.Load() {
		s.running.Store(false)
		close(s.stop)
	}
	s.mu.Unlock()
	s.streams.Wait()
}

// Emitted returns how many updates the session has sent.
func (s *Session) Emitted() uint64 { return s.emitted.Load() }

// LatestPose returns the simulated device pose, walking a circle in the room.
func (s *Session) LatestPose() (mgl32.Mat4, bool) {
	p := s.pose.Load()
	if p == nil {
		return mgl32.Mat4{}, false
	}
	return *p, true
}

// SurfaceUpdates streams the surface script.
func (s *Session) SurfaceUpdates(ctx context.Context) (<-chan spatial.Update, error) {
	return s.open(ctx, spatial.KindSurface)
}

// MeshUpdates streams the mesh script.
func (s *Session) MeshUpdates(ctx context.Context) (<-chan spatial.Update, error) {
	return s.open(ctx, spatial.KindMesh)
}

func (s *Session) open(ctx context.Context, kind spatial.FeatureKind) (<-chan spatial.Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Load() {
		return nil, ErrStopped
	}
	stop := s.stop
	rng := rand.New(rand.NewPCG(s.seed, uint64(kind)+1))
	var script []spatial.Update
	switch kind {
	case spatial.KindSurface:
		script = SurfaceScript(rng)
	default:
		script = MeshScript(rng, s.MeshCount)
	}

	out := make(chan spatial.Update)
	s.streams.Add(1)
	go func() {
		defer s.streams.Done()
		defer close(out)
		for _, u := range script {
			if !s.send(ctx, stop, out, u) {
				return
			}
		}
		if !s.Loop {
			return
		}
		s.loop(ctx, stop, out, rng, live(script))
	}()
	return out, nil
}

func (s *Session) send(ctx context.Context, stop <-chan struct{}, out chan<- spatial.Update, u spatial.Update) bool {
	select {
	case out <- u:
		n := s.emitted.Add(1)
		s.walk(n)
		return true
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Session) loop(ctx context.Context, stop <-chan struct{}, out chan<- spatial.Update, rng *rand.Rand, features []spatial.Update) {
	if len(features) == 0 {
		return
	}
	ticker := s.Clock.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C():
		}
		u := features[rng.IntN(len(features))]
		u.Event = spatial.EventUpdated
		if rng.Float64() < s.FaultRate {
			u.Geometry = spatial.RawGeometry{}
		} else {
			u.Geometry = grow(u, 1+rng.Float32()*0.2)
		}
		if !s.send(ctx, stop, out, u) {
			return
		}
	}
}

// walk moves the simulated device around a 1.5 m circle at eye height.
func (s *Session) walk(step uint64) {
	angle := float32(step) * 0.05
	p := mgl32.Translate3D(1.5*float32(math.Cos(float64(angle))), 1.6, 1.5*float32(math.Sin(float64(angle)))).
		Mul4(mgl32.HomogRotate3DY(-angle))
	s.pose.Store(&p)
}

type plane struct {
	class        spatial.Classification
	alignment    spatial.Alignment
	width, depth float32
	pose         mgl32.Mat4
}

// room is a 4 x 5 m room with a 2.5 m ceiling.
func room() []plane {
	upright := mgl32.HomogRotate3DX(mgl32.DegToRad(90))
	return []plane{
		{spatial.ClassFloor, spatial.AlignmentHorizontal, 4, 5, mgl32.Ident4()},
		{spatial.ClassCeiling, spatial.AlignmentHorizontal, 4, 5, mgl32.Translate3D(0, 2.5, 0).Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(180)))},
		{spatial.ClassWall, spatial.AlignmentVertical, 4, 2.5, mgl32.Translate3D(0, 1.25, -2.5).Mul4(upright)},
		{spatial.ClassWall, spatial.AlignmentVertical, 5, 2.5, mgl32.Translate3D(-2, 1.25, 0).Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(90))).Mul4(upright)},
		{spatial.ClassDoor, spatial.AlignmentVertical, 0.9, 2, mgl32.Translate3D(2, 1, 1).Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(-90))).Mul4(upright)},
		{spatial.ClassTable, spatial.AlignmentHorizontal, 1.2, 0.8, mgl32.Translate3D(0.5, 0.75, 0.5)},
		{spatial.ClassSeat, spatial.AlignmentHorizontal, 0.5, 0.5, mgl32.Translate3D(0.5, 0.45, 1.3)},
		{spatial.ClassUnknown, spatial.AlignmentHorizontal, 0.4, 0.3, mgl32.Translate3D(-1.5, 0.9, -2)},
	}
}

// SurfaceScript returns the surface events of one room scan: every plane is
// added at 60% of its size, updated to full size, and the unclassified shelf
// is removed at the end.
func SurfaceScript(rng *rand.Rand) []spatial.Update {
	planes := room()
	ids := make([]spatial.FeatureID, len(planes))
	for i := range ids {
		ids[i] = uuid.Must(uuid.NewRandomFromReader(rngReader{rng}))
	}

	var out []spatial.Update
	for i, p := range planes {
		out = append(out, spatial.Update{
			Kind:           spatial.KindSurface,
			ID:             ids[i],
			Event:          spatial.EventAdded,
			Pose:           p.pose,
			Classification: p.class,
			Alignment:      p.alignment,
			Geometry:       geometry.RawPlane(p.width*0.6, p.depth*0.6),
		})
	}
	for i, p := range planes {
		out = append(out, spatial.Update{
			Kind:           spatial.KindSurface,
			ID:             ids[i],
			Event:          spatial.EventUpdated,
			Pose:           p.pose,
			Classification: p.class,
			Alignment:      p.alignment,
			Geometry:       geometry.RawPlane(p.width, p.depth),
		})
	}
	last := len(planes) - 1
	out = append(out, spatial.Update{Kind: spatial.KindSurface, ID: ids[last], Event: spatial.EventRemoved})
	return out
}

// MeshScript returns n mesh chunks scattered through the room, each added
// and then refined once.
func MeshScript(rng *rand.Rand, n int) []spatial.Update {
	var adds, updates []spatial.Update
	for i := 0; i < n; i++ {
		id := uuid.Must(uuid.NewRandomFromReader(rngReader{rng}))
		pose := mgl32.Translate3D(rng.Float32()*3-1.5, rng.Float32()*2, rng.Float32()*4-2)
		sx, sy, sz := 0.2+rng.Float32()*0.6, 0.2+rng.Float32()*0.6, 0.2+rng.Float32()*0.6
		adds = append(adds, spatial.Update{
			Kind:     spatial.KindMesh,
			ID:       id,
			Event:    spatial.EventAdded,
			Pose:     pose,
			Geometry: geometry.RawBox(sx, sy, sz),
		})
		updates = append(updates, spatial.Update{
			Kind:     spatial.KindMesh,
			ID:       id,
			Event:    spatial.EventUpdated,
			Pose:     pose,
			Geometry: geometry.RawBox(sx*1.1, sy*1.1, sz*1.1),
		})
	}
	return append(adds, updates...)
}

// live returns the last event per id still present at the end of script.
func live(script []spatial.Update) []spatial.Update {
	last := make(map[spatial.FeatureID]spatial.Update)
	var order []spatial.FeatureID
	for _, u := range script {
		if _, seen := last[u.ID]; !seen {
			order = append(order, u.ID)
		}
		last[u.ID] = u
	}
	var out []spatial.Update
	for _, id := range order {
		if u := last[id]; u.Event != spatial.EventRemoved {
			out = append(out, u)
		}
	}
	return out
}

// grow rebuilds u's geometry scaled by f.
func grow(u spatial.Update, f float32) spatial.RawGeometry {
	mesh, err := geometry.Convert(u.Geometry)
	if err != nil {
		return u.Geometry
	}
	b := mesh.Bounds()
	half := b.HalfExtents()
	if u.Kind == spatial.KindSurface {
		return geometry.RawPlane(float32(half.X*2)*f, float32(half.Z*2)*f)
	}
	return geometry.RawBox(float32(half.X*2)*f, float32(half.Y*2)*f, float32(half.Z*2)*f)
}

// rngReader feeds uuid generation from a seeded source.
type rngReader struct{ rng *rand.Rand }

func (r rngReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r.rng.Uint32())
	}
	return len(p), nil
}
