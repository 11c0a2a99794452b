// Package engine wires the per-kind update bridges into one serialized
// consumer that owns the lifecycle managers, the decoration spawner and every
// settings side effect.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/banshee-data/haunt.report/internal/spatial"
	"github.com/banshee-data/haunt.report/internal/spatial/decor"
	"github.com/banshee-data/haunt.report/internal/spatial/lifecycle"
	"github.com/banshee-data/haunt.report/internal/spatial/scene"
	"github.com/banshee-data/haunt.report/internal/spatial/settings"
	"github.com/banshee-data/haunt.report/internal/spatial/stream"
	"github.com/banshee-data/haunt.report/internal/spatial/tracking"
	"github.com/banshee-data/haunt.report/internal/timeutil"
)

var (
	ErrAlreadyRunning    = errors.New("monitoring already running")
	ErrNotAuthorized     = errors.New("sensor session not authorized")
	ErrSessionNotRunning = errors.New("sensor session not running")
)

// Session is the sensor collaborator. Its update sequences are consumed
// only between Start and Stop; Stop on the session must come after the
// engine has stopped.
type Session interface {
	Authorized() bool
	Running() bool
	SurfaceUpdates(ctx context.Context) (<-chan spatial.Update, error)
	MeshUpdates(ctx context.Context) (<-chan spatial.Update, error)
	Stop()
}

// Telemetry receives monitoring-run boundaries and periodic status samples.
type Telemetry interface {
	SessionStarted(ctx context.Context, id uuid.UUID, at time.Time, s settings.Snapshot) error
	RecordSample(ctx context.Context, id uuid.UUID, st Status) error
	SessionEnded(ctx context.Context, id uuid.UUID, at time.Time, st Status) error
}

// Config holds the engine's collaborators and tuning.
type Config struct {
	Renderer scene.Renderer
	Settings *settings.Settings
	Clock    timeutil.Clock

	Warmup       time.Duration
	StreamBuffer int

	// Tracker, when set, is polled every PoseInterval while monitoring.
	Tracker      tracking.DeviceTracker
	PoseInterval time.Duration

	// ReconcileThemeOnSwitch restyles live entities and respawns
	// decorations when the theme changes. Off by default.
	ReconcileThemeOnSwitch bool

	CollideSurfaces bool
	CollideMeshes   bool

	// Rand drives decoration placement.
	Rand *rand.Rand

	// Telemetry, when set, is sampled every SampleInterval while monitoring.
	Telemetry      Telemetry
	SampleInterval time.Duration

	// Tracer defaults to the global otel tracer provider.
	Tracer trace.Tracer
}

// Engine hosts the single consumer goroutine.
type Engine struct {
	cfg      Config
	renderer scene.Renderer
	settings *settings.Settings
	clock    timeutil.Clock
	tracer   trace.Tracer

	surfaces *lifecycle.Manager
	meshes   *lifecycle.Manager
	spawner  *decor.Spawner

	// exec serializes every touch of managers and spawner, whether from the
	// consumer or from an inline command while not monitoring.
	exec sync.Mutex

	// mu guards the run state below and is held across Start and Stop.
	mu           sync.Mutex
	running      bool
	cancel       context.CancelFunc
	cmds         chan func()
	consumerDone chan struct{}
	bridges      []*stream.Bridge
	collisions   *lifecycle.CollisionWorker
	sampler      sync.WaitGroup

	poller     atomic.Pointer[tracking.Poller]
	sessionID  atomic.Pointer[uuid.UUID]
	monitoring atomic.Bool
	received   atomic.Uint64
	stale      atomic.Uint64
	status     atomic.Pointer[Status]
}

// New creates an Engine. Renderer is required; the rest default.
func New(cfg Config) *Engine {
	if cfg.Settings == nil {
		cfg.Settings = settings.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/banshee-data/haunt.report/internal/spatial/engine")
	}
	e := &Engine{
		cfg:      cfg,
		renderer: cfg.Renderer,
		settings: cfg.Settings,
		clock:    cfg.Clock,
		tracer:   cfg.Tracer,
	}
	e.surfaces = lifecycle.NewManager(lifecycle.Config{
		Kind: spatial.KindSurface, Renderer: cfg.Renderer, Settings: cfg.Settings, Clock: cfg.Clock,
	})
	e.meshes = lifecycle.NewManager(lifecycle.Config{
		Kind: spatial.KindMesh, Renderer: cfg.Renderer, Settings: cfg.Settings, Clock: cfg.Clock,
	})
	e.spawner = decor.New(decor.Config{Renderer: cfg.Renderer, Settings: cfg.Settings, Rand: cfg.Rand})
	e.surfaces.AddListener(e.spawner)
	e.publishStatus()
	return e
}

// Start begins monitoring: it opens a bridge per feature kind, launches the
// consumer, and starts the pose poller and telemetry sampler if configured.
func (e *Engine) Start(ctx context.Context, session Session) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return ErrAlreadyRunning
	}
	if !session.Authorized() {
		return ErrNotAuthorized
	}
	if !session.Running() {
		return ErrSessionNotRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmds := make(chan func())
	dispatch := func(fn func()) {
		select {
		case cmds <- fn:
		case <-runCtx.Done():
		}
	}
	collisions := lifecycle.NewCollisionWorker(runCtx, e.renderer, dispatch)

	e.exec.Lock()
	e.surfaces.SetCollisionWorker(nil)
	if e.cfg.CollideSurfaces {
		e.surfaces.SetCollisionWorker(collisions)
	}
	e.meshes.SetCollisionWorker(nil)
	if e.cfg.CollideMeshes {
		e.meshes.SetCollisionWorker(collisions)
	}
	e.exec.Unlock()

	sources := []struct {
		kind spatial.FeatureKind
		src  stream.SourceFunc
	}{
		{spatial.KindSurface, session.SurfaceUpdates},
		{spatial.KindMesh, session.MeshUpdates},
	}
	bridges := make([]*stream.Bridge, 0, len(sources))
	outs := make([]<-chan spatial.Update, 0, len(sources))
	for _, s := range sources {
		b := stream.New(stream.Config{Kind: s.kind, Warmup: e.cfg.Warmup, Buffer: e.cfg.StreamBuffer, Clock: e.clock})
		out, err := b.Run(runCtx, s.src)
		if err != nil {
			cancel()
			for _, started := range bridges {
				<-started.Done()
			}
			return fmt.Errorf("start %s bridge: %w", s.kind, err)
		}
		bridges = append(bridges, b)
		outs = append(outs, out)
	}

	e.cancel = cancel
	e.cmds = cmds
	e.consumerDone = make(chan struct{})
	e.bridges = bridges
	e.collisions = collisions
	sessionID := uuid.New()
	e.sessionID.Store(&sessionID)
	e.running = true
	e.monitoring.Store(true)

	e.poller.Store(nil)
	if e.cfg.Tracker != nil {
		p := tracking.NewPoller(e.cfg.Tracker, e.cfg.PoseInterval, e.clock)
		p.Start(runCtx)
		e.poller.Store(p)
	}

	go e.consume(runCtx, outs[0], outs[1], cmds, e.consumerDone)

	if e.cfg.Telemetry != nil {
		if err := e.cfg.Telemetry.SessionStarted(runCtx, sessionID, e.clock.Now(), e.settings.Snapshot()); err != nil {
			spatial.Opsf("[engine] telemetry session start: %v", err)
		}
		if e.cfg.SampleInterval > 0 {
			e.sampler.Add(1)
			go e.sample(runCtx, sessionID)
		}
	}

	e.publishStatus()
	spatial.Opsf("[engine] monitoring started (session %s, warmup %v)", sessionID, e.cfg.Warmup)
	return nil
}

// Stop cancels monitoring and waits for the relays, the consumer, the pose
// poller, pending collision jobs and the sampler. Once it returns no event
// is applied, so the caller may stop the sensor session.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}

	e.cancel()
	for _, b := range e.bridges {
		<-b.Done()
	}
	<-e.consumerDone
	if p := e.poller.Load(); p != nil {
		p.Wait()
	}
	e.collisions.Wait()
	e.sampler.Wait()

	e.running = false
	e.monitoring.Store(false)
	e.publishStatus()

	sessionID := *e.sessionID.Load()
	if e.cfg.Telemetry != nil {
		// The run context is cancelled; the final write gets its own.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.cfg.Telemetry.SessionEnded(ctx, sessionID, e.clock.Now(), e.Status()); err != nil {
			spatial.Opsf("[engine] telemetry session end: %v", err)
		}
		cancel()
	}
	spatial.Opsf("[engine] monitoring stopped (session %s, %d stale events dropped)", sessionID, e.stale.Load())
}

// Shutdown stops monitoring and then the sensor session.
func (e *Engine) Shutdown(session Session) {
	e.Stop()
	session.Stop()
}

// Running reports whether monitoring is active.
func (e *Engine) Running() bool { return e.monitoring.Load() }

func (e *Engine) consume(ctx context.Context, surfaces, meshes <-chan spatial.Update, cmds <-chan func(), done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-cmds:
			e.exec.Lock()
			fn()
			e.exec.Unlock()
		case u, ok := <-surfaces:
			if !ok {
				surfaces = nil
				continue
			}
			e.apply(ctx, e.surfaces, u)
		case u, ok := <-meshes:
			if !ok {
				meshes = nil
				continue
			}
			e.apply(ctx, e.meshes, u)
		}
	}
}

func (e *Engine) apply(ctx context.Context, m *lifecycle.Manager, u spatial.Update) {
	e.received.Add(1)
	if ctx.Err() != nil {
		e.stale.Add(1)
		spatial.Diagf("[engine] dropped %s after stop", u)
		return
	}

	_, span := e.tracer.Start(ctx, "spatial.apply", trace.WithAttributes(
		attribute.String("feature.kind", u.Kind.String()),
		attribute.String("feature.id", u.ID.String()),
		attribute.String("feature.event", u.Event.String()),
		attribute.String("feature.classification", u.Classification.String()),
	))
	e.exec.Lock()
	err := m.Apply(u)
	e.exec.Unlock()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	e.publishStatus()
}

// do runs fn with exclusive access to the managers and spawner: on the
// consumer while monitoring, inline otherwise.
func (e *Engine) do(fn func()) {
	e.mu.Lock()
	running, cmds, consumerDone := e.running, e.cmds, e.consumerDone
	e.mu.Unlock()

	if running {
		finished := make(chan struct{})
		select {
		case cmds <- func() { fn(); close(finished) }:
			<-finished
			e.publishStatus()
			return
		case <-consumerDone:
		}
	}

	e.exec.Lock()
	fn()
	e.exec.Unlock()
	e.publishStatus()
}

func (e *Engine) sample(ctx context.Context, id uuid.UUID) {
	defer e.sampler.Done()
	ticker := e.clock.NewTicker(e.cfg.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if err := e.cfg.Telemetry.RecordSample(ctx, id, e.Status()); err != nil && ctx.Err() == nil {
				spatial.Opsf("[engine] telemetry sample: %v", err)
			}
		}
	}
}
