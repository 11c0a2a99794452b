// Command hauntd runs the spatial scene engine headless against the
// synthetic sensor session, serving status, a scene websocket and gRPC
// health.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/banshee-data/haunt.report/internal/config"
	"github.com/banshee-data/haunt.report/internal/monitoring"
	haotel "github.com/banshee-data/haunt.report/internal/otel"
	"github.com/banshee-data/haunt.report/internal/spatial"
	"github.com/banshee-data/haunt.report/internal/spatial/engine"
	"github.com/banshee-data/haunt.report/internal/spatial/monitor"
	"github.com/banshee-data/haunt.report/internal/spatial/publisher"
	"github.com/banshee-data/haunt.report/internal/spatial/scene"
	"github.com/banshee-data/haunt.report/internal/spatial/settings"
	"github.com/banshee-data/haunt.report/internal/spatial/storage/sqlite"
	"github.com/banshee-data/haunt.report/internal/spatial/synthetic"
	"github.com/banshee-data/haunt.report/internal/version"
)

var (
	configPath    = flag.String("config", config.DefaultConfigPath, "Scene config JSON file")
	listen        = flag.String("listen", ":8080", "HTTP listen address")
	grpcListen    = flag.String("grpc-listen", ":50061", "gRPC health listen address (empty disables)")
	dbPath        = flag.String("db", "haunt.db", "Telemetry database path (empty disables)")
	seed          = flag.Uint64("seed", 1, "Synthetic sensor seed")
	meshCount     = flag.Int("meshes", 6, "Synthetic mesh anchors")
	eventInterval = flag.Duration("event-interval", 250*time.Millisecond, "Synthetic update interval")
	loop          = flag.Bool("loop", true, "Keep emitting updates after the scripted scan")
	faultRate     = flag.Float64("fault-rate", 0.02, "Fraction of looped updates sent with malformed geometry")
	frameInterval = flag.Duration("frame-interval", 500*time.Millisecond, "Scene websocket frame interval")
	debugLog      = flag.Bool("debug", false, "Enable diagnostic logging")
	traceLog      = flag.Bool("trace-log", false, "Enable per-event trace logging")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println("hauntd", version.String())
		return
	}

	spatial.SetLogWriters(logWriters(os.Stderr, *debugLog, *traceLog))
	monitoring.SetOutput(os.Stderr)
	log.Printf("hauntd %s", version.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("hauntd: %v", err)
	}
}

// logWriters routes the ops stream always, and diag and trace on request.
func logWriters(w io.Writer, debug, trace bool) spatial.LogWriters {
	lw := spatial.LogWriters{Ops: w}
	if debug {
		lw.Diag = w
	}
	if trace {
		lw.Trace = w
	}
	return lw
}

// loadConfig reads the scene config file and layers HAUNT_* overrides on top.
func loadConfig(path string) (*config.SceneConfig, error) {
	cfg, err := config.LoadSceneConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decorationRand returns a seeded source, or nil for a random one when the
// config seed is zero.
func decorationRand(cfg *config.SceneConfig) *rand.Rand {
	s := cfg.GetDecorationSeed()
	if s == 0 {
		return nil
	}
	return rand.New(rand.NewPCG(uint64(s), uint64(s)>>1))
}

func engineConfig(cfg *config.SceneConfig, r scene.Renderer, tracker *synthetic.Session, telemetry engine.Telemetry) engine.Config {
	return engine.Config{
		Renderer:               r,
		Settings:               settings.FromConfig(cfg),
		Warmup:                 cfg.GetWarmupDuration(),
		StreamBuffer:           cfg.GetStreamBuffer(),
		Tracker:                tracker,
		PoseInterval:           cfg.GetPosePollInterval(),
		ReconcileThemeOnSwitch: cfg.GetReconcileThemeOnSwitch(),
		CollideSurfaces:        cfg.GetCollideSurfaces(),
		CollideMeshes:          cfg.GetCollideMeshes(),
		Rand:                   decorationRand(cfg),
		Telemetry:              telemetry,
		SampleInterval:         cfg.GetSampleInterval(),
	}
}

func run(ctx context.Context) error {
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	var otelCfg haotel.Config
	if err := env.Parse(&otelCfg); err != nil {
		return fmt.Errorf("parse otel env: %w", err)
	}
	shutdownTracing, err := haotel.Setup(ctx, "hauntd", version.Version, otelCfg)
	if err != nil {
		return fmt.Errorf("tracing setup: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			monitoring.Logf("tracing shutdown: %v", err)
		}
	}()

	var (
		telemetry engine.Telemetry
		sessions  monitor.SessionStore
	)
	if *dbPath != "" {
		store, err := sqlite.Open(*dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		telemetry, sessions = store, store
	}

	root := scene.NewMemory()
	session := synthetic.NewSession(*seed)
	session.MeshCount = *meshCount
	session.Interval = *eventInterval
	session.Loop = *loop
	session.FaultRate = *faultRate

	eng := engine.New(engineConfig(cfg, root, session, telemetry))

	pub := publisher.NewPublisher(publisher.Config{Interval: *frameInterval}, root, eng.Status)
	if err := pub.Start(ctx); err != nil {
		return err
	}
	defer pub.Stop()

	health := monitor.NewHealth(eng.Running, nil)
	web := monitor.NewWebServer(monitor.WebServerConfig{
		Address: *listen,
		Engine:  eng,
		Store:   sessions,
		Scene:   pub,
	})

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	var grpcServer *grpc.Server
	if *grpcListen != "" {
		lis, err := net.Listen("tcp", *grpcListen)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", *grpcListen, err)
		}
		grpcServer = grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
		health.Register(grpcServer)
		wg.Add(1)
		go func() {
			defer wg.Done()
			monitoring.Logf("gRPC health listening on %s", lis.Addr())
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc serve: %w", err)
			}
		}()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg.Add(2)
	go func() {
		defer wg.Done()
		health.Run(runCtx, time.Second)
	}()
	go func() {
		defer wg.Done()
		if err := web.Start(runCtx); err != nil {
			errCh <- err
		}
	}()

	stopServers := func() {
		cancel()
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
		wg.Wait()
	}

	session.Run()
	if err := eng.Start(runCtx, session); err != nil {
		session.Stop()
		stopServers()
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Printf("shutting down...")
	case runErr = <-errCh:
	}

	// The engine must stop before the session it consumes.
	eng.Shutdown(session)
	stopServers()

	st := eng.Status()
	log.Printf("final counts: surfaces=%d meshes=%d decorations=%d received=%d stale=%d",
		st.Surfaces.Live, st.Meshes.Live, st.Decorations, st.Received, st.StaleDropped)
	return runErr
}
