// Package monitor serves the engine's HTTP status API, a debug chart of
// live counts, the scene websocket and a gRPC health service.
package monitor

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/haunt.report/internal/httputil"
	"github.com/banshee-data/haunt.report/internal/monitoring"
	"github.com/banshee-data/haunt.report/internal/spatial"
	"github.com/banshee-data/haunt.report/internal/spatial/engine"
	"github.com/banshee-data/haunt.report/internal/spatial/storage/sqlite"
)

// Controller is the part of the engine the HTTP API drives.
type Controller interface {
	Running() bool
	Snapshot() engine.Status
	SetTheme(spatial.Theme)
	SetRenderStyle(spatial.RenderStyle)
	SetVisibility(spatial.FeatureKind, bool)
	Restyle()
}

// SessionStore lists persisted monitoring sessions.
type SessionStore interface {
	ListSessions(ctx context.Context, limit int) ([]*sqlite.Session, error)
	Samples(ctx context.Context, sessionID string, limit int) ([]*sqlite.Sample, error)
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address string
	Engine  Controller
	// Store is optional; session endpoints return 404 without it.
	Store SessionStore
	// Scene is optional; it serves the scene websocket.
	Scene http.Handler
}

// WebServer is the HTTP status server.
type WebServer struct {
	address string
	engine  Controller
	store   SessionStore
	scene   http.Handler
	server  *http.Server
}

// NewWebServer creates a web server with its routes registered.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address: config.Address,
		engine:  config.Engine,
		store:   config.Store,
		scene:   config.Scene,
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           ws.setupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws
}

// Handler returns the route mux.
func (ws *WebServer) Handler() http.Handler { return ws.server.Handler }

// Start serves until ctx is cancelled, then shuts down.
func (ws *WebServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		monitoring.Logf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}
	return <-errCh
}

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/status", ws.handleStatus)
	mux.HandleFunc("/api/settings", ws.handleSettings)
	mux.HandleFunc("/api/sessions", ws.handleSessions)
	mux.HandleFunc("/api/sessions/samples", ws.handleSamples)
	mux.HandleFunc("/debug/counts", ws.handleCountsChart)
	mux.HandleFunc("/debug/counts.png", ws.handleCountsPNG)
	if ws.scene != nil {
		mux.Handle("/ws/scene", ws.scene)
	}
	return mux
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":     "ok",
		"monitoring": ws.engine.Running(),
	})
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, ws.engine.Snapshot())
}

type settingsRequest struct {
	Theme        *string `json:"theme,omitempty"`
	RenderStyle  *string `json:"render_style,omitempty"`
	ShowSurfaces *bool   `json:"show_surfaces,omitempty"`
	ShowMeshes   *bool   `json:"show_meshes,omitempty"`
	Restyle      bool    `json:"restyle,omitempty"`
}

// handleSettings applies a partial settings change. Every field is parsed
// before any is applied, so a bad value changes nothing.
func (ws *WebServer) handleSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	var req settingsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	var (
		theme    spatial.Theme
		renderAs spatial.RenderStyle
		err      error
	)
	if req.Theme != nil {
		if theme, err = spatial.ParseTheme(*req.Theme); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	}
	if req.RenderStyle != nil {
		if renderAs, err = spatial.ParseRenderStyle(*req.RenderStyle); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	}

	if req.ShowSurfaces != nil {
		ws.engine.SetVisibility(spatial.KindSurface, *req.ShowSurfaces)
	}
	if req.ShowMeshes != nil {
		ws.engine.SetVisibility(spatial.KindMesh, *req.ShowMeshes)
	}
	if req.RenderStyle != nil {
		ws.engine.SetRenderStyle(renderAs)
	}
	if req.Theme != nil {
		ws.engine.SetTheme(theme)
	}
	if req.Restyle {
		ws.engine.Restyle()
	}
	httputil.WriteJSONOK(w, ws.engine.Snapshot())
}

// handleSessions lists recent monitoring sessions.
// Query params:
//   - limit (optional, default 20, max 200)
func (ws *WebServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if ws.store == nil {
		httputil.NotFound(w, "telemetry store not configured")
		return
	}
	sessions, err := ws.store.ListSessions(r.Context(), queryLimit(r, 20, 200))
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if sessions == nil {
		sessions = []*sqlite.Session{}
	}
	httputil.WriteJSONOK(w, sessions)
}

// handleSamples returns count samples for one session.
// Query params:
//   - session_id (required)
//   - limit (optional, default 500, max 5000)
func (ws *WebServer) handleSamples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if ws.store == nil {
		httputil.NotFound(w, "telemetry store not configured")
		return
	}
	id := r.URL.Query().Get("session_id")
	if id == "" {
		httputil.BadRequest(w, "missing 'session_id' parameter")
		return
	}
	samples, err := ws.store.Samples(r.Context(), id, queryLimit(r, 500, 5000))
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if samples == nil {
		samples = []*sqlite.Sample{}
	}
	httputil.WriteJSONOK(w, samples)
}

func queryLimit(r *http.Request, def, max int) int {
	limit := def
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}
