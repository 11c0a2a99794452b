package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/haunt.report/internal/monitoring"
	"github.com/banshee-data/haunt.report/internal/spatial"
	"github.com/banshee-data/haunt.report/internal/spatial/engine"
	"github.com/banshee-data/haunt.report/internal/spatial/lifecycle"
	"github.com/banshee-data/haunt.report/internal/spatial/settings"
	"github.com/banshee-data/haunt.report/internal/spatial/storage/sqlite"
	"github.com/banshee-data/haunt.report/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

type fakeEngine struct {
	mu       sync.Mutex
	running  bool
	calls    []string
	settings *settings.Settings
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{settings: settings.New()}
}

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeEngine) Snapshot() engine.Status {
	snap := f.settings.Snapshot()
	return engine.Status{
		Monitoring:   f.Running(),
		Theme:        snap.Theme.String(),
		RenderStyle:  snap.RenderStyle.String(),
		ShowSurfaces: snap.Visible[spatial.KindSurface],
		ShowMeshes:   snap.Visible[spatial.KindMesh],
		Surfaces:     lifecycle.Stats{Kind: "surface", Live: 3},
	}
}

func (f *fakeEngine) SetTheme(t spatial.Theme) {
	f.record("theme=" + t.String())
	f.settings.SetTheme(t)
}

func (f *fakeEngine) SetRenderStyle(r spatial.RenderStyle) {
	f.record("style=" + r.String())
	f.settings.SetRenderStyle(r)
}

func (f *fakeEngine) SetVisibility(k spatial.FeatureKind, v bool) {
	f.record("visible=" + k.String())
	f.settings.SetVisible(k, v)
}

func (f *fakeEngine) Restyle() { f.record("restyle") }

func newServer(t *testing.T, store SessionStore) (*WebServer, *fakeEngine) {
	t.Helper()
	eng := newFakeEngine()
	ws := NewWebServer(WebServerConfig{Address: "127.0.0.1:0", Engine: eng, Store: store})
	return ws, eng
}

func serve(ws *WebServer, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndStatus(t *testing.T) {
	ws, eng := newServer(t, nil)
	eng.running = true

	rec := serve(ws, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, true, health["monitoring"])

	rec = serve(ws, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st engine.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "normal", st.Theme)
	assert.Equal(t, 3, st.Surfaces.Live)

	rec = serve(ws, http.MethodPost, "/api/status", "{}")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSettings_AppliesPartialChange(t *testing.T) {
	ws, eng := newServer(t, nil)

	rec := serve(ws, http.MethodPost, "/api/settings",
		`{"theme":"cemetery","render_style":"solid","show_meshes":false,"restyle":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var st engine.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "cemetery", st.Theme)
	assert.Equal(t, "solid", st.RenderStyle)
	assert.True(t, st.ShowSurfaces)
	assert.False(t, st.ShowMeshes)
	assert.Equal(t, []string{"visible=mesh", "style=solid", "theme=cemetery", "restyle"}, eng.Calls())
}

func TestSettings_RejectsBadValuesWithoutApplying(t *testing.T) {
	ws, eng := newServer(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"unknown theme", `{"theme":"spooky","show_meshes":false}`},
		{"unknown style", `{"theme":"cemetery","render_style":"pointcloud"}`},
		{"unknown field", `{"colour":"red"}`},
		{"malformed", `{"theme":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(ws, http.MethodPost, "/api/settings", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Empty(t, eng.Calls())

	rec := serve(ws, http.MethodGet, "/api/settings", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSessions_NoStore(t *testing.T) {
	ws, _ := newServer(t, nil)
	for _, path := range []string{"/api/sessions", "/api/sessions/samples?session_id=x", "/debug/counts"} {
		rec := serve(ws, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "monitor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedSession(t *testing.T, s *sqlite.Store, samples int) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	start := time.Unix(1700000000, 0)
	require.NoError(t, s.SessionStarted(ctx, id, start, settings.New().Snapshot()))
	for i := 0; i < samples; i++ {
		require.NoError(t, s.RecordSample(ctx, id, engine.Status{
			Theme:       "normal",
			Surfaces:    lifecycle.Stats{Live: i},
			Meshes:      lifecycle.Stats{Live: 1},
			Decorations: i * 2,
			At:          start.Add(time.Duration(i) * time.Second),
		}))
	}
	return id
}

func TestSessionsAndSamples(t *testing.T) {
	store := openStore(t)
	id := seedSession(t, store, 4)
	ws, _ := newServer(t, store)

	rec := serve(ws, http.MethodGet, "/api/sessions?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []sqlite.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, id.String(), sessions[0].SessionID)

	rec = serve(ws, http.MethodGet, "/api/sessions/samples?session_id="+id.String()+"&limit=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var samples []sqlite.Sample
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &samples))
	require.Len(t, samples, 3)
	assert.Equal(t, 2, samples[2].Surfaces)

	rec = serve(ws, http.MethodGet, "/api/sessions/samples", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(ws, http.MethodGet, "/api/sessions/samples?session_id=unknown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestCountsChart(t *testing.T) {
	store := openStore(t)
	ws, _ := newServer(t, store)

	rec := serve(ws, http.MethodGet, "/debug/counts", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "no sessions yet")

	id := seedSession(t, store, 5)
	rec = serve(ws, http.MethodGet, "/debug/counts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	assert.Contains(t, body, "Live entities")
	assert.Contains(t, body, id.String())
	assert.Contains(t, body, "decorations")

	empty := seedSession(t, store, 0)
	rec = serve(ws, http.MethodGet, "/debug/counts?session_id="+empty.String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueryLimit(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"?limit=5", 5},
		{"?limit=0", 20},
		{"?limit=abc", 20},
		{"?limit=9999", 200},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/sessions"+tt.query, nil)
		assert.Equal(t, tt.want, queryLimit(r, 20, 200), tt.query)
	}
}

func TestSceneRouteOptional(t *testing.T) {
	ws, _ := newServer(t, nil)
	rec := serve(ws, http.MethodGet, "/ws/scene", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	scene := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	ws = NewWebServer(WebServerConfig{Engine: newFakeEngine(), Scene: scene})
	rec = serve(ws, http.MethodGet, "/ws/scene", "")
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	ws, _ := newServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ws.Start(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestHealth(t *testing.T) {
	eng := newFakeEngine()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	h := NewHealth(eng.Running, clock)
	ctx := context.Background()

	check := func(service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
		resp, err := h.Server().Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.GetStatus()
	}
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, check(""))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, check(EngineService))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		h.Run(runCtx, time.Second)
		close(done)
	}()

	eng.mu.Lock()
	eng.running = true
	eng.mu.Unlock()
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	assert.Eventually(t, func() bool {
		return check(EngineService) == grpc_health_v1.HealthCheckResponse_SERVING
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, check(""))
}

func TestCountsPNG(t *testing.T) {
	store := openStore(t)
	ws, _ := newServer(t, store)

	rec := serve(ws, http.MethodGet, "/debug/counts.png", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	id := seedSession(t, store, 6)
	rec = serve(ws, http.MethodGet, "/debug/counts.png?session_id="+id.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))
}
