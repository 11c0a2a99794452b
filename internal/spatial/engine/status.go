package engine

import (
	"time"

	"github.com/banshee-data/haunt.report/internal/spatial"
	"github.com/banshee-data/haunt.report/internal/spatial/lifecycle"
)

// Status is a point-in-time view of the engine for telemetry.
type Status struct {
	Monitoring   bool            `json:"monitoring"`
	SessionID    string          `json:"session_id,omitempty"`
	Theme        string          `json:"theme"`
	RenderStyle  string          `json:"render_style"`
	ShowSurfaces bool            `json:"show_surfaces"`
	ShowMeshes   bool            `json:"show_meshes"`
	Surfaces     lifecycle.Stats `json:"surfaces"`
	Meshes       lifecycle.Stats `json:"meshes"`
	Decorations  int             `json:"decorations"`
	Received     uint64          `json:"received"`
	StaleDropped uint64          `json:"stale_dropped"`
	Device       *DevicePose     `json:"device,omitempty"`
	At           time.Time       `json:"at"`
}

// DevicePose is the last polled device position.
type DevicePose struct {
	X  float32   `json:"x"`
	Y  float32   `json:"y"`
	Z  float32   `json:"z"`
	At time.Time `json:"at"`
}

// Entities returns the number of live surface and mesh entities.
func (s Status) Entities() int {
	return s.Surfaces.Live + s.Meshes.Live
}

// Status returns the most recently published status without waiting for
// the consumer.
func (e *Engine) Status() Status {
	if st := e.status.Load(); st != nil {
		return *st
	}
	return Status{}
}

func (e *Engine) publishStatus() {
	e.exec.Lock()
	defer e.exec.Unlock()
	st := e.buildStatus()
	e.status.Store(&st)
}

// buildStatus reads manager state; callers hold exec or run on the consumer.
func (e *Engine) buildStatus() Status {
	snap := e.settings.Snapshot()
	st := Status{
		Monitoring:   e.monitoring.Load(),
		Theme:        snap.Theme.String(),
		RenderStyle:  snap.RenderStyle.String(),
		ShowSurfaces: snap.Visible[spatial.KindSurface],
		ShowMeshes:   snap.Visible[spatial.KindMesh],
		Surfaces:     e.surfaces.Stats(),
		Meshes:       e.meshes.Stats(),
		Decorations:  e.spawner.Count(),
		Received:     e.received.Load(),
		StaleDropped: e.stale.Load(),
		At:           e.clock.Now(),
	}
	if id := e.sessionID.Load(); id != nil {
		st.SessionID = id.String()
	}
	if p := e.poller.Load(); p != nil {
		if s, ok := p.Latest(); ok {
			pos := s.Position()
			st.Device = &DevicePose{X: pos.X(), Y: pos.Y(), Z: pos.Z(), At: s.At}
		}
	}
	return st
}
