// Package sqlite persists monitoring sessions and periodic count samples.
// It implements engine.Telemetry.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/haunt.report/internal/monitoring"
	"github.com/banshee-data/haunt.report/internal/spatial"
	"github.com/banshee-data/haunt.report/internal/spatial/engine"
	"github.com/banshee-data/haunt.report/internal/spatial/settings"
)

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// Session is one persisted monitoring run.
type Session struct {
	SessionID          string `json:"session_id"`
	StartedAt          int64  `json:"started_at"`
	EndedAt            *int64 `json:"ended_at,omitempty"`
	Theme              string `json:"theme"`
	RenderStyle        string `json:"render_style"`
	ShowSurfaces       bool   `json:"show_surfaces"`
	ShowMeshes         bool   `json:"show_meshes"`
	SurfacesAdded      int64  `json:"surfaces_added"`
	MeshesAdded        int64  `json:"meshes_added"`
	ConversionFailures int64  `json:"conversion_failures"`
	CollisionFailures  int64  `json:"collision_failures"`
	StaleDropped       int64  `json:"stale_dropped"`
}

// Sample is one periodic snapshot of live counts.
type Sample struct {
	SampleID           int64    `json:"sample_id"`
	SessionID          string   `json:"session_id"`
	SampledAt          int64    `json:"sampled_at"`
	Theme              string   `json:"theme"`
	Surfaces           int      `json:"surfaces"`
	Meshes             int      `json:"meshes"`
	Decorations        int      `json:"decorations"`
	Received           int64    `json:"received"`
	ConversionFailures int64    `json:"conversion_failures"`
	ConvertP95Micros   float64  `json:"convert_p95_us"`
	DeviceX            *float64 `json:"device_x,omitempty"`
	DeviceY            *float64 `json:"device_y,omitempty"`
	DeviceZ            *float64 `json:"device_z,omitempty"`
}

// Store provides persistence for monitoring telemetry.
type Store struct {
	db *sql.DB
}

var _ engine.Telemetry = (*Store)(nil)

// Open opens (or creates) the database at path, applies pragmas and runs
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single writer connection keeps in-memory databases coherent.
	db.SetMaxOpenConns(1)
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	s := &Store{db: db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	monitoring.Logf("telemetry store ready at %s", path)
	return s, nil
}

// NewStore wraps an already migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// SessionStarted inserts a session row.
func (s *Store) SessionStarted(ctx context.Context, id uuid.UUID, at time.Time, snap settings.Snapshot) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO monitoring_sessions (
				session_id, started_at, theme, render_style, show_surfaces, show_meshes
			) VALUES (?, ?, ?, ?, ?, ?)`,
			id.String(), at.UnixNano(), snap.Theme.String(), snap.RenderStyle.String(),
			snap.Visible[spatial.KindSurface], snap.Visible[spatial.KindMesh],
		)
		return err
	})
}

// RecordSample inserts a count sample for the session.
func (s *Store) RecordSample(ctx context.Context, id uuid.UUID, st engine.Status) error {
	var dx, dy, dz interface{}
	if st.Device != nil {
		dx, dy, dz = float64(st.Device.X), float64(st.Device.Y), float64(st.Device.Z)
	}
	p95 := st.Surfaces.ConvertP95Micros
	if st.Meshes.ConvertP95Micros > p95 {
		p95 = st.Meshes.ConvertP95Micros
	}
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO count_samples (
				session_id, sampled_at, theme, surfaces, meshes, decorations,
				received, conversion_failures, convert_p95_us, device_x, device_y, device_z
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id.String(), st.At.UnixNano(), st.Theme, st.Surfaces.Live, st.Meshes.Live, st.Decorations,
			st.Received, st.Surfaces.ConversionFailures+st.Meshes.ConversionFailures, p95, dx, dy, dz,
		)
		return err
	})
}

// SessionEnded closes the session row with final counters.
func (s *Store) SessionEnded(ctx context.Context, id uuid.UUID, at time.Time, st engine.Status) error {
	return retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE monitoring_sessions SET
				ended_at = ?, surfaces_added = ?, meshes_added = ?,
				conversion_failures = ?, collision_failures = ?, stale_dropped = ?
			WHERE session_id = ?`,
			at.UnixNano(), st.Surfaces.Adds, st.Meshes.Adds,
			st.Surfaces.ConversionFailures+st.Meshes.ConversionFailures,
			st.Surfaces.CollisionFailures+st.Meshes.CollisionFailures,
			st.StaleDropped, id.String(),
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("session %s not found", id)
		}
		return nil
	})
}

// ListSessions returns the most recent sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, started_at, ended_at, theme, render_style, show_surfaces, show_meshes,
			surfaces_added, meshes_added, conversion_failures, collision_failures, stale_dropped
		FROM monitoring_sessions
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var sess Session
		var ended sql.NullInt64
		if err := rows.Scan(
			&sess.SessionID, &sess.StartedAt, &ended, &sess.Theme, &sess.RenderStyle,
			&sess.ShowSurfaces, &sess.ShowMeshes, &sess.SurfacesAdded, &sess.MeshesAdded,
			&sess.ConversionFailures, &sess.CollisionFailures, &sess.StaleDropped,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if ended.Valid {
			v := ended.Int64
			sess.EndedAt = &v
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// Samples returns up to limit samples for a session, oldest first.
func (s *Store) Samples(ctx context.Context, sessionID string, limit int) ([]*Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sample_id, session_id, sampled_at, theme, surfaces, meshes, decorations,
			received, conversion_failures, convert_p95_us, device_x, device_y, device_z
		FROM count_samples
		WHERE session_id = ?
		ORDER BY sampled_at ASC, sample_id ASC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	var out []*Sample
	for rows.Next() {
		var smp Sample
		var dx, dy, dz sql.NullFloat64
		if err := rows.Scan(
			&smp.SampleID, &smp.SessionID, &smp.SampledAt, &smp.Theme, &smp.Surfaces, &smp.Meshes,
			&smp.Decorations, &smp.Received, &smp.ConversionFailures, &smp.ConvertP95Micros,
			&dx, &dy, &dz,
		); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		if dx.Valid && dy.Valid && dz.Valid {
			smp.DeviceX, smp.DeviceY, smp.DeviceZ = &dx.Float64, &dy.Float64, &dz.Float64
		}
		out = append(out, &smp)
	}
	return out, rows.Err()
}

// retryOnBusy retries fn while SQLite reports the database as locked.
func retryOnBusy(ctx context.Context, fn func() error) error {
	backoff := 10 * time.Millisecond
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
