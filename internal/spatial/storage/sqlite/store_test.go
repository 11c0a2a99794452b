package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/haunt.report/internal/monitoring"
	"github.com/banshee-data/haunt.report/internal/spatial"
	"github.com/banshee-data/haunt.report/internal/spatial/engine"
	"github.com/banshee-data/haunt.report/internal/spatial/lifecycle"
	"github.com/banshee-data/haunt.report/internal/spatial/settings"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })

	s, err := Open(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_MigratesToLatest(t *testing.T) {
	s := setupStore(t)
	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// Re-running is a no-op.
	require.NoError(t, s.MigrateUp())
}

func TestMigrateDown(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.MigrateDown())
	version, _, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	require.NoError(t, s.MigrateUp())
}

func TestStore_SessionLifecycle(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	id := uuid.New()
	start := time.Unix(1700000000, 0)

	snap := settings.New().Snapshot()
	snap.Theme = spatial.ThemeCemetery
	snap.Visible[spatial.KindMesh] = false
	require.NoError(t, s.SessionStarted(ctx, id, start, snap))

	for i := 0; i < 3; i++ {
		st := engine.Status{
			Theme:       "cemetery",
			Surfaces:    lifecycle.Stats{Live: i + 1, ConvertP95Micros: 12},
			Meshes:      lifecycle.Stats{Live: 2 * i, ConversionFailures: 1, ConvertP95Micros: 30},
			Decorations: i,
			Received:    uint64(10 * i),
			At:          start.Add(time.Duration(i) * time.Second),
		}
		if i == 2 {
			st.Device = &engine.DevicePose{X: 1, Y: 1.6, Z: -0.5}
		}
		require.NoError(t, s.RecordSample(ctx, id, st))
	}

	final := engine.Status{
		Surfaces:     lifecycle.Stats{Adds: 7, ConversionFailures: 2},
		Meshes:       lifecycle.Stats{Adds: 4, CollisionFailures: 1},
		StaleDropped: 3,
	}
	require.NoError(t, s.SessionEnded(ctx, id, start.Add(time.Minute), final))

	sessions, err := s.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	got := sessions[0]
	assert.Equal(t, id.String(), got.SessionID)
	assert.Equal(t, "cemetery", got.Theme)
	assert.Equal(t, "wireframe", got.RenderStyle)
	assert.True(t, got.ShowSurfaces)
	assert.False(t, got.ShowMeshes)
	require.NotNil(t, got.EndedAt)
	assert.Equal(t, start.Add(time.Minute).UnixNano(), *got.EndedAt)
	assert.Equal(t, int64(7), got.SurfacesAdded)
	assert.Equal(t, int64(4), got.MeshesAdded)
	assert.Equal(t, int64(2), got.ConversionFailures)
	assert.Equal(t, int64(1), got.CollisionFailures)
	assert.Equal(t, int64(3), got.StaleDropped)

	samples, err := s.Samples(ctx, id.String(), 100)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, 1, samples[0].Surfaces)
	assert.Equal(t, 4, samples[2].Meshes)
	assert.Equal(t, int64(1), samples[1].ConversionFailures)
	assert.InDelta(t, 30, samples[0].ConvertP95Micros, 1e-9)
	assert.Nil(t, samples[0].DeviceX)
	require.NotNil(t, samples[2].DeviceY)
	assert.InDelta(t, 1.6, *samples[2].DeviceY, 1e-6)
}

func TestStore_SessionEndedUnknown(t *testing.T) {
	s := setupStore(t)
	err := s.SessionEnded(context.Background(), uuid.New(), time.Now(), engine.Status{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestStore_SampleRequiresSession(t *testing.T) {
	s := setupStore(t)
	err := s.RecordSample(context.Background(), uuid.New(), engine.Status{At: time.Now()})
	assert.Error(t, err, "foreign key rejects samples for unknown sessions")
}

func TestStore_ListSessionsNewestFirst(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	older, newer := uuid.New(), uuid.New()
	snap := settings.New().Snapshot()
	require.NoError(t, s.SessionStarted(ctx, older, time.Unix(100, 0), snap))
	require.NoError(t, s.SessionStarted(ctx, newer, time.Unix(200, 0), snap))

	sessions, err := s.ListSessions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, newer.String(), sessions[0].SessionID)
	assert.Nil(t, sessions[0].EndedAt)
}
