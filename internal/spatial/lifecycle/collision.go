package lifecycle

import (
	"context"
	"sync"

	"github.com/banshee-data/haunt.report/internal/spatial"
	"github.com/banshee-data/haunt.report/internal/spatial/geometry"
	"github.com/banshee-data/haunt.report/internal/spatial/scene"
)

// Dispatcher runs fn on the consumer goroutine. It may drop fn once the
// consumer has stopped.
type Dispatcher func(fn func())

// CollisionWorker generates collision shapes off the consumer goroutine and
// hands the results back through a Dispatcher, so entity bookkeeping stays
// single-writer. Visual creation never waits on it.
type CollisionWorker struct {
	ctx      context.Context
	renderer scene.Renderer
	dispatch Dispatcher
	wg       sync.WaitGroup
}

// NewCollisionWorker creates a worker whose jobs are abandoned once ctx is done.
func NewCollisionWorker(ctx context.Context, renderer scene.Renderer, dispatch Dispatcher) *CollisionWorker {
	return &CollisionWorker{ctx: ctx, renderer: renderer, dispatch: dispatch}
}

// Submit generates a shape for mesh and dispatches apply with the result.
func (w *CollisionWorker) Submit(mesh geometry.Mesh, apply func(*scene.CollisionShape, error)) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		shape, err := w.renderer.GenerateCollision(w.ctx, mesh)
		if w.ctx.Err() != nil {
			return
		}
		w.dispatch(func() { apply(shape, err) })
	}()
}

// Wait blocks until every submitted job has finished or been abandoned.
func (w *CollisionWorker) Wait() {
	w.wg.Wait()
}

// requestCollision schedules a collision shape for the entry's current mesh.
// Results for a superseded generation or a removed entity are discarded.
func (m *Manager) requestCollision(id spatial.FeatureID, e *entry) {
	if m.collisions == nil {
		return
	}
	entity, generation := e.entity, e.generation
	m.collisions.Submit(e.mesh, func(shape *scene.CollisionShape, err error) {
		cur, ok := m.entries[id]
		if !ok || cur.entity != entity || cur.generation != generation {
			m.stats.staleCollisions++
			return
		}
		if err != nil {
			m.stats.collisionFailures++
			spatial.Opsf("[%s] collision shape for %s failed, continuing without: %v", m.kind, id, err)
			return
		}
		if err := m.renderer.SetCollision(entity, shape); err != nil {
			m.stats.collisionFailures++
			spatial.Opsf("[%s] attach collision for %s: %v", m.kind, id, err)
			return
		}
		m.stats.collisions++
	})
}
