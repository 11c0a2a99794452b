// Package tracking samples the device pose at a fixed rate for telemetry.
// It never touches the scene.
package tracking

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/banshee-data/haunt.report/internal/spatial"
	"github.com/banshee-data/haunt.report/internal/timeutil"
)

// DefaultInterval polls at 10 Hz.
const DefaultInterval = 100 * time.Millisecond

// DeviceTracker reports the most recent device pose, if one is known.
type DeviceTracker interface {
	LatestPose() (mgl32.Mat4, bool)
}

// Sample is one observed device pose.
type Sample struct {
	Pose mgl32.Mat4
	At   time.Time
}

// Position returns the translation part of the pose.
func (s Sample) Position() mgl32.Vec3 {
	return s.Pose.Col(3).Vec3()
}

// Poller reads a DeviceTracker on a ticker and publishes the latest sample.
type Poller struct {
	tracker  DeviceTracker
	interval time.Duration
	clock    timeutil.Clock

	latest  atomic.Pointer[Sample]
	polls   atomic.Uint64
	misses  atomic.Uint64
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewPoller creates a Poller. A non-positive interval uses DefaultInterval.
func NewPoller(tracker DeviceTracker, interval time.Duration, clock timeutil.Clock) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Poller{tracker: tracker, interval: interval, clock: clock}
}

// Start launches the polling goroutine. It stops when ctx is cancelled;
// Wait blocks until it has exited.
func (p *Poller) Start(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	ticker := p.clock.NewTicker(p.interval)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.running.Store(false)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				p.poll()
			}
		}
	}()
}

func (p *Poller) poll() {
	p.polls.Add(1)
	pose, ok := p.tracker.LatestPose()
	if !ok {
		p.misses.Add(1)
		return
	}
	s := &Sample{Pose: pose, At: p.clock.Now()}
	p.latest.Store(s)
	pos := s.Position()
	spatial.Tracef("[tracking] device at (%.2f, %.2f, %.2f)", pos.X(), pos.Y(), pos.Z())
}

// Wait blocks until the polling goroutine has exited.
func (p *Poller) Wait() { p.wg.Wait() }

// Latest returns the most recent sample.
func (p *Poller) Latest() (Sample, bool) {
	s := p.latest.Load()
	if s == nil {
		return Sample{}, false
	}
	return *s, true
}

// Polls returns how many times the tracker was read, and how many of those
// reads had no pose.
func (p *Poller) Polls() (total, misses uint64) {
	return p.polls.Load(), p.misses.Load()
}
