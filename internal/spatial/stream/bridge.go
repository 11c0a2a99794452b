// Package stream relays a sensor's per-kind update sequence to the single
// consumer goroutine, in arrival order and without dropping.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/haunt.report/internal/spatial"
	"github.com/banshee-data/haunt.report/internal/timeutil"
)

// DefaultWarmup is the delay before the relay opens the sensor sequence.
const DefaultWarmup = time.Second

// ErrAlreadyRunning is returned when Run is called twice on a Bridge.
var ErrAlreadyRunning = errors.New("bridge already running")

// Source opens the update sequence for one feature kind. The returned
// channel is closed by the source when the sequence ends.
type Source interface {
	Updates(ctx context.Context) (<-chan spatial.Update, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (<-chan spatial.Update, error)

func (f SourceFunc) Updates(ctx context.Context) (<-chan spatial.Update, error) { return f(ctx) }

// Config configures a Bridge.
type Config struct {
	Kind   spatial.FeatureKind
	Warmup time.Duration
	// Buffer is the capacity of the output channel. Forwarding blocks when
	// it is full.
	Buffer int
	Clock  timeutil.Clock
}

// Bridge owns the relay goroutine for one feature kind.
type Bridge struct {
	kind   spatial.FeatureKind
	warmup time.Duration
	clock  timeutil.Clock
	out    chan spatial.Update

	started atomic.Bool
	relayed atomic.Uint64
	done    chan struct{}

	mu  sync.Mutex
	err error
}

// New creates a Bridge. A negative Warmup is treated as zero.
func New(cfg Config) *Bridge {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	buffer := cfg.Buffer
	if buffer < 0 {
		buffer = 0
	}
	warmup := cfg.Warmup
	if warmup < 0 {
		warmup = 0
	}
	return &Bridge{
		kind:   cfg.Kind,
		warmup: warmup,
		clock:  clock,
		out:    make(chan spatial.Update, buffer),
		done:   make(chan struct{}),
	}
}

// Run starts the relay and returns the ordered output channel. The channel
// is closed when the source ends, fails to open, or ctx is cancelled.
func (b *Bridge) Run(ctx context.Context, src Source) (<-chan spatial.Update, error) {
	if !b.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	go b.relay(ctx, src)
	return b.out, nil
}

func (b *Bridge) relay(ctx context.Context, src Source) {
	defer close(b.done)
	defer close(b.out)

	if b.warmup > 0 {
		spatial.Diagf("[stream] %s relay warming up for %v", b.kind, b.warmup)
		select {
		case <-b.clock.After(b.warmup):
		case <-ctx.Done():
			return
		}
	}

	in, err := src.Updates(ctx)
	if err != nil {
		b.setErr(fmt.Errorf("open %s updates: %w", b.kind, err))
		spatial.Opsf("[stream] %s source failed to open: %v", b.kind, err)
		return
	}
	spatial.Diagf("[stream] %s relay started", b.kind)

	for {
		select {
		case <-ctx.Done():
			spatial.Diagf("[stream] %s relay cancelled after %d events", b.kind, b.relayed.Load())
			return
		case u, ok := <-in:
			if !ok {
				spatial.Diagf("[stream] %s source ended after %d events", b.kind, b.relayed.Load())
				return
			}
			u.Kind = b.kind
			select {
			case b.out <- u:
				b.relayed.Add(1)
			case <-ctx.Done():
				return
			}
		}
	}
}

func (b *Bridge) setErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

// Err returns the error that ended the relay, if any.
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Done is closed once the relay goroutine has exited.
func (b *Bridge) Done() <-chan struct{} { return b.done }

// Relayed returns the number of events forwarded to the consumer.
func (b *Bridge) Relayed() uint64 { return b.relayed.Load() }

// Kind returns the feature kind this bridge relays.
func (b *Bridge) Kind() spatial.FeatureKind { return b.kind }
