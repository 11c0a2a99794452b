package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/haunt.report/internal/spatial"
	"github.com/banshee-data/haunt.report/internal/timeutil"
)

func sequence(updates ...spatial.Update) SourceFunc {
	return func(ctx context.Context) (<-chan spatial.Update, error) {
		ch := make(chan spatial.Update)
		go func() {
			defer close(ch)
			for _, u := range updates {
				select {
				case ch <- u:
				case <-ctx.Done():
					return
				}
			}
		}()
		return ch, nil
	}
}

func events(n int) []spatial.Update {
	id := uuid.New()
	out := make([]spatial.Update, n)
	for i := range out {
		ev := spatial.EventUpdated
		switch {
		case i == 0:
			ev = spatial.EventAdded
		case i == n-1:
			ev = spatial.EventRemoved
		}
		out[i] = spatial.Update{ID: id, Event: ev, Classification: spatial.Classification(i % 8)}
	}
	return out
}

func drain(t *testing.T, ch <-chan spatial.Update) []spatial.Update {
	t.Helper()
	var got []spatial.Update
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, u)
		case <-timeout:
			t.Fatal("output channel was not closed")
		}
	}
}

func TestBridge_RelaysInOrderWithoutDropping(t *testing.T) {
	want := events(200)
	b := New(Config{Kind: spatial.KindMesh, Buffer: 0})
	out, err := b.Run(context.Background(), sequence(want...))
	require.NoError(t, err)

	got := drain(t, out)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Event, got[i].Event, "event %d", i)
		assert.Equal(t, want[i].Classification, got[i].Classification, "event %d", i)
		assert.Equal(t, spatial.KindMesh, got[i].Kind)
	}
	<-b.Done()
	assert.Equal(t, uint64(200), b.Relayed())
	assert.NoError(t, b.Err())
}

func TestBridge_WaitsForWarmup(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	opened := make(chan struct{})
	src := SourceFunc(func(ctx context.Context) (<-chan spatial.Update, error) {
		close(opened)
		return sequence(events(3)...)(ctx)
	})
	b := New(Config{Kind: spatial.KindSurface, Warmup: time.Second, Buffer: 4, Clock: clock})
	out, err := b.Run(context.Background(), src)
	require.NoError(t, err)

	clock.BlockUntil(1)
	select {
	case <-opened:
		t.Fatal("source opened before warm-up elapsed")
	default:
	}

	clock.Advance(time.Second)
	assert.Len(t, drain(t, out), 3)
	select {
	case <-opened:
	default:
		t.Fatal("source was never opened")
	}
}

func TestBridge_CancelDuringWarmup(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	src := SourceFunc(func(context.Context) (<-chan spatial.Update, error) {
		t.Error("source must not open after cancellation")
		return nil, nil
	})
	b := New(Config{Kind: spatial.KindSurface, Warmup: time.Minute, Clock: clock})
	out, err := b.Run(ctx, src)
	require.NoError(t, err)

	clock.BlockUntil(1)
	cancel()
	assert.Empty(t, drain(t, out))
	<-b.Done()
}

func TestBridge_CancelStopsRelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	infinite := SourceFunc(func(ctx context.Context) (<-chan spatial.Update, error) {
		ch := make(chan spatial.Update)
		go func() {
			defer close(ch)
			for {
				select {
				case ch <- spatial.Update{ID: uuid.New()}:
				case <-ctx.Done():
					return
				}
			}
		}()
		return ch, nil
	})
	b := New(Config{Kind: spatial.KindSurface})
	out, err := b.Run(ctx, infinite)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		<-out
	}
	cancel()
	drain(t, out)

	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not exit after cancel")
	}
	assert.GreaterOrEqual(t, b.Relayed(), uint64(10))
}

func TestBridge_SourceOpenError(t *testing.T) {
	b := New(Config{Kind: spatial.KindMesh})
	out, err := b.Run(context.Background(), SourceFunc(func(context.Context) (<-chan spatial.Update, error) {
		return nil, errors.New("not authorized")
	}))
	require.NoError(t, err)

	assert.Empty(t, drain(t, out))
	<-b.Done()
	require.Error(t, b.Err())
	assert.Contains(t, b.Err().Error(), "not authorized")
}

func TestBridge_RunTwice(t *testing.T) {
	b := New(Config{Kind: spatial.KindMesh})
	_, err := b.Run(context.Background(), sequence())
	require.NoError(t, err)
	_, err = b.Run(context.Background(), sequence())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}
