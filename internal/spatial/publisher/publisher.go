// Package publisher streams scene snapshots to websocket clients.
//
// A ticker builds a Frame from the scene root and the engine status, and a
// broadcast loop fans it out to every connected client. Slow clients drop
// frames instead of stalling the broadcast.
package publisher

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/haunt.report/internal/httputil"
	"github.com/banshee-data/haunt.report/internal/monitoring"
	"github.com/banshee-data/haunt.report/internal/spatial/engine"
	"github.com/banshee-data/haunt.report/internal/spatial/scene"
	"github.com/banshee-data/haunt.report/internal/timeutil"
)

// ErrAlreadyRunning is returned by Start on a running publisher.
var ErrAlreadyRunning = errors.New("publisher already running")

const (
	frameQueue   = 32
	clientQueue  = 4
	writeTimeout = 5 * time.Second
)

// Config holds publisher settings.
type Config struct {
	// Interval between scene snapshots (default 500ms).
	Interval time.Duration
	// MaxClients is the maximum number of concurrent websocket clients (default 8).
	MaxClients int
	Clock      timeutil.Clock
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Interval:   500 * time.Millisecond,
		MaxClients: 8,
		Clock:      timeutil.RealClock{},
	}
}

// Scene is the read side of the scene root.
type Scene interface {
	Entities() []scene.Entity
}

// Publisher owns the websocket clients and the broadcast loop.
type Publisher struct {
	config   Config
	scene    Scene
	status   func() engine.Status
	upgrader websocket.Upgrader

	frameChan chan *Frame
	clients   map[uint64]*client
	clientsMu sync.RWMutex
	nextID    atomic.Uint64

	frameCount    atomic.Uint64
	clientCount   atomic.Int32
	droppedFrames atomic.Uint64

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type client struct {
	id      uint64
	frameCh chan *Frame
	doneCh  chan struct{}
}

// NewPublisher creates a publisher reading from sc. status may be nil.
func NewPublisher(cfg Config, sc Scene, status func() engine.Status) *Publisher {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = def.MaxClients
	}
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}
	if status == nil {
		status = func() engine.Status { return engine.Status{} }
	}
	return &Publisher{
		config: cfg,
		scene:  sc,
		status: status,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		frameChan: make(chan *Frame, frameQueue),
		clients:   make(map[uint64]*client),
		stopCh:    make(chan struct{}),
	}
}

// Start begins periodic snapshots. It returns once the loops are running.
func (p *Publisher) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	ticker := p.config.Clock.NewTicker(p.config.Interval)

	p.wg.Add(2)
	go p.broadcastLoop()
	go func() {
		defer p.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C():
				if p.clientCount.Load() == 0 {
					continue
				}
				p.Publish(p.Snapshot())
			}
		}
	}()
	monitoring.Logf("[Publisher] streaming scene every %v", p.config.Interval)
	return nil
}

// Stop ends the loops and disconnects every client.
func (p *Publisher) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stopCh)
	p.wg.Wait()

	p.clientsMu.RLock()
	ids := make([]uint64, 0, len(p.clients))
	for id := range p.clients {
		ids = append(ids, id)
	}
	p.clientsMu.RUnlock()
	for _, id := range ids {
		p.removeClient(id)
	}
	monitoring.Logf("[Publisher] stopped (frames=%d dropped=%d)", p.frameCount.Load(), p.droppedFrames.Load())
}

// Snapshot builds a frame from the current scene and status.
func (p *Publisher) Snapshot() *Frame {
	return BuildFrame(p.frameCount.Add(1), p.config.Clock.Now(), p.status(), p.scene.Entities())
}

// Publish queues a frame for every client. The frame is dropped when the
// queue is full.
func (p *Publisher) Publish(f *Frame) {
	if !p.running.Load() || f == nil {
		return
	}
	select {
	case p.frameChan <- f:
	default:
		dropped := p.droppedFrames.Add(1)
		monitoring.Logf("[Publisher] DROPPED frame %d (total dropped: %d), queue full", f.Seq, dropped)
	}
}

func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case f := <-p.frameChan:
			p.clientsMu.RLock()
			for _, c := range p.clients {
				select {
				case c.frameCh <- f:
				default:
					p.droppedFrames.Add(1)
				}
			}
			p.clientsMu.RUnlock()
		}
	}
}

// ServeHTTP upgrades the request to a websocket and streams frames until
// either side closes.
func (p *Publisher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !p.running.Load() {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "publisher not running")
		return
	}
	if int(p.clientCount.Load()) >= p.config.MaxClients {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "too many clients")
		return
	}
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("[Publisher] upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}
	defer conn.Close()

	c, ok := p.addClient()
	if !ok {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		return
	}
	defer p.removeClient(c.id)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := p.write(conn, p.Snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-c.doneCh:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		case <-readDone:
			return
		case f := <-c.frameCh:
			if err := p.write(conn, f); err != nil {
				monitoring.Logf("[Publisher] write to client %d failed: %v", c.id, err)
				return
			}
		}
	}
}

func (p *Publisher) write(conn *websocket.Conn, f *Frame) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(f)
}

// addClient registers a client. It refuses once Stop has begun; the running
// check happens under clientsMu so Stop's sweep sees every admitted client.
func (p *Publisher) addClient() (*client, bool) {
	c := &client{
		id:      p.nextID.Add(1),
		frameCh: make(chan *Frame, clientQueue),
		doneCh:  make(chan struct{}),
	}
	p.clientsMu.Lock()
	if !p.running.Load() {
		p.clientsMu.Unlock()
		return nil, false
	}
	p.clients[c.id] = c
	n := p.clientCount.Add(1)
	p.clientsMu.Unlock()
	monitoring.Logf("[Publisher] client connected: %d (total: %d)", c.id, n)
	return c, true
}

func (p *Publisher) removeClient(id uint64) {
	p.clientsMu.Lock()
	c, ok := p.clients[id]
	if ok {
		close(c.doneCh)
		delete(p.clients, id)
	}
	p.clientsMu.Unlock()
	if ok {
		n := p.clientCount.Add(-1)
		monitoring.Logf("[Publisher] client disconnected: %d (remaining: %d)", id, n)
	}
}

// Stats is a point-in-time view of the publisher.
type Stats struct {
	Frames  uint64 `json:"frames"`
	Dropped uint64 `json:"dropped"`
	Clients int32  `json:"clients"`
	Running bool   `json:"running"`
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() Stats {
	return Stats{
		Frames:  p.frameCount.Load(),
		Dropped: p.droppedFrames.Load(),
		Clients: p.clientCount.Load(),
		Running: p.running.Load(),
	}
}
