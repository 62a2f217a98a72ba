package telemetry

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"

	"github.com/banshee-data/vrcore/internal/monitoring"
	"github.com/banshee-data/vrcore/internal/warp"
)

var logf = monitoring.Component("telemetry")

// Config holds configuration for the telemetry gRPC server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "localhost:50061")
	ListenAddr string
	// MaxClients caps concurrent streams; further streams are refused.
	MaxClients int
	// ClientBuffer is how many frames a slow client may lag before frames
	// are dropped for it.
	ClientBuffer int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   "localhost:50061",
		MaxClients:   8,
		ClientBuffer: 64,
	}
}

// Publisher fans frame stats out to streaming clients. Publish never
// blocks, so it is safe to call from the warp goroutine.
type Publisher struct {
	// StatsFunc, if set before Start, adds counters to GetStats.
	StatsFunc StatsFunc

	config   Config
	server   *grpc.Server
	listener net.Listener

	frameChan chan FrameStats
	clients   map[uint64]*clientStream
	clientsMu sync.RWMutex
	nextID    atomic.Uint64

	frameCount    atomic.Uint64
	droppedFrames atomic.Uint64
	clientCount   atomic.Int32

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type clientStream struct {
	every   uint64
	frameCh chan FrameStats
}

// NewPublisher creates a new Publisher with the given configuration.
func NewPublisher(cfg Config) *Publisher {
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = DefaultConfig().ClientBuffer
	}
	return &Publisher{
		config:    cfg,
		frameChan: make(chan FrameStats, 256),
		clients:   make(map[uint64]*clientStream),
		stopCh:    make(chan struct{}),
	}
}

// Start begins distributing published frames. If lis is nil the publisher
// listens on ListenAddr and serves the telemetry service itself.
func (p *Publisher) Start(lis net.Listener) error {
	if p.running.Load() {
		return fmt.Errorf("publisher already running")
	}
	if lis == nil {
		var err error
		lis, err = net.Listen("tcp", p.config.ListenAddr)
		if err != nil {
			return fmt.Errorf("failed to listen: %w", err)
		}
	}
	p.listener = lis
	p.server = grpc.NewServer()
	RegisterService(p.server, NewServer(p, p.StatsFunc))
	p.running.Store(true)

	p.wg.Add(2)
	go p.broadcastLoop()
	go func() {
		defer p.wg.Done()
		logf("gRPC server listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			logf("gRPC server error: %v", err)
		}
	}()
	return nil
}

// StartBroadcast runs only the fan-out loop, for callers that register
// the service on their own grpc.Server.
func (p *Publisher) StartBroadcast() {
	if p.running.Swap(true) {
		return
	}
	p.wg.Add(1)
	go p.broadcastLoop()
}

// Stop gracefully stops the server and the fan-out loop.
func (p *Publisher) Stop() {
	if !p.running.Swap(false) {
		return
	}
	close(p.stopCh)
	if p.server != nil {
		p.server.Stop()
	}
	p.wg.Wait()
	logf("gRPC server stopped")
}

// Publish queues s for all clients, dropping it if the queue is full.
func (p *Publisher) Publish(s FrameStats) {
	if !p.running.Load() {
		return
	}
	select {
	case p.frameChan <- s:
		p.frameCount.Add(1)
	default:
		p.droppedFrames.Add(1)
	}
}

// OnFrame adapts Publish to warp.Config.OnFrame.
func (p *Publisher) OnFrame(r warp.FrameRecord) { p.Publish(FromRecord(r)) }

func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case s := <-p.frameChan:
			p.clientsMu.RLock()
			for _, c := range p.clients {
				if c.every > 1 && s.Tick%c.every != 0 {
					continue
				}
				select {
				case c.frameCh <- s:
				default:
					// Slow client.
					p.droppedFrames.Add(1)
				}
			}
			p.clientsMu.RUnlock()
		}
	}
}

// ErrTooManyClients is returned to streams beyond MaxClients.
var ErrTooManyClients = fmt.Errorf("too many telemetry clients")

func (p *Publisher) addClient(every uint64) (uint64, *clientStream, error) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if p.config.MaxClients > 0 && len(p.clients) >= p.config.MaxClients {
		return 0, nil, ErrTooManyClients
	}
	id := p.nextID.Add(1)
	c := &clientStream{every: every, frameCh: make(chan FrameStats, p.config.ClientBuffer)}
	p.clients[id] = c
	n := p.clientCount.Add(1)
	logf("client %d connected (total: %d)", id, n)
	return id, c, nil
}

func (p *Publisher) removeClient(id uint64) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if _, ok := p.clients[id]; !ok {
		return
	}
	delete(p.clients, id)
	n := p.clientCount.Add(-1)
	logf("client %d disconnected (remaining: %d)", id, n)
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	FrameCount  uint64 `json:"frame_count"`
	Dropped     uint64 `json:"dropped"`
	ClientCount int32  `json:"client_count"`
	Running     bool   `json:"running"`
}

func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		FrameCount:  p.frameCount.Load(),
		Dropped:     p.droppedFrames.Load(),
		ClientCount: p.clientCount.Load(),
		Running:     p.running.Load(),
	}
}

// Addr returns the listening address, or nil before Start.
func (p *Publisher) Addr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}
