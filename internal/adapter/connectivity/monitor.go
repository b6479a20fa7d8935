package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ambientflow/ambientmix/internal/domain/event"
	"github.com/ambientflow/ambientmix/internal/port"
)

// Prober checks whether a URL is reachable
type Prober interface {
	Probe(ctx context.Context, url string, timeout time.Duration) bool
}

// Config holds monitor configuration
type Config struct {
	ProbeURL      string // Empty disables probing; state changes only through Set
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		ProbeInterval: 15 * time.Second,
		ProbeTimeout:  3 * time.Second,
	}
}

// Monitor tracks online/offline state and notifies subscribers on change.
// The initial state is online.
type Monitor struct {
	config     *Config
	prober     Prober
	dispatcher event.EventDispatcher
	logger     *zap.Logger

	mu          sync.Mutex
	online      bool
	subscribers map[int]func(bool)
	nextID      int
}

// Ensure Monitor implements port.Connectivity
var _ port.Connectivity = (*Monitor)(nil)

// NewMonitor creates a new connectivity monitor
func NewMonitor(cfg *Config, prober Prober, dispatcher event.EventDispatcher, logger *zap.Logger) *Monitor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 15 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}
	if dispatcher == nil {
		dispatcher = event.NewNullDispatcher()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		config:      cfg,
		prober:      prober,
		dispatcher:  dispatcher,
		logger:      logger,
		online:      true,
		subscribers: make(map[int]func(bool)),
	}
}

// Online returns the current state
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers fn for state transitions
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subscribers[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, id)
			m.mu.Unlock()
		})
	}
}

// Set changes the state and notifies subscribers if it differs from the
// current one. Subscribers run synchronously outside the lock.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]func(bool), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	m.logger.Info("Connectivity changed", zap.Bool("online", online))
	m.dispatcher.Dispatch(event.NewConnectivityChanged(online))

	for _, fn := range subs {
		fn(online)
	}
}

// Run probes until ctx is cancelled. It returns immediately when no probe URL
// or prober is configured.
func (m *Monitor) Run(ctx context.Context) {
	if m.config.ProbeURL == "" || m.prober == nil {
		m.logger.Debug("Connectivity probing disabled")
		return
	}

	m.logger.Info("Starting connectivity monitor",
		zap.String("probe_url", m.config.ProbeURL),
		zap.Duration("interval", m.config.ProbeInterval))

	m.probeOnce(ctx)

	ticker := time.NewTicker(m.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeOnce(ctx)
		}
	}
}

func (m *Monitor) probeOnce(ctx context.Context) {
	online := m.prober.Probe(ctx, m.config.ProbeURL, m.config.ProbeTimeout)
	if ctx.Err() != nil {
		return
	}
	m.Set(online)
}
