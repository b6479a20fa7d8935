package maintenance

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// mockCache implements Cache for testing
type mockCache struct {
	mu             sync.Mutex
	cleanupCalled  int
	preloadCalled  int
	cleanupRemoved int
}

func (m *mockCache) CleanupStale(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupCalled++
	return m.cleanupRemoved
}

func (m *mockCache) PreloadHighPriority(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preloadCalled++
}

func (m *mockCache) counts() (cleanup, preload int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleanupCalled, m.preloadCalled
}

type mockReclaimer struct {
	mu     sync.Mutex
	called int
}

func (m *mockReclaimer) SmartUnloadUnused() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called++
	return 1
}

func (m *mockReclaimer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.called
}

type mockTempCleaner struct {
	mu     sync.Mutex
	called int
	maxAge time.Duration
}

func (m *mockTempCleaner) CleanTemp(olderThan time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called++
	m.maxAge = olderThan
	return 2
}

// mockConnectivity lets tests drive transitions
type mockConnectivity struct {
	mu      sync.Mutex
	online  bool
	subs    []func(bool)
	removed int
}

func (m *mockConnectivity) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *mockConnectivity) Subscribe(fn func(bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
	return func() {
		m.mu.Lock()
		m.removed++
		m.mu.Unlock()
	}
}

func (m *mockConnectivity) set(online bool) {
	m.mu.Lock()
	m.online = online
	subs := append([]func(bool){}, m.subs...)
	m.mu.Unlock()
	for _, fn := range subs {
		fn(online)
	}
}

func (m *mockConnectivity) subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func runService(t *testing.T, s *Service) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()
	return func() {
		cancel()
		s.Stop()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Start() did not return after Stop()")
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestService_New(t *testing.T) {
	s := New(nil, &mockCache{}, nil, nil, nil, zap.NewNop())
	if s == nil {
		t.Fatal("New() returned nil")
	}
	if s.config.CleanupInterval != time.Hour {
		t.Errorf("CleanupInterval = %v, want %v", s.config.CleanupInterval, time.Hour)
	}
	if s.config.IdleUnloadInterval != 5*time.Minute {
		t.Errorf("IdleUnloadInterval = %v, want %v", s.config.IdleUnloadInterval, 5*time.Minute)
	}

	s = New(&Config{CleanupInterval: 2 * time.Minute}, &mockCache{}, nil, nil, nil, nil)
	if s.config.CleanupInterval != 2*time.Minute {
		t.Errorf("CleanupInterval = %v, want %v", s.config.CleanupInterval, 2*time.Minute)
	}
	if s.config.TempFileMaxAge != 24*time.Hour {
		t.Errorf("TempFileMaxAge = %v, want %v", s.config.TempFileMaxAge, 24*time.Hour)
	}
}

func TestService_PeriodicTasks(t *testing.T) {
	cache := &mockCache{cleanupRemoved: 3}
	reclaimer := &mockReclaimer{}
	temp := &mockTempCleaner{}

	cfg := &Config{
		CleanupInterval:    10 * time.Millisecond,
		IdleUnloadInterval: 10 * time.Millisecond,
		TempFileMaxAge:     time.Hour,
	}
	s := New(cfg, cache, reclaimer, temp, nil, zap.NewNop())
	stop := runService(t, s)

	waitFor(t, func() bool {
		cleanup, _ := cache.counts()
		return cleanup > 0 && reclaimer.count() > 0
	})
	stop()

	temp.mu.Lock()
	defer temp.mu.Unlock()
	if temp.called == 0 {
		t.Error("CleanTemp was not called")
	}
	if temp.maxAge != time.Hour {
		t.Errorf("CleanTemp maxAge = %v, want 1h", temp.maxAge)
	}
}

func TestService_PreloadOnStart(t *testing.T) {
	cache := &mockCache{}
	conn := &mockConnectivity{online: true}

	cfg := &Config{
		CleanupInterval:    time.Hour,
		IdleUnloadInterval: time.Hour,
		PreloadOnStart:     true,
	}
	s := New(cfg, cache, nil, nil, conn, zap.NewNop())
	stop := runService(t, s)
	defer stop()

	waitFor(t, func() bool {
		_, preload := cache.counts()
		return preload == 1
	})
}

func TestService_PreloadSkippedWhileOffline(t *testing.T) {
	cache := &mockCache{}
	conn := &mockConnectivity{online: false}

	cfg := &Config{
		CleanupInterval:    time.Hour,
		IdleUnloadInterval: time.Hour,
		PreloadOnStart:     true,
	}
	s := New(cfg, cache, nil, nil, conn, zap.NewNop())
	stop := runService(t, s)

	waitFor(t, func() bool { return conn.subscribers() == 1 })
	stop()

	if _, preload := cache.counts(); preload != 0 {
		t.Errorf("preload calls = %d, want 0 while offline", preload)
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.removed != 1 {
		t.Error("connectivity subscription not removed on stop")
	}
}

func TestService_PreloadOnReconnect(t *testing.T) {
	cache := &mockCache{}
	conn := &mockConnectivity{online: false}

	cfg := &Config{
		CleanupInterval:    time.Hour,
		IdleUnloadInterval: time.Hour,
		PreloadMinInterval: time.Hour,
	}
	s := New(cfg, cache, nil, nil, conn, zap.NewNop())
	stop := runService(t, s)
	defer stop()

	waitFor(t, func() bool { return conn.subscribers() == 1 })
	conn.set(true)
	waitFor(t, func() bool {
		_, preload := cache.counts()
		return preload == 1
	})

	// A flapping link does not trigger another preload within the interval
	conn.set(false)
	conn.set(true)
	time.Sleep(30 * time.Millisecond)
	if _, preload := cache.counts(); preload != 1 {
		t.Errorf("preload calls = %d, want 1", preload)
	}
}

func TestService_RunCleanup(t *testing.T) {
	cache := &mockCache{}
	temp := &mockTempCleaner{}
	s := New(nil, cache, nil, temp, nil, zap.NewNop())

	s.RunCleanup(context.Background())

	if cleanup, _ := cache.counts(); cleanup != 1 {
		t.Errorf("CleanupStale calls = %d, want 1", cleanup)
	}
	if temp.called != 1 {
		t.Errorf("CleanTemp calls = %d, want 1", temp.called)
	}
}

func TestService_DoubleStart(t *testing.T) {
	s := New(&Config{CleanupInterval: time.Hour, IdleUnloadInterval: time.Hour}, &mockCache{}, nil, nil, nil, zap.NewNop())
	stop := runService(t, s)
	defer stop()

	time.Sleep(10 * time.Millisecond)
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.CleanupInterval != time.Hour {
		t.Errorf("CleanupInterval = %v, want %v", cfg.CleanupInterval, time.Hour)
	}
	if cfg.PreloadMinInterval != time.Minute {
		t.Errorf("PreloadMinInterval = %v, want %v", cfg.PreloadMinInterval, time.Minute)
	}
	if !cfg.PreloadOnStart {
		t.Error("PreloadOnStart should default to true")
	}
}
