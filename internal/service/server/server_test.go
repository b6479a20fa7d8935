package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ambientflow/ambientmix/internal/domain"
	"github.com/ambientflow/ambientmix/internal/domain/service"
	"github.com/ambientflow/ambientmix/internal/domain/vo"
	"github.com/ambientflow/ambientmix/internal/metrics"
	"github.com/ambientflow/ambientmix/internal/port"
)

// mockMixer records calls and keeps minimal state
type mockMixer struct {
	mu       sync.Mutex
	loaded   map[string]bool
	playing  map[string]bool
	volumes  map[string]int
	failLoad bool
	fades    map[string]time.Duration
	smart    int
	unused   int
}

func newMockMixer() *mockMixer {
	return &mockMixer{
		loaded:  make(map[string]bool),
		playing: make(map[string]bool),
		volumes: make(map[string]int),
		fades:   make(map[string]time.Duration),
	}
}

func (m *mockMixer) LoadOnDemand(ctx context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLoad {
		return false
	}
	m.loaded[id] = true
	return true
}

func (m *mockMixer) Play(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded[id] {
		m.playing[id] = true
	}
}

func (m *mockMixer) Stop(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing[id] = false
}

func (m *mockMixer) SetVolume(id string, level int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded[id] {
		m.volumes[id] = vo.NewVolume(level).Level()
	}
}

func (m *mockMixer) FadeIn(id string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fades[id] = d
	m.playing[id] = true
}

func (m *mockMixer) FadeOut(id string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fades[id] = d
}

func (m *mockMixer) Unload(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.loaded, id)
	delete(m.playing, id)
}

func (m *mockMixer) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = make(map[string]bool)
}

func (m *mockMixer) UnloadUnused() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unused++
	return 2
}

func (m *mockMixer) SmartUnloadUnused() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.smart++
	return 1
}

func (m *mockMixer) GetPlayingSounds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := []string{}
	for id, p := range m.playing {
		if p {
			ids = append(ids, id)
		}
	}
	return ids
}

func (m *mockMixer) LoadedSounds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := []string{}
	for id, l := range m.loaded {
		if l {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (m *mockMixer) IsPlaying(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing[id]
}

func (m *mockMixer) IsLoaded(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded[id]
}

func (m *mockMixer) GetVolume(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.volumes[id]; ok {
		return v
	}
	return 50
}

func (m *mockMixer) GetMemoryUsage() domain.MemoryUsage {
	return domain.MemoryUsage{HandleCount: 2, EstimatedBytes: 3 << 20, EstimatedMemory: "3MB"}
}

// mockCache implements Cache
type mockCache struct {
	mu        sync.Mutex
	offline   bool
	preloads  int
	cleanups  int
	clears    int
	clearFail bool
	policy    *service.PriorityPolicy
}

func newMockCache() *mockCache {
	return &mockCache{policy: service.DefaultPriorityPolicy()}
}

func (c *mockCache) GetStats() domain.CacheStats {
	return domain.CacheStats{TotalSizeBytes: 2048, CachedFileCount: 1, TotalRequests: 4, CacheHits: 2, HitRate: 50}
}

func (c *mockCache) ListCachedKeys(ctx context.Context) []string {
	return []string{"http://assets.test/rain.mp3"}
}

func (c *mockCache) Entries() []domain.CacheEntryMeta {
	return []domain.CacheEntryMeta{
		{SoundID: "thunder", Priority: vo.PriorityLow, LastUsedAt: time.Now().Add(-time.Hour)},
		{SoundID: "rain", Priority: vo.PriorityHigh, Preload: true, SizeBytes: 2048, LastUsedAt: time.Now()},
	}
}

func (c *mockCache) PreloadHighPriority(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preloads++
}

func (c *mockCache) CleanupStale(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanups++
	return 3
}

func (c *mockCache) Clear(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clears++
	return !c.clearFail
}

func (c *mockCache) IsOffline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offline
}

func (c *mockCache) Priority(id string) vo.Priority { return c.policy.PriorityOf(id) }

type mockPinger struct{ err error }

func (p *mockPinger) Ping(ctx context.Context) error { return p.err }

type testServer struct {
	handler http.Handler
	mixer   *mockMixer
	cache   *mockCache
	pinger  *mockPinger
}

type mockStorage struct{}

func (mockStorage) Usage() port.StorageUsage {
	return port.StorageUsage{OnDiskBytes: 1536, Disk: &port.DiskUsage{UsedPct: 42}}
}

func newTestServer(t *testing.T, cfg *Config) *testServer {
	t.Helper()
	ts := &testServer{
		mixer:  newMockMixer(),
		cache:  newMockCache(),
		pinger: &mockPinger{},
	}
	latency := metrics.NewLatencyTracker(0.01)
	latency.Record(metrics.OpFetch, 40*time.Millisecond)

	s := New(cfg, Deps{
		Catalog: domain.NewCatalog("http://assets.test", nil),
		Mixer:   ts.mixer,
		Cache:   ts.cache,
		Store:   ts.pinger,
		Storage: mockStorage{},
		Latency: latency,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("# metrics\n"))
		}),
	}, zap.NewNop())
	ts.handler = s.Handler()
	return ts
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	decode(t, rec, &body)
	if body["status"] != "healthy" || body["online"] != true {
		t.Errorf("body = %v", body)
	}

	ts.pinger.err = errors.New("db closed")
	if rec := ts.do(http.MethodGet, "/health", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestServer_RequestID(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/health", "")
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("response has no request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "6f1f0c1e-7c1a-4b8e-9a55-0c5d0e0c9b11")
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "6f1f0c1e-7c1a-4b8e-9a55-0c5d0e0c9b11" {
		t.Errorf("request id = %q, want client id kept", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got == "not-a-uuid" {
		t.Error("invalid client id was kept")
	}
}

func TestServer_ListSounds(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.mixer.loaded["rain"] = true
	ts.mixer.playing["rain"] = true

	rec := ts.do(http.MethodGet, "/sounds", "")
	var states []SoundState
	decode(t, rec, &states)

	if len(states) != len(domain.DefaultSounds) {
		t.Fatalf("len(states) = %d, want %d", len(states), len(domain.DefaultSounds))
	}
	for _, s := range states {
		if s.ID == "rain" {
			if !s.Loaded || !s.Playing || s.Priority != "high" {
				t.Errorf("rain state = %+v", s)
			}
		}
	}
}

func TestServer_SoundActions(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		path        string
		body        string
		wantStatus  int
		wantPlaying bool
	}{
		{name: "play loads and plays", method: http.MethodPost, path: "/sounds/rain/play", wantStatus: http.StatusOK, wantPlaying: true},
		{name: "load", method: http.MethodPost, path: "/sounds/rain/load", wantStatus: http.StatusOK},
		{name: "stop", method: http.MethodPost, path: "/sounds/rain/stop", wantStatus: http.StatusOK},
		{name: "unknown sound", method: http.MethodPost, path: "/sounds/nonexistent/play", wantStatus: http.StatusNotFound},
		{name: "wrong method", method: http.MethodGet, path: "/sounds/rain/play", wantStatus: http.StatusMethodNotAllowed},
		{name: "fade in", method: http.MethodPost, path: "/sounds/rain/fade-in?duration_ms=200", wantStatus: http.StatusOK, wantPlaying: true},
		{name: "bad fade duration", method: http.MethodPost, path: "/sounds/rain/fade-in?duration_ms=soon", wantStatus: http.StatusBadRequest},
		{name: "fade out", method: http.MethodPost, path: "/sounds/rain/fade-out", wantStatus: http.StatusAccepted},
		{name: "volume", method: http.MethodPut, path: "/sounds/rain/volume", body: `{"volume": 30}`, wantStatus: http.StatusOK},
		{name: "volume missing", method: http.MethodPut, path: "/sounds/rain/volume", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "volume malformed", method: http.MethodPut, path: "/sounds/rain/volume", body: `loud`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			rec := ts.do(tt.method, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if rec.Code >= 300 {
				return
			}
			var state SoundState
			decode(t, rec, &state)
			if state.Playing != tt.wantPlaying {
				t.Errorf("Playing = %v, want %v", state.Playing, tt.wantPlaying)
			}
		})
	}
}

func TestServer_PlayLoadFailure(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.mixer.failLoad = true

	rec := ts.do(http.MethodPost, "/sounds/rain/play", "")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	if ts.mixer.IsPlaying("rain") {
		t.Error("sound playing after failed load")
	}
}

func TestServer_VolumeClampedAndFadeDuration(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(http.MethodPost, "/sounds/rain/load", "")

	rec := ts.do(http.MethodPut, "/sounds/rain/volume", `{"volume": 180}`)
	var state SoundState
	decode(t, rec, &state)
	if state.Volume != 100 {
		t.Errorf("Volume = %d, want 100", state.Volume)
	}

	ts.do(http.MethodPost, "/sounds/rain/fade-out?duration_ms=250", "")
	if got := ts.mixer.fades["rain"]; got != 250*time.Millisecond {
		t.Errorf("fade duration = %v, want 250ms", got)
	}
}

func TestServer_Mixer(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(http.MethodPost, "/sounds/rain/play", "")
	ts.do(http.MethodPost, "/sounds/waves/play", "")

	var playing struct {
		Playing []string `json:"playing"`
		Loaded  []string `json:"loaded"`
	}
	decode(t, ts.do(http.MethodGet, "/mixer/playing", ""), &playing)
	if len(playing.Playing) != 2 {
		t.Errorf("playing = %v, want 2 sounds", playing.Playing)
	}
	if len(playing.Loaded) != 2 || playing.Loaded[0] != "rain" {
		t.Errorf("loaded = %v, want [rain waves]", playing.Loaded)
	}

	decode(t, ts.do(http.MethodPost, "/mixer/stop-all", ""), &playing)
	if len(playing.Playing) != 0 {
		t.Errorf("playing after stop-all = %v", playing.Playing)
	}

	var unload struct {
		Unloaded int  `json:"unloaded"`
		Smart    bool `json:"smart"`
	}
	decode(t, ts.do(http.MethodPost, "/mixer/unload-unused?smart=true", ""), &unload)
	if unload.Unloaded != 1 || !unload.Smart || ts.mixer.smart != 1 {
		t.Errorf("smart unload = %+v", unload)
	}
	decode(t, ts.do(http.MethodPost, "/mixer/unload-unused", ""), &unload)
	if unload.Unloaded != 2 || unload.Smart || ts.mixer.unused != 1 {
		t.Errorf("unload = %+v", unload)
	}
	if rec := ts.do(http.MethodPost, "/mixer/unload-unused?smart=maybe", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	var usage domain.MemoryUsage
	decode(t, ts.do(http.MethodGet, "/mixer/memory", ""), &usage)
	if usage.HandleCount != 2 || usage.EstimatedMemory != "3MB" {
		t.Errorf("usage = %+v", usage)
	}
}

func TestServer_CacheEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	var stats struct {
		Stats      domain.CacheStats `json:"stats"`
		TotalSize  string            `json:"total_size"`
		OnDiskSize string            `json:"on_disk_size"`
		Storage    port.StorageUsage `json:"storage"`
	}
	decode(t, ts.do(http.MethodGet, "/cache/stats", ""), &stats)
	if stats.Stats.HitRate != 50 || stats.TotalSize != "2.0 KiB" {
		t.Errorf("stats = %+v", stats)
	}
	if stats.OnDiskSize != "1.5 KiB" || stats.Storage.Disk == nil || stats.Storage.Disk.UsedPct != 42 {
		t.Errorf("storage = %q %+v", stats.OnDiskSize, stats.Storage)
	}

	var files struct {
		Count int `json:"count"`
	}
	decode(t, ts.do(http.MethodGet, "/cache/files", ""), &files)
	if files.Count != 1 {
		t.Errorf("files count = %d, want 1", files.Count)
	}

	var entries []entryView
	decode(t, ts.do(http.MethodGet, "/cache/entries", ""), &entries)
	if len(entries) != 2 || entries[0].SoundID != "thunder" || !entries[1].Cached {
		t.Errorf("entries = %+v", entries)
	}
	if entries[0].LastUsed != "1 hour ago" {
		t.Errorf("LastUsed = %q, want 1 hour ago", entries[0].LastUsed)
	}
}

func TestServer_MaintenanceRateLimited(t *testing.T) {
	ts := newTestServer(t, &Config{MaintenanceMinInterval: time.Hour})

	if rec := ts.do(http.MethodPost, "/cache/preload", ""); rec.Code != http.StatusOK {
		t.Fatalf("preload status = %d, want 200", rec.Code)
	}
	rec := ts.do(http.MethodPost, "/cache/preload", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second preload status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if ts.cache.preloads != 1 {
		t.Errorf("preloads = %d, want 1", ts.cache.preloads)
	}

	var cleanup struct {
		Removed int `json:"removed"`
	}
	decode(t, ts.do(http.MethodPost, "/cache/cleanup", ""), &cleanup)
	if cleanup.Removed != 3 {
		t.Errorf("removed = %d, want 3", cleanup.Removed)
	}
}

func TestServer_PreloadOffline(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.cache.offline = true

	if rec := ts.do(http.MethodPost, "/cache/preload", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if ts.cache.preloads != 0 {
		t.Error("preload ran while offline")
	}
}

func TestServer_ClearRequiresAuth(t *testing.T) {
	ts := newTestServer(t, &Config{AdminUsername: "admin", AdminPassword: "secret"})

	if rec := ts.do(http.MethodPost, "/cache/clear", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("status without auth = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/cache/clear", nil)
	req.SetBasicAuth("admin", "wrong")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status with bad password = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/cache/clear", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status with auth = %d, want 200", rec.Code)
	}
	if ts.cache.clears != 1 {
		t.Errorf("clears = %d, want 1", ts.cache.clears)
	}
}

func TestServer_ClearFailure(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.cache.clearFail = true

	if rec := ts.do(http.MethodPost, "/cache/clear", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestServer_DebugAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil)

	var all []metrics.Stats
	decode(t, ts.do(http.MethodGet, "/debug/latency", ""), &all)
	if len(all) != 1 || all[0].Operation != metrics.OpFetch {
		t.Errorf("latency = %+v", all)
	}
	if rec := ts.do(http.MethodGet, "/debug/latency?op=missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	rec := ts.do(http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "# metrics") {
		t.Errorf("metrics = %d %q", rec.Code, rec.Body.String())
	}
}
