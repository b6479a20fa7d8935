package domain

import (
	"testing"
	"time"

	"github.com/ambientflow/ambientmix/internal/domain/vo"
)

func TestCatalog_AssetURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{name: "absolute", baseURL: "http://cdn.test/src/assets/sounds", want: "http://cdn.test/src/assets/sounds/rain.mp3"},
		{name: "trailing slash", baseURL: "http://cdn.test/sounds/", want: "http://cdn.test/sounds/rain.mp3"},
		{name: "relative", baseURL: "/src/assets/sounds", want: "/src/assets/sounds/rain.mp3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCatalog(tt.baseURL, nil)
			rain, ok := c.Lookup("rain")
			if !ok {
				t.Fatal("rain should be in the default catalog")
			}
			if got := c.AssetURL(rain); got != tt.want {
				t.Errorf("AssetURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCatalog_Defaults(t *testing.T) {
	c := NewCatalog("http://cdn.test", nil)
	if len(c.Sounds()) != len(DefaultSounds) {
		t.Errorf("len(Sounds()) = %d, want %d", len(c.Sounds()), len(DefaultSounds))
	}
	if got := c.DefaultVolume("rain"); got != 50 {
		t.Errorf("DefaultVolume(rain) = %d, want 50", got)
	}
	if got := c.DefaultVolume("nope"); got != 0 {
		t.Errorf("DefaultVolume(nope) = %d, want 0", got)
	}
}

func TestCatalog_IgnoresDuplicates(t *testing.T) {
	c := NewCatalog("http://cdn.test", []Sound{
		{ID: "rain", FileName: "rain.mp3", DefaultVolume: 10},
		{ID: "rain", FileName: "rain2.mp3", DefaultVolume: 90},
	})
	s, _ := c.Lookup("rain")
	if s.FileName != "rain.mp3" || len(c.IDs()) != 1 {
		t.Errorf("duplicate id replaced first entry: %+v", s)
	}
}

func TestCacheStats_RecordLookup(t *testing.T) {
	var s CacheStats
	if s.HitRate != 0 {
		t.Errorf("initial HitRate = %v, want 0", s.HitRate)
	}
	s.RecordLookup(false)
	s.RecordLookup(true)
	if s.HitRate != 50 {
		t.Errorf("HitRate = %v, want 50", s.HitRate)
	}
	if s.TotalRequests != 2 || s.CacheHits != 1 {
		t.Errorf("counters = %d/%d, want 2/1", s.TotalRequests, s.CacheHits)
	}
}

func TestCacheEntryMeta_IsStale(t *testing.T) {
	now := time.Now()
	week := 7 * 24 * time.Hour

	tests := []struct {
		name     string
		priority vo.Priority
		lastUsed time.Time
		want     bool
	}{
		{name: "low and old", priority: vo.PriorityLow, lastUsed: now.Add(-8 * 24 * time.Hour), want: true},
		{name: "low and recent", priority: vo.PriorityLow, lastUsed: now.Add(-time.Hour), want: false},
		{name: "high and old", priority: vo.PriorityHigh, lastUsed: now.Add(-30 * 24 * time.Hour), want: false},
		{name: "medium and old", priority: vo.PriorityMedium, lastUsed: now.Add(-30 * 24 * time.Hour), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := CacheEntryMeta{Priority: tt.priority, LastUsedAt: tt.lastUsed}
			if got := m.IsStale(now, week); got != tt.want {
				t.Errorf("IsStale() = %v, want %v", got, tt.want)
			}
		})
	}
}
