package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ambientflow/ambientmix/internal/domain/event"
)

func TestLatencyTracker(t *testing.T) {
	lt := NewLatencyTracker(0.01)

	if _, err := lt.GetStats(OpFetch); err == nil {
		t.Error("GetStats() on unknown op should fail")
	}

	for i := 1; i <= 100; i++ {
		lt.Record(OpFetch, time.Duration(i)*time.Millisecond)
	}
	lt.Record(OpGet, time.Millisecond)

	stats, err := lt.GetStats(OpFetch)
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.Count != 100 {
		t.Errorf("Count = %d, want 100", stats.Count)
	}
	if stats.P50 < 48 || stats.P50 > 52 {
		t.Errorf("P50 = %v, want about 50", stats.P50)
	}
	if stats.Max < 99 || stats.Max > 101 {
		t.Errorf("Max = %v, want about 100", stats.Max)
	}

	all := lt.GetAllStats()
	if len(all) != 2 || all[0].Operation != OpFetch || all[1].Operation != OpGet {
		t.Errorf("GetAllStats() = %+v", all)
	}
}

func TestCollector_Handle(t *testing.T) {
	c := NewCollector()

	events := []event.DomainEvent{
		event.NewCacheLookup("rain", false),
		event.NewCacheLookup("rain", true),
		event.NewCacheLookup("rain", true),
		event.NewAssetCached("rain", "u", 2048, time.Millisecond),
		event.NewAdmissionRefused("city", 10, 20, 25),
		event.NewPlaybackStateChanged("rain", true),
		event.NewPlaybackStateChanged("wind", true),
		event.NewPlaybackStateChanged("rain", false),
		event.NewConnectivityChanged(false),
		event.NewSoundUnloaded("rain", "idle"),
	}
	for _, e := range events {
		if err := c.Handle(e); err != nil {
			t.Fatalf("Handle() error = %v", err)
		}
	}

	if got := testutil.ToFloat64(c.lookups.WithLabelValues("hit")); got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.lookups.WithLabelValues("miss")); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.bytesCached); got != 2048 {
		t.Errorf("bytes cached = %v, want 2048", got)
	}
	if got := testutil.ToFloat64(c.admissionRefuse); got != 1 {
		t.Errorf("admission refused = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.playing); got != 1 {
		t.Errorf("playing = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.online); got != 0 {
		t.Errorf("online = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.unloads.WithLabelValues("idle")); got != 1 {
		t.Errorf("unloads = %v, want 1", got)
	}
}
