package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ambientflow/ambientmix/internal/domain/event"
)

// Collector turns domain events into Prometheus metrics. It owns its registry
// so tests and multiple instances do not collide on the default one.
type Collector struct {
	registry *prometheus.Registry

	lookups         *prometheus.CounterVec
	assetsCached    prometheus.Counter
	bytesCached     prometheus.Counter
	admissionRefuse prometheus.Counter
	fetchFailures   prometheus.Counter
	assetsRemoved   *prometheus.CounterVec
	cacheClears     prometheus.Counter
	loads           *prometheus.CounterVec
	unloads         *prometheus.CounterVec
	playing         prometheus.Gauge
	online          prometheus.Gauge
}

// Ensure Collector implements event.EventHandler
var _ event.EventHandler = (*Collector)(nil)

// NewCollector creates and registers all metrics
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ambientmix", Subsystem: "cache", Name: "lookups_total",
			Help: "Cache lookups by result.",
		}, []string{"result"}),
		assetsCached: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ambientmix", Subsystem: "cache", Name: "assets_cached_total",
			Help: "Assets fetched and admitted to the cache.",
		}),
		bytesCached: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ambientmix", Subsystem: "cache", Name: "bytes_cached_total",
			Help: "Bytes admitted to the cache.",
		}),
		admissionRefuse: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ambientmix", Subsystem: "cache", Name: "admission_refused_total",
			Help: "Assets refused because they would exceed the budget.",
		}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ambientmix", Subsystem: "cache", Name: "fetch_failures_total",
			Help: "Failed asset fetches.",
		}),
		assetsRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ambientmix", Subsystem: "cache", Name: "assets_removed_total",
			Help: "Assets removed from the cache by reason.",
		}, []string{"reason"}),
		cacheClears: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ambientmix", Subsystem: "cache", Name: "clears_total",
			Help: "Full cache clears.",
		}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ambientmix", Subsystem: "playback", Name: "loads_total",
			Help: "Playback handles created by source.",
		}, []string{"source"}),
		unloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ambientmix", Subsystem: "playback", Name: "unloads_total",
			Help: "Playback handles released by reason.",
		}, []string{"reason"}),
		playing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ambientmix", Subsystem: "playback", Name: "playing",
			Help: "Sounds currently playing.",
		}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ambientmix", Subsystem: "network", Name: "online",
			Help: "1 when the network is reachable.",
		}),
	}

	c.online.Set(1)
	c.registry.MustRegister(
		c.lookups, c.assetsCached, c.bytesCached, c.admissionRefuse, c.fetchFailures,
		c.assetsRemoved, c.cacheClears, c.loads, c.unloads, c.playing, c.online,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handle updates metrics based on the event
func (c *Collector) Handle(e event.DomainEvent) error {
	switch ev := e.(type) {
	case event.CacheLookup:
		if ev.Hit {
			c.lookups.WithLabelValues("hit").Inc()
		} else {
			c.lookups.WithLabelValues("miss").Inc()
		}
	case event.AssetCached:
		c.assetsCached.Inc()
		c.bytesCached.Add(float64(ev.Size))
	case event.AdmissionRefused:
		c.admissionRefuse.Inc()
	case event.AssetFetchFailed:
		c.fetchFailures.Inc()
	case event.AssetRemoved:
		c.assetsRemoved.WithLabelValues(ev.Reason).Inc()
	case event.CacheCleared:
		c.cacheClears.Inc()
	case event.SoundLoaded:
		source := "network"
		if ev.FromCache {
			source = "cache"
		}
		c.loads.WithLabelValues(source).Inc()
	case event.SoundUnloaded:
		c.unloads.WithLabelValues(ev.Reason).Inc()
	case event.PlaybackStateChanged:
		if ev.Playing {
			c.playing.Inc()
		} else {
			c.playing.Dec()
		}
	case event.ConnectivityChanged:
		if ev.Online {
			c.online.Set(1)
		} else {
			c.online.Set(0)
		}
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (c *Collector) HandledEvents() []string {
	return []string{"*"}
}

// Registry exposes the registry for tests and extra collectors
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
