package event

import (
	"time"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	// EventName returns the name of the event
	EventName() string
	// OccurredAt returns when the event occurred
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events
type BaseEvent struct {
	Timestamp time.Time
}

// OccurredAt returns when the event occurred
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

func now() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// AssetCached is raised when an asset is fetched and admitted to the byte cache
type AssetCached struct {
	BaseEvent
	SoundID  string
	URL      string
	Size     int64
	Duration time.Duration
}

// EventName returns the event name
func (e AssetCached) EventName() string {
	return "cache.asset_cached"
}

// NewAssetCached creates a new AssetCached event
func NewAssetCached(soundID, url string, size int64, duration time.Duration) AssetCached {
	return AssetCached{BaseEvent: now(), SoundID: soundID, URL: url, Size: size, Duration: duration}
}

// CacheLookup is raised for every cache read, hit or miss
type CacheLookup struct {
	BaseEvent
	SoundID string
	Hit     bool
}

// EventName returns the event name
func (e CacheLookup) EventName() string {
	return "cache.lookup"
}

// NewCacheLookup creates a new CacheLookup event
func NewCacheLookup(soundID string, hit bool) CacheLookup {
	return CacheLookup{BaseEvent: now(), SoundID: soundID, Hit: hit}
}

// AdmissionRefused is raised when an asset would push the cache over budget
type AdmissionRefused struct {
	BaseEvent
	SoundID     string
	Size        int64
	CurrentSize int64
	MaxSize     int64
}

// EventName returns the event name
func (e AdmissionRefused) EventName() string {
	return "cache.admission_refused"
}

// NewAdmissionRefused creates a new AdmissionRefused event
func NewAdmissionRefused(soundID string, size, currentSize, maxSize int64) AdmissionRefused {
	return AdmissionRefused{BaseEvent: now(), SoundID: soundID, Size: size, CurrentSize: currentSize, MaxSize: maxSize}
}

// AssetFetchFailed is raised when the network fetch of an asset fails
type AssetFetchFailed struct {
	BaseEvent
	SoundID string
	URL     string
	Error   string
}

// EventName returns the event name
func (e AssetFetchFailed) EventName() string {
	return "cache.fetch_failed"
}

// NewAssetFetchFailed creates a new AssetFetchFailed event
func NewAssetFetchFailed(soundID, url, err string) AssetFetchFailed {
	return AssetFetchFailed{BaseEvent: now(), SoundID: soundID, URL: url, Error: err}
}

// AssetRemoved is raised when a stale entry is removed from the cache
type AssetRemoved struct {
	BaseEvent
	SoundID string
	Size    int64
	Reason  string
}

// EventName returns the event name
func (e AssetRemoved) EventName() string {
	return "cache.asset_removed"
}

// NewAssetRemoved creates a new AssetRemoved event
func NewAssetRemoved(soundID string, size int64, reason string) AssetRemoved {
	return AssetRemoved{BaseEvent: now(), SoundID: soundID, Size: size, Reason: reason}
}

// CacheCleared is raised when all cached assets are dropped
type CacheCleared struct {
	BaseEvent
	FreedBytes int64
}

// EventName returns the event name
func (e CacheCleared) EventName() string {
	return "cache.cleared"
}

// NewCacheCleared creates a new CacheCleared event
func NewCacheCleared(freedBytes int64) CacheCleared {
	return CacheCleared{BaseEvent: now(), FreedBytes: freedBytes}
}

// SoundLoaded is raised when a playback handle is created
type SoundLoaded struct {
	BaseEvent
	SoundID   string
	FromCache bool
}

// EventName returns the event name
func (e SoundLoaded) EventName() string {
	return "playback.loaded"
}

// NewSoundLoaded creates a new SoundLoaded event
func NewSoundLoaded(soundID string, fromCache bool) SoundLoaded {
	return SoundLoaded{BaseEvent: now(), SoundID: soundID, FromCache: fromCache}
}

// SoundUnloaded is raised when a playback handle is released
type SoundUnloaded struct {
	BaseEvent
	SoundID string
	Reason  string
}

// EventName returns the event name
func (e SoundUnloaded) EventName() string {
	return "playback.unloaded"
}

// NewSoundUnloaded creates a new SoundUnloaded event
func NewSoundUnloaded(soundID, reason string) SoundUnloaded {
	return SoundUnloaded{BaseEvent: now(), SoundID: soundID, Reason: reason}
}

// PlaybackStateChanged is raised when a sound starts or stops playing
type PlaybackStateChanged struct {
	BaseEvent
	SoundID string
	Playing bool
}

// EventName returns the event name
func (e PlaybackStateChanged) EventName() string {
	return "playback.state_changed"
}

// NewPlaybackStateChanged creates a new PlaybackStateChanged event
func NewPlaybackStateChanged(soundID string, playing bool) PlaybackStateChanged {
	return PlaybackStateChanged{BaseEvent: now(), SoundID: soundID, Playing: playing}
}

// ConnectivityChanged is raised when the network goes online or offline
type ConnectivityChanged struct {
	BaseEvent
	Online bool
}

// EventName returns the event name
func (e ConnectivityChanged) EventName() string {
	return "network.connectivity_changed"
}

// NewConnectivityChanged creates a new ConnectivityChanged event
func NewConnectivityChanged(online bool) ConnectivityChanged {
	return ConnectivityChanged{BaseEvent: now(), Online: online}
}
