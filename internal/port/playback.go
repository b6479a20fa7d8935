package port

import (
	"context"
	"time"
)

// ResourceOptions describes a playback resource to create. Exactly one of Data
// or URL is used; Data wins when both are set.
type ResourceOptions struct {
	SoundID       string
	URL           string
	Data          []byte
	Loop          bool
	InitialVolume float64 // Gain in [0, 1]

	// OnLoadError is called when the source cannot be decoded
	OnLoadError func(soundID string, err error)
	// OnPlayError is called when output fails during playback
	OnPlayError func(soundID string, err error)
}

// Resource is one decoded, ready-to-play audio source. It is exclusively
// owned by the playback manager.
type Resource interface {
	Play() error
	Stop()
	IsPlaying() bool
	Volume() float64
	SetVolume(gain float64)
	// Fade ramps the gain from -> to over d without blocking
	Fade(from, to float64, d time.Duration)
	// Unload releases the resource; it cannot be used afterwards
	Unload() error
	// EstimatedBytes reports the memory held by decoded audio
	EstimatedBytes() int64
}

// ResourceFactory creates playback resources
type ResourceFactory interface {
	Create(ctx context.Context, opts ResourceOptions) (Resource, error)
}
