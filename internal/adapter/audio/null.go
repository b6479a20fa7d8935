package audio

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hajimehoshi/go-mp3"

	"github.com/ambientflow/ambientmix/internal/domain"
	"github.com/ambientflow/ambientmix/internal/port"
)

// NullFactory creates silent resources that track state without audio output.
// It is used on hosts without a sound device.
type NullFactory struct {
	fetcher port.Fetcher
	// Validate decodes the mp3 header so corrupt assets fail like they would
	// on a real device
	Validate bool
}

// Ensure NullFactory implements port.ResourceFactory
var _ port.ResourceFactory = (*NullFactory)(nil)

// NewNullFactory creates a silent factory. fetcher is used for URL sources
// and may be nil when only byte sources are used.
func NewNullFactory(fetcher port.Fetcher) *NullFactory {
	return &NullFactory{fetcher: fetcher}
}

// Create creates a silent resource
func (f *NullFactory) Create(ctx context.Context, opts port.ResourceOptions) (port.Resource, error) {
	data := opts.Data
	if len(data) == 0 && opts.URL != "" && f.fetcher != nil {
		var err error
		if data, err = loadSource(ctx, f.fetcher, opts); err != nil {
			return nil, err
		}
	}

	if f.Validate {
		if _, err := mp3.NewDecoder(bytes.NewReader(data)); err != nil {
			err = fmt.Errorf("%w: decode %s: %v", domain.ErrResourceCreate, opts.SoundID, err)
			if opts.OnLoadError != nil {
				opts.OnLoadError(opts.SoundID, err)
			}
			return nil, err
		}
	}

	r := &nullResource{size: int64(len(data))}
	r.fader = newFader(opts.InitialVolume, func(float64) {})
	return r, nil
}

type nullResource struct {
	mu       sync.Mutex
	playing  bool
	unloaded bool
	size     int64
	fader    *fader
}

func (r *nullResource) Play() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unloaded {
		return domain.ErrResourceClosed
	}
	r.playing = true
	return nil
}

func (r *nullResource) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playing = false
}

func (r *nullResource) IsPlaying() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playing
}

func (r *nullResource) Volume() float64 { return r.fader.get() }

func (r *nullResource) SetVolume(gain float64) { r.fader.set(gain) }

func (r *nullResource) Fade(from, to float64, d time.Duration) { r.fader.fade(from, to, d) }

func (r *nullResource) Unload() error {
	r.fader.stop()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playing = false
	r.unloaded = true
	return nil
}

func (r *nullResource) EstimatedBytes() int64 { return r.size }
