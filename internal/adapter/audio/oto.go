package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"
	"go.uber.org/zap"

	"github.com/ambientflow/ambientmix/internal/domain"
	"github.com/ambientflow/ambientmix/internal/port"
)

// OtoConfig contains configuration for the audio output
type OtoConfig struct {
	SampleRate int           // 44100 or 48000 Hz
	BufferSize time.Duration // Output buffer length
}

// DefaultOtoConfig returns the default output configuration
func DefaultOtoConfig() *OtoConfig {
	return &OtoConfig{
		SampleRate: 44100,
		BufferSize: 100 * time.Millisecond,
	}
}

// OtoFactory decodes mp3 sources and plays them through a shared oto context.
// go-mp3 always yields 16-bit stereo, so the context is stereo.
type OtoFactory struct {
	config  *OtoConfig
	fetcher port.Fetcher
	logger  *zap.Logger

	once    sync.Once
	context *oto.Context
	initErr error
}

// Ensure OtoFactory implements port.ResourceFactory
var _ port.ResourceFactory = (*OtoFactory)(nil)

// NewOtoFactory creates a factory. The audio device is opened on first use.
func NewOtoFactory(cfg *OtoConfig, fetcher port.Fetcher, logger *zap.Logger) *OtoFactory {
	if cfg == nil {
		cfg = DefaultOtoConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OtoFactory{config: cfg, fetcher: fetcher, logger: logger}
}

func (f *OtoFactory) audioContext() (*oto.Context, error) {
	f.once.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   f.config.SampleRate,
			ChannelCount: 2,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   f.config.BufferSize,
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			f.initErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		f.context = ctx
		f.logger.Info("Audio output ready",
			zap.Int("sample_rate", f.config.SampleRate),
			zap.Duration("buffer", f.config.BufferSize))
	})
	return f.context, f.initErr
}

// Create decodes the source and prepares a paused, looping player
func (f *OtoFactory) Create(ctx context.Context, opts port.ResourceOptions) (port.Resource, error) {
	loadErr := func(err error) error {
		err = fmt.Errorf("%w: %s: %v", domain.ErrResourceCreate, opts.SoundID, err)
		if opts.OnLoadError != nil {
			opts.OnLoadError(opts.SoundID, err)
		}
		return err
	}

	audioCtx, err := f.audioContext()
	if err != nil {
		return nil, loadErr(err)
	}

	data := opts.Data
	if len(data) == 0 {
		if data, err = loadSource(ctx, f.fetcher, opts); err != nil {
			return nil, err
		}
	}

	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, loadErr(err)
	}
	if decoder.SampleRate() != f.config.SampleRate {
		// No resampling; the track plays at the wrong pitch.
		f.logger.Warn("Sample rate mismatch",
			zap.String("sound_id", opts.SoundID),
			zap.Int("source", decoder.SampleRate()),
			zap.Int("output", f.config.SampleRate))
	}

	var src io.ReadSeeker = decoder
	if opts.Loop {
		src = &loopReader{src: decoder}
	}

	r := &otoResource{
		soundID:     opts.SoundID,
		data:        data,
		player:      audioCtx.NewPlayer(src),
		onPlayError: opts.OnPlayError,
		logger:      f.logger,
	}
	r.fader = newFader(opts.InitialVolume, r.player.SetVolume)
	return r, nil
}

type otoResource struct {
	soundID     string
	data        []byte // Encoded source, kept alive for the decoder
	player      *oto.Player
	fader       *fader
	onPlayError func(string, error)
	logger      *zap.Logger

	mu       sync.Mutex
	unloaded bool
}

func (r *otoResource) Play() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unloaded {
		return domain.ErrResourceClosed
	}
	if err := r.player.Err(); err != nil {
		if r.onPlayError != nil {
			r.onPlayError(r.soundID, err)
		}
		return err
	}
	r.player.Play()
	return nil
}

func (r *otoResource) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unloaded {
		return
	}
	r.player.Pause()
	if _, err := r.player.Seek(0, io.SeekStart); err != nil {
		r.logger.Debug("Failed to rewind", zap.String("sound_id", r.soundID), zap.Error(err))
	}
}

func (r *otoResource) IsPlaying() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.unloaded && r.player.IsPlaying()
}

func (r *otoResource) Volume() float64 { return r.fader.get() }

func (r *otoResource) SetVolume(gain float64) { r.fader.set(gain) }

func (r *otoResource) Fade(from, to float64, d time.Duration) { r.fader.fade(from, to, d) }

func (r *otoResource) Unload() error {
	r.fader.stop()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unloaded {
		return nil
	}
	r.unloaded = true
	r.player.Pause()
	err := r.player.Close()
	r.data = nil
	return err
}

func (r *otoResource) EstimatedBytes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.data))
}
