package audio

import (
	"sync"
	"time"
)

// fadeStep is the interval between gain updates during a fade
const fadeStep = 20 * time.Millisecond

// fader owns the gain of one resource. A new set or fade cancels any fade
// already in flight.
type fader struct {
	mu     sync.Mutex
	gain   float64
	apply  func(gain float64)
	cancel chan struct{}
}

func newFader(initial float64, apply func(float64)) *fader {
	f := &fader{apply: apply}
	f.set(initial)
	return f
}

func clampGain(g float64) float64 {
	if g < 0 {
		return 0
	}
	if g > 1 {
		return 1
	}
	return g
}

func (f *fader) get() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gain
}

func (f *fader) set(g float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLocked()
	f.gain = clampGain(g)
	f.apply(f.gain)
}

func (f *fader) stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLocked()
}

func (f *fader) stopLocked() {
	if f.cancel != nil {
		close(f.cancel)
		f.cancel = nil
	}
}

// fade ramps linearly from -> to over d in the background
func (f *fader) fade(from, to float64, d time.Duration) {
	from, to = clampGain(from), clampGain(to)

	f.mu.Lock()
	f.stopLocked()
	f.gain = from
	f.apply(from)
	if d <= 0 {
		f.gain = to
		f.apply(to)
		f.mu.Unlock()
		return
	}
	cancel := make(chan struct{})
	f.cancel = cancel
	f.mu.Unlock()

	steps := int(d / fadeStep)
	if steps < 1 {
		steps = 1
	}

	go func() {
		ticker := time.NewTicker(d / time.Duration(steps))
		defer ticker.Stop()

		for i := 1; i <= steps; i++ {
			select {
			case <-cancel:
				return
			case <-ticker.C:
			}

			f.mu.Lock()
			if f.cancel != cancel {
				f.mu.Unlock()
				return
			}
			f.gain = from + (to-from)*float64(i)/float64(steps)
			f.apply(f.gain)
			if i == steps {
				f.cancel = nil
			}
			f.mu.Unlock()
		}
	}()
}
