package vo

// Volume is a playback level in the closed range [0, 100].
type Volume struct {
	level int
}

const (
	MinVolume = 0
	MaxVolume = 100
)

// NewVolume creates a Volume, clamping out-of-range input.
func NewVolume(level int) Volume {
	if level < MinVolume {
		level = MinVolume
	}
	if level > MaxVolume {
		level = MaxVolume
	}
	return Volume{level: level}
}

// VolumeFromFloat rounds and clamps a fractional level.
func VolumeFromFloat(level float64) Volume {
	if level < 0 {
		return NewVolume(MinVolume)
	}
	return NewVolume(int(level + 0.5))
}

// Level returns the integer level.
func (v Volume) Level() int {
	return v.level
}

// Gain returns the level mapped onto the [0.0, 1.0] range used by audio output.
func (v Volume) Gain() float64 {
	return float64(v.level) / MaxVolume
}

// IsMuted returns true when the level is zero.
func (v Volume) IsMuted() bool {
	return v.level == MinVolume
}
