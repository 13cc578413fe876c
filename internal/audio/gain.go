package audio

import (
	"math"
	"sync/atomic"
)

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// Ramp scales a signal by a level that fades in along a smoothstep curve
// over the first fadeSamples samples. Apply runs on the clock goroutine;
// SetLevel may be called from anywhere.
type Ramp struct {
	level       atomic.Uint64 // float64 bits
	fadeSamples int
	pos         int
}

// NewRamp returns a ramp at level that fades in over fadeSamples.
// fadeSamples <= 0 starts at full level.
func NewRamp(level float64, fadeSamples int) *Ramp {
	r := &Ramp{fadeSamples: fadeSamples}
	r.SetLevel(level)
	return r
}

func (r *Ramp) SetLevel(level float64) {
	r.level.Store(math.Float64bits(min(max(level, 0), 1)))
}

func (r *Ramp) Level() float64 {
	return math.Float64frombits(r.level.Load())
}

// Apply scales block in place.
func (r *Ramp) Apply(block []float64) {
	level := r.Level()
	for i := range block {
		g := level
		if r.pos < r.fadeSamples {
			g *= Smoothstep(float64(r.pos) / float64(r.fadeSamples))
			r.pos++
		}
		block[i] *= g
	}
}

// Restart begins a new fade-in.
func (r *Ramp) Restart() { r.pos = 0 }
