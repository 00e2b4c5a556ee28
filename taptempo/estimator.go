// Package taptempo estimates a tempo and the phase of the next beat from the last few taps.
package taptempo

import (
	"math"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

const (
	// DefaultHistory is the number of taps an estimate is computed from.
	DefaultHistory = 3

	// DefaultShift moves the predicted tick slightly ahead of the next expected tap so the click lands with
	// the tap rather than after it.
	DefaultShift = -50 * time.Millisecond

	// MaxVariation is the largest accepted ratio of standard deviation to mean tap gap.
	MaxVariation = 0.2
)

// Estimate is the outcome of a successful evaluation.
type Estimate struct {
	// BPM is the tapped tempo rounded to a whole number of beats per minute.
	BPM float64

	// PredictedNextTick is when the next click should sound to line up with the next expected tap.
	PredictedNextTick time.Time
}

// Estimator keeps a ring buffer of the most recent taps.
type Estimator struct {
	clock clock.PassiveClock
	shift time.Duration

	mu   sync.Mutex
	taps  []time.Time
	pos   int
	count int
}

// NewEstimator creates an Estimator over the last history taps. history is raised to 2 if smaller, since an
// estimate needs at least one gap.
func NewEstimator(clk clock.PassiveClock, history int, shift time.Duration) *Estimator {
	if history < 2 {
		history = 2
	}
	return &Estimator{
		clock: clk,
		shift: shift,
		taps:  make([]time.Time, history),
	}
}

// RecordTap pushes a tap time into the buffer, evicting the oldest one.
func (e *Estimator) RecordTap(at time.Time) {
	e.mu.Lock()
	e.taps[e.pos] = at
	e.pos = (e.pos + 1) % len(e.taps)
	if e.count < len(e.taps) {
		e.count++
	}
	e.mu.Unlock()
}

// Full reports whether every slot holds a tap.
func (e *Estimator) Full() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.full()
}

func (e *Estimator) full() bool {
	return e.count == len(e.taps)
}

// Taps returns the recorded taps in chronological order of recording.
func (e *Estimator) Taps() []time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ordered()
}

func (e *Estimator) ordered() []time.Time {
	n := len(e.taps)
	// until the buffer wraps the oldest tap is in slot 0
	start := 0
	if e.count == n {
		start = e.pos
	}
	out := make([]time.Time, 0, e.count)
	for i := 0; i < e.count; i++ {
		out = append(out, e.taps[(start+i)%n])
	}
	return out
}

// Evaluate computes a tempo from the buffered taps. It returns false until the buffer is full, when the taps
// are not strictly increasing, or when the gaps vary by more than MaxVariation of their mean.
func (e *Estimator) Evaluate() (Estimate, bool) {
	e.mu.Lock()
	if !e.full() {
		e.mu.Unlock()
		return Estimate{}, false
	}
	taps := e.ordered()
	e.mu.Unlock()

	gaps := make([]float64, len(taps)-1)
	for i := 1; i < len(taps); i++ {
		gaps[i-1] = float64(taps[i].Sub(taps[i-1])) / float64(time.Millisecond)
	}

	mean := 0.0
	for _, g := range gaps {
		mean += g
	}
	mean /= float64(len(gaps))
	if mean <= 0 {
		return Estimate{}, false
	}

	variance := 0.0
	for _, g := range gaps {
		variance += (g - mean) * (g - mean)
	}
	variance /= float64(len(gaps))

	if math.Sqrt(variance)/mean > MaxVariation {
		return Estimate{}, false
	}

	lastGap := taps[len(taps)-1].Sub(taps[len(taps)-2])
	if lastGap <= 0 {
		return Estimate{}, false
	}

	return Estimate{
		BPM:               math.Round(60000 / mean),
		PredictedNextTick: e.clock.Now().Add(lastGap + e.shift),
	}, true
}
