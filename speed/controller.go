// Package speed validates tempo changes and forwards them to the tick loop.
package speed

import (
	"fmt"
	"math"
	"time"

	"github.com/robmorgan/clicktrack/rhythm"
	"github.com/robmorgan/clicktrack/taptempo"
)

const (
	DefaultMinimum = 20.0
	DefaultMaximum = 250.0
)

// Bounds is the closed tempo range the track may play at.
type Bounds struct {
	Minimum float64
	Maximum float64
}

// DefaultBounds returns [DefaultMinimum, DefaultMaximum].
func DefaultBounds() Bounds {
	return Bounds{Minimum: DefaultMinimum, Maximum: DefaultMaximum}
}

// Contains reports whether bpm lies within the bounds.
func (b Bounds) Contains(bpm float64) bool {
	return bpm >= b.Minimum && bpm <= b.Maximum
}

// Clamp limits bpm to the bounds.
func (b Bounds) Clamp(bpm float64) float64 {
	return rhythm.Clamp(bpm, b.Minimum, b.Maximum)
}

// Validate checks that the bounds are positive and ordered.
func (b Bounds) Validate() error {
	if math.IsNaN(b.Minimum) || math.IsNaN(b.Maximum) || b.Minimum <= 0 || b.Minimum >= b.Maximum {
		return &InvalidBoundError{Minimum: b.Minimum, Maximum: b.Maximum}
	}
	return nil
}

// InvalidBoundError is returned when a bound update would leave the minimum at or above the maximum.
type InvalidBoundError struct {
	Minimum float64
	Maximum float64
}

func (e *InvalidBoundError) Error() string {
	return fmt.Sprintf("invalid speed bounds: minimum %v must be positive and below maximum %v", e.Minimum, e.Maximum)
}

// Retimer is the part of the tick loop the controller drives.
type Retimer interface {
	// Speed returns the current tempo.
	Speed() float64

	// Retime changes the tempo without touching the pending tick.
	Retime(bpm float64)

	// ResyncPhase moves the pending tick to deadline.
	ResyncPhase(deadline time.Time)
}

// Controller clamps tempo requests into its bounds before handing them to a Retimer. It is not safe for
// concurrent use; the tick loop calls it from its own goroutine.
type Controller struct {
	bounds Bounds
	target Retimer
}

// NewController creates a Controller for target.
func NewController(target Retimer, bounds Bounds) (*Controller, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	return &Controller{bounds: bounds, target: target}, nil
}

// Bounds returns the current tempo range.
func (c *Controller) Bounds() Bounds {
	return c.bounds
}

// ChangeRelative nudges the tempo by delta, clamped to the bounds.
func (c *Controller) ChangeRelative(delta float64) {
	c.ChangeAbsolute(c.target.Speed() + delta)
}

// ChangeAbsolute sets the tempo to bpm, clamped to the bounds. Requests that leave the tempo unchanged are
// dropped.
func (c *Controller) ChangeAbsolute(bpm float64) {
	if math.IsNaN(bpm) {
		return
	}
	next := c.bounds.Clamp(bpm)
	if next == c.target.Speed() {
		return
	}
	c.target.Retime(next)
}

// ApplyTapEstimate sets the tapped tempo and aligns the next tick with the predicted tap.
func (c *Controller) ApplyTapEstimate(est taptempo.Estimate) {
	c.ChangeAbsolute(est.BPM)
	c.target.ResyncPhase(est.PredictedNextTick)
}

// SetMinimum changes the lower bound. The current tempo is pulled up if it falls below it.
func (c *Controller) SetMinimum(bpm float64) error {
	next := Bounds{Minimum: bpm, Maximum: c.bounds.Maximum}
	if err := next.Validate(); err != nil {
		return err
	}
	c.bounds = next
	c.reclamp()
	return nil
}

// SetMaximum changes the upper bound. The current tempo is pulled down if it exceeds it.
func (c *Controller) SetMaximum(bpm float64) error {
	next := Bounds{Minimum: c.bounds.Minimum, Maximum: bpm}
	if err := next.Validate(); err != nil {
		return err
	}
	c.bounds = next
	c.reclamp()
	return nil
}

func (c *Controller) reclamp() {
	if current := c.target.Speed(); !c.bounds.Contains(current) {
		c.ChangeAbsolute(current)
	}
}
