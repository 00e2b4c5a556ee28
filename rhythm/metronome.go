package rhythm

import (
	"math"
	"time"
)

// State is the transport state of a PlaybackClock.
type State int

const (
	Stopped State = iota
	Playing
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	default:
		return "stopped"
	}
}

// PlaybackClock holds the tempo and phase of a click track: the current speed, the index of the next beat to
// sound and the absolute time of the next tick. It is not safe for concurrent use; the tick loop owns it.
type PlaybackClock struct {
	speed    float64
	beat     int
	state    State
	deadline time.Time
}

// NewPlaybackClock creates a stopped PlaybackClock at the given tempo.
func NewPlaybackClock(bpm float64) *PlaybackClock {
	return &PlaybackClock{
		speed: bpm,
		state: Stopped,
	}
}

// Speed returns the tempo in beats per minute.
func (c *PlaybackClock) Speed() float64 {
	return c.speed
}

// SetSpeed changes the tempo. The pending deadline is left alone so the next tick keeps its phase; only the
// deadline after it is computed with the new period.
func (c *PlaybackClock) SetSpeed(bpm float64) {
	c.speed = bpm
}

// Period returns the length of one beat at the current tempo.
func (c *PlaybackClock) Period() time.Duration {
	return PeriodFor(c.speed)
}

func (c *PlaybackClock) Beat() int {
	return c.beat
}

func (c *PlaybackClock) SetBeat(beat int) {
	c.beat = beat
}

// Advance moves to the next beat, wrapping at length.
func (c *PlaybackClock) Advance(length int) {
	if length <= 0 {
		c.beat = 0
		return
	}
	c.beat = (c.beat + 1) % length
}

func (c *PlaybackClock) IsPlaying() bool {
	return c.state == Playing
}

// Play rewinds to the first beat and switches to Playing. The first tick is due at now; the caller emits it
// and then schedules the following one from Deadline.
func (c *PlaybackClock) Play(now time.Time) {
	c.state = Playing
	c.beat = 0
	c.deadline = now.Add(c.Period())
}

// Halt switches to Stopped. The beat index is kept for snapshots until the next Play.
func (c *PlaybackClock) Halt() {
	c.state = Stopped
	c.deadline = time.Time{}
}

// Deadline returns the absolute time of the next tick. It is zero while stopped.
func (c *PlaybackClock) Deadline() time.Time {
	return c.deadline
}

func (c *PlaybackClock) SetDeadline(deadline time.Time) {
	c.deadline = deadline
}

// NextDeadline computes the deadline following the current one. When the loop has fallen behind and the result
// is less than half a period ahead of now, one extra period is added so a late tick is dropped instead of firing
// twice in a row.
func (c *PlaybackClock) NextDeadline(now time.Time) time.Time {
	period := c.Period()
	next := c.deadline.Add(period)
	if next.Sub(now) < period/2 {
		next = next.Add(period)
	}
	return next
}

// Snapshot returns a copy of the clock's observable state.
func (c *PlaybackClock) Snapshot() Snapshot {
	return Snapshot{
		SpeedBPM:  c.speed,
		BeatIndex: c.beat,
		IsPlaying: c.state == Playing,
		NextTick:  c.deadline,
	}
}

// PeriodFor returns the beat length for a tempo, rounded to the nearest millisecond. Rounding (not truncation)
// keeps long-run error bounded instead of drifting fast.
func PeriodFor(bpm float64) time.Duration {
	return time.Duration(math.Round(60000/bpm)) * time.Millisecond
}
