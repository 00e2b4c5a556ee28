// Package metronome is the control surface of the click track: it wires the tap-tempo estimator to the tick
// loop and exposes start/stop, tempo and playlist controls plus the tick event channel.
package metronome

import (
	"context"
	"sync"
	"time"

	"github.com/robmorgan/clicktrack/config"
	"github.com/robmorgan/clicktrack/logger"
	"github.com/robmorgan/clicktrack/playlist"
	"github.com/robmorgan/clicktrack/rhythm"
	"github.com/robmorgan/clicktrack/scheduler"
	"github.com/robmorgan/clicktrack/speed"
	"github.com/robmorgan/clicktrack/taptempo"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// Engine owns a running tick loop. Its methods are safe for concurrent use.
type Engine struct {
	clock clock.Clock
	sched *scheduler.Scheduler
	taps  *taptempo.Estimator

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option customizes an Engine.
type Option func(*options)

type options struct {
	clock clock.Clock
}

// WithClock replaces the real clock, typically with a fake one in tests.
func WithClock(clk clock.Clock) Option {
	return func(o *options) {
		o.clock = clk
	}
}

// New validates cfg and starts the tick loop. The engine is stopped until Start is called.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	o := options{clock: clock.RealClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sched, err := scheduler.New(o.clock, scheduler.Config{
		InitialSpeed: cfg.Speed.Initial,
		Bounds:       cfg.Bounds(),
		Playlist:     cfg.Beats(),
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		clock:  o.clock,
		sched:  sched,
		taps:   taptempo.NewEstimator(o.clock, cfg.Tap.History, cfg.Tap.Shift),
		cancel: cancel,
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		sched.Run(ctx)
	}()

	return e, nil
}

// Close stops the tick loop and waits for it to exit. Control calls made afterwards return
// scheduler.ErrClosed.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}

// Start begins playback from the first beat, which sounds immediately.
func (e *Engine) Start() error {
	return e.sched.Start()
}

// Stop halts playback.
func (e *Engine) Stop() error {
	return e.sched.Stop()
}

// Toggle starts a stopped engine and stops a playing one.
func (e *Engine) Toggle() error {
	return e.sched.Toggle()
}

// ChangeSpeedRelative nudges the tempo by delta beats per minute.
func (e *Engine) ChangeSpeedRelative(delta float64) error {
	return e.sched.ChangeSpeedRelative(delta)
}

// ChangeSpeedAbsolute sets the tempo.
func (e *Engine) ChangeSpeedAbsolute(bpm float64) error {
	return e.sched.ChangeSpeedAbsolute(bpm)
}

// RecordTap registers a tap at the given time. Once enough regular taps have been seen the tempo is set to
// the tapped one and the next tick is aligned with the next expected tap.
func (e *Engine) RecordTap(at time.Time) error {
	e.taps.RecordTap(at)

	est, ok := e.taps.Evaluate()
	if !ok {
		logger.GetProjectLogger().Debug("Tap recorded, no tempo estimate yet")
		return nil
	}

	logger.GetProjectLogger().WithFields(logrus.Fields{
		"bpm":       est.BPM,
		"next_tick": est.PredictedNextTick,
	}).Debug("Applying tapped tempo")
	return e.sched.ApplyTapEstimate(est)
}

// Tap registers a tap at the current time.
func (e *Engine) Tap() error {
	return e.RecordTap(e.clock.Now())
}

// SetPlaylist replaces the beats. An empty list plays the default beat.
func (e *Engine) SetPlaylist(entries []playlist.BeatSpec) error {
	return e.sched.SetPlaylist(entries)
}

// Playlist returns a copy of the beats.
func (e *Engine) Playlist() []playlist.BeatSpec {
	return e.sched.Playlist()
}

// State returns a snapshot of tempo, position and transport state.
func (e *Engine) State() rhythm.Snapshot {
	return e.sched.State()
}

// SetMinimumSpeed changes the lower tempo bound. It fails with *speed.InvalidBoundError if the bound would not
// be below the maximum.
func (e *Engine) SetMinimumSpeed(bpm float64) error {
	return e.sched.SetMinimumSpeed(bpm)
}

// SetMaximumSpeed changes the upper tempo bound. It fails with *speed.InvalidBoundError if the bound would
// not be above the minimum.
func (e *Engine) SetMaximumSpeed(bpm float64) error {
	return e.sched.SetMaximumSpeed(bpm)
}

// Bounds returns the tempo range.
func (e *Engine) Bounds() speed.Bounds {
	return e.sched.Bounds()
}

// Subscribe returns a listener receiving every tick.
func (e *Engine) Subscribe() *scheduler.Listener {
	return e.sched.Subscribe()
}

// Unsubscribe detaches a listener.
func (e *Engine) Unsubscribe(l *scheduler.Listener) {
	e.sched.Unsubscribe(l)
}
