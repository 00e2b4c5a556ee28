// Package scheduler runs the tick loop: a single goroutine that owns the playback clock and the playlist,
// fires a tick at each beat deadline and applies control commands between ticks.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robmorgan/clicktrack/logger"
	"github.com/robmorgan/clicktrack/playlist"
	"github.com/robmorgan/clicktrack/rhythm"
	"github.com/robmorgan/clicktrack/speed"
	"github.com/robmorgan/clicktrack/taptempo"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// ErrClosed is returned by control calls made after the loop has exited.
var ErrClosed = errors.New("tick loop is not running")

// DefaultSpeed is the tempo a scheduler starts at when none is configured.
const DefaultSpeed = 120.0

// Config holds the initial state of a Scheduler.
type Config struct {
	InitialSpeed   float64
	Bounds         speed.Bounds
	Playlist       []playlist.BeatSpec
	ListenerBuffer int
}

type command struct {
	fn   func()
	done chan struct{}
}

// Scheduler fires ticks at beat boundaries. All state below the command channel belongs to the goroutine
// running Run; other goroutines reach it only through exec.
type Scheduler struct {
	clock       clock.Clock
	commands    chan command
	done        chan struct{}
	broadcaster *Broadcaster

	pc       *rhythm.PlaybackClock
	playlist *playlist.Playlist
	speed    *speed.Controller
	timer    clock.Timer
}

// New creates a stopped Scheduler. Call Run to start processing commands.
func New(clk clock.Clock, cfg Config) (*Scheduler, error) {
	if cfg.Bounds == (speed.Bounds{}) {
		cfg.Bounds = speed.DefaultBounds()
	}
	if cfg.InitialSpeed == 0 {
		cfg.InitialSpeed = DefaultSpeed
	}

	s := &Scheduler{
		clock:       clk,
		commands:    make(chan command),
		done:        make(chan struct{}),
		broadcaster: NewBroadcaster(cfg.ListenerBuffer),
		pc:          rhythm.NewPlaybackClock(cfg.Bounds.Clamp(cfg.InitialSpeed)),
		playlist:    playlist.New(cfg.Playlist...),
	}

	ctrl, err := speed.NewController(loopRetimer{s}, cfg.Bounds)
	if err != nil {
		return nil, err
	}
	s.speed = ctrl
	return s, nil
}

// Run processes ticks and commands until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)

	log := logger.GetProjectLogger()
	log.WithFields(logrus.Fields{"speed_bpm": s.pc.Speed(), "beats": s.playlist.Len()}).Info("Tick loop started")

	for {
		var fire <-chan time.Time
		if s.timer != nil {
			fire = s.timer.C()
		}

		select {
		case <-ctx.Done():
			s.disarm()
			log.Info("Tick loop shutdown")
			return
		case cmd := <-s.commands:
			cmd.fn()
			close(cmd.done)
		case <-fire:
			s.timer = nil
			s.tick()
		}
	}
}

// exec runs fn on the loop goroutine and waits for it to finish.
func (s *Scheduler) exec(fn func()) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case s.commands <- cmd:
	case <-s.done:
		return ErrClosed
	}
	<-cmd.done
	return nil
}

// Subscribe returns a listener that receives every tick.
func (s *Scheduler) Subscribe() *Listener {
	return s.broadcaster.Subscribe()
}

// Unsubscribe detaches a listener returned by Subscribe.
func (s *Scheduler) Unsubscribe(l *Listener) {
	s.broadcaster.Unsubscribe(l)
}

// Start begins playback from the first beat. The first tick fires before Start returns.
func (s *Scheduler) Start() error {
	return s.exec(s.start)
}

// Stop halts playback. No tick fires after Stop returns.
func (s *Scheduler) Stop() error {
	return s.exec(s.stop)
}

// Toggle starts a stopped scheduler and stops a playing one as a single command.
func (s *Scheduler) Toggle() error {
	return s.exec(func() {
		if s.pc.IsPlaying() {
			s.stop()
			return
		}
		s.start()
	})
}

// ChangeSpeedRelative nudges the tempo by delta without moving the pending tick.
func (s *Scheduler) ChangeSpeedRelative(delta float64) error {
	return s.exec(func() { s.speed.ChangeRelative(delta) })
}

// ChangeSpeedAbsolute sets the tempo without moving the pending tick.
func (s *Scheduler) ChangeSpeedAbsolute(bpm float64) error {
	return s.exec(func() { s.speed.ChangeAbsolute(bpm) })
}

// ApplyTapEstimate sets a tapped tempo and moves the pending tick to the predicted tap.
func (s *Scheduler) ApplyTapEstimate(est taptempo.Estimate) error {
	return s.exec(func() { s.speed.ApplyTapEstimate(est) })
}

// ResyncPhase moves the pending tick to deadline. It has no effect while stopped.
func (s *Scheduler) ResyncPhase(deadline time.Time) error {
	return s.exec(func() { s.resync(deadline) })
}

// SetPlaylist replaces the beats. Updates equal to the current playlist are ignored.
func (s *Scheduler) SetPlaylist(entries []playlist.BeatSpec) error {
	return s.exec(func() { s.setPlaylist(entries) })
}

// SetMinimumSpeed changes the lower tempo bound.
func (s *Scheduler) SetMinimumSpeed(bpm float64) error {
	var err error
	if execErr := s.exec(func() { err = s.speed.SetMinimum(bpm) }); execErr != nil {
		return execErr
	}
	return err
}

// SetMaximumSpeed changes the upper tempo bound.
func (s *Scheduler) SetMaximumSpeed(bpm float64) error {
	var err error
	if execErr := s.exec(func() { err = s.speed.SetMaximum(bpm) }); execErr != nil {
		return execErr
	}
	return err
}

// State returns a snapshot of the playback clock. After the loop has exited it returns the final state.
func (s *Scheduler) State() rhythm.Snapshot {
	var snap rhythm.Snapshot
	if err := s.exec(func() { snap = s.pc.Snapshot() }); err != nil {
		return s.pc.Snapshot()
	}
	return snap
}

// Playlist returns a copy of the current beats.
func (s *Scheduler) Playlist() []playlist.BeatSpec {
	var entries []playlist.BeatSpec
	if err := s.exec(func() { entries = s.playlist.Entries() }); err != nil {
		return s.playlist.Entries()
	}
	return entries
}

// Bounds returns the current tempo range.
func (s *Scheduler) Bounds() speed.Bounds {
	var b speed.Bounds
	if err := s.exec(func() { b = s.speed.Bounds() }); err != nil {
		return s.speed.Bounds()
	}
	return b
}

func (s *Scheduler) start() {
	if s.pc.IsPlaying() {
		return
	}
	now := s.clock.Now()
	s.pc.Play(now)
	ev := s.current(now)
	s.arm(now)

	logger.GetProjectLogger().WithFields(logrus.Fields{"speed_bpm": s.pc.Speed()}).Info("Playback started")
	s.broadcaster.Publish(ev)
}

func (s *Scheduler) stop() {
	if !s.pc.IsPlaying() {
		return
	}
	s.pc.Halt()
	s.disarm()
	logger.GetProjectLogger().Info("Playback stopped")
}

// tick emits the current beat and schedules the next one. The timer is re-armed before the event is published
// so a listener that reacts to the event always sees the next tick pending.
func (s *Scheduler) tick() {
	if !s.pc.IsPlaying() {
		return
	}
	now := s.clock.Now()
	ev := s.current(now)
	s.pc.SetDeadline(s.pc.NextDeadline(now))
	s.arm(now)
	s.broadcaster.Publish(ev)
}

// current builds the event for the beat under the cursor and advances the cursor.
func (s *Scheduler) current(now time.Time) TickEvent {
	index := s.pc.Beat()
	beat, err := s.playlist.At(index)
	if err != nil {
		logger.GetProjectLogger().WithError(err).Error("Beat index outside playlist, rewinding")
		index = 0
		s.pc.SetBeat(0)
		beat, _ = s.playlist.At(0)
	}
	s.pc.Advance(s.playlist.Len())

	return TickEvent{
		BeatIndex: index,
		SoundID:   beat.SoundID,
		Volume:    beat.Volume,
		FiredAt:   now,
	}
}

func (s *Scheduler) resync(deadline time.Time) {
	if !s.pc.IsPlaying() {
		return
	}
	s.pc.SetDeadline(deadline)
	s.arm(s.clock.Now())
}

func (s *Scheduler) retime(bpm float64) {
	if bpm == s.pc.Speed() || !s.speed.Bounds().Contains(bpm) {
		return
	}
	logger.GetProjectLogger().WithFields(logrus.Fields{"from_bpm": s.pc.Speed(), "to_bpm": bpm}).Debug("Speed changed")
	s.pc.SetSpeed(bpm)
}

func (s *Scheduler) setPlaylist(entries []playlist.BeatSpec) {
	next := playlist.New(entries...)
	if next.Equal(s.playlist) {
		logger.GetProjectLogger().Debug("Playlist unchanged, ignoring update")
		return
	}
	if next.Len() < s.playlist.Len() {
		s.pc.SetBeat(0)
	}
	s.playlist = next
	logger.GetProjectLogger().WithFields(logrus.Fields{"beats": next.Len()}).Debug("Playlist replaced")
}

// arm schedules the timer for the clock's deadline.
func (s *Scheduler) arm(now time.Time) {
	s.disarm()
	wait := s.pc.Deadline().Sub(now)
	if wait < 0 {
		wait = 0
	}
	s.timer = s.clock.NewTimer(wait)
}

func (s *Scheduler) disarm() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// loopRetimer exposes the loop-side tempo operations to the speed controller. Its methods must only be called
// from the loop goroutine.
type loopRetimer struct {
	s *Scheduler
}

func (r loopRetimer) Speed() float64 { return r.s.pc.Speed() }

func (r loopRetimer) Retime(bpm float64) { r.s.retime(bpm) }

func (r loopRetimer) ResyncPhase(deadline time.Time) { r.s.resync(deadline) }
