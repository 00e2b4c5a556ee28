package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/robmorgan/clicktrack/playlist"
	"github.com/robmorgan/clicktrack/speed"
	"github.com/robmorgan/clicktrack/taptempo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

var t0 = time.Unix(1000, 0)

var threeBeats = []playlist.BeatSpec{
	{SoundID: 0, Volume: 1},
	{SoundID: 1, Volume: 0.5},
	{SoundID: 1, Volume: 0.25},
}

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *clocktesting.FakeClock, *Listener) {
	t.Helper()

	clk := clocktesting.NewFakeClock(t0)
	s, err := New(clk, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	exited := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(exited)
	}()
	t.Cleanup(func() {
		cancel()
		<-exited
	})

	return s, clk, s.Subscribe()
}

func nextTick(t *testing.T, l *Listener) TickEvent {
	t.Helper()
	select {
	case ev := <-l.C:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tick")
	}
	return TickEvent{}
}

func requireNoTick(t *testing.T, l *Listener) {
	t.Helper()
	select {
	case ev := <-l.C:
		t.Fatalf("unexpected tick: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestStartFiresFirstBeatImmediately(t *testing.T) {
	t.Parallel()

	s, clk, l := newTestScheduler(t, Config{InitialSpeed: 120, Playlist: threeBeats})

	require.NoError(t, s.Start())
	ev := nextTick(t, l)
	assert.Equal(t, TickEvent{BeatIndex: 0, SoundID: 0, Volume: 1, FiredAt: t0}, ev)
	assert.True(t, clk.HasWaiters())

	state := s.State()
	assert.True(t, state.IsPlaying)
	assert.Equal(t, 1, state.BeatIndex)
	assert.Equal(t, t0.Add(500*time.Millisecond), state.NextTick)

	// starting again does not restart the phase
	require.NoError(t, s.Start())
	requireNoTick(t, l)
}

func TestBeatsCycleAtThePeriod(t *testing.T) {
	t.Parallel()

	s, clk, l := newTestScheduler(t, Config{InitialSpeed: 120, Playlist: threeBeats})

	require.NoError(t, s.Start())
	first := nextTick(t, l)

	var beats []int
	var last TickEvent
	for i := 0; i < 8; i++ {
		clk.Step(499 * time.Millisecond)
		requireNoTick(t, l)
		clk.Step(time.Millisecond)
		last = nextTick(t, l)
		beats = append(beats, last.BeatIndex)
	}

	assert.Equal(t, []int{1, 2, 0, 1, 2, 0, 1, 2}, beats)
	assert.Equal(t, 8*500*time.Millisecond, last.FiredAt.Sub(first.FiredAt))
	assert.Equal(t, 1, last.SoundID)
	assert.Equal(t, 0.25, last.Volume)
}

func TestLateTickSkipsABeat(t *testing.T) {
	t.Parallel()

	s, clk, l := newTestScheduler(t, Config{InitialSpeed: 120, Playlist: threeBeats})

	require.NoError(t, s.Start())
	nextTick(t, l)

	// the tick due at +500ms is serviced 800ms late
	clk.Step(1300 * time.Millisecond)
	late := nextTick(t, l)
	assert.Equal(t, t0.Add(1300*time.Millisecond), late.FiredAt)
	assert.Equal(t, 1, late.BeatIndex)

	// +1000ms is only 300ms behind, under half a period ahead, so +1500ms is next
	assert.Equal(t, t0.Add(1500*time.Millisecond), s.State().NextTick)

	clk.Step(199 * time.Millisecond)
	requireNoTick(t, l)
	clk.Step(time.Millisecond)
	ev := nextTick(t, l)
	assert.Equal(t, t0.Add(1500*time.Millisecond), ev.FiredAt)
	assert.Equal(t, 2, ev.BeatIndex)
}

func TestToggle(t *testing.T) {
	t.Parallel()

	s, clk, l := newTestScheduler(t, Config{InitialSpeed: 120})

	require.NoError(t, s.Toggle())
	nextTick(t, l)
	assert.True(t, s.State().IsPlaying)

	require.NoError(t, s.Toggle())
	assert.False(t, s.State().IsPlaying)
	assert.False(t, clk.HasWaiters())
}

func TestConcurrentTogglesCancelOut(t *testing.T) {
	t.Parallel()

	for i := 0; i < 200; i++ {
		s, _, _ := newTestScheduler(t, Config{InitialSpeed: 120})

		gate := make(chan struct{})
		var wg sync.WaitGroup
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-gate
				assert.NoError(t, s.Toggle())
			}()
		}
		close(gate)
		wg.Wait()

		require.False(t, s.State().IsPlaying, "run %d", i)
	}
}

func TestSpeedChangeKeepsPendingTick(t *testing.T) {
	t.Parallel()

	s, clk, l := newTestScheduler(t, Config{InitialSpeed: 120, Playlist: threeBeats})

	require.NoError(t, s.Start())
	nextTick(t, l)

	clk.Step(200 * time.Millisecond)
	require.NoError(t, s.ChangeSpeedAbsolute(60))

	state := s.State()
	assert.Equal(t, 60.0, state.SpeedBPM)
	assert.Equal(t, 1, state.BeatIndex)
	assert.Equal(t, t0.Add(500*time.Millisecond), state.NextTick)

	// the pending tick still fires at the old deadline
	clk.Step(300 * time.Millisecond)
	ev := nextTick(t, l)
	assert.Equal(t, 1, ev.BeatIndex)
	assert.Equal(t, t0.Add(500*time.Millisecond), ev.FiredAt)

	// the one after uses the new period
	clk.Step(999 * time.Millisecond)
	requireNoTick(t, l)
	clk.Step(time.Millisecond)
	ev = nextTick(t, l)
	assert.Equal(t, 2, ev.BeatIndex)
	assert.Equal(t, t0.Add(1500*time.Millisecond), ev.FiredAt)
}

func TestChangeSpeedRelative(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestScheduler(t, Config{InitialSpeed: 120})

	require.NoError(t, s.ChangeSpeedRelative(10))
	assert.Equal(t, 130.0, s.State().SpeedBPM)

	require.NoError(t, s.ChangeSpeedRelative(1000))
	assert.Equal(t, speed.DefaultMaximum, s.State().SpeedBPM)
}

func TestStopCancelsPendingTick(t *testing.T) {
	t.Parallel()

	s, clk, l := newTestScheduler(t, Config{InitialSpeed: 120, Playlist: threeBeats})

	require.NoError(t, s.Start())
	nextTick(t, l)

	require.NoError(t, s.Stop())
	assert.False(t, clk.HasWaiters())

	clk.Step(2 * time.Second)
	requireNoTick(t, l)
	assert.False(t, s.State().IsPlaying)

	// restarting rewinds to the first beat
	require.NoError(t, s.Start())
	ev := nextTick(t, l)
	assert.Equal(t, 0, ev.BeatIndex)
	assert.Equal(t, t0.Add(2*time.Second), ev.FiredAt)
}

func TestResyncPhase(t *testing.T) {
	t.Parallel()

	s, clk, l := newTestScheduler(t, Config{InitialSpeed: 120, Playlist: threeBeats})

	// ignored while stopped
	require.NoError(t, s.ResyncPhase(t0.Add(100*time.Millisecond)))
	assert.False(t, clk.HasWaiters())
	assert.True(t, s.State().NextTick.IsZero())

	require.NoError(t, s.Start())
	nextTick(t, l)

	require.NoError(t, s.ResyncPhase(t0.Add(300*time.Millisecond)))
	clk.Step(300 * time.Millisecond)
	ev := nextTick(t, l)
	assert.Equal(t, 1, ev.BeatIndex)
	assert.Equal(t, t0.Add(300*time.Millisecond), ev.FiredAt)

	clk.Step(500 * time.Millisecond)
	ev = nextTick(t, l)
	assert.Equal(t, t0.Add(800*time.Millisecond), ev.FiredAt)
}

func TestApplyTapEstimate(t *testing.T) {
	t.Parallel()

	s, clk, l := newTestScheduler(t, Config{InitialSpeed: 100, Playlist: threeBeats})

	require.NoError(t, s.Start())
	nextTick(t, l)

	require.NoError(t, s.ApplyTapEstimate(taptempo.Estimate{BPM: 120, PredictedNextTick: t0.Add(450 * time.Millisecond)}))
	state := s.State()
	assert.Equal(t, 120.0, state.SpeedBPM)
	assert.Equal(t, t0.Add(450*time.Millisecond), state.NextTick)

	clk.Step(450 * time.Millisecond)
	ev := nextTick(t, l)
	assert.Equal(t, t0.Add(450*time.Millisecond), ev.FiredAt)
}

func TestEmptyPlaylistStillTicks(t *testing.T) {
	t.Parallel()

	s, clk, l := newTestScheduler(t, Config{InitialSpeed: 120, Playlist: threeBeats})

	require.NoError(t, s.SetPlaylist(nil))
	assert.Equal(t, []playlist.BeatSpec{playlist.DefaultBeat}, s.Playlist())

	require.NoError(t, s.Start())
	for i := 0; i < 3; i++ {
		ev := nextTick(t, l)
		assert.Equal(t, 0, ev.BeatIndex)
		assert.Equal(t, playlist.DefaultSoundID, ev.SoundID)
		assert.Equal(t, t0.Add(time.Duration(i)*500*time.Millisecond), ev.FiredAt)
		clk.Step(500 * time.Millisecond)
	}
}

func TestShorterPlaylistRewinds(t *testing.T) {
	t.Parallel()

	s, clk, l := newTestScheduler(t, Config{InitialSpeed: 120, Playlist: threeBeats})

	require.NoError(t, s.Start())
	nextTick(t, l)
	clk.Step(500 * time.Millisecond)
	nextTick(t, l)
	require.Equal(t, 2, s.State().BeatIndex)

	// an equal playlist is ignored and keeps the position
	require.NoError(t, s.SetPlaylist([]playlist.BeatSpec{
		{SoundID: 0, Volume: 1},
		{SoundID: 1, Volume: 0.5004},
		{SoundID: 1, Volume: 0.25},
	}))
	assert.Equal(t, 2, s.State().BeatIndex)
	assert.Equal(t, 0.5, s.Playlist()[1].Volume)

	// a longer playlist keeps the position
	longer := append(append([]playlist.BeatSpec{}, threeBeats...), playlist.BeatSpec{SoundID: 4, Volume: 1})
	require.NoError(t, s.SetPlaylist(longer))
	assert.Equal(t, 2, s.State().BeatIndex)

	// a shorter one rewinds
	require.NoError(t, s.SetPlaylist([]playlist.BeatSpec{{SoundID: 7, Volume: 0.75}, {SoundID: 8, Volume: 0.5}}))
	assert.Equal(t, 0, s.State().BeatIndex)

	clk.Step(500 * time.Millisecond)
	ev := nextTick(t, l)
	assert.Equal(t, 0, ev.BeatIndex)
	assert.Equal(t, 7, ev.SoundID)
	assert.Equal(t, 0.75, ev.Volume)
}

func TestSpeedBounds(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestScheduler(t, Config{InitialSpeed: 120})

	err := s.SetMinimumSpeed(300)
	require.Error(t, err)
	var boundErr *speed.InvalidBoundError
	require.ErrorAs(t, err, &boundErr)
	assert.Equal(t, speed.DefaultBounds(), s.Bounds())

	require.NoError(t, s.SetMinimumSpeed(140))
	assert.Equal(t, 140.0, s.State().SpeedBPM)

	require.NoError(t, s.SetMaximumSpeed(150))
	assert.Equal(t, speed.Bounds{Minimum: 140, Maximum: 150}, s.Bounds())

	// out of range requests are clamped by the controller
	require.NoError(t, s.ChangeSpeedAbsolute(90))
	assert.Equal(t, 140.0, s.State().SpeedBPM)
}

func TestInitialSpeedIsClamped(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestScheduler(t, Config{InitialSpeed: 400})
	assert.Equal(t, speed.DefaultMaximum, s.State().SpeedBPM)

	_, err := New(clocktesting.NewFakeClock(t0), Config{Bounds: speed.Bounds{Minimum: 200, Maximum: 100}})
	require.Error(t, err)
}

func TestControlAfterShutdown(t *testing.T) {
	t.Parallel()

	clk := clocktesting.NewFakeClock(t0)
	s, err := New(clk, Config{InitialSpeed: 90})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	exited := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(exited)
	}()
	require.NoError(t, s.Start())
	cancel()
	<-exited

	require.ErrorIs(t, s.Stop(), ErrClosed)
	require.ErrorIs(t, s.SetMinimumSpeed(30), ErrClosed)
	assert.Equal(t, 90.0, s.State().SpeedBPM)
	assert.False(t, clk.HasWaiters())
}
