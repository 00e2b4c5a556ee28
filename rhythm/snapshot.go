package rhythm

import "time"

// Snapshot is a read-only copy of the playback state handed to callers outside the tick loop.
type Snapshot struct {
	// SpeedBPM is the tempo in beats per minute.
	SpeedBPM float64 `json:"speed_bpm"`

	// BeatIndex is the playlist position that will sound on the next tick.
	BeatIndex int `json:"beat_index"`

	// IsPlaying reports whether ticks are being scheduled.
	IsPlaying bool `json:"is_playing"`

	// NextTick is the absolute time of the next tick, zero while stopped.
	NextTick time.Time `json:"next_tick"`
}

// GetBeatInterval gets the beat length in time at the snapshot's tempo.
func (s Snapshot) GetBeatInterval() time.Duration {
	return PeriodFor(s.SpeedBPM)
}

// DistanceFromBeat determines how far in time the instant is from the next tick. It is zero while stopped or
// once the deadline has passed.
func (s Snapshot) DistanceFromBeat(instant time.Time) time.Duration {
	if !s.IsPlaying || !s.NextTick.After(instant) {
		return 0
	}
	return s.NextTick.Sub(instant)
}
