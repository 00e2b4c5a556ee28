package output

import (
	"fmt"
	"os"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"github.com/gruntwork-io/go-commons/errors"
	"github.com/robmorgan/clicktrack/playlist"
	"github.com/robmorgan/clicktrack/scheduler"
)

// SampleRate is the rate the speaker runs at; samples recorded at other rates are resampled on load.
const SampleRate = beep.SampleRate(44100)

// BeepSink plays a preloaded wav sample for every tick, scaled by the tick's volume.
type BeepSink struct {
	samples map[int]*beep.Buffer
}

// NewBeepSink loads the wav files mapped by sound id and opens the speaker.
func NewBeepSink(files map[int]string) (*BeepSink, error) {
	samples := make(map[int]*beep.Buffer, len(files))
	for id, path := range files {
		buf, err := loadSample(path, SampleRate)
		if err != nil {
			return nil, err
		}
		samples[id] = buf
	}

	if err := speaker.Init(SampleRate, SampleRate.N(time.Second/50)); err != nil {
		return nil, errors.WithStackTrace(err)
	}
	return &BeepSink{samples: samples}, nil
}

// loadSample decodes a wav file into memory at the given rate.
func loadSample(path string, rate beep.SampleRate) (*beep.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStackTrace(err)
	}
	defer f.Close()

	streamer, format, err := wav.Decode(f)
	if err != nil {
		return nil, errors.WithStackTrace(fmt.Errorf("decoding %s: %w", path, err))
	}
	defer streamer.Close()

	var s beep.Streamer = streamer
	if format.SampleRate != rate {
		s = beep.Resample(4, format.SampleRate, rate, s)
	}

	buf := beep.NewBuffer(beep.Format{SampleRate: rate, NumChannels: format.NumChannels, Precision: format.Precision})
	buf.Append(s)
	return buf, nil
}

// sampleFor returns the sample of a sound id, falling back to the default sound.
func (s *BeepSink) sampleFor(soundID int) (*beep.Buffer, bool) {
	if buf, ok := s.samples[soundID]; ok {
		return buf, true
	}
	buf, ok := s.samples[playlist.DefaultSoundID]
	return buf, ok
}

// Render starts the tick's sample on the speaker and returns without waiting for it to finish.
func (s *BeepSink) Render(ev scheduler.TickEvent) error {
	if ev.Volume <= 0 {
		return nil
	}
	buf, ok := s.sampleFor(ev.SoundID)
	if !ok {
		return fmt.Errorf("no sample loaded for sound id %d", ev.SoundID)
	}
	speaker.Play(&effects.Gain{
		Streamer: buf.Streamer(0, buf.Len()),
		Gain:     ev.Volume - 1,
	})
	return nil
}

// Close silences anything still playing.
func (s *BeepSink) Close() error {
	speaker.Clear()
	return nil
}
