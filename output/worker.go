// Package output renders tick events: it drains a tick listener and hands every event to a Sink.
package output

import (
	"context"
	"sync"

	"github.com/robmorgan/clicktrack/logger"
	"github.com/robmorgan/clicktrack/scheduler"
	"github.com/sirupsen/logrus"
)

// Sink renders a single tick.
type Sink interface {
	Render(ev scheduler.TickEvent) error
	Close() error
}

// RenderWorker sends every tick received on l to sink until ctx is done or the listener is closed. Render
// errors are logged and do not stop the worker.
func RenderWorker(ctx context.Context, l *scheduler.Listener, sink Sink, wg *sync.WaitGroup) error {
	defer wg.Done()
	defer sink.Close()

	log := logger.GetProjectLogger()
	log.Debug("Render worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug("Render worker shutdown")
			return ctx.Err()
		case ev, ok := <-l.C:
			if !ok {
				log.Debug("Tick listener closed, render worker exiting")
				return nil
			}
			if err := sink.Render(ev); err != nil {
				log.WithError(err).WithFields(logrus.Fields{"beat": ev.BeatIndex, "sound_id": ev.SoundID}).
					Warn("Failed to render tick")
			}
		}
	}
}

// LogSink writes each tick to the project logger.
type LogSink struct {
	log *logrus.Entry
}

func NewLogSink() *LogSink {
	return &LogSink{log: logger.GetProjectLogger()}
}

func (s *LogSink) Render(ev scheduler.TickEvent) error {
	s.log.WithFields(logrus.Fields{
		"beat":     ev.BeatIndex,
		"sound_id": ev.SoundID,
		"volume":   ev.Volume,
		"fired_at": ev.FiredAt.Format("15:04:05.000"),
	}).Info("Tick")
	return nil
}

func (s *LogSink) Close() error { return nil }

// MultiSink renders to several sinks in order, returning the first error.
type MultiSink []Sink

func (m MultiSink) Render(ev scheduler.TickEvent) error {
	var first error
	for _, s := range m {
		if err := s.Render(ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiSink) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
