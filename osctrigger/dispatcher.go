// Package osctrigger lets a lighting desk, a MIDI bridge or any other OSC sender drive the metronome.
//
// Addresses:
//
//	/clicktrack/start
//	/clicktrack/stop
//	/clicktrack/toggle
//	/clicktrack/tap
//	/clicktrack/speed/relative   f delta
//	/clicktrack/speed/absolute   f bpm
//	/clicktrack/minimum          f bpm
//	/clicktrack/maximum          f bpm
//	/clicktrack/playlist         i sound f volume [i sound f volume ...]
package osctrigger

import (
	"fmt"
	"math"

	"github.com/hypebeast/go-osc/osc"
	"github.com/robmorgan/clicktrack/logger"
	"github.com/robmorgan/clicktrack/playlist"
	"github.com/sirupsen/logrus"
)

const (
	AddressStart         = "/clicktrack/start"
	AddressStop          = "/clicktrack/stop"
	AddressToggle        = "/clicktrack/toggle"
	AddressTap           = "/clicktrack/tap"
	AddressSpeedRelative = "/clicktrack/speed/relative"
	AddressSpeedAbsolute = "/clicktrack/speed/absolute"
	AddressMinimum       = "/clicktrack/minimum"
	AddressMaximum       = "/clicktrack/maximum"
	AddressPlaylist      = "/clicktrack/playlist"
)

// Controller is the part of the metronome the OSC surface can drive.
type Controller interface {
	Start() error
	Stop() error
	Toggle() error
	Tap() error
	ChangeSpeedRelative(delta float64) error
	ChangeSpeedAbsolute(bpm float64) error
	SetMinimumSpeed(bpm float64) error
	SetMaximumSpeed(bpm float64) error
	SetPlaylist(entries []playlist.BeatSpec) error
}

// Dispatcher implements osc.Dispatcher by mapping addresses onto Controller calls.
type Dispatcher struct {
	controller Controller
	log        *logrus.Entry
}

func NewDispatcher(c Controller) *Dispatcher {
	return &Dispatcher{controller: c, log: logger.GetProjectLogger().WithField("component", "osc")}
}

// Dispatch handles a single message or every message of a bundle.
func (d *Dispatcher) Dispatch(packet osc.Packet) {
	switch packet := packet.(type) {
	case *osc.Message:
		if err := d.handle(packet); err != nil {
			d.log.WithError(err).WithField("address", packet.Address).Warn("Rejected OSC message")
		}
	case *osc.Bundle:
		for _, msg := range packet.Messages {
			d.Dispatch(msg)
		}
		for _, b := range packet.Bundles {
			d.Dispatch(b)
		}
	}
}

func (d *Dispatcher) handle(msg *osc.Message) error {
	d.log.WithField("address", msg.Address).Debug("OSC message")

	switch msg.Address {
	case AddressStart:
		return d.controller.Start()
	case AddressStop:
		return d.controller.Stop()
	case AddressToggle:
		return d.controller.Toggle()
	case AddressTap:
		return d.controller.Tap()
	case AddressSpeedRelative:
		v, err := floatArg(msg, 0)
		if err != nil {
			return err
		}
		return d.controller.ChangeSpeedRelative(v)
	case AddressSpeedAbsolute:
		v, err := floatArg(msg, 0)
		if err != nil {
			return err
		}
		return d.controller.ChangeSpeedAbsolute(v)
	case AddressMinimum:
		v, err := floatArg(msg, 0)
		if err != nil {
			return err
		}
		return d.controller.SetMinimumSpeed(v)
	case AddressMaximum:
		v, err := floatArg(msg, 0)
		if err != nil {
			return err
		}
		return d.controller.SetMaximumSpeed(v)
	case AddressPlaylist:
		entries, err := playlistArgs(msg)
		if err != nil {
			return err
		}
		return d.controller.SetPlaylist(entries)
	default:
		return fmt.Errorf("unknown address %s", msg.Address)
	}
}

func playlistArgs(msg *osc.Message) ([]playlist.BeatSpec, error) {
	if len(msg.Arguments)%2 != 0 {
		return nil, fmt.Errorf("playlist needs sound/volume pairs, got %d arguments", len(msg.Arguments))
	}
	entries := make([]playlist.BeatSpec, 0, len(msg.Arguments)/2)
	for i := 0; i < len(msg.Arguments); i += 2 {
		sound, err := floatArg(msg, i)
		if err != nil {
			return nil, err
		}
		volume, err := floatArg(msg, i+1)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(volume) {
			return nil, fmt.Errorf("%s: volume %d is NaN", msg.Address, i/2)
		}
		entries = append(entries, playlist.BeatSpec{SoundID: int(sound), Volume: volume})
	}
	return entries, nil
}

// floatArg reads a numeric argument; senders disagree on whether to use ints or floats.
func floatArg(msg *osc.Message, i int) (float64, error) {
	if i >= len(msg.Arguments) {
		return 0, fmt.Errorf("%s: missing argument %d", msg.Address, i)
	}
	switch v := msg.Arguments[i].(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%s: argument %d has type %T, want a number", msg.Address, i, v)
	}
}
