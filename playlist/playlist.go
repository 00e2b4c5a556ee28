// Package playlist holds the cyclic sequence of beats a click track plays, one entry per beat.
package playlist

import (
	"fmt"
	"math"

	"github.com/robmorgan/clicktrack/rhythm"
)

// DefaultSoundID is the sound played by the fallback beat of an empty playlist.
const DefaultSoundID = 0

// VolumeTolerance is the largest volume difference at which two beats still compare equal.
const VolumeTolerance = 1e-3

// DefaultBeat replaces an empty playlist so the track always has something to cycle through.
var DefaultBeat = BeatSpec{SoundID: DefaultSoundID, Volume: 1.0}

// BeatSpec is the sound and volume of a single beat.
type BeatSpec struct {
	SoundID int
	Volume  float64
}

// Equal reports whether b and o play the same sound at volumes within VolumeTolerance.
func (b BeatSpec) Equal(o BeatSpec) bool {
	return b.SoundID == o.SoundID && math.Abs(b.Volume-o.Volume) <= VolumeTolerance
}

// IndexError is returned when a beat outside the playlist is requested.
type IndexError struct {
	Index  int
	Length int
}

func (e IndexError) Error() string {
	return fmt.Sprintf("beat index %d out of range for playlist of length %d", e.Index, e.Length)
}

// Playlist is an ordered, cyclic list of beats. Insertion order is musical order.
type Playlist struct {
	entries []BeatSpec
}

// New creates a Playlist from entries. An empty argument list yields the single default beat.
func New(entries ...BeatSpec) *Playlist {
	p := &Playlist{}
	p.SetEntries(entries)
	return p
}

// SetEntries replaces the beats. Volumes are clamped to [0,1], NaN volumes become 0 and an empty list is
// replaced with DefaultBeat.
func (p *Playlist) SetEntries(entries []BeatSpec) {
	if len(entries) == 0 {
		p.entries = []BeatSpec{DefaultBeat}
		return
	}

	p.entries = make([]BeatSpec, len(entries))
	for i, e := range entries {
		vol := e.Volume
		if math.IsNaN(vol) {
			vol = 0
		}
		p.entries[i] = BeatSpec{SoundID: e.SoundID, Volume: rhythm.Clamp(vol, 0, 1)}
	}
}

// At returns the beat at index.
func (p *Playlist) At(index int) (BeatSpec, error) {
	if index < 0 || index >= len(p.entries) {
		return BeatSpec{}, IndexError{Index: index, Length: len(p.entries)}
	}
	return p.entries[index], nil
}

// Len returns the number of beats.
func (p *Playlist) Len() int { return len(p.entries) }

// Entries returns a copy of the beats.
func (p *Playlist) Entries() []BeatSpec {
	out := make([]BeatSpec, len(p.entries))
	copy(out, p.entries)
	return out
}

// Equal reports whether both playlists have the same length and pairwise equal beats.
func (p *Playlist) Equal(o *Playlist) bool {
	if p == nil || o == nil {
		return p == o
	}
	if len(p.entries) != len(o.entries) {
		return false
	}
	for i := range p.entries {
		if !p.entries[i].Equal(o.entries[i]) {
			return false
		}
	}
	return true
}
