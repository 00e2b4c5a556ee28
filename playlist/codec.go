package playlist

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Parse reads the stored form of a playlist: whitespace separated pairs of sound id and volume,
// e.g. "0 1.0 1 0.5 1 0.5 1 0.5".
func Parse(s string) ([]BeatSpec, error) {
	fields := strings.Fields(s)
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("playlist %q has an odd number of fields (%d)", s, len(fields))
	}

	entries := make([]BeatSpec, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		id, err := strconv.Atoi(fields[i])
		if err != nil {
			return nil, fmt.Errorf("invalid sound id %q at position %d: %w", fields[i], i, err)
		}
		vol, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid volume %q at position %d: %w", fields[i+1], i+1, err)
		}
		if math.IsNaN(vol) {
			return nil, fmt.Errorf("invalid volume %q at position %d: not a number", fields[i+1], i+1)
		}
		entries = append(entries, BeatSpec{SoundID: id, Volume: vol})
	}
	return entries, nil
}

// Format writes entries in the form read by Parse.
func Format(entries []BeatSpec) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Itoa(e.SoundID))
		b.WriteByte(' ')
		b.WriteString(strconv.FormatFloat(e.Volume, 'f', -1, 64))
	}
	return b.String()
}
