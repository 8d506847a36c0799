package media

import (
	"log/slog"
	"math"

	"github.com/raphaelgruber/sheetcast/internal/models"
)

// PianoRollFromFile projects a MIDI file into display notes. Errors yield an
// empty roll at the default tempo.
func PianoRollFromFile(path string) models.PianoRoll {
	events, bpm, err := ReadMIDI(path)
	if err != nil {
		slog.Warn("piano roll unavailable", "path", path, "error", err)
		return models.EmptyPianoRoll()
	}

	roll := models.PianoRoll{
		Notes: make([]models.PianoRollNote, 0, len(events)),
		Tempo: round2(bpm),
	}
	for _, e := range events {
		roll.Notes = append(roll.Notes, models.PianoRollNote{
			Pitch:    e.Pitch,
			Start:    round3(e.Start),
			End:      round3(e.End),
			Velocity: e.Velocity,
			Duration: round3(e.Duration()),
		})
		roll.Duration = math.Max(roll.Duration, round3(e.End))
	}
	return roll
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
