package media

import (
	"errors"
	"math"

	"github.com/raphaelgruber/sheetcast/internal/models"
)

// QualityFunc summarizes a transcription. duration is the audio length in
// seconds.
type QualityFunc func(events []models.NoteEvent, duration float64) (models.Quality, error)

var errInvalidDuration = errors.New("invalid audio duration")

// FallbackQuality is reported when the quality heuristic fails.
var FallbackQuality = models.Quality{ConfidenceScore: 0.5}

// DefaultQuality derives confidence and polyphony from note density.
func DefaultQuality(events []models.NoteEvent, duration float64) (models.Quality, error) {
	if math.IsNaN(duration) || duration < 0 {
		return models.Quality{}, errInvalidDuration
	}

	density := float64(len(events)) / math.Max(duration, 1)
	return models.Quality{
		ConfidenceScore: round2(clamp(density/5, 0.3, 0.95)),
		NoteCount:       len(events),
		Duration:        round2(duration),
		PolyphonyAvg:    round2(math.Min(density, 10)),
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
