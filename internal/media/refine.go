package media

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/raphaelgruber/sheetcast/internal/models"
)

// GridSeconds is a sixteenth note at 120 BPM.
const GridSeconds = 0.125

// ErrInvalidEvent is returned for events that cannot be refined.
var ErrInvalidEvent = errors.New("invalid note event")

// Refiner quantizes events to a fixed grid and assigns hands.
type Refiner struct {
	grid  float64
	split int
}

// NewRefiner creates a Refiner with the default grid and a middle C split.
func NewRefiner() *Refiner {
	return &Refiner{grid: GridSeconds, split: models.MiddleC}
}

// Refine returns a quantized copy of events sorted by onset then pitch.
func (r *Refiner) Refine(ctx context.Context, events []models.NoteEvent) ([]models.NoteEvent, error) {
	out := make([]models.NoteEvent, 0, len(events))
	for i, e := range events {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.Pitch < 0 || e.Pitch > 127 {
			return nil, fmt.Errorf("%w: event %d pitch %d", ErrInvalidEvent, i, e.Pitch)
		}
		if e.End < e.Start || e.Start < 0 {
			return nil, fmt.Errorf("%w: event %d spans %.3f-%.3f", ErrInvalidEvent, i, e.Start, e.End)
		}

		start := r.snap(e.Start)
		end := math.Max(r.snap(e.End), start+r.grid)
		hand := models.HandLeft
		if e.Pitch >= r.split {
			hand = models.HandRight
		}
		out = append(out, models.NoteEvent{
			Pitch:    e.Pitch,
			Velocity: e.Velocity,
			Start:    start,
			End:      end,
			Hand:     hand,
		})
	}
	sortNotes(out)
	return out, nil
}

func (r *Refiner) snap(t float64) float64 {
	return math.Round(t/r.grid) * r.grid
}
