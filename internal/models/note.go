package models

// Hand assignment for a refined note.
const (
	HandLeft  = "left"
	HandRight = "right"
)

// MiddleC is the MIDI key used as the split point between hands.
const MiddleC = 60

// NoteEvent is a pitched event detected in audio. Times are in seconds.
type NoteEvent struct {
	Pitch    int     `json:"pitch"`
	Velocity int     `json:"velocity"`
	Start    float64 `json:"start_time"`
	End      float64 `json:"end_time"`
	Hand     string  `json:"hand,omitempty"`
}

// Duration returns End - Start.
func (n NoteEvent) Duration() float64 {
	return n.End - n.Start
}

// PianoRollNote is one note of the visualization projection.
type PianoRollNote struct {
	Pitch    int     `json:"pitch"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Velocity int     `json:"velocity"`
	Duration float64 `json:"duration"`
}

// PianoRoll is the display-oriented projection of a finished transcription.
type PianoRoll struct {
	Notes    []PianoRollNote `json:"notes"`
	Tempo    float64         `json:"tempo"`
	Duration float64         `json:"duration"`
}

// DefaultTempoBPM is used when a MIDI file carries no tempo event.
const DefaultTempoBPM = 120.0

// EmptyPianoRoll is returned when a projection cannot be computed.
func EmptyPianoRoll() PianoRoll {
	return PianoRoll{Notes: []PianoRollNote{}, Tempo: DefaultTempoBPM}
}
