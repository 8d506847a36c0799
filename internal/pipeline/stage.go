// Package pipeline drives a transcription job through its stages and
// persists the job record at every state transition.
package pipeline

import (
	"context"

	"github.com/raphaelgruber/sheetcast/internal/models"
)

// FetchResult is the output of the fetch stage.
type FetchResult struct {
	RawPath  string
	Title    string
	Duration float64 // seconds, 0 if unknown
}

// Analysis is the output of the analyze stage.
type Analysis struct {
	Events  []models.NoteEvent
	Quality models.Quality
}

// ExportMeta carries job attributes the exporter may embed in its artifacts.
type ExportMeta struct {
	Title    string
	Duration float64
}

// ExportResult holds download handles for the mandatory artifacts.
type ExportResult struct {
	MIDIURL     string
	MusicXMLURL string
}

// Fetcher retrieves the source media into local storage.
type Fetcher interface {
	Fetch(ctx context.Context, jobID, source string) (FetchResult, error)
}

// Normalizer turns raw media into canonical mono audio. When isolate is set
// it also attempts to isolate the target instrument.
type Normalizer interface {
	Normalize(ctx context.Context, jobID, rawPath string, isolate bool) (string, error)
}

// Analyzer detects note events in canonical audio.
type Analyzer interface {
	Analyze(ctx context.Context, jobID, audioPath string) (Analysis, error)
}

// Refiner post-processes raw note events.
type Refiner interface {
	Refine(ctx context.Context, events []models.NoteEvent) ([]models.NoteEvent, error)
}

// Exporter writes the mandatory artifacts for the refined events.
type Exporter interface {
	Export(ctx context.Context, jobID string, events []models.NoteEvent, meta ExportMeta) (ExportResult, error)
}

// DocumentExporter produces the best-effort rendered document. Available
// reports whether a renderer was found; Export returns the download handle.
type DocumentExporter interface {
	Available() bool
	ExportDocument(ctx context.Context, jobID string) (string, error)
}

// Stages bundles the stage implementations. Document may be nil.
type Stages struct {
	Fetch     Fetcher
	Normalize Normalizer
	Analyze   Analyzer
	Refine    Refiner
	Export    Exporter
	Document  DocumentExporter
}

// Work is the data threaded between stages of one run.
type Work struct {
	RawPath   string
	AudioPath string
	Events    []models.NoteEvent
	Refined   []models.NoteEvent
}
