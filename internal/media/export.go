package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/raphaelgruber/sheetcast/internal/models"
	"github.com/raphaelgruber/sheetcast/internal/pipeline"
)

// Mirror copies a finished artifact to secondary storage.
type Mirror interface {
	Upload(ctx context.Context, jobID, path string) error
}

// Exporter writes the MIDI and MusicXML artifacts of a job.
type Exporter struct {
	layout Layout
	mirror Mirror
	logger *slog.Logger
}

// NewExporter creates an Exporter. mirror may be nil.
func NewExporter(layout Layout, mirror Mirror, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{layout: layout, mirror: mirror, logger: logger}
}

// Export writes both mandatory artifacts and returns their download handles.
func (e *Exporter) Export(ctx context.Context, jobID string, events []models.NoteEvent, meta pipeline.ExportMeta) (pipeline.ExportResult, error) {
	dir := e.layout.JobOutputDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return pipeline.ExportResult{}, fmt.Errorf("create output dir: %w", err)
	}

	midiPath := filepath.Join(dir, MIDIFile)
	if err := WriteMIDI(midiPath, events, models.DefaultTempoBPM); err != nil {
		return pipeline.ExportResult{}, err
	}
	xmlPath := filepath.Join(dir, MusicXMLFile)
	if err := WriteMusicXML(xmlPath, events, meta.Title); err != nil {
		return pipeline.ExportResult{}, err
	}

	mirrorArtifacts(ctx, e.mirror, e.logger, jobID, midiPath, xmlPath)

	e.logger.Info("exported artifacts", "job_id", jobID, "notes", len(events), "dir", dir)
	return pipeline.ExportResult{
		MIDIURL:     e.layout.DownloadURL(jobID, FormatMIDI),
		MusicXMLURL: e.layout.DownloadURL(jobID, FormatMusicXML),
	}, nil
}

// mirrorArtifacts uploads paths, logging failures.
func mirrorArtifacts(ctx context.Context, m Mirror, logger *slog.Logger, jobID string, paths ...string) {
	if m == nil {
		return
	}
	for _, p := range paths {
		if err := m.Upload(ctx, jobID, p); err != nil {
			logger.Warn("artifact mirror failed", "job_id", jobID, "path", p, "error", err)
		}
	}
}
