package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/sheetcast/internal/models"
	"github.com/raphaelgruber/sheetcast/internal/pipeline"
)

// Note detection thresholds passed to basic-pitch.
const (
	OnsetThreshold = 0.5
	FrameThreshold = 0.3
	MinNoteLenMs   = 127.7
)

// Analyzer detects notes with the basic-pitch CLI and reads its MIDI output.
type Analyzer struct {
	layout  Layout
	cmd     Command
	runner  commandRunner
	quality QualityFunc
	logger  *slog.Logger
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithQuality replaces DefaultQuality.
func WithQuality(fn QualityFunc) AnalyzerOption {
	return func(a *Analyzer) { a.quality = fn }
}

// NewAnalyzer creates an Analyzer running cmd.
func NewAnalyzer(layout Layout, cmd Command, logger *slog.Logger, opts ...AnalyzerOption) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Analyzer{layout: layout, cmd: cmd, runner: execRunner{}, quality: DefaultQuality, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze transcribes audioPath and summarizes the result.
func (a *Analyzer) Analyze(ctx context.Context, jobID, audioPath string) (pipeline.Analysis, error) {
	dir := a.layout.JobUploadDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return pipeline.Analysis{}, fmt.Errorf("create upload dir: %w", err)
	}
	outDir, err := os.MkdirTemp(dir, "basic-pitch-")
	if err != nil {
		return pipeline.Analysis{}, fmt.Errorf("create analysis dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	args := []string{
		"--onset-threshold", fmt.Sprint(OnsetThreshold),
		"--frame-threshold", fmt.Sprint(FrameThreshold),
		"--minimum-note-length", fmt.Sprint(MinNoteLenMs),
		outDir, audioPath,
	}
	if _, err := a.cmd.run(ctx, a.runner, args...); err != nil {
		return pipeline.Analysis{}, err
	}

	produced, err := findMIDI(outDir, audioPath)
	if err != nil {
		return pipeline.Analysis{}, err
	}
	raw := filepath.Join(dir, rawMIDIFile)
	if err := copyFile(produced, raw); err != nil {
		return pipeline.Analysis{}, fmt.Errorf("keep raw midi: %w", err)
	}

	events, _, err := ReadMIDI(raw)
	if err != nil {
		return pipeline.Analysis{}, err
	}

	duration, err := wavDuration(audioPath)
	if err != nil {
		a.logger.Debug("wav header unreadable, using last note offset", "job_id", jobID, "error", err)
		duration = lastOffset(events)
	}

	q, err := a.quality(events, duration)
	if err != nil {
		a.logger.Warn("quality computation failed", "job_id", jobID, "error", err)
		q = FallbackQuality
	}

	a.logger.Info("analysis complete", "job_id", jobID, "notes", len(events), "confidence", q.ConfidenceScore)
	return pipeline.Analysis{Events: events, Quality: q}, nil
}

// findMIDI locates basic-pitch's output. It is named after the input stem
// but any single .mid in dir is accepted.
func findMIDI(dir, audioPath string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	expected := filepath.Join(dir, stem+"_basic_pitch.mid")
	if _, err := os.Stat(expected); err == nil {
		return expected, nil
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "*.mid"))
	if len(matches) == 0 {
		return "", fmt.Errorf("basic-pitch produced no midi in %s", dir)
	}
	return matches[0], nil
}

func lastOffset(events []models.NoteEvent) float64 {
	var end float64
	for _, e := range events {
		end = max(end, e.End)
	}
	return end
}
