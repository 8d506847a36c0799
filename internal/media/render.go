package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Renderer timeouts.
const (
	ProbeTimeout  = 5 * time.Second
	RenderTimeout = 60 * time.Second
)

// ErrRendererUnavailable is returned by Render when no MuseScore was found.
var ErrRendererUnavailable = errors.New("no score renderer available")

// museScoreCandidates are probed in order when no command is configured.
var museScoreCandidates = []string{
	"musescore",
	"mscore",
	"/usr/bin/musescore",
	"/usr/local/bin/musescore",
}

// MuseScore renders MusicXML to PDF with the first working MuseScore binary.
type MuseScore struct {
	candidates []Command
	runner     commandRunner
	logger     *slog.Logger

	once sync.Once
	cmd  Command
}

// NewMuseScore creates a renderer. A non-empty configured command is the only
// candidate; otherwise the well-known install locations are probed.
func NewMuseScore(configured Command, logger *slog.Logger) *MuseScore {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MuseScore{runner: execRunner{}, logger: logger}
	if len(configured) > 0 {
		m.candidates = []Command{configured}
	} else {
		for _, c := range museScoreCandidates {
			m.candidates = append(m.candidates, Command{c})
		}
	}
	return m
}

// Available probes the candidates once and reports whether one responded.
func (m *MuseScore) Available() bool {
	m.once.Do(m.probe)
	return m.cmd != nil
}

func (m *MuseScore) probe() {
	for _, c := range m.candidates {
		ctx, cancel := context.WithTimeout(context.Background(), ProbeTimeout)
		res, err := c.run(ctx, m.runner, "--version")
		cancel()
		if err == nil {
			m.cmd = c
			m.logger.Info("score renderer found", "command", c.Name(), "version", lastLine(res.Stdout))
			return
		}
	}
	m.logger.Warn("no score renderer found, pdf output disabled")
}

// Render converts in to out.
func (m *MuseScore) Render(ctx context.Context, in, out string) error {
	if !m.Available() {
		return ErrRendererUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, RenderTimeout)
	defer cancel()

	if _, err := m.cmd.run(ctx, m.runner, in, "-o", out); err != nil {
		return err
	}
	if _, err := os.Stat(out); err != nil {
		return fmt.Errorf("renderer produced no output: %w", err)
	}
	return nil
}

// Renderer converts a notation file into a rendered document.
type Renderer interface {
	Available() bool
	Render(ctx context.Context, in, out string) error
}

// Documents is the best-effort document stage: it renders a job's MusicXML
// to PDF.
type Documents struct {
	layout   Layout
	renderer Renderer
	mirror   Mirror
	logger   *slog.Logger
}

// NewDocuments creates the document stage. mirror may be nil.
func NewDocuments(layout Layout, renderer Renderer, mirror Mirror, logger *slog.Logger) *Documents {
	if logger == nil {
		logger = slog.Default()
	}
	return &Documents{layout: layout, renderer: renderer, mirror: mirror, logger: logger}
}

// Available reports whether a renderer is installed.
func (d *Documents) Available() bool {
	return d.renderer != nil && d.renderer.Available()
}

// ExportDocument renders the job's MusicXML and returns the PDF handle.
func (d *Documents) ExportDocument(ctx context.Context, jobID string) (string, error) {
	dir := d.layout.JobOutputDir(jobID)
	out := filepath.Join(dir, PDFFile)
	if err := d.renderer.Render(ctx, filepath.Join(dir, MusicXMLFile), out); err != nil {
		return "", err
	}
	mirrorArtifacts(ctx, d.mirror, d.logger, jobID, out)
	return d.layout.DownloadURL(jobID, FormatPDF), nil
}
