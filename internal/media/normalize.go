package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// Canonical audio format handed to the analyzer.
const (
	SampleRate     = 16000
	TargetLoudness = -20.0
)

// Normalizer converts raw media into mono, loudness-normalized WAV via ffmpeg.
type Normalizer struct {
	layout Layout
	ffmpeg Command
	runner commandRunner
	logger *slog.Logger
}

// NewNormalizer creates a Normalizer using the given ffmpeg command.
func NewNormalizer(layout Layout, ffmpeg Command, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{layout: layout, ffmpeg: ffmpeg, runner: execRunner{}, logger: logger}
}

// Normalize writes processed.wav next to the raw media. With isolate set the
// result is additionally passed through instrument isolation.
func (n *Normalizer) Normalize(ctx context.Context, jobID, rawPath string, isolate bool) (string, error) {
	dir := n.layout.JobUploadDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	out := filepath.Join(dir, processedWAV)
	if _, err := n.ffmpeg.run(ctx, n.runner, buildFFmpegArgs(rawPath, out)...); err != nil {
		return "", err
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("ffmpeg produced no output: %w", err)
	}
	n.logger.Info("normalized audio", "job_id", jobID, "path", out)

	if !isolate {
		return out, nil
	}
	return n.isolate(jobID, out, filepath.Join(dir, isolatedWAV))
}

// isolate is a passthrough until a source separation model is wired in.
func (n *Normalizer) isolate(jobID, in, out string) (string, error) {
	n.logger.Warn("piano isolation not available, using full mix", "job_id", jobID)
	if err := copyFile(in, out); err != nil {
		return "", fmt.Errorf("isolate: %w", err)
	}
	return out, nil
}

// buildFFmpegArgs builds args for mono 16 kHz PCM with loudness normalization.
func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(SampleRate),
		"-af", fmt.Sprintf("loudnorm=I=%.0f", TargetLoudness),
		"-c:a", "pcm_s16le",
		outPath,
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
