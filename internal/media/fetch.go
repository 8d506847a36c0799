package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	getter "github.com/hashicorp/go-getter"
	"github.com/raphaelgruber/sheetcast/internal/pipeline"
)

// ErrUnsupportedSource is returned for references that are neither a web
// page nor a downloadable audio file.
var ErrUnsupportedSource = errors.New("unsupported source reference")

// ErrSourceTooLong is returned when the source exceeds the duration limit.
var ErrSourceTooLong = errors.New("source exceeds maximum duration")

// DefaultMaxDuration is the longest source accepted, in seconds.
const DefaultMaxDuration = 600

// directAudioExts are fetched as plain files instead of through yt-dlp.
var directAudioExts = map[string]bool{
	".wav": true, ".mp3": true, ".flac": true, ".m4a": true, ".ogg": true, ".opus": true,
}

// Fetcher downloads the source audio. Video pages go through yt-dlp; direct
// audio files and forced go-getter sources ("s3::", "gcs::", local paths) go
// through go-getter.
type Fetcher struct {
	layout      Layout
	ytdlp       Command
	runner      commandRunner
	download    func(ctx context.Context, src, dst string) error
	maxDuration float64
	logger      *slog.Logger
}

// NewFetcher creates a Fetcher writing into layout's upload directory.
func NewFetcher(layout Layout, ytdlp Command, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		layout:      layout,
		ytdlp:       ytdlp,
		runner:      execRunner{},
		download:    getterDownload,
		maxDuration: DefaultMaxDuration,
		logger:      logger,
	}
}

// ytdlpInfo is the subset of yt-dlp's info JSON we use.
type ytdlpInfo struct {
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
	Uploader string  `json:"uploader"`
}

// Fetch retrieves source into the job's upload directory.
func (f *Fetcher) Fetch(ctx context.Context, jobID, source string) (pipeline.FetchResult, error) {
	dir := f.layout.JobUploadDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return pipeline.FetchResult{}, fmt.Errorf("create upload dir: %w", err)
	}

	if isDirectSource(source) {
		return f.fetchFile(ctx, dir, source)
	}
	if !isWebURL(source) {
		return pipeline.FetchResult{}, fmt.Errorf("%w: %q", ErrUnsupportedSource, source)
	}
	return f.fetchPage(ctx, dir, source)
}

func (f *Fetcher) fetchPage(ctx context.Context, dir, source string) (pipeline.FetchResult, error) {
	args := []string{
		"--format", "bestaudio/best",
		"--extract-audio",
		"--audio-format", "wav",
		"--no-playlist",
		"--no-warnings",
		"--print-json",
		"--output", filepath.Join(dir, "audio.%(ext)s"),
		source,
	}
	res, err := f.ytdlp.run(ctx, f.runner, args...)
	if err != nil {
		return pipeline.FetchResult{}, err
	}

	var info ytdlpInfo
	if err := json.Unmarshal([]byte(lastJSONLine(res.Stdout)), &info); err != nil {
		return pipeline.FetchResult{}, fmt.Errorf("parse yt-dlp metadata: %w", err)
	}
	if info.Title == "" {
		info.Title = "Unknown"
	}
	if f.maxDuration > 0 && info.Duration > f.maxDuration {
		return pipeline.FetchResult{}, fmt.Errorf("%w: %.0fs > %.0fs", ErrSourceTooLong, info.Duration, f.maxDuration)
	}

	audio := filepath.Join(dir, downloadedWAV)
	if _, err := os.Stat(audio); err != nil {
		return pipeline.FetchResult{}, fmt.Errorf("yt-dlp produced no audio: %w", err)
	}

	f.logger.Info("downloaded audio", "title", info.Title, "duration", info.Duration, "uploader", info.Uploader)
	return pipeline.FetchResult{RawPath: audio, Title: info.Title, Duration: info.Duration}, nil
}

func (f *Fetcher) fetchFile(ctx context.Context, dir, source string) (pipeline.FetchResult, error) {
	name := sourceBase(source)
	dst := filepath.Join(dir, "source"+strings.ToLower(path.Ext(name)))

	if err := f.download(ctx, source, dst); err != nil {
		return pipeline.FetchResult{}, err
	}

	duration := 0.0
	if d, err := wavDuration(dst); err == nil {
		duration = d
	}
	if f.maxDuration > 0 && duration > f.maxDuration {
		return pipeline.FetchResult{}, fmt.Errorf("%w: %.0fs > %.0fs", ErrSourceTooLong, duration, f.maxDuration)
	}

	title := strings.TrimSuffix(name, path.Ext(name))
	f.logger.Info("downloaded file", "title", title, "path", dst)
	return pipeline.FetchResult{RawPath: dst, Title: title, Duration: duration}, nil
}

// getterDownload fetches a single file with go-getter.
func getterDownload(ctx context.Context, src, dst string) error {
	pwd, err := os.Getwd()
	if err != nil {
		pwd = "."
	}

	detected, err := getter.Detect(src, pwd, getter.Detectors)
	if err != nil {
		return fmt.Errorf("detect source type: %w", err)
	}

	client := &getter.Client{
		Ctx:     ctx,
		Src:     detected,
		Dst:     dst,
		Pwd:     pwd,
		Mode:    getter.ClientModeFile,
		Getters: getter.Getters,
	}
	if err := client.Get(); err != nil {
		return fmt.Errorf("fetch %s: %w", src, err)
	}
	return nil
}

// isDirectSource reports whether source names an audio file rather than a page.
func isDirectSource(source string) bool {
	if strings.Contains(source, "::") || filepath.IsAbs(source) || strings.HasPrefix(source, "file://") {
		return true
	}
	u, err := url.Parse(source)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && directAudioExts[strings.ToLower(path.Ext(u.Path))]
}

func isWebURL(source string) bool {
	u, err := url.Parse(source)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// sourceBase returns the file name part of a source reference.
func sourceBase(source string) string {
	if i := strings.LastIndex(source, "::"); i >= 0 {
		source = source[i+2:]
	}
	if u, err := url.Parse(source); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return filepath.Base(source)
}

// lastJSONLine returns the last stdout line that looks like a JSON object.
func lastJSONLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); strings.HasPrefix(l, "{") {
			return l
		}
	}
	return ""
}
