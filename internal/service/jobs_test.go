package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/sheetcast/internal/media"
	"github.com/raphaelgruber/sheetcast/internal/models"
	"github.com/raphaelgruber/sheetcast/internal/pipeline"
	"github.com/raphaelgruber/sheetcast/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var detected = []models.NoteEvent{
	{Pitch: 48, Velocity: 70, Start: 0.02, End: 0.98},
	{Pitch: 60, Velocity: 90, Start: 0.01, End: 0.49},
	{Pitch: 64, Velocity: 85, Start: 0.51, End: 1.02},
}

// fakeSource stands in for fetch, normalize and analyze. The source
// "unreachable" fails to fetch.
type fakeSource struct{}

func (fakeSource) Fetch(_ context.Context, _, source string) (pipeline.FetchResult, error) {
	if source == "unreachable" {
		return pipeline.FetchResult{}, errors.New("dial tcp: lookup unreachable: no such host")
	}
	return pipeline.FetchResult{RawPath: "raw.webm", Title: "Test Piece", Duration: 1.5}, nil
}

func (fakeSource) Normalize(context.Context, string, string, bool) (string, error) {
	return "processed.wav", nil
}

func (fakeSource) Analyze(context.Context, string, string) (pipeline.Analysis, error) {
	return pipeline.Analysis{Events: detected, Quality: models.Quality{ConfidenceScore: 0.4, NoteCount: 3, Duration: 1.5}}, nil
}

type panicAnalyzer struct{}

func (panicAnalyzer) Analyze(context.Context, string, string) (pipeline.Analysis, error) {
	panic("model weights missing")
}

// gatedStore holds every write after the first until release is closed.
type gatedStore struct {
	*store.Memory
	mu      sync.Mutex
	writes  int
	release chan struct{}
}

func (s *gatedStore) Put(ctx context.Context, job *models.Job, ttl time.Duration) error {
	s.mu.Lock()
	s.writes++
	gated := s.writes > 1
	s.mu.Unlock()
	if gated {
		<-s.release
	}
	return s.Memory.Put(ctx, job, ttl)
}

func newTestService(t *testing.T, st store.Store, analyzer pipeline.Analyzer) (*JobService, media.Layout) {
	t.Helper()
	root := t.TempDir()
	layout := media.Layout{UploadDir: filepath.Join(root, "uploads"), OutputDir: filepath.Join(root, "output")}

	stages := pipeline.Stages{
		Fetch:     fakeSource{},
		Normalize: fakeSource{},
		Analyze:   analyzer,
		Refine:    media.NewRefiner(),
		Export:    media.NewExporter(layout, nil, nil),
	}
	orch := pipeline.New(st, stages)
	return NewJobService(st, orch, layout, 0), layout
}

func TestCreateStartsPending(t *testing.T) {
	st := &gatedStore{Memory: store.NewMemory(), release: make(chan struct{})}
	svc, _ := newTestService(t, st, fakeSource{})
	ctx := context.Background()

	job, err := svc.Create(ctx, "valid-ref-1", models.Options{})
	require.NoError(t, err)

	v, err := svc.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, v.Status)
	assert.Equal(t, 0, v.Progress)
	assert.Nil(t, v.Result)

	close(st.release)
	svc.Wait()

	v, err = svc.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, v.Status)
}

func TestCreateRejectsEmptySource(t *testing.T) {
	svc, _ := newTestService(t, store.NewMemory(), fakeSource{})
	_, err := svc.Create(context.Background(), "  ", models.Options{})
	assert.ErrorIs(t, err, ErrInvalidSource)
}

func TestScenarioCompleted(t *testing.T) {
	svc, _ := newTestService(t, store.NewMemory(), fakeSource{})
	ctx := context.Background()

	job, err := svc.Create(ctx, "valid-ref-1", models.Options{IsolateTarget: false})
	require.NoError(t, err)
	svc.Wait()

	v, err := svc.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, v.Status)
	assert.Equal(t, 100, v.Progress)
	require.NotNil(t, v.Result)
	require.NotNil(t, v.Result.MIDIURL)
	assert.Equal(t, "/api/v1/download/"+job.ID+"/midi", *v.Result.MIDIURL)
	assert.Nil(t, v.Result.PDFURL, "no renderer configured")

	res, err := svc.GetResult(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Title)
	assert.Equal(t, "Test Piece", *res.Title)
	assert.NotNil(t, res.CompletedAt)

	roll, err := svc.GetVisualization(ctx, job.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, roll.Notes)
	assert.Greater(t, roll.Tempo, 0.0)
}

func TestScenarioUnreachableSource(t *testing.T) {
	svc, _ := newTestService(t, store.NewMemory(), fakeSource{})
	ctx := context.Background()

	job, err := svc.Create(ctx, "unreachable", models.Options{})
	require.NoError(t, err)
	svc.Wait()

	res, err := svc.GetResult(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, res.Status)
	require.NotNil(t, res.Error)
	assert.NotEmpty(t, *res.Error)
	assert.Nil(t, res.MIDIURL)
	assert.Nil(t, res.MusicXMLURL)
	assert.Nil(t, res.PDFURL)

	v, err := svc.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, v.Result)
	assert.Equal(t, *res.Error, v.Error)

	_, err = svc.GetVisualization(ctx, job.ID)
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestScenarioUnknownJob(t *testing.T) {
	svc, _ := newTestService(t, store.NewMemory(), fakeSource{})

	_, err := svc.GetStatus(context.Background(), "never-created")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = svc.GetResult(context.Background(), "never-created")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPanicFailsJob(t *testing.T) {
	svc, _ := newTestService(t, store.NewMemory(), panicAnalyzer{})
	ctx := context.Background()

	job, err := svc.Create(ctx, "valid-ref-1", models.Options{})
	require.NoError(t, err)
	svc.Wait()

	res, err := svc.GetResult(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, res.Status)
	require.NotNil(t, res.Error)
	assert.Contains(t, *res.Error, "model weights missing")
	assert.Equal(t, 50, res.Progress, "progress is kept on failure")
}

// unreadableStore accepts writes but fails every read.
type unreadableStore struct {
	*store.Memory
}

func (unreadableStore) Get(context.Context, string) (*models.Job, error) {
	return nil, errors.New("store unreachable")
}

func TestStoreReadFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	svc, _ := newTestService(t, unreadableStore{store.NewMemory()}, fakeSource{})
	_, err := svc.Create(context.Background(), "valid-ref-1", models.Options{})
	require.NoError(t, err)
	svc.Wait()

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "pipeline stopped on a store error")
	assert.Contains(t, out, "store unreachable")
}

func TestArtifactPath(t *testing.T) {
	svc, layout := newTestService(t, store.NewMemory(), fakeSource{})

	dir := layout.JobOutputDir("abcdef0123")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, media.MusicXMLFile), []byte("<score-partwise/>"), 0o644))

	a, err := svc.ArtifactPath("abcdef0123", media.FormatMusicXML)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, media.MusicXMLFile), a.Path)
	assert.Equal(t, "transcription_abcdef01.musicxml", a.Filename)
	assert.Equal(t, "application/vnd.recordare.musicxml+xml", a.ContentType)

	_, err = svc.ArtifactPath("abcdef0123", media.FormatPDF)
	assert.ErrorIs(t, err, ErrArtifactNotFound)

	_, err = svc.ArtifactPath("abcdef0123", "wav")
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = svc.ArtifactPath("../abcdef0123", media.FormatMusicXML)
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestStats(t *testing.T) {
	svc, _ := newTestService(t, store.NewMemory(), fakeSource{})
	ctx := context.Background()

	_, err := svc.Create(ctx, "valid-ref-1", models.Options{})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "unreachable", models.Options{})
	require.NoError(t, err)
	svc.Wait()

	stats := svc.Stats(ctx)
	assert.Equal(t, map[models.JobStatus]int{models.StatusCompleted: 1, models.StatusFailed: 1}, stats.Jobs)
	assert.EqualValues(t, 1, stats.Outcomes["completed"])
	assert.EqualValues(t, 1, stats.Outcomes["failed"])
	assert.NotEmpty(t, stats.Stages)
}

func TestWatch(t *testing.T) {
	st := &gatedStore{Memory: store.NewMemory(), release: make(chan struct{})}
	svc, _ := newTestService(t, st, fakeSource{})
	ctx := context.Background()

	job, err := svc.Create(ctx, "valid-ref-1", models.Options{})
	require.NoError(t, err)

	updates, err := svc.Watch(ctx, job.ID, 5*time.Millisecond)
	require.NoError(t, err)
	close(st.release)

	var seen []StatusView
	for v := range updates {
		seen = append(seen, v)
	}
	svc.Wait()

	require.NotEmpty(t, seen)
	assert.Equal(t, models.StatusPending, seen[0].Status)
	last := seen[len(seen)-1]
	assert.Equal(t, models.StatusCompleted, last.Status)
	assert.NotNil(t, last.Result)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i].Progress, seen[i-1].Progress)
	}
}

func TestWatchUnknownJob(t *testing.T) {
	svc, _ := newTestService(t, store.NewMemory(), fakeSource{})
	_, err := svc.Watch(context.Background(), "never-created", time.Millisecond)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWatchTerminalJobClosesImmediately(t *testing.T) {
	svc, _ := newTestService(t, store.NewMemory(), fakeSource{})
	ctx := context.Background()

	job, err := svc.Create(ctx, "unreachable", models.Options{})
	require.NoError(t, err)
	svc.Wait()

	updates, err := svc.Watch(ctx, job.ID, time.Hour)
	require.NoError(t, err)
	v, ok := <-updates
	require.True(t, ok)
	assert.Equal(t, models.StatusFailed, v.Status)
	_, ok = <-updates
	assert.False(t, ok)
}
