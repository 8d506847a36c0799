// Package service exposes job submission and the read-side projections of
// job records.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/sheetcast/internal/artifacts"
	"github.com/raphaelgruber/sheetcast/internal/media"
	"github.com/raphaelgruber/sheetcast/internal/metrics"
	"github.com/raphaelgruber/sheetcast/internal/models"
	"github.com/raphaelgruber/sheetcast/internal/pipeline"
	"github.com/raphaelgruber/sheetcast/internal/store"
)

var (
	// ErrInvalidSource is returned by Create for an empty source reference.
	ErrInvalidSource = errors.New("invalid source reference")
	// ErrArtifactNotFound is returned when an artifact file does not exist.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrUnknownFormat is returned for an unsupported artifact format.
	ErrUnknownFormat = errors.New("unknown artifact format")
)

// StatusView is the lightweight progress projection of a job. Result is set
// only once the job is COMPLETED.
type StatusView struct {
	JobID    string           `json:"job_id"`
	Status   models.JobStatus `json:"status"`
	Progress int              `json:"progress"`
	Error    string           `json:"error,omitempty"`
	Result   *models.Job      `json:"result,omitempty"`
}

// Artifact locates a downloadable file.
type Artifact struct {
	Path        string
	ContentType string
	Filename    string
}

// Stats combines stage timings with live job counts.
type Stats struct {
	metrics.Snapshot
	Jobs map[models.JobStatus]int `json:"jobs,omitempty"`
}

// JobService creates jobs and projects their records. Each created job runs
// in its own goroutine; there is no concurrency limit.
type JobService struct {
	store  store.Store
	orch   *pipeline.Orchestrator
	layout media.Layout
	ttl    time.Duration
	now    func() time.Time
	wg     sync.WaitGroup
}

// NewJobService creates a JobService. ttl <= 0 selects store.DefaultTTL.
func NewJobService(st store.Store, orch *pipeline.Orchestrator, layout media.Layout, ttl time.Duration) *JobService {
	if ttl <= 0 {
		ttl = store.DefaultTTL
	}
	return &JobService{store: st, orch: orch, layout: layout, ttl: ttl, now: time.Now}
}

// Create persists a PENDING job and starts its pipeline in the background.
func (s *JobService) Create(ctx context.Context, source string, opts models.Options) (*models.Job, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, ErrInvalidSource
	}

	job := models.NewJob(uuid.New().String(), source, opts, s.now())
	if err := s.store.Put(ctx, job, s.ttl); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}
	slog.Info("job created", "job_id", job.ID, "source", source, "isolate_target", opts.IsolateTarget)

	s.wg.Add(1)
	go s.run(job.ID, source, opts)

	return job, nil
}

// run executes one pipeline. Panics fail the job instead of the process.
func (s *JobService) run(jobID, source string, opts models.Options) {
	defer s.wg.Done()
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("job goroutine panicked", "job_id", jobID, "panic", r)
			if err := s.orch.Abort(ctx, jobID, fmt.Errorf("internal panic: %v", r)); err != nil {
				slog.Error("failed to record panic", "job_id", jobID, "error", err)
			}
		}
	}()

	err := s.orch.Run(ctx, jobID, source, opts)
	switch {
	case err == nil:
	case pipeline.KindOf(err) == pipeline.KindPersistence:
		slog.Error("pipeline stopped on a store error", "job_id", jobID, "error", err)
	default:
		slog.Debug("pipeline finished with error", "job_id", jobID, "error", err)
	}
}

// Wait blocks until every started pipeline has returned.
func (s *JobService) Wait() {
	s.wg.Wait()
}

// GetStatus returns the progress projection, or store.ErrNotFound.
func (s *JobService) GetStatus(ctx context.Context, jobID string) (StatusView, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return StatusView{}, err
	}
	return statusView(job), nil
}

func statusView(job *models.Job) StatusView {
	v := StatusView{JobID: job.ID, Status: job.Status, Progress: job.Progress}
	if job.Error != nil {
		v.Error = *job.Error
	}
	if job.Status == models.StatusCompleted {
		v.Result = job
	}
	return v
}

// GetResult returns the full job record, or store.ErrNotFound.
func (s *JobService) GetResult(ctx context.Context, jobID string) (*models.Job, error) {
	return s.store.Get(ctx, jobID)
}

// GetVisualization projects the job's primary artifact. It reads only the
// filesystem, so it works for any job whose MIDI file exists.
func (s *JobService) GetVisualization(_ context.Context, jobID string) (models.PianoRoll, error) {
	a, err := s.ArtifactPath(jobID, media.FormatMIDI)
	if err != nil {
		return models.PianoRoll{}, err
	}
	return media.PianoRollFromFile(a.Path), nil
}

// ArtifactPath resolves a download handle to a file on disk.
func (s *JobService) ArtifactPath(jobID, format string) (Artifact, error) {
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return Artifact{}, ErrArtifactNotFound
	}
	path := s.layout.ArtifactPath(jobID, format)
	if path == "" {
		return Artifact{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return Artifact{}, ErrArtifactNotFound
	}

	ext := filepath.Ext(path)
	return Artifact{
		Path:        path,
		ContentType: artifacts.ContentType(path),
		Filename:    fmt.Sprintf("transcription_%s%s", shortID(jobID), ext),
	}, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Stats returns stage timings and, when the store supports it, live job
// counts per status.
func (s *JobService) Stats(ctx context.Context) Stats {
	st := Stats{Snapshot: s.orch.Metrics().Snapshot()}
	if counter, ok := s.store.(store.StatusCounter); ok {
		counts, err := counter.CountByStatus(ctx)
		if err != nil {
			slog.Warn("failed to count jobs", "error", err)
		} else {
			st.Jobs = counts
		}
	}
	return st
}

// Watch polls the job every interval and emits a view each time its status
// or progress changes. The channel is closed after a terminal state, when
// the record disappears, or when ctx is done.
func (s *JobService) Watch(ctx context.Context, jobID string, interval time.Duration) (<-chan StatusView, error) {
	first, err := s.GetStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}

	ch := make(chan StatusView, 1)
	ch <- first
	if first.Status.IsTerminal() {
		close(ch)
		return ch, nil
	}

	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last := first
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			v, err := s.GetStatus(ctx, jobID)
			if err != nil {
				if !errors.Is(err, store.ErrNotFound) {
					slog.Warn("status poll failed", "job_id", jobID, "error", err)
				}
				return
			}
			if v.Status == last.Status && v.Progress == last.Progress {
				continue
			}
			select {
			case ch <- v:
			case <-ctx.Done():
				return
			}
			last = v
			if v.Status.IsTerminal() {
				return
			}
		}
	}()
	return ch, nil
}
