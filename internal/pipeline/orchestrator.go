package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/sheetcast/internal/metrics"
	"github.com/raphaelgruber/sheetcast/internal/models"
	"github.com/raphaelgruber/sheetcast/internal/store"
)

// Orchestrator sequences the stages of a job and is the only writer of job
// records after submission. Run may be called concurrently for different jobs.
type Orchestrator struct {
	store   store.Store
	stages  Stages
	ttl     time.Duration
	metrics *metrics.Collector
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTTL sets the expiry applied on every write.
func WithTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) { o.ttl = ttl }
}

// WithMetrics records stage timings and outcomes into c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock overrides the time source for completed_at.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator writing to st and running stages.
func New(st store.Store, stages Stages, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:   st,
		stages:  stages,
		ttl:     store.DefaultTTL,
		metrics: metrics.NewCollector(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Metrics returns the collector stage timings are recorded into.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// Run drives the job through every stage using the source and options stored
// on the record. It returns nil when the job reached COMPLETED; otherwise the returned error is the one recorded on the
// FAILED job, or a persistence error if the record could not be written.
// No stage is retried.
func (o *Orchestrator) Run(ctx context.Context, jobID, source string, opts models.Options) error {
	logger := o.logger.With("job_id", jobID)

	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		logger.Error("failed to load job, run abandoned", "error", err)
		return &StageError{Stage: "load", Kind: KindPersistence, Err: err}
	}
	if job.Status.IsTerminal() {
		return models.ErrTerminal
	}
	// source_reference and options are fixed at creation; the record wins.
	if job.Source != source || job.Options != opts {
		logger.Warn("run arguments differ from the stored job, using stored values",
			"source", source, "stored_source", job.Source)
	}

	r := &run{
		o:      o,
		job:    job,
		logger: logger,
	}
	return r.execute(ctx)
}

// Abort records a FAILED state for a job whose run could not finish, for
// example after a panic. Terminal jobs are left untouched.
func (o *Orchestrator) Abort(ctx context.Context, jobID string, cause error) error {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if err := job.Fail(cause, o.now()); err != nil {
		return err
	}
	if err := o.store.Put(ctx, job, o.ttl); err != nil {
		return fmt.Errorf("persist failed job %s: %w", jobID, err)
	}
	o.metrics.RecordOutcome(metrics.OutcomeFailed)
	return nil
}

// run is the state of a single Run call. job always mirrors the last
// successfully persisted record.
type run struct {
	o       *Orchestrator
	job     *models.Job
	logger  *slog.Logger
	work    Work
	pending models.Attributes
}

func (r *run) execute(ctx context.Context) error {
	r.logger.Info("pipeline started", "source", r.job.Source, "isolate_target", r.job.Options.IsolateTarget)

	for _, desc := range Descriptors {
		if !r.enabled(desc) {
			r.logger.Debug("stage skipped", "stage", desc.Name)
			continue
		}

		if desc.Status != r.job.Status {
			if err := r.enter(ctx, desc); err != nil {
				return r.fail(ctx, err)
			}
		}

		start := time.Now()
		patch, err := r.invoke(ctx, desc)
		r.o.metrics.RecordStage(desc.Name, time.Since(start), err)

		if err != nil {
			if !r.tolerate(desc, err) {
				return r.fail(ctx, &StageError{Stage: desc.Name, Kind: desc.Kind, Err: err})
			}
			continue
		}
		r.pending.Merge(patch)
	}

	return r.complete(ctx)
}

// enabled reports whether desc has an implementation to run.
func (r *run) enabled(desc Descriptor) bool {
	if desc.Name != StageDocument {
		return true
	}
	doc := r.o.stages.Document
	return doc != nil && doc.Available()
}

// enter persists the transition into desc's phase together with attributes
// produced by the previous phase.
func (r *run) enter(ctx context.Context, desc Descriptor) error {
	next := r.job.Clone()
	if err := next.Merge(r.pending); err != nil {
		return err
	}
	if err := next.Advance(desc.Status); err != nil {
		return err
	}
	if err := r.o.store.Put(ctx, next, r.o.ttl); err != nil {
		return &StageError{Stage: desc.Name, Kind: KindPersistence, Err: err}
	}

	r.job = next
	r.pending = models.Attributes{}
	r.logger.Info("job status", "status", next.Status, "progress", next.Progress)
	return nil
}

// invoke runs one stage against the working data.
func (r *run) invoke(ctx context.Context, desc Descriptor) (models.Attributes, error) {
	s := r.o.stages
	var patch models.Attributes

	switch desc.Name {
	case StageFetch:
		res, err := s.Fetch.Fetch(ctx, r.job.ID, r.job.Source)
		if err != nil {
			return patch, err
		}
		r.work.RawPath = res.RawPath
		patch.Title = models.StrPtr(res.Title)
		patch.Duration = models.FloatPtr(res.Duration)

	case StageNormalize:
		audio, err := s.Normalize.Normalize(ctx, r.job.ID, r.work.RawPath, r.job.Options.IsolateTarget)
		if err != nil {
			return patch, err
		}
		r.work.AudioPath = audio

	case StageAnalyze:
		res, err := s.Analyze.Analyze(ctx, r.job.ID, r.work.AudioPath)
		if err != nil {
			return patch, err
		}
		r.work.Events = res.Events
		q := res.Quality
		patch.Quality = &q

	case StageRefine:
		refined, err := s.Refine.Refine(ctx, r.work.Events)
		if err != nil {
			return patch, err
		}
		r.work.Refined = refined

	case StageExport:
		meta := ExportMeta{}
		if r.job.Title != nil {
			meta.Title = *r.job.Title
		}
		if r.job.Duration != nil {
			meta.Duration = *r.job.Duration
		}
		res, err := s.Export.Export(ctx, r.job.ID, r.work.Refined, meta)
		if err != nil {
			return patch, err
		}
		if res.MIDIURL == "" {
			return patch, models.ErrMissingPrimaryOutput
		}
		patch.MIDIURL = models.StrPtr(res.MIDIURL)
		if res.MusicXMLURL != "" {
			patch.MusicXMLURL = models.StrPtr(res.MusicXMLURL)
		}

	case StageDocument:
		handle, err := s.Document.ExportDocument(ctx, r.job.ID)
		if err != nil {
			return patch, err
		}
		patch.PDFURL = models.StrPtr(handle)

	default:
		return patch, fmt.Errorf("unknown stage %q", desc.Name)
	}

	return patch, nil
}

// tolerate applies the non-fatal failure policy. It returns false when the
// failure must fail the job.
func (r *run) tolerate(desc Descriptor, err error) bool {
	switch desc.Kind {
	case KindDegradable:
		r.logger.Warn("stage degraded, using unrefined events", "stage", desc.Name, "error", err)
		r.work.Refined = r.work.Events
		r.o.metrics.RecordOutcome(metrics.OutcomeDegraded)
		return true
	case KindBestEffort:
		r.logger.Warn("best-effort output skipped", "stage", desc.Name, "error", err)
		r.o.metrics.RecordOutcome(metrics.OutcomeSkipped)
		return true
	default:
		return false
	}
}

// complete persists the COMPLETED record with all output handles.
func (r *run) complete(ctx context.Context) error {
	next := r.job.Clone()
	if err := next.Merge(r.pending); err != nil {
		return r.fail(ctx, err)
	}
	if err := next.Complete(r.o.now()); err != nil {
		return r.fail(ctx, &StageError{Stage: StageExport, Kind: KindProcessing, Err: err})
	}
	if err := r.o.store.Put(ctx, next, r.o.ttl); err != nil {
		return r.fail(ctx, &StageError{Stage: "complete", Kind: KindPersistence, Err: err})
	}

	r.job = next
	r.o.metrics.RecordOutcome(metrics.OutcomeCompleted)
	r.logger.Info("job completed", "pdf", next.PDFURL != nil)
	return nil
}

// fail persists FAILED with cause and returns cause. If that write also
// fails both errors are returned.
func (r *run) fail(ctx context.Context, cause error) error {
	next := r.job.Clone()
	if err := next.Fail(cause, r.o.now()); err != nil {
		return errors.Join(cause, err)
	}

	if err := r.o.store.Put(ctx, next, r.o.ttl); err != nil {
		r.logger.Error("failed to persist job failure", "cause", cause, "error", err)
		return errors.Join(cause, &StageError{Stage: "fail", Kind: KindPersistence, Err: err})
	}

	r.job = next
	r.o.metrics.RecordOutcome(metrics.OutcomeFailed)
	r.logger.Error("job failed", "kind", KindOf(cause), "error", cause)
	return cause
}
