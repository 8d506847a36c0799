package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/sheetcast/internal/db"
	"github.com/raphaelgruber/sheetcast/internal/models"
)

// Surreal is a Store backed by the SurrealDB job table.
type Surreal struct {
	client *db.Client
	logger *slog.Logger
}

// NewSurreal wraps a connected db.Client.
func NewSurreal(client *db.Client, logger *slog.Logger) *Surreal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Surreal{client: client, logger: logger}
}

// Put upserts the serialized job and resets its expiry.
func (s *Surreal) Put(ctx context.Context, job *models.Job, ttl time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	return s.client.QueryPutJob(ctx, job.ID, string(job.Status), string(payload), ttl)
}

// Get loads a live job, or returns ErrNotFound.
func (s *Surreal) Get(ctx context.Context, jobID string) (*models.Job, error) {
	row, err := s.client.QueryGetJob(ctx, jobID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var job models.Job
	if err := json.Unmarshal([]byte(row.Payload), &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return &job, nil
}

// Delete removes a job record.
func (s *Surreal) Delete(ctx context.Context, jobID string) error {
	_, err := s.client.QueryDeleteJob(ctx, jobID)
	return err
}

// CountByStatus counts live jobs per status.
func (s *Surreal) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := s.client.QueryCountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[models.JobStatus]int, len(rows))
	for _, r := range rows {
		counts[models.JobStatus(r.Status)] = r.Count
	}
	return counts, nil
}

// StartJanitor deletes expired records every interval until ctx is done.
// Reads already filter on expiry; the sweep only reclaims storage.
func (s *Surreal) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ids, err := s.client.QueryPurgeExpired(ctx)
				if err != nil {
					s.logger.Warn("job purge failed", "error", err)
					continue
				}
				if len(ids) > 0 {
					s.logger.Info("purged expired jobs", "count", len(ids))
				}
			}
		}
	}()
}
