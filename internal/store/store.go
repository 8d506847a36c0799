// Package store persists job records with a time-to-live.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/raphaelgruber/sheetcast/internal/models"
)

// DefaultTTL is how long a job record survives after its last write.
const DefaultTTL = 24 * time.Hour

// ErrNotFound is returned by Get when a record is absent or expired.
var ErrNotFound = errors.New("job not found")

// Store is durable key-value persistence for job records.
// Every Put is a full-record overwrite that resets the expiry to ttl from now.
type Store interface {
	Put(ctx context.Context, job *models.Job, ttl time.Duration) error
	Get(ctx context.Context, jobID string) (*models.Job, error)
	Delete(ctx context.Context, jobID string) error
}

// StatusCounter is implemented by stores that can report live jobs per status.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[models.JobStatus]int, error)
}

// Key is the namespaced key for a job id.
func Key(jobID string) string {
	return "job:" + jobID
}
