package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/raphaelgruber/sheetcast/internal/models"
)

type entry struct {
	payload   []byte
	status    models.JobStatus
	expiresAt time.Time
}

// Memory is an in-process Store. Records are kept serialized so callers never
// share a record with the store or with each other.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Put stores a serialized copy of job.
func (m *Memory) Put(_ context.Context, job *models.Job, ttl time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}

	m.mu.Lock()
	m.entries[Key(job.ID)] = entry{
		payload:   payload,
		status:    job.Status,
		expiresAt: m.now().Add(ttl),
	}
	m.mu.Unlock()
	return nil
}

// Get returns a fresh copy of the stored job, or ErrNotFound.
func (m *Memory) Get(_ context.Context, jobID string) (*models.Job, error) {
	key := Key(jobID)

	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		// Re-check: a concurrent Put may have refreshed it.
		if cur, ok := m.entries[key]; ok && !m.now().Before(cur.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, ErrNotFound
	}

	var job models.Job
	if err := json.Unmarshal(e.payload, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return &job, nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (m *Memory) Delete(_ context.Context, jobID string) error {
	m.mu.Lock()
	delete(m.entries, Key(jobID))
	m.mu.Unlock()
	return nil
}

// Purge drops every expired record and returns how many were removed.
func (m *Memory) Purge() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// CountByStatus counts live records per status.
func (m *Memory) CountByStatus(_ context.Context) (map[models.JobStatus]int, error) {
	now := m.now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[models.JobStatus]int)
	for _, e := range m.entries {
		if now.Before(e.expiresAt) {
			counts[e.status]++
		}
	}
	return counts, nil
}

// StartJanitor purges expired records every interval until ctx is done.
func (m *Memory) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Purge()
			}
		}
	}()
}
