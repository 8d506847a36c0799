package db

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/sheetcast/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// JobRow is a stored job record.
type JobRow struct {
	ID        surrealmodels.RecordID `json:"id"`
	Payload   string                 `json:"payload"`
	Status    string                 `json:"status"`
	ExpiresAt time.Time              `json:"expires_at"`
}

// StatusCount is the number of live jobs in one status.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// ttlLiteral renders ttl as a SurrealQL duration in whole seconds.
func ttlLiteral(ttl time.Duration) string {
	secs := int64(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("%ds", secs)
}

// QueryPutJob writes the full job payload and resets its expiry to ttl from now.
func (c *Client) QueryPutJob(ctx context.Context, id, status, payload string, ttl time.Duration) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("job", $id) SET
			payload = $payload,
			status = $status,
			expires_at = time::now() + <duration>$ttl,
			updated_at = time::now()
	`, map[string]any{
		"id":      id,
		"payload": payload,
		"status":  status,
		"ttl":     ttlLiteral(ttl),
	})
	if err != nil {
		return fmt.Errorf("put job: %w", wrapQueryError(err))
	}
	return nil
}

// QueryGetJob returns a live job record.
// Returns ErrNotFound if the record is missing or past its expiry.
func (c *Client) QueryGetJob(ctx context.Context, id string) (*JobRow, error) {
	results, err := surrealdb.Query[[]JobRow](ctx, c.db, `
		SELECT * FROM type::record("job", $id) WHERE expires_at > time::now()
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, ErrNotFound
	}
	return &(*results)[0].Result[0], nil
}

// QueryDeleteJob removes a job record. Returns false if nothing was deleted.
func (c *Client) QueryDeleteJob(ctx context.Context, id string) (bool, error) {
	results, err := surrealdb.Query[[]JobRow](ctx, c.db, `
		DELETE type::record("job", $id) RETURN BEFORE
	`, map[string]any{"id": id})
	if err != nil {
		return false, fmt.Errorf("delete job: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return false, nil
	}
	return len((*results)[0].Result) > 0, nil
}

// QueryPurgeExpired deletes every record past its expiry and returns their ids.
func (c *Client) QueryPurgeExpired(ctx context.Context) ([]string, error) {
	results, err := surrealdb.Query[[]JobRow](ctx, c.db, `
		DELETE job WHERE expires_at <= time::now() RETURN BEFORE
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("purge expired jobs: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len((*results)[0].Result))
	for _, row := range (*results)[0].Result {
		id, err := models.RecordIDString(row.ID)
		if err != nil {
			c.logger.Warn("skipping purged job with non-string id", "error", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// QueryCountByStatus counts live jobs grouped by status.
func (c *Client) QueryCountByStatus(ctx context.Context) ([]StatusCount, error) {
	results, err := surrealdb.Query[[]StatusCount](ctx, c.db, `
		SELECT status, count() AS count FROM job
		WHERE expires_at > time::now()
		GROUP BY status
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []StatusCount{}, nil
	}
	return (*results)[0].Result, nil
}
