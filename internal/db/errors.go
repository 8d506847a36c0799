package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors for job queries. Use errors.Is() to check for them.
var (
	// ErrNotFound indicates the job record does not exist or has expired.
	ErrNotFound = errors.New("job not found")

	// ErrTransactionConflict indicates concurrent writers touched the same record.
	ErrTransactionConflict = errors.New("transaction conflict")
)

// wrapQueryError maps a SurrealDB QueryError onto a sentinel where one applies.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		if strings.Contains(queryErr.Message, "Transaction conflict") {
			return fmt.Errorf("%w: %s", ErrTransactionConflict, queryErr.Message)
		}
	}
	return err
}
