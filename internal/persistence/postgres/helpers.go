package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/finpulse/finpulse/internal/errs"
)

// marshalDoc serializes the full entity for the JSONB document column.
func marshalDoc(v any) ([]byte, error) {
	doc, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return doc, nil
}

func unmarshalDoc(doc []byte, v any) error {
	if err := json.Unmarshal(doc, v); err != nil {
		return fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return nil
}

// isUniqueViolation reports PostgreSQL duplicate-key errors.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// mapGetErr converts sql.ErrNoRows into a typed not-found error.
func mapGetErr(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errs.NotFound(entity)
	}
	return fmt.Errorf("failed to get %s: %w", entity, err)
}
