package postgres

import (
	"context"
	"fmt"
	"time"
)

type usersRepo struct {
	q       queryer
	timeout time.Duration
}

// ListIDs enumerates every user with stored data. Transactions are the
// broadest source; preferences cover users created before any ingest.
func (r *usersRepo) ListIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT user_id FROM transactions
		UNION
		SELECT user_id FROM user_preferences
		ORDER BY user_id`

	rows, err := r.q.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
