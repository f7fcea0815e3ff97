package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SaintWyss/ragcore/internal/apperrors"
)

// UserRepository implements workspace.UserLookup against Postgres.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(store *Store) *UserRepository {
	return &UserRepository{pool: store.Pool}
}

// ActiveUserIDs reports which of userIDs name an existing, active
// account (spec §4.2, "Share").
func (r *UserRepository) ActiveUserIDs(ctx context.Context, userIDs []string) (map[string]bool, error) {
	if len(userIDs) == 0 {
		return map[string]bool{}, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT id FROM users WHERE id = ANY($1::uuid[]) AND active = true`, userIDs)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to look up users")
	}
	defer rows.Close()

	active := make(map[string]bool, len(userIDs))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to scan user row")
		}
		active[id] = true
	}
	return active, rows.Err()
}
