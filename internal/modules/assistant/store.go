package assistant

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store handles assistant_usage persistence.
type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// UseToken atomically checks the monthly quota and deducts one token.
// It resets the counter to DefaultTokens when last_reset_month is behind month.
// Returns ErrQuotaExhausted when no row is updated (quota exhausted or user absent).
func (s *Store) UseToken(ctx context.Context, uid string, month string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE assistant_usage SET
			tokens_remaining = CASE WHEN last_reset_month != $1 THEN $2 - 1 ELSE tokens_remaining - 1 END,
			last_reset_month = $1
		WHERE uid = $3 AND (last_reset_month < $1 OR tokens_remaining > 0)
	`, month, DefaultTokens, uid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrQuotaExhausted
	}
	return nil
}

// EnsureUser inserts a row for uid with the default allowance; an existing row is left alone.
func (s *Store) EnsureUser(ctx context.Context, uid string, month string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO assistant_usage (uid, tokens_remaining, last_reset_month)
		VALUES ($1, $2, $3)
		ON CONFLICT (uid) DO NOTHING
	`, uid, DefaultTokens, month)
	return err
}

func monthOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}
