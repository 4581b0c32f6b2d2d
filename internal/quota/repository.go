package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("quota record not found")

// Repository persists one Record per user.
type Repository interface {
	Get(ctx context.Context, userID string) (*Record, error)
	Save(ctx context.Context, rec *Record) error
	Ping(ctx context.Context) error
}

// SQLiteRepository handles quota_records operations on the embedded store.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, userID string) (*Record, error) {
	var rec Record
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, last_mint_date, free_mints_today
		 FROM quota_records WHERE user_id = ?`, userID,
	).Scan(&rec.UserID, &rec.LastMintDate, &rec.FreeMintsToday)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching quota record: %w", err)
	}
	return &rec, nil
}

func (r *SQLiteRepository) Save(ctx context.Context, rec *Record) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO quota_records (user_id, last_mint_date, free_mints_today, updated_at)
		 VALUES (?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		 ON CONFLICT (user_id) DO UPDATE
		 SET last_mint_date = excluded.last_mint_date,
		     free_mints_today = excluded.free_mints_today,
		     updated_at = excluded.updated_at`,
		rec.UserID, rec.LastMintDate, rec.FreeMintsToday)
	if err != nil {
		return fmt.Errorf("saving quota record: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
