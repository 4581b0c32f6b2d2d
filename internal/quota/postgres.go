package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository handles quota_records operations when several replicas share one database.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*Record, error) {
	var rec Record
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, to_char(last_mint_date, 'YYYY-MM-DD'), free_mints_today
		 FROM quota_records WHERE user_id = $1`, userID,
	).Scan(&rec.UserID, &rec.LastMintDate, &rec.FreeMintsToday)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching quota record: %w", err)
	}
	return &rec, nil
}

func (r *PostgresRepository) Save(ctx context.Context, rec *Record) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO quota_records (user_id, last_mint_date, free_mints_today, updated_at)
		 VALUES ($1, $2::date, $3, NOW())
		 ON CONFLICT (user_id) DO UPDATE
		 SET last_mint_date = EXCLUDED.last_mint_date,
		     free_mints_today = EXCLUDED.free_mints_today,
		     updated_at = NOW()`,
		rec.UserID, rec.LastMintDate, rec.FreeMintsToday)
	if err != nil {
		return fmt.Errorf("saving quota record: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
