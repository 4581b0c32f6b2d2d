package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultDailyFree is the number of free generations a user gets per UTC day.
const DefaultDailyFree = 2

var ErrEmptyUserID = errors.New("user id is required")

// Service tracks free generations per user per UTC calendar day.
type Service struct {
	repo      Repository
	locker    Locker
	limit     int
	now       func() time.Time
	opTimeout time.Duration
}

// NewService creates a quota Service. A non-positive dailyFree falls back to DefaultDailyFree.
func NewService(repo Repository, locker Locker, dailyFree int) *Service {
	if dailyFree <= 0 {
		dailyFree = DefaultDailyFree
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Service{
		repo:   repo,
		locker: locker,
		limit:     dailyFree,
		now:       time.Now,
		opTimeout: lockTTL / 2,
	}
}

// WithClock replaces the time source. Used by tests to cross midnight.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Limit() int { return s.limit }

// CheckAndConsume decides whether userID may take one free generation today
// and, if so, records it before returning.
func (s *Service) CheckAndConsume(ctx context.Context, userID string) (Result, error) {
	if userID == "" {
		return Result{}, ErrEmptyUserID
	}

	unlock, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("locking quota for %s: %w", userID, err)
	}
	defer unlock()

	// Get and Save must finish inside the lock lease.
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	now := s.now().UTC()
	today := now.Format(DateLayout)
	res := Result{Limit: s.limit, ResetsAt: nextReset(now)}

	rec, err := s.repo.Get(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		rec = &Record{UserID: userID, LastMintDate: today, FreeMintsToday: 1}
	case err != nil:
		return Result{}, fmt.Errorf("reading quota for %s: %w", userID, err)
	case rec.LastMintDate != today:
		rec.LastMintDate = today
		rec.FreeMintsToday = 1
	case rec.FreeMintsToday < s.limit:
		rec.FreeMintsToday++
	default:
		slog.Info("quota: daily free limit reached", "user_id", userID, "used", rec.FreeMintsToday)
		return res, nil
	}

	if err := s.repo.Save(ctx, rec); err != nil {
		return Result{}, fmt.Errorf("saving quota for %s: %w", userID, err)
	}

	res.Allowed = true
	res.Remaining = s.limit - rec.FreeMintsToday
	return res, nil
}

// Peek reports how many free generations userID has left today without recording anything.
func (s *Service) Peek(ctx context.Context, userID string) (Result, error) {
	if userID == "" {
		return Result{}, ErrEmptyUserID
	}

	now := s.now().UTC()
	res := Result{Limit: s.limit, Remaining: s.limit, ResetsAt: nextReset(now)}

	rec, err := s.repo.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		res.Allowed = true
		return res, nil
	}
	if err != nil {
		return Result{}, err
	}

	if rec.LastMintDate == now.Format(DateLayout) {
		res.Remaining = max(s.limit-rec.FreeMintsToday, 0)
	}
	res.Allowed = res.Remaining > 0
	return res, nil
}

// Ping reports whether the backing store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func nextReset(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}
