package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/gabigallardo/control-panel/internal/db"
)

// Store answers the card-metric queries. A nil since means no lower bound.
type Store interface {
	UniqueUsers(ctx context.Context, since *time.Time) (int64, error)
	SessionCount(ctx context.Context, since *time.Time) (int64, error)
	ConflictSessions(ctx context.Context, since *time.Time) (int64, error)
	LatestActivity(ctx context.Context, table string, since time.Time) (*time.Time, error)
}

// QueryObserver receives per-query latency.
type QueryObserver interface {
	RecordStoreQuery(query string, duration time.Duration, err error)
}

// PGStore runs the card queries against Postgres through the generated queries.
type PGStore struct {
	queries  *db.Queries
	timeout  time.Duration
	observer QueryObserver
}

func NewPGStore(queries *db.Queries, timeout time.Duration, observer QueryObserver) *PGStore {
	return &PGStore{queries: queries, timeout: timeout, observer: observer}
}

func (s *PGStore) UniqueUsers(ctx context.Context, since *time.Time) (int64, error) {
	var n int64
	err := s.run(ctx, "unique_users", func(ctx context.Context) (err error) {
		n, err = s.queries.CountUniqueSessionEmails(ctx, toPgTime(since))
		return err
	})
	return n, err
}

func (s *PGStore) SessionCount(ctx context.Context, since *time.Time) (int64, error) {
	var n int64
	err := s.run(ctx, "session_count", func(ctx context.Context) (err error) {
		n, err = s.queries.CountSessions(ctx, toPgTime(since))
		return err
	})
	return n, err
}

func (s *PGStore) ConflictSessions(ctx context.Context, since *time.Time) (int64, error) {
	var n int64
	err := s.run(ctx, "conflict_sessions", func(ctx context.Context) (err error) {
		n, err = s.queries.CountConflictSessions(ctx, toPgTime(since))
		return err
	})
	return n, err
}

func (s *PGStore) LatestActivity(ctx context.Context, table string, since time.Time) (*time.Time, error) {
	var last pgtype.Timestamptz
	err := s.run(ctx, "latest_activity", func(ctx context.Context) (err error) {
		last, err = s.queries.LatestActivity(ctx, table, pgtype.Timestamptz{Time: since, Valid: true})
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	})
	if err != nil || !last.Valid {
		return nil, err
	}
	ts := last.Time
	return &ts, nil
}

func (s *PGStore) run(ctx context.Context, name string, fn func(context.Context) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	started := time.Now()
	err := fn(ctx)
	if s.observer != nil {
		s.observer.RecordStoreQuery(name, time.Since(started), err)
	}
	return err
}

func toPgTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}
