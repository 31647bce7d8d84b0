package db

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"
)

type captureDB struct {
	sql  string
	args []interface{}
}

func (c *captureDB) Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (c *captureDB) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, nil
}

func (c *captureDB) QueryRow(_ context.Context, sql string, args ...interface{}) pgx.Row {
	c.sql = sql
	c.args = args
	return fixedRow{}
}

type fixedRow struct{}

func (fixedRow) Scan(dest ...any) error {
	switch d := dest[0].(type) {
	case *int64:
		*d = 7
	case *pgtype.Timestamptz:
		*d = pgtype.Timestamptz{Time: time.Unix(1_700_000_000, 0), Valid: true}
	}
	return nil
}

func TestLatestActivityQuotesTable(t *testing.T) {
	capture := &captureDB{}
	q := New(capture)

	since := pgtype.Timestamptz{Time: time.Now(), Valid: true}
	ts, err := q.LatestActivity(context.Background(), `documents"; drop table session; --`, since)
	require.NoError(t, err)
	require.True(t, ts.Valid)
	require.Contains(t, capture.sql, `FROM "documents""; drop table session; --"`)
	require.Len(t, capture.args, 1)
}

func TestCountQueriesPassSince(t *testing.T) {
	capture := &captureDB{}
	q := New(capture)

	total, err := q.CountSessions(context.Background(), pgtype.Timestamptz{})
	require.NoError(t, err)
	require.Equal(t, int64(7), total)
	require.True(t, strings.Contains(capture.sql, "FROM session"))
	require.Equal(t, pgtype.Timestamptz{}, capture.args[0])

	_, err = q.CountConflictSessions(context.Background(), pgtype.Timestamptz{})
	require.NoError(t, err)
	require.Contains(t, capture.sql, "f.rating = false")
}
