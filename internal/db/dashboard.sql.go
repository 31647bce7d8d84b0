package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const countUniqueSessionEmails = `-- name: CountUniqueSessionEmails :one
SELECT COUNT(DISTINCT email)::bigint AS unique_emails
FROM session
WHERE $1::timestamptz IS NULL OR created_at >= $1::timestamptz
`

func (q *Queries) CountUniqueSessionEmails(ctx context.Context, since pgtype.Timestamptz) (int64, error) {
	row := q.db.QueryRow(ctx, countUniqueSessionEmails, since)
	var uniqueEmails int64
	err := row.Scan(&uniqueEmails)
	return uniqueEmails, err
}

const countSessions = `-- name: CountSessions :one
SELECT COUNT(*)::bigint AS total
FROM session
WHERE $1::timestamptz IS NULL OR created_at >= $1::timestamptz
`

func (q *Queries) CountSessions(ctx context.Context, since pgtype.Timestamptz) (int64, error) {
	row := q.db.QueryRow(ctx, countSessions, since)
	var total int64
	err := row.Scan(&total)
	return total, err
}

const countConflictSessions = `-- name: CountConflictSessions :one
SELECT COUNT(DISTINCT f.session_id)::bigint AS conflicts
FROM feedback f
JOIN session s ON s.session_id = f.session_id
WHERE f.rating = false
  AND ($1::timestamptz IS NULL OR s.created_at >= $1::timestamptz)
`

func (q *Queries) CountConflictSessions(ctx context.Context, since pgtype.Timestamptz) (int64, error) {
	row := q.db.QueryRow(ctx, countConflictSessions, since)
	var conflicts int64
	err := row.Scan(&conflicts)
	return conflicts, err
}

const latestActivityTemplate = `-- name: LatestActivity :one
SELECT MAX(created_at)::timestamptz AS last_activity
FROM %s
WHERE created_at >= $1
`

// LatestActivity returns the newest created_at at or after since in the named
// table. The result is invalid when the table has no such rows.
func (q *Queries) LatestActivity(ctx context.Context, table string, since pgtype.Timestamptz) (pgtype.Timestamptz, error) {
	query := fmt.Sprintf(latestActivityTemplate, pgx.Identifier{table}.Sanitize())
	row := q.db.QueryRow(ctx, query, since)
	var lastActivity pgtype.Timestamptz
	err := row.Scan(&lastActivity)
	return lastActivity, err
}
