package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/xavierca1/leadflow/internal/entity"
)

// SQLiteLeadRepository stores timestamps as unix milliseconds so due
// comparisons are integer comparisons.
type SQLiteLeadRepository struct {
	db *sql.DB
}

func NewSQLiteLeadRepository(db *sql.DB) *SQLiteLeadRepository {
	return &SQLiteLeadRepository{db: db}
}

func (r *SQLiteLeadRepository) Create(ctx context.Context, l *entity.Lead) error {
	query := `
		INSERT INTO leads (` + leadColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		l.ID,
		l.ExternalID,
		l.Phone,
		l.Name,
		l.Status,
		nullableMillis(l.FirstMessageDueAt),
		l.FirstMessageSent,
		nullableMillis(l.FollowupDueAt),
		l.IsDone,
		l.Attempts,
		nullableMillis(l.ClaimedUntil),
		l.CreatedAt.UnixMilli(),
		l.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) && isUniqueViolation(sqliteErr) {
			return entity.ErrLeadAlreadyExists
		}
		return eris.Wrap(err, "sqlite: insert lead")
	}
	return nil
}

func (r *SQLiteLeadRepository) FindByExternalID(ctx context.Context, externalID string) (*entity.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE external_id = ?`

	lead, err := scanSQLiteLead(r.db.QueryRowContext(ctx, query, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrLeadNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find lead %s", externalID)
	}
	return lead, nil
}

func (r *SQLiteLeadRepository) ListDue(ctx context.Context, kind entity.DueKind, now time.Time, limit int) ([]*entity.Lead, error) {
	var query string
	switch kind {
	case entity.DueInitialMessage:
		query = `SELECT ` + leadColumns + ` FROM leads
			WHERE is_done = 0 AND first_message_sent = 0
			  AND first_message_due_at IS NOT NULL AND first_message_due_at <= ?
			  AND (claimed_until IS NULL OR claimed_until <= ?)
			ORDER BY first_message_due_at ASC
			LIMIT ?`
	case entity.DueFollowup:
		query = `SELECT ` + leadColumns + ` FROM leads
			WHERE is_done = 0 AND first_message_sent = 1
			  AND followup_due_at IS NOT NULL AND followup_due_at <= ?
			  AND (claimed_until IS NULL OR claimed_until <= ?)
			ORDER BY followup_due_at ASC
			LIMIT ?`
	default:
		return nil, eris.Errorf("sqlite: unknown due kind %q", kind)
	}

	rows, err := r.db.QueryContext(ctx, query, now.UnixMilli(), now.UnixMilli(), limit)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list due %s", kind)
	}
	defer rows.Close()

	var leads []*entity.Lead
	for rows.Next() {
		lead, err := scanSQLiteLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan due lead")
		}
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate due leads")
	}
	return leads, nil
}

func (r *SQLiteLeadRepository) MarkInitialSent(ctx context.Context, id, status string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE leads
		SET first_message_sent = 1, status = ?, attempts = 0, claimed_until = NULL, updated_at = ?
		WHERE id = ? AND first_message_sent = 0 AND is_done = 0
	`, status, at.UnixMilli(), id)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: mark initial sent %s", id)
	}
	return affectedOne(res)
}

func (r *SQLiteLeadRepository) MarkDone(ctx context.Context, id, status string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE leads
		SET is_done = 1, status = COALESCE(NULLIF(?, ''), status), claimed_until = NULL, updated_at = ?
		WHERE id = ? AND is_done = 0
	`, status, at.UnixMilli(), id)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: mark done %s", id)
	}
	return affectedOne(res)
}

func (r *SQLiteLeadRepository) MarkRepliedByPhones(ctx context.Context, phones []string, status string, at time.Time) (*entity.Lead, error) {
	if len(phones) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(phones)), ", ")
	query := `
		UPDATE leads
		SET is_done = 1, status = ?, claimed_until = NULL, updated_at = ?
		WHERE id = (
			SELECT id FROM leads
			WHERE phone_number IN (` + placeholders + `) AND is_done = 0
			ORDER BY created_at DESC
			LIMIT 1
		) AND is_done = 0
		RETURNING ` + leadColumns

	args := make([]any, 0, len(phones)+2)
	args = append(args, status, at.UnixMilli())
	for _, p := range phones {
		args = append(args, p)
	}

	lead, err := scanSQLiteLead(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: mark replied")
	}
	return lead, nil
}

func (r *SQLiteLeadRepository) Claim(ctx context.Context, id string, kind entity.DueKind, now, until time.Time) (bool, error) {
	sent, err := sentFlagFor(kind)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: claim")
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE leads
		SET claimed_until = ?
		WHERE id = ? AND is_done = 0 AND first_message_sent = ?
		  AND (claimed_until IS NULL OR claimed_until <= ?)
	`, until.UnixMilli(), id, sent, now.UnixMilli())
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: claim %s", id)
	}
	return affectedOne(res)
}

func (r *SQLiteLeadRepository) Reschedule(ctx context.Context, id string, kind entity.DueKind, next, at time.Time) (bool, error) {
	column, sent, err := dueColumnFor(kind)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: reschedule")
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE leads
		SET `+column+` = ?, attempts = attempts + 1, claimed_until = NULL, updated_at = ?
		WHERE id = ? AND is_done = 0 AND first_message_sent = ?
	`, next.UnixMilli(), at.UnixMilli(), id, sent)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: reschedule %s", id)
	}
	return affectedOne(res)
}

func (r *SQLiteLeadRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteLead(row rowScanner) (*entity.Lead, error) {
	var (
		l                     entity.Lead
		firstDue, followupDue sql.NullInt64
		claimedUntil          sql.NullInt64
		createdAt, updatedAt  int64
	)
	err := row.Scan(
		&l.ID,
		&l.ExternalID,
		&l.Phone,
		&l.Name,
		&l.Status,
		&firstDue,
		&l.FirstMessageSent,
		&followupDue,
		&l.IsDone,
		&l.Attempts,
		&claimedUntil,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.FirstMessageDueAt = fromNullableMillis(firstDue)
	l.FollowupDueAt = fromNullableMillis(followupDue)
	l.ClaimedUntil = fromNullableMillis(claimedUntil)
	l.CreatedAt = time.UnixMilli(createdAt).UTC()
	l.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &l, nil
}

func nullableMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullableMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func isUniqueViolation(err *sqlite.Error) bool {
	switch err.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(err.Error(), "UNIQUE")
	}
	return false
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}
