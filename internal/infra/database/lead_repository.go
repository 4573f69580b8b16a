package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/xavierca1/leadflow/internal/entity"
)

const leadColumns = `id, external_id, phone_number, name, status, first_message_due_at,
	first_message_sent, followup_due_at, is_done, attempts, claimed_until, created_at, updated_at`

type LeadRepository struct {
	Pool Pool
}

func NewLeadRepository(pool Pool) *LeadRepository {
	return &LeadRepository{Pool: pool}
}

func (r *LeadRepository) Create(ctx context.Context, l *entity.Lead) error {
	query := `
		INSERT INTO leads (` + leadColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.Pool.Exec(ctx, query,
		l.ID,
		l.ExternalID,
		l.Phone,
		l.Name,
		l.Status,
		l.FirstMessageDueAt,
		l.FirstMessageSent,
		l.FollowupDueAt,
		l.IsDone,
		l.Attempts,
		l.ClaimedUntil,
		l.CreatedAt,
		l.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return entity.ErrLeadAlreadyExists
		}
		return eris.Wrap(err, "postgres: insert lead")
	}
	return nil
}

func (r *LeadRepository) FindByExternalID(ctx context.Context, externalID string) (*entity.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE external_id = $1`

	lead, err := scanLead(r.Pool.QueryRow(ctx, query, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrLeadNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find lead %s", externalID)
	}
	return lead, nil
}

func (r *LeadRepository) ListDue(ctx context.Context, kind entity.DueKind, now time.Time, limit int) ([]*entity.Lead, error) {
	var query string
	switch kind {
	case entity.DueInitialMessage:
		query = `SELECT ` + leadColumns + ` FROM leads
			WHERE is_done = FALSE AND first_message_sent = FALSE
			  AND first_message_due_at IS NOT NULL AND first_message_due_at <= $1
			  AND (claimed_until IS NULL OR claimed_until <= $1)
			ORDER BY first_message_due_at ASC
			LIMIT $2`
	case entity.DueFollowup:
		query = `SELECT ` + leadColumns + ` FROM leads
			WHERE is_done = FALSE AND first_message_sent = TRUE
			  AND followup_due_at IS NOT NULL AND followup_due_at <= $1
			  AND (claimed_until IS NULL OR claimed_until <= $1)
			ORDER BY followup_due_at ASC
			LIMIT $2`
	default:
		return nil, eris.Errorf("postgres: unknown due kind %q", kind)
	}

	rows, err := r.Pool.Query(ctx, query, now.UTC(), limit)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list due %s", kind)
	}
	defer rows.Close()

	var leads []*entity.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan due lead")
		}
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate due leads")
	}
	return leads, nil
}

func (r *LeadRepository) MarkInitialSent(ctx context.Context, id, status string, at time.Time) (bool, error) {
	query := `
		UPDATE leads
		SET first_message_sent = TRUE, status = $2, attempts = 0, claimed_until = NULL, updated_at = $3
		WHERE id = $1 AND first_message_sent = FALSE AND is_done = FALSE
	`
	tag, err := r.Pool.Exec(ctx, query, id, status, at.UTC())
	if err != nil {
		return false, eris.Wrapf(err, "postgres: mark initial sent %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkDone retires the lead. An empty status keeps the current label.
func (r *LeadRepository) MarkDone(ctx context.Context, id, status string, at time.Time) (bool, error) {
	query := `
		UPDATE leads
		SET is_done = TRUE, status = COALESCE(NULLIF($2, ''), status), claimed_until = NULL, updated_at = $3
		WHERE id = $1 AND is_done = FALSE
	`
	tag, err := r.Pool.Exec(ctx, query, id, status, at.UTC())
	if err != nil {
		return false, eris.Wrapf(err, "postgres: mark done %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkRepliedByPhones retires the newest open lead whose phone equals one of phones.
// Returns nil without error when nothing matched.
func (r *LeadRepository) MarkRepliedByPhones(ctx context.Context, phones []string, status string, at time.Time) (*entity.Lead, error) {
	if len(phones) == 0 {
		return nil, nil
	}

	query := `
		UPDATE leads
		SET is_done = TRUE, status = $2, claimed_until = NULL, updated_at = $3
		WHERE id = (
			SELECT id FROM leads
			WHERE phone_number = ANY($1) AND is_done = FALSE
			ORDER BY created_at DESC
			LIMIT 1
		) AND is_done = FALSE
		RETURNING ` + leadColumns

	lead, err := scanLead(r.Pool.QueryRow(ctx, query, phones, status, at.UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: mark replied")
	}
	return lead, nil
}

func (r *LeadRepository) Claim(ctx context.Context, id string, kind entity.DueKind, now, until time.Time) (bool, error) {
	sent, err := sentFlagFor(kind)
	if err != nil {
		return false, eris.Wrap(err, "postgres: claim")
	}

	query := `
		UPDATE leads
		SET claimed_until = $3
		WHERE id = $1 AND is_done = FALSE AND first_message_sent = $4
		  AND (claimed_until IS NULL OR claimed_until <= $2)
	`
	tag, err := r.Pool.Exec(ctx, query, id, now.UTC(), until.UTC(), sent)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: claim %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *LeadRepository) Reschedule(ctx context.Context, id string, kind entity.DueKind, next, at time.Time) (bool, error) {
	column, sent, err := dueColumnFor(kind)
	if err != nil {
		return false, eris.Wrap(err, "postgres: reschedule")
	}

	query := `
		UPDATE leads
		SET ` + column + ` = $2, attempts = attempts + 1, claimed_until = NULL, updated_at = $3
		WHERE id = $1 AND is_done = FALSE AND first_message_sent = $4
	`
	tag, err := r.Pool.Exec(ctx, query, id, next.UTC(), at.UTC(), sent)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: reschedule %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *LeadRepository) Ping(ctx context.Context) error {
	return r.Pool.Ping(ctx)
}

func scanLead(row pgx.Row) (*entity.Lead, error) {
	var l entity.Lead
	err := row.Scan(
		&l.ID,
		&l.ExternalID,
		&l.Phone,
		&l.Name,
		&l.Status,
		&l.FirstMessageDueAt,
		&l.FirstMessageSent,
		&l.FollowupDueAt,
		&l.IsDone,
		&l.Attempts,
		&l.ClaimedUntil,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// dueColumnFor maps a due kind to its timestamp column and the first_message_sent
// value a lead of that kind must have.
func dueColumnFor(kind entity.DueKind) (string, bool, error) {
	switch kind {
	case entity.DueInitialMessage:
		return "first_message_due_at", false, nil
	case entity.DueFollowup:
		return "followup_due_at", true, nil
	}
	return "", false, eris.Errorf("unknown due kind %q", kind)
}

func sentFlagFor(kind entity.DueKind) (bool, error) {
	_, sent, err := dueColumnFor(kind)
	return sent, err
}
