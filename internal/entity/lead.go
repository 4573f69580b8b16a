package entity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Board status labels. These must match the labels configured on the CRM board, do not translate.
const (
	StatusNewLead         = "לייד חדש"
	StatusMessageSent     = "נשלחה הודעה"
	StatusNoAnswer1       = "אין מענה 1"
	StatusNoAnswer2       = "אין מענה 2"
	StatusCustomerReplied = "לקוח הגיב"
	StatusMeetingSet      = "נקבעה שיחת מכירה"
)

const unknownLeadName = "Unknown"

var (
	ErrLeadNotFound      = errors.New("lead not found")
	ErrLeadAlreadyExists = errors.New("lead already exists")
)

type Lead struct {
	ID                string     `json:"id"`
	ExternalID        string     `json:"external_id"`
	Phone             string     `json:"phone"`
	Name              string     `json:"name"`
	Status            string     `json:"status"`
	FirstMessageDueAt *time.Time `json:"first_message_due_at,omitempty"`
	FirstMessageSent  bool       `json:"first_message_sent"`
	FollowupDueAt     *time.Time `json:"followup_due_at,omitempty"`
	IsDone            bool       `json:"is_done"`
	Attempts          int        `json:"attempts"`
	ClaimedUntil      *time.Time `json:"claimed_until,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// DueKind selects which scheduled transition a due query is looking for.
type DueKind string

const (
	DueInitialMessage DueKind = "initial_message"
	DueFollowup       DueKind = "followup"
)

type LeadRepositoryInterface interface {
	Create(ctx context.Context, lead *Lead) error
	FindByExternalID(ctx context.Context, externalID string) (*Lead, error)
	ListDue(ctx context.Context, kind DueKind, now time.Time, limit int) ([]*Lead, error)

	// The Mark* methods are conditional updates scoped to one row. They report false
	// when the row was already past the transition, so concurrent callers never apply it twice.
	MarkInitialSent(ctx context.Context, id, status string, at time.Time) (bool, error)
	MarkDone(ctx context.Context, id, status string, at time.Time) (bool, error)
	MarkRepliedByPhones(ctx context.Context, phones []string, status string, at time.Time) (*Lead, error)

	// Claim reserves an open lead for one send attempt until the given time. A lead
	// under a live claim is neither listed as due nor claimable again.
	Claim(ctx context.Context, id string, kind DueKind, now, until time.Time) (bool, error)
	// Reschedule moves the kind's due time to next after a failed attempt,
	// bumps the attempt counter and releases the claim.
	Reschedule(ctx context.Context, id string, kind DueKind, next, at time.Time) (bool, error)

	Ping(ctx context.Context) error
}

// Schedule holds the delays applied when a lead is created.
type Schedule struct {
	InitialDelay  time.Duration
	FollowupDelay time.Duration
}

// NewLead builds a pending lead. Both due timestamps are anchored at creation time.
func NewLead(externalID, phone, name string, now time.Time, s Schedule) (*Lead, error) {
	now = now.UTC()
	firstDue := now.Add(s.InitialDelay)
	followupDue := firstDue.Add(s.FollowupDelay)

	if strings.TrimSpace(name) == "" {
		name = unknownLeadName
	}

	lead := &Lead{
		ID:                uuid.New().String(),
		ExternalID:        strings.TrimSpace(externalID),
		Phone:             strings.TrimSpace(phone),
		Name:              strings.TrimSpace(name),
		Status:            StatusNewLead,
		FirstMessageDueAt: &firstDue,
		FollowupDueAt:     &followupDue,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := lead.Validate(); err != nil {
		return nil, err
	}
	return lead, nil
}

func (l *Lead) Validate() error {
	if l.ExternalID == "" {
		return errors.New("external id is required")
	}
	if l.Phone == "" {
		return errors.New("phone is required")
	}
	return nil
}

// InitialMessageDue reports whether the welcome message may be sent at now.
func (l *Lead) InitialMessageDue(now time.Time) bool {
	if l.IsDone || l.FirstMessageSent || l.FirstMessageDueAt == nil {
		return false
	}
	return !l.FirstMessageDueAt.After(now)
}

// FollowupDue reports whether the follow-up may be attempted at now.
// The follow-up never precedes the initial message.
func (l *Lead) FollowupDue(now time.Time) bool {
	if l.IsDone || !l.FirstMessageSent || l.FollowupDueAt == nil {
		return false
	}
	return !l.FollowupDueAt.After(now)
}
