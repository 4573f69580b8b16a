package queue

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys double as event types.
const (
	EventLeadCreated         = "lead.created"
	EventLeadInitialSent     = "lead.initial_sent"
	EventLeadFollowupSent    = "lead.followup_sent"
	EventLeadFollowupAborted = "lead.followup_aborted"
	EventLeadReplied         = "lead.replied"
)

type LeadEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	LeadID     string    `json:"lead_id"`
	ExternalID string    `json:"external_id"`
	Phone      string    `json:"phone"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewLeadEvent(eventType, leadID, externalID, phone, name, status string, at time.Time) LeadEvent {
	return LeadEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		LeadID:     leadID,
		ExternalID: externalID,
		Phone:      phone,
		Name:       name,
		Status:     status,
		OccurredAt: at.UTC(),
	}
}
