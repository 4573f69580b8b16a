package usecase

import (
	"context"
	"time"

	"github.com/xavierca1/leadflow/internal/entity"
	"github.com/xavierca1/leadflow/internal/infra/integration/monday"
	"github.com/xavierca1/leadflow/internal/infra/integration/whatsapp"
	"github.com/xavierca1/leadflow/internal/infra/queue"
)

type LeadRepositoryInterface = entity.LeadRepositoryInterface

// CRMGateway is the board the leads live on.
type CRMGateway interface {
	FetchItem(ctx context.Context, itemID string) (*monday.Item, error)
	UpdateStatus(ctx context.Context, itemID, status string) error
	ListItemIDsByStatus(ctx context.Context, status string) ([]string, error)
}

type MessagingGateway interface {
	SendTemplate(ctx context.Context, input whatsapp.SendMessageInput) (string, error)
}

type QueueProducerInterface interface {
	PublishLeadEvent(ctx context.Context, event queue.LeadEvent) error
}

// Clock is injected so scheduling decisions can be tested at fixed instants.
type Clock func() time.Time

// SendOutcome is the result of a scheduled transition on one lead.
type SendOutcome string

const (
	OutcomeSent    SendOutcome = "sent"
	OutcomeAborted SendOutcome = "aborted"
	OutcomeSkipped SendOutcome = "skipped"
)

type LifecycleConfig struct {
	InitialDelay     time.Duration
	FollowupDelay    time.Duration
	WelcomeTemplate  string
	FollowupTemplate string
	TemplateLanguage string
	PhoneRegion      string

	// ClaimTTL bounds how long one send attempt holds a lead. Failed attempts
	// push the due time out by RetryBackoff, doubling per attempt up to RetryBackoffMax.
	ClaimTTL        time.Duration
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
}
