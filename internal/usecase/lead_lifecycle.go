package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xavierca1/leadflow/internal/entity"
	"github.com/xavierca1/leadflow/internal/infra/integration/monday"
	"github.com/xavierca1/leadflow/internal/infra/integration/whatsapp"
	"github.com/xavierca1/leadflow/internal/infra/phone"
	"github.com/xavierca1/leadflow/internal/infra/queue"
)

// LeadLifecycle owns every state transition of a lead: creation, welcome
// message, follow-up (or abort on status drift) and reply.
type LeadLifecycle struct {
	repo      LeadRepositoryInterface
	crm       CRMGateway
	messenger MessagingGateway
	events    QueueProducerInterface
	cfg       LifecycleConfig
	now       Clock
	log       *zap.Logger
}

type LifecycleDeps struct {
	Repo      LeadRepositoryInterface
	CRM       CRMGateway
	Messenger MessagingGateway
	Events    QueueProducerInterface
	Clock     Clock
	Logger    *zap.Logger
}

func NewLeadLifecycle(deps LifecycleDeps, cfg LifecycleConfig) *LeadLifecycle {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Events == nil {
		deps.Events = queue.LogProducer{Log: deps.Logger}
	}
	if cfg.FollowupDelay == 0 {
		cfg.FollowupDelay = 24 * time.Hour
	}
	if cfg.PhoneRegion == "" {
		cfg.PhoneRegion = phone.DefaultRegion
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 5 * time.Minute
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 10 * time.Minute
	}
	if cfg.RetryBackoffMax < cfg.RetryBackoff {
		cfg.RetryBackoffMax = max(6*time.Hour, cfg.RetryBackoff)
	}

	return &LeadLifecycle{
		repo:      deps.Repo,
		crm:       deps.CRM,
		messenger: deps.Messenger,
		events:    deps.Events,
		cfg:       cfg,
		now:       deps.Clock,
		log:       deps.Logger,
	}
}

// ProcessNewLead creates the local record for a CRM item. Nothing is
// persisted unless the item resolves with a phone number. With a zero
// initial delay the welcome message is attempted right away; if that send
// fails the lead stays pending for the scheduler.
func (uc *LeadLifecycle) ProcessNewLead(ctx context.Context, externalID string) (*entity.Lead, error) {
	const op = "LeadLifecycle.ProcessNewLead"

	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, newError(KindValidation, op, "external id is required", nil)
	}

	existing, err := uc.repo.FindByExternalID(ctx, externalID)
	switch {
	case err == nil && existing != nil:
		return nil, newError(KindConflict, op, "lead already exists for item "+externalID, entity.ErrLeadAlreadyExists)
	case err != nil && !errors.Is(err, entity.ErrLeadNotFound):
		return nil, newError(KindInternal, op, "failed to look up lead", err)
	}

	item, err := uc.crm.FetchItem(ctx, externalID)
	if err != nil {
		if errors.Is(err, monday.ErrItemNotFound) {
			return nil, newError(KindNotFound, op, "crm item "+externalID+" not found", err)
		}
		return nil, newError(KindExternalService, op, "failed to fetch crm item", err)
	}
	if strings.TrimSpace(item.Phone) == "" {
		return nil, newError(KindValidation, op, "crm item "+externalID+" has no phone number", nil)
	}

	normalized := phone.NormalizeE164(item.Phone, uc.cfg.PhoneRegion)
	if errs := ValidateLeadContact(externalID, normalized, item.Name); len(errs) > 0 {
		return nil, newError(KindValidation, op, joinValidationErrors(errs), nil)
	}

	lead, err := entity.NewLead(externalID, normalized, item.Name, uc.now(), entity.Schedule{
		InitialDelay:  uc.cfg.InitialDelay,
		FollowupDelay: uc.cfg.FollowupDelay,
	})
	if err != nil {
		return nil, newError(KindValidation, op, "invalid lead", err)
	}

	if err := uc.repo.Create(ctx, lead); err != nil {
		if errors.Is(err, entity.ErrLeadAlreadyExists) {
			return nil, newError(KindConflict, op, "lead already exists for item "+externalID, err)
		}
		return nil, newError(KindInternal, op, "failed to persist lead", err)
	}

	uc.log.Info("lead_created",
		zap.String("lead_id", lead.ID),
		zap.String("external_id", lead.ExternalID),
		zap.Time("first_message_due_at", *lead.FirstMessageDueAt),
		zap.Time("followup_due_at", *lead.FollowupDueAt),
	)
	uc.publish(ctx, queue.EventLeadCreated, lead)

	if uc.cfg.InitialDelay == 0 {
		if _, err := uc.SendInitialMessage(ctx, lead); err != nil {
			uc.log.Warn("initial_message_deferred",
				zap.String("lead_id", lead.ID),
				zap.Error(err),
			)
		}
	}

	return lead, nil
}

// SendInitialMessage sends the welcome template once the lead is due. The
// lead is claimed first, so the inline webhook send and a scheduler tick
// never both deliver it.
func (uc *LeadLifecycle) SendInitialMessage(ctx context.Context, lead *entity.Lead) (SendOutcome, error) {
	const op = "LeadLifecycle.SendInitialMessage"

	now := uc.now()
	if !lead.InitialMessageDue(now) {
		return OutcomeSkipped, nil
	}

	claimed, err := uc.repo.Claim(ctx, lead.ID, entity.DueInitialMessage, now, now.Add(uc.cfg.ClaimTTL))
	if err != nil {
		return "", newError(KindInternal, op, "failed to claim lead", err)
	}
	if !claimed {
		uc.log.Debug("initial_message_claimed_elsewhere", zap.String("lead_id", lead.ID))
		return OutcomeSkipped, nil
	}

	if _, err := uc.messenger.SendTemplate(ctx, uc.template(lead, uc.cfg.WelcomeTemplate)); err != nil {
		uc.RetryLater(ctx, lead, entity.DueInitialMessage)
		return "", newError(KindExternalService, op, "failed to send welcome message", err)
	}

	applied, err := uc.repo.MarkInitialSent(ctx, lead.ID, entity.StatusMessageSent, now)
	if err != nil {
		return "", newError(KindInternal, op, "welcome message sent but not recorded", err)
	}
	if !applied {
		uc.log.Warn("initial_message_already_recorded", zap.String("lead_id", lead.ID))
		return OutcomeSkipped, nil
	}

	lead.FirstMessageSent = true
	lead.Status = entity.StatusMessageSent
	lead.Attempts = 0
	lead.ClaimedUntil = nil
	lead.UpdatedAt = now.UTC()

	uc.updateCRMStatus(ctx, lead, entity.StatusMessageSent)
	uc.publish(ctx, queue.EventLeadInitialSent, lead)

	uc.log.Info("initial_message_sent", zap.String("lead_id", lead.ID), zap.String("external_id", lead.ExternalID))
	return OutcomeSent, nil
}

// ProcessFollowup re-reads the CRM status before sending. Any label other
// than message-sent means someone already acted, and a deleted item means
// there is nobody left to chase; both retire the lead without a message.
// A lead retired locally (a reply) after it was listed loses the claim and
// is skipped.
func (uc *LeadLifecycle) ProcessFollowup(ctx context.Context, lead *entity.Lead) (SendOutcome, error) {
	const op = "LeadLifecycle.ProcessFollowup"

	now := uc.now()
	if !lead.FollowupDue(now) {
		return OutcomeSkipped, nil
	}

	claimed, err := uc.repo.Claim(ctx, lead.ID, entity.DueFollowup, now, now.Add(uc.cfg.ClaimTTL))
	if err != nil {
		return "", newError(KindInternal, op, "failed to claim lead", err)
	}
	if !claimed {
		uc.log.Debug("followup_claimed_elsewhere", zap.String("lead_id", lead.ID))
		return OutcomeSkipped, nil
	}

	item, err := uc.crm.FetchItem(ctx, lead.ExternalID)
	switch {
	case errors.Is(err, monday.ErrItemNotFound):
		return uc.abortFollowup(ctx, op, lead, now, "item_deleted", "")
	case err != nil:
		uc.RetryLater(ctx, lead, entity.DueFollowup)
		return "", newError(KindExternalService, op, "failed to fetch current crm status", err)
	case item.Status != entity.StatusMessageSent:
		return uc.abortFollowup(ctx, op, lead, now, "status_drift", item.Status)
	}

	if _, err := uc.messenger.SendTemplate(ctx, uc.template(lead, uc.cfg.FollowupTemplate)); err != nil {
		uc.RetryLater(ctx, lead, entity.DueFollowup)
		return "", newError(KindExternalService, op, "failed to send follow-up message", err)
	}

	applied, err := uc.repo.MarkDone(ctx, lead.ID, entity.StatusNoAnswer1, now)
	if err != nil {
		return "", newError(KindInternal, op, "follow-up sent but not recorded", err)
	}
	if !applied {
		// A reply landed while the message was in flight; its label wins.
		uc.log.Warn("followup_sent_after_retire", zap.String("lead_id", lead.ID))
		lead.IsDone = true
		return OutcomeSent, nil
	}

	lead.IsDone = true
	lead.Status = entity.StatusNoAnswer1
	lead.ClaimedUntil = nil
	lead.UpdatedAt = now.UTC()

	// The message is out; the remote label is best-effort from here on.
	uc.updateCRMStatus(ctx, lead, entity.StatusNoAnswer1)
	uc.publish(ctx, queue.EventLeadFollowupSent, lead)
	uc.log.Info("followup_sent", zap.String("lead_id", lead.ID), zap.String("external_id", lead.ExternalID))
	return OutcomeSent, nil
}

// abortFollowup retires the lead keeping its label.
func (uc *LeadLifecycle) abortFollowup(ctx context.Context, op string, lead *entity.Lead, now time.Time, reason, crmStatus string) (SendOutcome, error) {
	if _, err := uc.repo.MarkDone(ctx, lead.ID, "", now); err != nil {
		return "", newError(KindInternal, op, "failed to retire lead after status drift", err)
	}
	lead.IsDone = true
	lead.ClaimedUntil = nil
	lead.UpdatedAt = now.UTC()

	uc.log.Info("followup_aborted",
		zap.String("lead_id", lead.ID),
		zap.String("external_id", lead.ExternalID),
		zap.String("reason", reason),
		zap.String("crm_status", crmStatus),
	)
	uc.publish(ctx, queue.EventLeadFollowupAborted, lead)
	return OutcomeAborted, nil
}

// RetryLater releases a failed attempt and pushes the lead's due time out so
// it stops occupying the head of the due queue.
func (uc *LeadLifecycle) RetryLater(ctx context.Context, lead *entity.Lead, kind entity.DueKind) {
	now := uc.now()
	next := now.Add(uc.retryDelay(lead.Attempts))

	applied, err := uc.repo.Reschedule(ctx, lead.ID, kind, next, now)
	if err != nil {
		uc.log.Error("lead_reschedule_failed", zap.String("lead_id", lead.ID), zap.Error(err))
		return
	}
	if !applied {
		return
	}

	lead.Attempts++
	lead.ClaimedUntil = nil
	if kind == entity.DueFollowup {
		lead.FollowupDueAt = &next
	} else {
		lead.FirstMessageDueAt = &next
	}

	uc.log.Warn("lead_retry_scheduled",
		zap.String("lead_id", lead.ID),
		zap.String("kind", string(kind)),
		zap.Int("attempts", lead.Attempts),
		zap.Time("next_attempt_at", next),
	)
}

func (uc *LeadLifecycle) retryDelay(attempts int) time.Duration {
	delay := uc.cfg.RetryBackoff
	for range attempts {
		if delay >= uc.cfg.RetryBackoffMax/2 {
			return uc.cfg.RetryBackoffMax
		}
		delay *= 2
	}
	return min(delay, uc.cfg.RetryBackoffMax)
}

// MarkReplied retires the most recent open lead for phoneNumber. The number
// is compared exactly against its plus, no-plus and E.164 forms. An unknown
// sender yields (nil, nil).
func (uc *LeadLifecycle) MarkReplied(ctx context.Context, phoneNumber string) (*entity.Lead, error) {
	const op = "LeadLifecycle.MarkReplied"

	variants := phone.Variants(phoneNumber, uc.cfg.PhoneRegion)
	if len(variants) == 0 {
		return nil, newError(KindValidation, op, "sender phone is required", nil)
	}

	lead, err := uc.repo.MarkRepliedByPhones(ctx, variants, entity.StatusCustomerReplied, uc.now())
	if err != nil {
		return nil, newError(KindInternal, op, "failed to mark lead as replied", err)
	}
	if lead == nil {
		uc.log.Warn("reply_from_unknown_number", zap.Strings("variants", variants))
		return nil, nil
	}

	uc.log.Info("lead_replied", zap.String("lead_id", lead.ID), zap.String("external_id", lead.ExternalID))
	return lead, nil
}

// SyncReplyStatus pushes the replied label to the CRM and announces the reply.
func (uc *LeadLifecycle) SyncReplyStatus(ctx context.Context, lead *entity.Lead) {
	uc.updateCRMStatus(ctx, lead, entity.StatusCustomerReplied)
	uc.publish(ctx, queue.EventLeadReplied, lead)
}

func (uc *LeadLifecycle) template(lead *entity.Lead, name string) whatsapp.SendMessageInput {
	return whatsapp.SendMessageInput{
		PhoneNumber:  lead.Phone,
		TemplateName: name,
		Language:     uc.cfg.TemplateLanguage,
		Parameters:   []string{lead.Name},
	}
}

func (uc *LeadLifecycle) updateCRMStatus(ctx context.Context, lead *entity.Lead, status string) {
	if err := uc.crm.UpdateStatus(ctx, lead.ExternalID, status); err != nil {
		uc.log.Error("crm_status_update_failed",
			zap.String("external_id", lead.ExternalID),
			zap.String("status", status),
			zap.Error(err),
		)
	}
}

func (uc *LeadLifecycle) publish(ctx context.Context, eventType string, lead *entity.Lead) {
	event := queue.NewLeadEvent(eventType, lead.ID, lead.ExternalID, lead.Phone, lead.Name, lead.Status, uc.now())
	if err := uc.events.PublishLeadEvent(ctx, event); err != nil {
		uc.log.Warn("lead_event_publish_failed", zap.String("type", eventType), zap.Error(err))
	}
}
