package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/xavierca1/leadflow/internal/entity"
)

type SyncResult struct {
	Found   int `json:"found"`
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// LeadSync backfills leads whose webhook never arrived by scanning the board
// for items still labelled new.
type LeadSync struct {
	crm       CRMGateway
	lifecycle *LeadLifecycle
	log       *zap.Logger
}

func NewLeadSync(crm CRMGateway, lifecycle *LeadLifecycle, log *zap.Logger) *LeadSync {
	if log == nil {
		log = zap.NewNop()
	}
	return &LeadSync{crm: crm, lifecycle: lifecycle, log: log}
}

func (s *LeadSync) SyncNewLeads(ctx context.Context) (SyncResult, error) {
	var result SyncResult

	ids, err := s.crm.ListItemIDsByStatus(ctx, entity.StatusNewLead)
	if err != nil {
		return result, newError(KindExternalService, "LeadSync.SyncNewLeads", "failed to list new items", err)
	}
	result.Found = len(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		_, err := s.lifecycle.ProcessNewLead(ctx, id)
		switch {
		case err == nil:
			result.Created++
		case IsExpected(err):
			result.Skipped++
		default:
			result.Failed++
			s.log.Error("lead_sync_item_failed", zap.String("external_id", id), zap.Error(err))
		}
	}

	s.log.Info("lead_sync_finished",
		zap.Int("found", result.Found),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}
