package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/xavierca1/leadflow/internal/entity"
	"github.com/xavierca1/leadflow/internal/infra/worker"
	"github.com/xavierca1/leadflow/internal/usecase"
)

type NewLeadProcessor interface {
	ProcessNewLead(ctx context.Context, externalID string) (*entity.Lead, error)
}

type ReplyProcessor interface {
	MarkReplied(ctx context.Context, phoneNumber string) (*entity.Lead, error)
	SyncReplyStatus(ctx context.Context, lead *entity.Lead)
}

type BatchRunner interface {
	RunInitialMessages(ctx context.Context) (worker.BatchResult, error)
	RunFollowups(ctx context.Context) (worker.BatchResult, error)
}

type LeadSyncer interface {
	SyncNewLeads(ctx context.Context) (usecase.SyncResult, error)
}

// StatusResponse is the acknowledgement body shared by webhooks and admin triggers.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`
	LeadID  string `json:"lead_id,omitempty"`
	Result  any    `json:"result,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
