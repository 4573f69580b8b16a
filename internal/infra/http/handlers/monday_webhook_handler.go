package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/xavierca1/leadflow/internal/infra/http/middleware"
	"github.com/xavierca1/leadflow/internal/usecase"
)

type mondayWebhookRequest struct {
	Challenge string `json:"challenge"`
	Event     *struct {
		Type    string      `json:"type"`
		PulseID json.Number `json:"pulseId"`
		BoardID json.Number `json:"boardId"`
		GroupID string      `json:"groupId"`
	} `json:"event"`
}

// MondayWebhookHandler turns board events into new leads. The CRM retries
// on non-2xx, so every outcome is acknowledged with 200.
type MondayWebhookHandler struct {
	Leads   NewLeadProcessor
	BoardID string
	Log     *zap.Logger
}

func NewMondayWebhookHandler(leads NewLeadProcessor, boardID string, log *zap.Logger) *MondayWebhookHandler {
	return &MondayWebhookHandler{Leads: leads, BoardID: boardID, Log: log}
}

func (h *MondayWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req mondayWebhookRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		h.Log.Warn("monday_webhook_invalid_json", zap.Error(err))
		middleware.RecordWebhookEvent("monday", "error")
		writeJSON(w, http.StatusOK, StatusResponse{Status: "error", Message: "invalid JSON"})
		return
	}

	// Subscription handshake.
	if req.Challenge != "" {
		writeJSON(w, http.StatusOK, map[string]string{"challenge": req.Challenge})
		return
	}

	if req.Event == nil || strings.TrimSpace(req.Event.PulseID.String()) == "" {
		middleware.RecordWebhookEvent("monday", "skipped")
		writeJSON(w, http.StatusOK, StatusResponse{Status: "skipped", Reason: "no item id in event"})
		return
	}

	if h.BoardID != "" && req.Event.BoardID.String() != "" && req.Event.BoardID.String() != h.BoardID {
		h.Log.Info("monday_webhook_other_board", zap.String("board_id", req.Event.BoardID.String()))
		middleware.RecordWebhookEvent("monday", "skipped")
		writeJSON(w, http.StatusOK, StatusResponse{Status: "skipped", Reason: "event from another board"})
		return
	}

	itemID := req.Event.PulseID.String()
	h.Log.Info("monday_webhook_received",
		zap.String("item_id", itemID),
		zap.String("board_id", req.Event.BoardID.String()),
		zap.String("group_id", req.Event.GroupID),
	)

	// The CRM may drop the connection before the welcome send completes.
	lead, err := h.Leads.ProcessNewLead(context.WithoutCancel(r.Context()), itemID)
	if err != nil {
		if usecase.IsExpected(err) {
			h.Log.Info("monday_webhook_skipped", zap.String("item_id", itemID), zap.Error(err))
			middleware.RecordWebhookEvent("monday", "skipped")
			writeJSON(w, http.StatusOK, StatusResponse{Status: "skipped", Reason: usecase.KindOf(err).String()})
			return
		}

		h.Log.Error("monday_webhook_failed",
			zap.String("item_id", itemID),
			zap.String("kind", usecase.KindOf(err).String()),
			zap.Error(err),
		)
		if usecase.IsKind(err, usecase.KindExternalService) {
			middleware.RecordIntegrationError("monday")
		}
		middleware.RecordWebhookEvent("monday", "error")
		writeJSON(w, http.StatusOK, StatusResponse{Status: "error", Message: usecase.KindOf(err).String()})
		return
	}

	middleware.RecordWebhookEvent("monday", "processed")
	writeJSON(w, http.StatusOK, StatusResponse{Status: "processed", LeadID: lead.ID})
}
