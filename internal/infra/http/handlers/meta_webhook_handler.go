package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xavierca1/leadflow/internal/infra/http/middleware"
)

type metaWebhookRequest struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				MessagingProduct string           `json:"messaging_product"`
				Messages         []inboundMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundMessage struct {
	From      string `json:"from" validate:"required,numeric,min=8,max=15"`
	ID        string `json:"id" validate:"required"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type" validate:"required"`
}

// MetaWebhookHandler serves the WhatsApp Cloud API verification handshake
// and retires leads whose customers wrote back.
type MetaWebhookHandler struct {
	Replies     ReplyProcessor
	VerifyToken string
	Validate    *validator.Validate
	Log         *zap.Logger
}

func NewMetaWebhookHandler(replies ReplyProcessor, verifyToken string, log *zap.Logger) *MetaWebhookHandler {
	return &MetaWebhookHandler{
		Replies:     replies,
		VerifyToken: verifyToken,
		Validate:    validator.New(),
		Log:         log,
	}
}

func (h *MetaWebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && h.VerifyToken != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(h.VerifyToken)) == 1 {
		h.Log.Info("meta_webhook_verified")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
		return
	}

	h.Log.Warn("meta_webhook_verification_failed", zap.String("mode", mode))
	http.Error(w, "Forbidden", http.StatusForbidden)
}

func (h *MetaWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req metaWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Log.Warn("meta_webhook_invalid_json", zap.Error(err))
		middleware.RecordWebhookEvent("meta", "error")
		writeJSON(w, http.StatusOK, StatusResponse{Status: "error", Message: "invalid JSON"})
		return
	}

	ctx := context.WithoutCancel(r.Context())
	failed := false

	for _, entry := range req.Entry {
		for _, change := range entry.Changes {
			// Delivery and read receipts arrive without messages.
			for _, msg := range change.Value.Messages {
				if err := h.Validate.Struct(msg); err != nil {
					h.Log.Warn("meta_webhook_invalid_message", zap.String("message_id", msg.ID), zap.Error(err))
					continue
				}

				lead, err := h.Replies.MarkReplied(ctx, msg.From)
				if err != nil {
					failed = true
					h.Log.Error("meta_webhook_mark_replied_failed", zap.String("message_id", msg.ID), zap.Error(err))
					continue
				}
				if lead == nil {
					continue
				}
				h.Replies.SyncReplyStatus(ctx, lead)
			}
		}
	}

	if failed {
		middleware.RecordWebhookEvent("meta", "error")
		writeJSON(w, http.StatusOK, StatusResponse{Status: "error"})
		return
	}
	middleware.RecordWebhookEvent("meta", "received")
	writeJSON(w, http.StatusOK, StatusResponse{Status: "received"})
}
