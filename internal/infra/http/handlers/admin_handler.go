package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// AdminHandler exposes manual triggers for the scheduler jobs and the board backfill.
type AdminHandler struct {
	Scheduler   BatchRunner
	Sync        LeadSyncer
	Secret      string
	rateLimiter *RateLimiter
	Log         *zap.Logger
}

func NewAdminHandler(ctx context.Context, scheduler BatchRunner, sync LeadSyncer, secret string, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		Scheduler:   scheduler,
		Sync:        sync,
		Secret:      secret,
		rateLimiter: NewRateLimiter(ctx, 10, time.Minute), // 10 req/min per IP
		Log:         log,
	}
}

func (h *AdminHandler) RunFollowups(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}
	result, err := h.Scheduler.RunFollowups(context.WithoutCancel(r.Context()))
	h.reply(w, "followups", result, err)
}

func (h *AdminHandler) RunInitialMessages(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}
	result, err := h.Scheduler.RunInitialMessages(context.WithoutCancel(r.Context()))
	h.reply(w, "initial messages", result, err)
}

func (h *AdminHandler) SyncLeads(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}
	result, err := h.Sync.SyncNewLeads(context.WithoutCancel(r.Context()))
	h.reply(w, "lead sync", result, err)
}

func (h *AdminHandler) reply(w http.ResponseWriter, job string, result any, err error) {
	if err != nil {
		h.Log.Error("admin_trigger_failed", zap.String("job", job), zap.Error(err))
		writeJSON(w, http.StatusOK, StatusResponse{Status: "error", Message: job + " failed: " + err.Error()})
		return
	}
	h.Log.Info("admin_trigger_finished", zap.String("job", job), zap.Any("result", result))
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok", Message: job + " completed", Result: result})
}

func (h *AdminHandler) authorize(w http.ResponseWriter, r *http.Request) bool {
	if !h.rateLimiter.Allow(getClientIP(r)) {
		writeJSON(w, http.StatusTooManyRequests, StatusResponse{Status: "error", Message: "Too many requests. Please try again later."})
		return false
	}

	provided := r.Header.Get("X-Admin-Secret")
	if provided == "" {
		provided = r.URL.Query().Get("secret")
	}

	if h.Secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(h.Secret)) != 1 {
		h.Log.Warn("admin_unauthorized", zap.String("path", r.URL.Path), zap.String("ip", getClientIP(r)))
		writeJSON(w, http.StatusUnauthorized, StatusResponse{Status: "error", Message: "unauthorized"})
		return false
	}
	return true
}
