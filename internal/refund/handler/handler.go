package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"idserver/internal/platform/metrics"
	"idserver/internal/platform/middleware"
	"idserver/internal/session/models"
	id "idserver/pkg/domain"
	dErrors "idserver/pkg/domain-errors"
	"idserver/pkg/platform/httputil"
)

type Service interface {
	RefundSession(ctx context.Context, sessionID id.SessionID, to string) (*models.Session, error)
	RefundByTxHash(ctx context.Context, txHash string) (*models.Session, error)
}

type refundRequest struct {
	To string `json:"to"`
}

type adminRefundRequest struct {
	TxHash string `json:"txHash"`
}

type Handler struct {
	service Service
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(service Service, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{service: service, logger: logger, metrics: m}
}

// Register mounts POST /sessions/{id}/refund. Refunds call the payments
// service, so the route gets a longer timeout than the session routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.Latency(h.metrics, "refund"))
		r.Post("/sessions/{id}/refund", h.handleRefund)
	})
}

// RegisterAdmin mounts the admin refund route. The caller guards r.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.Latency(h.metrics, "admin_refund"))
		r.Post("/admin/refund-failed-session", h.handleAdminRefund)
	})
}

func (h *Handler) handleRefund(w http.ResponseWriter, r *http.Request) {
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "invalid session id")
		return
	}
	var req refundRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "invalid refund request")
		return
	}
	session, err := h.service.RefundSession(r.Context(), sessionID, req.To)
	if err != nil {
		h.fail(w, r, err, "refund failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}

func (h *Handler) handleAdminRefund(w http.ResponseWriter, r *http.Request) {
	var req adminRefundRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "invalid admin refund request")
		return
	}
	session, err := h.service.RefundByTxHash(r.Context(), req.TxHash)
	if err != nil {
		h.fail(w, r, err, "admin refund failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	ctx := r.Context()
	level := slog.LevelWarn
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	)
	httputil.WriteError(w, err)
}
