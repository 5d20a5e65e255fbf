package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"idserver/internal/issuance/models"
	"idserver/internal/platform/metrics"
	"idserver/internal/platform/middleware"
	id "idserver/pkg/domain"
	dErrors "idserver/pkg/domain-errors"
	"idserver/pkg/platform/httputil"
)

type Service interface {
	Issue(ctx context.Context, sessionID id.SessionID, nullifier string) (*models.Issuance, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
	metrics *metrics.Metrics
	// requireSession is false when the service signs dummy credentials.
	requireSession bool
}

func New(service Service, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{service: service, logger: logger, metrics: m, requireSession: true}
}

// WithoutSession lets requests omit sessionId. Used with dummy credentials.
func (h *Handler) WithoutSession() *Handler {
	h.requireSession = false
	return h
}

// Register mounts GET /credentials/v2/{nullifier}. Issuance waits on the
// vendor and the signer in sequence, so the timeout covers both.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(middleware.Latency(h.metrics, "credentials"))
		r.Get("/credentials/v2/{nullifier}", h.handleGetCredentials)
	})
}

func (h *Handler) handleGetCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var sessionID id.SessionID
	if raw := r.URL.Query().Get("sessionId"); raw != "" || h.requireSession {
		if raw == "" {
			h.fail(w, r, dErrors.New(dErrors.CodeValidation, "No sessionId specified"), "missing session id")
			return
		}
		parsed, err := id.ParseSessionID(raw)
		if err != nil {
			h.fail(w, r, err, "invalid session id")
			return
		}
		sessionID = parsed
	}

	issuance, err := h.service.Issue(ctx, sessionID, chi.URLParam(r, "nullifier"))
	if err != nil {
		h.fail(w, r, err, "credential issuance failed")
		return
	}
	body, err := issuance.Response()
	if err != nil {
		h.fail(w, r, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode credentials"), "credential issuance failed")
		return
	}
	h.logger.InfoContext(ctx, "credentials returned",
		"request_id", middleware.GetRequestID(ctx),
		"session_id", issuance.SessionID.String(),
		"replayed", issuance.Replayed,
	)
	httputil.WriteJSON(w, http.StatusOK, body)
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
