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

// Service defines the session operations the handler exposes.
type Service interface {
	Create(ctx context.Context, req *models.CreateSessionRequest) (*models.Session, error)
	Get(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	ListBySigDigest(ctx context.Context, sigDigest string) ([]*models.Session, error)
	MarkPaid(ctx context.Context, sessionID id.SessionID, req *models.PaymentRequest) (*models.Session, error)
	AttachProviderSession(ctx context.Context, sessionID id.SessionID, ref string) (*models.Session, error)
	FailSession(ctx context.Context, sessionID id.SessionID, reason string) (*models.Session, error)
	SetProvider(ctx context.Context, sessionID id.SessionID, provider string) (*models.Session, error)
}

// Handler serves the session endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(service Service, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{service: service, logger: logger, metrics: m}
}

// Register mounts the public session routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.Latency(h.metrics, "sessions"))
		r.Post("/sessions", h.handleCreate)
		r.Get("/sessions", h.handleList)
		r.Post("/sessions/{id}/payment", h.handlePayment)
		r.Post("/sessions/{id}/idv-session", h.handleAttachProviderSession)
	})
}

// RegisterAdmin mounts the admin session routes. The caller is responsible
// for guarding r.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.Latency(h.metrics, "admin_sessions"))
		r.Post("/admin/sessions/{id}/fail", h.handleAdminFail)
		r.Post("/admin/sessions/{id}/idv-provider", h.handleAdminSetProvider)
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "invalid create session request")
		return
	}
	session, err := h.service.Create(r.Context(), &req)
	if err != nil {
		h.fail(w, r, err, "failed to create session")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, session)
}

// handleList answers GET /sessions?id= or GET /sessions?sigDigest=. Both
// forms return an array.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if raw := r.URL.Query().Get("id"); raw != "" {
		sessionID, err := id.ParseSessionID(raw)
		if err != nil {
			h.fail(w, r, err, "invalid session id")
			return
		}
		session, err := h.service.Get(ctx, sessionID)
		if err != nil {
			h.fail(w, r, err, "failed to get session")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, []*models.Session{session})
		return
	}

	sigDigest := r.URL.Query().Get("sigDigest")
	if sigDigest == "" {
		h.fail(w, r, dErrors.New(dErrors.CodeValidation, "sigDigest or id is required"), "invalid list sessions request")
		return
	}
	sessions, err := h.service.ListBySigDigest(ctx, sigDigest)
	if err != nil {
		h.fail(w, r, err, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}
	httputil.WriteJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handlePayment(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req models.PaymentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "invalid payment request")
		return
	}
	session, err := h.service.MarkPaid(r.Context(), sessionID, &req)
	if err != nil {
		h.fail(w, r, err, "failed to record payment")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}

func (h *Handler) handleAttachProviderSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req models.AttachProviderSessionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "invalid idv session request")
		return
	}
	session, err := h.service.AttachProviderSession(r.Context(), sessionID, req.ProviderSessionRef)
	if err != nil {
		h.fail(w, r, err, "failed to attach provider session")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}

func (h *Handler) handleAdminFail(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req models.FailSessionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "invalid fail session request")
		return
	}
	session, err := h.service.FailSession(r.Context(), sessionID, req.Reason)
	if err != nil {
		h.fail(w, r, err, "failed to fail session")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}

func (h *Handler) handleAdminSetProvider(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req models.SetProviderRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "invalid set provider request")
		return
	}
	session, err := h.service.SetProvider(r.Context(), sessionID, req.IDVProvider)
	if err != nil {
		h.fail(w, r, err, "failed to set provider")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (id.SessionID, bool) {
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "invalid session id")
		return id.SessionID{}, false
	}
	return sessionID, true
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
