package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pyquest-jobs/internal/config"
	"github.com/pyquest-jobs/internal/domain"
	"github.com/pyquest-jobs/internal/service"
	"github.com/pyquest-jobs/internal/websocket"
)

// maxBodyBytes caps request bodies on the job endpoints
const maxBodyBytes = 64 << 10

// ActivityProcessor applies one activity event
type ActivityProcessor interface {
	Process(ctx context.Context, e domain.ActivityEvent) (service.ProcessResult, error)
}

// StreakRunner runs the daily streak maintenance
type StreakRunner interface {
	Run(ctx context.Context, now time.Time) (service.StreakResult, error)
}

// LeaderboardReader serves stored weekly snapshots
type LeaderboardReader interface {
	GetWeeklyTop(ctx context.Context, weekStart time.Time, n int) ([]domain.LeaderboardEntry, error)
}

// Services groups what the HTTP layer dispatches to
type Services struct {
	Processor   ActivityProcessor
	Streak      StreakRunner
	Weekly      service.WeeklyRunner
	Leaderboard LeaderboardReader
	Hub         *websocket.Hub
	// Checks are run by the readiness probe, keyed by dependency name
	Checks map[string]func(context.Context) error
}

// Handler provides HTTP handlers for the jobs API
type Handler struct {
	services    Services
	auth        *Authenticator
	limiter     Limiter
	limits      config.RateLimitConfig
	allowOrigin string
	loc         *time.Location
	logger      *slog.Logger
	now         func() time.Time
}

// NewHandler creates a new HTTP handler. limiter may be nil to disable rate limiting.
func NewHandler(
	services Services,
	auth *Authenticator,
	limiter Limiter,
	cfg *config.Config,
	loc *time.Location,
	logger *slog.Logger,
) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		services:    services,
		auth:        auth,
		limiter:     limiter,
		limits:      cfg.RateLimit,
		allowOrigin: cfg.Server.AllowOrigin,
		loc:         loc,
		logger:      logger,
		now:         time.Now,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(h.corsMiddleware)

	r.MethodNotAllowed(h.methodNotAllowed)
	r.NotFound(h.notFound)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// Jobs
	r.With(h.rateLimit("activity", h.limits.ActivityLimit), h.requireCaller).
		Post("/achievement-processor", h.ProcessActivity)
	r.With(h.rateLimit("jobs", h.limits.JobLimit), h.requireServiceKey).
		Post("/streak-maintenance", h.RunStreakMaintenance)
	r.With(h.rateLimit("jobs", h.limits.JobLimit), h.requireServiceKey).
		Post("/weekly-leaderboard", h.RunWeeklyLeaderboard)

	// Reads
	r.With(h.rateLimit("read", h.limits.ReadLimit)).
		Get("/weekly-leaderboard/{weekStart}/top", h.GetWeeklyTop)

	return r
}

// corsMiddleware adds CORS and basic security headers
func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", h.allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID, "+ServiceKeyHeader)
		w.Header().Set("X-Content-Type-Options", "nosniff")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, message string, data any) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps a service error to a status. Unexpected errors are
// logged and answered with a generic message.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case domain.IsValidationError(err):
		h.writeError(w, http.StatusBadRequest, err)
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, context.Canceled):
		h.writeError(w, http.StatusServiceUnavailable, domain.ErrInternalError)
	default:
		h.logger.Error("request failed",
			"op", op,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, http.StatusNotFound, errors.New("not found"))
}

// readBody reads a bounded request body
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Join(domain.ErrInvalidRequest, err)
	}
	return body, nil
}

// HandleWebSocket handles WebSocket upgrade requests. A token query parameter
// subscribes the connection to its user's notifications.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	var userID string
	if token := r.URL.Query().Get("token"); token != "" {
		sub, err := h.auth.Subject(token)
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
			return
		}
		userID = sub
	}
	websocket.ServeWs(h.services.Hub, h.logger, w, r, userID)
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, "", map[string]string{"status": "healthy"})
}

// ReadyCheck reports whether every dependency answers
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := make(map[string]string, len(h.services.Checks))
	ready := true
	for name, check := range h.services.Checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("readiness check failed", "dependency", name, "error", err)
			status[name] = "unavailable"
			ready = false
			continue
		}
		status[name] = "ok"
	}

	if !ready {
		h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Data:    status,
			Error:   "not ready",
		})
		return
	}
	h.writeSuccess(w, "ready", status)
}

// ProcessActivity applies one activity event. Users may only report their own activity.
func (h *Handler) ProcessActivity(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if err := validateBody(r.Context(), activitySchema, body); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	var event domain.ActivityEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	caller, _ := CallerFrom(r.Context())
	if !caller.Service && caller.UserID != event.UserID {
		h.writeError(w, http.StatusForbidden, domain.ErrForbidden)
		return
	}

	result, err := h.services.Processor.Process(r.Context(), event)
	if err != nil {
		h.writeServiceError(w, r, "process activity", err)
		return
	}

	h.writeSuccess(w, "Achievement activity processed successfully", result)
}

// RunStreakMaintenance runs the daily streak job
func (h *Handler) RunStreakMaintenance(w http.ResponseWriter, r *http.Request) {
	result, err := h.services.Streak.Run(r.Context(), h.now())
	if err != nil {
		h.writeServiceError(w, r, "streak maintenance", err)
		return
	}

	h.writeSuccess(w, "Streak maintenance completed successfully", result)
}

// RunWeeklyLeaderboard builds the snapshot for the requested week
func (h *Handler) RunWeeklyLeaderboard(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if err := validateBody(r.Context(), weeklySchema, body); err != nil {
		h.writeError(w, http.StatusBadRequest, errors.New("week_start parameter is required"))
		return
	}

	var req struct {
		WeekStart string `json:"week_start"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	weekStart, err := domain.ParseWeekStart(req.WeekStart, h.loc)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.services.Weekly.Run(r.Context(), weekStart)
	if err != nil {
		h.writeServiceError(w, r, "weekly leaderboard", err)
		return
	}

	h.writeSuccess(w, "Weekly leaderboard updated successfully", result)
}

// GetWeeklyTop returns the leaders of a stored weekly snapshot
func (h *Handler) GetWeeklyTop(w http.ResponseWriter, r *http.Request) {
	weekStart, err := domain.ParseWeekStart(chi.URLParam(r, "weekStart"), h.loc)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	entries, err := h.services.Leaderboard.GetWeeklyTop(r.Context(), weekStart, limit)
	if err != nil {
		h.writeServiceError(w, r, "weekly top", err)
		return
	}

	h.writeSuccess(w, "", entries)
}
