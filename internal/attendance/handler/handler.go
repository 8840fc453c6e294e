// Package handler exposes the attendance engine over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"timeclock/internal/attendance/models"
	"timeclock/internal/attendance/service"
	id "timeclock/pkg/domain"
	dErrors "timeclock/pkg/domain-errors"
	"timeclock/pkg/platform/httputil"
	devicemw "timeclock/pkg/platform/middleware/device"
	"timeclock/pkg/requestcontext"
)

// Service is the subset of the engine the handlers call.
type Service interface {
	CheckIn(ctx context.Context, cmd service.CheckInCommand) (*models.Session, error)
	CheckOut(ctx context.Context, cmd service.CheckOutCommand) (*models.Session, error)
	RecordLocation(ctx context.Context, cmd service.RecordLocationCommand) bool
	CurrentSession(ctx context.Context, userID id.UserID) (*models.Session, error)
	History(ctx context.Context, userID id.UserID, limit int) ([]service.SessionSummary, error)
	SessionPings(ctx context.Context, userID id.UserID, sessionID id.SessionID) ([]models.LocationPing, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the attendance routes. Callers apply authentication.
// writes wraps only the state-changing routes; location samples always
// answer 202 and are never throttled.
func (h *Handler) Register(r chi.Router, writes ...func(http.Handler) http.Handler) {
	r.Route("/attendance", func(r chi.Router) {
		w := r.With(writes...)
		w.Post("/check-in", h.HandleCheckIn)
		w.Post("/check-out", h.HandleCheckOut)
		r.Post("/location", h.HandleRecordLocation)
		r.Get("/current", h.HandleCurrent)
		r.Get("/history", h.HandleHistory)
		r.Get("/sessions/{id}/pings", h.HandleSessionPings)
	})
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (id.UserID, bool) {
	userID := requestcontext.UserID(r.Context())
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.UserID{}, false
	}
	return userID, true
}

// HandleCheckIn handles POST /attendance/check-in.
func (h *Handler) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[CheckInRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	session, err := h.service.CheckIn(ctx, service.CheckInCommand{
		UserID:       userID,
		At:           requestcontext.Now(ctx),
		Location:     req.location(),
		WorkLocation: req.workLocation,
		Notes:        req.Notes,
		LateReason:   req.LateReason,
		Device:       devicemw.GetLabel(ctx),
	})
	if err != nil {
		h.logFailure(ctx, "check-in rejected", userID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toSessionResponse(session))
}

// HandleCheckOut handles POST /attendance/check-out.
func (h *Handler) HandleCheckOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[CheckOutRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	session, err := h.service.CheckOut(ctx, service.CheckOutCommand{
		UserID:   userID,
		At:       requestcontext.Now(ctx),
		Location: req.location(),
		Notes:    req.Notes,
	})
	if err != nil {
		h.logFailure(ctx, "check-out rejected", userID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSessionResponse(session))
}

// HandleRecordLocation handles POST /attendance/location. It answers 202 for
// every authenticated request, including malformed bodies, so background
// samplers never see a failure.
func (h *Handler) HandleRecordLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req RecordLocationRequest
	body := http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.logger.DebugContext(ctx, "location sample not decodable",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteJSON(w, http.StatusAccepted, RecordLocationResponse{})
		return
	}
	req.Coordinates.normalize()

	cmd := service.RecordLocationCommand{
		UserID:   userID,
		At:       requestcontext.Now(ctx),
		Location: req.location(),
	}
	// Samples queued on the device keep their capture time; future stamps
	// are pinned to the request time.
	if req.RecordedAt != nil && !req.RecordedAt.After(cmd.At) {
		cmd.At = *req.RecordedAt
	}
	if req.SessionID != "" {
		if sessionID, err := id.ParseSessionID(req.SessionID); err == nil {
			cmd.SessionID = sessionID
		}
	}

	recorded := h.service.RecordLocation(ctx, cmd)
	httputil.WriteJSON(w, http.StatusAccepted, RecordLocationResponse{Recorded: recorded})
}

// HandleCurrent handles GET /attendance/current.
func (h *Handler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	session, err := h.service.CurrentSession(ctx, userID)
	if err != nil {
		h.logFailure(ctx, "current session lookup failed", userID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CurrentResponse{Session: toSessionResponse(session)})
}

// HandleHistory handles GET /attendance/history?limit=N.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	rows, err := h.service.History(ctx, userID, limit)
	if err != nil {
		h.logFailure(ctx, "history lookup failed", userID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toHistoryResponse(rows))
}

// HandleSessionPings handles GET /attendance/sessions/{id}/pings.
func (h *Handler) HandleSessionPings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	sessionID, err := id.ParseSessionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	pings, err := h.service.SessionPings(ctx, userID, sessionID)
	if err != nil {
		h.logFailure(ctx, "ping lookup failed", userID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPingsResponse(sessionID.String(), pings))
}

// logFailure logs client errors at INFO and server errors at ERROR.
func (h *Handler) logFailure(ctx context.Context, msg string, userID id.UserID, err error) {
	level := slog.LevelInfo
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID.String(),
		"error", err,
	)
}
