package handler

import (
	"context"
	"dashcollab/internal/collaboration/reaper"
	"dashcollab/internal/collaboration/service"
	apperrors "dashcollab/pkg/errors"
	httputil "dashcollab/pkg/http"
	"dashcollab/pkg/logger"
	"dashcollab/pkg/middleware"
	"dashcollab/pkg/model"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
)

const BasePath = "/api/v1/collaboration"

// maxLockDurationSeconds is the largest lock_duration that still fits a time.Duration.
const maxLockDurationSeconds = math.MaxInt64 / int64(time.Second)

// Sweeper runs one reaper cycle on demand.
type Sweeper interface {
	RunOnce(ctx context.Context) (reaper.SweepResult, error)
}

type CollaborationHandler struct {
	sessions service.SessionRegistry
	locks    service.LockManager
	presence service.PresenceService
	sweeper  Sweeper
	log      *logger.Logger
}

func NewCollaborationHandler(
	sessions service.SessionRegistry,
	locks service.LockManager,
	presence service.PresenceService,
	sweeper Sweeper,
	log *logger.Logger,
) *CollaborationHandler {
	return &CollaborationHandler{
		sessions: sessions,
		locks:    locks,
		presence: presence,
		sweeper:  sweeper,
		log:      log,
	}
}

func (h *CollaborationHandler) StartSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	identity, ok := h.identity(w, r, "StartSession")
	if !ok {
		return
	}

	var req startSessionRequest
	if err := httputil.DecodeOptionalJSON(r, &req); err != nil {
		h.writeError(w, "StartSession", err)
		return
	}

	session, err := h.sessions.Start(r.Context(), model.SessionStart{
		DashboardID: ps.ByName("dashboard_id"),
		UserID:      identity.UserID,
		UserName:    identity.UserName,
		UserEmail:   req.UserEmail,
		ClientInfo:  req.ClientInfo,
	})
	if err != nil {
		h.writeError(w, "StartSession", err)
		return
	}

	h.writeSuccess(w, "StartSession", toSessionResponse(session, nil))
}

func (h *CollaborationHandler) SessionHeartbeat(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	identity, ok := h.identity(w, r, "SessionHeartbeat")
	if !ok {
		return
	}

	result, err := h.sessions.Heartbeat(r.Context(), ps.ByName("dashboard_id"), identity.UserID)
	if err != nil {
		h.writeError(w, "SessionHeartbeat", err)
		return
	}
	if result.Outcome == service.OutcomeNotFound {
		h.writeError(w, "SessionHeartbeat", apperrors.NotFound("Editing session"))
		return
	}

	h.writeSuccess(w, "SessionHeartbeat", toSessionResponse(result.Session, nil))
}

func (h *CollaborationHandler) StopSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	identity, ok := h.identity(w, r, "StopSession")
	if !ok {
		return
	}

	dashboardID := ps.ByName("dashboard_id")
	if err := h.sessions.Stop(r.Context(), dashboardID, identity.UserID); err != nil {
		h.writeError(w, "StopSession", err)
		return
	}

	h.writeSuccess(w, "StopSession", map[string]string{
		"dashboard_id": dashboardID,
		"message":      "Editing session stopped",
	})
}

func (h *CollaborationHandler) AcquireLock(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	identity, ok := h.identity(w, r, "AcquireLock")
	if !ok {
		return
	}
	// Lock ownership can change within a TTL; never replay this answer.
	w.Header().Set("Cache-Control", "no-store")

	var req acquireLockRequest
	if err := httputil.DecodeOptionalJSON(r, &req); err != nil {
		h.writeError(w, "AcquireLock", err)
		return
	}

	if req.LockDuration < 0 || int64(req.LockDuration) > maxLockDurationSeconds {
		h.writeError(w, "AcquireLock", apperrors.Validation("Invalid lock duration", map[string]any{
			"lock_duration": "must be between the minimum and maximum lock duration",
		}))
		return
	}

	result, err := h.locks.Acquire(r.Context(), service.AcquireRequest{
		DashboardID: ps.ByName("dashboard_id"),
		WidgetID:    ps.ByName("widget_id"),
		UserID:      identity.UserID,
		UserName:    identity.UserName,
		TTL:         time.Duration(req.LockDuration) * time.Second,
	})
	if err != nil {
		h.writeError(w, "AcquireLock", err)
		return
	}
	if result.Outcome == service.OutcomeConflict {
		h.writeError(w, "AcquireLock", apperrors.Conflict(
			fmt.Sprintf("Widget is locked by %s", result.Conflict.OwnerUserName),
		).WithDetails(conflictDetails(result.Conflict)))
		return
	}

	h.writeSuccess(w, "AcquireLock", toLockResponse(result.Lock, result.Lock.LastHeartbeat))
}

func (h *CollaborationHandler) LockHeartbeat(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	identity, ok := h.identity(w, r, "LockHeartbeat")
	if !ok {
		return
	}
	// Lock ownership can change within a TTL; never replay this answer.
	w.Header().Set("Cache-Control", "no-store")

	result, err := h.locks.Heartbeat(r.Context(), ps.ByName("dashboard_id"), ps.ByName("widget_id"), identity.UserID)
	if err != nil {
		h.writeError(w, "LockHeartbeat", err)
		return
	}

	switch result.Outcome {
	case service.OutcomeNotFound:
		h.writeError(w, "LockHeartbeat", apperrors.NotFound("Widget lock"))
	case service.OutcomeNotOwner:
		h.writeError(w, "LockHeartbeat", apperrors.NotOwner("Widget lock is held by another user").
			WithDetails(conflictDetails(result.Owner)))
	default:
		h.writeSuccess(w, "LockHeartbeat", toLockResponse(result.Lock, result.Lock.LastHeartbeat))
	}
}

func (h *CollaborationHandler) ReleaseLock(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	identity, ok := h.identity(w, r, "ReleaseLock")
	if !ok {
		return
	}

	dashboardID, widgetID := ps.ByName("dashboard_id"), ps.ByName("widget_id")
	result, err := h.locks.Release(r.Context(), dashboardID, widgetID, identity.UserID)
	if err != nil {
		h.writeError(w, "ReleaseLock", err)
		return
	}
	if result.Outcome == service.OutcomeNotOwner {
		h.writeError(w, "ReleaseLock", apperrors.NotOwner("You don't own this widget lock").
			WithDetails(conflictDetails(result.Owner)))
		return
	}

	h.writeSuccess(w, "ReleaseLock", map[string]string{
		"dashboard_id": dashboardID,
		"widget_id":    widgetID,
		"message":      "Widget lock released",
	})
}

func (h *CollaborationHandler) LockStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	identity, ok := h.identity(w, r, "LockStatus")
	if !ok {
		return
	}

	status, err := h.locks.Status(r.Context(), ps.ByName("dashboard_id"), ps.ByName("widget_id"), identity.UserID)
	if err != nil {
		h.writeError(w, "LockStatus", err)
		return
	}

	h.writeSuccess(w, "LockStatus", toLockStatusResponse(status))
}

func (h *CollaborationHandler) ActiveSessions(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if _, ok := h.identity(w, r, "ActiveSessions"); !ok {
		return
	}

	presence, err := h.presence.Snapshot(r.Context(), ps.ByName("dashboard_id"))
	if err != nil {
		h.writeError(w, "ActiveSessions", err)
		return
	}

	h.writeSuccess(w, "ActiveSessions", toPresenceResponse(presence))
}

func (h *CollaborationHandler) CleanupStale(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	identity, ok := h.identity(w, r, "CleanupStale")
	if !ok {
		return
	}

	result, err := h.sweeper.RunOnce(r.Context())
	if err != nil {
		h.writeError(w, "CleanupStale", apperrors.Unavailable("Collaboration store", err))
		return
	}

	h.log.Info("Manual cleanup finished",
		"user_id", identity.UserID,
		"expired_sessions", result.ExpiredSessions,
		"expired_locks", result.ExpiredLocks,
	)
	h.writeSuccess(w, "CleanupStale", cleanupResponse{
		CleanedSessions: result.ExpiredSessions,
		CleanedLocks:    result.ExpiredLocks,
		Message:         fmt.Sprintf("Cleaned up %d sessions and %d locks", result.ExpiredSessions, result.ExpiredLocks),
	})
}

func (h *CollaborationHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST(BasePath+"/dashboards/:dashboard_id/edit/start", h.StartSession)
	router.POST(BasePath+"/dashboards/:dashboard_id/edit/heartbeat", h.SessionHeartbeat)
	router.POST(BasePath+"/dashboards/:dashboard_id/edit/stop", h.StopSession)
	router.POST(BasePath+"/dashboards/:dashboard_id/widgets/:widget_id/lock", h.AcquireLock)
	router.DELETE(BasePath+"/dashboards/:dashboard_id/widgets/:widget_id/lock", h.ReleaseLock)
	router.POST(BasePath+"/dashboards/:dashboard_id/widgets/:widget_id/heartbeat", h.LockHeartbeat)
	router.GET(BasePath+"/dashboards/:dashboard_id/widgets/:widget_id/status", h.LockStatus)
	router.GET(BasePath+"/dashboards/:dashboard_id/active-sessions", h.ActiveSessions)
	router.POST(BasePath+"/cleanup/stale-sessions", h.CleanupStale)
}

func (h *CollaborationHandler) identity(w http.ResponseWriter, r *http.Request, handler string) (middleware.Identity, bool) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		h.writeError(w, handler, apperrors.Unauthorized("Missing caller identity"))
	}
	return identity, ok
}

func (h *CollaborationHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *CollaborationHandler) writeSuccess(w http.ResponseWriter, handler string, data any) {
	if err := httputil.WriteSuccess(w, data); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}
