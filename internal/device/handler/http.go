// Package handler exposes device session listing and revocation under /security/devices.
package handler

import (
	"context"
	"net/http"

	"bloggers-platform/backend/internal/device/domain"
	"bloggers-platform/backend/internal/server/httpapi"
)

// SessionManager is the part of *service.SessionManager the device routes use.
type SessionManager interface {
	CurrentSession(ctx context.Context, refreshToken string) (*domain.Session, error)
	ListDevices(ctx context.Context, principalID string) ([]*domain.Session, error)
	RevokeDevice(ctx context.Context, deviceID, requesterID string) error
	RevokeAllExceptCurrent(ctx context.Context, refreshToken string) (int64, error)
}

// Handler serves the device routes. All of them authenticate with the refresh token cookie.
type Handler struct {
	sessions SessionManager
	cookies  httpapi.Cookies
}

// NewHandler returns the device handler.
func NewHandler(sessions SessionManager, cookies httpapi.Cookies) *Handler {
	return &Handler{sessions: sessions, cookies: cookies}
}

// Register wires the device routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /security/devices", h.handleList)
	mux.HandleFunc("DELETE /security/devices", h.handleRevokeOthers)
	mux.HandleFunc("DELETE /security/devices/{deviceId}", h.handleRevoke)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	current, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	sessions, err := h.sessions.ListDevices(r.Context(), current.UserID)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	views := make([]domain.View, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, s.ToView())
	}
	httpapi.WriteJSON(w, http.StatusOK, views)
}

func (h *Handler) handleRevokeOthers(w http.ResponseWriter, r *http.Request) {
	if _, err := h.sessions.RevokeAllExceptCurrent(r.Context(), h.cookies.Refresh(r)); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	current, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	if err := h.sessions.RevokeDevice(r.Context(), r.PathValue("deviceId"), current.UserID); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// currentSession resolves the refresh cookie to a live device session; failures are written to w.
func (h *Handler) currentSession(w http.ResponseWriter, r *http.Request) (*domain.Session, bool) {
	session, err := h.sessions.CurrentSession(r.Context(), h.cookies.Refresh(r))
	if err != nil {
		httpapi.WriteError(w, r, err)
		return nil, false
	}
	return session, true
}
