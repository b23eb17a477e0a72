// Package handler serves GET /dev/codes. Registered only when dev codes are enabled outside production.
package handler

import (
	"net/http"
	"strings"

	"bloggers-platform/backend/internal/devcodes"
	"bloggers-platform/backend/internal/server/httpapi"
)

// Handler returns the latest captured code for an email.
type Handler struct {
	store devcodes.Store
}

// NewHandler returns the dev code handler over store.
func NewHandler(store devcodes.Store) *Handler {
	return &Handler{store: store}
}

// Register wires the route onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /dev/codes", h.handleGet)
}

type codeResponse struct {
	Code string `json:"code"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	kind := devcodes.Kind(strings.TrimSpace(r.URL.Query().Get("kind")))
	if kind == "" {
		kind = devcodes.KindConfirmation
	}
	if !kind.Valid() {
		httpapi.WriteFieldError(w, "kind", "kind must be confirmation or recovery")
		return
	}
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		httpapi.WriteFieldError(w, "email", "email is required")
		return
	}
	code, ok := h.store.Get(r.Context(), kind, email)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, codeResponse{Code: code})
}
