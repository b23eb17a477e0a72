// Package handler exposes registration, recovery and login over HTTP under /auth.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"bloggers-platform/backend/internal/autherr"
	deviceservice "bloggers-platform/backend/internal/device/service"
	"bloggers-platform/backend/internal/ratelimit"
	"bloggers-platform/backend/internal/server/httpapi"
	"bloggers-platform/backend/internal/server/middleware"
	userdomain "bloggers-platform/backend/internal/user/domain"
)

const unknownDevice = "unknown device"

// RegistrationFlow is implemented by *service.Registration.
type RegistrationFlow interface {
	Register(ctx context.Context, email, login, password string) error
	Confirm(ctx context.Context, code string) error
	Resend(ctx context.Context, email string) error
}

// RecoveryFlow is implemented by *service.Recovery.
type RecoveryFlow interface {
	RequestRecovery(ctx context.Context, email string) error
	ApplyNewPassword(ctx context.Context, newPassword, code string) error
}

// Authenticator is implemented by *service.Authenticator.
type Authenticator interface {
	Authenticate(ctx context.Context, loginOrEmail, password string) (*userdomain.User, error)
	Me(ctx context.Context, principalID string) (*userdomain.User, error)
}

// Sessions is the part of the session manager the auth routes use.
type Sessions interface {
	Login(ctx context.Context, principalID, ip, title string) (*deviceservice.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*deviceservice.Tokens, error)
	Logout(ctx context.Context, refreshToken string) error
}

// Handler serves the /auth routes.
type Handler struct {
	registration RegistrationFlow
	recovery     RecoveryFlow
	auth         Authenticator
	sessions     Sessions
	tokens       middleware.AccessValidator
	cookies      httpapi.Cookies
	limiter      ratelimit.Limiter
}

// Option configures a Handler.
type Option func(*Handler)

// WithRateLimiter throttles the anonymous credential routes per client IP.
func WithRateLimiter(l ratelimit.Limiter) Option {
	return func(h *Handler) { h.limiter = l }
}

// NewHandler returns the /auth handler.
func NewHandler(
	registration RegistrationFlow,
	recovery RecoveryFlow,
	auth Authenticator,
	sessions Sessions,
	tokens middleware.AccessValidator,
	cookies httpapi.Cookies,
	opts ...Option,
) *Handler {
	h := &Handler{
		registration: registration,
		recovery:     recovery,
		auth:         auth,
		sessions:     sessions,
		tokens:       tokens,
		cookies:      cookies,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register wires the auth routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /auth/registration", h.throttle("registration", h.handleRegistration))
	mux.Handle("POST /auth/registration-confirmation", h.throttle("registration-confirmation", h.handleConfirmation))
	mux.Handle("POST /auth/registration-email-resending", h.throttle("registration-email-resending", h.handleResend))
	mux.Handle("POST /auth/login", h.throttle("login", h.handleLogin))
	mux.HandleFunc("POST /auth/refresh-token", h.handleRefresh)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.Handle("POST /auth/password-recovery", h.throttle("password-recovery", h.handlePasswordRecovery))
	mux.Handle("POST /auth/new-password", h.throttle("new-password", h.handleNewPassword))
	mux.Handle("GET /auth/me", middleware.RequireBearer(h.tokens, http.HandlerFunc(h.handleMe)))
}

func (h *Handler) throttle(route string, fn http.HandlerFunc) http.Handler {
	return middleware.RateLimit(h.limiter, route, fn)
}

type registrationRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type confirmationRequest struct {
	Code string `json:"code"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type loginRequest struct {
	LoginOrEmail string `json:"loginOrEmail"`
	Password     string `json:"password"`
}

type newPasswordRequest struct {
	NewPassword  string `json:"newPassword"`
	RecoveryCode string `json:"recoveryCode"`
}

type accessTokenResponse struct {
	AccessToken string `json:"accessToken"`
}

type meResponse struct {
	Email  string `json:"email"`
	Login  string `json:"login"`
	UserID string `json:"userId"`
}

func (h *Handler) handleRegistration(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if err := httpapi.DecodeJSON(w, r, &req); err != nil {
		httpapi.WriteFieldError(w, "body", "invalid request body")
		return
	}
	if err := h.registration.Register(r.Context(), req.Email, req.Login, req.Password); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleConfirmation(w http.ResponseWriter, r *http.Request) {
	var req confirmationRequest
	if err := httpapi.DecodeJSON(w, r, &req); err != nil {
		httpapi.WriteFieldError(w, "code", "code is required")
		return
	}
	err := h.registration.Confirm(r.Context(), req.Code)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, autherr.ErrInvalidCode):
		httpapi.WriteFieldError(w, "code", "code is incorrect or expired")
	case errors.Is(err, autherr.ErrAlreadyConfirmed):
		httpapi.WriteFieldError(w, "code", "email is already confirmed")
	case errors.Is(err, autherr.ErrStateConflict):
		httpapi.WriteFieldError(w, "code", "confirmation is already in progress")
	default:
		httpapi.WriteError(w, r, err)
	}
}

func (h *Handler) handleResend(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := httpapi.DecodeJSON(w, r, &req); err != nil {
		httpapi.WriteFieldError(w, "email", "email is required")
		return
	}
	err := h.registration.Resend(r.Context(), req.Email)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, autherr.ErrNotFound):
		httpapi.WriteFieldError(w, "email", "user with this email does not exist")
	case errors.Is(err, autherr.ErrAlreadyConfirmed):
		httpapi.WriteFieldError(w, "email", "email is already confirmed")
	default:
		httpapi.WriteError(w, r, err)
	}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpapi.DecodeJSON(w, r, &req); err != nil {
		httpapi.WriteFieldError(w, "loginOrEmail", "loginOrEmail and password are required")
		return
	}
	user, err := h.auth.Authenticate(r.Context(), req.LoginOrEmail, req.Password)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	tokens, err := h.sessions.Login(r.Context(), user.ID, middleware.ClientIP(r.Context()), deviceTitle(r))
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	h.writeTokens(w, tokens)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.sessions.Refresh(r.Context(), h.cookies.Refresh(r))
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	h.writeTokens(w, tokens)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context(), h.cookies.Refresh(r)); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	h.cookies.ClearRefresh(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePasswordRecovery(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := httpapi.DecodeJSON(w, r, &req); err != nil {
		httpapi.WriteFieldError(w, "email", "email is required")
		return
	}
	if err := h.recovery.RequestRecovery(r.Context(), req.Email); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleNewPassword(w http.ResponseWriter, r *http.Request) {
	var req newPasswordRequest
	if err := httpapi.DecodeJSON(w, r, &req); err != nil {
		httpapi.WriteFieldError(w, "newPassword", "newPassword and recoveryCode are required")
		return
	}
	err := h.recovery.ApplyNewPassword(r.Context(), req.NewPassword, req.RecoveryCode)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, autherr.ErrInvalidCode):
		httpapi.WriteFieldError(w, "recoveryCode", "recovery code is incorrect or expired")
	default:
		httpapi.WriteError(w, r, err)
	}
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	principalID, ok := middleware.PrincipalID(r.Context())
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	user, err := h.auth.Me(r.Context(), principalID)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, meResponse{Email: user.Email, Login: user.Login, UserID: user.ID})
}

func (h *Handler) writeTokens(w http.ResponseWriter, tokens *deviceservice.Tokens) {
	h.cookies.SetRefresh(w, tokens.RefreshToken, tokens.RefreshExpiresAt)
	httpapi.WriteJSON(w, http.StatusOK, accessTokenResponse{AccessToken: tokens.AccessToken})
}

// deviceTitle is the User-Agent as valid UTF-8, cut to at most maxTitle bytes on a rune boundary.
func deviceTitle(r *http.Request) string {
	ua := strings.TrimSpace(strings.ToValidUTF8(r.UserAgent(), ""))
	if ua == "" {
		return unknownDevice
	}
	const maxTitle = 255
	if len(ua) > maxTitle {
		n := maxTitle
		for n > 0 && !utf8.RuneStart(ua[n]) {
			n--
		}
		ua = ua[:n]
	}
	return ua
}
