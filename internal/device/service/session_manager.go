package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bloggers-platform/backend/internal/audit"
	"bloggers-platform/backend/internal/autherr"
	"bloggers-platform/backend/internal/device/domain"
	policyengine "bloggers-platform/backend/internal/policy/engine"
	"bloggers-platform/backend/internal/security"
	"bloggers-platform/backend/internal/telemetry"
)

var tracer = otel.Tracer("bloggers-platform/device")

// maxIssuedAtLead bounds how far ahead of the clock a rotated iat may be pushed.
const maxIssuedAtLead = time.Minute

// SessionRepo is the device session store needed by the session manager.
type SessionRepo interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, deviceID string) (*domain.Session, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	Touch(ctx context.Context, deviceID string, lastActiveAt time.Time, prevTokenID, tokenID string) (bool, error)
	Delete(ctx context.Context, deviceID string) (bool, error)
	DeleteAllExcept(ctx context.Context, userID, keepDeviceID string) (int64, error)
}

// Tokens is a freshly minted access and refresh token pair bound to one device.
type Tokens struct {
	AccessToken      string
	RefreshToken     string
	DeviceID         string
	IssuedAt         time.Time
	RefreshExpiresAt time.Time
}

// Option configures a SessionManager.
type Option func(*SessionManager)

// WithPolicy sets the evaluator consulted before revoking a device. Defaults to owner-only.
func WithPolicy(p policyengine.Evaluator) Option {
	return func(m *SessionManager) { m.policy = p }
}

// WithAuditLogger sets the audit sink.
func WithAuditLogger(a audit.AuditLogger) Option {
	return func(m *SessionManager) { m.audit = a }
}

// WithEventEmitter sets where session lifecycle events are published.
func WithEventEmitter(e telemetry.EventEmitter) Option {
	return func(m *SessionManager) { m.events = e }
}

// WithStrictRotation makes refresh, logout and revoke-others accept only the most recently issued
// refresh token of a device, and makes rotation a compare-and-swap on that token so concurrent
// refreshes of one token yield a single winner. Off by default: any unexpired token of a live device
// is accepted.
func WithStrictRotation(strict bool) Option {
	return func(m *SessionManager) { m.strictRotation = strict }
}

// WithClock overrides time.Now; used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *SessionManager) { m.now = now }
}

// SessionManager owns the device session lifecycle: NoSession -> Active -> Revoked.
// Expiry is never swept; it is evaluated when a token is presented.
type SessionManager struct {
	sessions       SessionRepo
	tokens         *security.TokenProvider
	policy         policyengine.Evaluator
	audit          audit.AuditLogger
	events         telemetry.EventEmitter
	strictRotation bool
	now            func() time.Time
}

// NewSessionManager returns a SessionManager over the given store and token provider.
func NewSessionManager(sessions SessionRepo, tokens *security.TokenProvider, opts ...Option) *SessionManager {
	m := &SessionManager{
		sessions: sessions,
		tokens:   tokens,
		policy:   policyengine.OwnerOnly{},
		audit:    audit.Nop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Login creates a new device session for principalID and returns its first token pair.
// Every login is a new device, even for the same client.
func (m *SessionManager) Login(ctx context.Context, principalID, ip, title string) (_ *Tokens, err error) {
	ctx, span := tracer.Start(ctx, "SessionManager.Login", trace.WithAttributes(attribute.String("user.id", principalID)))
	defer func() { m.finish(span, "login", err) }()

	deviceID := uuid.NewString()
	tokens, refresh, err := m.issue(principalID, deviceID, m.now().UTC())
	if err != nil {
		return nil, err
	}
	session := &domain.Session{
		DeviceID:      deviceID,
		UserID:        principalID,
		IP:            ip,
		Title:         title,
		IssuedAt:      refresh.IssuedAt,
		LastActiveAt:  refresh.IssuedAt,
		WindowSeconds: int64(m.tokens.RefreshTTL() / time.Second),
		LastTokenID:   refresh.ID,
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("device.id", deviceID))

	telemetry.RecordSessionChange(telemetry.ChangeCreated, 1)
	m.audit.LogEvent(ctx, principalID, audit.ActionLogin, audit.ResourceSession, deviceMeta(deviceID, nil))
	m.emit(ctx, telemetry.EventLogin, session)
	return tokens, nil
}

// Refresh rotates the pair: same device id, fresh iat and exp. Fails with ErrInvalidToken when the
// token does not verify or its device session is gone.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (_ *Tokens, err error) {
	ctx, span := tracer.Start(ctx, "SessionManager.Refresh")
	defer func() { m.finish(span, "refresh", err) }()

	claims, session, err := m.resolve(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("device.id", session.DeviceID))

	// iat has second granularity; keep it strictly increasing per device. Each refresh inside the same
	// second pushes iat one second past the clock, so the lead grows with the refresh rate.
	now := m.now().UTC()
	issuedAt := now.Truncate(time.Second)
	if !issuedAt.After(session.LastActiveAt) {
		issuedAt = session.LastActiveAt.Truncate(time.Second).Add(time.Second)
	}
	if issuedAt.Sub(now) > maxIssuedAtLead {
		log.Warn().Str("device_id", session.DeviceID).Time("issued_at", issuedAt).Msg("refresh rate exceeds iat resolution")
		return nil, autherr.ErrInvalidToken
	}
	tokens, refresh, err := m.issue(claims.PrincipalID(), session.DeviceID, issuedAt)
	if err != nil {
		return nil, err
	}
	var prevTokenID string
	if m.strictRotation {
		prevTokenID = session.LastTokenID
	}
	ok, err := m.sessions.Touch(ctx, session.DeviceID, refresh.IssuedAt, prevTokenID, refresh.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// revoked, or rotated by a concurrent refresh of the same token
		return nil, autherr.ErrInvalidToken
	}
	session.LastActiveAt = refresh.IssuedAt

	telemetry.RecordSessionChange(telemetry.ChangeRotated, 1)
	m.audit.LogEvent(ctx, session.UserID, audit.ActionRefresh, audit.ResourceSession, deviceMeta(session.DeviceID, nil))
	m.emit(ctx, telemetry.EventRefresh, session)
	return tokens, nil
}

// Logout deletes the device session the refresh token is bound to.
func (m *SessionManager) Logout(ctx context.Context, refreshToken string) (err error) {
	ctx, span := tracer.Start(ctx, "SessionManager.Logout")
	defer func() { m.finish(span, "logout", err) }()

	_, session, err := m.resolve(ctx, refreshToken)
	if err != nil {
		return err
	}
	deleted, err := m.sessions.Delete(ctx, session.DeviceID)
	if err != nil {
		return err
	}
	if !deleted {
		return autherr.ErrInvalidToken
	}

	telemetry.RecordSessionChange(telemetry.ChangeRevoked, 1)
	m.audit.LogEvent(ctx, session.UserID, audit.ActionLogout, audit.ResourceSession, deviceMeta(session.DeviceID, nil))
	m.emit(ctx, telemetry.EventLogout, session)
	return nil
}

// RevokeDevice deletes deviceID on behalf of requesterID. ErrNotFound when the device does not exist,
// ErrForbidden when the policy denies it (by default: the device belongs to someone else).
func (m *SessionManager) RevokeDevice(ctx context.Context, deviceID, requesterID string) (err error) {
	ctx, span := tracer.Start(ctx, "SessionManager.RevokeDevice", trace.WithAttributes(
		attribute.String("device.id", deviceID),
		attribute.String("user.id", requesterID),
	))
	defer func() { m.finish(span, "revoke_device", err) }()

	session, err := m.sessions.GetByID(ctx, deviceID)
	if err != nil {
		return err
	}
	if session == nil {
		return autherr.ErrNotFound
	}
	allowed, err := m.policy.AllowRevoke(ctx, requesterID, session)
	if err != nil {
		log.Warn().Err(err).Str("device_id", deviceID).Msg("device revoke: policy error, denying")
		return autherr.ErrForbidden
	}
	if !allowed {
		return autherr.ErrForbidden
	}
	deleted, err := m.sessions.Delete(ctx, deviceID)
	if err != nil {
		return err
	}
	if !deleted {
		return autherr.ErrNotFound
	}

	telemetry.RecordSessionChange(telemetry.ChangeRevoked, 1)
	m.audit.LogEvent(ctx, requesterID, audit.ActionDeviceRevoke, audit.ResourceDevice, deviceMeta(deviceID, nil))
	m.emit(ctx, telemetry.EventDeviceRevoked, session)
	return nil
}

// RevokeAllExceptCurrent deletes every other device of the token's principal and returns how many went.
func (m *SessionManager) RevokeAllExceptCurrent(ctx context.Context, refreshToken string) (_ int64, err error) {
	ctx, span := tracer.Start(ctx, "SessionManager.RevokeAllExceptCurrent")
	defer func() { m.finish(span, "revoke_others", err) }()

	_, session, err := m.resolve(ctx, refreshToken)
	if err != nil {
		return 0, err
	}
	n, err := m.sessions.DeleteAllExcept(ctx, session.UserID, session.DeviceID)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int64("devices.revoked", n))

	telemetry.RecordSessionChange(telemetry.ChangeRevoked, n)
	m.audit.LogEvent(ctx, session.UserID, audit.ActionDevicesRevokeOthers, audit.ResourceDevice,
		deviceMeta(session.DeviceID, map[string]any{"revoked": n}))
	m.emit(ctx, telemetry.EventDevicesRevoked, session)
	return n, nil
}

// CurrentSession returns the live device session a refresh token belongs to, or ErrInvalidToken.
func (m *SessionManager) CurrentSession(ctx context.Context, refreshToken string) (*domain.Session, error) {
	_, session, err := m.resolve(ctx, refreshToken)
	return session, err
}

// ListDevices returns the principal's live device sessions, most recently active first.
func (m *SessionManager) ListDevices(ctx context.Context, principalID string) (_ []*domain.Session, err error) {
	ctx, span := tracer.Start(ctx, "SessionManager.ListDevices", trace.WithAttributes(attribute.String("user.id", principalID)))
	defer func() { endSpan(span, err) }()

	all, err := m.sessions.ListByUser(ctx, principalID)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	live := make([]*domain.Session, 0, len(all))
	for _, s := range all {
		if !s.Expired(now) {
			live = append(live, s)
		}
	}
	return live, nil
}

// resolve verifies the refresh token and loads the device session it is bound to.
func (m *SessionManager) resolve(ctx context.Context, refreshToken string) (*security.RefreshClaims, *domain.Session, error) {
	claims, err := m.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, nil, autherr.ErrInvalidToken
	}
	session, err := m.sessions.GetByID(ctx, claims.DeviceID)
	if err != nil {
		return nil, nil, err
	}
	if session == nil || session.UserID != claims.PrincipalID() || session.Expired(m.now().UTC()) {
		return nil, nil, autherr.ErrInvalidToken
	}
	if m.strictRotation && session.LastTokenID != "" && session.LastTokenID != claims.ID {
		log.Warn().Str("device_id", session.DeviceID).Msg("refresh token superseded by rotation")
		return nil, nil, autherr.ErrInvalidToken
	}
	return claims, session, nil
}

func (m *SessionManager) issue(principalID, deviceID string, issuedAt time.Time) (*Tokens, security.IssuedToken, error) {
	refresh, err := m.tokens.IssueRefresh(principalID, deviceID, issuedAt)
	if err != nil {
		return nil, security.IssuedToken{}, err
	}
	access, err := m.tokens.IssueAccess(principalID, refresh.IssuedAt)
	if err != nil {
		return nil, security.IssuedToken{}, err
	}
	return &Tokens{
		AccessToken:      access.Token,
		RefreshToken:     refresh.Token,
		DeviceID:         deviceID,
		IssuedAt:         refresh.IssuedAt,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, refresh, nil
}

func (m *SessionManager) emit(ctx context.Context, eventType string, s *domain.Session) {
	telemetry.EmitAsync(m.events, ctx, &telemetry.SessionEvent{
		EventType: eventType,
		UserID:    s.UserID,
		DeviceID:  s.DeviceID,
		IP:        s.IP,
		Source:    "sessions",
		CreatedAt: m.now().UTC(),
	})
}

func (m *SessionManager) finish(span trace.Span, operation string, err error) {
	telemetry.RecordOperation(operation, telemetry.OutcomeOf(err))
	endSpan(span, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil && !isExpected(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// isExpected reports caller-facing outcomes that are not service faults.
func isExpected(err error) bool {
	return errors.Is(err, autherr.ErrInvalidToken) ||
		errors.Is(err, autherr.ErrNotFound) ||
		errors.Is(err, autherr.ErrForbidden)
}

func deviceMeta(deviceID string, extra map[string]any) string {
	meta := map[string]any{"deviceId": deviceID}
	for k, v := range extra {
		meta[k] = v
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return ""
	}
	return string(b)
}
