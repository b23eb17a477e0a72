package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bloggers-platform/backend/internal/autherr"
	"bloggers-platform/backend/internal/device/domain"
	"bloggers-platform/backend/internal/device/repository"
	"bloggers-platform/backend/internal/security"
	"bloggers-platform/backend/internal/telemetry"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type auditEntry struct {
	userID, action, resource, metadata string
}

type captureAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *captureAudit) LogEvent(_ context.Context, userID, action, resource, metadata string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{userID, action, resource, metadata})
}

func (a *captureAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.action)
	}
	return out
}

type captureEmitter struct {
	mu     sync.Mutex
	events []*telemetry.SessionEvent
}

func (e *captureEmitter) Emit(_ context.Context, ev *telemetry.SessionEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *captureEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

type staticPolicy struct {
	allow bool
	err   error
}

func (p staticPolicy) AllowRevoke(context.Context, string, *domain.Session) (bool, error) {
	return p.allow, p.err
}

type failingRepo struct {
	*repository.MemoryRepository
	err error
}

func (r failingRepo) GetByID(context.Context, string) (*domain.Session, error) { return nil, r.err }

// lockstepRepo holds every GetByID until all expected readers have loaded the session.
type lockstepRepo struct {
	*repository.MemoryRepository
	readers *sync.WaitGroup
}

func (r lockstepRepo) GetByID(ctx context.Context, deviceID string) (*domain.Session, error) {
	s, err := r.MemoryRepository.GetByID(ctx, deviceID)
	r.readers.Done()
	r.readers.Wait()
	return s, err
}

type harness struct {
	mgr    *SessionManager
	repo   *repository.MemoryRepository
	tokens *security.TokenProvider
	clock  *fakeClock
	audit  *captureAudit
	events *captureEmitter
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	h := &harness{
		repo:   repository.NewMemoryRepository(),
		tokens: tokens,
		clock:  &fakeClock{now: time.Now().UTC().Truncate(time.Second)},
		audit:  &captureAudit{},
		events: &captureEmitter{},
	}
	base := []Option{
		WithClock(h.clock.Now),
		WithAuditLogger(h.audit),
		WithEventEmitter(h.events),
	}
	h.mgr = NewSessionManager(h.repo, tokens, append(base, opts...)...)
	return h
}

func (h *harness) login(t *testing.T, userID string) *Tokens {
	t.Helper()
	pair, err := h.mgr.Login(context.Background(), userID, "10.0.0.1", "Mozilla/5.0")
	require.NoError(t, err)
	return pair
}

func TestLogin_CreatesDeviceSession(t *testing.T) {
	h := newHarness(t)
	pair := h.login(t, "user-1")

	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, h.clock.Now(), pair.IssuedAt)
	assert.Equal(t, h.clock.Now().Add(20*24*time.Hour), pair.RefreshExpiresAt)

	claims, err := h.tokens.ValidateRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, pair.DeviceID, claims.DeviceID)
	assert.Equal(t, "user-1", claims.PrincipalID())

	access, err := h.tokens.ValidateAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", access.PrincipalID())

	s, err := h.repo.GetByID(context.Background(), pair.DeviceID)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "user-1", s.UserID)
	assert.Equal(t, "10.0.0.1", s.IP)
	assert.Equal(t, "Mozilla/5.0", s.Title)
	assert.Equal(t, pair.IssuedAt, s.LastActiveAt)
	assert.Equal(t, claims.ID, s.LastTokenID)
	assert.Equal(t, int64(20*24*3600), s.WindowSeconds)

	assert.Equal(t, []string{"login"}, h.audit.actions())
	assert.Eventually(t, func() bool { return h.events.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestLogin_EachLoginIsNewDevice(t *testing.T) {
	h := newHarness(t)
	a := h.login(t, "user-1")
	b := h.login(t, "user-1")
	assert.NotEqual(t, a.DeviceID, b.DeviceID)

	list, err := h.mgr.ListDevices(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestRefresh_KeepsDeviceAndAdvancesIssuedAt(t *testing.T) {
	h := newHarness(t)
	first := h.login(t, "user-1")

	// same second: iat must still move forward
	second, err := h.mgr.Refresh(context.Background(), first.RefreshToken)
	require.NoError(t, err)
	third, err := h.mgr.Refresh(context.Background(), second.RefreshToken)
	require.NoError(t, err)

	assert.Equal(t, first.DeviceID, second.DeviceID)
	assert.Equal(t, first.DeviceID, third.DeviceID)
	assert.True(t, second.IssuedAt.After(first.IssuedAt))
	assert.True(t, third.IssuedAt.After(second.IssuedAt))

	c1, err := h.tokens.ValidateRefresh(first.RefreshToken)
	require.NoError(t, err)
	c3, err := h.tokens.ValidateRefresh(third.RefreshToken)
	require.NoError(t, err)
	assert.True(t, c3.IssuedAtTime().After(c1.IssuedAtTime()))
	assert.Equal(t, c1.DeviceID, c3.DeviceID)

	s, err := h.repo.GetByID(context.Background(), first.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, third.IssuedAt, s.LastActiveAt)
	assert.Equal(t, c3.ID, s.LastTokenID)
}

func TestRefresh_UsesClockWhenAhead(t *testing.T) {
	h := newHarness(t)
	first := h.login(t, "user-1")
	h.clock.Advance(time.Minute)

	next, err := h.mgr.Refresh(context.Background(), first.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, first.IssuedAt.Add(time.Minute), next.IssuedAt)
}

func TestRefresh_InvalidToken(t *testing.T) {
	h := newHarness(t)
	for _, token := range []string{"", "not-a-jwt"} {
		_, err := h.mgr.Refresh(context.Background(), token)
		assert.ErrorIs(t, err, autherr.ErrInvalidToken, "token %q", token)
	}
}

func TestRefresh_AccessTokenRejected(t *testing.T) {
	h := newHarness(t)
	pair := h.login(t, "user-1")
	_, err := h.mgr.Refresh(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, autherr.ErrInvalidToken)
}

func TestRefresh_ExpiredSession(t *testing.T) {
	h := newHarness(t)
	pair := h.login(t, "user-1")

	s, err := h.repo.GetByID(context.Background(), pair.DeviceID)
	require.NoError(t, err)
	s.WindowSeconds = 60
	require.NoError(t, h.repo.Create(context.Background(), s))
	h.clock.Advance(2 * time.Minute)

	_, err = h.mgr.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, autherr.ErrInvalidToken)

	list, err := h.mgr.ListDevices(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRefresh_OldTokenAcceptedWithoutStrictRotation(t *testing.T) {
	h := newHarness(t)
	first := h.login(t, "user-1")
	_, err := h.mgr.Refresh(context.Background(), first.RefreshToken)
	require.NoError(t, err)

	_, err = h.mgr.Refresh(context.Background(), first.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_StrictRotationRejectsSupersededToken(t *testing.T) {
	h := newHarness(t, WithStrictRotation(true))
	first := h.login(t, "user-1")
	second, err := h.mgr.Refresh(context.Background(), first.RefreshToken)
	require.NoError(t, err)

	_, err = h.mgr.Refresh(context.Background(), first.RefreshToken)
	assert.ErrorIs(t, err, autherr.ErrInvalidToken)
	assert.ErrorIs(t, h.mgr.Logout(context.Background(), first.RefreshToken), autherr.ErrInvalidToken)

	_, err = h.mgr.Refresh(context.Background(), second.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_StrictRotationSingleWinner(t *testing.T) {
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	readers := &sync.WaitGroup{}
	repo := lockstepRepo{MemoryRepository: repository.NewMemoryRepository(), readers: readers}
	mgr := NewSessionManager(repo, tokens, WithStrictRotation(true))

	pair, err := mgr.Login(context.Background(), "user-1", "", "")
	require.NoError(t, err)

	readers.Add(2)
	errs := make([]error, 2)
	var done sync.WaitGroup
	for i := range errs {
		done.Add(1)
		go func(i int) {
			defer done.Done()
			_, errs[i] = mgr.Refresh(context.Background(), pair.RefreshToken)
		}(i)
	}
	done.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, autherr.ErrInvalidToken):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)
}

func TestRefresh_IssuedAtLeadIsCapped(t *testing.T) {
	h := newHarness(t)
	pair := h.login(t, "user-1")

	token := pair.RefreshToken
	for i := 0; i < int(maxIssuedAtLead/time.Second); i++ {
		next, err := h.mgr.Refresh(context.Background(), token)
		require.NoError(t, err, "refresh %d", i)
		token = next.RefreshToken
	}
	_, err := h.mgr.Refresh(context.Background(), token)
	assert.ErrorIs(t, err, autherr.ErrInvalidToken)

	h.clock.Advance(2 * maxIssuedAtLead)
	next, err := h.mgr.Refresh(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, h.clock.Now(), next.IssuedAt)
}

func TestRefresh_StoreError(t *testing.T) {
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	storeErr := errors.New("store down")
	mem := repository.NewMemoryRepository()
	mgr := NewSessionManager(failingRepo{MemoryRepository: mem, err: storeErr}, tokens)

	pair, err := mgr.Login(context.Background(), "user-1", "", "")
	require.NoError(t, err)
	_, err = mgr.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, storeErr)
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	pair := h.login(t, "user-1")

	require.NoError(t, h.mgr.Logout(context.Background(), pair.RefreshToken))

	_, err := h.mgr.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, autherr.ErrInvalidToken)
	assert.ErrorIs(t, h.mgr.Logout(context.Background(), pair.RefreshToken), autherr.ErrInvalidToken)

	s, err := h.repo.GetByID(context.Background(), pair.DeviceID)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestLogout_OnlyAffectsOwnDevice(t *testing.T) {
	h := newHarness(t)
	a := h.login(t, "user-1")
	b := h.login(t, "user-1")

	require.NoError(t, h.mgr.Logout(context.Background(), a.RefreshToken))
	_, err := h.mgr.Refresh(context.Background(), b.RefreshToken)
	assert.NoError(t, err)
}

func TestRevokeAllExceptCurrent(t *testing.T) {
	h := newHarness(t)
	current := h.login(t, "user-1")
	h.login(t, "user-1")
	h.login(t, "user-1")
	other := h.login(t, "user-2")

	n, err := h.mgr.RevokeAllExceptCurrent(context.Background(), current.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	list, err := h.mgr.ListDevices(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, current.DeviceID, list[0].DeviceID)

	otherList, err := h.mgr.ListDevices(context.Background(), "user-2")
	require.NoError(t, err)
	require.Len(t, otherList, 1)
	assert.Equal(t, other.DeviceID, otherList[0].DeviceID)
}

func TestRevokeAllExceptCurrent_InvalidToken(t *testing.T) {
	h := newHarness(t)
	_, err := h.mgr.RevokeAllExceptCurrent(context.Background(), "garbage")
	assert.ErrorIs(t, err, autherr.ErrInvalidToken)
}

func TestRevokeDevice(t *testing.T) {
	h := newHarness(t)
	a := h.login(t, "user-1")
	b := h.login(t, "user-1")

	require.NoError(t, h.mgr.RevokeDevice(context.Background(), b.DeviceID, "user-1"))

	_, err := h.mgr.Refresh(context.Background(), b.RefreshToken)
	assert.ErrorIs(t, err, autherr.ErrInvalidToken)
	_, err = h.mgr.Refresh(context.Background(), a.RefreshToken)
	assert.NoError(t, err)
	assert.Contains(t, h.audit.actions(), "device_revoke")
}

func TestRevokeDevice_NotFound(t *testing.T) {
	h := newHarness(t)
	err := h.mgr.RevokeDevice(context.Background(), "missing", "user-1")
	assert.ErrorIs(t, err, autherr.ErrNotFound)
}

func TestRevokeDevice_OtherOwnerForbidden(t *testing.T) {
	h := newHarness(t)
	pair := h.login(t, "user-1")

	err := h.mgr.RevokeDevice(context.Background(), pair.DeviceID, "user-2")
	assert.ErrorIs(t, err, autherr.ErrForbidden)

	s, err := h.repo.GetByID(context.Background(), pair.DeviceID)
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestRevokeDevice_PolicyErrorDenies(t *testing.T) {
	h := newHarness(t, WithPolicy(staticPolicy{allow: true, err: errors.New("opa down")}))
	pair := h.login(t, "user-1")

	err := h.mgr.RevokeDevice(context.Background(), pair.DeviceID, "user-1")
	assert.ErrorIs(t, err, autherr.ErrForbidden)
}

func TestRevokeDevice_PolicyAllowsOverride(t *testing.T) {
	h := newHarness(t, WithPolicy(staticPolicy{allow: true}))
	pair := h.login(t, "user-1")

	require.NoError(t, h.mgr.RevokeDevice(context.Background(), pair.DeviceID, "support-agent"))
	_, err := h.mgr.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, autherr.ErrInvalidToken)
}

func TestListDevices_OrderAndIsolation(t *testing.T) {
	h := newHarness(t)
	older := h.login(t, "user-1")
	h.clock.Advance(time.Minute)
	newer := h.login(t, "user-1")
	h.login(t, "user-2")

	list, err := h.mgr.ListDevices(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.DeviceID, list[0].DeviceID)
	assert.Equal(t, older.DeviceID, list[1].DeviceID)

	empty, err := h.mgr.ListDevices(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDeviceMeta(t *testing.T) {
	assert.JSONEq(t, `{"deviceId":"d1"}`, deviceMeta("d1", nil))
	assert.JSONEq(t, `{"deviceId":"d1","revoked":2}`, deviceMeta("d1", map[string]any{"revoked": 2}))
}
