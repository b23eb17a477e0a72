package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenProvider_IssueAndValidateRefresh(t *testing.T) {
	p, err := NewTestTokenProvider()
	require.NoError(t, err)

	now := time.Now().UTC()
	tok, err := p.IssueRefresh("u1", "d1", now)
	require.NoError(t, err)
	require.NotEmpty(t, tok.Token)
	require.NotEmpty(t, tok.ID)
	assert.Equal(t, now.Truncate(time.Second), tok.IssuedAt)
	assert.Equal(t, tok.IssuedAt.Add(20*24*time.Hour), tok.ExpiresAt)

	claims, err := p.ValidateRefresh(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.PrincipalID())
	assert.Equal(t, "d1", claims.DeviceID)
	assert.Equal(t, tok.ID, claims.ID)
	assert.Equal(t, tok.IssuedAt, claims.IssuedAtTime())
	assert.Equal(t, tok.ExpiresAt, claims.ExpiresAtTime())
}

func TestTokenProvider_IssueAndValidateAccess(t *testing.T) {
	p, err := NewTestTokenProvider()
	require.NoError(t, err)

	tok, err := p.IssueAccess("u1", time.Now())
	require.NoError(t, err)
	claims, err := p.ValidateAccess(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.PrincipalID())
	assert.Equal(t, tok.IssuedAt.Add(10*time.Minute), tok.ExpiresAt)
}

func TestTokenProvider_RefreshIsNotAccess(t *testing.T) {
	p, err := NewTestTokenProvider()
	require.NoError(t, err)

	access, err := p.IssueAccess("u1", time.Now())
	require.NoError(t, err)
	_, err = p.ValidateRefresh(access.Token)
	assert.ErrorIs(t, err, ErrInvalidToken, "access token carries no deviceId")
}

func TestTokenProvider_AccessRejectsRefresh(t *testing.T) {
	p, err := NewTestTokenProvider()
	require.NoError(t, err)

	refresh, err := p.IssueRefresh("u1", "d1", time.Now().Add(-19*24*time.Hour))
	require.NoError(t, err)
	claims, err := p.ValidateAccess(refresh.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, claims)
}

func TestTokenProvider_RejectsMissingType(t *testing.T) {
	p, err := NewTestTokenProvider()
	require.NoError(t, err)
	signer, err := ParsePrivateKey(testPrivateKeyPEM)
	require.NoError(t, err)

	now := time.Now()
	untyped := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "j1",
			Subject:   "u1",
			Issuer:    "test-issuer",
			Audience:  jwt.ClaimStrings{"test-audience"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		DeviceID: "d1",
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, untyped).SignedString(signer)
	require.NoError(t, err)

	_, err = p.ValidateRefresh(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = p.ValidateAccess(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenProvider_Rejects(t *testing.T) {
	p, err := NewTestTokenProvider()
	require.NoError(t, err)

	expired, err := p.IssueRefresh("u1", "d1", time.Now().Add(-21*24*time.Hour))
	require.NoError(t, err)

	signer, pub, err := LoadKeyPair(testPrivateKeyPEM, testPublicKeyPEM)
	require.NoError(t, err)
	other, err := NewTokenProvider(signer, pub, "other-issuer", "test-audience", time.Minute, time.Hour)
	require.NoError(t, err)
	foreign, err := other.IssueRefresh("u1", "d1", time.Now())
	require.NoError(t, err)

	wrongAud, err := NewTokenProvider(signer, pub, "test-issuer", "other-audience", time.Minute, time.Hour)
	require.NoError(t, err)
	foreignAud, err := wrongAud.IssueRefresh("u1", "d1", time.Now())
	require.NoError(t, err)

	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "test-issuer",
			Audience:  jwt.ClaimStrings{"test-audience"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		DeviceID: "d1",
	})
	hsToken, err := hs.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "invalid-token"},
		{"expired", expired.Token},
		{"wrong issuer", foreign.Token},
		{"wrong audience", foreignAud.Token},
		{"hmac algorithm", hsToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ValidateRefresh(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			_, err = p.ValidateAccess(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestTokenProvider_ES256(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	p, err := NewTokenProvider(key, &key.PublicKey, "iss", "aud", time.Minute, time.Hour)
	require.NoError(t, err)

	tok, err := p.IssueRefresh("u1", "d1", time.Now())
	require.NoError(t, err)
	claims, err := p.ValidateRefresh(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "d1", claims.DeviceID)
}

func TestNewTokenProvider_MismatchedAlgorithms(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	signer, err := ParsePrivateKey(testPrivateKeyPEM)
	require.NoError(t, err)
	_, err = NewTokenProvider(signer, &key.PublicKey, "iss", "aud", time.Minute, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestGenerateJTI_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		jti, err := generateJTI()
		require.NoError(t, err)
		require.Len(t, jti, 32)
		require.False(t, seen[jti], "duplicate jti")
		seen[jti] = true
	}
}
