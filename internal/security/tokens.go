package security

import (
	"crypto"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, of the wrong kind, or fails the iss/aud checks.
	ErrInvalidToken = errors.New("invalid token")
)

// Token kinds carried in the typ claim. Both kinds share key, issuer and audience, so typ is what
// keeps a refresh token from being accepted as a bearer token and vice versa.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// AccessClaims holds JWT claims for the access token. Subject is the principal id.
type AccessClaims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// RefreshClaims holds JWT claims for the refresh token. Subject is the principal id; DeviceID binds
// the token to one device session and never changes across rotations.
type RefreshClaims struct {
	jwt.RegisteredClaims
	Type     string `json:"typ"`
	DeviceID string `json:"deviceId"`
}

// PrincipalID returns the subject of the access token.
func (c *AccessClaims) PrincipalID() string { return c.Subject }

// PrincipalID returns the subject of the refresh token.
func (c *RefreshClaims) PrincipalID() string { return c.Subject }

// IssuedAtTime returns iat as time.Time (zero if absent).
func (c *RefreshClaims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time.UTC()
}

// ExpiresAtTime returns exp as time.Time (zero if absent).
func (c *RefreshClaims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time.UTC()
}

// IssuedToken is a signed token with its identifying claims.
type IssuedToken struct {
	Token     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenProvider issues and validates JWT access and refresh tokens using RS256 or ES256.
// It is built once at startup from explicit configuration; nothing is read from the environment.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	method     jwt.SigningMethod
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenProvider returns a TokenProvider that signs with privateKey and verifies with publicKey.
// issuer and audience are set on every token and required on validation.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL, refreshTTL time.Duration) (*TokenProvider, error) {
	var method jwt.SigningMethod
	switch KeyAlg(privateKey.Public()) {
	case "RS256":
		method = jwt.SigningMethodRS256
	case "ES256":
		method = jwt.SigningMethodES256
	default:
		return nil, ErrInvalidKey
	}
	if KeyAlg(publicKey) != method.Alg() {
		return nil, ErrInvalidKey
	}
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		method:     method,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (p *TokenProvider) AccessTTL() time.Duration { return p.accessTTL }

// RefreshTTL returns the configured refresh token lifetime (the device session window).
func (p *TokenProvider) RefreshTTL() time.Duration { return p.refreshTTL }

// IssueAccess issues a short-lived access JWT for principalID, issued at issuedAt.
func (p *TokenProvider) IssueAccess(principalID string, issuedAt time.Time) (IssuedToken, error) {
	rc, err := p.registered(principalID, issuedAt, p.accessTTL)
	if err != nil {
		return IssuedToken{}, err
	}
	return p.sign(AccessClaims{RegisteredClaims: rc, Type: TypeAccess}, rc)
}

// IssueRefresh issues a refresh JWT for principalID bound to deviceID, issued at issuedAt.
// The returned ID (jti) identifies this particular token among rotations of the same device.
func (p *TokenProvider) IssueRefresh(principalID, deviceID string, issuedAt time.Time) (IssuedToken, error) {
	rc, err := p.registered(principalID, issuedAt, p.refreshTTL)
	if err != nil {
		return IssuedToken{}, err
	}
	return p.sign(RefreshClaims{RegisteredClaims: rc, Type: TypeRefresh, DeviceID: deviceID}, rc)
}

func (p *TokenProvider) registered(subject string, issuedAt time.Time, ttl time.Duration) (jwt.RegisteredClaims, error) {
	jti, err := generateJTI()
	if err != nil {
		return jwt.RegisteredClaims{}, err
	}
	iat := issuedAt.UTC().Truncate(time.Second)
	return jwt.RegisteredClaims{
		ID:        jti,
		Subject:   subject,
		Issuer:    p.issuer,
		Audience:  jwt.ClaimStrings{p.audience},
		IssuedAt:  jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(iat.Add(ttl)),
	}, nil
}

func (p *TokenProvider) sign(claims jwt.Claims, rc jwt.RegisteredClaims) (IssuedToken, error) {
	token, err := jwt.NewWithClaims(p.method, claims).SignedString(p.privateKey)
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{
		Token:     token,
		ID:        rc.ID,
		IssuedAt:  rc.IssuedAt.Time.UTC(),
		ExpiresAt: rc.ExpiresAt.Time.UTC(),
	}, nil
}

// ValidateRefresh parses and validates a refresh token (signature, exp, iss, aud, typ, deviceId present).
func (p *TokenProvider) ValidateRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := p.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Type != TypeRefresh || claims.DeviceID == "" || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateAccess parses and validates an access token (signature, exp, iss, aud, typ).
func (p *TokenProvider) ValidateAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := p.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Type != TypeAccess || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (p *TokenProvider) parse(tokenString string, claims jwt.Claims) error {
	if tokenString == "" {
		return ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return p.publicKey, nil
	},
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
