// Package auth covers the account surface: password hashing, HS256
// access tokens and identifier generation for users, projects and API
// keys.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"

	verrors "github.com/vitrina-search/vitrina/internal/errors"
)

// DefaultTokenTTL is how long issued access tokens stay valid.
const DefaultTokenTTL = 7 * 24 * time.Hour

// DefaultKeyPrefix marks project API keys.
const DefaultKeyPrefix = "sk_"

// passwordSalt matches the hashes already stored in the user table.
// Changing it invalidates every existing account.
const passwordSalt = "search_service_salt"

// HashPassword returns the hex-encoded salted SHA-256 digest of the
// password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password + passwordSalt))
	return hex.EncodeToString(sum[:])
}

// VerifyPassword reports whether password hashes to hashed, in
// constant time.
func VerifyPassword(password, hashed string) bool {
	return subtle.ConstantTimeCompare([]byte(HashPassword(password)), []byte(hashed)) == 1
}

// GenerateAPIKey returns a fresh project API key: the prefix plus 24
// random bytes hex encoded. An empty prefix falls back to
// DefaultKeyPrefix.
func GenerateAPIKey(prefix string) string {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return prefix + randomHex(24)
}

// GenerateUserID returns a fresh user identifier.
func GenerateUserID() string {
	return "user_" + randomHex(8)
}

// GenerateProjectID returns a fresh project identifier.
func GenerateProjectID() string {
	return "proj_" + randomHex(8)
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Claims identifies the account an access token was issued to.
type Claims struct {
	UserID string
	Email  string
}

// Authenticator issues and verifies HS256 access tokens.
type Authenticator struct {
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

// Option configures the authenticator.
type Option func(*Authenticator)

// WithTokenTTL overrides the token lifetime.
func WithTokenTTL(ttl time.Duration) Option {
	return func(a *Authenticator) {
		if ttl > 0 {
			a.tokenTTL = ttl
		}
	}
}

// WithClock overrides the time source for issuance and validation.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAuthenticator creates an authenticator signing with secret.
func NewAuthenticator(secret string, opts ...Option) (*Authenticator, error) {
	if secret == "" {
		return nil, verrors.ConfigError("jwt secret is required", nil)
	}
	a := &Authenticator{
		secret:   []byte(secret),
		tokenTTL: DefaultTokenTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// tokenClaims is the wire shape: sub, email, exp, iat.
type tokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// IssueToken signs an access token for the user.
func (a *Authenticator) IssueToken(userID, email string) (string, error) {
	now := a.now().UTC()
	claims := tokenClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", verrors.InternalError("failed to sign access token", err)
	}
	return signed, nil
}

// VerifyToken parses and validates an access token. Expired, malformed
// and foreign-signed tokens all come back unauthorized.
func (a *Authenticator) VerifyToken(token string) (*Claims, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, verrors.New(verrors.ErrCodeUnauthorized, "invalid or expired token", err)
	}
	return &Claims{UserID: claims.Subject, Email: claims.Email}, nil
}
