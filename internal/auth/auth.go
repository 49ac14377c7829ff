// Package auth issues and verifies session tokens and manages accounts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrRevokedToken = errors.New("token revoked")
)

// Claims is the payload of a session token.
type Claims struct {
	UserID int `json:"user_id"`
	jwt.RegisteredClaims
}

// RevocationStore remembers revoked token ids until they would have expired anyway.
type RevocationStore interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
}

// Authenticator signs HS256 session tokens.
type Authenticator struct {
	secret  []byte
	ttl     time.Duration
	revoked RevocationStore
	now     func() time.Time
}

func NewAuthenticator(secret string, ttl time.Duration, revoked RevocationStore) *Authenticator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if revoked == nil {
		revoked = NewMemoryRevocationStore()
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl, revoked: revoked, now: time.Now}
}

// Issue returns a signed token for userID and its expiry.
func (a *Authenticator) Issue(userID int) (string, time.Time, error) {
	now := a.now()
	expiresAt := now.Add(a.ttl)
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   fmt.Sprint(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify returns the user id carried by a valid, unrevoked token.
func (a *Authenticator) Verify(ctx context.Context, token string) (int, error) {
	claims, err := a.parse(token)
	if err != nil {
		return 0, err
	}
	revoked, err := a.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return 0, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return 0, ErrRevokedToken
	}
	return claims.UserID, nil
}

// Revoke invalidates token for the rest of its lifetime.
func (a *Authenticator) Revoke(ctx context.Context, token string) error {
	claims, err := a.parse(token)
	if err != nil {
		return err
	}
	ttl := claims.ExpiresAt.Sub(a.now())
	if ttl <= 0 {
		return nil
	}
	return a.revoked.Revoke(ctx, claims.ID, ttl)
}

func (a *Authenticator) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid || claims.UserID <= 0 || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
