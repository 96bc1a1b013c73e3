package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/notevault/internal/errs"
)

// Tokens issues and verifies HS256 access tokens. Identity itself is managed
// elsewhere; the subject is an opaque user id.
type Tokens struct {
	signKey []byte
	leeway  time.Duration
	now     func() time.Time
}

// NewTokens constructs Tokens for signKey.
func NewTokens(signKey []byte) *Tokens {
	return &Tokens{signKey: signKey, leeway: 30 * time.Second, now: time.Now}
}

// Issue creates a signed HS256 JWT for subject valid for ttl.
func (t *Tokens) Issue(subject string, ttl time.Duration) (string, time.Time, error) {
	if subject == "" || ttl <= 0 {
		return "", time.Time{}, errs.ErrInvalidArgument
	}
	now := t.now()
	exp := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(t.signKey)
	return signed, exp, err
}

// Verify checks signature and validity window and returns the subject.
func (t *Tokens) Verify(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return t.signKey, nil
	},
		jwt.WithLeeway(t.leeway),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", errs.ErrUnauthorized
	}
	if claims.Subject == "" {
		return "", errs.ErrUnauthorized
	}
	return claims.Subject, nil
}
