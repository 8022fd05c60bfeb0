// Package token issues and verifies the signed bearer tokens that
// authenticate requests to the admin area. Tokens are self-contained: there is
// no server-side session table and no revocation list, so logout is cookie
// deletion only and a compromised token stays valid until its expiry.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/quantalab/labauth/params"
)

type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Service struct {
	secret   []byte
	issuer   string
	audience string
	lifetime time.Duration
	nowFunc  func() time.Time
}

func NewService(secret string, lifetime time.Duration) *Service {
	if lifetime <= 0 {
		lifetime = params.DefaultSessionTimeout
	}
	return &Service{
		secret:   []byte(secret),
		issuer:   params.TokenIssuer,
		audience: params.TokenAudience,
		lifetime: lifetime,
		nowFunc:  time.Now,
	}
}

// SetNowFunc overrides the clock, for expiry tests.
func (s *Service) SetNowFunc(now func() time.Time) {
	s.nowFunc = now
}

func (s *Service) Lifetime() time.Duration {
	return s.lifetime
}

// Issue signs a token for subjectID with the given role, valid for the
// configured session lifetime.
func (s *Service) Issue(subjectID string, role string) (string, error) {
	now := s.nowFunc()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify parses and validates tokenStr: signature, expiry, issuer and
// audience. Any failure is reported as ErrTokenInvalid or ErrTokenExpired;
// callers treat both uniformly as "not authenticated".
func (s *Service) Verify(tokenStr string) (*Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.nowFunc),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}
