// Package auth mints the short-lived JWTs the signing API expects in the
// Authorization header.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenLifetime is how long a minted token stays valid. Tokens are minted per
// request so a long poll never presents an expired one.
const TokenLifetime = 60 * time.Second

// ErrMissingCredentials is returned when the API key or secret is empty
var ErrMissingCredentials = errors.New("API key and secret are required")

// Clock abstracts time.Now for token timestamps
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system time
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Credentials identify the caller to the signing API
type Credentials struct {
	APIKey    string
	APISecret string
}

// Validate rejects empty credentials
func (c Credentials) Validate() error {
	if c.APIKey == "" || c.APISecret == "" {
		return ErrMissingCredentials
	}
	return nil
}

// Authenticator signs tokens for a fixed credential pair
type Authenticator struct {
	creds Credentials
	clock Clock
}

// NewAuthenticator returns an Authenticator using the system clock
func NewAuthenticator(creds Credentials) *Authenticator {
	return &Authenticator{creds: creds, clock: RealClock{}}
}

// WithClock replaces the clock used for iat/exp
func (a *Authenticator) WithClock(c Clock) *Authenticator {
	a.clock = c
	return a
}

// Token mints a fresh token. Nothing is cached.
func (a *Authenticator) Token() (string, error) {
	return SignAt(a.creds.APIKey, a.creds.APISecret, a.clock.Now())
}

// SignAt mints an HS256 token with iss=apiKey, iat=now and exp=now+TokenLifetime
func SignAt(apiKey, apiSecret string, now time.Time) (string, error) {
	if err := (Credentials{APIKey: apiKey, APISecret: apiSecret}).Validate(); err != nil {
		return "", err
	}

	claims := jwt.RegisteredClaims{
		Issuer:    apiKey,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(TokenLifetime)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(apiSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}
