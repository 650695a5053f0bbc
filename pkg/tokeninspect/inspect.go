// Package tokeninspect extracts diagnostic information from a stored bearer
// credential without verifying it. The console treats the credential as
// opaque; signature verification belongs to the backend that issued it.
// Inspection only feeds logs and operator tooling.
package tokeninspect

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns the current UTC timestamp.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// SystemClock is the default wall clock.
var SystemClock Clock = systemClock{}

// Sentinel errors exposed by the inspector.
var (
	ErrMissingToken = errors.New("token_inspect.missing_token")
	ErrNotAToken    = errors.New("token_inspect.not_a_token")
)

// Info is the unverified content of a credential.
type Info struct {
	Subject   string
	Email     string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasExpiry reports whether the credential declared an expiry at all.
func (info Info) HasExpiry() bool {
	return !info.ExpiresAt.IsZero()
}

// ExpiredAt reports whether the credential's declared expiry has passed.
// A credential without an expiry claim never reports expired.
func (info Info) ExpiredAt(clock Clock) bool {
	if clock == nil {
		clock = SystemClock
	}
	return info.HasExpiry() && clock.Now().After(info.ExpiresAt)
}

// Inspect parses the credential as a JWT without verifying its signature and
// returns the claims useful for diagnostics. Opaque credentials fail with
// ErrNotAToken; that is expected and not a health problem.
func Inspect(token string) (Info, error) {
	if strings.TrimSpace(token) == "" {
		return Info{}, fmt.Errorf("token_inspect.inspect: %w", ErrMissingToken)
	}

	claims := jwt.MapClaims{}
	if _, _, parseErr := jwt.NewParser().ParseUnverified(token, claims); parseErr != nil {
		return Info{}, fmt.Errorf("token_inspect.inspect: %w", ErrNotAToken)
	}

	info := Info{
		Email: claimString(claims, "email"),
		Role:  claimString(claims, "role"),
	}
	if subject, subjectErr := claims.GetSubject(); subjectErr == nil && subject != "" {
		info.Subject = subject
	} else {
		// The quiz backend signs tokens with the user id under "id".
		info.Subject = claimString(claims, "id")
	}
	if issued, issuedErr := claims.GetIssuedAt(); issuedErr == nil && issued != nil {
		info.IssuedAt = issued.Time
	}
	if expiry, expiryErr := claims.GetExpirationTime(); expiryErr == nil && expiry != nil {
		info.ExpiresAt = expiry.Time
	}
	return info, nil
}

func claimString(claims jwt.MapClaims, name string) string {
	value, ok := claims[name].(string)
	if !ok {
		return ""
	}
	return value
}
