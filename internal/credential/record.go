// Package credential holds the OAuth token records issued to signed-in users
// and the stores that keep them. A record is keyed by its access token; the
// access token is the only session identity this service knows about.
package credential

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"golang.org/x/oauth2"
)

// Record is the token set issued by the identity provider for one session.
type Record struct {
	// AccessToken is the provider-issued bearer credential. It is the store key.
	AccessToken string `json:"access_token"`
	// RefreshToken mints a new access token without re-consent. Empty means
	// the record cannot be renewed once it expires.
	RefreshToken string `json:"refresh_token,omitempty"`
	// ExpiryDate is the access token expiry in epoch milliseconds.
	ExpiryDate int64 `json:"expiry_date"`
}

// Expiry returns ExpiryDate as a time.Time.
func (r Record) Expiry() time.Time {
	return time.UnixMilli(r.ExpiryDate)
}

// Expired reports whether the access token is no longer valid at now.
func (r Record) Expired(now time.Time) bool {
	return now.UnixMilli() >= r.ExpiryDate
}

// Renewable reports whether a refresh token is present.
func (r Record) Renewable() bool {
	return r.RefreshToken != ""
}

// OAuth2Token converts the record into an [oauth2.Token] for building
// authenticated API clients.
func (r Record) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       r.Expiry(),
	}
}

// Fingerprint returns a short, non-reversible identifier for an access token
// that is safe to put in logs.
func Fingerprint(accessToken string) string {
	if accessToken == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(accessToken))
	return hex.EncodeToString(sum[:4])
}

// contextKey is an unexported type for context keys in this package.
type contextKey struct{}

// NewContext returns a copy of ctx carrying rec.
func NewContext(ctx context.Context, rec Record) context.Context {
	return context.WithValue(ctx, contextKey{}, rec)
}

// FromContext returns the record attached by [NewContext], if any.
func FromContext(ctx context.Context) (Record, bool) {
	rec, ok := ctx.Value(contextKey{}).(Record)
	return rec, ok
}
