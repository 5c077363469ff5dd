// Package auth runs the OAuth2 lifecycle against Google: building the consent
// URL, exchanging authorization codes, and resolving a presented access token
// to a valid record, refreshing it when it has expired.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"

	"github.com/54b3r/drivesearch-go/internal/credential"
	"github.com/54b3r/drivesearch-go/internal/logging"
)

var (
	// ErrAuthExchange is returned when the authorization code could not be
	// exchanged for tokens.
	ErrAuthExchange = errors.New("auth: code exchange failed")
	// ErrTokenNotFound is returned when the presented access token is unknown.
	ErrTokenNotFound = errors.New("auth: token not found")
	// ErrRefreshUnavailable is returned when the token has expired and no
	// refresh token is on record.
	ErrRefreshUnavailable = errors.New("auth: token expired and no refresh token available")
	// ErrRefreshFailed is returned when the provider rejected the refresh call.
	ErrRefreshFailed = errors.New("auth: token refresh failed")
)

// DefaultState is the state parameter used when none is configured.
const DefaultState = "drivesearch"

// refreshTimeout bounds one refresh-token grant.
const refreshTimeout = 30 * time.Second

// defaultLifetime is assumed when the provider omits expires_in.
const defaultLifetime = time.Hour

// DefaultScopes are requested on every consent URL.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/drive.readonly",
}

// Config holds the OAuth client registration and optional overrides.
type Config struct {
	// ClientID is the OAuth client identifier.
	ClientID string
	// ClientSecret is the OAuth client secret.
	ClientSecret string
	// RedirectURL is the callback registered with the provider.
	RedirectURL string
	// State is sent on the consent URL (default: DefaultState).
	State string
	// Scopes overrides DefaultScopes when non-empty.
	Scopes []string
	// Endpoint overrides the Google endpoint. Tests point this at httptest.
	Endpoint oauth2.Endpoint
	// HTTPClient is used for token endpoint calls. Nil uses http.DefaultClient.
	HTTPClient *http.Client
	// Now is the clock. Nil uses time.Now.
	Now func() time.Time
}

// Manager owns token issuance and renewal. It is safe for concurrent use.
type Manager struct {
	// oauth is the provider client configuration.
	oauth *oauth2.Config
	// store holds issued records.
	store credential.Store
	// state is the fixed consent URL state.
	state string
	// httpClient is injected into oauth2 calls through the context.
	httpClient *http.Client
	// now is the injectable clock.
	now func() time.Time
	// refreshes collapses concurrent refreshes of the same access token.
	refreshes singleflight.Group
}

// NewManager returns a Manager that stores records in store.
func NewManager(cfg *Config, store credential.Store) *Manager {
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	state := cfg.State
	if state == "" {
		state = DefaultState
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		store:      store,
		state:      state,
		httpClient: cfg.HTTPClient,
		now:        now,
	}
}

// Store returns the backing credential store.
func (m *Manager) Store() credential.Store { return m.store }

// AuthURL returns the consent URL. It requests offline access and forces the
// consent prompt so the provider issues a refresh token every time.
func (m *Manager) AuthURL() string {
	return m.oauth.AuthCodeURL(m.state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for tokens and stores the result.
func (m *Manager) Exchange(ctx context.Context, code string) (credential.Record, error) {
	log := logging.FromContext(ctx)

	tok, err := m.oauth.Exchange(m.clientContext(ctx), code)
	if err != nil {
		log.Warn("auth: code exchange rejected", "error", err)
		return credential.Record{}, fmt.Errorf("%w: %w", ErrAuthExchange, err)
	}
	if tok.AccessToken == "" {
		return credential.Record{}, fmt.Errorf("%w: provider returned no access token", ErrAuthExchange)
	}

	rec := credential.Record{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiryDate:   m.expiryOf(tok),
	}
	if err := m.store.Put(ctx, rec); err != nil {
		return credential.Record{}, fmt.Errorf("auth: store record: %w", err)
	}

	log.Info("auth: session issued",
		"token", credential.Fingerprint(rec.AccessToken),
		"refreshable", rec.Renewable(),
	)
	return rec, nil
}

// Resolve returns a valid record for accessToken. An unexpired record is
// returned as-is without a network call. An expired record with a refresh
// token is renewed once and replaces the old record under its new key.
func (m *Manager) Resolve(ctx context.Context, accessToken string) (credential.Record, error) {
	rec, err := m.store.Get(ctx, accessToken)
	if errors.Is(err, credential.ErrNotFound) {
		return credential.Record{}, ErrTokenNotFound
	}
	if err != nil {
		return credential.Record{}, fmt.Errorf("auth: load record: %w", err)
	}

	if !rec.Expired(m.now()) {
		return rec, nil
	}
	if !rec.Renewable() {
		return credential.Record{}, ErrRefreshUnavailable
	}

	// The flight outlives any one caller: a waiter that disconnects must
	// not fail the refresh for the others.
	flight := m.refreshes.DoChan(accessToken, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return m.refreshStored(fctx, accessToken)
	})
	select {
	case <-ctx.Done():
		return credential.Record{}, ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			return credential.Record{}, res.Err
		}
		if res.Shared {
			logging.FromContext(ctx).Debug("auth: joined in-flight refresh",
				"token", credential.Fingerprint(accessToken))
		}
		return res.Val.(credential.Record), nil
	}
}

// refreshStored reloads the record under accessToken and renews it. A key
// that is gone was already swapped by an earlier refresh, so the caller's
// token is no longer a session.
func (m *Manager) refreshStored(ctx context.Context, accessToken string) (credential.Record, error) {
	rec, err := m.store.Get(ctx, accessToken)
	if errors.Is(err, credential.ErrNotFound) {
		return credential.Record{}, ErrTokenNotFound
	}
	if err != nil {
		return credential.Record{}, fmt.Errorf("auth: load record: %w", err)
	}
	if !rec.Expired(m.now()) {
		return rec, nil
	}
	if !rec.Renewable() {
		return credential.Record{}, ErrRefreshUnavailable
	}
	return m.refresh(ctx, rec)
}

// refresh performs one refresh-token grant for prev and swaps the stored
// record. Fields the provider omits fall back to prev.
func (m *Manager) refresh(ctx context.Context, prev credential.Record) (credential.Record, error) {
	log := logging.FromContext(ctx)

	src := m.oauth.TokenSource(m.clientContext(ctx), &oauth2.Token{RefreshToken: prev.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		log.Warn("auth: refresh rejected",
			"token", credential.Fingerprint(prev.AccessToken),
			"error", err,
		)
		return credential.Record{}, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	next := credential.Record{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiryDate:   m.expiryOf(tok),
	}
	if next.AccessToken == "" {
		next.AccessToken = prev.AccessToken
	}
	if next.RefreshToken == "" {
		next.RefreshToken = prev.RefreshToken
	}

	if err := m.store.Replace(ctx, prev.AccessToken, next); err != nil {
		return credential.Record{}, fmt.Errorf("auth: replace record: %w", err)
	}

	log.Info("auth: token refreshed",
		"old_token", credential.Fingerprint(prev.AccessToken),
		"new_token", credential.Fingerprint(next.AccessToken),
	)
	return next, nil
}

// Client returns an HTTP client that authenticates as rec. The client never
// refreshes on its own; renewal goes through Resolve so the store stays
// authoritative.
func (m *Manager) Client(ctx context.Context, rec credential.Record) *http.Client {
	return oauth2.NewClient(m.clientContext(ctx), oauth2.StaticTokenSource(rec.OAuth2Token()))
}

// expiryOf converts the token expiry to epoch milliseconds, defaulting to
// one hour from now when the provider sent none.
func (m *Manager) expiryOf(tok *oauth2.Token) int64 {
	if tok.Expiry.IsZero() {
		return m.now().Add(defaultLifetime).UnixMilli()
	}
	return tok.Expiry.UnixMilli()
}

// clientContext installs the configured HTTP client for oauth2 calls.
func (m *Manager) clientContext(ctx context.Context) context.Context {
	if m.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}
