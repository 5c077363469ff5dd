package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/54b3r/drivesearch-go/internal/credential"
	"github.com/54b3r/drivesearch-go/internal/logging"
)

// handleAuthURL handles GET /api/auth/url.
func (s *Server) handleAuthURL(w http.ResponseWriter, _ *http.Request) error {
	writeSuccess(w, "", map[string]string{"url": s.auth.AuthURL()})
	return nil
}

// handleAuthCallback handles the OAuth redirect from Google. It exchanges
// the authorization code and redirects the browser to the frontend with
// the new access token in the "token" query parameter.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	if denied := q.Get("error"); denied != "" {
		logging.FromContext(r.Context()).Warn("auth: consent not granted", slog.String("reason", denied))
		return badRequest("Authorization was not granted")
	}
	code := strings.TrimSpace(q.Get("code"))
	if code == "" {
		return badRequest("Authorization code is required")
	}

	rec, err := s.auth.Exchange(r.Context(), code)
	if err != nil {
		return unauthorized("Failed to exchange authorization code", err)
	}

	target, err := url.Parse(s.cfg.FrontendCallbackURL)
	if err != nil {
		return internal("Invalid frontend callback URL", err)
	}
	values := target.Query()
	values.Set("token", rec.AccessToken)
	target.RawQuery = values.Encode()

	logging.FromContext(r.Context()).Info("auth: signed in",
		slog.String("token", credential.Fingerprint(rec.AccessToken)),
		slog.Bool("refresh_token", rec.RefreshToken != ""),
	)
	http.Redirect(w, r, target.String(), http.StatusFound)
	return nil
}

// handleAuthRefresh handles POST /api/auth/refresh. It resolves the token,
// refreshing it if expired, and returns the current record.
func (s *Server) handleAuthRefresh(w http.ResponseWriter, r *http.Request) error {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return badRequest("Token is required")
	}

	rec, err := s.auth.Resolve(r.Context(), token)
	if err != nil {
		s.metrics.authRejectionsTotal.WithLabelValues(rejectionReason(err)).Inc()
		return unauthorized("Invalid or expired token", err)
	}
	writeSuccess(w, "", map[string]credential.Record{"tokens": rec})
	return nil
}
