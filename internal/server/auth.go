package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/drivesearch-go/internal/auth"
	"github.com/54b3r/drivesearch-go/internal/credential"
	"github.com/54b3r/drivesearch-go/internal/logging"
)

// requireToken is the request gate for Drive-backed routes. It resolves the
// bearer token through the token manager, refreshing it when expired, and
// attaches the resulting record to the request context.
//
// Requests without a usable bearer token get 401 "Authentication required";
// tokens the manager cannot resolve get 401 "Invalid or expired token".
// The token value is never logged, only its fingerprint.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())

		token := bearerToken(r)
		if token == "" {
			s.metrics.authRejectionsTotal.WithLabelValues("missing").Inc()
			log.Warn("auth: missing bearer token")
			w.Header().Set("WWW-Authenticate", `Bearer realm="drivesearch"`)
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		rec, err := s.auth.Resolve(r.Context(), token)
		if err != nil {
			reason := rejectionReason(err)
			s.metrics.authRejectionsTotal.WithLabelValues(reason).Inc()
			log.Warn("auth: token rejected",
				slog.String("token", credential.Fingerprint(token)),
				slog.String("reason", reason),
				slog.Any("error", err),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="drivesearch", error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		if rec.AccessToken != token {
			log.Info("auth: token refreshed",
				slog.String("old", credential.Fingerprint(token)),
				slog.String("new", credential.Fingerprint(rec.AccessToken)),
			)
		}
		next.ServeHTTP(w, r.WithContext(credential.NewContext(r.Context(), rec)))
	})
}

// rejectionReason labels a Resolve failure for metrics and logs.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenNotFound):
		return "not_found"
	case errors.Is(err, auth.ErrRefreshUnavailable):
		return "refresh_unavailable"
	case errors.Is(err, auth.ErrRefreshFailed):
		return "refresh_failed"
	default:
		return "error"
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive. Returns "" if the header is
// absent or malformed.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// recordFrom returns the record the gate attached to r.
func recordFrom(r *http.Request) (credential.Record, error) {
	rec, ok := credential.FromContext(r.Context())
	if !ok {
		return credential.Record{}, unauthorized("Authentication required", nil)
	}
	return rec, nil
}
