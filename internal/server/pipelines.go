package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/54b3r/drivesearch-go/internal/ingestion"
	"github.com/54b3r/drivesearch-go/internal/logging"
	"github.com/54b3r/drivesearch-go/internal/rag"
	"github.com/54b3r/drivesearch-go/internal/store"
)

const (
	// defaultRunsLimit is the page size of GET /api/ingest/runs.
	defaultRunsLimit = 20
	// maxRunsLimit caps GET /api/ingest/runs.
	maxRunsLimit = 100
)

// handleIngest handles POST /api/ingest. The whole pipeline runs inside
// the request; a client disconnect cancels it.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) error {
	rec, err := recordFrom(r)
	if err != nil {
		return err
	}

	res, err := s.ingest.Run(r.Context(), rec)
	s.metrics.ingestRunsTotal.WithLabelValues(string(ingestion.Outcome(res, err))).Inc()
	s.metrics.filesIngestedTotal.Add(float64(res.Count))
	for _, sk := range res.Skipped {
		s.metrics.filesSkippedTotal.WithLabelValues(string(sk.Stage)).Inc()
	}
	if err != nil {
		return internal("Failed to ingest files", err)
	}

	if res.State == ingestion.StateEmptyDone {
		writeSuccess(w, "No text files found in Drive", map[string]int{"count": 0})
		return nil
	}

	data := ingestData{RunID: res.RunID, Count: res.Count, Files: res.Files, Skipped: res.Skipped}
	if data.Files == nil {
		data.Files = []ingestion.IngestedFile{}
	}
	if data.Skipped == nil {
		data.Skipped = []rag.Skipped{}
	}
	writeSuccess(w, "Files ingested successfully", data)
	return nil
}

// handleSearch handles POST /api/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) error {
	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.metrics.searchRequestsTotal.WithLabelValues("invalid").Inc()
		return err
	}
	if strings.TrimSpace(req.Query) == "" {
		s.metrics.searchRequestsTotal.WithLabelValues("invalid").Inc()
		return badRequest("Search query is required")
	}
	if req.Limit < 0 {
		s.metrics.searchRequestsTotal.WithLabelValues("invalid").Inc()
		return badRequest("Limit must not be negative")
	}

	results, err := s.search.Search(r.Context(), req.Query, req.Limit)
	switch {
	case errors.Is(err, rag.ErrEmptyQuery):
		s.metrics.searchRequestsTotal.WithLabelValues("invalid").Inc()
		return badRequest("Search query is required")
	case err != nil:
		s.metrics.searchRequestsTotal.WithLabelValues("error").Inc()
		return internal("An error occurred while processing the search query.", err)
	}
	if results == nil {
		results = []rag.SearchResult{}
	}

	s.metrics.searchRequestsTotal.WithLabelValues("ok").Inc()
	logging.FromContext(r.Context()).Info("search: done", slog.Int("results", len(results)))
	writeSuccess(w, "", map[string][]rag.SearchResult{"results": results})
	return nil
}

// handleIngestRuns handles GET /api/ingest/runs?limit=N.
func (s *Server) handleIngestRuns(w http.ResponseWriter, r *http.Request) error {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return badRequest("Limit must be a non-negative integer")
		}
		if n > 0 {
			limit = min(n, maxRunsLimit)
		}
	}

	if s.runs == nil {
		writeSuccess(w, "Run history is disabled", map[string][]store.Run{"runs": {}})
		return nil
	}
	runs, err := s.runs.Recent(r.Context(), limit)
	if err != nil {
		return internal("Failed to read ingest history", err)
	}
	writeSuccess(w, "", map[string][]store.Run{"runs": runs})
	return nil
}
