package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/54b3r/drivesearch-go/internal/drive"
	"github.com/54b3r/drivesearch-go/internal/rag"
)

// handleListFiles handles GET /api/files.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) error {
	rec, err := recordFrom(r)
	if err != nil {
		return err
	}
	files, err := s.drive.ListTextFiles(r.Context(), rec)
	if err != nil {
		return internal("Failed to list Drive files", err)
	}
	if files == nil {
		files = []rag.DriveFile{}
	}
	writeSuccess(w, "", map[string][]rag.DriveFile{"files": files})
	return nil
}

// handleFileContent handles GET /api/files/{fileId}/content.
func (s *Server) handleFileContent(w http.ResponseWriter, r *http.Request) error {
	rec, err := recordFrom(r)
	if err != nil {
		return err
	}
	fileID := strings.TrimSpace(r.PathValue("fileId"))
	if fileID == "" {
		return badRequest("File ID is required")
	}

	content, err := s.drive.FetchContent(r.Context(), rec, fileID)
	switch {
	case errors.Is(err, drive.ErrFileNotFound):
		return notFound("File not found", err)
	case err != nil:
		return internal("Failed to fetch file content", err)
	}
	writeSuccess(w, "", map[string]string{"content": content})
	return nil
}
