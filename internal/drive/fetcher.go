// Package drive lists and downloads the text files a signed-in user keeps in
// Google Drive.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/54b3r/drivesearch-go/internal/batch"
	"github.com/54b3r/drivesearch-go/internal/credential"
	"github.com/54b3r/drivesearch-go/internal/logging"
	"github.com/54b3r/drivesearch-go/internal/rag"
)

var (
	// ErrList is returned when the file listing call fails.
	ErrList = errors.New("drive: listing files failed")
	// ErrContentFetch is returned when a file download fails.
	ErrContentFetch = errors.New("drive: fetching file content failed")
	// ErrFileNotFound is wrapped alongside ErrContentFetch when Drive
	// reports the file does not exist or is not visible to the user.
	ErrFileNotFound = errors.New("drive: file not found")
)

const (
	// textFilesQuery selects plain text and markdown files that are not trashed.
	textFilesQuery = "(mimeType='text/plain' or mimeType='text/markdown') and trashed = false"

	// listFields limits the listing response to what the pipeline uses.
	listFields = "nextPageToken, files(id, name, mimeType, webViewLink)"

	// DefaultConcurrency bounds parallel downloads in FetchAllContents.
	DefaultConcurrency = 8

	// DefaultTimeout bounds a single download in FetchAllContents.
	DefaultTimeout = 30 * time.Second
)

// ClientSource builds an HTTP client that authenticates as a record.
// *auth.Manager satisfies it.
type ClientSource interface {
	Client(ctx context.Context, rec credential.Record) *http.Client
}

// Config tunes a Fetcher.
type Config struct {
	// Endpoint overrides the Drive API base URL. Tests point it at httptest.
	Endpoint string
	// Concurrency bounds parallel downloads (default: DefaultConcurrency).
	Concurrency int
	// Timeout bounds each download (default: DefaultTimeout).
	Timeout time.Duration
}

// Fetcher talks to the Drive v3 API on behalf of a user.
type Fetcher struct {
	// clients mints per-user authenticated HTTP clients.
	clients ClientSource
	// endpoint is the optional Drive API base URL override.
	endpoint string
	// concurrency bounds FetchAllContents fan-out.
	concurrency int
	// timeout bounds each download.
	timeout time.Duration
}

// NewFetcher returns a Fetcher. cfg may be nil.
func NewFetcher(clients ClientSource, cfg *Config) *Fetcher {
	if cfg == nil {
		cfg = &Config{}
	}
	f := &Fetcher{
		clients:     clients,
		endpoint:    cfg.Endpoint,
		concurrency: cfg.Concurrency,
		timeout:     cfg.Timeout,
	}
	if f.concurrency <= 0 {
		f.concurrency = DefaultConcurrency
	}
	if f.timeout <= 0 {
		f.timeout = DefaultTimeout
	}
	return f
}

// service builds a Drive client authenticated as rec.
func (f *Fetcher) service(ctx context.Context, rec credential.Record) (*drive.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(f.clients.Client(ctx, rec))}
	if f.endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.endpoint))
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive: unable to create client: %w", err)
	}
	return svc, nil
}

// ListTextFiles returns every plain text and markdown file visible to rec,
// following result pages until exhausted.
func (f *Fetcher) ListTextFiles(ctx context.Context, rec credential.Record) ([]rag.DriveFile, error) {
	svc, err := f.service(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrList, err)
	}

	files := []rag.DriveFile{}
	err = svc.Files.List().
		Q(textFilesQuery).
		Spaces("drive").
		Fields(googleapi.Field(listFields)).
		Pages(ctx, func(page *drive.FileList) error {
			for _, df := range page.Files {
				files = append(files, rag.DriveFile{
					ID:          df.Id,
					Name:        df.Name,
					MimeType:    df.MimeType,
					WebViewLink: df.WebViewLink,
				})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrList, err)
	}

	logging.FromContext(ctx).Debug("drive: listed text files", "count", len(files))
	return files, nil
}

// FetchContent downloads the body of one file as text.
func (f *Fetcher) FetchContent(ctx context.Context, rec credential.Record, fileID string) (string, error) {
	svc, err := f.service(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrContentFetch, err)
	}
	return download(ctx, svc, fileID)
}

// FetchAllContents downloads every file concurrently. Files whose download
// fails or returns no text are left out of the result and reported as
// skipped. The result keeps the input order.
func (f *Fetcher) FetchAllContents(ctx context.Context, rec credential.Record, files []rag.DriveFile) ([]rag.DriveFile, []rag.Skipped) {
	log := logging.FromContext(ctx)

	svc, err := f.service(ctx, rec)
	if err != nil {
		skipped := make([]rag.Skipped, 0, len(files))
		for _, df := range files {
			skipped = append(skipped, skip(df, err.Error()))
		}
		return nil, skipped
	}

	results := batch.Settle(ctx, files, f.concurrency, func(ctx context.Context, df rag.DriveFile) (rag.DriveFile, error) {
		callCtx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()
		content, err := download(callCtx, svc, df.ID)
		if err != nil {
			return df, err
		}
		df.Content = content
		return df, nil
	})

	fetched := make([]rag.DriveFile, 0, len(files))
	var skipped []rag.Skipped
	for _, r := range results {
		df := files[r.Index]
		switch {
		case r.Err != nil:
			log.Warn("drive: content fetch failed, skipping file",
				"file_id", df.ID, "file_name", df.Name, "error", r.Err)
			skipped = append(skipped, skip(df, r.Err.Error()))
		case r.Value.Content == "":
			log.Info("drive: empty file, skipping", "file_id", df.ID, "file_name", df.Name)
			skipped = append(skipped, skip(df, "empty content"))
		default:
			fetched = append(fetched, r.Value)
		}
	}
	return fetched, skipped
}

// download performs one alt=media request and reads the body.
func download(ctx context.Context, svc *drive.Service, fileID string) (string, error) {
	resp, err := svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%w: %w: %s", ErrContentFetch, ErrFileNotFound, fileID)
		}
		return "", fmt.Errorf("%w: %s: %w", ErrContentFetch, fileID, err)
	}
	defer resp.Body.Close()

	var sb strings.Builder
	if _, err := io.Copy(&sb, resp.Body); err != nil {
		return "", fmt.Errorf("%w: %s: read body: %w", ErrContentFetch, fileID, err)
	}
	// Non-UTF-8 files (Latin-1 notes) are kept; invalid bytes become U+FFFD.
	return strings.ToValidUTF8(sb.String(), "\uFFFD"), nil
}

// skip builds a fetch-stage Skipped entry.
func skip(df rag.DriveFile, reason string) rag.Skipped {
	return rag.Skipped{FileID: df.ID, FileName: df.Name, Stage: rag.StageFetch, Reason: reason}
}

// isNotFound reports whether err is a Drive 404.
func isNotFound(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == http.StatusNotFound
	}
	return false
}
