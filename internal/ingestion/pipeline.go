// Package ingestion implements the Drive ingest pipeline: list the user's
// text files, download their contents, embed each file and upsert the
// vectors into the index. Per-file failures are isolated and reported; only
// listing and index failures abort a run.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/drivesearch-go/internal/credential"
	"github.com/54b3r/drivesearch-go/internal/logging"
	"github.com/54b3r/drivesearch-go/internal/rag"
	"github.com/54b3r/drivesearch-go/internal/store"
)

// State is a pipeline step.
type State string

const (
	StateListing         State = "listing"
	StateFetchingContent State = "fetching_content"
	StateEmbedding       State = "embedding"
	StateStoring         State = "storing"
	StateDone            State = "done"
	// StateEmptyDone means the listing returned no files and nothing else ran.
	StateEmptyDone State = "empty_done"
)

// DriveSource lists and downloads a user's files. *drive.Fetcher satisfies it.
type DriveSource interface {
	ListTextFiles(ctx context.Context, rec credential.Record) ([]rag.DriveFile, error)
	FetchAllContents(ctx context.Context, rec credential.Record, files []rag.DriveFile) ([]rag.DriveFile, []rag.Skipped)
}

// FileEmbedder embeds files one by one. *embedder.Generator satisfies it.
type FileEmbedder interface {
	EmbedFiles(ctx context.Context, files []rag.DriveFile) ([]rag.FileVector, []rag.Skipped)
}

// RunRecorder persists a summary of each run. *store.SQLiteStore satisfies it.
type RunRecorder interface {
	Record(ctx context.Context, run store.Run) error
}

// IngestedFile names one file whose vector was stored.
type IngestedFile struct {
	FileName string `json:"fileName"`
	FileID   string `json:"fileId"`
}

// Result summarises a completed run.
type Result struct {
	// RunID identifies the run in the history store.
	RunID string
	// Listed is the number of files returned by the listing.
	Listed int
	// Count is the number of vectors stored.
	Count int
	// Files lists the stored files in listing order.
	Files []IngestedFile
	// Skipped lists files dropped during fetch or embed.
	Skipped []rag.Skipped
	// State is StateDone or StateEmptyDone.
	State State
}

// Config holds optional pipeline collaborators.
type Config struct {
	// Recorder persists run summaries. Nil disables history.
	Recorder RunRecorder
	// Now is the clock. Nil uses time.Now.
	Now func() time.Time
}

// Pipeline orchestrates list → fetch → embed → store for one user.
type Pipeline struct {
	// drive lists and downloads files.
	drive DriveSource
	// embedder converts file text into vectors.
	embedder FileEmbedder
	// vectors persists the embedded files.
	vectors rag.VectorStore
	// recorder persists run summaries; may be nil.
	recorder RunRecorder
	// now is the clock used for run timestamps.
	now func() time.Time
}

// NewPipeline constructs a Pipeline from the provided dependencies.
func NewPipeline(drive DriveSource, embedder FileEmbedder, vectors rag.VectorStore, cfg *Config) (*Pipeline, error) {
	if drive == nil {
		return nil, fmt.Errorf("ingestion: drive source must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if vectors == nil {
		return nil, fmt.Errorf("ingestion: vector store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		drive:    drive,
		embedder: embedder,
		vectors:  vectors,
		recorder: cfg.Recorder,
		now:      now,
	}, nil
}

// Run ingests every text file visible to rec. A listing or index failure
// aborts the run and is returned; vectors from batches committed before an
// index failure stay in the index.
func (p *Pipeline) Run(ctx context.Context, rec credential.Record) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	started := p.now()
	log := logging.FromContext(ctx).With("run_id", res.RunID)

	res, err := p.run(logging.WithLogger(ctx, log), rec, res)
	p.record(ctx, started, res, err)
	return res, err
}

// run walks the state machine.
func (p *Pipeline) run(ctx context.Context, rec credential.Record, res Result) (Result, error) {
	log := logging.FromContext(ctx)
	enter := func(s State, attrs ...any) {
		res.State = s
		log.Info("ingestion: state", append([]any{"state", string(s)}, attrs...)...)
	}

	enter(StateListing)
	files, err := p.drive.ListTextFiles(ctx, rec)
	if err != nil {
		return res, fmt.Errorf("ingestion: %w", err)
	}
	res.Listed = len(files)
	if len(files) == 0 {
		enter(StateEmptyDone, "count", 0)
		return res, nil
	}

	enter(StateFetchingContent, "files", len(files))
	fetched, skipped := p.drive.FetchAllContents(ctx, rec, files)
	res.Skipped = append(res.Skipped, skipped...)

	enter(StateEmbedding, "files", len(fetched))
	vectors, skipped := p.embedder.EmbedFiles(ctx, fetched)
	res.Skipped = append(res.Skipped, skipped...)

	enter(StateStoring, "vectors", len(vectors))
	if err := p.vectors.UpsertAll(ctx, vectors); err != nil {
		return res, fmt.Errorf("ingestion: %w", err)
	}

	res.Count = len(vectors)
	res.Files = make([]IngestedFile, 0, len(vectors))
	for _, v := range vectors {
		res.Files = append(res.Files, IngestedFile{FileName: v.FileName, FileID: v.FileID})
	}
	enter(StateDone, "count", res.Count, "skipped", len(res.Skipped))
	return res, nil
}

// record persists the run summary. Failures are logged and never fail the
// ingest.
func (p *Pipeline) record(ctx context.Context, started time.Time, res Result, runErr error) {
	if p.recorder == nil {
		return
	}
	run := store.Run{
		ID:         res.RunID,
		StartedAt:  started,
		FinishedAt: p.now(),
		Listed:     res.Listed,
		Stored:     res.Count,
		Skipped:    len(res.Skipped),
		Outcome:    Outcome(res, runErr),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	// The summary is written even when the caller has gone away.
	if err := p.recorder.Record(context.WithoutCancel(ctx), run); err != nil {
		logging.FromContext(ctx).Warn("ingestion: failed to record run", "run_id", res.RunID, "error", err)
	}
}

// Outcome classifies a finished run.
func Outcome(res Result, err error) store.Outcome {
	switch {
	case err != nil:
		return store.OutcomeFailed
	case res.State == StateEmptyDone:
		return store.OutcomeEmpty
	default:
		return store.OutcomeSuccess
	}
}
