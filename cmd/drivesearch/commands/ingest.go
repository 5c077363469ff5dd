package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/drivesearch-go/internal/credential"
	"github.com/54b3r/drivesearch-go/internal/ingestion"
	"github.com/54b3r/drivesearch-go/internal/logging"
)

// NewIngestCmd constructs the `drivesearch ingest` command, which runs one
// ingest for a signed-in user from the terminal.
func NewIngestCmd() *cobra.Command {
	var token string
	var refreshToken string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a user's Drive text files into the vector index",
		Long: `List the user's plain-text and Markdown files in Google Drive, download
them, embed each file and upsert the vectors into Qdrant.

The access token is looked up in the credential store. With the default
in-memory store there are no saved sessions, so the token (and optionally
a refresh token) is seeded from the flags for this run.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: drive-files)
  EMBEDDING_PROVIDER   Embedding backend: openai, azure, gemini, ollama
  OAUTH_CLIENT_ID      Needed to refresh expired tokens

Examples:
  drivesearch ingest --token ya29.a0Af...
  DRIVESEARCH_TOKEN=ya29.a0Af... drivesearch ingest --refresh-token 1//0g...
  CREDENTIAL_STORE=redis drivesearch ingest --token ya29.a0Af...`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			if token == "" {
				token = os.Getenv("DRIVESEARCH_TOKEN")
			}
			if token == "" {
				return errors.New("ingest: --token or DRIVESEARCH_TOKEN is required")
			}

			creds, err := buildCredentialStore(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer func() { _ = creds.store.Close() }()

			if err := seedToken(cmd, creds.store, token, refreshToken); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			manager, err := buildAuthManager(creds.store, refreshToken != "")
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			rec, err := manager.Resolve(ctx, token)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			generator, dims, err := buildGenerator(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			vectors, err := buildVectorStore(ctx, log, dims)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer func() { _ = vectors.Close() }()

			pipeCfg := &ingestion.Config{}
			if history := openHistory(log); history != nil {
				defer func() { _ = history.Close() }()
				pipeCfg.Recorder = history
			}
			pipeline, err := ingestion.NewPipeline(buildFetcher(manager), generator, vectors, pipeCfg)
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			log.Info("starting ingestion", slog.String("token", credential.Fingerprint(rec.AccessToken)))
			res, err := pipeline.Run(ctx, rec)
			if err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}
			log.Info("ingestion complete",
				slog.String("run_id", res.RunID),
				slog.Int("stored", res.Count),
				slog.Int("skipped", len(res.Skipped)),
			)
			return printIngestResult(cmd, res)
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "Google access token of the user to ingest")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "Refresh token used when the access token has expired")

	return cmd
}

// seedToken puts a record for token into store when the store has none, so
// the in-memory store can serve a one-shot CLI run. With a refresh token the
// record is seeded as expired to force a renewal.
func seedToken(cmd *cobra.Command, store credential.Store, token, refreshToken string) error {
	ctx := cmd.Context()
	_, err := store.Get(ctx, token)
	if err == nil {
		return nil
	}
	if !errors.Is(err, credential.ErrNotFound) {
		return fmt.Errorf("load token: %w", err)
	}
	rec := credential.Record{AccessToken: token, RefreshToken: refreshToken}
	if refreshToken == "" {
		rec.ExpiryDate = time.Now().Add(time.Hour).UnixMilli()
	}
	logging.FromContext(ctx).Debug("ingest: seeding token from flags",
		slog.String("token", credential.Fingerprint(token)))
	return store.Put(ctx, rec)
}

// printIngestResult writes the stored and skipped files as a table.
func printIngestResult(cmd *cobra.Command, res ingestion.Result) error {
	out := cmd.OutOrStdout()
	if res.State == ingestion.StateEmptyDone {
		_, err := fmt.Fprintln(out, "No text files found in Drive")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Run %s: %d stored, %d skipped\n\n", res.RunID, res.Count, len(res.Skipped))
	fmt.Fprintln(w, "STATUS\tFILE\tID\tREASON")
	for _, f := range res.Files {
		fmt.Fprintf(w, "stored\t%s\t%s\t\n", f.FileName, f.FileID)
	}
	for _, s := range res.Skipped {
		fmt.Fprintf(w, "skipped (%s)\t%s\t%s\t%s\n", s.Stage, s.FileName, s.FileID, s.Reason)
	}
	return w.Flush()
}
