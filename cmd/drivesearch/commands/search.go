package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/54b3r/drivesearch-go/internal/logging"
	"github.com/54b3r/drivesearch-go/internal/rag"
)

// snippetRunes bounds the content preview printed per result.
const snippetRunes = 80

// NewSearchCmd constructs the `drivesearch search` command, which queries the
// vector index directly without going through the HTTP API.
func NewSearchCmd() *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed Drive files by meaning",
		Long: `Embed the query and return the closest indexed files from Qdrant.

Examples:
  drivesearch search "quarterly planning notes"
  drivesearch search --limit 3 "onboarding checklist"
  drivesearch search --json "release process" | jq '.[].fileName'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return errors.New("search: query must not be empty")
			}
			if limit < 0 {
				return errors.New("search: --limit must not be negative")
			}

			generator, dims, err := buildGenerator(ctx, log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			vectors, err := buildVectorStore(ctx, log, dims)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer func() { _ = vectors.Close() }()

			searcher, err := rag.NewSearcher(generator, vectors, getEnvInt("SEARCH_DEFAULT_LIMIT", rag.DefaultSearchLimit))
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			results, err := searcher.Search(ctx, query, limit)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			if results == nil {
				results = []rag.SearchResult{}
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			return printSearchResults(cmd, results)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results (default: SEARCH_DEFAULT_LIMIT or 10)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")

	return cmd
}

// printSearchResults writes results as an aligned table.
func printSearchResults(cmd *cobra.Command, results []rag.SearchResult) error {
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		_, err := fmt.Fprintln(out, "No matching files")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tFILE\tSNIPPET")
	for _, r := range results {
		snippet := strings.Join(strings.Fields(rag.TruncateRunes(r.Content, snippetRunes)), " ")
		fmt.Fprintf(w, "%.4f\t%s\t%s\n", r.Score, r.FileName, snippet)
	}
	return w.Flush()
}
