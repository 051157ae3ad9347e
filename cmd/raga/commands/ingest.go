package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/54b3r/raga-go/internal/ingestion"
	"github.com/54b3r/raga-go/internal/logging"
)

// NewIngestCmd constructs the `raga ingest` command, which chunks, embeds and
// indexes documents from files and URLs.
func NewIngestCmd() *cobra.Command {
	var urls []string
	var reindex bool

	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Ingest documents into the retrieval index",
		Long: `Chunk, embed and store documents so document QA can answer from them.

Each file is ingested under its base name; each URL under the last segment
of its path. Re-ingesting a name replaces its previous chunks. Failures are
reported per document and do not stop the rest of the batch.

--reindex rebuilds the index from every document in the registry.

Environment variables:
  INDEX_BACKEND        qdrant | pgvector | memory (default: qdrant)
  INDEX_NAME           Collection or table name (default: rag-agent-index)
  CHUNK_SIZE           Characters per chunk (default: 300)
  CHUNK_OVERLAP        Characters shared by adjacent chunks (default: 50)
  EMBEDDING_PROVIDER   ollama | openai | azure | hash

Examples:
  raga ingest docs/company.txt docs/products.txt
  raga ingest --url https://example.com/handbook.txt
  raga ingest --reindex`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(urls) == 0 && !reindex {
				return fmt.Errorf("ingest: provide at least one file, --url or --reindex")
			}
			ctx := cmd.Context()
			log := logging.FromContext(ctx)
			out := cmd.OutOrStdout()
			progress := func(msg string) { fmt.Fprintln(out, msg) }

			rt, err := buildRuntime(ctx, log, buildOptions{})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer rt.Close()

			if reindex {
				report, err := rt.pipeline.Reindex(ctx, progress)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				return summarise(cmd, report)
			}

			docs := make([]ingestion.Document, 0, len(args)+len(urls))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				docs = append(docs, ingestion.Document{Name: filepath.Base(path), Text: string(data)})
			}
			for _, u := range urls {
				doc, err := rt.pipeline.Fetch(ctx, u)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				docs = append(docs, doc)
			}

			return summarise(cmd, rt.pipeline.Ingest(ctx, docs, progress))
		},
	}

	cmd.Flags().StringArrayVar(&urls, "url", nil, "Fetch and ingest a text/plain URL (repeatable)")
	cmd.Flags().BoolVar(&reindex, "reindex", false, "Rebuild the index from the document registry")

	return cmd
}

// summarise prints a report and returns an error when any document failed.
func summarise(cmd *cobra.Command, report ingestion.Report) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ingested %d document(s)\n", len(report.Succeeded))
	if len(report.Failed) == 0 {
		return nil
	}
	names := make([]string, 0, len(report.Failed))
	for name := range report.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "failed %s: %v\n", name, report.Failed[name])
	}
	return fmt.Errorf("ingest: %d document(s) failed", len(report.Failed))
}
