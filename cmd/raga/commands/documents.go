package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/raga-go/internal/logging"
)

// NewDocumentsCmd constructs the `raga documents` command group.
func NewDocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List or remove ingested documents",
	}
	cmd.AddCommand(newDocumentsListCmd(), newDocumentsDeleteCmd())
	return cmd
}

func newDocumentsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, logging.FromContext(ctx), buildOptions{})
			if err != nil {
				return fmt.Errorf("documents: %w", err)
			}
			defer rt.Close()

			registry, err := rt.requireRegistry()
			if err != nil {
				return fmt.Errorf("documents: %w", err)
			}
			docs, err := registry.List(ctx)
			if err != nil {
				return fmt.Errorf("documents: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCHUNKS\tINGESTED")
			for _, d := range docs {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", d.ID, d.ChunkCount, d.IngestedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func newDocumentsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a document from the index and the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, logging.FromContext(ctx), buildOptions{})
			if err != nil {
				return fmt.Errorf("documents: %w", err)
			}
			defer rt.Close()

			if err := rt.pipeline.Delete(ctx, args[0]); err != nil {
				return fmt.Errorf("documents: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
