package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/raga-go/internal/config"
	"github.com/54b3r/raga-go/internal/logging"
	"github.com/54b3r/raga-go/internal/store"
)

// NewHistoryCmd constructs the `raga history` command, which prints the most
// recent entries of the query log.
func NewHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent queries and how they were routed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			settings, err := config.SettingsFromEnv()
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			qlog := openRegistry(settings.DBPath, logging.FromContext(ctx))
			if qlog == nil {
				return fmt.Errorf("history: query log is unavailable")
			}
			defer func() { _ = qlog.Close() }()

			records, err := qlog.Recent(ctx, limit)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			writeHistory(cmd, records)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")

	return cmd
}

func writeHistory(cmd *cobra.Command, records []store.QueryRecord) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTOOL\tSTATUS\tMS\tQUERY")
	for _, r := range records {
		status := r.Status
		if r.Kind != "" {
			status += " (" + r.Kind + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			r.CreatedAt.Format(time.RFC3339), r.Tool, status, r.DurationMS, r.Query)
	}
	_ = tw.Flush()
}
