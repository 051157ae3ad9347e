package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/raga-go/internal/logging"
)

// NewSuggestCmd constructs the `raga suggest` command, which proposes
// questions the indexed documents can answer.
func NewSuggestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest",
		Short: "Suggest questions about the indexed documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, logging.FromContext(ctx), buildOptions{withModel: true})
			if err != nil {
				return fmt.Errorf("suggest: %w", err)
			}
			defer rt.Close()

			suggestions, err := rt.orch.Suggest(ctx)
			if err != nil {
				return fmt.Errorf("suggest: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(suggestions) == 0 {
				fmt.Fprintln(out, "no suggestions (is the index empty?)")
				return nil
			}
			for _, s := range suggestions {
				fmt.Fprintf(out, "- %s\n", s.Question)
			}
			return nil
		},
	}
}
