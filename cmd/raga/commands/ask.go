package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/raga-go/internal/agent"
	"github.com/54b3r/raga-go/internal/logging"
)

// NewAskCmd constructs the `raga ask` command, which routes a single question
// and prints the answer with its decision trace.
func NewAskCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Route and answer one question",
		Long: `Route one question to the calculator, the dictionary or document QA and
print the answer, the chosen tool, the routing rationale and any context
snippets used.

Examples:
  raga ask "what is 12 * (3 + 4)?"
  raga ask "define photosynthesis"
  raga ask "how many employees does RAG Technologies have?"
  raga ask --json "What are the key products?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			rt, err := buildRuntime(ctx, log, buildOptions{withModel: true})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer rt.Close()

			resp, err := rt.orch.Query(ctx, strings.Join(args, " "))
			if err != nil {
				if resp != nil && resp.Tool != "" {
					printTrace(cmd.ErrOrStderr(), resp)
				}
				return fmt.Errorf("ask: %w", err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			printResponse(cmd.OutOrStdout(), resp)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full response as JSON")

	return cmd
}

// printResponse writes a human-readable rendering of resp.
func printResponse(w io.Writer, resp *agent.QueryResponse) {
	fmt.Fprintln(w, resp.Answer)
	fmt.Fprintln(w)
	printTrace(w, resp)
	if resp.Source != "" {
		fmt.Fprintf(w, "source:    %s\n", resp.Source)
	}
	for i, s := range resp.Snippets {
		fmt.Fprintf(w, "\n[%d] %s #%d (score %.3f)\n%s\n", i+1, s.Source, s.Ordinal, s.Score, s.Text)
	}
}

// printTrace writes the routing decision of resp.
func printTrace(w io.Writer, resp *agent.QueryResponse) {
	fmt.Fprintf(w, "tool:      %s\n", resp.Tool)
	fmt.Fprintf(w, "rationale: %s\n", resp.Rationale)
}
