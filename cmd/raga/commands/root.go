// Package commands defines all Cobra CLI commands for the raga binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/raga-go/internal/audit"
	"github.com/54b3r/raga-go/internal/config"
	"github.com/54b3r/raga-go/internal/logging"
)

// globalFlags holds the persistent flag values shared by every subcommand.
type globalFlags struct {
	configPath string
	envFile    string
	logLevel   string
}

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "raga",
		Short: "raga routes questions to document QA, a calculator or a dictionary",
		Long: `raga is a retrieval-augmented question answering service.

Each question is routed to exactly one handler: arithmetic goes to the
calculator, "define X" goes to the dictionary, and everything else is
answered from the ingested documents.

Model and embedding providers are selected via environment variables or a
YAML config file (~/.raga/config.yaml). A .env file in the working directory
is loaded first; real environment variables always win.
See 'raga --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(flags.envFile); err != nil {
				return err
			}

			log := logging.NewWithOptions(logging.Options{Level: flags.logLevel})

			// YAML values only fill env vars that are not already set.
			path, err := config.Load(flags.configPath, log)
			if err != nil {
				return err
			}

			ctx := logging.WithLogger(cmd.Context(), log)
			cmd.SetContext(ctx)
			audit.LogCommandStart(ctx, log, cmd.Name(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to YAML config file (default: ~/.raga/config.yaml)")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", "", "Path to a .env file (default: ./.env)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error (default: $LOG_LEVEL or info)")

	root.AddCommand(
		NewAskCmd(),
		NewIngestCmd(),
		NewDocumentsCmd(),
		NewSuggestCmd(),
		NewHistoryCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
