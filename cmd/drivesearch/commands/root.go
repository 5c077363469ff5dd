// Package commands defines all Cobra CLI commands for the drivesearch binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/drivesearch-go/internal/audit"
	"github.com/54b3r/drivesearch-go/internal/config"
	"github.com/54b3r/drivesearch-go/internal/logging"
)

// configPath holds the --config flag value.
var configPath string

// envFile holds the --env-file flag value.
var envFile string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "drivesearch",
		Short: "Semantic search over your Google Drive text files",
		Long: `drivesearch signs a user in with Google, pulls their plain-text and
markdown files from Drive, embeds them and stores the vectors in Qdrant,
then answers natural-language searches against that index.

Configuration comes from a .env file, a YAML file (~/.drivesearch/config.yaml)
and environment variables; environment variables always win.
See 'drivesearch --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env first so LOG_LEVEL and LOG_FORMAT from it apply to the logger.
			dotenv, err := config.LoadDotEnv(envFile)
			if err != nil {
				return err
			}

			log := logging.New()
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			ctx := logging.WithLogger(cmd.Context(), log)
			cmd.SetContext(ctx)
			audit.LogCommandStart(ctx, log, cmd.Name(), path, dotenv)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.drivesearch/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file; missing files are ignored")

	root.AddCommand(
		NewServeCmd(),
		NewSearchCmd(),
		NewIngestCmd(),
		NewAuthURLCmd(),
		NewVersionCmd(),
	)

	return root
}
