// Package cli provides the ddgscan command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/structbio/ddgscan/internal/cli/commands"
	"github.com/structbio/ddgscan/internal/cli/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// configKey stores the config in the command context.
type configKey struct{}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ddgscan",
		Short: "ddgscan - batch ddG mutational scanning",
		Long: `ddgscan automates large batches of structural-energy engine runs:
one repair per input structure, one mutation run per candidate position,
optional interface-energy runs, with bounded parallelism and aggregated
per-position statistics.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			var err error
			cfg, err = config.LoadConfig(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			logger := config.NewLogger(cfg.Verbose)
			ctx := context.WithValue(cmd.Context(), configKey{}, cfg)
			ctx = context.WithValue(ctx, config.LoggerKey(), logger)
			cmd.SetContext(ctx)

			if cfg.Verbose {
				if configFile := config.GetConfigFileUsed(); configFile != "" {
					fmt.Fprintf(os.Stderr, "Using config file: %s\n", configFile)
				}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	// Global persistent flags; config-backed values follow the
	// flags > env > file > defaults precedence.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./ddgscan.yaml)")
	rootCmd.PersistentFlags().String("engine", "", "Path to the energy engine binary")
	rootCmd.PersistentFlags().String("work-dir", "", "Base directory for run working directories")
	rootCmd.PersistentFlags().String("results-dir", "", "Directory for statistics reports")
	rootCmd.PersistentFlags().String("history", "", "Path to the scan history database")
	rootCmd.PersistentFlags().Int("workers", 0, "Maximum concurrent engine processes")
	rootCmd.PersistentFlags().Int("replicates", 0, "Engine replicates per mutation run")
	rootCmd.PersistentFlags().Int("timeout", 0, "Per-process timeout in seconds (0 disables)")
	rootCmd.PersistentFlags().Bool("link", true, "Hard-link inputs into run directories (falls back to copy)")
	rootCmd.PersistentFlags().Bool("keep", false, "Keep intermediate structure files after the scan")
	rootCmd.PersistentFlags().Bool("archive", false, "Archive run directories to .tar.gz after the scan")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(commands.NewScanCommand())
	rootCmd.AddCommand(commands.NewPositionsCommand())
	rootCmd.AddCommand(commands.NewVersionCommand(Version))

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// GetConfig retrieves the config from the command context.
func GetConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	return &config.Config{
		WorkDir:     config.DefaultWorkDir,
		ResultsDir:  config.DefaultResultsDir,
		HistoryPath: config.DefaultHistoryFile,
		Workers:     config.DefaultWorkers,
		Replicates:  config.DefaultReplicates,
	}
}
