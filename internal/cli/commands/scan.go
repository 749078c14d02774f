// Package commands holds the ddgscan subcommands.
package commands

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/structbio/ddgscan/internal/cli/config"
	"github.com/structbio/ddgscan/internal/errdefs"
	"github.com/structbio/ddgscan/internal/mutation"
	"github.com/structbio/ddgscan/internal/pipeline"
)

// ScanOptions holds the scan command's own flags; config-backed values
// come from the persistent flags via the loader.
type ScanOptions struct {
	Mutations     string
	MutationsFile string
	Self          bool
	Interface     bool
	Multimer      bool
}

// NewScanCommand creates the scan command.
func NewScanCommand() *cobra.Command {
	opts := &ScanOptions{}

	cmd := &cobra.Command{
		Use:   "scan [structures...]",
		Short: "Run a mutational scan over one or more structures",
		Long: `Repair every input structure, mutate every position to the target
residue types, optionally compute chain-pair interface energies, and
aggregate the replicate energies into per-mutation statistics.

Structures given together must agree on their residue sets; they are
treated as structural variants and averaged in a second pass.`,
		Example: `  # Full 20-type scan of one structure
  ddgscan scan model1.pdb

  # Restricted target list over three structural variants
  ddgscan scan --mutations W,F,Y model1.pdb model2.pdb model3.pdb

  # Self-mutation noise baseline
  ddgscan scan --self model1.pdb

  # Interface energies of a multimer, chains mutated in lockstep
  ddgscan scan --interface --multimer dimer.pdb`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.Mutations, "mutations", "m", "", "Comma-separated target residue types (default: all twenty)")
	cmd.Flags().StringVar(&opts.MutationsFile, "mutations-file", "", "File with target residue types, whitespace or comma separated")
	cmd.Flags().BoolVar(&opts.Self, "self", false, "Self-mutation mode: mutate every position to its own wild type")
	cmd.Flags().BoolVar(&opts.Interface, "interface", false, "Also compute chain-pair interface energies")
	cmd.Flags().BoolVar(&opts.Multimer, "multimer", false, "Mutate equivalent positions across chains in lockstep")
	cmd.MarkFlagsMutuallyExclusive("mutations", "mutations-file")
	cmd.MarkFlagsMutuallyExclusive("mutations", "self")
	cmd.MarkFlagsMutuallyExclusive("mutations-file", "self")

	return cmd
}

func runScan(cmd *cobra.Command, opts *ScanOptions, args []string) error {
	cfg := config.GetCurrentConfig()
	if cfg == nil {
		return errdefs.Configuration("configuration not loaded", nil)
	}
	logger := config.GetLogger(cmd.Context())

	targets, err := resolveTargets(opts)
	if err != nil {
		return err
	}

	binary, err := resolveEngineBinary(cfg)
	if err != nil {
		return err
	}

	pcfg := pipeline.Config{
		EngineBinary: binary,
		WorkDir:      cfg.WorkDir,
		ResultsDir:   cfg.ResultsDir,
		HistoryPath:  cfg.HistoryPath,
		Workers:      cfg.Workers,
		Replicates:   cfg.Replicates,
		Timeout:      time.Duration(cfg.Engine.TimeoutSeconds) * time.Second,
		Link:         cfg.Link,
		Keep:         cfg.Keep,
		Archive:      cfg.Archive,
		CaptureLog:   cfg.CaptureLog,
		Targets:      targets,
		SelfOnly:     opts.Self,
		Interface:    opts.Interface,
		Multimer:     opts.Multimer,
		Logger:       logger,
	}
	if pcfg.RepairTemplate, err = loadTemplate(cfg.Engine.RepairTemplate, pipeline.DefaultRepairTemplate); err != nil {
		return err
	}
	if pcfg.MutateTemplate, err = loadTemplate(cfg.Engine.MutateTemplate, pipeline.DefaultMutateTemplate); err != nil {
		return err
	}
	if pcfg.InterfaceTemplate, err = loadTemplate(cfg.Engine.InterfaceTemplate, pipeline.DefaultInterfaceTemplate); err != nil {
		return err
	}

	p, err := pipeline.New(pcfg)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := p.Scan(ctx, args)
	if err != nil {
		return err
	}

	printSummary(cmd, summary)
	return nil
}

// resolveTargets builds the target type list from the scan flags. Nil
// means the full twenty-type default.
func resolveTargets(opts *ScanOptions) ([]string, error) {
	if opts.Self {
		return nil, nil
	}
	var tokens []string
	switch {
	case opts.MutationsFile != "":
		raw, err := os.ReadFile(opts.MutationsFile)
		if err != nil {
			return nil, errdefs.Configuration(fmt.Sprintf("cannot read mutations file %s", opts.MutationsFile), err)
		}
		tokens = strings.FieldsFunc(string(raw), func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
		})
	case opts.Mutations != "":
		tokens = strings.Split(opts.Mutations, ",")
	default:
		return nil, nil
	}
	return mutation.ParseTargets(tokens)
}

// resolveEngineBinary locates the configured engine executable, going
// through PATH for bare names.
func resolveEngineBinary(cfg *config.Config) (string, error) {
	binary := cfg.Engine.Binary
	if binary == "" {
		return "", errdefs.Configuration("engine binary not configured (set engine.binary, DDGSCAN_ENGINE_BINARY, or --engine)", nil)
	}
	if !strings.ContainsRune(binary, os.PathSeparator) {
		resolved, err := exec.LookPath(binary)
		if err != nil {
			return "", errdefs.Configuration(fmt.Sprintf("engine binary %s not found in PATH", binary), err)
		}
		return resolved, nil
	}
	return binary, nil
}

// loadTemplate reads a template file, or falls back to the built-in
// text when no path is configured.
func loadTemplate(path, fallback string) (string, error) {
	if path == "" {
		return fallback, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", errdefs.Configuration(fmt.Sprintf("cannot read template %s", path), err)
	}
	return string(raw), nil
}

func printSummary(cmd *cobra.Command, summary *pipeline.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Structure", "Succeeded", "Failed"})
	for _, s := range summary.Structures {
		t.AppendRow(table.Row{s.Name, s.Succeeded, s.Failed})
	}
	t.AppendFooter(table.Row{"labels", summary.Labels, summary.Elapsed})
	t.Render()

	if len(summary.Skipped) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %d labels without successful data:\n", len(summary.Skipped))
		for _, label := range summary.Skipped {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", label)
		}
	}
	if summary.ScanID != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Scan %s (%s mode) finished in %s\n", summary.ScanID, summary.Mode, summary.Elapsed)
	}
}
