package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/structbio/ddgscan/internal/mutation"
	"github.com/structbio/ddgscan/internal/structure"
)

// NewPositionsCommand creates the positions command.
func NewPositionsCommand() *cobra.Command {
	var multimer bool

	cmd := &cobra.Command{
		Use:   "positions <structure>",
		Short: "List the chains and mutable positions of a structure",
		Long: `Enumerate the chains and residue positions ddgscan would mutate,
without running the engine. With --multimer, equivalent positions across
chains are shown as one lockstep group.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := structure.Load(args[0])
			if err != nil {
				return err
			}

			model, err := mutation.Build(s, mutation.Options{Multimer: multimer})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chains (%s), %d positions\n",
				s.Name, len(s.Chains), strings.Join(s.Chains, ", "), len(model.Positions))

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Position", "Wild Type", "Chains"})
			for _, pos := range model.Positions {
				chains := make([]string, len(pos.Members))
				for i, m := range pos.Members {
					chains[i] = m.Chain
				}
				t.AppendRow(table.Row{pos.Name(), pos.WildType(), strings.Join(chains, ",")})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&multimer, "multimer", false, "Group equivalent positions across chains")
	return cmd
}
