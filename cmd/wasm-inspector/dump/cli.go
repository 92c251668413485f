package dump

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/jeffasante/wasm-inspector/callgraph"
	"github.com/jeffasante/wasm-inspector/load"
)

func Command(opts *load.Options) *cobra.Command {
	command := &cobra.Command{
		Use:   "dump [path to module]",
		Short: "Dump per-function statistics",
		Long:  "Dump one CSV row of statistics for each function defined by a WebAssembly module",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("expected exactly one argument")
			}
			mod, err := load.ResolveFile(args[0], *opts)
			if err != nil {
				return err
			}
			return dumpStats(cmd.OutOrStdout(), mod, callgraph.Build(mod))
		},
	}

	return command
}
