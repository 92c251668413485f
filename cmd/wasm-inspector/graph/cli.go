package graph

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeffasante/wasm-inspector/callgraph"
	"github.com/jeffasante/wasm-inspector/graphdb"
	"github.com/jeffasante/wasm-inspector/load"
)

func Command(opts *load.Options) *cobra.Command {
	var format string
	var sqlitePath string

	command := &cobra.Command{
		Use:   "graph [path to module]",
		Short: "Print a module's call graph",
		Long:  "Print the static call graph of a WebAssembly module and the functions no entry point reaches",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("expected exactly one argument")
			}
			mod, err := load.ResolveFile(args[0], *opts)
			if err != nil {
				return err
			}
			g := callgraph.Build(mod)

			if sqlitePath != "" {
				store, err := graphdb.Open(sqlitePath)
				if err != nil {
					return err
				}
				defer store.Close()

				if _, err := store.Save(cmd.Context(), args[0], mod, g); err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			switch format {
			case "text":
				return printText(w, mod, g)
			case "csv":
				return printNodes(w, g)
			case "edges":
				return printEdges(w, g)
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}

	command.PersistentFlags().StringVarP(&format, "format", "f", "text", "output format: text, csv (nodes) or edges (CSV)")
	command.PersistentFlags().StringVar(&sqlitePath, "sqlite", "", "also save the graph to this SQLite database")

	return command
}
