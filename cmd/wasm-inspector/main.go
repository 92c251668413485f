package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeffasante/wasm-inspector/cmd/wasm-inspector/dump"
	"github.com/jeffasante/wasm-inspector/cmd/wasm-inspector/graph"
	"github.com/jeffasante/wasm-inspector/load"
	"github.com/jeffasante/wasm-inspector/wasm"
)

var version = "<unknown>"

func configureCLI() *cobra.Command {
	var cpuProfile string
	var memProfile string
	var verbose bool
	var opts load.Options

	rootCommand := &cobra.Command{
		Use:           "wasm-inspector",
		Short:         "WebAssembly module inspector",
		Long:          "wasm-inspector - structural analysis and call graphs for WebAssembly modules",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logger, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				wasm.SetLogger(logger)
			}

			if cpuProfile != "" {
				f, err := os.Create(cpuProfile)
				if err != nil {
					return err
				}
				pprof.StartCPUProfile(f)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			wasm.Logger().Sync()

			if cpuProfile != "" {
				pprof.StopCPUProfile()
			}

			if memProfile != "" {
				f, err := os.Create(memProfile)
				if err != nil {
					return err
				}
				runtime.GC()
				pprof.WriteHeapProfile(f)
			}

			return nil
		},
	}

	rootCommand.AddCommand(dump.Command(&opts))
	rootCommand.AddCommand(graph.Command(&opts))

	rootCommand.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log decoder activity to stderr")
	rootCommand.PersistentFlags().Int64Var(&opts.MaxSize, "max-size", load.DefaultMaxSize, "refuse modules larger than this many bytes (negative for no limit)")

	rootCommand.PersistentFlags().StringVar(&cpuProfile, "cpu", "", "emit Go CPU profile data to this path")
	rootCommand.PersistentFlags().StringVar(&memProfile, "mem", "", "emit Go memory profile data to this path")

	rootCommand.PersistentFlags().MarkHidden("cpu")
	rootCommand.PersistentFlags().MarkHidden("mem")

	return rootCommand
}

func main() {
	rootCommand := configureCLI()

	if err := rootCommand.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
