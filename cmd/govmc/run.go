package main

import (
	"fmt"
	"os"

	"github.com/corestack/govm/internal/vm"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var trace bool
	var stepLimit int64

	cmd := &cobra.Command{
		Use:   "run <file.go>",
		Short: "compile and interpret a source file's func main",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := compileFile(args[0])
			if err != nil {
				return err
			}
			interp := vm.New(res.mod, res.reg, res.table)
			interp.Trace = trace
			interp.StepLimit = stepLimit
			results, err := interp.Run()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			for _, r := range results {
				fmt.Fprintln(cmd.OutOrStdout(), r.Typ)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&trace, "trace", false, "print a per-instruction execution trace to stderr")
	cmd.Flags().Int64Var(&stepLimit, "step-limit", 0, "abort after this many executed instructions (0 = unlimited)")
	return cmd
}
