package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newDumpCmd prints a disassembly listing of a compiled instr.Module's
// functions and their code.
func newDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <file.go>",
		Short: "compile a source file and print its disassembled instructions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := compileFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for key, fn := range res.mod.Funcs {
				entry := ""
				if int64(key) == res.mod.Entry {
					entry = " (entry)"
				}
				fmt.Fprintf(out, "func #%d %s%s  params=%d results=%d locals=%d\n",
					key, fn.Name, entry, fn.NumParams, fn.NumResults, fn.NumLocals)
				for pc, in := range fn.Code {
					fmt.Fprintf(out, "  %4d  %-16s index=%d wide=%d\n", pc, in.Op, in.Index, in.Wide)
				}
			}
			return nil
		},
	}
}
