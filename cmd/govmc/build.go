package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <file.go>",
		Short: "parse, type-check, and generate code for a source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := compileFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "compiled %s: %d function(s), %d global(s)\n",
				args[0], len(res.mod.Funcs), len(res.mod.Globals))
			return nil
		},
	}
	return cmd
}
