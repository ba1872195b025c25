package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weftlang/weft/internal/ast"
)

// NewParseCommand creates the parse command: source text to AST dump.
func NewParseCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "parse <file>",
		Short:        "Parse a WEFT program and print its AST",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := loadProgram(args[0])
			if err != nil {
				return err
			}

			if rootOpts.Format == "json" {
				return printJSON(cmd, map[string]any{
					"statements":  len(prog.Statements),
					"fingerprint": ast.Fingerprint(prog),
					"dump":        ast.Dump(prog),
				})
			}
			fmt.Fprint(cmd.OutOrStdout(), ast.Dump(prog))
			return nil
		},
	}
	return cmd
}
