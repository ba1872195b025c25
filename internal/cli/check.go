package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weftlang/weft/internal/ast"
	"github.com/weftlang/weft/internal/config"
	"github.com/weftlang/weft/internal/graph"
	"github.com/weftlang/weft/internal/routes"
	"github.com/weftlang/weft/internal/tagger"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Config string
}

// NewCheckCommand creates the check command: full static pipeline
// (parse, tag, graph) without compiling backends.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:          "check <file>",
		Short:        "Tag routes and build the execution graph, reporting errors",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, cmd, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to settings file")
	return cmd
}

func runCheck(opts *CheckOptions, cmd *cobra.Command, path string) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return err
	}

	prog, err := loadProgram(path)
	if err != nil {
		return err
	}

	tg := tagger.New(tagger.WithPolicy(cfg.Policy))
	if _, err := tg.Tag(prog); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	g, err := graph.Build(prog)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	crossContext := 0
	contexts := map[string]string{}
	for _, name := range g.ExecOrder {
		inst := g.Nodes[name]
		contexts[name] = inst.Contexts.String()
		if inst.Contexts.Len() > 1 {
			crossContext++
		}
	}
	required := requiredRouteNames(prog)

	if opts.Format == "json" {
		return printJSON(cmd, map[string]any{
			"ok":            true,
			"fingerprint":   ast.Fingerprint(prog),
			"instances":     len(g.ExecOrder),
			"cross_context": crossContext,
			"routes":        required,
			"contexts":      contexts,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ok: %d instances, %d cross-context\n", len(g.ExecOrder), crossContext)
	fmt.Fprintf(out, "fingerprint: %s\n", ast.Fingerprint(prog))
	fmt.Fprintf(out, "routes: %v\n", required)
	return nil
}

func requiredRouteNames(prog *ast.Program) []string {
	var set routes.Set
	for _, stmt := range prog.Statements {
		if out, ok := stmt.(*ast.Output); ok {
			if r, known := ast.OutputRoute(out); known {
				set = set.Add(r)
			}
		}
	}
	names := make([]string, 0, 3)
	for _, r := range set.Slice() {
		names = append(names, r.String())
	}
	return names
}
