package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/weftlang/weft/internal/config"
	"github.com/weftlang/weft/internal/graph"
	"github.com/weftlang/weft/internal/tagger"
)

// GraphOptions holds flags for the graph command.
type GraphOptions struct {
	*RootOptions
	Config string
}

// NewGraphCommand creates the graph command: dump the execution graph.
func NewGraphCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GraphOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:          "graph <file>",
		Short:        "Print execution order, dependencies, and contexts",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(opts, cmd, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to settings file")
	return cmd
}

func runGraph(opts *GraphOptions, cmd *cobra.Command, path string) error {
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

	if opts.Format == "json" {
		instances := map[string]any{}
		for _, name := range g.ExecOrder {
			inst := g.Nodes[name]
			deps := make([]string, 0, len(inst.Deps))
			for dep := range inst.Deps {
				deps = append(deps, dep)
			}
			sort.Strings(deps)
			instances[name] = map[string]any{
				"kind":     inst.Kind.String(),
				"contexts": inst.Contexts.String(),
				"primary":  cfg.Policy.Primary(inst.Contexts).String(),
				"deps":     deps,
			}
		}
		return printJSON(cmd, map[string]any{
			"exec_order": g.ExecOrder,
			"instances":  instances,
		})
	}

	fmt.Fprint(cmd.OutOrStdout(), g.Dump())
	return nil
}
