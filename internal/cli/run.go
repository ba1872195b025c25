package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/weftlang/weft/internal/ast"
	"github.com/weftlang/weft/internal/backend"
	"github.com/weftlang/weft/internal/config"
	"github.com/weftlang/weft/internal/coordinator"
	"github.com/weftlang/weft/internal/eval"
	"github.com/weftlang/weft/internal/routes"
	"github.com/weftlang/weft/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config   string
	Duration time.Duration
	Database string
	Sample   time.Duration
}

// NewRunCommand creates the run command: execute a program on the
// reference backends for a bounded duration, optionally recording a
// session trace.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:          "run <file>",
		Short:        "Run a WEFT program on the reference backends",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(opts, cmd, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to settings file")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 2*time.Second, "how long to run")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record a session trace to this SQLite file")
	cmd.Flags().DurationVar(&opts.Sample, "sample", 250*time.Millisecond, "strand sampling interval for the trace")
	return cmd
}

func runRun(opts *RunOptions, cmd *cobra.Command, path string) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return err
	}
	prog, err := loadProgram(path)
	if err != nil {
		return err
	}

	e := cfg.Env()
	c := coordinator.New(e, coordinator.WithPolicy(cfg.Policy))
	c.SetBackends(map[routes.Route]coordinator.Backend{
		routes.GPU:   backend.NewFrame(backend.WithFrameBridges(c), backend.WithFramePolicy(cfg.Policy)),
		routes.Audio: backend.NewAudio(backend.WithAudioBridges(c), backend.WithAudioPolicy(cfg.Policy)),
		routes.CPU:   backend.NewCPU(),
	})
	defer c.Cleanup()

	ok, err := c.Compile(context.Background(), prog)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	var st *store.Store
	var token string
	if opts.Database != "" {
		st, err = store.Open(opts.Database)
		if err != nil {
			return err
		}
		defer st.Close()

		token = store.UUIDv7Generator{}.Generate()
		if err := st.BeginSession(context.Background(), token, path, time.Now()); err != nil {
			return err
		}
		if err := recordCompilePass(st, token, prog, c, ok); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "session: %s\n", token)
	}

	if !ok {
		for route, cerr := range c.FailedRoutes() {
			fmt.Fprintf(cmd.ErrOrStderr(), "route %s failed: %v\n", route, cerr)
		}
	}

	c.Start()
	defer c.Stop()

	deadline := time.After(opts.Duration)
	ticker := time.NewTicker(opts.Sample)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			fmt.Fprintf(cmd.OutOrStdout(), "ran %d frames\n", c.Frame())
			return nil
		case <-ticker.C:
			if st != nil {
				sampleStrands(st, token, e.Time(), c)
			}
		}
	}
}

// recordCompilePass stores the compile outcome: program identity,
// execution order, and per-route success.
func recordCompilePass(st *store.Store, token string, prog *ast.Program, c *coordinator.Coordinator, ok bool) error {
	g := c.Graph()
	failed := c.FailedRoutes()

	var results []store.RouteResult
	for _, r := range []routes.Route{routes.GPU, routes.Audio, routes.CPU} {
		if cerr, bad := failed[r]; bad {
			results = append(results, store.RouteResult{Route: r, OK: false, Err: cerr.Error()})
		} else {
			results = append(results, store.RouteResult{Route: r, OK: true})
		}
	}
	_, err := st.RecordCompile(context.Background(), token, store.CompileRecord{
		ProgramHash: ast.Fingerprint(prog),
		ExecOrder:   g.ExecOrder,
		Routes:      results,
	})
	return err
}

// sampleWarn throttles the sample-write warning to once per process:
// a failing trace store would otherwise warn on every sampler tick.
var sampleWarn sync.Once

// sampleStrands records every required strand value at the loop center.
func sampleStrands(st *store.Store, token string, now float64, c *coordinator.Coordinator) {
	g := c.Graph()
	if g == nil {
		return
	}
	at := eval.Coord{X: 0.5, Y: 0.5, Time: now, Frame: int(c.Frame())}
	for _, name := range g.ExecOrder {
		inst := g.Nodes[name]
		for output := range inst.RequiredOutputs {
			v, err := c.GetValue(name, output, at)
			if err != nil {
				continue
			}
			err = st.RecordSample(context.Background(), token, store.Sample{
				Instance: name,
				Output:   output,
				Time:     now,
				Frame:    c.Frame(),
				Value:    v,
			})
			if err != nil {
				sampleWarn.Do(func() {
					slog.Warn("strand sample not recorded", "instance", name, "output", output, "err", err)
				})
			}
		}
	}
}
