// Package coordinator orchestrates per-route compilation and the
// heterogeneous main loop.
//
// The coordinator owns the set of per-route backends, drives their
// compilation against the tagged program and execution graph, paces the
// routes it directly owns (the visual route by default), and answers
// "evaluate this strand at this coordinate" queries through a backend
// fallback chain that bottoms out in the CPU evaluator.
//
// The three route drivers are independent clocks with no shared tick;
// unifying them would force the audio path to inherit visual-frame
// jitter or vice versa. Values crossing between them go through data
// bridges created at compile time.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/weftlang/weft/internal/ast"
	"github.com/weftlang/weft/internal/bridge"
	"github.com/weftlang/weft/internal/env"
	"github.com/weftlang/weft/internal/eval"
	"github.com/weftlang/weft/internal/graph"
	"github.com/weftlang/weft/internal/routes"
	"github.com/weftlang/weft/internal/tagger"
)

// Coordinator drives compilation and the main loop. Use New.
type Coordinator struct {
	logger *slog.Logger
	policy routes.Policy
	tick   time.Duration

	mu       sync.Mutex
	envr     *env.Env
	backends []Backend // registration order
	byRoute  map[routes.Route]Backend
	failed   map[routes.Route]error // per-backend failures from the last compile

	compiled *Compiled
	evalc    *eval.Compiler
	bridges  map[bridgeKey]*bridge.Bridge

	running bool
	stop    chan struct{}
	done    chan struct{}
	frame   int64
}

type bridgeKey struct {
	instance string
	output   string
	target   routes.Route
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the slog logger. Default: slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithPolicy overrides the primary-route precedence table used for
// tagging and bridge construction.
func WithPolicy(p routes.Policy) Option {
	return func(c *Coordinator) { c.policy = p }
}

// WithTickInterval overrides the host tick the loop is scheduled on.
// The frame interval still derives from Env.TargetFPS; the host tick
// only bounds scheduling granularity. Test hook, mostly.
func WithTickInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.tick = d }
}

// New creates a Coordinator over the given runtime environment.
func New(e *env.Env, opts ...Option) *Coordinator {
	c := &Coordinator{
		logger:  slog.Default(),
		policy:  routes.DefaultPolicy(),
		tick:    4 * time.Millisecond,
		envr:    e,
		byRoute: map[routes.Route]Backend{},
		failed:  map[routes.Route]error{},
		bridges: map[bridgeKey]*bridge.Bridge{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetBackends registers the per-route backends, replacing any previous
// registration. Registration order is fixed as gpu, audio, cpu so that
// Render and the fallback chain stay deterministic.
func (c *Coordinator) SetBackends(backends map[routes.Route]Backend) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.backends = c.backends[:0]
	c.byRoute = map[routes.Route]Backend{}
	for _, r := range []routes.Route{routes.GPU, routes.Audio, routes.CPU} {
		if b, ok := backends[r]; ok && b != nil {
			c.backends = append(c.backends, b)
			c.byRoute[r] = b
		}
	}
}

// Compile tags the program, builds the execution graph, and compiles
// every backend whose route some output statement requires.
//
// Backend compilations run concurrently and are all allowed to finish
// even when one fails, so partial diagnostics from every backend are
// available. The bool result is true only if every required backend
// compiled. Structural and routing errors (cycles, unknown output
// kinds) are returned as err and leave any previously compiled program
// untouched and running; per-backend failures are recorded, logged,
// and surfaced via FailedRoutes — the program still runs with the
// degraded route set.
func (c *Coordinator) Compile(ctx context.Context, prog *ast.Program) (bool, error) {
	tg := tagger.New(tagger.WithPolicy(c.policy))
	if _, err := tg.Tag(prog); err != nil {
		return false, err
	}

	g, err := graph.Build(prog)
	if err != nil {
		return false, err
	}

	compiled := &Compiled{
		Program:  prog,
		Graph:    g,
		Env:      c.envr,
		Bindings: collectBindings(prog),
	}

	required := requiredRoutes(prog)

	c.mu.Lock()
	targets := make([]Backend, 0, len(c.backends))
	for _, b := range c.backends {
		if required.Has(b.Context()) {
			targets = append(targets, b)
		}
	}
	c.mu.Unlock()

	// The sole concurrency-coordination point in the core: all required
	// backends compile at once, with no ordering between them and no
	// fail-fast cancellation.
	var wg sync.WaitGroup
	errs := make([]error, len(targets))
	for i, b := range targets {
		wg.Add(1)
		go func(i int, b Backend) {
			defer wg.Done()
			errs[i] = b.Compile(ctx, compiled)
		}(i, b)
	}
	wg.Wait()

	ok := true
	failed := map[routes.Route]error{}
	for i, b := range targets {
		if errs[i] != nil {
			ok = false
			failed[b.Context()] = errs[i]
			c.logger.Warn("backend compile failed",
				"route", b.Context().String(), "err", errs[i])
		}
	}

	c.mu.Lock()
	c.compiled = compiled
	c.failed = failed
	c.evalc = eval.NewCompiler(
		eval.WithResolver(resolverFunc(c.GetValue)),
		eval.WithBindings(compiled.Bindings),
		eval.WithSpindles(g.Spindles),
	)
	c.rebuildBridges(g)
	c.mu.Unlock()

	return ok, nil
}

// collectBindings maps binding names to their statements, later
// bindings shadowing earlier ones.
func collectBindings(prog *ast.Program) map[string]ast.Node {
	out := map[string]ast.Node{}
	for _, stmt := range prog.Statements {
		switch s := stmt.(type) {
		case *ast.Assignment:
			out[s.Name] = s
		case *ast.InstanceBinding:
			out[s.Name] = s
		}
	}
	return out
}

// requiredRoutes is the union of the routes of all output statements.
func requiredRoutes(prog *ast.Program) routes.Set {
	var set routes.Set
	for _, stmt := range prog.Statements {
		if out, ok := stmt.(*ast.Output); ok {
			if r, known := ast.OutputRoute(out); known {
				set = set.Add(r)
			}
		}
	}
	return set
}

// rebuildBridges replaces the bridge set: one bridge per consumed
// output of each cross-context instance, from the instance's primary
// route to each other consuming route. Policy selection happens here,
// once, at compile time. Callers hold c.mu.
func (c *Coordinator) rebuildBridges(g *graph.Graph) {
	c.bridges = map[bridgeKey]*bridge.Bridge{}
	for _, name := range g.ExecOrder {
		inst := g.Nodes[name]
		if inst.Contexts.Len() <= 1 {
			continue
		}
		primary := c.policy.Primary(inst.Contexts)
		for _, target := range inst.Contexts.Slice() {
			if target == primary {
				continue
			}
			for outName := range inst.Outputs {
				if len(inst.RequiredOutputs) > 0 && !inst.RequiredOutputs[outName] {
					continue
				}
				key := bridgeKey{instance: name, output: outName, target: target}
				c.bridges[key] = bridge.New(primary, target, bridge.Scalar)
			}
		}
	}
}

// BridgeFor returns the bridge feeding target for instance@output, or
// nil when that strand does not cross into target.
func (c *Coordinator) BridgeFor(instance, output string, target routes.Route) *bridge.Bridge {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bridges[bridgeKey{instance: instance, output: output, target: target}]
}

// FailedRoutes reports which backends failed on the last compile, so a
// caller can decide whether to proceed with the degraded route set.
func (c *Coordinator) FailedRoutes() map[routes.Route]error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[routes.Route]error, len(c.failed))
	for r, err := range c.failed {
		out[r] = err
	}
	return out
}

// Graph returns the current execution graph, or nil before the first
// successful compile.
func (c *Coordinator) Graph() *graph.Graph {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.compiled == nil {
		return nil
	}
	return c.compiled.Graph
}

// Render invokes Render on every registered backend in registration
// order, unconditionally. Backend render errors are logged, never
// propagated: one failing route must not abort the rest of the frame.
func (c *Coordinator) Render() {
	c.mu.Lock()
	backends := append([]Backend{}, c.backends...)
	c.mu.Unlock()

	for _, b := range backends {
		if err := b.Render(); err != nil {
			c.logger.Warn("render failed", "route", b.Context().String(), "err", err)
		}
	}
}

// GetValue answers "evaluate instance@output at this coordinate"
// through the fallback chain: each backend consuming the instance that
// declares synchronous value read-back gets a chance, in registration
// order; the CPU evaluator is the universal, always-correct (and
// slowest) last resort.
//
// The lock is only held to snapshot the compiled state: a delegated
// backend (or an evaluated strand access) may recurse back into
// GetValue.
func (c *Coordinator) GetValue(instance, output string, at eval.Coord) (float64, error) {
	c.mu.Lock()
	compiled := c.compiled
	evalc := c.evalc
	byRoute := c.byRoute
	failed := c.failed
	c.mu.Unlock()

	if compiled == nil {
		return 0, fmt.Errorf("coordinator: no compiled program")
	}
	inst := compiled.Graph.Instance(instance)
	if inst == nil {
		return 0, fmt.Errorf("coordinator: unknown instance %q", instance)
	}
	expr, ok := inst.Outputs[output]
	if !ok {
		return 0, fmt.Errorf("coordinator: instance %q has no output %q", instance, output)
	}

	for _, r := range inst.Contexts.Slice() {
		b := byRoute[r]
		if b == nil || failed[r] != nil {
			continue
		}
		if !b.Capabilities().Has(CapValueReadback) {
			continue
		}
		reader, ok := b.(ValueReader)
		if !ok {
			continue
		}
		if v, err := reader.GetValue(instance, output, at); err == nil {
			return v, nil
		}
	}

	fn, err := evalc.Strand(instance, output, expr)
	if err != nil {
		return 0, err
	}
	return fn(at), nil
}

// resolverFunc adapts the fallback chain to eval.Resolver.
type resolverFunc func(instance, output string, at eval.Coord) (float64, error)

func (f resolverFunc) StrandValue(instance, output string, at eval.Coord) (float64, error) {
	return f(instance, output, at)
}

// Cleanup stops the loop, cleans up every backend, and releases the
// graph, bridges, and backend maps, restoring the coordinator to its
// pre-construction state.
func (c *Coordinator) Cleanup() {
	c.Stop()

	c.mu.Lock()
	backends := c.backends
	c.backends = nil
	c.byRoute = map[routes.Route]Backend{}
	c.failed = map[routes.Route]error{}
	c.compiled = nil
	c.evalc = nil
	c.bridges = map[bridgeKey]*bridge.Bridge{}
	c.frame = 0
	c.mu.Unlock()

	for _, b := range backends {
		if err := b.Cleanup(); err != nil {
			c.logger.Warn("backend cleanup failed", "route", b.Context().String(), "err", err)
		}
	}
}
