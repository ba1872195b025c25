package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/weftlang/weft/internal/coordinator"
	"github.com/weftlang/weft/internal/eval"
	"github.com/weftlang/weft/internal/routes"
)

// CPU is the event-clocked reference backend. It compiles the
// event-route strands with the CPU evaluator and advertises value
// read-back, so it sits first in the coordinator's fallback chain for
// cpu-context strands.
type CPU struct {
	logger *slog.Logger

	mu       sync.Mutex
	compiled *coordinator.Compiled
	evalc    *eval.Compiler
	last     map[string]float64 // instance@output -> most recent Render value
}

// CPUOption configures a CPU backend.
type CPUOption func(*CPU)

// WithCPULogger sets the slog logger. Default: slog.Default.
func WithCPULogger(l *slog.Logger) CPUOption {
	return func(b *CPU) { b.logger = l }
}

// NewCPU creates the event-clocked reference backend.
func NewCPU(opts ...CPUOption) *CPU {
	b := &CPU{
		logger: slog.Default(),
		last:   map[string]float64{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *CPU) Context() routes.Route { return routes.CPU }

func (b *CPU) Capabilities() coordinator.Capability {
	return coordinator.CapValueReadback
}

// Compile adopts the program and primes the evaluator over it. The cpu
// backend resolves strand accesses locally: every strand is expressible
// on the CPU evaluator, so it never needs to call back out.
func (b *CPU) Compile(_ context.Context, compiled *coordinator.Compiled) error {
	evalc := eval.NewCompiler(
		eval.WithResolver(&localResolver{backend: b}),
		eval.WithBindings(compiled.Bindings),
		eval.WithSpindles(compiled.Graph.Spindles),
	)

	b.mu.Lock()
	b.compiled = compiled
	b.evalc = evalc
	b.last = map[string]float64{}
	b.mu.Unlock()

	// Surface compile errors now rather than at first render: force
	// compilation of every cpu-context strand.
	for _, name := range compiled.Graph.ExecOrder {
		inst := compiled.Graph.Nodes[name]
		if !inst.Contexts.Has(routes.CPU) {
			continue
		}
		for outName, expr := range inst.Outputs {
			if len(inst.RequiredOutputs) > 0 && !inst.RequiredOutputs[outName] {
				continue
			}
			if _, err := evalc.Strand(name, outName, expr); err != nil {
				return fmt.Errorf("cpu backend: strand %s@%s: %w", name, outName, err)
			}
		}
	}
	return nil
}

// Render evaluates every required cpu-context strand once at the
// current event tick and retains the values. The coordinator publishes
// cpu-primary bridges itself, so Render only has to keep the local
// snapshot fresh.
func (b *CPU) Render() error {
	b.mu.Lock()
	compiled := b.compiled
	evalc := b.evalc
	b.mu.Unlock()
	if compiled == nil {
		return nil
	}

	at := eval.Coord{
		X:     0.5,
		Y:     0.5,
		Time:  compiled.Env.Time(),
		Frame: int(compiled.Env.Frame),
	}

	snapshot := map[string]float64{}
	for _, name := range compiled.Graph.ExecOrder {
		inst := compiled.Graph.Nodes[name]
		if !inst.Contexts.Has(routes.CPU) {
			continue
		}
		for outName, expr := range inst.Outputs {
			if len(inst.RequiredOutputs) > 0 && !inst.RequiredOutputs[outName] {
				continue
			}
			fn, err := evalc.Strand(name, outName, expr)
			if err != nil {
				continue
			}
			snapshot[name+"@"+outName] = fn(at)
		}
	}

	b.mu.Lock()
	b.last = snapshot
	b.mu.Unlock()
	return nil
}

// GetValue evaluates instance@output at the given coordinate. The cpu
// backend always computes fresh: event-clocked strands are cheap and
// the caller chooses the coordinate.
func (b *CPU) GetValue(instance, output string, at eval.Coord) (float64, error) {
	b.mu.Lock()
	compiled := b.compiled
	evalc := b.evalc
	b.mu.Unlock()
	if compiled == nil {
		return 0, fmt.Errorf("cpu backend: not compiled")
	}

	inst := compiled.Graph.Instance(instance)
	if inst == nil {
		return 0, fmt.Errorf("cpu backend: unknown instance %q", instance)
	}
	expr, ok := inst.Outputs[output]
	if !ok {
		return 0, fmt.Errorf("cpu backend: instance %q has no output %q", instance, output)
	}

	fn, err := evalc.Strand(instance, output, expr)
	if err != nil {
		return 0, err
	}
	return fn(at), nil
}

// LastValue returns the value of instance@output from the most recent
// Render, if any.
func (b *CPU) LastValue(instance, output string) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.last[instance+"@"+output]
	return v, ok
}

func (b *CPU) Cleanup() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.compiled = nil
	b.evalc = nil
	b.last = map[string]float64{}
	return nil
}

// localResolver resolves strand accesses against the backend's own
// evaluator.
type localResolver struct {
	backend *CPU
}

func (r *localResolver) StrandValue(instance, output string, at eval.Coord) (float64, error) {
	return r.backend.GetValue(instance, output, at)
}
