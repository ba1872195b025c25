// Package harness runs conformance scenarios through the real
// pipeline: parse, tag, graph, backend compile, bridge construction,
// value sampling. Scenarios are YAML files; trace snapshots are
// compared against golden files.
package harness

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/weftlang/weft/internal/ast"
	"github.com/weftlang/weft/internal/backend"
	"github.com/weftlang/weft/internal/coordinator"
	"github.com/weftlang/weft/internal/env"
	"github.com/weftlang/weft/internal/eval"
	"github.com/weftlang/weft/internal/parser"
	"github.com/weftlang/weft/internal/routes"
)

// Result is one scenario's outcome. Failures are assertion messages; a
// scenario passes when there are none.
type Result struct {
	Scenario *Scenario
	Failures []string

	coord *coordinator.Coordinator
	prog  *ast.Program
}

// Passed reports whether every assertion held.
func (r *Result) Passed() bool { return len(r.Failures) == 0 }

func (r *Result) failf(format string, args ...any) {
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
}

// Run executes a scenario against a fresh coordinator wired with the
// reference backends and evaluates its expectations.
func Run(sc *Scenario) (*Result, error) {
	result := &Result{Scenario: sc}

	prog, err := parser.Parse(sc.Program)
	if err != nil {
		if sc.ExpectError != "" {
			checkErrorContains(result, err)
			return result, nil
		}
		return nil, fmt.Errorf("scenario %s: parse: %w", sc.Name, err)
	}

	e := env.New(64, 36)
	c := coordinator.New(e)
	c.SetBackends(map[routes.Route]coordinator.Backend{
		routes.GPU:   backend.NewFrame(backend.WithFrameBridges(c)),
		routes.Audio: backend.NewAudio(backend.WithAudioBridges(c)),
		routes.CPU:   backend.NewCPU(),
	})
	result.coord = c
	result.prog = prog

	ok, err := c.Compile(context.Background(), prog)
	if sc.ExpectError != "" {
		if err == nil {
			result.failf("expected compile error containing %q, got none", sc.ExpectError)
			return result, nil
		}
		checkErrorContains(result, err)
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scenario %s: compile: %w", sc.Name, err)
	}
	if !ok && len(sc.Expect.FailedRoutes) == 0 {
		return nil, fmt.Errorf("scenario %s: backend compile failed: %v", sc.Name, c.FailedRoutes())
	}

	checkExpectations(result, c, sc.Expect)
	return result, nil
}

func checkErrorContains(r *Result, err error) {
	if !strings.Contains(err.Error(), r.Scenario.ExpectError) {
		r.failf("error %q does not contain %q", err.Error(), r.Scenario.ExpectError)
	}
}

func checkExpectations(r *Result, c *coordinator.Coordinator, exp Expectations) {
	g := c.Graph()

	for name, want := range exp.Contexts {
		inst := g.Instance(name)
		if inst == nil {
			r.failf("contexts: no instance %q", name)
			continue
		}
		if got := inst.Contexts.String(); got != want {
			r.failf("contexts: %s = %s, want %s", name, got, want)
		}
	}

	for name, want := range exp.Primary {
		inst := g.Instance(name)
		if inst == nil {
			r.failf("primary: no instance %q", name)
			continue
		}
		if got := routes.DefaultPolicy().Primary(inst.Contexts).String(); got != want {
			r.failf("primary: %s = %s, want %s", name, got, want)
		}
	}

	if len(exp.ExecOrder) > 0 {
		got := strings.Join(g.ExecOrder, " ")
		want := strings.Join(exp.ExecOrder, " ")
		if got != want {
			r.failf("exec order: %s, want %s", got, want)
		}
	}

	for _, be := range exp.Bridges {
		target, err := routes.Parse(be.Target)
		if err != nil {
			r.failf("bridges: %v", err)
			continue
		}
		br := c.BridgeFor(be.Instance, be.Output, target)
		if br == nil {
			r.failf("bridges: no bridge %s@%s -> %s", be.Instance, be.Output, be.Target)
			continue
		}
		if got := br.Source().String(); got != be.Source {
			r.failf("bridges: %s@%s source = %s, want %s", be.Instance, be.Output, got, be.Source)
		}
		if got := br.Interpolation().String(); got != be.Interpolation {
			r.failf("bridges: %s@%s interpolation = %s, want %s", be.Instance, be.Output, got, be.Interpolation)
		}
	}

	for _, ve := range exp.Values {
		at := eval.Coord{X: ve.X, Y: ve.Y, Time: ve.Time}
		got, err := c.GetValue(ve.Instance, ve.Output, at)
		if err != nil {
			r.failf("values: %s@%s: %v", ve.Instance, ve.Output, err)
			continue
		}
		tol := ve.Tolerance
		if tol == 0 {
			tol = 1e-9
		}
		if math.Abs(got-ve.Value) > tol {
			r.failf("values: %s@%s at (%g, %g) = %g, want %g", ve.Instance, ve.Output, ve.X, ve.Y, got, ve.Value)
		}
	}

	failed := c.FailedRoutes()
	for _, name := range exp.FailedRoutes {
		route, err := routes.Parse(name)
		if err != nil {
			r.failf("failed_routes: %v", err)
			continue
		}
		if _, ok := failed[route]; !ok {
			r.failf("failed_routes: %s did not fail", name)
		}
	}
}
