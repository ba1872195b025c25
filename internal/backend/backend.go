// Package backend provides reference per-route executors.
//
// These are CPU-evaluator-backed stand-ins for the real shader and DSP
// code generators: they honor the same compile/render/cleanup contract
// and the same bridge discipline, so the full pipeline — parse, tag,
// graph, compile, loop, cross-context exchange — runs end to end
// without external runtimes. The frame backend rasterizes to an
// in-memory framebuffer; the audio backend fills sample blocks; the cpu
// backend evaluates event-clocked strands and answers value read-back.
package backend

import (
	"sort"

	"github.com/weftlang/weft/internal/ast"
	"github.com/weftlang/weft/internal/bridge"
	"github.com/weftlang/weft/internal/coordinator"
	"github.com/weftlang/weft/internal/routes"
)

// Bridges locates the data bridge feeding a target route for a strand,
// if one exists. *coordinator.Coordinator satisfies it. A producing
// backend writes its cross-context outputs through these during Render;
// a consuming backend reads its cross-context inputs from them instead
// of evaluating the producer's expression locally.
type Bridges interface {
	BridgeFor(instance, output string, target routes.Route) *bridge.Bridge
}

// noBridges is the zero behavior when no bridge source is wired.
type noBridges struct{}

func (noBridges) BridgeFor(string, string, routes.Route) *bridge.Bridge { return nil }

// outputStatements returns the output statements of prog routed to r,
// in source order.
func outputStatements(prog *ast.Program, r routes.Route) []*ast.Output {
	var out []*ast.Output
	for _, stmt := range prog.Statements {
		o, ok := stmt.(*ast.Output)
		if !ok {
			continue
		}
		if or, known := ast.OutputRoute(o); known && or == r {
			out = append(out, o)
		}
	}
	return out
}

// crossContextOutputs lists the (instance, output) pairs whose primary
// route is r and which are consumed on at least one other route. These
// are the strands r's backend must publish into bridges each Render.
func crossContextOutputs(c *coordinator.Compiled, policy routes.Policy, r routes.Route) [][2]string {
	var out [][2]string
	for _, name := range c.Graph.ExecOrder {
		inst := c.Graph.Nodes[name]
		if inst.Contexts.Len() <= 1 || policy.Primary(inst.Contexts) != r {
			continue
		}
		names := make([]string, 0, len(inst.Outputs))
		for outName := range inst.Outputs {
			if len(inst.RequiredOutputs) > 0 && !inst.RequiredOutputs[outName] {
				continue
			}
			names = append(names, outName)
		}
		sort.Strings(names)
		for _, outName := range names {
			out = append(out, [2]string{name, outName})
		}
	}
	return out
}
