package coordinator

import (
	"context"

	"github.com/weftlang/weft/internal/ast"
	"github.com/weftlang/weft/internal/env"
	"github.com/weftlang/weft/internal/eval"
	"github.com/weftlang/weft/internal/graph"
	"github.com/weftlang/weft/internal/routes"
)

// Capability flags advertise optional backend features. Required
// behavior lives on the Backend interface itself; capabilities replace
// presence-sniffing for the optional parts.
type Capability uint8

const (
	// CapValueReadback marks a backend that can answer GetValue
	// synchronously. A raster backend without a readback path renders
	// fine but cannot be queried for an arbitrary single value.
	CapValueReadback Capability = 1 << iota
)

// Has reports whether all flags in want are set.
func (c Capability) Has(want Capability) bool { return c&want == want }

// Compiled is the artifact handed to backends: the tagged program, the
// execution graph over it, and the shared runtime environment. Backends
// must treat all three as read-only.
type Compiled struct {
	Program *ast.Program
	Graph   *graph.Graph
	Env     *env.Env

	// Bindings maps every binding name to its statement node, for
	// backends that compile expressions themselves.
	Bindings map[string]ast.Node
}

// Backend is one per-route compiler/executor.
//
// Compile is the only asynchronous boundary in the core: the
// coordinator awaits all required backends concurrently, with no
// ordering requirement between them. Render is called once per accepted
// coordinator tick whether or not the backend has work; a backend with
// nothing to draw must no-op safely. Cleanup releases backend resources
// and must be safe to call on a never-compiled backend.
type Backend interface {
	Context() routes.Route
	Capabilities() Capability
	Compile(ctx context.Context, compiled *Compiled) error
	Render() error
	Cleanup() error
}

// ValueReader is implemented by backends that advertise
// CapValueReadback.
type ValueReader interface {
	GetValue(instance, output string, at eval.Coord) (float64, error)
}
