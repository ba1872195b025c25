// Package graph builds the execution graph over named instances.
//
// An instance is a named bundle of one or more named output strands
// (e.g. img<r, g, b>). The builder collects every instance-defining
// statement, resolves cross-instance strand references into dependency
// edges, marks which outputs are actually consumed, tags each instance
// with the set of routes that consume it, and linearizes the graph into
// a deterministic, dependency-respecting execution order.
//
// The graph is rebuilt wholesale on every compile pass; there is no
// incremental update.
package graph

import (
	"sort"

	"github.com/weftlang/weft/internal/ast"
	"github.com/weftlang/weft/internal/routes"
)

// Kind classifies how an instance's value is produced.
type Kind int

const (
	// KindExpression is a direct expression: a<x> = me.x + 5.
	KindExpression Kind = iota
	// KindSpindle is a user spindle call: blurred<out> = blur(img, 5).
	KindSpindle
	// KindBuiltin is a builtin call: img<pixels> = load_image("x.png").
	KindBuiltin
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindSpindle:
		return "spindle"
	case KindBuiltin:
		return "builtin"
	default:
		return "expression"
	}
}

// StrandRef names one specific output of one specific instance.
type StrandRef struct {
	Instance string
	Output   string
}

// Instance is one graph node.
type Instance struct {
	Name    string
	Kind    Kind
	Outputs map[string]ast.Node

	// Deps holds the names of instances referenced by any output
	// expression.
	Deps map[string]bool

	// OutputDeps maps each output name to the specific strands it reads,
	// for required-output propagation.
	OutputDeps map[string][]StrandRef

	// RequiredOutputs holds the output names actually consumed by some
	// output statement or other instance. An output absent here is a
	// dead-code-elimination candidate.
	RequiredOutputs map[string]bool

	// Contexts is the set of routes that (transitively) consume this
	// instance.
	Contexts routes.Set

	declIndex int
}

// Graph is the built execution graph.
type Graph struct {
	// Nodes maps instance name to its record.
	Nodes map[string]*Instance

	// ExecOrder is a topological order of Nodes: every instance appears
	// after all instances it depends on. Ties are broken by source
	// declaration order so compilation output is deterministic.
	ExecOrder []string

	// Spindles holds user spindle definitions by name.
	Spindles map[string]*ast.SpindleDef
}

// Instance returns the named instance, or nil.
func (g *Graph) Instance(name string) *Instance {
	return g.Nodes[name]
}

// Build constructs the execution graph for a program.
//
// The program does not need to be tagged first: context tagging here
// operates at instance granularity directly from the output statements.
// A cycle among instances fails with *CyclicDependencyError naming the
// full cycle.
func Build(prog *ast.Program) (*Graph, error) {
	g := &Graph{
		Nodes:    map[string]*Instance{},
		Spindles: map[string]*ast.SpindleDef{},
	}

	for _, stmt := range prog.Statements {
		if def, ok := stmt.(*ast.SpindleDef); ok {
			g.Spindles[def.Name] = def
		}
	}

	g.collectInstances(prog)
	g.markRequiredOutputs(prog)
	g.propagateRequiredOutputs()
	g.tagContexts(prog)

	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.ExecOrder = order
	return g, nil
}

func (g *Graph) collectInstances(prog *ast.Program) {
	decl := 0
	for _, stmt := range prog.Statements {
		bind, ok := stmt.(*ast.InstanceBinding)
		if !ok {
			continue
		}

		inst := g.Nodes[bind.Name]
		if inst == nil {
			inst = &Instance{
				Name:            bind.Name,
				Kind:            g.classify(bind.Expr),
				Outputs:         map[string]ast.Node{},
				Deps:            map[string]bool{},
				OutputDeps:      map[string][]StrandRef{},
				RequiredOutputs: map[string]bool{},
				declIndex:       decl,
			}
			g.Nodes[bind.Name] = inst
			decl++
		}

		// Media builtins pin their instance to the substrate that owns
		// their native data, regardless of who consumes the output.
		if call, ok := bind.Expr.(*ast.Call); ok {
			if name, ok := call.Name.(*ast.Var); ok {
				if r := routes.BuiltinRoute(name.Name); r != routes.RouteNone {
					inst.Contexts = inst.Contexts.Add(r)
				}
			}
		}

		// A tuple right-hand side distributes item-wise over the
		// declared outputs; a multi-output spindle call distributes
		// positionally via index selection; any other expression
		// defines them all.
		if tuple, ok := bind.Expr.(*ast.Tuple); ok {
			for i, outName := range bind.Outputs {
				if i >= len(tuple.Items) {
					break
				}
				g.addOutput(inst, outName, tuple.Items[i])
			}
		} else if inst.Kind == KindSpindle && len(bind.Outputs) > 1 {
			for i, outName := range bind.Outputs {
				g.addOutput(inst, outName, &ast.Index{Base: bind.Expr, Idx: &ast.Num{V: float64(i)}})
			}
		} else {
			for _, outName := range bind.Outputs {
				g.addOutput(inst, outName, bind.Expr)
			}
		}
	}
}

func (g *Graph) addOutput(inst *Instance, name string, expr ast.Node) {
	inst.Outputs[name] = expr

	deps := map[string]bool{}
	var strandDeps []StrandRef
	g.scanExpr(expr, deps, &strandDeps)

	for d := range deps {
		inst.Deps[d] = true
	}
	inst.OutputDeps[name] = strandDeps
}

// scanExpr is scanDeps plus spindle-call expansion: a spindle body can
// read other instances' strands, so its deps fold into the call site's.
func (g *Graph) scanExpr(n ast.Node, deps map[string]bool, strands *[]StrandRef) {
	scanDeps(n, deps, strands)
	seen := map[string]bool{}
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		if call, ok := n.(*ast.Call); ok {
			if name, ok := call.Name.(*ast.Var); ok {
				if def, isSpindle := g.Spindles[name.Name]; isSpindle && !seen[name.Name] {
					seen[name.Name] = true
					scanDeps(def.Body, deps, strands)
					walk(def.Body)
				}
			}
		}
		for _, c := range ast.Children(n) {
			walk(c)
		}
	}
	walk(n)
}

func (g *Graph) classify(expr ast.Node) Kind {
	call, ok := expr.(*ast.Call)
	if !ok {
		return KindExpression
	}
	name, ok := call.Name.(*ast.Var)
	if !ok {
		return KindBuiltin
	}
	if _, isSpindle := g.Spindles[name.Name]; isSpindle {
		return KindSpindle
	}
	return KindBuiltin
}

// scanDeps recurses structurally through every expression kind
// uniformly, recording instance references and the specific strands
// they read.
func scanDeps(n ast.Node, deps map[string]bool, strands *[]StrandRef) {
	switch v := n.(type) {
	case *ast.StrandAccess:
		base, baseOK := v.Base.(*ast.Var)
		if baseOK {
			deps[base.Name] = true
			if out, ok := v.Out.(*ast.Var); ok {
				*strands = append(*strands, StrandRef{Instance: base.Name, Output: out.Name})
			}
		}
		return
	case *ast.StrandRemap:
		if base, ok := v.Base.(*ast.Var); ok {
			deps[base.Name] = true
			*strands = append(*strands, StrandRef{Instance: base.Name, Output: v.Strand})
		}
		for _, m := range v.Mappings {
			scanDeps(m.Expr, deps, strands)
		}
		return
	}
	for _, c := range ast.Children(n) {
		scanDeps(c, deps, strands)
	}
}

// markRequiredOutputs records which strands the output statements read.
func (g *Graph) markRequiredOutputs(prog *ast.Program) {
	for _, stmt := range prog.Statements {
		out, ok := stmt.(*ast.Output)
		if !ok {
			continue
		}
		for _, arg := range ast.Children(out) {
			var strands []StrandRef
			g.scanExpr(arg, map[string]bool{}, &strands)
			for _, ref := range strands {
				if inst := g.Nodes[ref.Instance]; inst != nil {
					inst.RequiredOutputs[ref.Output] = true
				}
			}
		}
	}
}

// propagateRequiredOutputs runs required-ness to a fixpoint: if an
// instance's required output reads a strand of another instance, that
// strand becomes required too.
func (g *Graph) propagateRequiredOutputs() {
	changed := true
	for changed {
		changed = false
		for _, inst := range g.Nodes {
			for outName := range inst.RequiredOutputs {
				for _, ref := range inst.OutputDeps[outName] {
					dep := g.Nodes[ref.Instance]
					if dep == nil || dep.RequiredOutputs[ref.Output] {
						continue
					}
					dep.RequiredOutputs[ref.Output] = true
					changed = true
				}
			}
		}
	}
}

// tagContexts propagates each output statement's route backward across
// deps edges, mirroring the tagger but at instance granularity.
func (g *Graph) tagContexts(prog *ast.Program) {
	for _, stmt := range prog.Statements {
		out, ok := stmt.(*ast.Output)
		if !ok {
			continue
		}
		route, known := ast.OutputRoute(out)
		if !known {
			// The tagger rejects unknown kinds; the graph simply skips
			// them so Build stays usable on untagged programs.
			continue
		}
		for _, arg := range ast.Children(out) {
			deps := map[string]bool{}
			var strands []StrandRef
			g.scanExpr(arg, deps, &strands)
			visited := map[string]bool{}
			for d := range deps {
				g.tagInstance(d, route, visited)
			}
		}
	}
}

func (g *Graph) tagInstance(name string, route routes.Route, visited map[string]bool) {
	if visited[name] {
		return
	}
	visited[name] = true

	inst := g.Nodes[name]
	if inst == nil {
		return
	}
	inst.Contexts = inst.Contexts.Add(route)
	for dep := range inst.Deps {
		g.tagInstance(dep, route, visited)
	}
}

// topoSort is Kahn's algorithm with declaration-order tie-break among
// ready instances.
func (g *Graph) topoSort() ([]string, error) {
	indegree := map[string]int{}
	dependents := map[string][]string{}
	for name, inst := range g.Nodes {
		if _, ok := indegree[name]; !ok {
			indegree[name] = 0
		}
		for dep := range inst.Deps {
			// References to names that are not instances (builtins,
			// plain bindings) create no edge.
			if g.Nodes[dep] == nil {
				continue
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	ready := make([]string, 0, len(g.Nodes))
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(g.Nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			return g.Nodes[ready[i]].declIndex < g.Nodes[ready[j]].declIndex
		})
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, dependent := range dependents[next] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) != len(g.Nodes) {
		return nil, &CyclicDependencyError{Cycle: g.findCycle(indegree)}
	}
	return order, nil
}

// findCycle recovers the full cycle path among the instances Kahn's
// algorithm could not order, so the error is debuggable rather than
// naming just one node.
func (g *Graph) findCycle(indegree map[string]int) []string {
	remaining := map[string]bool{}
	for name, deg := range indegree {
		if deg > 0 {
			remaining[name] = true
		}
	}

	// Deterministic starting point.
	names := make([]string, 0, len(remaining))
	for name := range remaining {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, start := range names {
		if path := g.walkCycle(start, remaining, map[string]int{}, nil); path != nil {
			return path
		}
	}
	return names
}

func (g *Graph) walkCycle(name string, remaining map[string]bool, state map[string]int, path []string) []string {
	const (
		visiting = 1
		done     = 2
	)
	if state[name] == visiting {
		// Close the loop: trim the path down to the cycle itself.
		for i, n := range path {
			if n == name {
				return append(append([]string{}, path[i:]...), name)
			}
		}
		return append(path, name)
	}
	if state[name] == done {
		return nil
	}

	state[name] = visiting
	path = append(path, name)

	deps := make([]string, 0, len(g.Nodes[name].Deps))
	for dep := range g.Nodes[name].Deps {
		if remaining[dep] {
			deps = append(deps, dep)
		}
	}
	sort.Strings(deps)
	for _, dep := range deps {
		if cycle := g.walkCycle(dep, remaining, state, path); cycle != nil {
			return cycle
		}
	}

	state[name] = done
	return nil
}
