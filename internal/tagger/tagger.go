// Package tagger implements static route analysis over a WEFT program.
//
// Routing is output-driven: each output statement's kind fixes its route,
// and the tagger propagates that route backward through every expression
// the statement depends on. Expressions reached by more than one route
// are marked cross-context and handed a single primary route by the
// routes.Policy, so the same subtree (say, sin(me.x * 10)) can be
// compiled for any substrate without special-casing.
//
// Tagging only fills annotations; it never alters tree structure. It is
// idempotent: annotations are reset at the start of every pass, so
// tagging the same program twice yields identical results.
package tagger

import (
	"github.com/weftlang/weft/internal/ast"
	"github.com/weftlang/weft/internal/routes"
)

// Tagger runs route analysis passes. The zero value is not usable; use New.
type Tagger struct {
	policy routes.Policy
}

// Option configures a Tagger.
type Option func(*Tagger)

// WithPolicy overrides the primary-route precedence table. The default
// is routes.DefaultPolicy.
func WithPolicy(p routes.Policy) Option {
	return func(t *Tagger) { t.policy = p }
}

// New creates a Tagger.
func New(opts ...Option) *Tagger {
	t := &Tagger{policy: routes.DefaultPolicy()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Tag annotates the program in place and returns it for chaining.
//
// Failure modes: an output statement of unrecognized kind yields
// *UnknownOutputKindError; a reference cycle among bindings yields
// *CyclicDependencyError naming the implicated bindings. On error the
// program is left partially annotated and should be re-tagged after the
// source is fixed.
func (t *Tagger) Tag(prog *ast.Program) (*ast.Program, error) {
	// Reset for idempotence.
	ast.Walk(prog, func(n ast.Node) bool {
		n.Ann().Reset()
		return true
	})

	// Statements are processed in source order; binding statements extend
	// the environment as they appear, so a reference always resolves to
	// the latest binding above it (shadowing, not mutation).
	env := map[string]ast.Node{}
	for _, stmt := range prog.Statements {
		switch s := stmt.(type) {
		case *ast.Assignment:
			env[s.Name] = s
		case *ast.InstanceBinding:
			env[s.Name] = s
		case *ast.SpindleDef:
			env[s.Name] = s
		case *ast.Output:
			route, ok := ast.OutputRoute(s)
			if !ok {
				return nil, &UnknownOutputKindError{Kind: s.Kind}
			}
			if err := t.tagOutput(s, route, env); err != nil {
				return nil, err
			}
		}
	}

	// Cross-context scan: recompute the primary route of every node that
	// more than one route reached.
	ast.Walk(prog, func(n ast.Node) bool {
		ann := n.Ann()
		if ann.Routes.Len() > 1 {
			ann.CrossContext = true
			ann.PrimaryRoute = t.policy.Primary(ann.Routes)
		}
		return true
	})

	return prog, nil
}

// tagOutput traces an output statement's dependency closure and adds the
// statement's route to every node in it.
func (t *Tagger) tagOutput(out *ast.Output, route routes.Route, env map[string]ast.Node) error {
	out.Ann().AddRoute(route)
	if out.Ann().Deps == nil {
		out.Ann().Deps = map[ast.Node]bool{}
	}

	tr := &tracer{
		env:     env,
		route:   route,
		deps:    out.Ann().Deps,
		visited: map[ast.Node]bool{},
		onPath:  map[ast.Node]bool{},
	}
	for _, arg := range ast.Children(out) {
		if err := tr.trace(arg); err != nil {
			return err
		}
	}
	return nil
}

// tracer walks one output statement's dependency closure.
//
// visited is keyed by node identity so diamond-shaped shared
// subexpressions terminate; onPath tracks the active recursion stack so
// a true reference cycle is distinguished from a diamond.
type tracer struct {
	env     map[string]ast.Node
	route   routes.Route
	deps    map[ast.Node]bool
	visited map[ast.Node]bool
	onPath  map[ast.Node]bool
	path    []string
}

func (tr *tracer) trace(n ast.Node) error {
	if n == nil || tr.visited[n] {
		return nil
	}
	tr.visited[n] = true
	n.Ann().AddRoute(tr.route)
	tr.deps[n] = true

	// References pull their binding (and its right-hand expression)
	// into the dependency set.
	switch v := n.(type) {
	case *ast.Call:
		// Media builtins carry their substrate with them: load_image is
		// gpu-native however its result is consumed.
		if name, ok := v.Name.(*ast.Var); ok {
			if r := routes.BuiltinRoute(name.Name); r != routes.RouteNone {
				n.Ann().AddRoute(r)
			}
		}
	case *ast.Var:
		if err := tr.traceBinding(v.Name); err != nil {
			return err
		}
	case *ast.StrandAccess:
		// The output name is a label on the instance, not a variable
		// reference; only the base joins the dependency set.
		return tr.trace(v.Base)
	case *ast.StrandRemap:
		if err := tr.trace(v.Base); err != nil {
			return err
		}
		for _, m := range v.Mappings {
			if err := tr.trace(m.Expr); err != nil {
				return err
			}
		}
		return nil
	}

	for _, c := range ast.Children(n) {
		if err := tr.trace(c); err != nil {
			return err
		}
	}
	return nil
}

func (tr *tracer) traceBinding(name string) error {
	binding, ok := tr.env[name]
	if !ok {
		// Unbound names (builtins, coordinate axes) are not an error
		// here; the evaluator resolves or rejects them later.
		return nil
	}
	if tr.onPath[binding] {
		return &CyclicDependencyError{Bindings: append(append([]string{}, tr.path...), name)}
	}
	if tr.visited[binding] {
		return nil
	}
	tr.visited[binding] = true
	binding.Ann().AddRoute(tr.route)
	tr.deps[binding] = true

	tr.onPath[binding] = true
	tr.path = append(tr.path, name)
	defer func() {
		delete(tr.onPath, binding)
		tr.path = tr.path[:len(tr.path)-1]
	}()

	for _, c := range ast.Children(binding) {
		if err := tr.trace(c); err != nil {
			return err
		}
	}
	return nil
}
