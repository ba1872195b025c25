// Package eval compiles strand expressions into executable CPU units.
//
// The evaluator is the universal, always-correct fallback: every strand
// a backend cannot answer synchronously is compiled here into a
// func(Coord) float64 closure tree and evaluated on demand. It trades
// speed for totality — any expression the language can form, it can run.
//
// Per-coordinate runtime failures (division by zero, non-finite
// results) are recovered locally by substituting zero for that single
// evaluation; they never escape to abort the rest of a frame.
package eval

import (
	"fmt"
	"math"
	"sync"

	"github.com/weftlang/weft/internal/ast"
)

// Coord is the evaluation coordinate: a 2D position plus the time value
// and frame index of the querying route's clock.
type Coord struct {
	X     float64
	Y     float64
	Time  float64
	Frame int
}

// Field returns a named coordinate axis, for me.* references and
// coordinate remaps.
func (c Coord) Field(name string) (float64, bool) {
	switch name {
	case "x":
		return c.X, true
	case "y":
		return c.Y, true
	case "time", "t":
		return c.Time, true
	case "frame":
		return float64(c.Frame), true
	}
	return 0, false
}

// WithField returns a copy of c with one axis replaced.
func (c Coord) WithField(name string, v float64) Coord {
	switch name {
	case "x":
		c.X = v
	case "y":
		c.Y = v
	case "time", "t":
		c.Time = v
	case "frame":
		c.Frame = int(v)
	}
	return c
}

// Fn is a compiled strand: a pure mapping from coordinate to value.
type Fn func(Coord) float64

// Resolver supplies cross-instance strand values during evaluation.
// The coordinator implements this with its backend fallback chain.
type Resolver interface {
	StrandValue(instance, output string, at Coord) (float64, error)
}

// CompileError reports an expression the CPU evaluator cannot compile.
type CompileError struct {
	Message string
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	return "eval: " + e.Message
}

func compileErrorf(format string, args ...any) error {
	return &CompileError{Message: fmt.Sprintf(format, args...)}
}

// Compiler memoizes compiled strands.
//
// The cache is append-only and keyed by instance@output; it is never
// invalidated except by discarding the Compiler (a fresh coordinator
// Cleanup builds a new one).
type Compiler struct {
	resolver Resolver
	bindings map[string]ast.Node
	spindles map[string]*ast.SpindleDef
	depth    int

	mu    sync.Mutex
	cache map[string]Fn
}

// maxSpindleDepth bounds spindle inlining so mutually recursive
// definitions fail at compile time instead of hanging.
const maxSpindleDepth = 64

// Option configures a Compiler.
type Option func(*Compiler)

// WithResolver wires the cross-instance strand resolver. Without one,
// strand accesses fail at compile time.
func WithResolver(r Resolver) Option {
	return func(c *Compiler) { c.resolver = r }
}

// WithBindings supplies the name → binding environment used to resolve
// plain variable references.
func WithBindings(env map[string]ast.Node) Option {
	return func(c *Compiler) { c.bindings = env }
}

// WithSpindles supplies user spindle definitions. Calls to these names
// are inlined with the call arguments bound to the declared inputs.
func WithSpindles(defs map[string]*ast.SpindleDef) Option {
	return func(c *Compiler) { c.spindles = defs }
}

// NewCompiler creates a Compiler.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{
		bindings: map[string]ast.Node{},
		cache:    map[string]Fn{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Strand compiles an instance output, memoized under instance@output.
func (c *Compiler) Strand(instance, output string, expr ast.Node) (Fn, error) {
	key := instance + "@" + output

	c.mu.Lock()
	if fn, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return fn, nil
	}
	c.mu.Unlock()

	fn, err := c.Compile(expr)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = fn
	c.mu.Unlock()
	return fn, nil
}

// CacheSize reports the number of memoized strands. Test hook.
func (c *Compiler) CacheSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// Compile builds an executable unit for one expression, uncached. The
// returned Fn recovers per-coordinate failures to zero.
func (c *Compiler) Compile(expr ast.Node) (Fn, error) {
	fn, err := c.compile(expr)
	if err != nil {
		return nil, err
	}
	return func(at Coord) float64 {
		v := fn(at)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return v
	}, nil
}

func (c *Compiler) compile(n ast.Node) (Fn, error) {
	switch v := n.(type) {
	case *ast.Num:
		val := v.V
		return func(Coord) float64 { return val }, nil

	case *ast.Me:
		field := v.Field
		return func(at Coord) float64 {
			f, _ := at.Field(field)
			return f
		}, nil

	case *ast.Var:
		binding, ok := c.bindings[v.Name]
		if !ok {
			return nil, compileErrorf("unbound variable %q", v.Name)
		}
		return c.compile(bindingExpr(binding))

	case *ast.Binary:
		return c.compileBinary(v)

	case *ast.Unary:
		return c.compileUnary(v)

	case *ast.Call:
		return c.compileCall(v)

	case *ast.If:
		cond, err := c.compile(v.Cond)
		if err != nil {
			return nil, err
		}
		then, err := c.compile(v.Then)
		if err != nil {
			return nil, err
		}
		els, err := c.compile(v.Else)
		if err != nil {
			return nil, err
		}
		return func(at Coord) float64 {
			if cond(at) != 0 {
				return then(at)
			}
			return els(at)
		}, nil

	case *ast.StrandAccess:
		return c.compileAccess(v)

	case *ast.StrandRemap:
		return c.compileRemap(v)

	case *ast.Index:
		return c.compileIndex(v)

	case *ast.Tuple:
		return nil, compileErrorf("tuple is not a scalar strand")
	case *ast.Str:
		return nil, compileErrorf("string literal is not a scalar strand")
	default:
		return nil, compileErrorf("cannot evaluate %T as a strand", n)
	}
}

func bindingExpr(binding ast.Node) ast.Node {
	switch b := binding.(type) {
	case *ast.Assignment:
		return b.Expr
	case *ast.InstanceBinding:
		return b.Expr
	default:
		return binding
	}
}

func (c *Compiler) compileBinary(v *ast.Binary) (Fn, error) {
	left, err := c.compile(v.Left)
	if err != nil {
		return nil, err
	}
	right, err := c.compile(v.Right)
	if err != nil {
		return nil, err
	}

	switch v.Op {
	case "+":
		return func(at Coord) float64 { return left(at) + right(at) }, nil
	case "-":
		return func(at Coord) float64 { return left(at) - right(at) }, nil
	case "*":
		return func(at Coord) float64 { return left(at) * right(at) }, nil
	case "/":
		return func(at Coord) float64 { return left(at) / right(at) }, nil
	case "%":
		return func(at Coord) float64 { return math.Mod(left(at), right(at)) }, nil
	case "^":
		return func(at Coord) float64 { return math.Pow(left(at), right(at)) }, nil
	case "<":
		return cmp(left, right, func(a, b float64) bool { return a < b }), nil
	case "<=":
		return cmp(left, right, func(a, b float64) bool { return a <= b }), nil
	case ">":
		return cmp(left, right, func(a, b float64) bool { return a > b }), nil
	case ">=":
		return cmp(left, right, func(a, b float64) bool { return a >= b }), nil
	case "==":
		return cmp(left, right, func(a, b float64) bool { return a == b }), nil
	case "!=":
		return cmp(left, right, func(a, b float64) bool { return a != b }), nil
	case "&&":
		return func(at Coord) float64 {
			if left(at) != 0 && right(at) != 0 {
				return 1
			}
			return 0
		}, nil
	case "||":
		return func(at Coord) float64 {
			if left(at) != 0 || right(at) != 0 {
				return 1
			}
			return 0
		}, nil
	}
	return nil, compileErrorf("unknown binary operator %q", v.Op)
}

func cmp(left, right Fn, test func(a, b float64) bool) Fn {
	return func(at Coord) float64 {
		if test(left(at), right(at)) {
			return 1
		}
		return 0
	}
}

func (c *Compiler) compileUnary(v *ast.Unary) (Fn, error) {
	inner, err := c.compile(v.Expr)
	if err != nil {
		return nil, err
	}
	switch v.Op {
	case "-":
		return func(at Coord) float64 { return -inner(at) }, nil
	case "+":
		return inner, nil
	case "!":
		return func(at Coord) float64 {
			if inner(at) == 0 {
				return 1
			}
			return 0
		}, nil
	}
	return nil, compileErrorf("unknown unary operator %q", v.Op)
}

func (c *Compiler) compileCall(v *ast.Call) (Fn, error) {
	name, ok := v.Name.(*ast.Var)
	if !ok {
		return nil, compileErrorf("call target must be a name")
	}
	if def, isSpindle := c.spindles[name.Name]; isSpindle {
		return c.compileSpindleCall(def, v, 0)
	}
	builtin, ok := builtins[name.Name]
	if !ok {
		return nil, compileErrorf("unknown function %q", name.Name)
	}
	if builtin.arity >= 0 && len(v.Args) != builtin.arity {
		return nil, compileErrorf("%s expects %d args, got %d", name.Name, builtin.arity, len(v.Args))
	}

	args := make([]Fn, len(v.Args))
	for i, a := range v.Args {
		fn, err := c.compile(a)
		if err != nil {
			return nil, err
		}
		args[i] = fn
	}
	apply := builtin.fn
	return func(at Coord) float64 {
		vals := make([]float64, len(args))
		for i, fn := range args {
			vals[i] = fn(at)
		}
		return apply(vals)
	}, nil
}

// compileSpindleCall inlines one output of a user spindle: the call
// arguments are bound over the definition's inputs, shadowing outer
// bindings, and the selected body item is compiled in that scope.
func (c *Compiler) compileSpindleCall(def *ast.SpindleDef, v *ast.Call, item int) (Fn, error) {
	if c.depth >= maxSpindleDepth {
		return nil, compileErrorf("spindle %q: inlining too deep (recursive definition?)", def.Name)
	}

	scoped := make(map[string]ast.Node, len(c.bindings)+len(def.Inputs))
	for k, b := range c.bindings {
		scoped[k] = b
	}
	pos := 0
	for _, arg := range v.Args {
		if named, ok := arg.(*ast.NamedArg); ok {
			scoped[named.Name] = named.Value
			continue
		}
		if pos >= len(def.Inputs) {
			return nil, compileErrorf("%s expects %d args, got more", def.Name, len(def.Inputs))
		}
		scoped[def.Inputs[pos]] = arg
		pos++
	}
	for _, in := range def.Inputs {
		if _, bound := scoped[in]; !bound {
			return nil, compileErrorf("%s: missing argument %q", def.Name, in)
		}
	}

	body := def.Body
	if tuple, ok := body.(*ast.Tuple); ok && len(def.Outputs) > 1 {
		if item >= len(tuple.Items) {
			return nil, compileErrorf("%s has no output %d", def.Name, item)
		}
		body = tuple.Items[item]
	} else if item > 0 {
		return nil, compileErrorf("%s has a single output", def.Name)
	}

	inner := &Compiler{
		resolver: c.resolver,
		bindings: scoped,
		spindles: c.spindles,
		depth:    c.depth + 1,
		cache:    map[string]Fn{},
	}
	return inner.compile(body)
}

// compileIndex handles positional selection over a multi-output spindle
// call, the form the graph builder emits when an instance binding
// distributes spindle outputs over its declared names.
func (c *Compiler) compileIndex(v *ast.Index) (Fn, error) {
	call, ok := v.Base.(*ast.Call)
	if !ok {
		return nil, compileErrorf("cannot index %T", v.Base)
	}
	name, ok := call.Name.(*ast.Var)
	if !ok {
		return nil, compileErrorf("call target must be a name")
	}
	def, isSpindle := c.spindles[name.Name]
	if !isSpindle {
		return nil, compileErrorf("cannot index call to %q", name.Name)
	}
	idx, ok := v.Idx.(*ast.Num)
	if !ok {
		return nil, compileErrorf("spindle output index must be a constant")
	}
	return c.compileSpindleCall(def, call, int(idx.V))
}

func (c *Compiler) compileAccess(v *ast.StrandAccess) (Fn, error) {
	base, ok := v.Base.(*ast.Var)
	if !ok {
		return nil, compileErrorf("strand access base must be an instance name")
	}
	out, ok := v.Out.(*ast.Var)
	if !ok {
		return nil, compileErrorf("strand access output must be a name")
	}
	if c.resolver == nil {
		return nil, compileErrorf("no resolver for %s@%s", base.Name, out.Name)
	}
	resolver := c.resolver
	instance, output := base.Name, out.Name
	return func(at Coord) float64 {
		val, err := resolver.StrandValue(instance, output, at)
		if err != nil {
			return 0
		}
		return val
	}, nil
}

func (c *Compiler) compileRemap(v *ast.StrandRemap) (Fn, error) {
	base, ok := v.Base.(*ast.Var)
	if !ok {
		return nil, compileErrorf("strand remap base must be an instance name")
	}
	if c.resolver == nil {
		return nil, compileErrorf("no resolver for %s@%s", base.Name, v.Strand)
	}

	type axisFn struct {
		axis string
		fn   Fn
	}
	mapped := make([]axisFn, 0, len(v.Mappings))
	for _, m := range v.Mappings {
		fn, err := c.compile(m.Expr)
		if err != nil {
			return nil, err
		}
		mapped = append(mapped, axisFn{axis: m.Axis, fn: fn})
	}

	resolver := c.resolver
	instance, output := base.Name, v.Strand
	return func(at Coord) float64 {
		// Axis expressions are evaluated in the caller's coordinate
		// space, then substituted all at once.
		remapped := at
		for _, m := range mapped {
			remapped = remapped.WithField(m.axis, m.fn(at))
		}
		val, err := resolver.StrandValue(instance, output, remapped)
		if err != nil {
			return 0
		}
		return val
	}, nil
}
