package eval

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlang/weft/internal/ast"
)

func num(v float64) *ast.Num      { return &ast.Num{V: v} }
func varRef(name string) *ast.Var { return &ast.Var{Name: name} }
func me(field string) *ast.Me     { return &ast.Me{Field: field} }

func bin(l ast.Node, op string, r ast.Node) *ast.Binary {
	return &ast.Binary{Op: op, Left: l, Right: r}
}

func call(name string, args ...ast.Node) *ast.Call {
	return &ast.Call{Name: varRef(name), Args: args}
}

func mustCompile(t *testing.T, c *Compiler, expr ast.Node) Fn {
	t.Helper()
	fn, err := c.Compile(expr)
	require.NoError(t, err)
	return fn
}

// stubResolver answers strand lookups from a fixed function table.
type stubResolver struct {
	fns map[string]func(Coord) float64
}

func (s *stubResolver) StrandValue(instance, output string, at Coord) (float64, error) {
	fn, ok := s.fns[instance+"@"+output]
	if !ok {
		return 0, fmt.Errorf("no strand %s@%s", instance, output)
	}
	return fn(at), nil
}

func TestCompile_Literals(t *testing.T) {
	c := NewCompiler()
	fn := mustCompile(t, c, num(42))
	assert.Equal(t, 42.0, fn(Coord{}))
}

func TestCompile_Coordinate(t *testing.T) {
	c := NewCompiler()
	at := Coord{X: 3, Y: 4, Time: 1.5, Frame: 7}

	assert.Equal(t, 3.0, mustCompile(t, c, me("x"))(at))
	assert.Equal(t, 4.0, mustCompile(t, c, me("y"))(at))
	assert.Equal(t, 1.5, mustCompile(t, c, me("time"))(at))
	assert.Equal(t, 7.0, mustCompile(t, c, me("frame"))(at))
	assert.Equal(t, 0.0, mustCompile(t, c, me("w"))(at), "unknown axis reads as zero")
}

func TestCompile_Arithmetic(t *testing.T) {
	c := NewCompiler()
	cases := []struct {
		expr ast.Node
		want float64
	}{
		{bin(num(2), "+", num(3)), 5},
		{bin(num(2), "-", num(3)), -1},
		{bin(num(2), "*", num(3)), 6},
		{bin(num(7), "/", num(2)), 3.5},
		{bin(num(7), "%", num(4)), 3},
		{bin(num(2), "^", num(10)), 1024},
		{bin(num(2), "<", num(3)), 1},
		{bin(num(3), "<=", num(3)), 1},
		{bin(num(2), ">", num(3)), 0},
		{bin(num(2), "==", num(2)), 1},
		{bin(num(2), "!=", num(2)), 0},
		{bin(num(1), "&&", num(2)), 1},
		{bin(num(0), "||", num(2)), 1},
		{&ast.Unary{Op: "-", Expr: num(5)}, -5},
		{&ast.Unary{Op: "!", Expr: num(0)}, 1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, mustCompile(t, c, tc.expr)(Coord{}))
	}
}

func TestCompile_Builtins(t *testing.T) {
	c := NewCompiler()
	at := Coord{X: math.Pi / 2}

	fn := mustCompile(t, c, call("sin", me("x")))
	assert.InDelta(t, 1.0, fn(at), 1e-9)

	fn = mustCompile(t, c, call("clamp", num(5), num(0), num(1)))
	assert.Equal(t, 1.0, fn(Coord{}))

	fn = mustCompile(t, c, call("min", num(3), num(1), num(2)))
	assert.Equal(t, 1.0, fn(Coord{}))
}

func TestCompile_BuiltinArity(t *testing.T) {
	c := NewCompiler()
	_, err := c.Compile(call("sin", num(1), num(2)))
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
}

func TestCompile_UnknownFunction(t *testing.T) {
	c := NewCompiler()
	_, err := c.Compile(call("summon", num(1)))
	assert.Error(t, err)
}

func TestCompile_If(t *testing.T) {
	c := NewCompiler()
	fn := mustCompile(t, c, &ast.If{
		Cond: bin(me("x"), ">", num(0)),
		Then: num(1),
		Else: num(-1),
	})
	assert.Equal(t, 1.0, fn(Coord{X: 0.5}))
	assert.Equal(t, -1.0, fn(Coord{X: -0.5}))
}

func TestCompile_VariableThroughBinding(t *testing.T) {
	k := &ast.Assignment{Name: "k", Op: "=", Expr: bin(num(2), "*", num(3))}
	c := NewCompiler(WithBindings(map[string]ast.Node{"k": k}))

	fn := mustCompile(t, c, bin(varRef("k"), "+", num(1)))
	assert.Equal(t, 7.0, fn(Coord{}))
}

func TestCompile_UnboundVariable(t *testing.T) {
	c := NewCompiler()
	_, err := c.Compile(varRef("ghost"))
	assert.Error(t, err)
}

func TestCompile_StrandAccess(t *testing.T) {
	resolver := &stubResolver{fns: map[string]func(Coord) float64{
		"wave@v": func(at Coord) float64 { return at.X * 10 },
	}}
	c := NewCompiler(WithResolver(resolver))

	fn := mustCompile(t, c, &ast.StrandAccess{Base: varRef("wave"), Out: varRef("v")})
	assert.Equal(t, 5.0, fn(Coord{X: 0.5}))
}

func TestCompile_StrandAccessWithoutResolver(t *testing.T) {
	c := NewCompiler()
	_, err := c.Compile(&ast.StrandAccess{Base: varRef("wave"), Out: varRef("v")})
	assert.Error(t, err)
}

func TestCompile_StrandAccessFailureYieldsZero(t *testing.T) {
	c := NewCompiler(WithResolver(&stubResolver{fns: map[string]func(Coord) float64{}}))
	fn := mustCompile(t, c, &ast.StrandAccess{Base: varRef("ghost"), Out: varRef("v")})
	assert.Equal(t, 0.0, fn(Coord{X: 1}))
}

func TestCompile_StrandRemap(t *testing.T) {
	resolver := &stubResolver{fns: map[string]func(Coord) float64{
		"img@r": func(at Coord) float64 { return at.X + at.Y },
	}}
	c := NewCompiler(WithResolver(resolver))

	// img@r[x: me.x * 2] at (3, 4) reads img@r at (6, 4).
	fn := mustCompile(t, c, &ast.StrandRemap{
		Base:   varRef("img"),
		Strand: "r",
		Mappings: []ast.AxisMapping{
			{Axis: "x", Expr: bin(me("x"), "*", num(2))},
		},
	})
	assert.Equal(t, 10.0, fn(Coord{X: 3, Y: 4}))
}

func TestCompile_RemapAxesEvaluateInCallerSpace(t *testing.T) {
	resolver := &stubResolver{fns: map[string]func(Coord) float64{
		"img@r": func(at Coord) float64 { return at.X*100 + at.Y },
	}}
	c := NewCompiler(WithResolver(resolver))

	// Swap axes: [x: me.y, y: me.x]. Both read the ORIGINAL coord.
	fn := mustCompile(t, c, &ast.StrandRemap{
		Base:   varRef("img"),
		Strand: "r",
		Mappings: []ast.AxisMapping{
			{Axis: "x", Expr: me("y")},
			{Axis: "y", Expr: me("x")},
		},
	})
	assert.Equal(t, 203.0, fn(Coord{X: 3, Y: 2}))
}

func TestCompile_NonFiniteRecoversToZero(t *testing.T) {
	c := NewCompiler()

	div := mustCompile(t, c, bin(num(1), "/", num(0)))
	assert.Equal(t, 0.0, div(Coord{}), "1/0 recovers to zero")

	nan := mustCompile(t, c, call("sqrt", num(-1)))
	assert.Equal(t, 0.0, nan(Coord{}), "NaN recovers to zero")

	logZero := mustCompile(t, c, call("log", num(0)))
	assert.Equal(t, 0.0, logZero(Coord{}), "-Inf recovers to zero")
}

func TestCompile_TupleRejected(t *testing.T) {
	c := NewCompiler()
	_, err := c.Compile(&ast.Tuple{Items: []ast.Node{num(1), num(2)}})
	assert.Error(t, err)
}

func TestCompile_SpindleCall(t *testing.T) {
	fade := &ast.SpindleDef{
		Name:    "fade",
		Inputs:  []string{"v", "amt"},
		Outputs: []string{"out"},
		Body:    bin(varRef("v"), "*", bin(num(1), "-", varRef("amt"))),
	}
	c := NewCompiler(WithSpindles(map[string]*ast.SpindleDef{"fade": fade}))

	fn := mustCompile(t, c, call("fade", me("x"), num(0.25)))
	assert.InDelta(t, 6.0, fn(Coord{X: 8}), 1e-9)
}

func TestCompile_SpindleCallNamedArgs(t *testing.T) {
	fade := &ast.SpindleDef{
		Name:    "fade",
		Inputs:  []string{"v", "amt"},
		Outputs: []string{"out"},
		Body:    bin(varRef("v"), "*", bin(num(1), "-", varRef("amt"))),
	}
	c := NewCompiler(WithSpindles(map[string]*ast.SpindleDef{"fade": fade}))

	fn := mustCompile(t, c, call("fade",
		me("x"),
		&ast.NamedArg{Name: "amt", Value: num(0.5)},
	))
	assert.InDelta(t, 4.0, fn(Coord{X: 8}), 1e-9)

	_, err := c.Compile(call("fade", me("x")))
	assert.Error(t, err, "missing argument")
}

func TestCompile_SpindleMultiOutputIndex(t *testing.T) {
	split := &ast.SpindleDef{
		Name:    "split",
		Inputs:  []string{"v"},
		Outputs: []string{"lo", "hi"},
		Body: &ast.Tuple{Items: []ast.Node{
			bin(varRef("v"), "*", num(0.5)),
			bin(varRef("v"), "*", num(2)),
		}},
	}
	c := NewCompiler(WithSpindles(map[string]*ast.SpindleDef{"split": split}))

	lo := mustCompile(t, c, &ast.Index{Base: call("split", me("x")), Idx: num(0)})
	hi := mustCompile(t, c, &ast.Index{Base: call("split", me("x")), Idx: num(1)})
	assert.Equal(t, 2.0, lo(Coord{X: 4}))
	assert.Equal(t, 8.0, hi(Coord{X: 4}))

	_, err := c.Compile(&ast.Index{Base: call("split", me("x")), Idx: num(5)})
	assert.Error(t, err)
}

func TestCompile_SpindleRecursionRejected(t *testing.T) {
	loop := &ast.SpindleDef{
		Name:    "loop",
		Inputs:  []string{"v"},
		Outputs: []string{"out"},
		Body:    call("loop", varRef("v")),
	}
	c := NewCompiler(WithSpindles(map[string]*ast.SpindleDef{"loop": loop}))

	_, err := c.Compile(call("loop", num(1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too deep")
}

func TestStrand_Memoized(t *testing.T) {
	c := NewCompiler()
	expr := bin(me("x"), "*", num(2))

	first, err := c.Strand("a", "v", expr)
	require.NoError(t, err)
	assert.Equal(t, 1, c.CacheSize())

	// Second hit compiles nothing new, even with a different expression:
	// the cache is append-only, keyed by instance@output.
	second, err := c.Strand("a", "v", num(999))
	require.NoError(t, err)
	assert.Equal(t, 1, c.CacheSize())
	assert.Equal(t, first(Coord{X: 2}), second(Coord{X: 2}))
}

func TestStrand_DistinctKeys(t *testing.T) {
	c := NewCompiler()
	_, err := c.Strand("a", "v", num(1))
	require.NoError(t, err)
	_, err = c.Strand("a", "w", num(2))
	require.NoError(t, err)
	_, err = c.Strand("b", "v", num(3))
	require.NoError(t, err)
	assert.Equal(t, 3, c.CacheSize())
}
