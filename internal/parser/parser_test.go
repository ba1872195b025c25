package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlang/weft/internal/ast"
)

func TestLexer_Tokens(t *testing.T) {
	toks, err := NewLexer(`wave<v> = sin(me.x * 10) // trailing comment`).Tokens()
	require.NoError(t, err)

	types := make([]TokenType, len(toks))
	for i, tok := range toks {
		types[i] = tok.Type
	}
	assert.Equal(t, []TokenType{
		IDENT, LT, IDENT, GT, ASSIGN,
		IDENT, LPAREN, ME, DOT, IDENT, STAR, NUMBER, RPAREN,
		EOF,
	}, types)
}

func TestLexer_Numbers(t *testing.T) {
	for _, tc := range []struct {
		src  string
		want float64
	}{
		{"0", 0},
		{"12", 12},
		{"12.5", 12.5},
		{".5", 0.5},
		{"1e3", 1000},
		{"2.5e-1", 0.25},
	} {
		toks, err := NewLexer(tc.src).Tokens()
		require.NoError(t, err, tc.src)
		require.Equal(t, NUMBER, toks[0].Type, tc.src)
		assert.Equal(t, tc.want, toks[0].Num, tc.src)
	}
}

func TestLexer_Strings(t *testing.T) {
	toks, err := NewLexer(`"hello\nworld"`).Tokens()
	require.NoError(t, err)
	require.Equal(t, STRING, toks[0].Type)
	assert.Equal(t, "hello\nworld", toks[0].Lexeme)

	_, err = NewLexer(`"unterminated`).Tokens()
	var lexErr *LexError
	require.ErrorAs(t, err, &lexErr)
}

func TestLexer_Positions(t *testing.T) {
	toks, err := NewLexer("a\n  b").Tokens()
	require.NoError(t, err)
	assert.Equal(t, 1, toks[0].Line)
	assert.Equal(t, 1, toks[0].Col)
	assert.Equal(t, 2, toks[1].Line)
	assert.Equal(t, 3, toks[1].Col)
}

func TestParse_InstanceBinding(t *testing.T) {
	prog, err := Parse(`img<r, g, b> = (me.x, me.y, 0.5)`)
	require.NoError(t, err)
	require.Len(t, prog.Statements, 1)

	bind, ok := prog.Statements[0].(*ast.InstanceBinding)
	require.True(t, ok)
	assert.Equal(t, "img", bind.Name)
	assert.Equal(t, []string{"r", "g", "b"}, bind.Outputs)

	tuple, ok := bind.Expr.(*ast.Tuple)
	require.True(t, ok)
	assert.Len(t, tuple.Items, 3)
}

func TestParse_SpindleDef(t *testing.T) {
	prog, err := Parse(`
		spindle fade(v, amt) :: <out> { v * (1 - amt) }
		layer<l> = fade(me.x, 0.3)
		display(layer@l)
	`)
	require.NoError(t, err)
	require.Len(t, prog.Statements, 3)

	def, ok := prog.Statements[0].(*ast.SpindleDef)
	require.True(t, ok)
	assert.Equal(t, "fade", def.Name)
	assert.Equal(t, []string{"v", "amt"}, def.Inputs)
	assert.Equal(t, []string{"out"}, def.Outputs)

	body, ok := def.Body.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, "*", body.Op)
}

func TestParse_SpindleDefMultiOutput(t *testing.T) {
	prog, err := Parse(`spindle split(v) :: <lo, hi> { (v * 0.5, v * 2) }`)
	require.NoError(t, err)

	def := prog.Statements[0].(*ast.SpindleDef)
	assert.Equal(t, []string{"lo", "hi"}, def.Outputs)
	_, isTuple := def.Body.(*ast.Tuple)
	assert.True(t, isTuple)
}

func TestParse_Assignment(t *testing.T) {
	prog, err := Parse(`speed = 2.5`)
	require.NoError(t, err)

	asgn, ok := prog.Statements[0].(*ast.Assignment)
	require.True(t, ok)
	assert.Equal(t, "speed", asgn.Name)
	assert.Equal(t, 2.5, asgn.Expr.(*ast.Num).V)
}

func TestParse_OutputStatements(t *testing.T) {
	prog, err := Parse(`
		wave<v> = sin(me.x)
		display(wave@v)
		play(wave@v * 0.5)
		compute(wave@v)
	`)
	require.NoError(t, err)
	require.Len(t, prog.Statements, 4)

	kinds := []string{"display", "play", "compute"}
	for i, want := range kinds {
		out, ok := prog.Statements[i+1].(*ast.Output)
		require.True(t, ok)
		assert.Equal(t, want, out.Kind)
	}
}

func TestParse_NamedOutputArgs(t *testing.T) {
	prog, err := Parse(`play(0.5, gain: 0.25)`)
	require.NoError(t, err)

	out := prog.Statements[0].(*ast.Output)
	require.Len(t, out.Args, 1)
	require.Contains(t, out.Named, "gain")
	assert.Equal(t, 0.25, out.Named["gain"].(*ast.Num).V)
}

func TestParse_StrandAccess(t *testing.T) {
	prog, err := Parse(`display(img@r)`)
	require.NoError(t, err)

	out := prog.Statements[0].(*ast.Output)
	acc, ok := out.Args[0].(*ast.StrandAccess)
	require.True(t, ok)
	assert.Equal(t, "img", acc.Base.(*ast.Var).Name)
	assert.Equal(t, "r", acc.Out.(*ast.Var).Name)
}

func TestParse_StrandRemap(t *testing.T) {
	prog, err := Parse(`display(img@r[x: me.y, y: me.x])`)
	require.NoError(t, err)

	out := prog.Statements[0].(*ast.Output)
	remap, ok := out.Args[0].(*ast.StrandRemap)
	require.True(t, ok)
	assert.Equal(t, "img", remap.Base.(*ast.Var).Name)
	assert.Equal(t, "r", remap.Strand)
	require.Len(t, remap.Mappings, 2)
	assert.Equal(t, "x", remap.Mappings[0].Axis)
	assert.Equal(t, "y", remap.Mappings[0].Expr.(*ast.Me).Field)
}

func TestParse_Precedence(t *testing.T) {
	prog, err := Parse(`k<v> = 1 + 2 * 3`)
	require.NoError(t, err)

	expr := prog.Statements[0].(*ast.InstanceBinding).Expr
	add, ok := expr.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, "+", add.Op)
	assert.Equal(t, 1.0, add.Left.(*ast.Num).V)

	mul := add.Right.(*ast.Binary)
	assert.Equal(t, "*", mul.Op)
}

func TestParse_PowerRightAssociative(t *testing.T) {
	prog, err := Parse(`k<v> = 2 ^ 3 ^ 2`)
	require.NoError(t, err)

	outer := prog.Statements[0].(*ast.InstanceBinding).Expr.(*ast.Binary)
	assert.Equal(t, "^", outer.Op)
	assert.Equal(t, 2.0, outer.Left.(*ast.Num).V)

	inner := outer.Right.(*ast.Binary)
	assert.Equal(t, "^", inner.Op)
	assert.Equal(t, 3.0, inner.Left.(*ast.Num).V)
}

func TestParse_ComparisonVsOutputList(t *testing.T) {
	// '<' after a bound name opens an output list; inside an
	// expression it is a comparison.
	prog, err := Parse(`k<v> = if me.x < 0.5 then 0 else 1`)
	require.NoError(t, err)

	bind := prog.Statements[0].(*ast.InstanceBinding)
	assert.Equal(t, []string{"v"}, bind.Outputs)

	ifn, ok := bind.Expr.(*ast.If)
	require.True(t, ok)
	cmp := ifn.Cond.(*ast.Binary)
	assert.Equal(t, "<", cmp.Op)
}

func TestParse_UnaryAndLogical(t *testing.T) {
	prog, err := Parse(`k<v> = -me.x > 0 && !(me.y == 1)`)
	require.NoError(t, err)

	and := prog.Statements[0].(*ast.InstanceBinding).Expr.(*ast.Binary)
	assert.Equal(t, "&&", and.Op)

	gt := and.Left.(*ast.Binary)
	require.Equal(t, ">", gt.Op)
	neg := gt.Left.(*ast.Unary)
	assert.Equal(t, "-", neg.Op)

	not := and.Right.(*ast.Unary)
	assert.Equal(t, "!", not.Op)
}

func TestParse_CallNamedArgs(t *testing.T) {
	prog, err := Parse(`tex<v> = load_image("cat.png", filter: 1)`)
	require.NoError(t, err)

	call := prog.Statements[0].(*ast.InstanceBinding).Expr.(*ast.Call)
	assert.Equal(t, "load_image", call.Name.(*ast.Var).Name)
	require.Len(t, call.Args, 2)
	assert.Equal(t, "cat.png", call.Args[0].(*ast.Str).V)

	named := call.Args[1].(*ast.NamedArg)
	assert.Equal(t, "filter", named.Name)
}

func TestParse_Errors(t *testing.T) {
	for _, src := range []string{
		`display(`,
		`k<> = 1`,
		`k< = 1`,
		`k<v> =`,
		`= 5`,
		`k`,
		`display(1,)`,
		`k<v> = img@`,
		`k<v> = img@r[x me.y]`,
		`k<v> = if 1 then 2`,
		`spindle f(v) <out> { v }`,
		`spindle f(v) :: <out> { }`,
	} {
		_, err := Parse(src)
		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr, "source %q", src)
		assert.Positive(t, parseErr.Line, "source %q", src)
	}
}

func TestParse_CommentsAndWhitespaceOnly(t *testing.T) {
	prog, err := Parse("// nothing here\n\n  // still nothing\n")
	require.NoError(t, err)
	assert.Empty(t, prog.Statements)
}

func TestParse_RoundTripsThroughTagger(t *testing.T) {
	// Parsed programs carry fresh annotations ready for tagging.
	prog, err := Parse(`
		wave<v> = sin(me.x * 10)
		display(wave@v)
	`)
	require.NoError(t, err)
	for _, stmt := range prog.Statements {
		require.NotNil(t, stmt.Ann())
		assert.Zero(t, stmt.Ann().Routes.Len())
	}
}
