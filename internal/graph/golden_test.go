package graph

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/weftlang/weft/internal/ast"
)

// Golden tests pin the exact dump format. Run with -update to refresh
// the .golden files after an intentional format change.

func TestDump_Golden(t *testing.T) {
	g, err := Build(program(
		instance("noise", []string{"v"}, call("sin", bin(&ast.Me{Field: "x"}, "*", num(40)))),
		instance("img", []string{"r", "g"}, &ast.Tuple{Items: []ast.Node{
			bin(access("noise", "v"), "*", num(0.5)),
			num(0.2),
		}}),
		output("display", access("img", "r"), access("img", "g")),
		output("play", access("noise", "v")),
	))
	require.NoError(t, err)

	gold := goldie.New(t)
	gold.Assert(t, "graph_dump", []byte(g.Dump()))
}

func TestDump_GoldenEmpty(t *testing.T) {
	g, err := Build(program())
	require.NoError(t, err)

	gold := goldie.New(t)
	gold.Assert(t, "graph_dump_empty", []byte(g.Dump()))
}
