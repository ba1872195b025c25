package ast

import (
	"fmt"
	"strings"

	"github.com/weftlang/weft/internal/routes"
)

// Dump renders the tree as an indented listing, one node per line.
// Tagged nodes show their route annotations; untagged nodes stay bare,
// so the same dump serves `weft parse` (pre-tag) and `weft check`
// (post-tag) and the golden tests diff cleanly.
func Dump(n Node) string {
	var b strings.Builder
	dumpNode(&b, n, 0)
	return b.String()
}

func dumpNode(b *strings.Builder, n Node, depth int) {
	if n == nil {
		return
	}
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(describe(n))

	if ann := n.Ann(); ann.Routes.Len() > 0 {
		fmt.Fprintf(b, "  routes=%s primary=%s", ann.Routes, ann.PrimaryRoute)
		if ann.CrossContext {
			b.WriteString(" cross")
		}
	}
	b.WriteByte('\n')

	for _, c := range Children(n) {
		dumpNode(b, c, depth+1)
	}
}

func describe(n Node) string {
	switch v := n.(type) {
	case *Num:
		return fmt.Sprintf("Num %g", v.V)
	case *Str:
		return fmt.Sprintf("Str %q", v.V)
	case *Var:
		return "Var " + v.Name
	case *Me:
		return "Me ." + v.Field
	case *Binary:
		return "Binary " + v.Op
	case *Unary:
		return "Unary " + v.Op
	case *Call:
		return "Call"
	case *Tuple:
		return fmt.Sprintf("Tuple (%d items)", len(v.Items))
	case *Index:
		return "Index"
	case *StrandAccess:
		return "StrandAccess"
	case *StrandRemap:
		return "StrandRemap @" + v.Strand
	case *If:
		return "If"
	case *Assignment:
		return "Assignment " + v.Name
	case *NamedArg:
		return "NamedArg " + v.Name
	case *Output:
		return "Output " + v.Kind
	case *SpindleDef:
		return fmt.Sprintf("SpindleDef %s<%s>", v.Name, strings.Join(v.Outputs, ", "))
	case *InstanceBinding:
		return fmt.Sprintf("Instance %s<%s>", v.Name, strings.Join(v.Outputs, ", "))
	case *Program:
		return fmt.Sprintf("Program (%d statements)", len(v.Statements))
	default:
		panic("ast: unknown node kind in describe")
	}
}

// OutputRoute resolves an output statement's route from its kind.
func OutputRoute(o *Output) (routes.Route, bool) {
	return routes.OutputKindRoute(o.Kind)
}
