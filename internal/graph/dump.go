package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Dump renders the graph as a stable text listing: execution order
// first, then one block per instance in that order. The output is
// deterministic so it can be golden-tested and diffed.
func (g *Graph) Dump() string {
	var b strings.Builder

	b.WriteString("exec order: ")
	if len(g.ExecOrder) == 0 {
		b.WriteString("(empty)")
	} else {
		b.WriteString(strings.Join(g.ExecOrder, " -> "))
	}
	b.WriteByte('\n')

	for _, name := range g.ExecOrder {
		inst := g.Nodes[name]
		fmt.Fprintf(&b, "\n%s (%s)\n", inst.Name, inst.Kind)
		fmt.Fprintf(&b, "  outputs:  %s\n", joinSorted(keys(inst.Outputs)))
		fmt.Fprintf(&b, "  required: %s\n", joinSorted(keys(inst.RequiredOutputs)))
		fmt.Fprintf(&b, "  deps:     %s\n", joinSorted(keys(inst.Deps)))
		fmt.Fprintf(&b, "  contexts: %s\n", inst.Contexts)
	}
	return b.String()
}

func joinSorted(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
