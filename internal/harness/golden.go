package harness

import (
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/weftlang/weft/internal/ast"
	"github.com/weftlang/weft/internal/routes"
)

// Snapshot renders a deterministic trace of a scenario run: the
// execution graph dump and the constructed bridges. Golden files pin
// this output.
func Snapshot(r *Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "scenario: %s\n", r.Scenario.Name)

	if r.prog == nil || r.coord == nil || r.coord.Graph() == nil {
		fmt.Fprintf(&sb, "failures:\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&sb, "  %s\n", f)
		}
		return sb.String()
	}

	sb.WriteString("\n")
	g := r.coord.Graph()
	sb.WriteString(g.Dump())

	policy := routes.DefaultPolicy()
	var bridgeLines []string
	for _, name := range g.ExecOrder {
		inst := g.Nodes[name]
		if inst.Contexts.Len() <= 1 {
			continue
		}
		primary := policy.Primary(inst.Contexts)
		for _, target := range inst.Contexts.Slice() {
			if target == primary {
				continue
			}
			for _, out := range sortedOutputs(inst.Outputs) {
				br := r.coord.BridgeFor(name, out, target)
				if br == nil {
					continue
				}
				bridgeLines = append(bridgeLines, fmt.Sprintf(
					"%s@%s: %s -> %s (%s)",
					name, out, br.Source(), br.Target(), br.Interpolation()))
			}
		}
	}
	if len(bridgeLines) > 0 {
		sb.WriteString("\nbridges:\n")
		for _, line := range bridgeLines {
			fmt.Fprintf(&sb, "  %s\n", line)
		}
	}

	if len(r.Failures) > 0 {
		sb.WriteString("\nfailures:\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&sb, "  %s\n", f)
		}
	}
	return sb.String()
}

func sortedOutputs(m map[string]ast.Node) []string {
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// RunWithGolden executes a scenario, asserts it passed, and compares
// its snapshot against testdata/{scenario.Name}.golden. Regenerate
// with `go test ./internal/harness -update`.
func RunWithGolden(t *testing.T, sc *Scenario) {
	t.Helper()

	result, err := Run(sc)
	if err != nil {
		t.Fatalf("scenario %s: %v", sc.Name, err)
	}
	for _, failure := range result.Failures {
		t.Errorf("scenario %s: %s", sc.Name, failure)
	}

	g := goldie.New(t)
	g.Assert(t, sc.Name, []byte(Snapshot(result)))
}
