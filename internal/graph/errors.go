package graph

import (
	"fmt"
	"strings"
)

// CyclicDependencyError reports a dependency cycle among instances.
// The graph must be acyclic; a cycle aborts compilation, it is never
// silently broken by dropping an edge.
type CyclicDependencyError struct {
	// Cycle names the instances on the cycle in edge order; the last
	// entry repeats the first so the loop reads closed.
	Cycle []string
}

// Error implements the error interface.
func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency among instances: %s",
		strings.Join(e.Cycle, " -> "))
}
