package tagger

import (
	"fmt"
	"strings"
)

// CyclicDependencyError reports a reference cycle among bindings
// (binding A depends on B depends on A). The cycle is fatal: route
// propagation cannot terminate over it.
type CyclicDependencyError struct {
	// Bindings names the implicated bindings in traversal order; the
	// last entry repeats the first binding on the cycle.
	Bindings []string
}

// Error implements the error interface.
func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency among bindings: %s",
		strings.Join(e.Bindings, " -> "))
}

// UnknownOutputKindError reports an output statement whose kind is not
// in the statement-kind → route table. Fatal: the statement cannot be
// routed.
type UnknownOutputKindError struct {
	Kind string
}

// Error implements the error interface.
func (e *UnknownOutputKindError) Error() string {
	return fmt.Sprintf("unknown output statement kind %q", e.Kind)
}
