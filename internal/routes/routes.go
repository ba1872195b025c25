// Package routes defines the three execution substrates a WEFT expression
// can be compiled for, and the policy that picks a single canonical
// producer when an expression is needed by more than one of them.
//
// Routing is output-driven: an output statement's kind fixes its route
// (display/render → GPU, play → Audio, compute → CPU), and routes
// propagate backward from output statements through the dependency
// closure. This package only holds the vocabulary; the propagation itself
// lives in the tagger.
package routes

import (
	"fmt"
	"sort"
	"strings"
)

// Route identifies one execution substrate.
type Route int

const (
	// RouteNone is the zero value; a node that no output statement reaches.
	RouteNone Route = iota
	// GPU is the per-pixel, frame-clocked raster pipeline.
	GPU
	// Audio is the per-sample, sample-clocked synthesis pipeline.
	Audio
	// CPU is the event-clocked sequential evaluator. CPU has no
	// computational restrictions, so it is the universal fallback.
	CPU
)

// String returns the canonical lowercase name.
func (r Route) String() string {
	switch r {
	case GPU:
		return "gpu"
	case Audio:
		return "audio"
	case CPU:
		return "cpu"
	default:
		return "none"
	}
}

// Parse converts a canonical route name back to a Route.
func Parse(s string) (Route, error) {
	switch s {
	case "gpu":
		return GPU, nil
	case "audio":
		return Audio, nil
	case "cpu":
		return CPU, nil
	}
	return RouteNone, fmt.Errorf("unknown route %q", s)
}

// Set is a small value-type set of routes.
//
// The representation is a bitmask so Sets can be compared with == and
// copied freely; AST annotations hold Sets by value.
type Set uint8

// NewSet builds a Set from the given routes.
func NewSet(rs ...Route) Set {
	var s Set
	for _, r := range rs {
		s = s.Add(r)
	}
	return s
}

// Add returns a copy of s with r included.
func (s Set) Add(r Route) Set {
	if r == RouteNone {
		return s
	}
	return s | 1<<uint(r)
}

// Has reports whether r is in the set.
func (s Set) Has(r Route) bool {
	return r != RouteNone && s&(1<<uint(r)) != 0
}

// Union returns the union of s and other.
func (s Set) Union(other Set) Set { return s | other }

// Len returns the number of routes in the set.
func (s Set) Len() int {
	n := 0
	for _, r := range []Route{GPU, Audio, CPU} {
		if s.Has(r) {
			n++
		}
	}
	return n
}

// Slice returns the routes in a fixed order (gpu, audio, cpu).
func (s Set) Slice() []Route {
	var out []Route
	for _, r := range []Route{GPU, Audio, CPU} {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

// String renders the set like "{gpu, audio}".
func (s Set) String() string {
	names := make([]string, 0, 3)
	for _, r := range s.Slice() {
		names = append(names, r.String())
	}
	sort.Strings(names)
	return "{" + strings.Join(names, ", ") + "}"
}
