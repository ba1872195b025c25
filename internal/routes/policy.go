package routes

// Policy selects the primary route for a cross-context expression: the
// one substrate responsible for producing the canonical value, which is
// then bridged outward to the other consumers.
//
// The precedence is a policy constant, not a hard guarantee of the
// engine; callers that need a different tie-break construct their own
// Policy (the config package loads one from the settings file). The
// rest of the engine treats a Policy as opaque.
//
// Default precedence:
//   - exactly one route: that route
//   - CPU present (two or three routes): CPU — it can always recompute
//     any value once and bridge it outward, whereas the GPU and audio
//     backends may be unable to execute arbitrary control flow
//   - {gpu, audio}: GPU — more parallel throughput than the
//     latency-critical audio path
type Policy struct {
	// PairPreference ranks routes for multi-route sets, highest
	// preference first. A route not listed is never selected unless it
	// is the only member of the set.
	PairPreference []Route
}

// DefaultPolicy returns the canonical precedence table.
func DefaultPolicy() Policy {
	return Policy{PairPreference: []Route{CPU, GPU, Audio}}
}

// Primary returns the primary route for the given set.
// An empty set yields RouteNone.
func (p Policy) Primary(s Set) Route {
	members := s.Slice()
	switch len(members) {
	case 0:
		return RouteNone
	case 1:
		return members[0]
	}
	for _, r := range p.PairPreference {
		if s.Has(r) {
			return r
		}
	}
	// Preference list did not cover the set; fall back to the first
	// member in fixed order so the result stays deterministic.
	return members[0]
}
