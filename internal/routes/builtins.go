package routes

// builtinRoutes maps media builtins to the substrate that owns their
// native data. Instances whose defining expression calls one of these
// are assigned to the matching backend regardless of consumer contexts.
var builtinRoutes = map[string]Route{
	"load_image": GPU,
	"load_video": GPU,
	"load_movie": GPU,
	"camera":     GPU,
	"camera_in":  GPU,

	"load_audio": Audio,
	"mic_in":     Audio,
	"microphone": Audio,
}

// BuiltinRoute returns the preferred route for a builtin function name,
// or RouteNone when the builtin has no substrate affinity.
func BuiltinRoute(name string) Route {
	return builtinRoutes[name]
}

// outputKindRoutes is the fixed, output-driven statement-kind → route
// mapping. It is a design invariant: routing is decided by what an
// output statement IS, never by what its arguments look like.
var outputKindRoutes = map[string]Route{
	"display":   GPU,
	"render":    GPU,
	"render_3d": GPU,
	"play":      Audio,
	"compute":   CPU,
	"data":      CPU,
	"web":       CPU,
	"osc":       CPU,
	"midi":      CPU,
}

// OutputKindRoute resolves an output statement keyword to its route.
// The ok result is false for unrecognized kinds; callers turn that into
// an UnknownOutputKindError.
func OutputKindRoute(kind string) (Route, bool) {
	r, ok := outputKindRoutes[kind]
	return r, ok
}
