package eval

import "math"

type builtinSpec struct {
	arity int // -1 for variadic
	fn    func(args []float64) float64
}

// builtins is the CPU function table. Backends for the other substrates
// carry their own notion of these; the names here define what the
// fallback path can answer.
var builtins = map[string]builtinSpec{
	"sin":   {1, func(a []float64) float64 { return math.Sin(a[0]) }},
	"cos":   {1, func(a []float64) float64 { return math.Cos(a[0]) }},
	"tan":   {1, func(a []float64) float64 { return math.Tan(a[0]) }},
	"asin":  {1, func(a []float64) float64 { return math.Asin(a[0]) }},
	"acos":  {1, func(a []float64) float64 { return math.Acos(a[0]) }},
	"atan":  {1, func(a []float64) float64 { return math.Atan(a[0]) }},
	"atan2": {2, func(a []float64) float64 { return math.Atan2(a[0], a[1]) }},
	"sqrt":  {1, func(a []float64) float64 { return math.Sqrt(a[0]) }},
	"abs":   {1, func(a []float64) float64 { return math.Abs(a[0]) }},
	"floor": {1, func(a []float64) float64 { return math.Floor(a[0]) }},
	"ceil":  {1, func(a []float64) float64 { return math.Ceil(a[0]) }},
	"round": {1, func(a []float64) float64 { return math.Round(a[0]) }},
	"exp":   {1, func(a []float64) float64 { return math.Exp(a[0]) }},
	"log":   {1, func(a []float64) float64 { return math.Log(a[0]) }},
	"pow":   {2, func(a []float64) float64 { return math.Pow(a[0], a[1]) }},
	"fract": {1, func(a []float64) float64 { return a[0] - math.Floor(a[0]) }},
	"sign": {1, func(a []float64) float64 {
		switch {
		case a[0] > 0:
			return 1
		case a[0] < 0:
			return -1
		default:
			return 0
		}
	}},
	"min": {-1, func(a []float64) float64 {
		if len(a) == 0 {
			return 0
		}
		m := a[0]
		for _, v := range a[1:] {
			m = math.Min(m, v)
		}
		return m
	}},
	"max": {-1, func(a []float64) float64 {
		if len(a) == 0 {
			return 0
		}
		m := a[0]
		for _, v := range a[1:] {
			m = math.Max(m, v)
		}
		return m
	}},
	"clamp": {3, func(a []float64) float64 {
		return math.Min(math.Max(a[0], a[1]), a[2])
	}},
	"mix": {3, func(a []float64) float64 {
		return a[0] + (a[1]-a[0])*a[2]
	}},
	"step": {2, func(a []float64) float64 {
		if a[1] < a[0] {
			return 0
		}
		return 1
	}},
}
