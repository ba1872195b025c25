// Package config loads and validates runtime settings.
//
// Settings are CUE documents validated against an embedded schema, so a
// malformed file fails loudly with a position instead of half-applying.
// Every field has a default; an absent file yields the default
// configuration.
package config

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/weftlang/weft/internal/env"
	"github.com/weftlang/weft/internal/routes"
)

// schema constrains and defaults every setting. Defaults mirror the
// runtime environment's.
const schema = `
#Settings: {
	resolution: {
		width:  int & >0 | *1280
		height: int & >0 | *720
	}
	fps:          number & >0 | *60
	sampleRate:   number & >0 | *48000
	loopDuration: number & >0 | *10
	tempo:        number & >0 | *120
	timeSignature: {
		beats: int & >0 | *4
		unit:  int & >0 | *4
	}
	routePrecedence: [...("cpu" | "gpu" | "audio")] | *["cpu", "gpu", "audio"]
}
`

// Config is the validated runtime configuration.
type Config struct {
	Width        int
	Height       int
	FPS          float64
	SampleRate   float64
	LoopDuration float64
	Tempo        float64
	TimesigNum   int
	TimesigDenom int

	// Policy is the primary-route precedence used when a strand runs in
	// more than one context.
	Policy routes.Policy
}

// LoadError reports a configuration problem with the offending field.
type LoadError struct {
	Field   string
	Message string
}

func (e *LoadError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %s", e.Message)
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Default returns the configuration with every field at its schema
// default.
func Default() *Config {
	cfg, err := FromString("")
	if err != nil {
		panic(fmt.Sprintf("config: default schema invalid: %v", err))
	}
	return cfg
}

// Load reads and validates the CUE settings file at path. An empty
// path yields Default.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("reading %s: %v", path, err)}
	}
	cfg, err := FromString(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// FromString validates a CUE settings document given as a string.
func FromString(src string) (*Config, error) {
	ctx := cuecontext.New()

	schemaVal := ctx.CompileString(schema).LookupPath(cue.ParsePath("#Settings"))
	if err := schemaVal.Err(); err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("internal schema: %v", err)}
	}

	userVal := ctx.CompileString(src)
	if err := userVal.Err(); err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("parsing settings: %v", err)}
	}

	merged := schemaVal.Unify(userVal)
	if err := merged.Validate(cue.Concrete(true)); err != nil {
		return nil, &LoadError{Message: err.Error()}
	}

	cfg := &Config{}
	var err error
	if cfg.Width, err = intField(merged, "resolution.width"); err != nil {
		return nil, err
	}
	if cfg.Height, err = intField(merged, "resolution.height"); err != nil {
		return nil, err
	}
	if cfg.FPS, err = floatField(merged, "fps"); err != nil {
		return nil, err
	}
	if cfg.SampleRate, err = floatField(merged, "sampleRate"); err != nil {
		return nil, err
	}
	if cfg.LoopDuration, err = floatField(merged, "loopDuration"); err != nil {
		return nil, err
	}
	if cfg.Tempo, err = floatField(merged, "tempo"); err != nil {
		return nil, err
	}
	if cfg.TimesigNum, err = intField(merged, "timeSignature.beats"); err != nil {
		return nil, err
	}
	if cfg.TimesigDenom, err = intField(merged, "timeSignature.unit"); err != nil {
		return nil, err
	}

	if cfg.Policy, err = policyField(merged); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Env constructs the runtime environment this configuration describes.
func (c *Config) Env() *env.Env {
	e := env.New(c.Width, c.Height)
	e.TargetFPS = c.FPS
	e.SampleRate = c.SampleRate
	e.LoopDuration = c.LoopDuration
	e.Tempo = c.Tempo
	e.TimesigNum = c.TimesigNum
	e.TimesigDenom = c.TimesigDenom
	return e
}

func intField(v cue.Value, path string) (int, error) {
	n, err := v.LookupPath(cue.ParsePath(path)).Int64()
	if err != nil {
		return 0, &LoadError{Field: path, Message: err.Error()}
	}
	return int(n), nil
}

func floatField(v cue.Value, path string) (float64, error) {
	f, err := v.LookupPath(cue.ParsePath(path)).Float64()
	if err != nil {
		return 0, &LoadError{Field: path, Message: err.Error()}
	}
	return f, nil
}

// policyField decodes routePrecedence into a routes.Policy, rejecting
// duplicates.
func policyField(v cue.Value) (routes.Policy, error) {
	iter, err := v.LookupPath(cue.ParsePath("routePrecedence")).List()
	if err != nil {
		return routes.Policy{}, &LoadError{Field: "routePrecedence", Message: err.Error()}
	}

	var order []routes.Route
	seen := map[routes.Route]bool{}
	for iter.Next() {
		name, err := iter.Value().String()
		if err != nil {
			return routes.Policy{}, &LoadError{Field: "routePrecedence", Message: err.Error()}
		}
		r, err := routes.Parse(name)
		if err != nil {
			return routes.Policy{}, &LoadError{Field: "routePrecedence", Message: err.Error()}
		}
		if seen[r] {
			return routes.Policy{}, &LoadError{
				Field:   "routePrecedence",
				Message: fmt.Sprintf("duplicate route %q", name),
			}
		}
		seen[r] = true
		order = append(order, r)
	}
	if len(order) == 0 {
		return routes.DefaultPolicy(), nil
	}
	return routes.Policy{PairPreference: order}, nil
}
