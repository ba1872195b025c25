package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario is one conformance case: a WEFT program plus expectations
// about how the pipeline routes, orders, bridges, and evaluates it.
type Scenario struct {
	// Name uniquely identifies the scenario; it doubles as the golden
	// file name.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description,omitempty"`

	// Program is WEFT source text.
	Program string `yaml:"program"`

	// Expect holds the pipeline expectations. Ignored when ExpectError
	// is set.
	Expect Expectations `yaml:"expect,omitempty"`

	// ExpectError, when non-empty, asserts that compilation fails and
	// the error message contains this substring.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Expectations are subset assertions: only the listed entries are
// checked.
type Expectations struct {
	// Contexts maps instance names to route-set strings, e.g.
	// "{audio, gpu}".
	Contexts map[string]string `yaml:"contexts,omitempty"`

	// Primary maps instance names to their primary route.
	Primary map[string]string `yaml:"primary,omitempty"`

	// ExecOrder is the full expected execution order.
	ExecOrder []string `yaml:"exec_order,omitempty"`

	// Bridges lists expected data bridges.
	Bridges []BridgeExpect `yaml:"bridges,omitempty"`

	// Values samples strands through the coordinator's fallback chain.
	Values []ValueExpect `yaml:"values,omitempty"`

	// FailedRoutes lists routes whose backend compile must fail.
	FailedRoutes []string `yaml:"failed_routes,omitempty"`
}

// BridgeExpect asserts one data bridge's endpoints and policy.
type BridgeExpect struct {
	Instance      string `yaml:"instance"`
	Output        string `yaml:"output"`
	Source        string `yaml:"source"`
	Target        string `yaml:"target"`
	Interpolation string `yaml:"interpolation"`
}

// ValueExpect asserts one sampled strand value.
type ValueExpect struct {
	Instance  string  `yaml:"instance"`
	Output    string  `yaml:"output"`
	X         float64 `yaml:"x"`
	Y         float64 `yaml:"y"`
	Time      float64 `yaml:"time,omitempty"`
	Value     float64 `yaml:"value"`
	Tolerance float64 `yaml:"tolerance,omitempty"`
}

// LoadScenario reads and validates one scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("scenario %s: missing name", path)
	}
	if sc.Program == "" {
		return nil, fmt.Errorf("scenario %s: missing program", path)
	}
	return &sc, nil
}

// LoadDir loads every .yaml scenario under dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario dir: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ext := filepath.Ext(entry.Name()); ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	out := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		sc, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}
