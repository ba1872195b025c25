package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(path, body string) error {
	return os.WriteFile(path, []byte(body), 0o644)
}

func TestScenarios_Golden(t *testing.T) {
	scenarios, err := LoadDir(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, sc := range scenarios {
		if sc.ExpectError != "" {
			continue // error scenarios have no stable graph to snapshot
		}
		t.Run(sc.Name, func(t *testing.T) {
			RunWithGolden(t, sc)
		})
	}
}

func TestScenario_ExpectError(t *testing.T) {
	sc, err := LoadScenario(filepath.Join("testdata", "scenarios", "cyclic-error.yaml"))
	require.NoError(t, err)

	result, err := Run(sc)
	require.NoError(t, err)
	assert.True(t, result.Passed(), "failures: %v", result.Failures)
}

func TestScenario_ExpectErrorMismatch(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "wrong-error",
		Program:     "a<x> = b@y\nb<y> = a@x\ncompute(a@x)",
		ExpectError: "out of memory",
	})
	require.NoError(t, err)
	assert.False(t, result.Passed())
}

func TestScenario_FailedAssertionsReported(t *testing.T) {
	result, err := Run(&Scenario{
		Name:    "wrong-primary",
		Program: "wave<v> = sin(me.x)\ndisplay(wave@v)\nplay(wave@v)",
		Expect: Expectations{
			Primary:   map[string]string{"wave": "audio"},
			ExecOrder: []string{"nonexistent"},
		},
	})
	require.NoError(t, err)
	assert.False(t, result.Passed())
	assert.Len(t, result.Failures, 2)
}

func TestScenario_ValueTolerance(t *testing.T) {
	result, err := Run(&Scenario{
		Name:    "value-check",
		Program: "k<v> = me.x * 2\ncompute(k@v)",
		Expect: Expectations{
			Values: []ValueExpect{
				{Instance: "k", Output: "v", X: 0.25, Value: 0.5},
				{Instance: "k", Output: "v", X: 0.25, Value: 0.6, Tolerance: 0.2},
			},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Passed(), "failures: %v", result.Failures)
}

func TestLoadScenario_Invalid(t *testing.T) {
	dir := t.TempDir()

	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, writeFile(path, body))
		return path
	}

	_, err := LoadScenario(write("noname.yaml", "program: compute(1)\n"))
	assert.ErrorContains(t, err, "missing name")

	_, err = LoadScenario(write("noprog.yaml", "name: x\n"))
	assert.ErrorContains(t, err, "missing program")

	_, err = LoadScenario(write("bad.yaml", "name: [\n"))
	assert.Error(t, err)

	_, err = LoadScenario(filepath.Join(dir, "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadDir_SortedByFileName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeFile(filepath.Join(dir, "b.yaml"), "name: second\nprogram: compute(1)\n"))
	require.NoError(t, writeFile(filepath.Join(dir, "a.yaml"), "name: first\nprogram: compute(1)\n"))
	require.NoError(t, writeFile(filepath.Join(dir, "ignored.txt"), "not yaml"))

	scenarios, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "first", scenarios[0].Name)
	assert.Equal(t, "second", scenarios[1].Name)
}

func TestSnapshot_Deterministic(t *testing.T) {
	sc, err := LoadScenario(filepath.Join("testdata", "scenarios", "wave-cross-context.yaml"))
	require.NoError(t, err)

	r1, err := Run(sc)
	require.NoError(t, err)
	r2, err := Run(sc)
	require.NoError(t, err)
	assert.Equal(t, Snapshot(r1), Snapshot(r2))
}
