package routes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet_AddHas(t *testing.T) {
	var s Set
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Has(GPU))

	s = s.Add(GPU)
	assert.True(t, s.Has(GPU))
	assert.False(t, s.Has(Audio))
	assert.Equal(t, 1, s.Len())

	// Adding twice is a no-op
	s = s.Add(GPU)
	assert.Equal(t, 1, s.Len())

	s = s.Add(Audio).Add(CPU)
	assert.Equal(t, 3, s.Len())
}

func TestSet_AddNoneIgnored(t *testing.T) {
	s := NewSet(RouteNone)
	assert.Equal(t, 0, s.Len())
}

func TestSet_ValueSemantics(t *testing.T) {
	a := NewSet(GPU, Audio)
	b := NewSet(Audio, GPU)
	assert.Equal(t, a, b, "sets are order-independent values")
}

func TestSet_String(t *testing.T) {
	assert.Equal(t, "{}", NewSet().String())
	assert.Equal(t, "{gpu}", NewSet(GPU).String())
	assert.Equal(t, "{audio, gpu}", NewSet(GPU, Audio).String())
}

func TestParse_RoundTrip(t *testing.T) {
	for _, r := range []Route{GPU, Audio, CPU} {
		got, err := Parse(r.String())
		assert.NoError(t, err)
		assert.Equal(t, r, got)
	}

	_, err := Parse("metal")
	assert.Error(t, err)
}

func TestPolicy_SingleRoute(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, GPU, p.Primary(NewSet(GPU)))
	assert.Equal(t, Audio, p.Primary(NewSet(Audio)))
	assert.Equal(t, CPU, p.Primary(NewSet(CPU)))
}

func TestPolicy_EmptySet(t *testing.T) {
	assert.Equal(t, RouteNone, DefaultPolicy().Primary(NewSet()))
}

func TestPolicy_CPUAbsorbsSharing(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, CPU, p.Primary(NewSet(GPU, Audio, CPU)))
	assert.Equal(t, CPU, p.Primary(NewSet(GPU, CPU)))
	assert.Equal(t, CPU, p.Primary(NewSet(Audio, CPU)))
}

func TestPolicy_GPUOverAudio(t *testing.T) {
	assert.Equal(t, GPU, DefaultPolicy().Primary(NewSet(GPU, Audio)))
}

func TestPolicy_CustomPrecedence(t *testing.T) {
	// Audio-first policy, as loadable from the settings file.
	p := Policy{PairPreference: []Route{Audio, GPU, CPU}}
	assert.Equal(t, Audio, p.Primary(NewSet(GPU, Audio)))
	assert.Equal(t, Audio, p.Primary(NewSet(GPU, Audio, CPU)))
	// Single-route sets ignore the preference list.
	assert.Equal(t, CPU, p.Primary(NewSet(CPU)))
}

func TestOutputKindRoute(t *testing.T) {
	cases := []struct {
		kind string
		want Route
	}{
		{"display", GPU},
		{"render", GPU},
		{"render_3d", GPU},
		{"play", Audio},
		{"compute", CPU},
		{"data", CPU},
		{"osc", CPU},
	}
	for _, tc := range cases {
		got, ok := OutputKindRoute(tc.kind)
		assert.True(t, ok, tc.kind)
		assert.Equal(t, tc.want, got, tc.kind)
	}

	_, ok := OutputKindRoute("teleport")
	assert.False(t, ok)
}

func TestBuiltinRoute(t *testing.T) {
	assert.Equal(t, GPU, BuiltinRoute("camera"))
	assert.Equal(t, Audio, BuiltinRoute("mic_in"))
	assert.Equal(t, RouteNone, BuiltinRoute("sin"))
}
