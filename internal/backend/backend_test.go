package backend

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlang/weft/internal/ast"
	"github.com/weftlang/weft/internal/coordinator"
	"github.com/weftlang/weft/internal/env"
	"github.com/weftlang/weft/internal/eval"
	"github.com/weftlang/weft/internal/routes"
)

func num(v float64) *ast.Num      { return &ast.Num{V: v} }
func varRef(name string) *ast.Var { return &ast.Var{Name: name} }
func me(field string) *ast.Me     { return &ast.Me{Field: field} }

func bin(l ast.Node, op string, r ast.Node) *ast.Binary {
	return &ast.Binary{Op: op, Left: l, Right: r}
}

func call(name string, args ...ast.Node) *ast.Call {
	return &ast.Call{Name: varRef(name), Args: args}
}

func access(base, out string) *ast.StrandAccess {
	return &ast.StrandAccess{Base: varRef(base), Out: varRef(out)}
}

func instance(name string, outputs []string, expr ast.Node) *ast.InstanceBinding {
	return &ast.InstanceBinding{Name: name, Outputs: outputs, Expr: expr}
}

func output(kind string, args ...ast.Node) *ast.Output {
	return &ast.Output{Kind: kind, Args: args}
}

func program(stmts ...ast.Node) *ast.Program {
	return &ast.Program{Statements: stmts}
}

// rig wires a coordinator over the three reference backends for a
// small 4x4 frame.
type rig struct {
	coord *coordinator.Coordinator
	cpu   *CPU
	frame *Frame
	audio *Audio
}

func newRig(t *testing.T, prog *ast.Program) *rig {
	t.Helper()

	e := env.New(4, 4)
	c := coordinator.New(e, coordinator.WithTickInterval(time.Millisecond))

	r := &rig{
		coord: c,
		cpu:   NewCPU(),
		frame: NewFrame(WithFrameBridges(c)),
		audio: NewAudio(WithAudioBridges(c), WithBlockSize(8)),
	}
	c.SetBackends(map[routes.Route]coordinator.Backend{
		routes.GPU:   r.frame,
		routes.Audio: r.audio,
		routes.CPU:   r.cpu,
	})

	ok, err := c.Compile(context.Background(), prog)
	require.NoError(t, err)
	require.True(t, ok)
	return r
}

func TestCPU_GetValueEvaluates(t *testing.T) {
	prog := program(
		instance("k", []string{"v"}, bin(num(2), "*", num(3))),
		output("compute", access("k", "v")),
	)
	r := newRig(t, prog)

	v, err := r.cpu.GetValue("k", "v", eval.Coord{})
	require.NoError(t, err)
	assert.Equal(t, 6.0, v)
}

func TestCPU_GetValueUnknownTargets(t *testing.T) {
	prog := program(
		instance("k", []string{"v"}, num(1)),
		output("compute", access("k", "v")),
	)
	r := newRig(t, prog)

	_, err := r.cpu.GetValue("ghost", "v", eval.Coord{})
	assert.Error(t, err)
	_, err = r.cpu.GetValue("k", "ghost", eval.Coord{})
	assert.Error(t, err)
}

func TestCPU_NotCompiled(t *testing.T) {
	b := NewCPU()
	_, err := b.GetValue("k", "v", eval.Coord{})
	assert.Error(t, err)
	assert.NoError(t, b.Render(), "render before compile is a no-op")
}

func TestCPU_RenderSnapshots(t *testing.T) {
	prog := program(
		instance("k", []string{"v"}, num(7)),
		output("compute", access("k", "v")),
	)
	r := newRig(t, prog)

	_, ok := r.cpu.LastValue("k", "v")
	assert.False(t, ok, "no snapshot before first render")

	require.NoError(t, r.cpu.Render())
	v, ok := r.cpu.LastValue("k", "v")
	require.True(t, ok)
	assert.Equal(t, 7.0, v)
}

func TestFrame_RasterizesCoordinateGradient(t *testing.T) {
	r := newRig(t, program(output("display", me("x"))))

	require.NoError(t, r.frame.Render())

	w, h := r.frame.Size()
	require.Equal(t, 4, w)
	require.Equal(t, 4, h)

	// Single argument paints all channels with pixel-center x.
	for px := 0; px < w; px++ {
		want := (float64(px) + 0.5) / float64(w)
		red, green, blue := r.frame.Pixel(px, 2)
		assert.InDelta(t, want, red, 1e-12)
		assert.Equal(t, red, green)
		assert.Equal(t, red, blue)
	}
}

func TestFrame_ChannelsFromArgs(t *testing.T) {
	r := newRig(t, program(output("display", me("x"), me("y"), num(0.25))))

	require.NoError(t, r.frame.Render())
	// Pixel centers: red = (1+0.5)/4, green = (3+0.5)/4.
	red, green, blue := r.frame.Pixel(1, 3)
	assert.InDelta(t, 0.375, red, 1e-12)
	assert.InDelta(t, 0.875, green, 1e-12)
	assert.Equal(t, 0.25, blue)
}

func TestFrame_PixelOutOfBounds(t *testing.T) {
	r := newRig(t, program(output("display", num(1))))
	require.NoError(t, r.frame.Render())

	red, green, blue := r.frame.Pixel(-1, 99)
	assert.Zero(t, red)
	assert.Zero(t, green)
	assert.Zero(t, blue)
}

func TestFrame_NoArgsRejected(t *testing.T) {
	b := NewFrame()
	e := env.New(4, 4)
	c := coordinator.New(e)
	c.SetBackends(map[routes.Route]coordinator.Backend{routes.GPU: b})

	ok, err := c.Compile(context.Background(), program(output("display")))
	require.NoError(t, err, "backend failures are per-route flags")
	assert.False(t, ok)
	assert.Contains(t, c.FailedRoutes(), routes.GPU)
}

func TestAudio_FillsConstantBlock(t *testing.T) {
	r := newRig(t, program(output("play", num(0.25))))

	require.NoError(t, r.audio.Render())
	block := r.audio.Block()
	require.Len(t, block, 8)
	for _, s := range block {
		assert.Equal(t, 0.25, s)
	}
	assert.InDelta(t, 0.25, r.audio.RMS(), 1e-12)
}

func TestAudio_SumsVoices(t *testing.T) {
	r := newRig(t, program(
		output("play", num(0.25)),
		output("play", num(0.5)),
	))

	require.NoError(t, r.audio.Render())
	for _, s := range r.audio.Block() {
		assert.Equal(t, 0.75, s)
	}
}

func TestCrossContext_FrameFeedsAudioThroughBridge(t *testing.T) {
	// wave is visual-primary, consumed by play: the frame backend
	// publishes center values into the bridge, the audio backend reads
	// them back resampled.
	prog := program(
		instance("wave", []string{"v"}, call("sin", bin(me("x"), "*", num(10)))),
		output("display", access("wave", "v")),
		output("play", bin(access("wave", "v"), "*", num(0.5))),
	)
	r := newRig(t, prog)

	br := r.coord.BridgeFor("wave", "v", routes.Audio)
	require.NotNil(t, br)

	require.NoError(t, r.frame.Render())
	require.NoError(t, r.audio.Render())

	want := math.Sin(0.5*10) * 0.5
	for _, s := range r.audio.Block() {
		assert.InDelta(t, want, s, 1e-9)
	}
}

func TestCrossContext_CPUValueHeldOnFrameRoute(t *testing.T) {
	// k is event-primary, consumed by display: the frame backend must
	// read it through the hold bridge, not evaluate it locally.
	prog := program(
		instance("k", []string{"v"}, num(3)),
		output("compute", access("k", "v")),
		output("display", access("k", "v")),
	)
	r := newRig(t, prog)

	br := r.coord.BridgeFor("k", "v", routes.GPU)
	require.NotNil(t, br)
	br.Write(9, 0) // stale event value, distinct from the expression's own

	require.NoError(t, r.frame.Render())
	red, _, _ := r.frame.Pixel(0, 0)
	assert.Equal(t, 9.0, red, "bridged value wins over local evaluation")
}

func TestCleanup_Backends(t *testing.T) {
	r := newRig(t, program(
		output("display", num(1)),
		output("play", num(1)),
		output("compute", num(1)),
	))

	require.NoError(t, r.frame.Cleanup())
	require.NoError(t, r.audio.Cleanup())
	require.NoError(t, r.cpu.Cleanup())

	w, h := r.frame.Size()
	assert.Zero(t, w)
	assert.Zero(t, h)
	assert.Empty(t, r.audio.Block())
	assert.NoError(t, r.frame.Render(), "render after cleanup is a no-op")
	assert.NoError(t, r.audio.Render())
}
