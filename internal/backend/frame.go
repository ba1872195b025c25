package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/weftlang/weft/internal/coordinator"
	"github.com/weftlang/weft/internal/eval"
	"github.com/weftlang/weft/internal/routes"
)

// Frame is the frame-clocked reference backend. Instead of emitting
// shader code it rasterizes the visual-route output statements to an
// in-memory RGB framebuffer with the CPU evaluator, pixel by pixel,
// normalized coordinates in [0,1). Cross-context inputs are read from
// their bridges; cross-context outputs whose primary route is the
// visual route are published into bridges after each rasterized frame.
type Frame struct {
	logger  *slog.Logger
	bridges Bridges

	mu       sync.Mutex
	compiled *coordinator.Compiled
	policy   routes.Policy
	passes   []rasterPass
	publish  [][2]string // instance, output pairs to push into bridges
	evalc    *eval.Compiler
	width    int
	height   int
	fb       []float64 // w*h*3, row-major RGB
}

// rasterPass is one display statement compiled to per-channel scalar
// functions.
type rasterPass struct {
	chans [3]eval.Fn
}

// FrameOption configures a Frame backend.
type FrameOption func(*Frame)

// WithFrameLogger sets the slog logger. Default: slog.Default.
func WithFrameLogger(l *slog.Logger) FrameOption {
	return func(b *Frame) { b.logger = l }
}

// WithFrameBridges wires the bridge source the backend reads
// cross-context inputs from and publishes cross-context outputs to.
func WithFrameBridges(br Bridges) FrameOption {
	return func(b *Frame) { b.bridges = br }
}

// WithFramePolicy overrides the primary-route policy used to decide
// which strands this backend owns. Must match the coordinator's.
func WithFramePolicy(p routes.Policy) FrameOption {
	return func(b *Frame) { b.policy = p }
}

// NewFrame creates the frame-clocked reference backend.
func NewFrame(opts ...FrameOption) *Frame {
	b := &Frame{
		logger:  slog.Default(),
		bridges: noBridges{},
		policy:  routes.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Frame) Context() routes.Route                { return routes.GPU }
func (b *Frame) Capabilities() coordinator.Capability { return 0 }

// Compile sizes the framebuffer from the environment and compiles the
// visual-route output statements into per-channel raster passes.
// A display statement's first three arguments become the red, green,
// and blue channels; a single argument paints all three.
func (b *Frame) Compile(_ context.Context, compiled *coordinator.Compiled) error {
	evalc := eval.NewCompiler(
		eval.WithResolver(&bridgeResolver{backend: b}),
		eval.WithBindings(compiled.Bindings),
		eval.WithSpindles(compiled.Graph.Spindles),
	)

	var passes []rasterPass
	for _, stmt := range outputStatements(compiled.Program, routes.GPU) {
		if len(stmt.Args) == 0 {
			return fmt.Errorf("frame backend: %s statement with no arguments", stmt.Kind)
		}
		var pass rasterPass
		for ch := 0; ch < 3; ch++ {
			arg := stmt.Args[0]
			if ch < len(stmt.Args) {
				arg = stmt.Args[ch]
			}
			fn, err := evalc.Compile(arg)
			if err != nil {
				return fmt.Errorf("frame backend: %s argument %d: %w", stmt.Kind, ch, err)
			}
			pass.chans[ch] = fn
		}
		passes = append(passes, pass)
	}

	w, h := compiled.Env.ResW, compiled.Env.ResH

	b.mu.Lock()
	b.compiled = compiled
	b.evalc = evalc
	b.passes = passes
	b.publish = crossContextOutputs(compiled, b.policy, routes.GPU)
	b.width, b.height = w, h
	b.fb = make([]float64, w*h*3)
	b.mu.Unlock()
	return nil
}

// Render rasterizes each pass over the framebuffer, later passes
// overwriting earlier ones, then publishes this route's cross-context
// strand values into their bridges.
func (b *Frame) Render() error {
	b.mu.Lock()
	compiled := b.compiled
	evalc := b.evalc
	passes := b.passes
	publish := b.publish
	w, h := b.width, b.height
	b.mu.Unlock()
	if compiled == nil || w == 0 || h == 0 {
		return nil
	}

	// Rasterize into a fresh buffer and swap it in whole, so Pixel
	// never observes a half-drawn frame.
	fb := make([]float64, w*h*3)

	at := eval.Coord{
		Time:  compiled.Env.Time(),
		Frame: int(compiled.Env.Frame),
	}
	for _, pass := range passes {
		for py := 0; py < h; py++ {
			at.Y = (float64(py) + 0.5) / float64(h)
			for px := 0; px < w; px++ {
				at.X = (float64(px) + 0.5) / float64(w)
				i := (py*w + px) * 3
				fb[i] = pass.chans[0](at)
				fb[i+1] = pass.chans[1](at)
				fb[i+2] = pass.chans[2](at)
			}
		}
	}

	b.mu.Lock()
	b.fb = fb
	b.mu.Unlock()

	// Producers write bridges; consumers on other routes resample on
	// their own clock.
	center := eval.Coord{X: 0.5, Y: 0.5, Time: at.Time, Frame: at.Frame}
	now := compiled.Env.AbsTime()
	for _, p := range publish {
		v, err := b.strandValue(p[0], p[1], center, evalc, compiled)
		if err != nil {
			continue
		}
		inst := compiled.Graph.Instance(p[0])
		for _, target := range inst.Contexts.Slice() {
			if target == routes.GPU {
				continue
			}
			if br := b.bridges.BridgeFor(p[0], p[1], target); br != nil {
				br.Write(v, now)
			}
		}
	}
	return nil
}

// Pixel returns the RGB triple at (x, y) from the last rasterized
// frame.
func (b *Frame) Pixel(x, y int) (r, g, bl float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return 0, 0, 0
	}
	i := (y*b.width + x) * 3
	return b.fb[i], b.fb[i+1], b.fb[i+2]
}

// Size returns the framebuffer dimensions.
func (b *Frame) Size() (w, h int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.width, b.height
}

func (b *Frame) Cleanup() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.compiled = nil
	b.evalc = nil
	b.passes = nil
	b.publish = nil
	b.fb = nil
	b.width, b.height = 0, 0
	return nil
}

// strandValue evaluates instance@output locally.
func (b *Frame) strandValue(instance, output string, at eval.Coord, evalc *eval.Compiler, compiled *coordinator.Compiled) (float64, error) {
	inst := compiled.Graph.Instance(instance)
	if inst == nil {
		return 0, fmt.Errorf("frame backend: unknown instance %q", instance)
	}
	expr, ok := inst.Outputs[output]
	if !ok {
		return 0, fmt.Errorf("frame backend: instance %q has no output %q", instance, output)
	}
	fn, err := evalc.Strand(instance, output, expr)
	if err != nil {
		return 0, err
	}
	return fn(at), nil
}

// bridgeResolver reads cross-context inputs from their bridges and
// evaluates same-route strands locally.
type bridgeResolver struct {
	backend *Frame
}

func (r *bridgeResolver) StrandValue(instance, output string, at eval.Coord) (float64, error) {
	b := r.backend
	if br := b.bridges.BridgeFor(instance, output, routes.GPU); br != nil {
		return br.ReadScalar(), nil
	}

	b.mu.Lock()
	compiled := b.compiled
	evalc := b.evalc
	b.mu.Unlock()
	if compiled == nil {
		return 0, fmt.Errorf("frame backend: not compiled")
	}
	return b.strandValue(instance, output, at, evalc, compiled)
}
