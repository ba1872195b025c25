package backend

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/weftlang/weft/internal/coordinator"
	"github.com/weftlang/weft/internal/eval"
	"github.com/weftlang/weft/internal/routes"
)

const defaultBlockSize = 256

// Audio is the sample-clocked reference backend. Each Render fills one
// block of samples by evaluating the audio-route output statements at
// successive sample times. Cross-context inputs are pulled through
// their bridges once per block, resampled to the audio rate, and
// indexed per sample; audio-primary cross-context outputs are published
// back into bridges after the block.
type Audio struct {
	logger    *slog.Logger
	bridges   Bridges
	policy    routes.Policy
	blockSize int

	mu       sync.Mutex
	compiled *coordinator.Compiled
	evalc    *eval.Compiler
	voices   []eval.Fn
	inputs   [][2]string // bridged (instance, output) pairs
	publish  [][2]string
	block    []float64

	// Per-block evaluation scratch; touched only from Render's
	// goroutine while a block is being filled.
	bridged map[string][]float64
	sample  int
}

// AudioOption configures an Audio backend.
type AudioOption func(*Audio)

// WithAudioLogger sets the slog logger. Default: slog.Default.
func WithAudioLogger(l *slog.Logger) AudioOption {
	return func(b *Audio) { b.logger = l }
}

// WithAudioBridges wires the bridge source for cross-context exchange.
func WithAudioBridges(br Bridges) AudioOption {
	return func(b *Audio) { b.bridges = br }
}

// WithAudioPolicy overrides the primary-route policy. Must match the
// coordinator's.
func WithAudioPolicy(p routes.Policy) AudioOption {
	return func(b *Audio) { b.policy = p }
}

// WithBlockSize sets the samples rendered per block. Default 256.
func WithBlockSize(n int) AudioOption {
	return func(b *Audio) { b.blockSize = n }
}

// NewAudio creates the sample-clocked reference backend.
func NewAudio(opts ...AudioOption) *Audio {
	b := &Audio{
		logger:    slog.Default(),
		bridges:   noBridges{},
		policy:    routes.DefaultPolicy(),
		blockSize: defaultBlockSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Audio) Context() routes.Route                { return routes.Audio }
func (b *Audio) Capabilities() coordinator.Capability { return 0 }

// Compile turns each play statement's first argument into a voice
// function and records which strands must be pulled through bridges:
// every audio-consumed cross-context strand whose primary route is
// elsewhere.
func (b *Audio) Compile(_ context.Context, compiled *coordinator.Compiled) error {
	evalc := eval.NewCompiler(
		eval.WithResolver(&sampleResolver{backend: b}),
		eval.WithBindings(compiled.Bindings),
		eval.WithSpindles(compiled.Graph.Spindles),
	)

	var voices []eval.Fn
	for _, stmt := range outputStatements(compiled.Program, routes.Audio) {
		if len(stmt.Args) == 0 {
			return fmt.Errorf("audio backend: %s statement with no arguments", stmt.Kind)
		}
		fn, err := evalc.Compile(stmt.Args[0])
		if err != nil {
			return fmt.Errorf("audio backend: %s argument: %w", stmt.Kind, err)
		}
		voices = append(voices, fn)
	}

	var inputs [][2]string
	for _, name := range compiled.Graph.ExecOrder {
		inst := compiled.Graph.Nodes[name]
		if !inst.Contexts.Has(routes.Audio) || inst.Contexts.Len() <= 1 {
			continue
		}
		if b.policy.Primary(inst.Contexts) == routes.Audio {
			continue
		}
		for outName := range inst.Outputs {
			if len(inst.RequiredOutputs) > 0 && !inst.RequiredOutputs[outName] {
				continue
			}
			inputs = append(inputs, [2]string{name, outName})
		}
	}

	b.mu.Lock()
	b.compiled = compiled
	b.evalc = evalc
	b.voices = voices
	b.inputs = inputs
	b.publish = crossContextOutputs(compiled, b.policy, routes.Audio)
	b.block = make([]float64, b.blockSize)
	b.mu.Unlock()
	return nil
}

// Render fills one sample block. Voices are summed; bridged inputs are
// resampled once per block on the audio clock and held fixed within
// each sample slot.
func (b *Audio) Render() error {
	b.mu.Lock()
	compiled := b.compiled
	voices := b.voices
	inputs := b.inputs
	publish := b.publish
	n := b.blockSize
	b.mu.Unlock()
	if compiled == nil {
		return nil
	}

	rate := compiled.Env.SampleRate
	bridged := make(map[string][]float64, len(inputs))
	for _, in := range inputs {
		if br := b.bridges.BridgeFor(in[0], in[1], routes.Audio); br != nil {
			bridged[in[0]+"@"+in[1]] = br.Read(n, rate)
		}
	}

	block := make([]float64, n)
	base := compiled.Env.Time()
	frame := int(compiled.Env.Frame)

	b.bridged = bridged
	for i := 0; i < n; i++ {
		b.sample = i
		at := eval.Coord{
			X:     0.5,
			Y:     0.5,
			Time:  base + float64(i)/rate,
			Frame: frame,
		}
		var sum float64
		for _, voice := range voices {
			sum += voice(at)
		}
		block[i] = sum
	}
	b.bridged = nil

	b.mu.Lock()
	b.block = block
	evalc := b.evalc
	b.mu.Unlock()

	center := eval.Coord{X: 0.5, Y: 0.5, Time: base, Frame: frame}
	now := compiled.Env.AbsTime()
	for _, p := range publish {
		v, err := b.strandValue(p[0], p[1], center, evalc, compiled)
		if err != nil {
			continue
		}
		inst := compiled.Graph.Instance(p[0])
		for _, target := range inst.Contexts.Slice() {
			if target == routes.Audio {
				continue
			}
			if br := b.bridges.BridgeFor(p[0], p[1], target); br != nil {
				br.Write(v, now)
			}
		}
	}
	return nil
}

// Block returns a copy of the most recently rendered sample block.
func (b *Audio) Block() []float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]float64, len(b.block))
	copy(out, b.block)
	return out
}

// RMS returns the root-mean-square level of the last block.
func (b *Audio) RMS() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.block) == 0 {
		return 0
	}
	var sum float64
	for _, s := range b.block {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(b.block)))
}

func (b *Audio) Cleanup() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.compiled = nil
	b.evalc = nil
	b.voices = nil
	b.inputs = nil
	b.publish = nil
	b.block = nil
	b.bridged = nil
	return nil
}

func (b *Audio) strandValue(instance, output string, at eval.Coord, evalc *eval.Compiler, compiled *coordinator.Compiled) (float64, error) {
	inst := compiled.Graph.Instance(instance)
	if inst == nil {
		return 0, fmt.Errorf("audio backend: unknown instance %q", instance)
	}
	expr, ok := inst.Outputs[output]
	if !ok {
		return 0, fmt.Errorf("audio backend: instance %q has no output %q", instance, output)
	}
	fn, err := evalc.Strand(instance, output, expr)
	if err != nil {
		return 0, err
	}
	return fn(at), nil
}

// sampleResolver serves bridged inputs from the current block's
// resampled slices and evaluates same-route strands locally.
type sampleResolver struct {
	backend *Audio
}

func (r *sampleResolver) StrandValue(instance, output string, at eval.Coord) (float64, error) {
	b := r.backend
	if samples, ok := b.bridged[instance+"@"+output]; ok {
		if b.sample < len(samples) {
			return samples[b.sample], nil
		}
		return 0, nil
	}

	b.mu.Lock()
	compiled := b.compiled
	evalc := b.evalc
	b.mu.Unlock()
	if compiled == nil {
		return 0, fmt.Errorf("audio backend: not compiled")
	}
	return b.strandValue(instance, output, at, evalc, compiled)
}
