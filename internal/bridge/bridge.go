// Package bridge reconciles values that cross substrate boundaries.
//
// The three route drivers are independent clocks with no shared tick: a
// GPU frame and an audio block computed "at the same moment" may reflect
// different moments of CPU-route state. A Bridge does not eliminate that
// skew — it resamples the producing route's values into the consuming
// route's time base, by zero-order hold or by linear rate conversion.
//
// The resampling policy for a cross-context expression is decided once,
// at compile time, from the pair of routes involved; it is never
// re-decided at runtime.
package bridge

import (
	"sync"

	"github.com/weftlang/weft/internal/routes"
)

// DataType describes the shape of the bridged value.
type DataType int

const (
	// Scalar is a single float per update.
	Scalar DataType = iota
	// Array is a fixed-width float vector per update.
	Array
	// Buffer is a backend-owned storage handle (textures, sample blocks).
	Buffer
)

// Interpolation is the resampling policy.
type Interpolation int

const (
	// Hold repeats the most recently written value, however stale.
	Hold Interpolation = iota
	// Linear resamples between buffered samples with rate conversion.
	Linear
)

// String returns the lowercase policy name.
func (i Interpolation) String() string {
	if i == Linear {
		return "linear"
	}
	return "hold"
}

// PolicyFor selects the interpolation policy for a route pair.
//
// An event-driven source (CPU) feeding a continuously-clocked target
// gets Hold: there is no meaningful "next" sample to interpolate toward.
// Two continuously-clocked routes at different native rates (GPU frame
// rate vs audio sample rate) get Linear.
func PolicyFor(source, target routes.Route) Interpolation {
	if source == routes.CPU || target == routes.CPU {
		return Hold
	}
	if source != target {
		return Linear
	}
	return Hold
}

// ringSize bounds the sample history. At a typical 60 Hz producer this
// covers several seconds, enough for any realistic frame↔block skew.
const ringSize = 256

type sample struct {
	value float64
	at    float64
}

// Bridge carries one cross-context value from its producing route's
// clock into a consuming route's clock. Created once per cross-context
// expression at compile time; lives for the duration of the compiled
// program.
//
// Write and Read are called from different route drivers and are safe
// to call concurrently. Neither ever blocks on the other: a reader with
// insufficient history holds the oldest/newest available sample rather
// than stalling.
type Bridge struct {
	source   routes.Route
	target   routes.Route
	dataType DataType
	interp   Interpolation

	mu         sync.Mutex
	ring       [ringSize]sample
	start      int
	count      int
	lastUpdate float64
}

// New constructs a bridge for the given route pair. The interpolation
// policy is fixed here, from the pair alone.
func New(source, target routes.Route, dataType DataType) *Bridge {
	return &Bridge{
		source:   source,
		target:   target,
		dataType: dataType,
		interp:   PolicyFor(source, target),
	}
}

// Source returns the producing route.
func (b *Bridge) Source() routes.Route { return b.source }

// Target returns the consuming route.
func (b *Bridge) Target() routes.Route { return b.target }

// Interpolation returns the fixed resampling policy.
func (b *Bridge) Interpolation() Interpolation { return b.interp }

// LastUpdate returns the timestamp of the most recent write.
func (b *Bridge) LastUpdate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastUpdate
}

// Write records a value produced on the source route at the given
// source-clock timestamp. Older samples fall off the ring.
func (b *Bridge) Write(value, timestamp float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := (b.start + b.count) % ringSize
	if b.count == ringSize {
		b.start = (b.start + 1) % ringSize
		idx = (b.start + b.count - 1) % ringSize
	} else {
		b.count++
	}
	b.ring[idx] = sample{value: value, at: timestamp}
	b.lastUpdate = timestamp
}

// ReadScalar returns the most recently written value, or 0 before the
// first write. GPU per-frame uniforms read this.
func (b *Bridge) ReadScalar() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return 0
	}
	return b.at(b.count - 1).value
}

// Read produces n samples in the target route's time base at the given
// target rate.
//
// Under Hold the most recent value is repeated n times regardless of
// staleness. Under Linear the buffered source samples are rate-converted:
// downsampled by striding when the source runs faster, upsampled by
// linear interpolation between adjacent samples when it runs slower.
func (b *Bridge) Read(n int, targetRate float64) []float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]float64, n)
	if b.count == 0 {
		return out
	}

	if b.interp == Hold || b.count == 1 || targetRate <= 0 {
		last := b.at(b.count - 1).value
		for i := range out {
			out[i] = last
		}
		return out
	}

	// Estimate the source rate from the buffered timestamps.
	span := b.at(b.count - 1).at - b.at(0).at
	if span <= 0 {
		last := b.at(b.count - 1).value
		for i := range out {
			out[i] = last
		}
		return out
	}
	sourceRate := float64(b.count-1) / span
	ratio := sourceRate / targetRate

	for i := range out {
		pos := float64(i) * ratio
		lo := int(pos)
		if lo >= b.count-1 {
			// Past the newest sample: hold it.
			out[i] = b.at(b.count - 1).value
			continue
		}
		if ratio > 1 {
			// Downsample by striding through the source.
			out[i] = b.at(lo).value
			continue
		}
		frac := pos - float64(lo)
		a, c := b.at(lo).value, b.at(lo+1).value
		out[i] = a + (c-a)*frac
	}
	return out
}

// at indexes the ring from oldest (0) to newest (count-1).
// Callers hold b.mu.
func (b *Bridge) at(i int) sample {
	return b.ring[(b.start+i)%ringSize]
}
