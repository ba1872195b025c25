// Package env holds the shared runtime environment: display resolution,
// program timing, and the musical clock. The coordinator owns one Env
// and feeds its counters to backends and the CPU evaluator.
package env

import "time"

// Env is the runtime environment. Field access is confined to the
// coordinator's loop goroutine; backends receive values, not the Env.
type Env struct {
	// Display.
	ResW int
	ResH int

	// Program timing.
	Frame        int64
	AbsFrame     int64
	TargetFPS    float64
	LoopDuration float64 // seconds; program time wraps at this

	// Audio.
	SampleRate float64
	Sample     int64
	AbsSample  int64

	// Musical clock.
	Tempo        float64
	TimesigNum   int
	TimesigDenom int

	startTime time.Time
	started   bool

	// now is swappable for tests.
	now func() time.Time
}

// New creates an Env with the conventional defaults: 60 fps, a 10 second
// loop, 48 kHz audio, 120 bpm in 4/4.
func New(width, height int) *Env {
	return &Env{
		ResW:         width,
		ResH:         height,
		TargetFPS:    60,
		LoopDuration: 10,
		SampleRate:   48000,
		Tempo:        120,
		TimesigNum:   4,
		TimesigDenom: 4,
		now:          time.Now,
	}
}

// Start captures the baseline timestamp. Counters derive from elapsed
// time since this moment.
func (e *Env) Start() {
	e.startTime = e.now()
	e.started = true
}

// AbsTime returns seconds since Start.
func (e *Env) AbsTime() float64 {
	if !e.started {
		return 0
	}
	return e.now().Sub(e.startTime).Seconds()
}

// Time returns the looped program time.
func (e *Env) Time() float64 {
	if e.LoopDuration <= 0 {
		return e.AbsTime()
	}
	t := e.AbsTime()
	return t - float64(int64(t/e.LoopDuration))*e.LoopDuration
}

// CurrentBeat returns the beat position within the loop.
func (e *Env) CurrentBeat() float64 {
	return e.Time() / 60 * e.Tempo
}

// CurrentMeasure returns the measure position within the loop.
func (e *Env) CurrentMeasure() float64 {
	if e.TimesigNum == 0 {
		return 0
	}
	return e.CurrentBeat() / float64(e.TimesigNum)
}

// BeatPhase returns the fractional part of the current beat.
func (e *Env) BeatPhase() float64 {
	b := e.CurrentBeat()
	return b - float64(int64(b))
}

// MeasurePhase returns the fractional part of the current measure.
func (e *Env) MeasurePhase() float64 {
	m := e.CurrentMeasure()
	return m - float64(int64(m))
}

// SyncCounters recomputes the frame and sample counters from elapsed
// time. The coordinator calls this once per accepted tick.
func (e *Env) SyncCounters() {
	abs := e.AbsTime()
	e.AbsFrame = int64(abs * e.TargetFPS)
	e.Frame = int64(e.Time() * e.TargetFPS)
	e.AbsSample = int64(abs * e.SampleRate)
	e.Sample = int64(e.Time() * e.SampleRate)
}

// SetNow replaces the time source. Test hook.
func (e *Env) SetNow(now func() time.Time) {
	e.now = now
}
