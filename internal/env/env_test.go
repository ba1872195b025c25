package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fixedClock advances only when told to.
type fixedClock struct {
	at time.Time
}

func (f *fixedClock) now() time.Time          { return f.at }
func (f *fixedClock) advance(d time.Duration) { f.at = f.at.Add(d) }

func newFixedClock() *fixedClock      { return &fixedClock{at: time.Unix(1000, 0)} }
func withClock(e *Env, c *fixedClock) { e.SetNow(c.now) }

func TestNew_Defaults(t *testing.T) {
	e := New(800, 600)
	assert.Equal(t, 800, e.ResW)
	assert.Equal(t, 600, e.ResH)
	assert.Equal(t, 60.0, e.TargetFPS)
	assert.Equal(t, 48000.0, e.SampleRate)
	assert.Equal(t, 120.0, e.Tempo)
}

func TestAbsTime_ZeroBeforeStart(t *testing.T) {
	e := New(800, 600)
	assert.Equal(t, 0.0, e.AbsTime())
}

func TestTime_WrapsAtLoopDuration(t *testing.T) {
	e := New(800, 600)
	clock := newFixedClock()
	withClock(e, clock)
	e.Start()

	clock.advance(3 * time.Second)
	assert.InDelta(t, 3.0, e.Time(), 1e-9)

	clock.advance(9 * time.Second) // 12s total, 10s loop
	assert.InDelta(t, 2.0, e.Time(), 1e-9)
	assert.InDelta(t, 12.0, e.AbsTime(), 1e-9)
}

func TestSyncCounters(t *testing.T) {
	e := New(800, 600)
	clock := newFixedClock()
	withClock(e, clock)
	e.Start()

	clock.advance(2 * time.Second)
	e.SyncCounters()

	assert.Equal(t, int64(120), e.Frame)
	assert.Equal(t, int64(120), e.AbsFrame)
	assert.Equal(t, int64(96000), e.Sample)
	assert.Equal(t, int64(96000), e.AbsSample)

	// Past the loop boundary the looped counters wrap, the absolute
	// counters keep going.
	clock.advance(10 * time.Second)
	e.SyncCounters()
	assert.Equal(t, int64(120), e.Frame)
	assert.Equal(t, int64(720), e.AbsFrame)
}

func TestMusicalClock(t *testing.T) {
	e := New(800, 600)
	clock := newFixedClock()
	withClock(e, clock)
	e.Start()

	// 120 bpm: one beat every 0.5s. After 1.25s: beat 2.5, measure 0.625.
	clock.advance(1250 * time.Millisecond)
	assert.InDelta(t, 2.5, e.CurrentBeat(), 1e-9)
	assert.InDelta(t, 0.5, e.BeatPhase(), 1e-9)
	assert.InDelta(t, 0.625, e.CurrentMeasure(), 1e-9)
	assert.InDelta(t, 0.625, e.MeasurePhase(), 1e-9)
}
