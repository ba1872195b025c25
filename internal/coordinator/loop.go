package coordinator

import (
	"time"

	"github.com/weftlang/weft/internal/bridge"
	"github.com/weftlang/weft/internal/eval"
	"github.com/weftlang/weft/internal/routes"
)

// Main loop state machine: Idle → Running → Idle.
//
// Start captures a baseline timestamp and schedules the loop on the
// host tick. Each scheduled tick measures elapsed time since the last
// ACCEPTED tick; if at least one target-frame interval passed, the
// frame counter advances by exactly one and Render runs. There is no
// partial or fractional frame advancement — the frame count is a
// monotonically increasing integer, never interpolated.

// Start transitions Idle → Running. Starting twice is a no-op: exactly
// one tick loop runs. A previous loop still winding down is joined
// before the new one launches.
func (c *Coordinator) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	prev := c.done
	c.mu.Unlock()
	if prev != nil {
		<-prev
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	stop, done := c.stop, c.done
	c.mu.Unlock()

	c.envr.Start()
	go c.run(stop, done)
}

// Stop transitions Running → Idle and joins the loop goroutine: when it
// returns, no tick is in flight and none will render. Stopping when not
// started is a no-op; concurrent Stops all block until the loop has
// exited. Stop must not be called from within a tick (a backend's
// Render) — that would wait on its own completion. A backend that wants
// to halt the loop hands Stop to a new goroutine.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.running {
		c.running = false
		close(c.stop)
	}
	done := c.done
	c.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Running reports the loop state.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Frame returns the accepted-frame counter.
func (c *Coordinator) Frame() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

func (c *Coordinator) run(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			// A closed stop and a ready ticker can both be selected at
			// once; re-check this generation's stop channel so a stopped
			// loop never renders again, even if a new loop has already
			// been started.
			select {
			case <-stop:
				return
			default:
			}

			c.mu.Lock()
			frameInterval := time.Duration(float64(time.Second) / c.envr.TargetFPS)
			c.mu.Unlock()

			if now.Sub(last) < frameInterval {
				continue // skip this tick, no fractional frames
			}
			last = now

			c.mu.Lock()
			c.frame++
			c.mu.Unlock()
			c.envr.SyncCounters()

			c.publishBridges()
			c.Render()
		}
	}
}

// publishBridges refreshes every CPU-primary bridge once per accepted
// tick: the coordinator owns the event-clocked route, so it is the one
// that pushes those values toward the continuously-clocked consumers.
// Bridges between two continuously-clocked routes are written by the
// producing backend during its own Render.
func (c *Coordinator) publishBridges() {
	c.mu.Lock()
	type pending struct {
		key bridgeKey
		b   *bridge.Bridge
	}
	var work []pending
	for key, b := range c.bridges {
		if b.Source() == routes.CPU {
			work = append(work, pending{key: key, b: b})
		}
	}
	c.mu.Unlock()

	if len(work) == 0 {
		return
	}

	at := eval.Coord{
		X:     0.5,
		Y:     0.5,
		Time:  c.envr.Time(),
		Frame: int(c.envr.Frame),
	}
	now := c.envr.AbsTime()
	for _, w := range work {
		v, err := c.GetValue(w.key.instance, w.key.output, at)
		if err != nil {
			continue
		}
		w.b.Write(v, now)
	}
}
