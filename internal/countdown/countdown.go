package countdown

import (
	"sync"
	"time"
)

// Countdown is a one-second-resolution phase timer. It ticks down from the
// configured number of seconds and fires onDone exactly once, whether it runs
// out or gets cancelled. Elapsed time is not persisted anywhere: after a
// restart the owning phase starts over from its full duration.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	onTick    func(remaining int)
	onDone    func()
	stop      chan struct{}
	running   bool
	done      bool
	interval  time.Duration
}

func New(seconds int, onTick func(remaining int), onDone func()) *Countdown {
	return &Countdown{
		remaining: seconds,
		onTick:    onTick,
		onDone:    onDone,
		stop:      make(chan struct{}),
		interval:  time.Second,
	}
}

// Start begins ticking. A second Start is a no-op.
func (c *Countdown) Start() {
	c.mu.Lock()
	if c.running || c.done {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	go c.run()
}

func (c *Countdown) run() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			if c.done {
				c.mu.Unlock()
				return
			}
			c.remaining--
			remaining := c.remaining
			tick := c.onTick
			c.mu.Unlock()

			if tick != nil {
				tick(remaining)
			}

			if remaining <= 0 {
				c.finish()
				return
			}
		case <-c.stop:
			return
		}
	}
}

// Cancel stops the timer and fires onDone, once. Safe to call more than once
// and safe against a tick racing it.
func (c *Countdown) Cancel() {
	c.finish()
}

func (c *Countdown) finish() {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	c.running = false
	close(c.stop)
	done := c.onDone
	c.mu.Unlock()

	if done != nil {
		done()
	}
}

// Remaining returns the seconds left on the clock.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return 0
	}
	return c.remaining
}

// Running reports whether the countdown is ticking.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && !c.done
}
