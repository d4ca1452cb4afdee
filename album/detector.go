package album

import "time"

// Watch is a pending quiescence check for one group. Each re-arm produces a
// new Watch with a higher generation; only the newest generation is live.
type Watch struct {
	gen     uint64
	timer   Timer
	armedAt time.Time
}

// Generation returns the watch generation; a nil watch has generation 0.
func (w *Watch) Generation() uint64 {
	if w == nil {
		return 0
	}
	return w.gen
}

// ArmedAt returns when the watch was armed.
func (w *Watch) ArmedAt() time.Time {
	if w == nil {
		return time.Time{}
	}
	return w.armedAt
}

// Stop cancels the pending timer. A timer that already fired may still
// deliver its signal; receivers must compare generations.
func (w *Watch) Stop() bool {
	if w == nil || w.timer == nil {
		return false
	}
	return w.timer.Stop()
}

// Detector implements a sliding debounce window: a group is quiet once no
// arrival has been observed for the whole window.
type Detector struct {
	window time.Duration
	clock  Clock
}

// NewDetector creates a detector. A nil clock means the system clock.
func NewDetector(window time.Duration, clock Clock) *Detector {
	if clock == nil {
		clock = SystemClock{}
	}
	if window < 0 {
		window = 0
	}
	return &Detector{window: window, clock: clock}
}

// Window returns the debounce window.
func (d *Detector) Window() time.Duration {
	return d.window
}

// Observe records an arrival. It stops prev, arms a fresh timer of one window
// and returns the new watch. fire receives the generation it was armed with
// and runs at most once, on the clock's goroutine.
func (d *Detector) Observe(prev *Watch, fire func(gen uint64)) *Watch {
	gen := prev.Generation() + 1
	prev.Stop()

	w := &Watch{gen: gen, armedAt: d.clock.Now()}
	w.timer = d.clock.AfterFunc(d.window, func() { fire(gen) })
	return w
}
