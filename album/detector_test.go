package album

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetector_FiresAfterWindow(t *testing.T) {
	clock := newManualClock()
	d := NewDetector(100*time.Millisecond, clock)

	var fired []uint64
	w := d.Observe(nil, func(gen uint64) { fired = append(fired, gen) })
	assert.Equal(t, uint64(1), w.Generation())
	assert.Equal(t, clock.Now(), w.ArmedAt())

	clock.Advance(99 * time.Millisecond)
	assert.Empty(t, fired)

	clock.Advance(1 * time.Millisecond)
	assert.Equal(t, []uint64{1}, fired)

	// 每个 watch 最多触发一次
	clock.Advance(time.Second)
	assert.Equal(t, []uint64{1}, fired)
}

func TestDetector_SlidingWindow(t *testing.T) {
	clock := newManualClock()
	d := NewDetector(100*time.Millisecond, clock)

	var fired []uint64
	fire := func(gen uint64) { fired = append(fired, gen) }

	w := d.Observe(nil, fire)
	for i := 0; i < 5; i++ {
		clock.Advance(80 * time.Millisecond)
		w = d.Observe(w, fire)
	}
	assert.Empty(t, fired, "re-arming inside the window must postpone the signal")
	assert.Equal(t, uint64(6), w.Generation())
	assert.Equal(t, 1, clock.Pending())

	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, []uint64{6}, fired)
}

func TestDetector_NilWatch(t *testing.T) {
	var w *Watch
	assert.Zero(t, w.Generation())
	assert.False(t, w.Stop())
	assert.True(t, w.ArmedAt().IsZero())
}

func TestDetector_Defaults(t *testing.T) {
	d := NewDetector(-time.Second, nil)
	assert.Zero(t, d.Window())
	_, ok := d.clock.(SystemClock)
	assert.True(t, ok)
}

func TestDetector_SystemClock(t *testing.T) {
	d := NewDetector(10*time.Millisecond, nil)
	ch := make(chan uint64, 1)
	d.Observe(nil, func(gen uint64) { ch <- gen })

	select {
	case gen := <-ch:
		require.Equal(t, uint64(1), gen)
	case <-time.After(2 * time.Second):
		t.Fatal("system clock timer did not fire")
	}
}
