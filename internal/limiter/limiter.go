package limiter

import (
	"runtime"
	"sync/atomic"
	"time"
)

// DefaultPause is the per-item pause of the deletion walk
const DefaultPause = 5 * time.Millisecond

// Pacer spaces out the items of a deletion walk so that each event can be
// flushed to the consumer before the next one is produced.
type Pacer struct {
	pause atomic.Int64
	sleep func(time.Duration)
	calls atomic.Int64
}

// NewPacer creates a pacer that sleeps for pause after every item.
// A zero pause only yields the processor.
func NewPacer(pause time.Duration) *Pacer {
	p := &Pacer{sleep: time.Sleep}
	p.SetPause(pause)
	return p
}

// Pace is the flush point after an item attempt
func (p *Pacer) Pace() {
	p.calls.Add(1)
	if d := time.Duration(p.pause.Load()); d > 0 {
		p.sleep(d)
	}
	// Yield to other goroutines
	runtime.Gosched()
}

// SetPause updates the per-item pause; negative values are treated as zero
func (p *Pacer) SetPause(pause time.Duration) {
	if pause < 0 {
		pause = 0
	}
	p.pause.Store(int64(pause))
}

// Pause returns the current per-item pause
func (p *Pacer) Pause() time.Duration {
	return time.Duration(p.pause.Load())
}

// Calls returns how many times Pace has run
func (p *Pacer) Calls() int64 {
	return p.calls.Load()
}
