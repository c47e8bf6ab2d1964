package cortexm

import mote "github.com/wnxd/microdbg-mote"

// SysTick is the timeslice timer of the emulated core. The kernel arms
// it through the mote.Systick interface; the core consumes ticks from
// it while process code runs.
type SysTick struct {
	remaining  uint32
	enabled    bool
	interrupt  bool
	overflowed bool
}

var _ mote.Systick = (*SysTick)(nil)

func NewSysTick() *SysTick { return &SysTick{} }

func (t *SysTick) Reset() {
	t.remaining = 0
	t.enabled = false
	t.interrupt = false
	t.overflowed = false
}

func (t *SysTick) SetTimer(ticks uint32) {
	t.remaining = ticks
	t.overflowed = false
}

func (t *SysTick) Enable(withInterrupt bool) {
	t.enabled = true
	t.interrupt = withInterrupt
}

func (t *SysTick) Overflowed() bool { return t.overflowed }

func (t *SysTick) GreaterThan(ticks uint32) bool { return t.remaining > ticks }

func (t *SysTick) Value() uint32 { return t.remaining }

// Consume burns n ticks of the running process's budget and reports
// whether the timer fired. Called by cores, not by the kernel.
func (t *SysTick) Consume(n uint32) bool {
	if !t.enabled {
		return false
	}
	if n >= t.remaining {
		t.remaining = 0
		t.overflowed = true
		return t.interrupt
	}
	t.remaining -= n
	return false
}
