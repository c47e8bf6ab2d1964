package kernel

import mote "github.com/wnxd/microdbg-mote"

// VirtualClock is the board's tick counter. On an emulated board time
// is virtual: it advances with executed process ticks and jumps forward
// when the board sleeps to the next deadline.
type VirtualClock struct {
	ticks uint64
}

var _ mote.Clock = (*VirtualClock)(nil)

func NewVirtualClock() *VirtualClock { return &VirtualClock{} }

func (c *VirtualClock) Ticks() uint64 { return c.ticks }

func (c *VirtualClock) Advance(n uint64) { c.ticks += n }

// AdvanceTo moves the clock forward to t; it never moves backwards.
func (c *VirtualClock) AdvanceTo(t uint64) {
	if t > c.ticks {
		c.ticks = t
	}
}
