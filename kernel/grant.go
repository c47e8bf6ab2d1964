package kernel

import (
	mote "github.com/wnxd/microdbg-mote"
)

// grantCell is one per-capsule storage slot in a process. The capsule's
// state object lives on the kernel heap; the reserved bytes are carved
// from the process's grant region so the process pays for its own
// kernel-side footprint.
type grantCell struct {
	allocated bool
	entered   bool
	size      uint32
	data      any
}

const grantAlign = 4

func (p *Proc[S]) AllocGrant(num int, size uint32, create func() any) error {
	if num < 0 || num >= len(p.grants) {
		return mote.ErrNotAllocated
	}
	cell := &p.grants[num]
	if cell.allocated {
		return nil
	}
	reserve := (size + grantAlign - 1) &^ (grantAlign - 1)
	if reserve == 0 {
		reserve = grantAlign
	}
	newBrk := p.kernBrk - reserve
	if newBrk > p.kernBrk || newBrk < p.appBrk {
		return mote.ErrOutOfMemory
	}
	p.kernBrk = newBrk
	cell.allocated = true
	cell.size = reserve
	cell.data = create()
	return nil
}

func (p *Proc[S]) GrantIsAllocated(num int) bool {
	return num >= 0 && num < len(p.grants) && p.grants[num].allocated
}

// EnterGrant runs fn with sole access to the grant's contents. The
// entered flag is set for the closure's whole duration and cleared on
// every exit path, so a second entry, however it is reached, observes
// ErrBusy instead of a second live reference.
func (p *Proc[S]) EnterGrant(num int, fn func(state any) error) error {
	if num < 0 || num >= len(p.grants) || !p.grants[num].allocated {
		return mote.ErrNotAllocated
	}
	cell := &p.grants[num]
	if cell.entered {
		return mote.ErrBusy
	}
	cell.entered = true
	defer func() { cell.entered = false }()
	return fn(cell.data)
}
