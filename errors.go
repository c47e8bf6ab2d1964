package mote

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfMemory reports that a grant or break adjustment would make
	// the kernel-owned and process-owned halves of the memory region
	// collide.
	ErrOutOfMemory = errors.New("mote: out of memory")

	// ErrBusy reports an attempt to obtain a second live entry into a
	// grant or an allowed buffer.
	ErrBusy = errors.New("mote: already entered")

	// ErrNotAllocated reports access to a grant slot that has no storage.
	ErrNotAllocated = errors.New("mote: grant not allocated")

	// ErrInactive reports an operation on a faulted or terminated process.
	ErrInactive = errors.New("mote: process inactive")
)

// InsufficientStackError reports that a synthetic call frame did not fit
// between the stack pointer and the bottom of accessible memory. FramePtr
// is the address the frame would have occupied, kept for diagnostics; no
// memory was written.
type InsufficientStackError struct {
	FramePtr uint32
}

func (e *InsufficientStackError) Error() string {
	return fmt.Sprintf("mote: insufficient stack for call frame at %#x", e.FramePtr)
}
