package mote

import "fmt"

// ContextSwitchReason tells the kernel why control came back from a
// process.
type ContextSwitchReason uint8

const (
	// SwitchFault: the process hit a hardware fault.
	SwitchFault ContextSwitchReason = iota
	// SwitchSyscallFired: the process executed a trap instruction.
	SwitchSyscallFired
	// SwitchTimesliceExpired: the timeslice timer forced control back.
	SwitchTimesliceExpired
)

func (r ContextSwitchReason) String() string {
	switch r {
	case SwitchFault:
		return "Fault"
	case SwitchSyscallFired:
		return "SyscallFired"
	case SwitchTimesliceExpired:
		return "TimesliceExpired"
	default:
		return fmt.Sprintf("ContextSwitchReason(%d)", uint8(r))
	}
}

// FunctionCall describes a callback invocation to deliver to a process:
// on next resume the process executes PC(Argument0..Argument3) and, when
// that function returns, continues where it last yielded.
type FunctionCall struct {
	PC        uint32
	Argument0 uint32
	Argument1 uint32
	Argument2 uint32
	Argument3 uint32
}

// UserspaceKernelBoundary is the sole gateway between kernel and process
// code. S is the architecture's stored execution context; only the
// architecture package may interpret its layout, everything else goes
// through these operations.
type UserspaceKernelBoundary[S any] interface {
	// InitialFrameSize returns the architecture's hardware trap frame
	// size, the minimum stack headroom every operation below requires.
	InitialFrameSize() uint32

	// InitializeProcess resets state to architecture defaults for a
	// process whose accessible memory is [memStart, appBrk). It fails
	// when the region cannot hold even the initial trap frame.
	InitializeProcess(memStart, appBrk uint32, state *S) error

	// SwitchToProcess resumes the process at sp with the registers in
	// state and returns once it traps back into the kernel, with the
	// process's stack pointer at trap time. state is updated in place.
	// This is the kernel's only suspension point.
	SwitchToProcess(sp uint32, state *S) uint32

	// GetAndResetContextSwitchReason reads and clears the trap-reason
	// latches set while the process ran. A latched fault wins over a
	// latched syscall.
	GetAndResetContextSwitchReason() ContextSwitchReason

	// GetSyscall decodes the trapped system call from the frame at sp.
	// It returns false for an unrecognized syscall number.
	GetSyscall(sp uint32) (Syscall, bool)

	// SetSyscallReturnValue stores value where the process will read its
	// syscall result on resume.
	SetSyscallReturnValue(sp uint32, value uint32) error

	// PopSyscallStackFrame retires the trap frame at sp after a yield,
	// preserving the resume PC and status word into state.
	PopSyscallStackFrame(sp uint32, state *S) uint32

	// PushFunctionCall builds a synthetic call frame for call below sp.
	// remaining is the stack space left above the bottom of accessible
	// memory; with less than InitialFrameSize available it fails with an
	// *InsufficientStackError and writes nothing.
	PushFunctionCall(sp, remaining uint32, call FunctionCall, state *S) (uint32, error)
}
