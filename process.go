package mote

import (
	"fmt"
	"io"
)

// AppId identifies one loaded process by its slot index.
type AppId int

// State is the process lifecycle state.
type State uint8

const (
	// StateUnstarted: loaded but never scheduled.
	StateUnstarted State = iota
	// StateYielded: waiting for a callback to be delivered.
	StateYielded
	// StateRunning: executing, or runnable mid-syscall.
	StateRunning
	// StateFaulted: hit a fault the board policy did not recover.
	StateFaulted
	// StateTerminated: exited; the slot may be restarted.
	StateTerminated
	// StateStoppedRunning: stopped by the kernel while runnable.
	StateStoppedRunning
	// StateStoppedYielded: stopped by the kernel while yielded.
	StateStoppedYielded
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "Unstarted"
	case StateYielded:
		return "Yielded"
	case StateRunning:
		return "Running"
	case StateFaulted:
		return "Faulted"
	case StateTerminated:
		return "Terminated"
	case StateStoppedRunning:
		return "StoppedRunning"
	case StateStoppedYielded:
		return "StoppedYielded"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// FaultResponse is the board policy for a process fault. It is supplied
// by the board, never hardcoded in the kernel.
type FaultResponse uint8

const (
	// FaultPanic halts the whole system.
	FaultPanic FaultResponse = iota
	// FaultRestart terminates and restarts the faulting process.
	FaultRestart
	// FaultStop leaves the process stopped in the fault state.
	FaultStop
)

// CallbackId names one subscription: the driver that owns the upcall and
// which of its subscribe slots it belongs to.
type CallbackId struct {
	DriverNum    uint32
	SubscribeNum uint32
}

// Task is one queued callback delivery. Tasks are queued on the process
// and turned into function calls only when the process is next scheduled.
type Task struct {
	Id   CallbackId
	Call FunctionCall
}

// Process is one loaded application as seen by the kernel loop, the
// scheduler and capsules. Implementations own the stored execution
// context and the process memory region.
type Process interface {
	AppId() AppId
	Name() string
	State() State

	// Ready reports whether the process can make progress if scheduled:
	// it is mid-execution or has a queued task to deliver.
	Ready() bool
	// Active reports the process has neither faulted nor terminated.
	Active() bool

	EnqueueTask(t Task) bool
	DequeueTask() (Task, bool)
	PendingTasks() int
	RemovePendingCallbacks(id CallbackId)

	SetYieldedState()
	SetFaultState()
	Stop()
	Resume()
	Terminate()
	Restart() error
	RestartCount() int

	// SwitchTo transfers control to the process until it traps. When the
	// reason is SwitchSyscallFired, sys holds the decoded call; ok is
	// false if the trapped syscall number was unrecognized.
	SwitchTo() (reason ContextSwitchReason, sys Syscall, ok bool)
	SetSyscallReturnValue(value uint32)
	SetProcessFunction(call FunctionCall) error

	// Brk moves the process break, Sbrk moves it relative. Both fail
	// with ENOMEM when the break would cross into the grant region.
	Brk(newBrk uint32) (uint32, ReturnCode)
	Sbrk(incr int32) (uint32, ReturnCode)
	MemStart() uint32
	MemEnd() uint32
	FlashStart() uint32
	FlashEnd() uint32
	UpdateStackStart(addr uint32)
	UpdateHeapStart(addr uint32)

	// AllowBuffer validates that [addr, addr+size) lies inside the
	// process's accessible memory and wraps it for capsule use. A zero
	// addr revokes: it returns a nil slice with SUCCESS.
	AllowBuffer(addr, size uint32) (*AppSlice, ReturnCode)

	AllocGrant(num int, size uint32, create func() any) error
	GrantIsAllocated(num int) bool
	// EnterGrant is the only sanctioned access to grant contents. Nested
	// entry of the same grant fails with ErrBusy.
	EnterGrant(num int, fn func(state any) error) error

	DebugSyscallCount() int
	DebugDroppedUpcallCount() int
	Dump(w io.Writer)
}
