package kernel

import mote "github.com/wnxd/microdbg-mote"

// Hooks receives kernel events. The default implementation is silent;
// boards install one for syscall tracing or fault reporting.
type Hooks interface {
	// Syscall fires after a system call has been handled, with the raw
	// word written back to the process.
	Syscall(p mote.Process, sys mote.Syscall, ret uint32)
	// ProcessFault fires before the board's FaultResponse is applied.
	ProcessFault(p mote.Process)
	// ProcessRestarted fires after a fault-triggered restart.
	ProcessRestarted(p mote.Process)
	// KernelError reports a recoverable kernel-side error attributed to
	// a process, such as a failed callback frame push.
	KernelError(p mote.Process, err error)
}

type nopHooks struct{}

func (nopHooks) Syscall(mote.Process, mote.Syscall, uint32) {}
func (nopHooks) ProcessFault(mote.Process)                  {}
func (nopHooks) ProcessRestarted(mote.Process)              {}
func (nopHooks) KernelError(mote.Process, error)            {}

// SyscallFilter lets the board veto non-yield system calls per process.
// A non-SUCCESS code is returned to the process without dispatching,
// and without costing the process its timeslice.
type SyscallFilter interface {
	Filter(p mote.Process, sys mote.Syscall) mote.ReturnCode
}

// Poller is work the kernel drives once per loop iteration with the
// current virtual time, such as expiring alarms.
type Poller interface {
	Poll(now uint64)
}
