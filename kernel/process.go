package kernel

import (
	"fmt"
	"io"

	mote "github.com/wnxd/microdbg-mote"
	"github.com/wnxd/microdbg-mote/internal/ring"
)

// ProcSetup describes one process slot to load.
type ProcSetup struct {
	Id   mote.AppId
	Name string
	// Mem is the process's contiguous memory region.
	Mem mote.Memory
	// InitialBreak is the offset from the region base where the
	// process-accessible memory initially ends; the stack grows down
	// from there, the grant region grows down from the region top.
	InitialBreak uint32
	FlashStart   uint32
	FlashEnd     uint32
	// Init is the entry function call queued at load and on restart.
	Init mote.FunctionCall
	// TaskCap bounds the task queue; queued upcalls beyond it are
	// dropped and counted.
	TaskCap int
	// NumGrants is the number of grant slots, fixed at load.
	NumGrants int
}

// Proc is the process implementation, parameterized by the
// architecture's stored execution context. All register and stack frame
// work is delegated to the boundary.
type Proc[S any] struct {
	setup    ProcSetup
	boundary mote.UserspaceKernelBoundary[S]

	state     S
	sp        uint32
	procState mote.State
	// stoppedFrom remembers the pre-Stop state so Resume can restore it.
	stoppedFrom mote.State

	appBrk  uint32
	kernBrk uint32

	// Debug watermarks reported by the process itself through memop.
	stackStart uint32
	heapStart  uint32

	tasks  *ring.Ring[mote.Task]
	grants []grantCell

	restarts       int
	syscallCount   int
	droppedUpcalls int
}

var _ mote.Process = (*Proc[struct{}])(nil)

// NewProc loads a process slot. The slot starts Unstarted with the init
// call queued; it first runs when the scheduler selects it.
func NewProc[S any](setup ProcSetup, boundary mote.UserspaceKernelBoundary[S]) (*Proc[S], error) {
	if setup.TaskCap <= 0 {
		setup.TaskCap = 10
	}
	if setup.InitialBreak == 0 || setup.InitialBreak > setup.Mem.Size() {
		setup.InitialBreak = setup.Mem.Size()
	}
	p := &Proc[S]{
		setup:    setup,
		boundary: boundary,
		tasks:    ring.New[mote.Task](setup.TaskCap),
		grants:   make([]grantCell, setup.NumGrants),
	}
	if err := p.load(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Proc[S]) load() error {
	base := p.setup.Mem.Base()
	p.appBrk = base + p.setup.InitialBreak
	p.kernBrk = base + p.setup.Mem.Size()
	p.sp = p.appBrk
	p.stackStart = p.appBrk
	p.heapStart = base
	if err := p.boundary.InitializeProcess(base, p.appBrk, &p.state); err != nil {
		return err
	}
	p.tasks.Flush()
	for i := range p.grants {
		p.grants[i] = grantCell{}
	}
	p.procState = mote.StateUnstarted
	p.tasks.Push(mote.Task{Call: p.setup.Init})
	return nil
}

func (p *Proc[S]) AppId() mote.AppId { return p.setup.Id }
func (p *Proc[S]) Name() string      { return p.setup.Name }
func (p *Proc[S]) State() mote.State { return p.procState }

func (p *Proc[S]) Active() bool {
	return p.procState != mote.StateFaulted && p.procState != mote.StateTerminated
}

func (p *Proc[S]) Ready() bool {
	switch p.procState {
	case mote.StateRunning:
		return true
	case mote.StateUnstarted, mote.StateYielded:
		return p.tasks.Len() > 0
	default:
		return false
	}
}

func (p *Proc[S]) EnqueueTask(t mote.Task) bool {
	if !p.Active() {
		p.droppedUpcalls++
		return false
	}
	if !p.tasks.Push(t) {
		p.droppedUpcalls++
		return false
	}
	return true
}

func (p *Proc[S]) DequeueTask() (mote.Task, bool) { return p.tasks.Pop() }

func (p *Proc[S]) PendingTasks() int { return p.tasks.Len() }

func (p *Proc[S]) RemovePendingCallbacks(id mote.CallbackId) {
	p.droppedUpcalls += p.tasks.RemoveIf(func(t mote.Task) bool { return t.Id == id })
}

// SetYieldedState retires the trap frame of the yield syscall, keeping
// the resume point in the stored state so a later callback delivery can
// return to it.
func (p *Proc[S]) SetYieldedState() {
	if p.procState != mote.StateRunning {
		return
	}
	p.sp = p.boundary.PopSyscallStackFrame(p.sp, &p.state)
	p.procState = mote.StateYielded
}

func (p *Proc[S]) SetFaultState() {
	p.procState = mote.StateFaulted
}

func (p *Proc[S]) Stop() {
	switch p.procState {
	case mote.StateRunning, mote.StateUnstarted:
		p.stoppedFrom = p.procState
		p.procState = mote.StateStoppedRunning
	case mote.StateYielded:
		p.stoppedFrom = p.procState
		p.procState = mote.StateStoppedYielded
	}
}

func (p *Proc[S]) Resume() {
	switch p.procState {
	case mote.StateStoppedRunning, mote.StateStoppedYielded:
		p.procState = p.stoppedFrom
	}
}

func (p *Proc[S]) Terminate() {
	p.tasks.Flush()
	p.procState = mote.StateTerminated
}

func (p *Proc[S]) Restart() error {
	p.restarts++
	return p.load()
}

func (p *Proc[S]) RestartCount() int { return p.restarts }

func (p *Proc[S]) SwitchTo() (mote.ContextSwitchReason, mote.Syscall, bool) {
	p.sp = p.boundary.SwitchToProcess(p.sp, &p.state)
	reason := p.boundary.GetAndResetContextSwitchReason()
	if reason != mote.SwitchSyscallFired {
		return reason, nil, true
	}
	p.syscallCount++
	sys, ok := p.boundary.GetSyscall(p.sp)
	return reason, sys, ok
}

func (p *Proc[S]) SetSyscallReturnValue(value uint32) {
	if err := p.boundary.SetSyscallReturnValue(p.sp, value); err != nil {
		// The frame left accessible memory; the process cannot be
		// resumed safely.
		p.SetFaultState()
	}
}

func (p *Proc[S]) SetProcessFunction(call mote.FunctionCall) error {
	remaining := p.sp - p.setup.Mem.Base()
	newSP, err := p.boundary.PushFunctionCall(p.sp, remaining, call, &p.state)
	if err != nil {
		return err
	}
	p.sp = newSP
	if p.sp < p.stackStart {
		p.stackStart = p.sp
	}
	p.procState = mote.StateRunning
	return nil
}

func (p *Proc[S]) Brk(newBrk uint32) (uint32, mote.ReturnCode) {
	base := p.setup.Mem.Base()
	if newBrk < base || newBrk > p.kernBrk {
		return 0, mote.ENOMEM
	}
	p.appBrk = newBrk
	return p.appBrk, mote.SUCCESS
}

func (p *Proc[S]) Sbrk(incr int32) (uint32, mote.ReturnCode) {
	newBrk := uint32(int64(p.appBrk) + int64(incr))
	return p.Brk(newBrk)
}

func (p *Proc[S]) MemStart() uint32 { return p.setup.Mem.Base() }
func (p *Proc[S]) MemEnd() uint32   { return p.setup.Mem.Base() + p.setup.Mem.Size() }

func (p *Proc[S]) FlashStart() uint32 { return p.setup.FlashStart }
func (p *Proc[S]) FlashEnd() uint32   { return p.setup.FlashEnd }

func (p *Proc[S]) UpdateStackStart(addr uint32) { p.stackStart = addr }
func (p *Proc[S]) UpdateHeapStart(addr uint32)  { p.heapStart = addr }

func (p *Proc[S]) AllowBuffer(addr, size uint32) (*mote.AppSlice, mote.ReturnCode) {
	if addr == 0 {
		return nil, mote.SUCCESS
	}
	end := addr + size
	if end < addr || addr < p.setup.Mem.Base() || end > p.appBrk {
		return nil, mote.EINVAL
	}
	return mote.NewAppSlice(p.setup.Id, p.setup.Mem, addr, size), mote.SUCCESS
}

func (p *Proc[S]) DebugSyscallCount() int       { return p.syscallCount }
func (p *Proc[S]) DebugDroppedUpcallCount() int { return p.droppedUpcalls }

func (p *Proc[S]) Dump(w io.Writer) {
	fmt.Fprintf(w, "process %d (%s): %s, restarts=%d syscalls=%d dropped=%d\n",
		p.setup.Id, p.setup.Name, p.procState, p.restarts, p.syscallCount, p.droppedUpcalls)
	fmt.Fprintf(w, "  mem  [%#x, %#x) brk=%#x grant=%#x\n",
		p.MemStart(), p.MemEnd(), p.appBrk, p.kernBrk)
	fmt.Fprintf(w, "  sp=%#x stack_start=%#x heap_start=%#x\n", p.sp, p.stackStart, p.heapStart)
	fmt.Fprintf(w, "  ctx  %+v\n", p.state)
}
