package mdbg

import (
	"encoding/binary"

	"github.com/wnxd/microdbg/debugger"
	"github.com/wnxd/microdbg/emulator"
	emu_arm "github.com/wnxd/microdbg/emulator/arm"

	"github.com/wnxd/microdbg-mote/arch/cortexm"
)

// cpsrT is the Thumb state bit of the emulated CPSR. The trap frame
// carries Thumb state in the EPSR position instead.
const cpsrT = 1 << 5

// trapCost is the tick price charged per trap. The emulator exposes no
// cycle counter, so timeslice expiry only takes effect at trap
// boundaries.
const trapCost = 500

// Machine executes one process image under a debugger task. The first
// Run starts the task at the staged frame's PC; every later Run resumes
// the task parked inside the interrupt hook. Machine is driven from the
// kernel loop goroutine only.
type Machine struct {
	dbg  debugger.Debugger
	task debugger.Task
	mem  *Memory
	hook debugger.HookHandler

	traps  chan cortexm.Trap
	resume chan struct{}

	started bool
	sp      uint32
	regs    *[8]uint32
	timer   *cortexm.SysTick
}

var _ cortexm.Core = (*Machine)(nil)

// NewMachine adopts a task the host already created for the loaded
// image. The task must not be running yet.
func NewMachine(dbg debugger.Debugger, task debugger.Task, mem *Memory) (*Machine, error) {
	m := &Machine{
		dbg:    dbg,
		task:   task,
		mem:    mem,
		traps:  make(chan cortexm.Trap),
		resume: make(chan struct{}),
	}
	hook, err := dbg.AddHook(emulator.HOOK_TYPE_INTR, m.handleIntr, nil, 1, 0)
	if err != nil {
		return nil, err
	}
	m.hook = hook
	return m, nil
}

func (m *Machine) Close() error {
	m.hook.Close()
	return m.task.Close()
}

func (m *Machine) Run(sp uint32, regs *[8]uint32, timer *cortexm.SysTick) cortexm.Trap {
	m.sp = sp
	m.regs = regs
	m.timer = timer
	if !m.started {
		if err := m.start(); err != nil {
			return cortexm.Trap{NewSP: sp, Fault: true}
		}
		m.started = true
	} else {
		select {
		case m.resume <- struct{}{}:
		case <-m.task.Done():
			// An exited task left no hook goroutine to receive the
			// resume. A restarted process must stage a fresh call.
			m.started = false
			return cortexm.Trap{NewSP: sp, Fault: true}
		}
	}
	select {
	case t := <-m.traps:
		return t
	case <-m.task.Done():
		// The image escaped the ABI: running off the end of a process
		// entry point is a fault, same as a bad fetch.
		m.started = false
		return cortexm.Trap{NewSP: m.sp, Fault: true}
	}
}

func (m *Machine) start() error {
	ctx := m.task.Context()
	var b [4]byte
	if err := m.mem.ReadBytes(m.sp+24, b[:]); err != nil {
		return err
	}
	pc := binary.LittleEndian.Uint32(b[:])
	if err := m.dbg.CallTaskOf(m.task, uint64(pc&^1)); err != nil {
		return err
	}
	if err := m.unstack(ctx); err != nil {
		return err
	}
	return m.task.Run()
}

func (m *Machine) handleIntr(ctx debugger.Context, intno uint64, data any) debugger.HookResult {
	if intno != emu_arm.ARM_INTR_EXCP_SWI {
		return m.park(ctx, cortexm.Trap{Fault: true})
	}
	return m.park(ctx, cortexm.Trap{SyscallFired: true})
}

// park reports the trap to the kernel side and blocks the emulation
// goroutine until the kernel resumes this process. A stopped or faulted
// process simply stays parked.
func (m *Machine) park(ctx debugger.Context, t cortexm.Trap) debugger.HookResult {
	sp, err := m.stack(ctx)
	if err != nil {
		t = cortexm.Trap{Fault: true}
		sp = m.sp
	}
	t.NewSP = sp
	m.timer.Consume(trapCost)
	m.traps <- t
	<-m.resume
	if err := m.unstack(ctx); err != nil {
		return debugger.HookResult_Next
	}
	return debugger.HookResult_Done
}

// stack performs exception entry: the caller-saved registers, return
// address and status word go onto the process stack, the callee-saved
// registers into the stored state. Returns the new stack pointer.
func (m *Machine) stack(ctx debugger.Context) (uint32, error) {
	live, err := ctx.RegReadBatch(
		emu_arm.ARM_REG_R0, emu_arm.ARM_REG_R1, emu_arm.ARM_REG_R2, emu_arm.ARM_REG_R3,
		emu_arm.ARM_REG_R12, emu_arm.ARM_REG_LR, emu_arm.ARM_REG_PC, emu_arm.ARM_REG_CPSR,
	)
	if err != nil {
		return 0, err
	}
	sp, err := ctx.RegRead(ctx.SP())
	if err != nil {
		return 0, err
	}
	pc := uint32(live[6])
	psr := uint32(0)
	if live[7]&cpsrT != 0 {
		pc |= 1
		psr = 0x01000000
	}
	frame := uint32(sp) - cortexm.FrameSize
	var buf [cortexm.FrameSize]byte
	for i := 0; i < 6; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(live[i]))
	}
	binary.LittleEndian.PutUint32(buf[24:], pc)
	binary.LittleEndian.PutUint32(buf[28:], psr)
	if err = m.mem.WriteBytes(frame, buf[:]); err != nil {
		return 0, err
	}
	saved, err := ctx.RegReadBatch(
		emu_arm.ARM_REG_R4, emu_arm.ARM_REG_R5, emu_arm.ARM_REG_R6, emu_arm.ARM_REG_R7,
		emu_arm.ARM_REG_R8, emu_arm.ARM_REG_R9, emu_arm.ARM_REG_R10, emu_arm.ARM_REG_R11,
	)
	if err != nil {
		return 0, err
	}
	for i, v := range saved {
		m.regs[i] = uint32(v)
	}
	return frame, nil
}

// unstack performs exception return at the kernel-chosen stack pointer:
// the frame there becomes the live registers, alongside the stored
// callee-saved registers.
func (m *Machine) unstack(ctx debugger.Context) error {
	var buf [cortexm.FrameSize]byte
	if err := m.mem.ReadBytes(m.sp, buf[:]); err != nil {
		return err
	}
	var w [8]uint32
	for i := range w {
		w[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	ctx.RegWrite(emu_arm.ARM_REG_R0, uint64(w[0]))
	ctx.RegWrite(emu_arm.ARM_REG_R1, uint64(w[1]))
	ctx.RegWrite(emu_arm.ARM_REG_R2, uint64(w[2]))
	ctx.RegWrite(emu_arm.ARM_REG_R3, uint64(w[3]))
	ctx.RegWrite(emu_arm.ARM_REG_R12, uint64(w[4]))
	ctx.RegWrite(emu_arm.ARM_REG_LR, uint64(w[5]))
	ctx.RegWrite(emu_arm.ARM_REG_R4, uint64(m.regs[0]))
	ctx.RegWrite(emu_arm.ARM_REG_R5, uint64(m.regs[1]))
	ctx.RegWrite(emu_arm.ARM_REG_R6, uint64(m.regs[2]))
	ctx.RegWrite(emu_arm.ARM_REG_R7, uint64(m.regs[3]))
	ctx.RegWrite(emu_arm.ARM_REG_R8, uint64(m.regs[4]))
	ctx.RegWrite(emu_arm.ARM_REG_R9, uint64(m.regs[5]))
	ctx.RegWrite(emu_arm.ARM_REG_R10, uint64(m.regs[6]))
	ctx.RegWrite(emu_arm.ARM_REG_R11, uint64(m.regs[7]))
	cpsr, err := ctx.RegRead(emu_arm.ARM_REG_CPSR)
	if err != nil {
		return err
	}
	if w[7]&0x01000000 != 0 || w[6]&1 != 0 {
		cpsr |= cpsrT
	} else {
		cpsr &^= cpsrT
	}
	if err = ctx.RegWrite(emu_arm.ARM_REG_CPSR, cpsr); err != nil {
		return err
	}
	if err = ctx.RegWrite(ctx.SP(), uint64(m.sp)+cortexm.FrameSize); err != nil {
		return err
	}
	return ctx.RegWrite(emu_arm.ARM_REG_PC, uint64(w[6]&^1))
}
