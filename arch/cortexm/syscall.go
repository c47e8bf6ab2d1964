package cortexm

import (
	mote "github.com/wnxd/microdbg-mote"
)

// SysCall is the boundary implementation. It owns the trap-reason
// latches; they are written once per run by the core's trap path and
// read-and-reset exactly once by the kernel before the next switch.
type SysCall struct {
	mem   mote.Memory
	core  Core
	timer *SysTick

	syscallFired bool
	appFault     bool
}

var _ mote.UserspaceKernelBoundary[StoredState] = (*SysCall)(nil)

func NewSysCall(mem mote.Memory, core Core, timer *SysTick) *SysCall {
	return &SysCall{mem: mem, core: core, timer: timer}
}

// Timer returns the timeslice timer shared with the core.
func (s *SysCall) Timer() *SysTick { return s.timer }

func (s *SysCall) InitialFrameSize() uint32 { return FrameSize }

func (s *SysCall) InitializeProcess(memStart, appBrk uint32, state *StoredState) error {
	if appBrk < memStart || appBrk-memStart < FrameSize {
		return mote.ErrOutOfMemory
	}
	*state = StoredState{}
	state.PSR = psrThumb
	return nil
}

func (s *SysCall) SwitchToProcess(sp uint32, state *StoredState) uint32 {
	trap := s.core.Run(sp, &state.Regs, s.timer)
	// Latch why the trap happened. A stack pointer that left the process
	// region counts as a fault no matter what the core reports.
	s.syscallFired = trap.SyscallFired
	s.appFault = trap.Fault
	if !mote.Contains(s.mem, trap.NewSP, FrameSize) {
		s.appFault = true
	}
	return trap.NewSP
}

func (s *SysCall) GetAndResetContextSwitchReason() mote.ContextSwitchReason {
	fault := s.appFault
	fired := s.syscallFired
	s.appFault = false
	s.syscallFired = false
	// Fault wins if both latches are somehow set after one resume. Not
	// believed reachable from a real trap sequence; the ordering is kept
	// anyway.
	switch {
	case fault:
		return mote.SwitchFault
	case fired:
		return mote.SwitchSyscallFired
	default:
		return mote.SwitchTimesliceExpired
	}
}

func (s *SysCall) GetSyscall(sp uint32) (mote.Syscall, bool) {
	if !mote.Contains(s.mem, sp, FrameSize) {
		return nil, false
	}
	r0, err := readWord(s.mem, sp+frameR0*4)
	if err != nil {
		return nil, false
	}
	r1, err := readWord(s.mem, sp+frameR1*4)
	if err != nil {
		return nil, false
	}
	r2, err := readWord(s.mem, sp+frameR2*4)
	if err != nil {
		return nil, false
	}
	r3, err := readWord(s.mem, sp+frameR3*4)
	if err != nil {
		return nil, false
	}
	pc, err := readWord(s.mem, sp+framePC*4)
	if err != nil {
		return nil, false
	}
	// The syscall number is the trailing byte of the 2-byte SVC
	// instruction right behind the trapped PC.
	instr, err := readHalf(s.mem, (pc&^1)-2)
	if err != nil {
		return nil, false
	}
	return mote.SyscallFromRegisters(uint8(instr&0xff), r0, r1, r2, r3)
}

func (s *SysCall) SetSyscallReturnValue(sp uint32, value uint32) error {
	if !mote.Contains(s.mem, sp, FrameSize) {
		return mote.ErrOutOfMemory
	}
	// The result lands in the frame slot the process reads back as r0.
	return writeWord(s.mem, sp+frameR0*4, value)
}

func (s *SysCall) PopSyscallStackFrame(sp uint32, state *StoredState) uint32 {
	if pc, err := readWord(s.mem, sp+framePC*4); err == nil {
		state.YieldPC = pc
	}
	if psr, err := readWord(s.mem, sp+frameXPSR*4); err == nil {
		state.PSR = psr | psrThumb
	}
	return sp + FrameSize
}

func (s *SysCall) PushFunctionCall(sp, remaining uint32, call mote.FunctionCall, state *StoredState) (uint32, error) {
	if remaining < FrameSize {
		return sp, &mote.InsufficientStackError{FramePtr: sp - FrameSize}
	}
	newSP := sp - FrameSize
	if !mote.Contains(s.mem, newSP, FrameSize) {
		return sp, &mote.InsufficientStackError{FramePtr: newSP}
	}
	// Build the frame so the process runs pc(a0, a1, a2, a3) and, on
	// return, continues at the preserved yield PC. Instruction addresses
	// carry the Thumb bit.
	words := [8]uint32{
		frameR0:   call.Argument0,
		frameR1:   call.Argument1,
		frameR2:   call.Argument2,
		frameR3:   call.Argument3,
		frameR12:  0,
		frameLR:   state.YieldPC | 1,
		framePC:   call.PC | 1,
		frameXPSR: state.PSR | psrThumb,
	}
	for i, w := range words {
		if err := writeWord(s.mem, newSP+uint32(i)*4, w); err != nil {
			return sp, err
		}
	}
	return newSP, nil
}
