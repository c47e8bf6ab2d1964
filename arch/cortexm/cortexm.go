// Package cortexm implements the userspace/kernel boundary for an
// emulated Cortex-M-class core: a 32-bit Thumb CPU that pushes an
// 8-word exception frame on every trap. Only this package interprets
// the layout of the stored register block or the trap frame; the rest
// of the kernel goes through the boundary operations.
package cortexm

import (
	"encoding/binary"

	mote "github.com/wnxd/microdbg-mote"
)

// FrameSize is the hardware exception frame: r0-r3, r12, lr, pc, xpsr.
const FrameSize = 32

// Exception frame word offsets from the stack pointer at trap time.
const (
	frameR0   = 0
	frameR1   = 1
	frameR2   = 2
	frameR3   = 3
	frameR12  = 4
	frameLR   = 5
	framePC   = 6
	frameXPSR = 7
)

// psrThumb is the Thumb state bit. The stored status word always
// carries it so the process resumes in Thumb, unprivileged execution.
const psrThumb = 0x01000000

// svcOpcodeShift extracts the opcode byte of the 2-byte Thumb SVC
// instruction; the trailing byte is the syscall number.
const svcOpcodeShift = 8

// StoredState is the register snapshot kept for a process while it is
// not executing: the eight callee-saved registers r4-r11, the program
// counter to resume at after the next callback completes, and the
// status word.
type StoredState struct {
	Regs    [8]uint32
	YieldPC uint32
	PSR     uint32
}

// Trap describes one return of control from process to kernel as the
// core reports it. SyscallFired and Fault mirror the trap-handler
// latches; when neither is set the timeslice timer forced the return.
type Trap struct {
	NewSP        uint32
	SyscallFired bool
	Fault        bool
}

// Core executes process code. Run resumes at sp with the callee-saved
// registers in regs, consumes time from timer, and returns when the
// process traps. Implementations update regs in place.
type Core interface {
	Run(sp uint32, regs *[8]uint32, timer *SysTick) Trap
}

func readWord(mem mote.Memory, addr uint32) (uint32, error) {
	var b [4]byte
	if err := mem.ReadBytes(addr, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeWord(mem mote.Memory, addr uint32, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return mem.WriteBytes(addr, b[:])
}

func readHalf(mem mote.Memory, addr uint32) (uint16, error) {
	var b [2]byte
	if err := mem.ReadBytes(addr, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}
