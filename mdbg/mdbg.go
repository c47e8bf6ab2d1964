// Package mdbg runs process images under a microdbg ARM emulator and
// adapts them to the boundary's core contract: SVC traps and machine
// faults become trap reports, and the kernel's trap frames are staged
// in and out of the emulated registers.
package mdbg

import (
	"unsafe"

	"github.com/wnxd/microdbg/emulator"

	mote "github.com/wnxd/microdbg-mote"
)

// Memory exposes a window of emulator guest memory as a process region.
type Memory struct {
	emu  emulator.Emulator
	base uint32
	size uint32
}

var _ mote.Memory = (*Memory)(nil)

func NewMemory(emu emulator.Emulator, base, size uint32) *Memory {
	return &Memory{emu: emu, base: base, size: size}
}

func (m *Memory) Base() uint32 { return m.base }

func (m *Memory) Size() uint32 { return m.size }

func (m *Memory) ReadBytes(addr uint32, b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if !mote.Contains(m, addr, uint32(len(b))) {
		return mote.ErrOutOfMemory
	}
	return m.emu.MemReadPtr(uint64(addr), uint64(len(b)), unsafe.Pointer(unsafe.SliceData(b)))
}

func (m *Memory) WriteBytes(addr uint32, b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if !mote.Contains(m, addr, uint32(len(b))) {
		return mote.ErrOutOfMemory
	}
	return m.emu.MemWritePtr(uint64(addr), uint64(len(b)), unsafe.Pointer(unsafe.SliceData(b)))
}
