package cortexm

import (
	"fmt"

	mote "github.com/wnxd/microdbg-mote"
)

// RAM is host-backed emulated memory for boards that run without an
// external emulator. Addresses are in the emulated address space.
type RAM struct {
	base uint32
	b    []byte
}

var _ mote.Memory = (*RAM)(nil)

func NewRAM(base, size uint32) *RAM {
	return &RAM{base: base, b: make([]byte, size)}
}

func (r *RAM) Base() uint32 { return r.base }
func (r *RAM) Size() uint32 { return uint32(len(r.b)) }

func (r *RAM) check(addr uint32, n int) error {
	off := int64(addr) - int64(r.base)
	if off < 0 || off+int64(n) > int64(len(r.b)) {
		return fmt.Errorf("cortexm: access [%#x, %#x) outside ram [%#x, %#x)",
			addr, addr+uint32(n), r.base, r.base+uint32(len(r.b)))
	}
	return nil
}

func (r *RAM) ReadBytes(addr uint32, b []byte) error {
	if err := r.check(addr, len(b)); err != nil {
		return err
	}
	copy(b, r.b[addr-r.base:])
	return nil
}

func (r *RAM) WriteBytes(addr uint32, b []byte) error {
	if err := r.check(addr, len(b)); err != nil {
		return err
	}
	copy(r.b[addr-r.base:], b)
	return nil
}

// Fill sets every byte to v. Useful for canary patterns in diagnostics.
func (r *RAM) Fill(v byte) {
	for i := range r.b {
		r.b[i] = v
	}
}

// Region narrows the RAM to a process's window [base, base+size). The
// window shares the backing store.
func (r *RAM) Region(base, size uint32) (*Region, error) {
	if err := r.check(base, int(size)); err != nil {
		return nil, err
	}
	return &Region{ram: r, base: base, size: size}, nil
}

// Region is one process's slice of board RAM.
type Region struct {
	ram  *RAM
	base uint32
	size uint32
}

var _ mote.Memory = (*Region)(nil)

func (r *Region) Base() uint32 { return r.base }
func (r *Region) Size() uint32 { return r.size }

func (r *Region) ReadBytes(addr uint32, b []byte) error {
	if !mote.Contains(r, addr, uint32(len(b))) {
		return fmt.Errorf("cortexm: access [%#x, %#x) outside region [%#x, %#x)",
			addr, addr+uint32(len(b)), r.base, r.base+r.size)
	}
	return r.ram.ReadBytes(addr, b)
}

func (r *Region) WriteBytes(addr uint32, b []byte) error {
	if !mote.Contains(r, addr, uint32(len(b))) {
		return fmt.Errorf("cortexm: access [%#x, %#x) outside region [%#x, %#x)",
			addr, addr+uint32(len(b)), r.base, r.base+r.size)
	}
	return r.ram.WriteBytes(addr, b)
}
