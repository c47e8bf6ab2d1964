package mote

import "fmt"

// SyscallClass is the system call number encoded in the trailing byte of
// the trap instruction at the call site.
type SyscallClass uint8

const (
	ClassYield     SyscallClass = 0
	ClassSubscribe SyscallClass = 1
	ClassCommand   SyscallClass = 2
	ClassAllow     SyscallClass = 3
	ClassMemop     SyscallClass = 4
)

// Syscall is one decoded system call. The five implementations are the
// entire user/kernel protocol.
type Syscall interface {
	Class() SyscallClass
	String() string
}

type Yield struct{}

type Subscribe struct {
	DriverNum    uint32
	SubdriverNum uint32
	CallbackPtr  uint32
	AppData      uint32
}

type Command struct {
	DriverNum    uint32
	SubdriverNum uint32
	Arg0         uint32
	Arg1         uint32
}

type Allow struct {
	DriverNum    uint32
	SubdriverNum uint32
	Address      uint32
	Size         uint32
}

type Memop struct {
	Operand uint32
	Arg0    uint32
}

func (Yield) Class() SyscallClass     { return ClassYield }
func (Subscribe) Class() SyscallClass { return ClassSubscribe }
func (Command) Class() SyscallClass   { return ClassCommand }
func (Allow) Class() SyscallClass     { return ClassAllow }
func (Memop) Class() SyscallClass     { return ClassMemop }

func (Yield) String() string { return "yield" }

func (s Subscribe) String() string {
	return fmt.Sprintf("subscribe(%#x, %d, @%#x, %#x)", s.DriverNum, s.SubdriverNum, s.CallbackPtr, s.AppData)
}

func (s Command) String() string {
	return fmt.Sprintf("cmd(%#x, %d, %#x, %#x)", s.DriverNum, s.SubdriverNum, s.Arg0, s.Arg1)
}

func (s Allow) String() string {
	return fmt.Sprintf("allow(%#x, %d, @%#x, %d)", s.DriverNum, s.SubdriverNum, s.Address, s.Size)
}

func (s Memop) String() string {
	return fmt.Sprintf("memop(%d, %#x)", s.Operand, s.Arg0)
}

// SyscallFromRegisters decodes the trap-instruction immediate and the four
// argument registers into a Syscall. Immediates outside the five defined
// classes decode to nothing; the caller must treat that as a process-level
// error, never a kernel one.
func SyscallFromRegisters(class uint8, r0, r1, r2, r3 uint32) (Syscall, bool) {
	switch SyscallClass(class) {
	case ClassYield:
		return Yield{}, true
	case ClassSubscribe:
		return Subscribe{DriverNum: r0, SubdriverNum: r1, CallbackPtr: r2, AppData: r3}, true
	case ClassCommand:
		return Command{DriverNum: r0, SubdriverNum: r1, Arg0: r2, Arg1: r3}, true
	case ClassAllow:
		return Allow{DriverNum: r0, SubdriverNum: r1, Address: r2, Size: r3}, true
	case ClassMemop:
		return Memop{Operand: r0, Arg0: r1}, true
	default:
		return nil, false
	}
}
