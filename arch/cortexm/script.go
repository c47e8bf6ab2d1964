package cortexm

import (
	"encoding/binary"

	mote "github.com/wnxd/microdbg-mote"
)

// StepKind selects what a scripted process does next.
type StepKind uint8

const (
	// StepSyscall traps with a system call.
	StepSyscall StepKind = iota
	// StepFault raises a hardware fault.
	StepFault
	// StepSpin burns CPU until the timeslice timer fires. The step is
	// not consumed, so a spinning process spins on every schedule.
	StepSpin
)

// Step is one scripted action of a synthetic process.
type Step struct {
	Kind StepKind
	// Class and Args form the syscall for StepSyscall.
	Class mote.SyscallClass
	Args  [4]uint32
	// Cost is the tick price of reaching this step's trap.
	Cost uint32
}

func SyscallStep(cost uint32, class mote.SyscallClass, args ...uint32) Step {
	s := Step{Kind: StepSyscall, Class: class, Cost: cost}
	copy(s.Args[:], args)
	return s
}

func YieldStep(cost uint32) Step {
	return Step{Kind: StepSyscall, Class: mote.ClassYield, Cost: cost}
}

func FaultStep(cost uint32) Step {
	return Step{Kind: StepFault, Cost: cost}
}

func SpinStep() Step {
	return Step{Kind: StepSpin}
}

// ScriptCore replays a fixed sequence of process actions against the
// boundary, trapping exactly the way the hardware would: on a syscall
// it stacks an 8-word frame whose PC sits right behind an SVC
// instruction carrying the class number. Boards use it for synthetic
// workloads; the mdbg bridge replaces it when real images run.
type ScriptCore struct {
	mem   mote.Memory
	steps []Step
	// loop replays the script from the start when it runs out instead
	// of falling back to an idle yield.
	loop    bool
	pos     int
	prepped bool
}

var _ Core = (*ScriptCore)(nil)

func NewScriptCore(mem mote.Memory, steps ...Step) *ScriptCore {
	return &ScriptCore{mem: mem, steps: steps}
}

// Looping makes the script restart from its first step when exhausted.
func (c *ScriptCore) Looping() *ScriptCore {
	c.loop = true
	return c
}

// svcAddr is where the scripted "text" lives: one 2-byte SVC
// instruction per class number at the bottom of the region. Numbers
// above the class range are kept too, so scripts can trap with
// immediates no kernel recognizes.
func (c *ScriptCore) svcAddr(class mote.SyscallClass) uint32 {
	return c.mem.Base() + 2*uint32(class)
}

func (c *ScriptCore) prep() {
	if c.prepped {
		return
	}
	c.prepped = true
	var b [2]byte
	for class := 0; class < 16; class++ {
		binary.LittleEndian.PutUint16(b[:], 0xdf00|uint16(class))
		c.mem.WriteBytes(c.svcAddr(mote.SyscallClass(class)), b[:])
	}
}

// next peeks at the upcoming step without consuming it; advance commits
// it once the step's trap actually happened.
func (c *ScriptCore) next() Step {
	if c.pos >= len(c.steps) {
		if c.loop && len(c.steps) > 0 {
			c.pos = 0
		} else {
			// An exhausted script waits for upcalls forever.
			return YieldStep(10)
		}
	}
	return c.steps[c.pos]
}

func (c *ScriptCore) advance() {
	if c.pos < len(c.steps) && c.steps[c.pos].Kind != StepSpin {
		c.pos++
	}
}

func (c *ScriptCore) Run(sp uint32, regs *[8]uint32, timer *SysTick) Trap {
	c.prep()
	step := c.next()

	if step.Kind == StepSpin {
		for !timer.Consume(1000) {
			if !timer.GreaterThan(0) {
				break
			}
		}
		return Trap{NewSP: sp}
	}

	if timer.Consume(step.Cost) {
		// The timer fired on the way to the trap; the step replays on
		// the next schedule.
		return Trap{NewSP: sp}
	}
	c.advance()

	if step.Kind == StepFault {
		return Trap{NewSP: sp, Fault: true}
	}

	// Stack the trap frame the way exception entry does. The frame
	// lands where the last kernel-visible stack pointer was, because
	// resuming the process unstacked the previous frame first.
	frame := sp
	for i, v := range step.Args {
		writeWord(c.mem, frame+uint32(i)*4, v)
	}
	writeWord(c.mem, frame+frameR12*4, 0)
	writeWord(c.mem, frame+frameLR*4, 0)
	writeWord(c.mem, frame+framePC*4, (c.svcAddr(step.Class)+2)|1)
	writeWord(c.mem, frame+frameXPSR*4, psrThumb)
	return Trap{NewSP: frame, SyscallFired: true}
}
