package main

import (
	"fmt"
	"io"

	mote "github.com/wnxd/microdbg-mote"
	"github.com/wnxd/microdbg-mote/arch/cortexm"
	"github.com/wnxd/microdbg-mote/capsules"
	"github.com/wnxd/microdbg-mote/kernel"
)

// Console subdriver numbers of the board ABI.
const (
	consoleWrite = 1
	consoleRead  = 2
)

// cbPtr stands in for an upcall entry point. The demo programs never
// execute the upcall body, so any flash address serves.
const cbPtr = 0x08000101

func demoProcesses() []kernel.ProcessConfig {
	return []kernel.ProcessConfig{
		{Name: "blink", Image: "blink", Memory: 0x8000},
		{Name: "hello", Image: "hello", Memory: 0x8000},
	}
}

// buildCore assembles the scripted program named by the process image.
func buildCore(pc kernel.ProcessConfig, ram *cortexm.RAM) (cortexm.Core, error) {
	switch pc.Image {
	case "hello", "":
		return helloCore(pc.Name, ram), nil
	case "blink":
		return blinkCore(pc.Name, ram), nil
	case "spin":
		return cortexm.NewScriptCore(ram, cortexm.SpinStep()), nil
	case "crash":
		return cortexm.NewScriptCore(ram, cortexm.FaultStep(500)), nil
	default:
		return nil, fmt.Errorf("unknown process image %q", pc.Image)
	}
}

// helloCore prints a greeting over the console and repeats on each
// write completion.
func helloCore(name string, ram *cortexm.RAM) cortexm.Core {
	msg := []byte(fmt.Sprintf("hello from %s\r\n", name))
	addr := ram.Base() + 0x40
	ram.WriteBytes(addr, msg)
	n := uint32(len(msg))
	return cortexm.NewScriptCore(ram,
		cortexm.SyscallStep(100, mote.ClassAllow, capsules.ConsoleDriverNum, consoleWrite, addr, n),
		cortexm.SyscallStep(100, mote.ClassSubscribe, capsules.ConsoleDriverNum, consoleWrite, cbPtr, 0),
		cortexm.SyscallStep(200, mote.ClassCommand, capsules.ConsoleDriverNum, consoleWrite, n, 0),
		cortexm.YieldStep(100),
	).Looping()
}

// blinkCore arms a periodic alarm and reports each tick over the
// console.
func blinkCore(name string, ram *cortexm.RAM) cortexm.Core {
	msg := []byte(fmt.Sprintf("%s: tick\r\n", name))
	addr := ram.Base() + 0x40
	ram.WriteBytes(addr, msg)
	n := uint32(len(msg))
	return cortexm.NewScriptCore(ram,
		cortexm.SyscallStep(100, mote.ClassAllow, capsules.ConsoleDriverNum, consoleWrite, addr, n),
		cortexm.SyscallStep(100, mote.ClassSubscribe, capsules.ConsoleDriverNum, consoleWrite, cbPtr, 0),
		cortexm.SyscallStep(100, mote.ClassSubscribe, capsules.AlarmDriverNum, 0, cbPtr, 0),
		cortexm.SyscallStep(100, mote.ClassCommand, capsules.AlarmDriverNum, 2, 5000, 0),
		cortexm.YieldStep(100),
		cortexm.SyscallStep(200, mote.ClassCommand, capsules.ConsoleDriverNum, consoleWrite, n, 0),
		cortexm.YieldStep(100),
	).Looping()
}

// consolePump moves host bytes onto the kernel goroutine: the reader
// feeds the channel, the kernel drains it between schedules.
type consolePump struct {
	console *capsules.Console
	ch      chan []byte
}

func newConsolePump(c *capsules.Console) *consolePump {
	return &consolePump{console: c, ch: make(chan []byte, 16)}
}

func (p *consolePump) Poll(uint64) {
	for {
		select {
		case b := <-p.ch:
			p.console.Input(b)
		default:
			return
		}
	}
}

func (p *consolePump) readFrom(r io.Reader) {
	for {
		buf := make([]byte, 64)
		n, err := r.Read(buf)
		if n > 0 {
			p.ch <- buf[:n]
		}
		if err != nil {
			return
		}
	}
}
