// Command moterun boots a synthetic board: the processes described in
// the board config run built-in demo programs over the full kernel
// stack, with the console on stdout or a tty device.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	tty "github.com/mattn/go-tty"

	mote "github.com/wnxd/microdbg-mote"
	"github.com/wnxd/microdbg-mote/arch/cortexm"
	"github.com/wnxd/microdbg-mote/capsules"
	"github.com/wnxd/microdbg-mote/kernel"
	"github.com/wnxd/microdbg-mote/sched"
	"github.com/wnxd/microdbg-mote/tracing"
)

const version = "0.1.0"

func main() {
	var (
		configPath = flag.String("config", "", "board description YAML; empty runs the demo board")
		trace      = flag.Bool("trace", false, "emit kernel event spans")
		traceOut   = flag.String("trace-out", "", "span output file; empty means stdout")
		ttyPath    = flag.String("tty", "", "device for console io, e.g. /dev/tty")
	)
	flag.Parse()

	cfg := kernel.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = kernel.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("moterun: %v", err)
		}
	}
	if len(cfg.Processes) == 0 {
		cfg.Processes = demoProcesses()
	}
	fault, err := cfg.FaultResponse()
	if err != nil {
		log.Fatalf("moterun: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []kernel.Option{kernel.WithFaultResponse(fault)}
	if *trace {
		if err := tracing.Init("moterun", version, *traceOut); err != nil {
			log.Fatalf("moterun: tracing: %v", err)
		}
		opts = append(opts, kernel.WithHooks(tracing.NewHooks(ctx)))
	}

	clock := kernel.NewVirtualClock()
	scheduler, err := buildScheduler(cfg.Scheduler, clock)
	if err != nil {
		log.Fatalf("moterun: %v", err)
	}
	systick := cortexm.NewSysTick()
	k := kernel.New(scheduler, systick, append(opts, kernel.WithClock(clock))...)

	out := io.Writer(os.Stdout)
	var term *tty.TTY
	if *ttyPath != "" {
		term, err = tty.OpenDevice(*ttyPath)
		if err != nil {
			log.Fatalf("moterun: %v", err)
		}
		defer term.Close()
		out = term.Output()
	}

	console := capsules.NewConsole(k, out)
	alarm := capsules.NewAlarm(k, clock)
	k.RegisterDriver(capsules.AlarmDriverNum, alarm)
	k.RegisterDriver(capsules.ConsoleDriverNum, console)
	k.AddPoller(alarm)
	k.SetSleep(func() bool {
		next, ok := alarm.NextDeadline()
		if !ok {
			return false
		}
		clock.AdvanceTo(next)
		return true
	})
	if term != nil {
		pump := newConsolePump(console)
		k.AddPoller(pump)
		go pump.readFrom(term.Input())
	}

	if err := loadProcesses(k, cfg, systick); err != nil {
		log.Fatalf("moterun: %v", err)
	}

	log.Printf("moterun: board %q up with %d processes", cfg.Board, len(cfg.Processes))
	if err := k.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("moterun: %v", err)
	}
	log.Printf("moterun: board halted at tick %d", clock.Ticks())
	k.Each(func(p mote.Process) {
		log.Printf("moterun: %s[%d] state=%v syscalls=%d dropped_upcalls=%d restarts=%d",
			p.Name(), p.AppId(), p.State(), p.DebugSyscallCount(), p.DebugDroppedUpcallCount(), p.RestartCount())
	})
}

func buildScheduler(sc kernel.SchedulerConfig, clock *kernel.VirtualClock) (mote.Scheduler, error) {
	switch sc.Type {
	case "mlfq", "":
		return sched.NewMLFQ(clock, sc.Quanta, sc.RefreshTicks), nil
	case "roundrobin":
		quantum := uint32(10000)
		if len(sc.Quanta) > 0 {
			quantum = sc.Quanta[0]
		}
		return sched.NewRoundRobin(quantum), nil
	default:
		return nil, fmt.Errorf("unknown scheduler type %q", sc.Type)
	}
}

func loadProcesses(k *kernel.Kernel, cfg kernel.Config, systick *cortexm.SysTick) error {
	numGrants := k.NumGrants()
	for i, pc := range cfg.Processes {
		base := uint32(0x20000000) + uint32(i)*0x100000
		ram := cortexm.NewRAM(base, pc.Memory)
		core, err := buildCore(pc, ram)
		if err != nil {
			return err
		}
		brk := pc.Break
		if brk == 0 {
			brk = pc.Memory - grantReserve(numGrants)
		}
		setup := kernel.ProcSetup{
			Id:           mote.AppId(i),
			Name:         pc.Name,
			Mem:          ram,
			InitialBreak: brk,
			FlashStart:   0x08000000,
			FlashEnd:     0x08040000,
			Init:         mote.FunctionCall{PC: 0x08000000},
			TaskCap:      cfg.TaskQueueDepth,
			NumGrants:    numGrants,
		}
		p, err := kernel.NewProc[cortexm.StoredState](setup, cortexm.NewSysCall(ram, core, systick))
		if err != nil {
			return err
		}
		k.AddProcess(p)
	}
	return nil
}

// grantReserve leaves room above the break for the capsules' grant
// allocations.
func grantReserve(numGrants int) uint32 {
	const perGrant = 64
	r := uint32(numGrants) * perGrant
	if r < 256 {
		r = 256
	}
	return r
}
