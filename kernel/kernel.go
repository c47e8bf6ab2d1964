// Package kernel ties the boundary, processes, capsules and scheduler
// into the fixed control loop: pick a process, run it until it traps,
// interpret the trap, dispatch, repeat.
package kernel

import (
	"context"
	"os"

	mote "github.com/wnxd/microdbg-mote"
)

// minQuantaThreshold is the smallest remaining timeslice worth starting
// a process for; below it the slice is treated as spent.
const minQuantaThreshold = mote.MinTimeslice

// Kernel is the board's kernel instance.
type Kernel struct {
	procs   []mote.Process
	drivers map[uint32]mote.Driver

	sched   mote.Scheduler
	systick mote.Systick
	clock   *VirtualClock

	fault   mote.FaultResponse
	hooks   Hooks
	filter  SyscallFilter
	pollers []Poller
	sleep   func() bool

	grantCounter    int
	grantsFinalized bool
}

var _ mote.ProcessTable = (*Kernel)(nil)

// Option configures a Kernel.
type Option func(*Kernel)

func WithFaultResponse(fr mote.FaultResponse) Option {
	return func(k *Kernel) { k.fault = fr }
}

func WithHooks(h Hooks) Option {
	return func(k *Kernel) { k.hooks = h }
}

func WithSyscallFilter(f SyscallFilter) Option {
	return func(k *Kernel) { k.filter = f }
}

func WithPoller(p Poller) Option {
	return func(k *Kernel) { k.pollers = append(k.pollers, p) }
}

// WithSleep installs the board's idle behavior, called when every
// process is blocked. Returning true means time moved and the loop
// should try again; false stops the kernel.
func WithSleep(fn func() bool) Option {
	return func(k *Kernel) { k.sleep = fn }
}

// WithClock shares a clock between the kernel and a scheduler that was
// built before it.
func WithClock(c *VirtualClock) Option {
	return func(k *Kernel) { k.clock = c }
}

func New(sched mote.Scheduler, systick mote.Systick, opts ...Option) *Kernel {
	k := &Kernel{
		drivers: make(map[uint32]mote.Driver),
		sched:   sched,
		systick: systick,
		clock:   NewVirtualClock(),
		fault:   mote.FaultPanic,
		hooks:   nopHooks{},
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func (k *Kernel) Clock() *VirtualClock { return k.clock }

// RegisterDriver installs a capsule under its driver number.
func (k *Kernel) RegisterDriver(num uint32, d mote.Driver) {
	k.drivers[num] = d
}

// AddPoller registers loop work for a capsule built after the kernel.
func (k *Kernel) AddPoller(p Poller) {
	k.pollers = append(k.pollers, p)
}

// SetSleep replaces the idle behavior after construction.
func (k *Kernel) SetSleep(fn func() bool) {
	k.sleep = fn
}

// CreateGrant hands a capsule a typed grant slot. All grants must be
// created before the first process is loaded, because process memory
// accounting depends on the grant count.
func CreateGrant[T any](k *Kernel) *mote.Grant[T] {
	if k.grantsFinalized {
		panic("mote: grant created after processes were loaded")
	}
	num := k.grantCounter
	k.grantCounter++
	return mote.NewGrant[T](k, num)
}

// NumGrants returns the number of created grants and freezes it.
func (k *Kernel) NumGrants() int {
	k.grantsFinalized = true
	return k.grantCounter
}

// AddProcess registers a loaded process with the kernel and scheduler.
func (k *Kernel) AddProcess(p mote.Process) {
	k.grantsFinalized = true
	k.procs = append(k.procs, p)
	k.sched.AddProcess(p)
}

func (k *Kernel) Process(app mote.AppId) (mote.Process, bool) {
	if int(app) < 0 || int(app) >= len(k.procs) {
		return nil, false
	}
	return k.procs[int(app)], true
}

func (k *Kernel) Each(fn func(p mote.Process)) {
	for _, p := range k.procs {
		fn(p)
	}
}

func (k *Kernel) liveProcesses() bool {
	for _, p := range k.procs {
		if p.Active() && p.State() != mote.StateStoppedRunning && p.State() != mote.StateStoppedYielded {
			return true
		}
	}
	return false
}

// Run drives the kernel loop until ctx is cancelled or no process can
// ever run again.
func (k *Kernel) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, timeslice, ok := k.sched.Next()
		if !ok {
			if !k.liveProcesses() {
				return nil
			}
			if k.sleep != nil && k.sleep() {
				k.poll()
				continue
			}
			return nil
		}
		reason, used := k.RunProcess(p, timeslice)
		k.clock.Advance(uint64(used))
		k.sched.Result(reason, used)
		k.poll()
	}
}

func (k *Kernel) poll() {
	now := k.clock.Ticks()
	for _, pl := range k.pollers {
		pl.Poll(now)
	}
}

// RunProcess executes one process for at most timeslice ticks and
// reports how it stopped and how much of the slice it used.
func (k *Kernel) RunProcess(p mote.Process, timeslice uint32) (mote.StoppedExecutingReason, uint32) {
	st := k.systick
	st.Reset()
	st.SetTimer(timeslice)
	st.Enable(false)
	used := func() uint32 { return timeslice - st.Value() }

	for {
		if st.Overflowed() || !st.GreaterThan(minQuantaThreshold) {
			return mote.StoppedTimesliceExpired, used()
		}

		switch p.State() {
		case mote.StateRunning:
			st.Enable(true)
			reason, sys, decoded := p.SwitchTo()
			st.Enable(false)

			switch reason {
			case mote.SwitchFault:
				k.handleFault(p)
				return mote.StoppedFaulted, used()
			case mote.SwitchTimesliceExpired:
				// Loop back; the systick check reports it.
			case mote.SwitchSyscallFired:
				if !decoded {
					// A syscall number this kernel does not know. The
					// process gets an error code, never the kernel a
					// panic.
					p.SetSyscallReturnValue(mote.ENOSUPPORT.Encode())
					continue
				}
				k.handleSyscall(p, sys)
			}

		case mote.StateYielded, mote.StateUnstarted:
			task, ok := p.DequeueTask()
			if !ok {
				return mote.StoppedBlocked, used()
			}
			if err := p.SetProcessFunction(task.Call); err != nil {
				k.hooks.KernelError(p, err)
				k.handleFault(p)
				return mote.StoppedFaulted, used()
			}

		case mote.StateFaulted:
			// The scheduler only hands out ready processes; reaching a
			// faulted one here means the isolation bookkeeping broke.
			panic("mote: scheduled a faulted process")

		case mote.StateTerminated:
			return mote.StoppedTerminated, used()

		case mote.StateStoppedRunning, mote.StateStoppedYielded:
			return mote.StoppedBlocked, used()
		}
	}
}

func (k *Kernel) handleSyscall(p mote.Process, sys mote.Syscall) {
	if _, isYield := sys.(mote.Yield); !isYield && k.filter != nil {
		if rc := k.filter.Filter(p, sys); rc != mote.SUCCESS {
			p.SetSyscallReturnValue(rc.Encode())
			k.hooks.Syscall(p, sys, rc.Encode())
			return
		}
	}

	var ret uint32
	switch s := sys.(type) {
	case mote.Yield:
		p.SetYieldedState()
		k.hooks.Syscall(p, sys, 0)
		return

	case mote.Subscribe:
		ret = k.subscribe(p, s).Encode()

	case mote.Command:
		d, ok := k.drivers[s.DriverNum]
		if !ok {
			ret = mote.ENODEVICE.Encode()
		} else {
			ret = d.Command(s.SubdriverNum, s.Arg0, s.Arg1, p.AppId()).Encode()
		}

	case mote.Allow:
		ret = k.allow(p, s).Encode()

	case mote.Memop:
		ret = memop(p, s.Operand, s.Arg0)
	}

	p.SetSyscallReturnValue(ret)
	k.hooks.Syscall(p, sys, ret)
}

func (k *Kernel) subscribe(p mote.Process, s mote.Subscribe) mote.ReturnCode {
	d, ok := k.drivers[s.DriverNum]
	if !ok {
		return mote.ENODEVICE
	}
	id := mote.CallbackId{DriverNum: s.DriverNum, SubscribeNum: s.SubdriverNum}
	var cb *mote.Callback
	if s.CallbackPtr != 0 {
		cb = mote.NewCallback(p, id, s.CallbackPtr, s.AppData)
	}
	if err := d.AllocateGrant(p.AppId()); err != nil {
		return mote.ENOMEM
	}
	rc := d.Subscribe(s.SubdriverNum, cb, p.AppId())
	if rc == mote.SUCCESS {
		// A new subscription invalidates anything queued for the old
		// one; a failed one leaves the old subscription intact.
		p.RemovePendingCallbacks(id)
	}
	return rc
}

func (k *Kernel) allow(p mote.Process, s mote.Allow) mote.ReturnCode {
	d, ok := k.drivers[s.DriverNum]
	if !ok {
		return mote.ENODEVICE
	}
	slice, rc := p.AllowBuffer(s.Address, s.Size)
	if rc != mote.SUCCESS {
		return rc
	}
	return d.AllowReadWrite(s.SubdriverNum, slice, p.AppId())
}

func (k *Kernel) handleFault(p mote.Process) {
	p.SetFaultState()
	k.hooks.ProcessFault(p)
	switch k.fault {
	case mote.FaultPanic:
		p.Dump(os.Stderr)
		panic("mote: process fault with FaultPanic policy")
	case mote.FaultRestart:
		if err := p.Restart(); err != nil {
			k.hooks.KernelError(p, err)
			p.SetFaultState()
			return
		}
		k.hooks.ProcessRestarted(p)
	case mote.FaultStop:
		// Leave it faulted; the scheduler will never pick it again.
	}
}
