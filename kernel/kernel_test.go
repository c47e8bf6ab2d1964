package kernel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mote "github.com/wnxd/microdbg-mote"
	"github.com/wnxd/microdbg-mote/arch/cortexm"
	"github.com/wnxd/microdbg-mote/sched"
)

type testBoard struct {
	k       *Kernel
	systick *cortexm.SysTick
	clock   *VirtualClock
}

func newTestBoard(opts ...Option) *testBoard {
	clock := NewVirtualClock()
	systick := cortexm.NewSysTick()
	opts = append(opts, WithClock(clock))
	return &testBoard{
		k:       New(sched.NewRoundRobin(10000), systick, opts...),
		systick: systick,
		clock:   clock,
	}
}

// addProc loads a scripted process onto the board. The region leaves
// half the memory above the break for grants.
func (b *testBoard) addProc(t *testing.T, steps ...cortexm.Step) (*Proc[cortexm.StoredState], *cortexm.RAM) {
	t.Helper()
	id := len(b.k.procs)
	ram := cortexm.NewRAM(0x20000000+uint32(id)*0x10000, 0x1000)
	core := cortexm.NewScriptCore(ram, steps...)
	setup := ProcSetup{
		Id:           mote.AppId(id),
		Name:         "app",
		Mem:          ram,
		InitialBreak: 0x800,
		FlashStart:   0x08000000,
		FlashEnd:     0x08040000,
		Init:         mote.FunctionCall{PC: 0x08000000},
		NumGrants:    b.k.NumGrants(),
	}
	p, err := NewProc[cortexm.StoredState](setup, cortexm.NewSysCall(ram, core, b.systick))
	require.NoError(t, err)
	b.k.AddProcess(p)
	return p, ram
}

type commandRecord struct {
	subdriver, arg0, arg1 uint32
	app                   mote.AppId
}

// stubDriver records every interaction and can schedule an upcall from
// inside a command, the way a synchronous capsule completion does.
type stubDriver struct {
	commands   []commandRecord
	commandRet mote.CommandReturn
	cb         *mote.Callback
	slice      *mote.AppSlice
	allocErr   error
	scheduleOn bool
}

func (d *stubDriver) Command(subdriver, arg0, arg1 uint32, app mote.AppId) mote.CommandReturn {
	d.commands = append(d.commands, commandRecord{subdriver, arg0, arg1, app})
	if d.scheduleOn {
		d.cb.Schedule(9, 8, 7)
	}
	return d.commandRet
}

func (d *stubDriver) Subscribe(subdriver uint32, cb *mote.Callback, app mote.AppId) mote.ReturnCode {
	d.cb = cb
	return mote.SUCCESS
}

func (d *stubDriver) AllowReadWrite(subdriver uint32, slice *mote.AppSlice, app mote.AppId) mote.ReturnCode {
	d.slice = slice
	return mote.SUCCESS
}

func (d *stubDriver) AllocateGrant(app mote.AppId) error { return d.allocErr }

// startProc delivers the queued init call so the process is Running at
// its first scripted step.
func startProc(t *testing.T, p *Proc[cortexm.StoredState]) {
	t.Helper()
	task, ok := p.DequeueTask()
	require.True(t, ok)
	require.NoError(t, p.SetProcessFunction(task.Call))
	require.Equal(t, mote.StateRunning, p.State())
}

func (b *testBoard) armTimer() {
	b.systick.Reset()
	b.systick.SetTimer(10000)
	b.systick.Enable(true)
}

func TestHandleSyscallCommand(t *testing.T) {
	b := newTestBoard()
	d := &stubDriver{commandRet: mote.CommandSuccessWithValue(0x55)}
	b.k.RegisterDriver(0x10, d)
	p, ram := b.addProc(t,
		cortexm.SyscallStep(100, mote.ClassCommand, 0x10, 1, 2, 3),
	)

	startProc(t, p)
	b.armTimer()
	reason, sys, ok := p.SwitchTo()
	require.Equal(t, mote.SwitchSyscallFired, reason)
	require.True(t, ok)
	b.k.handleSyscall(p, sys)

	require.Len(t, d.commands, 1)
	assert.Equal(t, commandRecord{1, 2, 3, p.AppId()}, d.commands[0])

	// The result landed in the process-visible result register slot.
	var word [4]byte
	require.NoError(t, ram.ReadBytes(p.sp, word[:]))
	assert.Equal(t, uint32(0x55), uint32(word[0])|uint32(word[1])<<8|uint32(word[2])<<16|uint32(word[3])<<24)
}

func TestHandleSyscallUnknownDriver(t *testing.T) {
	b := newTestBoard()
	p, ram := b.addProc(t,
		cortexm.SyscallStep(100, mote.ClassCommand, 0x99, 0, 0, 0),
	)

	startProc(t, p)
	b.armTimer()
	_, sys, ok := p.SwitchTo()
	require.True(t, ok)
	b.k.handleSyscall(p, sys)

	var word [4]byte
	require.NoError(t, ram.ReadBytes(p.sp, word[:]))
	got := uint32(word[0]) | uint32(word[1])<<8 | uint32(word[2])<<16 | uint32(word[3])<<24
	assert.Equal(t, mote.ENODEVICE.Encode(), got)
}

func TestRunProcessUndecodableSyscall(t *testing.T) {
	b := newTestBoard()
	p, _ := b.addProc(t,
		cortexm.SyscallStep(100, mote.SyscallClass(7), 0, 0, 0, 0),
	)

	reason, used := b.k.RunProcess(p, 10000)
	// The process got an error code and kept running to its idle yield;
	// the kernel neither faulted it nor panicked.
	assert.Equal(t, mote.StoppedBlocked, reason)
	assert.NotZero(t, used)
	assert.True(t, p.Active())
	assert.Equal(t, mote.StateYielded, p.State())
}

func TestSubscribeReplacesQueuedUpcalls(t *testing.T) {
	b := newTestBoard()
	d := &stubDriver{}
	b.k.RegisterDriver(0x10, d)
	p, _ := b.addProc(t)

	id := mote.CallbackId{DriverNum: 0x10, SubscribeNum: 0}
	other := mote.CallbackId{DriverNum: 0x20, SubscribeNum: 0}
	p.EnqueueTask(mote.Task{Id: id})
	p.EnqueueTask(mote.Task{Id: id})
	p.EnqueueTask(mote.Task{Id: other})
	before := p.PendingTasks()

	rc := b.k.subscribe(p, mote.Subscribe{DriverNum: 0x10, SubdriverNum: 0, CallbackPtr: 0x08000200})
	assert.Equal(t, mote.SUCCESS, rc)
	assert.Equal(t, before-2, p.PendingTasks(), "only the resubscribed slot's upcalls are dropped")
	assert.NotNil(t, d.cb)

	// Null pointer unsubscribes: the driver sees a nil callback.
	rc = b.k.subscribe(p, mote.Subscribe{DriverNum: 0x10, SubdriverNum: 0, CallbackPtr: 0})
	assert.Equal(t, mote.SUCCESS, rc)
	assert.Nil(t, d.cb)
}

func TestSubscribeGrantAllocationFailure(t *testing.T) {
	b := newTestBoard()
	d := &stubDriver{allocErr: mote.ErrOutOfMemory}
	b.k.RegisterDriver(0x10, d)
	p, _ := b.addProc(t)

	id := mote.CallbackId{DriverNum: 0x10, SubscribeNum: 0}
	p.EnqueueTask(mote.Task{Id: id})
	before := p.PendingTasks()

	rc := b.k.subscribe(p, mote.Subscribe{DriverNum: 0x10, CallbackPtr: 0x08000200})
	assert.Equal(t, mote.ENOMEM, rc)
	// The old subscription stands, queued upcalls included.
	assert.Equal(t, before, p.PendingTasks())
}

func TestAllowRoutesValidatedSlice(t *testing.T) {
	b := newTestBoard()
	d := &stubDriver{}
	b.k.RegisterDriver(0x10, d)
	p, ram := b.addProc(t)

	rc := b.k.allow(p, mote.Allow{DriverNum: 0x10, SubdriverNum: 1, Address: ram.Base() + 0x100, Size: 64})
	assert.Equal(t, mote.SUCCESS, rc)
	require.NotNil(t, d.slice)
	assert.Equal(t, ram.Base()+0x100, d.slice.Address())
	assert.Equal(t, 64, d.slice.Len())

	// Beyond the app break: rejected before the driver ever sees it.
	d.slice = nil
	rc = b.k.allow(p, mote.Allow{DriverNum: 0x10, SubdriverNum: 1, Address: ram.Base() + 0x7f0, Size: 64})
	assert.Equal(t, mote.EINVAL, rc)
	assert.Nil(t, d.slice)

	// Null address revokes with a nil slice.
	rc = b.k.allow(p, mote.Allow{DriverNum: 0x10, SubdriverNum: 1, Address: 0, Size: 0})
	assert.Equal(t, mote.SUCCESS, rc)
	assert.Nil(t, d.slice)
}

func TestRunLoopDeliversUpcall(t *testing.T) {
	b := newTestBoard(WithFaultResponse(mote.FaultStop))
	d := &stubDriver{commandRet: mote.CommandSuccess(), scheduleOn: true}
	b.k.RegisterDriver(0x10, d)
	p, _ := b.addProc(t,
		cortexm.SyscallStep(100, mote.ClassSubscribe, 0x10, 0, 0x08000200, 0xaa),
		cortexm.SyscallStep(100, mote.ClassCommand, 0x10, 1, 0, 0),
		cortexm.YieldStep(100),
		cortexm.SyscallStep(100, mote.ClassMemop, 1, 0, 0, 0),
		cortexm.FaultStep(100),
	)

	require.NoError(t, b.k.Run(context.Background()))

	// The script only reaches its final steps if the upcall scheduled
	// during the command woke it from the yield.
	assert.Equal(t, mote.StateFaulted, p.State())
	assert.Equal(t, 4, p.DebugSyscallCount())
	require.Len(t, d.commands, 1)
	assert.Zero(t, p.PendingTasks())
	assert.Positive(t, b.clock.Ticks(), "virtual time advances with executed slices")
}

func TestRunLoopTimesliceExpiry(t *testing.T) {
	b := newTestBoard()
	p, _ := b.addProc(t, cortexm.SpinStep())

	reason, used := b.k.RunProcess(p, 10000)
	assert.Equal(t, mote.StoppedTimesliceExpired, reason)
	assert.Equal(t, uint32(10000), used)
}

func TestRunProcessRefusesTinySlice(t *testing.T) {
	b := newTestBoard()
	p, _ := b.addProc(t, cortexm.SpinStep())

	reason, used := b.k.RunProcess(p, mote.MinTimeslice)
	assert.Equal(t, mote.StoppedTimesliceExpired, reason)
	assert.Zero(t, used)
}

func TestFaultPolicyRestart(t *testing.T) {
	b := newTestBoard(WithFaultResponse(mote.FaultRestart))
	p, _ := b.addProc(t, cortexm.FaultStep(100))
	startProc(t, p)
	b.armTimer()

	reason, _ := b.k.RunProcess(p, 10000)
	assert.Equal(t, mote.StoppedFaulted, reason)
	assert.Equal(t, mote.StateUnstarted, p.State())
	assert.Equal(t, 1, p.RestartCount())
	assert.Equal(t, 1, p.PendingTasks(), "the init call is queued again")
}

func TestFaultLeavesNeighborStateUntouched(t *testing.T) {
	b := newTestBoard(WithFaultResponse(mote.FaultStop))
	pa, _ := b.addProc(t, cortexm.FaultStep(100))
	pb, _ := b.addProc(t, cortexm.SyscallStep(100, mote.ClassYield))

	// Run the neighbor to its idle yield so its stored context holds a
	// real resume point, then snapshot it.
	reason, _ := b.k.RunProcess(pb, 10000)
	require.Equal(t, mote.StoppedBlocked, reason)
	require.Equal(t, mote.StateYielded, pb.State())
	before := pb.state

	reason, _ = b.k.RunProcess(pa, 10000)
	require.Equal(t, mote.StoppedFaulted, reason)
	require.Equal(t, mote.StateFaulted, pa.State())

	assert.Equal(t, before, pb.state)
	assert.Equal(t, mote.StateYielded, pb.State())
}

func TestFaultPolicyStop(t *testing.T) {
	b := newTestBoard(WithFaultResponse(mote.FaultStop))
	p, _ := b.addProc(t, cortexm.FaultStep(100))

	reason, _ := b.k.RunProcess(p, 10000)
	assert.Equal(t, mote.StoppedFaulted, reason)
	assert.Equal(t, mote.StateFaulted, p.State())
	assert.False(t, p.Ready())
	assert.Equal(t, 0, p.RestartCount())
}

func TestFaultPolicyPanic(t *testing.T) {
	b := newTestBoard(WithFaultResponse(mote.FaultPanic))
	p, _ := b.addProc(t, cortexm.FaultStep(100))

	assert.Panics(t, func() { b.k.RunProcess(p, 10000) })
}

type vetoFilter struct{ veto mote.ReturnCode }

func (f vetoFilter) Filter(mote.Process, mote.Syscall) mote.ReturnCode { return f.veto }

func TestSyscallFilterVeto(t *testing.T) {
	b := newTestBoard(WithSyscallFilter(vetoFilter{veto: mote.ENOSUPPORT}))
	d := &stubDriver{commandRet: mote.CommandSuccess()}
	b.k.RegisterDriver(0x10, d)
	p, _ := b.addProc(t,
		cortexm.SyscallStep(100, mote.ClassCommand, 0x10, 1, 0, 0),
		cortexm.YieldStep(100),
	)

	reason, _ := b.k.RunProcess(p, 10000)
	assert.Equal(t, mote.StoppedBlocked, reason)
	assert.Empty(t, d.commands, "the vetoed command never reaches the driver")
	// Yield is exempt from filtering: the process still parked.
	assert.Equal(t, mote.StateYielded, p.State())
}

type recordingHooks struct {
	syscalls int
	faults   int
	restarts int
	errors   int
}

func (h *recordingHooks) Syscall(mote.Process, mote.Syscall, uint32) { h.syscalls++ }
func (h *recordingHooks) ProcessFault(mote.Process)                  { h.faults++ }
func (h *recordingHooks) ProcessRestarted(mote.Process)              { h.restarts++ }
func (h *recordingHooks) KernelError(mote.Process, error)            { h.errors++ }

func TestHooksFire(t *testing.T) {
	h := &recordingHooks{}
	b := newTestBoard(WithFaultResponse(mote.FaultRestart), WithHooks(h))
	p, _ := b.addProc(t,
		cortexm.SyscallStep(100, mote.ClassMemop, 2, 0, 0, 0),
		cortexm.FaultStep(100),
	)

	b.k.RunProcess(p, 10000)
	assert.Equal(t, 1, h.syscalls)
	assert.Equal(t, 1, h.faults)
	assert.Equal(t, 1, h.restarts)
}

func TestRunStopsWhenNothingLives(t *testing.T) {
	b := newTestBoard(WithFaultResponse(mote.FaultStop))
	b.addProc(t, cortexm.FaultStep(100))
	b.addProc(t, cortexm.FaultStep(200))

	require.NoError(t, b.k.Run(context.Background()))
}

func TestRunHonorsContext(t *testing.T) {
	b := newTestBoard()
	b.addProc(t, cortexm.SpinStep())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.k.Run(ctx), context.Canceled)
}

func TestSleepAdvancesIdleBoard(t *testing.T) {
	woke := 0
	b := newTestBoard(WithFaultResponse(mote.FaultStop))
	b.k.SetSleep(func() bool {
		if woke > 0 {
			return false
		}
		woke++
		b.clock.Advance(1000)
		return true
	})
	p, _ := b.addProc(t, cortexm.YieldStep(100))

	require.NoError(t, b.k.Run(context.Background()))
	assert.Equal(t, 1, woke)
	assert.Equal(t, mote.StateYielded, p.State())
}
