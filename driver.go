package mote

import "unsafe"

// Driver is the capsule contract. The kernel routes subscribe, command
// and allow system calls to the driver registered under the matching
// driver number.
type Driver interface {
	// Command performs a driver-specific action immediately and returns
	// its result.
	Command(subdriver, arg0, arg1 uint32, app AppId) CommandReturn

	// Subscribe installs cb as the upcall for one of the driver's
	// subscribe slots. A nil cb unsubscribes.
	Subscribe(subdriver uint32, cb *Callback, app AppId) ReturnCode

	// AllowReadWrite gives the driver shared access to process memory.
	// A nil slice revokes a previous allow.
	AllowReadWrite(subdriver uint32, slice *AppSlice, app AppId) ReturnCode

	// AllocateGrant gives the driver a chance to set up its per-process
	// grant storage before the kernel dispatches to it. Drivers without
	// grants return nil.
	AllocateGrant(app AppId) error
}

// Callback is a capsule's handle on a process-registered upcall. A nil
// Callback, or one registered with a null function pointer, schedules
// nothing.
type Callback struct {
	proc    Process
	id      CallbackId
	fn      uint32
	appdata uint32
}

func NewCallback(p Process, id CallbackId, fn, appdata uint32) *Callback {
	return &Callback{proc: p, id: id, fn: fn, appdata: appdata}
}

func (c *Callback) App() AppId {
	if c == nil {
		return -1
	}
	return c.proc.AppId()
}

// Schedule queues the upcall with three arguments; the fourth argument
// delivered to the process is the appdata word it registered. It reports
// whether the task was queued.
func (c *Callback) Schedule(a0, a1, a2 uint32) bool {
	if c == nil || c.fn == 0 {
		return false
	}
	return c.proc.EnqueueTask(Task{
		Id: c.id,
		Call: FunctionCall{
			PC:        c.fn,
			Argument0: a0,
			Argument1: a1,
			Argument2: a2,
			Argument3: c.appdata,
		},
	})
}

// ProcessTable resolves AppIds to processes and iterates over loaded
// processes. The kernel implements it.
type ProcessTable interface {
	Process(app AppId) (Process, bool)
	Each(fn func(p Process))
}

// Grant is typed per-process storage for one capsule, carved lazily out
// of each process's own memory region. The grant number is assigned by
// the kernel when the grant is created.
type Grant[T any] struct {
	tbl ProcessTable
	num int
}

func NewGrant[T any](tbl ProcessTable, num int) *Grant[T] {
	return &Grant[T]{tbl: tbl, num: num}
}

func (g *Grant[T]) Num() int { return g.num }

// Enter allocates the process's cell on first use and runs fn with sole
// access to it. Entering a grant that is already entered, including from
// inside an Each iteration that reaches the same process, fails with
// ErrBusy.
func (g *Grant[T]) Enter(app AppId, fn func(state *T) error) error {
	p, ok := g.tbl.Process(app)
	if !ok || !p.Active() {
		return ErrInactive
	}
	if !p.GrantIsAllocated(g.num) {
		var zero T
		err := p.AllocGrant(g.num, uint32(unsafe.Sizeof(zero)), func() any { return new(T) })
		if err != nil {
			return err
		}
	}
	return p.EnterGrant(g.num, func(state any) error {
		return fn(state.(*T))
	})
}

// Each visits the allocated cell of every active process, entering each
// in turn. It stops at the first error.
func (g *Grant[T]) Each(fn func(app AppId, state *T) error) error {
	var err error
	g.tbl.Each(func(p Process) {
		if err != nil || !p.Active() || !p.GrantIsAllocated(g.num) {
			return
		}
		e := p.EnterGrant(g.num, func(state any) error {
			return fn(p.AppId(), state.(*T))
		})
		if e != nil {
			err = e
		}
	})
	return err
}
