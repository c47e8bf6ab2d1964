package mote

// StoppedExecutingReason tells the scheduler why the kernel stopped
// running the process it last handed out.
type StoppedExecutingReason uint8

const (
	// StoppedBlocked: the process yielded, or stopped, with nothing left
	// to deliver.
	StoppedBlocked StoppedExecutingReason = iota
	// StoppedTimesliceExpired: the process consumed its whole timeslice.
	StoppedTimesliceExpired
	// StoppedFaulted: the process faulted and board policy was applied.
	StoppedFaulted
	// StoppedTerminated: the process exited.
	StoppedTerminated
)

func (r StoppedExecutingReason) String() string {
	switch r {
	case StoppedBlocked:
		return "Blocked"
	case StoppedTimesliceExpired:
		return "TimesliceExpired"
	case StoppedFaulted:
		return "Faulted"
	case StoppedTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// MinTimeslice is the smallest useful timeslice in ticks. Schedulers
// never hand out less; the kernel refuses to start a process with less
// remaining.
const MinTimeslice uint32 = 100

// Scheduler selects which process runs next and for how long.
type Scheduler interface {
	// AddProcess registers a loaded process with the scheduler.
	AddProcess(p Process)

	// Next picks the next schedulable process and the number of timer
	// ticks it may run. It returns ok=false when no registered process
	// is ready.
	Next() (p Process, timeslice uint32, ok bool)

	// Result reports how the process returned by the last Next call
	// stopped and how many ticks it used.
	Result(reason StoppedExecutingReason, ticksUsed uint32)
}

// Systick is the architecture's timeslice timer as the kernel sees it:
// armed before every switch to a process, inspected after.
type Systick interface {
	Reset()
	SetTimer(ticks uint32)
	Enable(withInterrupt bool)
	Overflowed() bool
	GreaterThan(ticks uint32) bool
	// Value returns the remaining ticks.
	Value() uint32
}

// Clock is the board's monotonic tick counter. On an emulated board the
// ticks are virtual and advance with executed process time.
type Clock interface {
	Ticks() uint64
}
