// Package capsules holds the kernel-resident drivers a board wires
// between its processes and the outside world.
package capsules

import (
	mote "github.com/wnxd/microdbg-mote"
	"github.com/wnxd/microdbg-mote/kernel"
)

// AlarmDriverNum is the driver number processes use to reach the alarm.
const AlarmDriverNum uint32 = 0x0

type alarmState struct {
	cb       *mote.Callback
	deadline uint64
	armed    bool
}

// Alarm wakes a process with an upcall once board time passes a
// process-chosen deadline. Each process's pending alarm lives in its
// own grant.
type Alarm struct {
	clock mote.Clock
	grant *mote.Grant[alarmState]
}

var _ mote.Driver = (*Alarm)(nil)

func NewAlarm(k *kernel.Kernel, clock mote.Clock) *Alarm {
	return &Alarm{clock: clock, grant: kernel.CreateGrant[alarmState](k)}
}

func (a *Alarm) AllocateGrant(app mote.AppId) error {
	return a.grant.Enter(app, func(*alarmState) error { return nil })
}

func (a *Alarm) Command(subdriver, arg0, _ uint32, app mote.AppId) mote.CommandReturn {
	switch subdriver {
	case 0: // driver presence check
		return mote.CommandSuccess()
	case 1: // current time
		return mote.CommandSuccessWithValue(uint32(a.clock.Ticks()))
	case 2: // arm, arg0 ticks from now
		var at uint64
		err := a.grant.Enter(app, func(s *alarmState) error {
			s.deadline = a.clock.Ticks() + uint64(arg0)
			s.armed = true
			at = s.deadline
			return nil
		})
		if err != nil {
			return mote.CommandFailure(mote.ENOMEM)
		}
		return mote.CommandSuccessWithValue(uint32(at))
	case 3: // disarm
		err := a.grant.Enter(app, func(s *alarmState) error {
			s.armed = false
			return nil
		})
		if err != nil {
			return mote.CommandFailure(mote.ENOMEM)
		}
		return mote.CommandSuccess()
	default:
		return mote.CommandFailure(mote.ENOSUPPORT)
	}
}

func (a *Alarm) Subscribe(subdriver uint32, cb *mote.Callback, app mote.AppId) mote.ReturnCode {
	if subdriver != 0 {
		return mote.ENOSUPPORT
	}
	err := a.grant.Enter(app, func(s *alarmState) error {
		s.cb = cb
		return nil
	})
	if err != nil {
		return mote.ENOMEM
	}
	return mote.SUCCESS
}

func (a *Alarm) AllowReadWrite(uint32, *mote.AppSlice, mote.AppId) mote.ReturnCode {
	return mote.ENOSUPPORT
}

// Poll fires every armed alarm whose deadline has passed. The kernel
// calls it once per loop iteration.
func (a *Alarm) Poll(now uint64) {
	a.grant.Each(func(_ mote.AppId, s *alarmState) error {
		if s.armed && now >= s.deadline {
			s.armed = false
			s.cb.Schedule(uint32(now), uint32(s.deadline), 0)
		}
		return nil
	})
}

// NextDeadline reports the earliest armed deadline, for boards that
// sleep virtual time forward when everything is blocked.
func (a *Alarm) NextDeadline() (uint64, bool) {
	var (
		next  uint64
		found bool
	)
	a.grant.Each(func(_ mote.AppId, s *alarmState) error {
		if s.armed && (!found || s.deadline < next) {
			next = s.deadline
			found = true
		}
		return nil
	})
	return next, found
}
