// Package sched provides the process scheduling policies. Every policy
// implements mote.Scheduler; boards pick one.
package sched

import (
	mote "github.com/wnxd/microdbg-mote"
)

type mlfqEntry struct {
	p mote.Process
	// queue is the priority queue the process currently lives in;
	// 0 is highest priority.
	queue int
	// used is the tick count consumed within the current queue visit.
	used uint32
}

// MLFQ is a multilevel feedback queue: processes that exhaust their
// timeslice sink to lower-priority queues with longer quanta, processes
// that yield early keep their priority, and a periodic refresh lifts
// everything back to the top so nothing starves forever.
type MLFQ struct {
	clock       mote.Clock
	quanta      []uint32
	refresh     uint64
	nextRefresh uint64
	queues      [][]*mlfqEntry
	last        *mlfqEntry
}

var _ mote.Scheduler = (*MLFQ)(nil)

// NewMLFQ builds a scheduler with one queue per quantum, highest
// priority first. refreshTicks is the starvation bound: at least every
// refreshTicks of board time, every process gets another turn in the
// top queue.
func NewMLFQ(clock mote.Clock, quanta []uint32, refreshTicks uint64) *MLFQ {
	if len(quanta) == 0 {
		panic("sched: mlfq needs at least one queue")
	}
	return &MLFQ{
		clock:       clock,
		quanta:      quanta,
		refresh:     refreshTicks,
		nextRefresh: clock.Ticks() + refreshTicks,
		queues:      make([][]*mlfqEntry, len(quanta)),
	}
}

func (s *MLFQ) AddProcess(p mote.Process) {
	s.queues[0] = append(s.queues[0], &mlfqEntry{p: p})
}

// QueueOf reports which priority queue p currently sits in. Intended
// for inspection and diagnostics.
func (s *MLFQ) QueueOf(p mote.Process) (int, bool) {
	for qi, q := range s.queues {
		for _, e := range q {
			if e.p == p {
				return qi, true
			}
		}
	}
	return 0, false
}

// UsedOf reports the ticks p has consumed in its current queue visit.
func (s *MLFQ) UsedOf(p mote.Process) (uint32, bool) {
	for _, q := range s.queues {
		for _, e := range q {
			if e.p == p {
				return e.used, true
			}
		}
	}
	return 0, false
}

func (s *MLFQ) Next() (mote.Process, uint32, bool) {
	now := s.clock.Ticks()
	if now >= s.nextRefresh {
		s.redeemAll()
		s.nextRefresh = now + s.refresh
	}
	for qi := range s.queues {
		for i, e := range s.queues[qi] {
			if !e.p.Ready() {
				continue
			}
			// Rotate the chosen process to the back of its queue.
			s.queues[qi] = append(append(s.queues[qi][:i:i], s.queues[qi][i+1:]...), e)
			remaining := s.quanta[e.queue] - e.used
			if remaining <= mote.MinTimeslice {
				// The visit's quantum was eaten by voluntary yields;
				// treat it like an expiry and start fresh one level
				// down.
				s.moveTo(e, min(e.queue+1, len(s.quanta)-1))
				e.used = 0
				remaining = s.quanta[e.queue]
			}
			s.last = e
			return e.p, remaining, true
		}
	}
	return nil, 0, false
}

func (s *MLFQ) Result(reason mote.StoppedExecutingReason, ticksUsed uint32) {
	e := s.last
	if e == nil {
		return
	}
	s.last = nil
	e.used += ticksUsed
	if reason == mote.StoppedTimesliceExpired {
		s.moveTo(e, min(e.queue+1, len(s.quanta)-1))
		e.used = 0
	}
}

// redeemAll promotes every process back to the top queue.
func (s *MLFQ) redeemAll() {
	for qi := 1; qi < len(s.queues); qi++ {
		for _, e := range s.queues[qi] {
			e.queue = 0
			e.used = 0
			s.queues[0] = append(s.queues[0], e)
		}
		s.queues[qi] = nil
	}
}

func (s *MLFQ) moveTo(e *mlfqEntry, queue int) {
	if queue == e.queue {
		return
	}
	q := s.queues[e.queue]
	for i, other := range q {
		if other == e {
			s.queues[e.queue] = append(q[:i:i], q[i+1:]...)
			break
		}
	}
	e.queue = queue
	s.queues[queue] = append(s.queues[queue], e)
}
