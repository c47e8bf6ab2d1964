package sched

import (
	mote "github.com/wnxd/microdbg-mote"
)

// RoundRobin hands every ready process the same quantum in turn.
type RoundRobin struct {
	quantum uint32
	procs   []mote.Process
}

var _ mote.Scheduler = (*RoundRobin)(nil)

func NewRoundRobin(quantum uint32) *RoundRobin {
	if quantum <= mote.MinTimeslice {
		panic("sched: round robin quantum too small")
	}
	return &RoundRobin{quantum: quantum}
}

func (s *RoundRobin) AddProcess(p mote.Process) {
	s.procs = append(s.procs, p)
}

func (s *RoundRobin) Next() (mote.Process, uint32, bool) {
	for i, p := range s.procs {
		if !p.Ready() {
			continue
		}
		s.procs = append(append(s.procs[:i:i], s.procs[i+1:]...), p)
		return p, s.quantum, true
	}
	return nil, 0, false
}

func (s *RoundRobin) Result(mote.StoppedExecutingReason, uint32) {}
