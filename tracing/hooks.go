package tracing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	mote "github.com/wnxd/microdbg-mote"
	"github.com/wnxd/microdbg-mote/kernel"
)

// Hooks emits one span per kernel event, all tagged with a board
// session id so runs can be told apart in a shared exporter.
type Hooks struct {
	ctx     context.Context
	session string
}

var _ kernel.Hooks = (*Hooks)(nil)

func NewHooks(ctx context.Context) *Hooks {
	return &Hooks{ctx: ctx, session: uuid.NewString()}
}

// Session returns the board session id the spans carry.
func (h *Hooks) Session() string { return h.session }

func (h *Hooks) event(name string, p mote.Process, attrs map[string]string, err error) {
	_, sp := StartSpan(h.ctx, name)
	if attrs == nil {
		attrs = make(map[string]string, 4)
	}
	attrs["session.id"] = h.session
	attrs["process.id"] = fmt.Sprint(p.AppId())
	attrs["process.name"] = p.Name()
	sp.WithAttributes(attrs)
	EndSpan(sp, err)
}

func (h *Hooks) Syscall(p mote.Process, sys mote.Syscall, ret uint32) {
	h.event("kernel.syscall", p, map[string]string{
		"syscall":       sys.String(),
		"syscall.ret":   fmt.Sprint(int32(ret)),
		"process.state": p.State().String(),
	}, nil)
}

func (h *Hooks) ProcessFault(p mote.Process) {
	h.event("kernel.fault", p, nil, errors.New("process fault"))
}

func (h *Hooks) ProcessRestarted(p mote.Process) {
	h.event("kernel.restart", p, map[string]string{
		"process.restarts": fmt.Sprint(p.RestartCount()),
	}, nil)
}

func (h *Hooks) KernelError(p mote.Process, err error) {
	h.event("kernel.error", p, nil, err)
}
