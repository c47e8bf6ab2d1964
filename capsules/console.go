package capsules

import (
	"io"

	mote "github.com/wnxd/microdbg-mote"
	"github.com/wnxd/microdbg-mote/kernel"
)

// ConsoleDriverNum is the driver number processes use to reach the
// console.
const ConsoleDriverNum uint32 = 0x1

// Console subdriver numbers, shared by allow, subscribe and command.
const (
	consoleWrite = 1
	consoleRead  = 2
)

type consoleState struct {
	writeCb  *mote.Callback
	readCb   *mote.Callback
	writeBuf *mote.AppSlice
	readBuf  *mote.AppSlice
	// readWant is how many bytes the pending read asked for; zero means
	// no read outstanding.
	readWant uint32
}

// Console moves bytes between process-allowed buffers and a host-side
// reader/writer pair.
type Console struct {
	out   io.Writer
	grant *mote.Grant[consoleState]
}

var _ mote.Driver = (*Console)(nil)

func NewConsole(k *kernel.Kernel, out io.Writer) *Console {
	return &Console{out: out, grant: kernel.CreateGrant[consoleState](k)}
}

func (c *Console) AllocateGrant(app mote.AppId) error {
	return c.grant.Enter(app, func(*consoleState) error { return nil })
}

func (c *Console) AllowReadWrite(subdriver uint32, slice *mote.AppSlice, app mote.AppId) mote.ReturnCode {
	err := c.grant.Enter(app, func(s *consoleState) error {
		switch subdriver {
		case consoleWrite:
			s.writeBuf = slice
		case consoleRead:
			s.readBuf = slice
		default:
			return errUnsupported
		}
		return nil
	})
	return errno(err)
}

func (c *Console) Subscribe(subdriver uint32, cb *mote.Callback, app mote.AppId) mote.ReturnCode {
	err := c.grant.Enter(app, func(s *consoleState) error {
		switch subdriver {
		case consoleWrite:
			s.writeCb = cb
		case consoleRead:
			s.readCb = cb
		default:
			return errUnsupported
		}
		return nil
	})
	return errno(err)
}

func (c *Console) Command(subdriver, arg0, _ uint32, app mote.AppId) mote.CommandReturn {
	switch subdriver {
	case 0:
		return mote.CommandSuccess()
	case consoleWrite:
		var n int
		err := c.grant.Enter(app, func(s *consoleState) error {
			if s.writeBuf == nil {
				return errNoBuffer
			}
			length := min(arg0, uint32(s.writeBuf.Len()))
			return s.writeBuf.Enter(func(b mote.SliceAccess) error {
				buf := make([]byte, length)
				if err := b.Read(0, buf); err != nil {
					return err
				}
				var werr error
				n, werr = c.out.Write(buf)
				if werr != nil {
					return werr
				}
				// Completion is an upcall, delivered when the process
				// is next scheduled.
				s.writeCb.Schedule(uint32(n), 0, 0)
				return nil
			})
		})
		if err != nil {
			return mote.CommandFailure(errno(err))
		}
		return mote.CommandSuccessWithValue(uint32(n))
	case consoleRead:
		err := c.grant.Enter(app, func(s *consoleState) error {
			if s.readBuf == nil {
				return errNoBuffer
			}
			s.readWant = min(arg0, uint32(s.readBuf.Len()))
			return nil
		})
		if err != nil {
			return mote.CommandFailure(errno(err))
		}
		return mote.CommandSuccess()
	default:
		return mote.CommandFailure(mote.ENOSUPPORT)
	}
}

// Input offers host-side bytes to every process with an outstanding
// read. It returns how many bytes the first matching process consumed.
func (c *Console) Input(data []byte) int {
	consumed := 0
	c.grant.Each(func(_ mote.AppId, s *consoleState) error {
		if consumed > 0 || s.readWant == 0 || s.readBuf == nil {
			return nil
		}
		n := min(int(s.readWant), len(data))
		err := s.readBuf.Enter(func(b mote.SliceAccess) error {
			return b.Write(0, data[:n])
		})
		if err != nil {
			return nil
		}
		s.readWant = 0
		s.readCb.Schedule(uint32(mote.SUCCESS.Encode()), uint32(n), 0)
		consumed = n
		return nil
	})
	return consumed
}
