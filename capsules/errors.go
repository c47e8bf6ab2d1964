package capsules

import (
	"errors"

	mote "github.com/wnxd/microdbg-mote"
)

var (
	errUnsupported = errors.New("capsules: unsupported subdriver")
	errNoBuffer    = errors.New("capsules: no buffer allowed")
)

// errno maps capsule-internal errors onto process-visible codes.
func errno(err error) mote.ReturnCode {
	switch {
	case err == nil:
		return mote.SUCCESS
	case errors.Is(err, errUnsupported):
		return mote.ENOSUPPORT
	case errors.Is(err, errNoBuffer):
		return mote.ERESERVE
	case errors.Is(err, mote.ErrBusy):
		return mote.EBUSY
	case errors.Is(err, mote.ErrOutOfMemory):
		return mote.ENOMEM
	default:
		return mote.FAIL
	}
}
