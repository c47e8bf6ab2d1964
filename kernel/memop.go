package kernel

import mote "github.com/wnxd/microdbg-mote"

// memop operands. Operands 6-9 of the original interface covered
// writeable flash regions, which this kernel does not expose.
const (
	memopBrk         = 0
	memopSbrk        = 1
	memopMemoryStart = 2
	memopMemoryEnd   = 3
	memopFlashStart  = 4
	memopFlashEnd    = 5
	memopStackStart  = 10
	memopHeapStart   = 11
)

// memop adjusts or reports process memory bounds. It is handled in the
// kernel directly, never routed to a capsule. The returned word is
// either an address or an encoded ReturnCode; addresses are always
// below the sign bit on this architecture's memory maps.
func memop(p mote.Process, operand, arg0 uint32) uint32 {
	switch operand {
	case memopBrk:
		_, rc := p.Brk(arg0)
		return rc.Encode()
	case memopSbrk:
		brk, rc := p.Sbrk(int32(arg0))
		if rc != mote.SUCCESS {
			return rc.Encode()
		}
		return brk
	case memopMemoryStart:
		return p.MemStart()
	case memopMemoryEnd:
		return p.MemEnd()
	case memopFlashStart:
		return p.FlashStart()
	case memopFlashEnd:
		return p.FlashEnd()
	case memopStackStart:
		p.UpdateStackStart(arg0)
		return mote.SUCCESS.Encode()
	case memopHeapStart:
		p.UpdateHeapStart(arg0)
		return mote.SUCCESS.Encode()
	default:
		return mote.ENOSUPPORT.Encode()
	}
}
