package mote

// Memory is byte-addressed access to one process's memory region. The
// backing store may be host memory or memory inside an external emulator;
// either way all addresses are in the emulated address space.
type Memory interface {
	// Base returns the lowest address of the region.
	Base() uint32
	// Size returns the region length in bytes.
	Size() uint32
	ReadBytes(addr uint32, b []byte) error
	WriteBytes(addr uint32, b []byte) error
}

// Contains reports whether [addr, addr+size) lies entirely inside mem.
func Contains(mem Memory, addr, size uint32) bool {
	end := addr + size
	if end < addr {
		return false
	}
	return addr >= mem.Base() && end <= mem.Base()+mem.Size()
}

// AppSlice is a region of process memory the process has shared with a
// capsule through an allow system call. The bounds were validated against
// the process's accessible memory when the slice was built. At most one
// live entry into a slice may exist at a time.
type AppSlice struct {
	app     AppId
	mem     Memory
	addr    uint32
	size    uint32
	entered bool
}

// NewAppSlice wraps an already bounds-checked window of process memory.
// Callers outside the kernel package should obtain slices through the
// allow path, never construct them from raw addresses.
func NewAppSlice(app AppId, mem Memory, addr, size uint32) *AppSlice {
	return &AppSlice{app: app, mem: mem, addr: addr, size: size}
}

func (s *AppSlice) App() AppId      { return s.app }
func (s *AppSlice) Address() uint32 { return s.addr }
func (s *AppSlice) Len() int        { return int(s.size) }

// Enter runs fn with read/write access to the shared bytes. A nested
// entry, including one reached through a capsule callback, fails with
// ErrBusy instead of aliasing the buffer.
func (s *AppSlice) Enter(fn func(b SliceAccess) error) error {
	if s.entered {
		return ErrBusy
	}
	s.entered = true
	defer func() { s.entered = false }()
	return fn(SliceAccess{s})
}

// SliceAccess is the capability handed to an AppSlice.Enter closure. It is
// only valid for the closure's duration.
type SliceAccess struct {
	s *AppSlice
}

func (a SliceAccess) Len() int { return a.s.Len() }

// Read copies slice bytes starting at off into b.
func (a SliceAccess) Read(off uint32, b []byte) error {
	if off+uint32(len(b)) > a.s.size || off+uint32(len(b)) < off {
		return ErrOutOfMemory
	}
	return a.s.mem.ReadBytes(a.s.addr+off, b)
}

// Write copies b into slice bytes starting at off.
func (a SliceAccess) Write(off uint32, b []byte) error {
	if off+uint32(len(b)) > a.s.size || off+uint32(len(b)) < off {
		return ErrOutOfMemory
	}
	return a.s.mem.WriteBytes(a.s.addr+off, b)
}
