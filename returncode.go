package mote

import "fmt"

// ReturnCode is the status value a system call stores in the process's
// result register. Zero and positive values are success, negative values
// are error codes.
type ReturnCode int32

const (
	SUCCESS      ReturnCode = 0
	FAIL         ReturnCode = -1
	EBUSY        ReturnCode = -2
	EALREADY     ReturnCode = -3
	EOFF         ReturnCode = -4
	ERESERVE     ReturnCode = -5
	EINVAL       ReturnCode = -6
	ESIZE        ReturnCode = -7
	ECANCEL      ReturnCode = -8
	ENOMEM       ReturnCode = -9
	ENOSUPPORT   ReturnCode = -10
	ENODEVICE    ReturnCode = -11
	EUNINSTALLED ReturnCode = -12
	ENOACK       ReturnCode = -13
)

var returnCodeNames = map[ReturnCode]string{
	SUCCESS:      "SUCCESS",
	FAIL:         "FAIL",
	EBUSY:        "EBUSY",
	EALREADY:     "EALREADY",
	EOFF:         "EOFF",
	ERESERVE:     "ERESERVE",
	EINVAL:       "EINVAL",
	ESIZE:        "ESIZE",
	ECANCEL:      "ECANCEL",
	ENOMEM:       "ENOMEM",
	ENOSUPPORT:   "ENOSUPPORT",
	ENODEVICE:    "ENODEVICE",
	EUNINSTALLED: "EUNINSTALLED",
	ENOACK:       "ENOACK",
}

func (rc ReturnCode) String() string {
	if name, ok := returnCodeNames[rc]; ok {
		return name
	}
	return fmt.Sprintf("ReturnCode(%d)", int32(rc))
}

// Encode produces the raw register value for rc.
func (rc ReturnCode) Encode() uint32 {
	return uint32(int32(rc))
}

// CommandReturn is the result of a capsule command: success with no data,
// success carrying one 32-bit value, or a failure code. It is the only
// information a command passes back into process-visible registers.
type CommandReturn struct {
	rc    ReturnCode
	value uint32
}

func CommandSuccess() CommandReturn {
	return CommandReturn{rc: SUCCESS}
}

func CommandSuccessWithValue(value uint32) CommandReturn {
	return CommandReturn{rc: SUCCESS, value: value}
}

func CommandFailure(rc ReturnCode) CommandReturn {
	if rc >= SUCCESS {
		rc = FAIL
	}
	return CommandReturn{rc: rc}
}

func (cr CommandReturn) Failed() bool {
	return cr.rc < SUCCESS
}

// Encode produces the raw register value written back to the process.
// Success values must stay non-negative so userspace can distinguish
// them from error codes.
func (cr CommandReturn) Encode() uint32 {
	if cr.rc < SUCCESS {
		return cr.rc.Encode()
	}
	return cr.value
}

func (cr CommandReturn) String() string {
	if cr.rc < SUCCESS {
		return cr.rc.String()
	}
	return fmt.Sprintf("SUCCESS(%#x)", cr.value)
}
