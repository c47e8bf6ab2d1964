package mote

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReturnCodeEncode(t *testing.T) {
	assert.Equal(t, uint32(0), SUCCESS.Encode())
	assert.Equal(t, uint32(0xffffffff), FAIL.Encode())
	assert.Equal(t, uint32(0xfffffff6), ENOSUPPORT.Encode())
	assert.Equal(t, int32(-10), int32(ENOSUPPORT.Encode()))
}

func TestCommandReturn(t *testing.T) {
	assert.False(t, CommandSuccess().Failed())
	assert.Equal(t, uint32(0), CommandSuccess().Encode())

	cr := CommandSuccessWithValue(0x1234)
	assert.False(t, cr.Failed())
	assert.Equal(t, uint32(0x1234), cr.Encode())

	fail := CommandFailure(EBUSY)
	assert.True(t, fail.Failed())
	assert.Equal(t, EBUSY.Encode(), fail.Encode())

	// A non-error code passed as a failure still reads as an error.
	coerced := CommandFailure(SUCCESS)
	assert.True(t, coerced.Failed())
	assert.Equal(t, FAIL.Encode(), coerced.Encode())
}

func TestSyscallFromRegisters(t *testing.T) {
	sys, ok := SyscallFromRegisters(1, 0x10, 2, 0x8000, 7)
	assert.True(t, ok)
	assert.Equal(t, Subscribe{DriverNum: 0x10, SubdriverNum: 2, CallbackPtr: 0x8000, AppData: 7}, sys)

	sys, ok = SyscallFromRegisters(0, 1, 2, 3, 4)
	assert.True(t, ok)
	assert.Equal(t, Yield{}, sys)

	sys, ok = SyscallFromRegisters(4, 2, 0, 0, 0)
	assert.True(t, ok)
	assert.Equal(t, Memop{Operand: 2, Arg0: 0}, sys)

	for class := 5; class < 256; class++ {
		_, ok := SyscallFromRegisters(uint8(class), 0, 0, 0, 0)
		assert.False(t, ok, "class %d must not decode", class)
	}
}

func TestCallbackSchedule(t *testing.T) {
	var nilCb *Callback
	assert.False(t, nilCb.Schedule(1, 2, 3))
}
