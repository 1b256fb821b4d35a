package kmain

import (
	"testing"

	"kernelcore/kernel/syscall"
	"kernelcore/kernel/task"
	"kernelcore/kernel/vfs"

	"github.com/stretchr/testify/require"
)

func bootstrapForTest(t *testing.T) *Kernel {
	idle := &task.Task{ID: 0, Priority: 0}
	k, err := Bootstrap(0x100000, 256, 0xD0000000, 16, 256, idle)
	require.Nil(t, err)
	return k
}

func TestBootstrapWiresCoreSubsystems(t *testing.T) {
	idle := &task.Task{ID: 0, Priority: 0}
	k, err := Bootstrap(0x100000, 256, 0xD0000000, 16, 256, idle)
	require.Nil(t, err)
	require.NotNil(t, k.Physical)
	require.NotNil(t, k.Memory)
	require.NotNil(t, k.Slabs)
	require.NotNil(t, k.Scheduler)
	require.Same(t, idle, k.IdleTask)
	require.NotNil(t, k.SystemCalls)
	require.NotNil(t, k.Resources)
	require.NotNil(t, k.Files)
	require.NotNil(t, k.Timers)
}

func TestBootstrapRegistersSetAlarmSyscall(t *testing.T) {
	k := bootstrapForTest(t)

	var args [syscall.MaxArgumentCount]uintptr
	args[0] = 5
	args[1] = 0
	ret, dispatchErr := k.SystemCalls.Dispatch(SyscallSetAlarm, args)
	require.Nil(t, dispatchErr)
	require.NotZero(t, ret[0])
}

func TestBootstrapRegistersFifoFileSystem(t *testing.T) {
	k := bootstrapForTest(t)

	of, openErr := k.Files.Open("fifo:", vfs.OpenMode{Writable: true})
	require.Nil(t, openErr)
	n, writeErr := of.Write([]byte("abc"))
	require.Nil(t, writeErr)
	require.Equal(t, 3, n)
}

func TestBootstrapFifoFileInstanceParam(t *testing.T) {
	k := bootstrapForTest(t)

	of, openErr := k.Files.Open("fifo:", vfs.OpenMode{Writable: true})
	require.Nil(t, openErr)

	handle, paramErr := of.GetParam(vfs.ParamFileInstance)
	require.Nil(t, paramErr)
	require.NotZero(t, handle)

	_, unsupportedErr := of.GetParam(vfs.ParamSize)
	require.Equal(t, vfs.ErrNotSupported, unsupportedErr)
}
