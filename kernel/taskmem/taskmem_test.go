package taskmem

import (
	"testing"

	"kernelcore/kernel/mem/pmm"
	"kernelcore/kernel/mem/vmm"

	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	phys := pmm.New(0, 64)
	page, err := vmm.NewPageManager(phys)
	require.Nil(t, err)
	linear := vmm.NewLinear(0x10000000, 16, nil)
	return New(phys, page, linear)
}

func TestAddReferenceTracksCount(t *testing.T) {
	m := newTestManager(t)
	require.Equal(t, 1, m.AddReference(1))
	require.Equal(t, 2, m.AddReference(1))
	require.Equal(t, 1, m.AddReference(-1))
	require.Equal(t, 1, m.ReferenceCount())
}

func TestDropFailsWhileReferenced(t *testing.T) {
	m := newTestManager(t)
	m.AddReference(1)
	require.Equal(t, ErrStillReferenced, m.Drop())
}

func TestDropSucceedsAtZeroReferences(t *testing.T) {
	m := newTestManager(t)
	m.AddReference(1)
	m.AddReference(-1)
	require.Nil(t, m.Drop())
}

func TestSwitchToInvokesArchSwitch(t *testing.T) {
	orig := switchPDTFn
	defer func() { switchPDTFn = orig }()

	var got uintptr
	switchPDTFn = func(p uintptr) { got = p }

	m := newTestManager(t)
	SwitchTo(m)
	require.Equal(t, uintptr(m.Page.PDTFrame()), got)
}
