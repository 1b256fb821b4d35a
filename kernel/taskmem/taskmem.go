// Package taskmem implements the Task Memory aggregate: the {physical
// block manager, page manager, linear block manager} triple that every Task
// shares a reference to, torn down only once its last referencing task
// drops it.
//
// Grounded on original_source/src/kernel/task/taskmanager.c's
// TaskMemoryManager/createTaskMemory/deleteTaskMemory/addTaskMemoryReference,
// per spec.md §3.7/§4.6.
package taskmem

import (
	"kernelcore/kernel"
	"kernelcore/kernel/cpu"
	"kernelcore/kernel/mem/pmm"
	"kernelcore/kernel/mem/vmm"
	"kernelcore/kernel/sync"
)

// switchPDTFn is indirected, in the teacher's cpuidFn style, so tests can
// observe SwitchTo without invoking the real arch-specific CR3 write.
var switchPDTFn = cpu.SwitchPDT

// ErrStillReferenced is a programming-error guard: Drop must never observe
// a non-zero reference count, matching the original's
// assert(referenceCount == 0).
var ErrStillReferenced = &kernel.Error{Module: "taskmem", Code: -1, Message: "drop called while still referenced"}

// Manager is one address space's full memory manager triple, reference
// counted across every Task that currently runs inside it.
type Manager struct {
	Physical *pmm.Manager
	Page     *vmm.PageManager
	Linear   *vmm.Linear

	lock  sync.Spinlock
	count int
}

// New assembles a Manager from its three constituent managers with a
// reference count of zero; the caller must call AddReference for every Task
// it attaches this Manager to.
func New(physical *pmm.Manager, page *vmm.PageManager, linear *vmm.Linear) *Manager {
	return &Manager{Physical: physical, Page: page, Linear: linear}
}

// AddReference adjusts the reference count by delta and returns the new
// count. A Task being created calls AddReference(1); a Task being retired
// calls AddReference(-1).
func (m *Manager) AddReference(delta int) int {
	m.lock.Acquire()
	m.count += delta
	n := m.count
	m.lock.Release()
	return n
}

// ReferenceCount reports the current count, for tests and diagnostics.
func (m *Manager) ReferenceCount() int {
	m.lock.Acquire()
	defer m.lock.Release()
	return m.count
}

// Drop tears down the page manager's owned page tables once the last
// referencing task has gone. It is an error to call Drop while the
// reference count is non-zero or the manager's lock is held.
func (m *Manager) Drop() *kernel.Error {
	m.lock.Acquire()
	ok := m.count == 0
	m.lock.Release()
	if !ok {
		return ErrStillReferenced
	}
	m.Page.Teardown()
	return nil
}

// SwitchTo activates this address space's page directory as CR3 on the
// calling CPU. Per spec.md §4.6, this must only ever be called with
// interrupts disabled, since an interrupt landing mid-switch could observe
// an inconsistent CR3/TaskMemory pairing for the running task.
func SwitchTo(m *Manager) {
	switchPDTFn(uintptr(m.Page.PDTFrame()))
}
