// Package kmain wires the core subsystems together in the order a real
// boot image brings them up: physical memory, paging, the kernel's own
// address space, the slab allocator, the scheduler and the resource/file
// registries every driver (out of scope here) would register against.
//
// Grounded on gopher-os's kernel/kmain/kmain.go (the shape of a single
// linear init sequence bailing out to kernel.Panic on the first error) per
// spec.md's top-level OVERVIEW. Unlike the teacher, this repository has no
// rt0/multiboot entrypoint to receive a real memory map from (multiboot
// discovery is out of scope per spec.md's Non-goals), so Bootstrap takes
// the physical range to manage as parameters instead of reading them out
// of a multiboot info struct.
package kmain

import (
	"kernelcore/kernel"
	"kernelcore/kernel/cpu"
	"kernelcore/kernel/fifo"
	"kernelcore/kernel/ioreq"
	"kernelcore/kernel/mem"
	"kernelcore/kernel/mem/pmm"
	"kernelcore/kernel/mem/slab"
	"kernelcore/kernel/mem/vmm"
	"kernelcore/kernel/resource"
	ksync "kernelcore/kernel/sync"
	"kernelcore/kernel/syscall"
	"kernelcore/kernel/task"
	"kernelcore/kernel/taskmem"
	"kernelcore/kernel/timer"
	"kernelcore/kernel/vfs"
)

// iorequestHandles hands out small integer handles for IORequests crossing
// the system-call boundary, standing in for the original's "cast the
// pointer to uintptr" convention (not meaningful in hosted Go, where a
// kernel pointer isn't a stable numeric handle across the module boundary).
type iorequestHandles struct {
	lock ksync.Spinlock
	byID map[uintptr]*ioreq.IORequest
	next uintptr
}

func newIORequestHandles() *iorequestHandles {
	return &iorequestHandles{byID: make(map[uintptr]*ioreq.IORequest), next: 1}
}

func (h *iorequestHandles) add(ior *ioreq.IORequest) uintptr {
	h.lock.Acquire()
	defer h.lock.Release()
	id := h.next
	h.next++
	h.byID[id] = ior
	return id
}

func (h *iorequestHandles) get(id uintptr) (*ioreq.IORequest, bool) {
	h.lock.Acquire()
	defer h.lock.Release()
	ior, ok := h.byID[id]
	return ior, ok
}

// instanceHandles hands out small integer handles for driver-owned file
// instances, the same substitution for FILE_PARAM_FILE_INSTANCE's
// pointer-as-uint64 convention that iorequestHandles makes for IORequests.
type instanceHandles struct {
	lock ksync.Spinlock
	byID map[uintptr]interface{}
	next uintptr
}

func newInstanceHandles() *instanceHandles {
	return &instanceHandles{byID: make(map[uintptr]interface{}), next: 1}
}

func (h *instanceHandles) add(instance interface{}) uintptr {
	h.lock.Acquire()
	defer h.lock.Release()
	id := h.next
	h.next++
	h.byID[id] = instance
	return id
}

// SyscallSetAlarm is the reserved system call number for set_alarm,
// mirroring systemcalltable.h's fixed SYSCALL_SET_ALARM slot.
const SyscallSetAlarm = 0

// numReservedSystemCalls mirrors NUMBER_OF_RESERVED_SYSTEM_CALLS: fixed
// slots assigned at build time rather than dynamically registered.
const numReservedSystemCalls = 16

// maxServices bounds the dynamic service-registration range
// (NUMBER_OF_SYSTEM_CALLS - NUMBER_OF_RESERVED_SYSTEM_CALLS in the
// original).
const maxServices = 112

// linearExtender grows the kernel's linear address range by doubling its
// block count each time it runs out, capped at maxBlocks.
type linearExtender struct {
	maxBlocks int
}

func (e linearExtender) Grow(currentBlockCount int) int {
	if currentBlockCount >= e.maxBlocks {
		return 0
	}
	grown := currentBlockCount * 2
	if grown > e.maxBlocks {
		grown = e.maxBlocks
	}
	if grown <= currentBlockCount {
		return 0
	}
	return grown - currentBlockCount
}

// Kernel holds every subsystem Bootstrap wires up, kept alive for as long
// as the kernel runs.
type Kernel struct {
	Physical *pmm.Manager
	Memory   *taskmem.Manager
	Slabs    *slab.Cache

	Scheduler *task.Scheduler
	IdleTask  *task.Task

	SystemCalls *syscall.Table
	Resources   *resource.Registry
	Files       *vfs.Registry
	Timers      *timer.List
}

// slabPages adapts a *vmm.Linear (the kernel's own virtual address range)
// into slab.PageAllocator, since the slab allocator is agnostic to where
// its backing pages come from.
type slabPages struct {
	linear *vmm.Linear
	page   *vmm.PageManager
}

func (p slabPages) AllocatePage() (uintptr, *kernel.Error) {
	addr, err := p.linear.AllocateOrExtend(mem.PageSize)
	if err != nil {
		return 0, err
	}
	if mapErr := p.page.Map(addr, mem.PageSize, vmm.FlagPresent|vmm.FlagRW); mapErr != nil {
		return 0, mapErr
	}
	p.linear.MarkMapped(addr, mem.PageSize)
	return uintptr(addr), nil
}

func (p slabPages) ReleasePage(addr uintptr) {
	p.page.Unmap(mem.VirtAddr(addr), mem.PageSize)
	p.linear.Release(mem.VirtAddr(addr))
}

// Bootstrap brings up the core on the boot CPU: the physical frame
// allocator over [physBegin, physBegin+physBlockCount*PageSize), the
// kernel's own page tables and linear address range, the slab allocator
// layered over them, the scheduler (with idleTask as CPU 0's first
// runnable task), and the resource/file/syscall/timer registries every
// driver would otherwise register against.
func Bootstrap(physBegin uint32, physBlockCount int, linearBegin uint32, linearBlockCount, linearMaxBlocks int, idleTask *task.Task) (*Kernel, *kernel.Error) {
	vmm.InitKernelWindow()

	phys := pmm.New(physBegin, physBlockCount)

	pageMgr, err := vmm.NewPageManager(phys)
	if err != nil {
		return nil, err
	}

	linear := vmm.NewLinear(linearBegin, linearBlockCount, linearExtender{maxBlocks: linearMaxBlocks})

	taskMemMgr := taskmem.New(phys, pageMgr, linear)
	taskMemMgr.AddReference(1)

	slabs := slab.New(slabPages{linear: linear, page: pageMgr})

	b := cpu.Current()
	if b == nil {
		b = &cpu.Block{}
		cpu.Register(b)
		cpu.SetCurrent(b)
	}
	idleTask.TaskMemory = taskMemMgr
	idleTask.IO = ioreq.NewQueue()
	sched := task.Bootstrap(b, idleTask)
	task.InstallScheduler(b)

	syscalls := syscall.New(numReservedSystemCalls, maxServices)
	timers := timer.New(idleTask.IO)
	iorHandles := newIORequestHandles()
	syscalls.RegisterSystemCall(SyscallSetAlarm, func(args [syscall.MaxArgumentCount]uintptr) [syscall.MaxReturnCount]uintptr {
		periodic := args[1] != 0
		ior := timers.SetAlarm(uint64(args[0]), periodic)
		return [syscall.MaxReturnCount]uintptr{iorHandles.add(ior)}
	})

	resources := resource.NewRegistry()
	files := vfs.NewRegistry()
	fifoInstances := newInstanceHandles()
	files.Add("fifo", func(subpath string, mode vfs.OpenMode) (interface{}, *vfs.FileFunctions, *kernel.Error) {
		if !mode.Writable {
			return nil, nil, vfs.ErrNotSupported
		}
		f := fifo.New(idleTask.IO)
		ff := vfs.DefaultFileFunctions()
		ff.Write = func(instance interface{}, buffer []byte) (int, *kernel.Error) {
			instance.(*fifo.File).Write(buffer)
			return len(buffer), nil
		}
		ff.GetParam = func(instance interface{}, code vfs.ParamCode) (uint64, *kernel.Error) {
			if code != vfs.ParamFileInstance {
				return 0, vfs.ErrNotSupported
			}
			return uint64(fifoInstances.add(instance)), nil
		}
		ff.Close = func(instance interface{}) *kernel.Error {
			instance.(*fifo.File).Close()
			return nil
		}
		return f, &ff, nil
	})

	return &Kernel{
		Physical:    phys,
		Memory:      taskMemMgr,
		Slabs:       slabs,
		Scheduler:   sched,
		IdleTask:    idleTask,
		SystemCalls: syscalls,
		Resources:   resources,
		Files:       files,
		Timers:      timers,
	}, nil
}
