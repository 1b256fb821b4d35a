// Package cpu provides the architecture-specific primitives (interrupt
// control, TLB control, inter-processor interrupts) and the per-CPU state
// block that the rest of the kernel core is built on.
package cpu

import "sync/atomic"

// MaxCPUs bounds the number of CPUs this kernel build supports. It sizes the
// bootstrap/IPI-targeting table in allCPUs; it is not a hard architectural
// limit, just a compile-time budget.
const MaxCPUs = 32

// Block holds the state that must be reachable in O(1) from any code path
// running on a particular CPU: the currently running task, the
// interrupt-disable nesting depth, and the TSS interrupt-stack pointer used
// when an interrupt is taken from ring 3.
//
// In a real boot image, Current() resolves a CPU's Block through the
// hardware's per-CPU segment base (GS on i386) rather than the ID-indexed
// table below; that table exists purely for bootstrap ordering (before the
// segment bases are programmed) and for targeting a specific CPU from an
// IPI sender, per the kernel's design notes on per-CPU state.
type Block struct {
	ID int

	// CurrentTask holds the task package's per-CPU *Scheduler, through
	// which the running Task is reached. It is typed as interface{} here
	// to avoid an import cycle between cpu and task; the task package
	// casts it back.
	CurrentTask interface{}

	// cliDepth counts nested DisableInterrupts calls so that the
	// matching EnableInterrupts only re-enables interrupts once the
	// outermost section exits.
	cliDepth int32

	// TSSInterruptStack is the kernel-stack pointer installed in this
	// CPU's TSS so that a ring-3 to ring-0 transition lands on a valid
	// stack.
	TSSInterruptStack uintptr
}

var (
	allCPUs    [MaxCPUs]*Block
	cpuCount   int32
	// currentPtr holds the single *Block that Current() returns. On real
	// hardware this is fine as a process-wide slot: each physical CPU is
	// its own execution stream with no goroutine scheduler multiplexing
	// several of them onto it, so there is exactly one "current CPU" per
	// running image. It does NOT give per-goroutine results: two
	// goroutines calling SetCurrent concurrently race for the same slot.
	// A test that wants to simulate several CPUs at once needs to pass
	// each goroutine its own *Block explicitly rather than go through
	// Current()/SetCurrent.
	currentPtr atomic.Value
)

// Register installs a Block for bootstrap/IPI-targeting purposes and returns
// its CPU index. Called once per CPU during bring-up.
func Register(b *Block) int {
	idx := int(atomic.AddInt32(&cpuCount, 1)) - 1
	b.ID = idx
	allCPUs[idx] = b
	return idx
}

// Count returns the number of CPUs registered so far.
func Count() int {
	return int(atomic.LoadInt32(&cpuCount))
}

// ByID returns the Block registered for the given CPU index, or nil if out
// of range. Used by the IPI sender and by bootstrap code; ordinary code
// paths should prefer Current().
func ByID(id int) *Block {
	if id < 0 || id >= MaxCPUs {
		return nil
	}
	return allCPUs[id]
}

// SetCurrent pins the Block that Current() returns. Production code calls
// this once per real CPU during bring-up, immediately after programming
// that CPU's segment base. It is process-wide, not per-goroutine: it is
// only meaningful for simulating a single current CPU in a test, not
// several concurrently.
func SetCurrent(b *Block) {
	currentPtr.Store(b)
}

// Current returns the calling CPU's per-CPU state block.
func Current() *Block {
	v := currentPtr.Load()
	if v == nil {
		return nil
	}
	return v.(*Block)
}

// PushCLI disables interrupts and increments the nesting counter, recording
// whether this call is the one that actually transitioned interrupts from
// enabled to disabled.
func (b *Block) PushCLI() {
	depth := atomic.AddInt32(&b.cliDepth, 1)
	if depth == 1 {
		DisableInterrupts()
	}
}

// PopCLI decrements the nesting counter and re-enables interrupts once it
// reaches zero. Calling PopCLI more times than PushCLI is a programming
// error and panics.
func (b *Block) PopCLI() {
	depth := atomic.AddInt32(&b.cliDepth, -1)
	if depth < 0 {
		panic("cpu: PopCLI without matching PushCLI")
	}
	if depth == 0 {
		EnableInterrupts()
	}
}
