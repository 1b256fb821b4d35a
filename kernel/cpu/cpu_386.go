// +build 386

package cpu

// EnableInterrupts enables interrupt handling on the calling CPU (sti).
func EnableInterrupts()

// DisableInterrupts disables interrupt handling on the calling CPU (cli).
func DisableInterrupts()

// Halt stops instruction execution on the calling CPU (hlt).
func Halt()

// FlushTLBEntry flushes the TLB entry for a single virtual address on the
// calling CPU (invlpg).
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT loads CR3 with the physical address of a page directory and
// implicitly flushes the calling CPU's entire TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address currently loaded in CR3.
func ActivePDT() uintptr

// ReadCR2 returns the faulting address recorded by the last page fault on
// the calling CPU.
func ReadCR2() uintptr

// SendIPIAllExcludingSelf asks the local APIC to broadcast an
// inter-processor interrupt carrying the given vector to every other CPU,
// using the "all excluding self" destination shorthand.
func SendIPIAllExcludingSelf(vector uint8)

// LocalAPICEOI signals end-of-interrupt to the calling CPU's local APIC.
func LocalAPICEOI()
