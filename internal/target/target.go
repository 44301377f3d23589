// Package target defines the debug-target collaborator the dispatcher
// drives, and a reference in-memory implementation of it. The collaborator
// itself — a real simulator or hardware probe — is out of scope per
// spec.md §1; this package only fixes the interface and ships a simulator
// good enough to exercise the server end to end.
package target

import "github.com/dmi391/gdbstub/internal/cancel"

// StopReason describes why RunUntilStop or Step returned.
type StopReason struct {
	// Signal is the RSP signal number: 5 (SIGTRAP) for a breakpoint or
	// single-step completion, 2 (SIGINT) for a cancelled run.
	Signal byte
}

const (
	SigInt  byte = 2
	SigTrap byte = 5
)

// Target is the debug-target collaborator interface spec.md §6 names.
type Target interface {
	// RunUntilStop runs the target until it hits a breakpoint/watchpoint,
	// faults, or cancel is observed set. Implementations must check cancel
	// between steps, not just at entry, so a long-running target can still
	// be interrupted.
	RunUntilStop(cancel *cancel.Flag) StopReason
	// Step executes exactly one instruction (or simulated unit of
	// progress) and returns its stop reason.
	Step() StopReason

	ReadRegisters() []byte
	WriteRegisters(data []byte) error
	ReadRegister(n int) ([]byte, error)
	WriteRegister(n int, value []byte) error

	ReadMemory(addr, length uint64) ([]byte, error)
	WriteMemory(addr uint64, data []byte) error

	InsertMatchpoint(kind int, addr, size uint64) error
	RemoveMatchpoint(kind int, addr, size uint64) error

	// Monitor executes a GDB "monitor" command and returns the text to be
	// reported to the user via an O-packet.
	Monitor(cmd string) (string, error)
}
