package target

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmi391/gdbstub/internal/cancel"
)

// Register layout mirrors the teacher emulator's ARM Cortex-M profile
// target.xml: r0..r12, sp, lr, pc, xPSR — 17 32-bit registers, transferred
// little-endian per spec.md §4.3.
const (
	RegCount = 17
	RegSP    = 13
	RegLR    = 14
	RegPC    = 15
	RegXPSR  = 16
)

// Matchpoint kinds per spec.md §4.3: 0/1 are breakpoints, 2-4 watchpoints.
const (
	MatchpointSoftwareBreak = 0
	MatchpointHardwareBreak = 1
	MatchpointWriteWatch    = 2
	MatchpointReadWatch     = 3
	MatchpointAccessWatch   = 4
)

// ErrUnsupportedMatchpoint is returned for watchpoint kinds this reference
// simulator does not implement; the dispatcher turns it into the spec's
// "$#00 if type unsupported" reply rather than an error.
var ErrUnsupportedMatchpoint = errors.New("target: matchpoint kind not supported")

// ErrUnknownMonitorCommand is returned by Monitor for any command text not
// present in the simulator's monitor registry.
var ErrUnknownMonitorCommand = errors.New("target: unknown monitor command")

// memoryRegion is one addressable span of the simulated address space.
type memoryRegion struct {
	base     uint64
	data     []byte
	readOnly bool
}

func (r memoryRegion) contains(addr uint64, length uint64) bool {
	return addr >= r.base && addr+length <= r.base+uint64(len(r.data))
}

// Simulator is a reference, pure-Go Target: a flat register file, two
// memory regions (flash, ram — matching the teacher's gdbAnnexMemoryMap
// layout of flash at 0x0 and ram at 0x20000000), a software-breakpoint
// table, and a tiny two-instruction-stream "program" so vCont;c/s and the
// end-to-end scenarios in spec.md §8 have something to run.
//
// It replaces the teacher's cgo machine_t binding: same role (register
// file, memory, step/continue, breakpoints), expressed without cgo since
// the real target backend is out of scope (spec.md §1).
type Simulator struct {
	mu sync.Mutex

	regs  [RegCount]uint32
	flash memoryRegion
	ram   memoryRegion

	breakpoints map[uint64]int // addr -> matchpoint kind

	loop      bool // -l/--loop: free-running demo program instead of halt-on-entry
	stepWidth uint32

	programEnd uint32 // address the non-loop demo program halts at

	monitors map[string]func(*Simulator) string
}

// NewSimulator builds a simulator with flashSize/ramSize bytes of backing
// memory. loop selects the free-running demo program (-l/--loop); the
// default program runs a short straight-line sequence and parks at its end,
// modelling "halt on entry to idle".
func NewSimulator(flashSize, ramSize int, loop bool) *Simulator {
	s := &Simulator{
		flash:       memoryRegion{base: 0x0, data: make([]byte, flashSize), readOnly: true},
		ram:         memoryRegion{base: 0x20000000, data: make([]byte, ramSize)},
		breakpoints: make(map[uint64]int),
		loop:        loop,
		stepWidth:   4,
		programEnd:  uint32(flashSize),
	}
	if s.programEnd > 64 {
		// Keep the demo program short so a naive `c` without breakpoints
		// still terminates quickly in the non-loop case.
		s.programEnd = 64
	}
	s.monitors = map[string]func(*Simulator) string{
		"reset init": (*Simulator).monitorResetInit,
		"reset halt": (*Simulator).monitorResetHalt,
	}
	return s
}

// LoadFirmware copies image into flash starting at address 0.
func (s *Simulator) LoadFirmware(image []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(image) > len(s.flash.data) {
		return fmt.Errorf("target: firmware (%d bytes) does not fit in flash (%d bytes)", len(image), len(s.flash.data))
	}
	copy(s.flash.data, image)
	return nil
}

func (s *Simulator) RunUntilStop(c *cancel.Flag) StopReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if c.Load() {
			return StopReason{Signal: SigInt}
		}
		if _, hit := s.breakpoints[uint64(s.regs[RegPC])]; hit {
			return StopReason{Signal: SigTrap}
		}
		s.advanceLocked()
		if !s.loop && s.regs[RegPC] >= s.programEnd {
			return StopReason{Signal: SigTrap}
		}
		// A real target blocks on its own clock; this reference simulator
		// paces itself so RunUntilStop stays responsive to cancel without
		// spinning a CPU core.
		time.Sleep(100 * time.Microsecond)
	}
}

func (s *Simulator) Step() StopReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advanceLocked()
	return StopReason{Signal: SigTrap}
}

func (s *Simulator) advanceLocked() {
	next := s.regs[RegPC] + s.stepWidth
	if s.loop && next >= s.programEnd {
		next = 0
	}
	s.regs[RegPC] = next
}

func (s *Simulator) ReadRegisters() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, 0, RegCount*4)
	for _, v := range s.regs {
		out = appendLE32(out, v)
	}
	return out
}

func (s *Simulator) WriteRegisters(data []byte) error {
	if len(data) != RegCount*4 {
		return fmt.Errorf("target: expected %d register bytes, got %d", RegCount*4, len(data))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < RegCount; i++ {
		s.regs[i] = readLE32(data[i*4:])
	}
	return nil
}

func (s *Simulator) ReadRegister(n int) ([]byte, error) {
	if n < 0 || n >= RegCount {
		return nil, fmt.Errorf("target: register %d out of range", n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendLE32(nil, s.regs[n]), nil
}

func (s *Simulator) WriteRegister(n int, value []byte) error {
	if n < 0 || n >= RegCount {
		return fmt.Errorf("target: register %d out of range", n)
	}
	if len(value) != 4 {
		return fmt.Errorf("target: register value must be 4 bytes, got %d", len(value))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[n] = readLE32(value)
	return nil
}

func (s *Simulator) ReadMemory(addr, length uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	region, ok := s.regionFor(addr, length)
	if !ok {
		return nil, fmt.Errorf("target: read [0x%x,+0x%x) outside known memory", addr, length)
	}
	off := addr - region.base
	out := make([]byte, length)
	copy(out, region.data[off:off+length])
	return out, nil
}

func (s *Simulator) WriteMemory(addr uint64, data []byte) error {
	if len(data) == 0 {
		// The empty probe "X<addr>,0:" must succeed unconditionally
		// (spec.md §4.3), regardless of whether addr is mapped.
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	region, ok := s.regionFor(addr, uint64(len(data)))
	if !ok {
		return fmt.Errorf("target: write [0x%x,+0x%x) outside known memory", addr, len(data))
	}
	if region.readOnly {
		return fmt.Errorf("target: address 0x%x is read-only flash", addr)
	}
	off := addr - region.base
	copy(region.data[off:off+uint64(len(data))], data)
	return nil
}

func (s *Simulator) regionFor(addr, length uint64) (memoryRegion, bool) {
	if s.flash.contains(addr, length) {
		return s.flash, true
	}
	if s.ram.contains(addr, length) {
		return s.ram, true
	}
	return memoryRegion{}, false
}

func (s *Simulator) InsertMatchpoint(kind int, addr, _ uint64) error {
	if kind != MatchpointSoftwareBreak && kind != MatchpointHardwareBreak {
		return ErrUnsupportedMatchpoint
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakpoints[addr] = kind
	return nil
}

func (s *Simulator) RemoveMatchpoint(kind int, addr, _ uint64) error {
	if kind != MatchpointSoftwareBreak && kind != MatchpointHardwareBreak {
		return ErrUnsupportedMatchpoint
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.breakpoints, addr)
	return nil
}

func (s *Simulator) Monitor(cmd string) (string, error) {
	s.mu.Lock()
	handler, ok := s.monitors[cmd]
	s.mu.Unlock()
	if !ok {
		return "", ErrUnknownMonitorCommand
	}
	return handler(s), nil
}

func (s *Simulator) monitorResetInit() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs = [RegCount]uint32{}
	return "target reset (init): registers cleared, halted at entry\n"
}

func (s *Simulator) monitorResetHalt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs = [RegCount]uint32{}
	return "target reset (halt): registers cleared, core halted\n"
}

func appendLE32(dst []byte, v uint32) []byte {
	return append(dst, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func readLE32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
