// Package cancel provides the single piece of state shared between the
// session loop, the interrupt watcher, and the command dispatcher: the
// cancellation flag that a 0x03 byte sets and that a pending vCont;c clears
// after consuming it (spec.md §3 "Cancellation signal", §5).
package cancel

import "sync/atomic"

// Flag is a sequentially-consistent boolean, set by the interrupt watcher
// and observed/cleared by the dispatcher immediately after RunUntilStop
// returns. Modelled on Daedaluz-goserial's use of sync/atomic for
// cross-goroutine device state (its AsyncFlags bitfield), generalized to a
// single bool since only one cancellation target exists per spec.md §5.
type Flag struct {
	v atomic.Bool
}

// Set records an interrupt. Safe to call concurrently with Load/Clear/Take.
func (f *Flag) Set() { f.v.Store(true) }

// Load reports whether the flag is currently set.
func (f *Flag) Load() bool { return f.v.Load() }

// Clear resets the flag.
func (f *Flag) Clear() { f.v.Store(false) }

// Take atomically reads and clears the flag, returning the value it held.
// The dispatcher calls it just before RunUntilStop, so a stale interrupt
// from a previous, already-answered vCont;c can never leak into the next
// one, and again right after RunUntilStop returns, to learn whether this
// run was interrupted.
func (f *Flag) Take() bool { return f.v.Swap(false) }
