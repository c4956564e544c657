package codegen

import "math"

// literalEntry is one address-stable double in the pool.
type literalEntry struct {
	value float64
}

// literalPool interns each distinct double the emitter loads by absolute
// address (§3 "Literal pool", C2). It is backed by a slice of *literalEntry
// rather than a flat []float64: once intern hands out a pointer and the
// emitter bakes that address into the code buffer, growing the pool must
// never relocate that entry. Appending to entries can reallocate the slice
// that holds the pointers, but never the literalEntry values each pointer
// already addresses — satisfying §3's "must remain valid for the lifetime
// of every executable page it backs" without a custom allocator.
type literalPool struct {
	byBits  map[uint64]*literalEntry
	entries []*literalEntry
}

func newLiteralPool() *literalPool {
	return &literalPool{byBits: make(map[uint64]*literalEntry)}
}

// intern returns a stable address for v, coalescing to a previously
// interned entry when v was already seen (§4.2). Entries are keyed by bit
// pattern, not by float comparison: 0.0 and -0.0 stay distinct entries (the
// negation mask relies on -0.0's sign bit), and a NaN coalesces with an
// earlier NaN of the same bits.
func (p *literalPool) intern(v float64) *float64 {
	bits := math.Float64bits(v)
	if e, ok := p.byBits[bits]; ok {
		return &e.value
	}
	e := &literalEntry{value: v}
	p.byBits[bits] = e
	p.entries = append(p.entries, e)
	return &e.value
}

func (p *literalPool) len() int { return len(p.entries) }
