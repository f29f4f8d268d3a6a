// Package cache implements the per-kamlet coalesced cache table: slot
// states, LRU victim selection, and the line fetch/eviction coordinator
// that ensures every jamlet in a kamlet sends exactly one packet per
// shared line request (spec.md §4.5).
package cache

import "fmt"

// State is a cache slot's coherence state.
type State int

const (
	Invalid State = iota
	Reading
	Shared
	Modified
	WritingReading
	Evicting
)

func (s State) String() string {
	switch s {
	case Invalid:
		return "INVALID"
	case Reading:
		return "READING"
	case Shared:
		return "SHARED"
	case Modified:
		return "MODIFIED"
	case WritingReading:
		return "WRITING_READING"
	case Evicting:
		return "EVICTING"
	default:
		return "UNKNOWN"
	}
}

// Slot is one cache line's bookkeeping.
type Slot struct {
	State State
	Addr  uint64 // line address (line index) this slot holds, valid unless Invalid
	Ident int    // outstanding fetch/eviction ident, valid while not Shared/Modified/Invalid

	lastUsed uint64
}

// Table is one kamlet's coalesced cache table.
type Table struct {
	lineBytes int
	nSlots    int
	slots     []Slot
	byAddr    map[uint64]int // line addr -> slot index, for slots not Invalid

	nextIdent uint64
	clock     uint64 // logical LRU clock, bumped on every access
}

// New creates an empty n-slot cache table.
func New(nSlots, lineBytes int) *Table {
	return &Table{
		lineBytes: lineBytes,
		nSlots:    nSlots,
		slots:     make([]Slot, nSlots),
		byAddr:    make(map[uint64]int),
	}
}

// Lookup returns the slot index holding lineAddr, or -1 if not resident.
func (t *Table) Lookup(lineAddr uint64) int {
	idx, ok := t.byAddr[lineAddr]
	if !ok {
		return -1
	}
	return idx
}

// IsAvailable reports whether the slot at idx is usable for a read or
// write right now: resident (SHARED or MODIFIED) and not mid-transition.
func (t *Table) IsAvailable(idx int) bool {
	if idx < 0 {
		return false
	}
	s := t.slots[idx].State
	return s == Shared || s == Modified
}

// Touch marks idx as the most-recently-used slot, for LRU victim
// selection.
func (t *Table) Touch(idx int) {
	t.clock++
	t.slots[idx].lastUsed = t.clock
}

// RequestLine starts a line fetch for lineAddr: selects (evicting an LRU
// victim if necessary) a slot, transitions it to READING or
// WRITING_READING, and returns the slot index, the assigned ident, and
// whether a write-back of a dirty victim is required first.
func (t *Table) RequestLine(lineAddr uint64) (slotIdx int, ident int, needsWriteback bool, evictedAddr uint64) {
	if idx := t.Lookup(lineAddr); idx >= 0 {
		panic(fmt.Sprintf("cache: line %d already resident in slot %d", lineAddr, idx))
	}

	idx := t.findFreeOrVictim()
	victim := t.slots[idx]
	needsWriteback = victim.State == Modified
	if needsWriteback {
		evictedAddr = victim.Addr
	}
	if victim.State != Invalid {
		delete(t.byAddr, victim.Addr)
	}

	id := int(t.nextIdent)
	t.nextIdent++

	state := Reading
	if needsWriteback {
		state = WritingReading
	}

	t.slots[idx] = Slot{State: state, Addr: lineAddr, Ident: id}
	t.byAddr[lineAddr] = idx
	t.Touch(idx)
	return idx, id, needsWriteback, evictedAddr
}

func (t *Table) findFreeOrVictim() int {
	for i, s := range t.slots {
		if s.State == Invalid {
			return i
		}
	}
	victim := 0
	for i, s := range t.slots {
		if s.lastUsed < t.slots[victim].lastUsed && s.State != Reading && s.State != WritingReading && s.State != Evicting {
			victim = i
		}
	}
	return victim
}

// CompleteFetch transitions a READING/WRITING_READING slot to SHARED
// once all j_in_k responses have arrived.
func (t *Table) CompleteFetch(idx int) {
	s := &t.slots[idx]
	if s.State != Reading && s.State != WritingReading {
		panic("cache: CompleteFetch on a slot that is not fetching")
	}
	s.State = Shared
}

// MarkModified transitions a resident slot to MODIFIED (a write
// occurred).
func (t *Table) MarkModified(idx int) {
	t.slots[idx].State = Modified
}

// RequestEviction starts a write-back for a MODIFIED slot, returning
// the ident to correlate with the WRITE_LINE_RESP.
func (t *Table) RequestEviction(idx int) int {
	s := &t.slots[idx]
	if s.State != Modified {
		panic("cache: RequestEviction on a slot that is not MODIFIED")
	}
	id := int(t.nextIdent)
	t.nextIdent++
	s.State = Evicting
	s.Ident = id
	return id
}

// CompleteEviction frees a slot once WRITE_LINE_RESP has arrived from
// every jamlet.
func (t *Table) CompleteEviction(idx int) {
	s := &t.slots[idx]
	if s.State != Evicting {
		panic("cache: CompleteEviction on a slot that is not EVICTING")
	}
	delete(t.byAddr, s.Addr)
	*s = Slot{State: Invalid}
}

// Slot returns a copy of the slot at idx, for read-only inspection.
func (t *Table) Slot(idx int) Slot { return t.slots[idx] }

// NumSlots returns the table's slot count.
func (t *Table) NumSlots() int { return t.nSlots }
