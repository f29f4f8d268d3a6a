// Package regfile implements the per-kamlet register-file hazard tracker:
// every waiting-item that touches vector registers acquires an rf_ident
// up front (start) naming its read/write sets, and releases it (finish)
// once the transaction completes. A later item's reads/writes that
// overlap an outstanding item's write set must wait.
//
// Grounded on the rf_info.start/finish call pattern visible in
// original_source/python/zamlet/transactions/load_gather_base.py and
// store_scatter_base.py (register_file_slot.py itself was not part of
// the retrieved excerpt; the tracker below is a from-scratch
// reconstruction of the contract those call sites require).
package regfile

// Ident identifies one outstanding register-file reservation.
type Ident int

type reservation struct {
	readRegs  map[int]bool
	writeRegs map[int]bool
}

// File tracks outstanding reservations for one kamlet's register file.
type File struct {
	next   Ident
	active map[Ident]*reservation
}

// New creates an empty hazard tracker.
func New() *File {
	return &File{active: make(map[Ident]*reservation)}
}

// CanStart reports whether a new reservation over readRegs/writeRegs
// would be free of hazards against every outstanding reservation: a
// write conflicts with any outstanding read or write to the same
// register; a read conflicts only with an outstanding write.
func (f *File) CanStart(readRegs, writeRegs []int) bool {
	for _, r := range f.active {
		for _, w := range writeRegs {
			if r.readRegs[w] || r.writeRegs[w] {
				return false
			}
		}
		for _, rd := range readRegs {
			if r.writeRegs[rd] {
				return false
			}
		}
	}
	return true
}

// Start allocates a new reservation. Callers must check CanStart first;
// Start does not itself block or queue.
func (f *File) Start(readRegs, writeRegs []int) Ident {
	id := f.next
	f.next++
	f.active[id] = &reservation{
		readRegs:  toSet(readRegs),
		writeRegs: toSet(writeRegs),
	}
	return id
}

// Finish releases a reservation. readRegs/writeRegs are accepted (rather
// than inferred from the stored reservation) because a waiting-item's
// final read/write sets can differ from what it declared at Start time,
// e.g. a mask register discovered only once the transaction's real shape
// is known. Both are ignored for bookkeeping beyond removing the
// reservation; callers pass them to mirror the reference model's
// call signature.
func (f *File) Finish(id Ident, readRegs, writeRegs []int) {
	delete(f.active, id)
}

func toSet(regs []int) map[int]bool {
	s := make(map[int]bool, len(regs))
	for _, r := range regs {
		s[r] = true
	}
	return s
}
