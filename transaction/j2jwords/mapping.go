package j2jwords

import "github.com/sarchlab/lamlet/addr"

// RegMemMapping describes one byte-granular copy within a J2J transfer:
// byte RegWB/8 of register-side vline RegV is sourced from (or written to,
// for a store) byte MemWB/8 of memory-side vline MemV. NBits is always 8;
// original_source's j2j_mapping.py was not part of the retrieved excerpt
// (see DESIGN.md), so this is a from-scratch reconstruction of
// spec.md §4.7.1's RegMemMapping contract restricted to byte-aligned
// shifts, the common case a vline-misaligned access needs, rather than
// arbitrary sub-byte bit shifts.
type RegMemMapping struct {
	RegV, RegWB int
	MemV, MemWB int
	NBits       int
}

// shiftBytesOf returns how far base is offset from a vline (word)
// boundary: every register-side byte lane is rotated by this amount
// relative to its memory-side source.
func shiftBytesOf(wordBytes int, base uint64) int {
	if wordBytes == 0 {
		return 0
	}
	return int(base % uint64(wordBytes))
}

// mapMemToReg finds the unique (regV, regTag) a memory-side byte (memV,
// tag) feeds, given the transfer's byte shift. ok is false when the
// corresponding register vline falls outside [0, nVlines).
func mapMemToReg(wordBytes, shift, memV, tag, nVlines int) (regV, regTag int, ok bool) {
	regTag = ((tag-shift)%wordBytes + wordBytes) % wordBytes
	carry := 0
	if regTag+shift >= wordBytes {
		carry = 1
	}
	regV = memV - carry
	return regV, regTag, regV >= 0 && regV < nVlines
}

// mapRegToMem is mapMemToReg's inverse: given a register-side vline/tag,
// find the memory-side vline/tag it is sourced from (store direction).
func mapRegToMem(wordBytes, shift, regV, tag, nVlines int) (memV, memTag int, ok bool) {
	memTag = (tag + shift) % wordBytes
	carry := 0
	if tag+shift >= wordBytes {
		carry = 1
	}
	memV = regV + carry
	return memV, memTag, memV >= 0 && memV < nVlines
}

// localJInK permutes a jamlet-within-kamlet index under ordering o. It is
// its own inverse for every WordOrder this package supports (Standard is
// the identity, Reversed reverses the JInK population), mirroring
// addr.Ordering.VWIndex/FromVWIndex but scoped to one kamlet's population
// instead of the whole lamlet's, since a J2J transfer only ever moves data
// between jamlets of the single kamlet it was dispatched to.
func localJInK(o addr.Ordering, jInK, jInKCount int) int {
	switch o.WordOrder {
	case addr.Reversed:
		return jInKCount - 1 - jInK
	default:
		return jInK
	}
}
