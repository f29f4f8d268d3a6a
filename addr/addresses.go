package addr

// MemoryType classifies a page's backing store, per spec.md §3.2.
type MemoryType int

const (
	Unallocated MemoryType = iota
	VPU
	ScalarIdempotent
	ScalarNonIdempotent
)

// GlobalAddress identifies a bit in the lamlet-global memory map.
type GlobalAddress struct {
	BitAddr uint64
}

// Addr returns the byte address (BitAddr truncated to a byte boundary).
func (g GlobalAddress) Addr() uint64 { return g.BitAddr / 8 }

// BitOffset returns a new GlobalAddress offset by the given number of bits
// (may be negative, mirroring the reference model's bit_offset helper used
// to align to a word boundary).
func (g GlobalAddress) BitOffset(bits int64) GlobalAddress {
	return GlobalAddress{BitAddr: uint64(int64(g.BitAddr) + bits)}
}

// Page returns the page-aligned index this address falls in.
func (g GlobalAddress) Page(pageBytes int) uint64 {
	return g.Addr() / uint64(pageBytes)
}

// PageByteOffset returns the byte offset of this address within its page.
func (g GlobalAddress) PageByteOffset(pageBytes int) uint64 {
	return g.Addr() % uint64(pageBytes)
}

// KMAddr identifies a bit inside a specific kamlet's interleaved address
// space: the jamlet owning it (KIndex, JInKIndex) plus a byte address local
// to that jamlet's share of the kamlet's memory.
type KMAddr struct {
	Addr      uint64 // byte address, local to the owning jamlet
	KIndex    int
	JInKIndex int
	Ordering  Ordering
}

// BitOffset returns a copy of this KMAddr shifted by bits.
func (k KMAddr) BitOffset(bits int64) KMAddr {
	k2 := k
	k2.Addr = uint64(int64(k.Addr*8) + bits) / 8
	return k2
}

// JSAddr identifies a bit inside a specific jamlet's own SRAM. In this
// implementation a KMAddr's local Addr field already denotes the owning
// jamlet's SRAM offset, so JSAddr is a thin, explicitly-scoped view of it.
type JSAddr struct {
	BitAddr   uint64
	KIndex    int
	JInKIndex int
}

// ToJSAddr narrows a KMAddr to the jamlet-local SRAM address it designates.
func (k KMAddr) ToJSAddr() JSAddr {
	return JSAddr{BitAddr: k.Addr * 8, KIndex: k.KIndex, JInKIndex: k.JInKIndex}
}

// ScalarAddr identifies a byte in the scalar memory space.
type ScalarAddr uint64

// PageInfo is what the TLB returns for a page-aligned address.
type PageInfo struct {
	MemoryType MemoryType
	Ordering   Ordering // meaningful only when MemoryType == VPU
}

// ToKMAddr resolves a VPU-backed global address to its owning jamlet and
// jamlet-local byte address, striping WordBytes-sized words round-robin
// across the lamlet's JInL jamlets in the page's word-order.
func (g GlobalAddress) ToKMAddr(params Params, info PageInfo) KMAddr {
	wordBytes := uint64(params.WordBytes)
	jInL := uint64(params.JInL())
	pageWords := uint64(params.PageBytes) / wordBytes

	pageIdx := g.Page(params.PageBytes)
	byteInPage := g.PageByteOffset(params.PageBytes)
	wordIdx := byteInPage / wordBytes
	byteInWord := byteInPage % wordBytes

	vw := int(wordIdx % jInL)
	vlineWordIdx := wordIdx / jInL

	kIndex, jInKIndex := info.Ordering.FromVWIndex(params, vw)

	wordsPerJamletPerPage := pageWords / jInL
	localAddr := pageIdx*wordsPerJamletPerPage*wordBytes + vlineWordIdx*wordBytes + byteInWord

	return KMAddr{
		Addr:      localAddr,
		KIndex:    kIndex,
		JInKIndex: jInKIndex,
		Ordering:  info.Ordering,
	}
}

// ToScalarAddr resolves a scalar-backed global address to its flat scalar
// byte address (identity on the byte address; scalar memory is not
// striped).
func (g GlobalAddress) ToScalarAddr() ScalarAddr {
	return ScalarAddr(g.Addr())
}
