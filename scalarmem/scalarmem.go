// Package scalarmem implements the lamlet's flat scalar memory space.
// Unlike vector memory, scalar addresses are not striped across jamlets
// (spec.md §3.2's GlobalAddress.ToScalarAddr is the identity on the byte
// address), so a scalar access needs no mesh routing at all: it is
// answered directly by a single shared store, the same router-bypass
// precedent package memlet documents for DRAM.
package scalarmem

import "github.com/sarchlab/lamlet/addr"

// Store is the lamlet-wide scalar memory, shared by every kamlet the way
// addr.TLB and sync.Network are shared.
type Store struct {
	mem map[addr.ScalarAddr][]byte
}

// New creates an empty scalar memory.
func New() *Store {
	return &Store{mem: make(map[addr.ScalarAddr][]byte)}
}

// Read returns n bytes starting at a, zero-filled if never written.
func (s *Store) Read(a addr.ScalarAddr, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		if b, ok := s.mem[a+addr.ScalarAddr(i)]; ok && len(b) > 0 {
			out[i] = b[0]
		}
	}
	return out
}

// Write stores data starting at a.
func (s *Store) Write(a addr.ScalarAddr, data []byte) {
	for i, b := range data {
		s.mem[a+addr.ScalarAddr(i)] = []byte{b}
	}
}
