package addr

import "fmt"

// TLB maps page-aligned global addresses to PageInfo, and accumulates the
// non-idempotent scalar access log spec.md §6.2 requires for test
// verification.
type TLB struct {
	params Params
	pages  map[uint64]PageInfo

	nonIdempotentLog []ScalarAddr
}

// NewTLB creates an empty TLB (every page starts Unallocated).
func NewTLB(params Params) *TLB {
	return &TLB{
		params: params,
		pages:  make(map[uint64]PageInfo),
	}
}

// Allocate maps the pages covering [global, global+size) to the given
// memory type and (for VPU pages) ordering. Returns an error if any
// covered page is already allocated, since re-allocation is a harness bug,
// not a simulated fault.
func (t *TLB) Allocate(global GlobalAddress, size int, memType MemoryType, ordering Ordering) error {
	if memType == Unallocated {
		return fmt.Errorf("addr: cannot allocate a page as Unallocated")
	}

	firstPage := global.Page(t.params.PageBytes)
	lastByte := global.Addr() + uint64(size) - 1
	lastPage := (GlobalAddress{BitAddr: lastByte * 8}).Page(t.params.PageBytes)

	for pg := firstPage; pg <= lastPage; pg++ {
		if info, ok := t.pages[pg]; ok && info.MemoryType != Unallocated {
			return fmt.Errorf("addr: page %d is already allocated", pg)
		}
		t.pages[pg] = PageInfo{MemoryType: memType, Ordering: ordering}
	}
	return nil
}

// GetPageInfo returns the PageInfo for the page containing addr. An
// unmapped page reports MemoryType == Unallocated, which callers must
// treat as a page fault (spec.md §6.3/§7).
func (t *TLB) GetPageInfo(addr GlobalAddress) PageInfo {
	pg := addr.Page(t.params.PageBytes)
	info, ok := t.pages[pg]
	if !ok {
		return PageInfo{MemoryType: Unallocated}
	}
	return info
}

// LogNonIdempotentAccess records a read or write to a non-idempotent
// scalar address, in the order it occurred.
func (t *TLB) LogNonIdempotentAccess(a ScalarAddr) {
	t.nonIdempotentLog = append(t.nonIdempotentLog, a)
}

// NonIdempotentAccessLog returns the recorded non-idempotent scalar
// accesses, in access order.
func (t *TLB) NonIdempotentAccessLog() []ScalarAddr {
	return t.nonIdempotentLog
}
