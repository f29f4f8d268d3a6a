// Package kamlet implements one tile of the lamlet grid: the jamlets it
// owns, the shared coalesced cache table and line fetch/eviction
// coordinator (spec.md §4.5), the register-file hazard tracker, and the
// per-cycle run loop that drives every registered waiting item's
// MonitorKamlet/Ready/Finalize hooks.
//
// Grounded on original_source/python/zamlet/kamlet/kamlet.py for the
// run-loop shape and on the teacher's cgra.Tile (cgra/tile.go, now
// deleted from this tree) for the "component owns its children, steps
// them in a fixed sub-phase order" idiom.
package kamlet

import (
	"fmt"

	"github.com/sarchlab/lamlet/addr"
	"github.com/sarchlab/lamlet/cache"
	"github.com/sarchlab/lamlet/jamlet"
	"github.com/sarchlab/lamlet/message"
	"github.com/sarchlab/lamlet/monitor"
	"github.com/sarchlab/lamlet/regfile"
	"github.com/sarchlab/lamlet/scalarmem"
	syncpkg "github.com/sarchlab/lamlet/sync"
	"github.com/sarchlab/lamlet/witem"
)

// Instruction is implemented by every concrete transaction constructor in
// package transaction. Dispatch creates the witem.Item that realizes the
// instruction and registers it on whichever jamlets/kamlets it needs.
type Instruction interface {
	Dispatch(k *Kamlet) witem.Item
}

// lineFetch tracks one in-flight cache-line fetch or eviction: which of
// this kamlet's jamlets still need to send their packet, and how many
// responses have arrived.
type lineFetch struct {
	slotIdx        int
	lineAddr       uint64
	sent           []bool
	responded      []bool
	evictedAddr    uint64
	needsWriteback bool
}

// lineEviction tracks one standalone write-back (WRITE_LINE), as
// opposed to the combined evict-and-refill a lineFetch can carry.
type lineEviction struct {
	slotIdx   int
	lineAddr  uint64
	sent      []bool
	responded []bool
}

// Kamlet is one tile: j_in_k jamlets, a shared cache table, a register
// file, and pointers to the lamlet-wide TLB and synchronizer network.
type Kamlet struct {
	index int
	p     addr.Params

	jamlets []*jamlet.Jamlet

	cache       *cache.Table
	stripeBytes int

	rf      *regfile.File
	tlb     *addr.TLB
	syncNet *syncpkg.Network
	scalar  *scalarmem.Store

	items     map[int]witem.Item
	fetches   map[int]*lineFetch
	evictions map[int]*lineEviction

	// memletX, memletY is the coordinate of the memlet this kamlet routes
	// coherence traffic to, chosen (left/right) per the even-k_cols split
	// addr.Params.Validate documents.
	memletX, memletY int

	mon monitor.Hooks
}

// New creates a kamlet. jamlets must already be constructed and placed at
// their lamlet-wide coordinates; New wires each jamlet's cache-response
// callback back into this kamlet.
func New(p addr.Params, index int, jamlets []*jamlet.Jamlet, tlb *addr.TLB, syncNet *syncpkg.Network, scalar *scalarmem.Store, memletX, memletY int) *Kamlet {
	stripe := p.CacheLineBytes / p.JInK()
	nSlots := 0
	if stripe > 0 {
		nSlots = p.JamletSRAMBytes / stripe
	}

	k := &Kamlet{
		index: index, p: p,
		jamlets:     jamlets,
		cache:       cache.New(nSlots, stripe),
		stripeBytes: stripe,
		rf:          regfile.New(),
		tlb:         tlb,
		syncNet:     syncNet,
		scalar:      scalar,
		items:       make(map[int]witem.Item),
		fetches:     make(map[int]*lineFetch),
		evictions:   make(map[int]*lineEviction),
		memletX:     memletX, memletY: memletY,
		mon: monitor.NopHooks{},
	}
	for _, j := range jamlets {
		j.OnCacheResponse(k.handleCacheResponse)
		j.SetCacheBackend(k)
	}
	return k
}

// WithMonitor installs the observability hooks this kamlet and its
// jamlets report activity to.
func (k *Kamlet) WithMonitor(m monitor.Hooks) {
	k.mon = m
	for _, j := range k.jamlets {
		j.WithMonitor(m)
	}
}

// KIndex, NJamlets, JamletAt, RegisterItem, UnregisterItem implement
// witem.Kamlet.
func (k *Kamlet) KIndex() int    { return k.index }
func (k *Kamlet) NJamlets() int  { return len(k.jamlets) }
func (k *Kamlet) JamletAt(i int) witem.Jamlet { return k.jamlets[i] }

func (k *Kamlet) RegisterItem(ident int, it witem.Item)  { k.items[ident] = it }
func (k *Kamlet) UnregisterItem(ident int)               { delete(k.items, ident) }

// ConcreteJamlet returns the underlying *jamlet.Jamlet at local index i,
// for callers (package transaction, package lamlet) that need the wider
// surface beyond witem.Jamlet.
func (k *Kamlet) ConcreteJamlet(i int) *jamlet.Jamlet { return k.jamlets[i] }

// Params exposes the lamlet-wide geometry.
func (k *Kamlet) Params() addr.Params { return k.p }

// RegFile exposes the register hazard tracker.
func (k *Kamlet) RegFile() *regfile.File { return k.rf }

// TLB exposes the lamlet-wide page table.
func (k *Kamlet) TLB() *addr.TLB { return k.tlb }

// Sync exposes the lamlet-wide synchronizer network.
func (k *Kamlet) Sync() *syncpkg.Network { return k.syncNet }

// ScalarMem exposes the lamlet-wide scalar memory.
func (k *Kamlet) ScalarMem() *scalarmem.Store { return k.scalar }

// StripeBytes returns the per-jamlet byte stripe of one cache line.
func (k *Kamlet) StripeBytes() int { return k.stripeBytes }

// Dispatch creates instr's waiting item and begins driving it.
func (k *Kamlet) Dispatch(instr Instruction) witem.Item {
	it := instr.Dispatch(k)
	k.items[it.InstrIdent()] = it
	k.mon.WitemCreated(k.index, it.InstrIdent(), fmt.Sprintf("%T", instr))
	return it
}

// EnsureLineResident reports whether the cache line containing byteAddr
// (a jamlet-local address, as produced by addr.KMAddr.Addr) is currently
// SHARED or MODIFIED in jInKIndex's jamlet's cache. If not, it starts (or
// continues) the fetch protocol and returns false; callers must poll
// again on a later cycle. On true, slotIdx is the slot whose byte range
// [slotIdx*StripeBytes, (slotIdx+1)*StripeBytes) in jamlets[jInKIndex]'s
// SRAM holds the line.
func (k *Kamlet) EnsureLineResident(jInKIndex int, byteAddr uint64) (ready bool, slotIdx int) {
	lineAddr := k.lineAddrOf(byteAddr)
	idx := k.cache.Lookup(lineAddr)
	if idx >= 0 && k.cache.IsAvailable(idx) {
		k.cache.Touch(idx)
		return true, idx
	}
	if idx >= 0 {
		return false, idx // fetch already in flight
	}

	slot, ident, needsWriteback, evictedAddr := k.cache.RequestLine(lineAddr)
	k.fetches[ident] = &lineFetch{
		slotIdx: slot, lineAddr: lineAddr,
		sent: make([]bool, len(k.jamlets)), responded: make([]bool, len(k.jamlets)),
		evictedAddr: evictedAddr, needsWriteback: needsWriteback,
	}
	return false, slot
}

// MarkLineModified records that jInKIndex's copy of the line containing
// byteAddr has been written (the line must already be resident).
func (k *Kamlet) MarkLineModified(jInKIndex int, byteAddr uint64) {
	idx := k.cache.Lookup(k.lineAddrOf(byteAddr))
	k.cache.MarkModified(idx)
}

func (k *Kamlet) lineAddrOf(byteAddr uint64) uint64 {
	if k.stripeBytes == 0 {
		return 0
	}
	return byteAddr / uint64(k.stripeBytes)
}

// Step runs one cycle: drives in-flight cache fetches, lets every
// registered item monitor the kamlet and its jamlets, finalizes items
// that report Ready, then steps each jamlet's send/receive/router
// sub-phases.
func (k *Kamlet) Step() {
	k.driveFetches()
	k.driveEvictions()

	order := k.itemOrder()
	for _, ident := range order {
		it, ok := k.items[ident]
		if !ok {
			continue
		}
		it.MonitorKamlet(k)
	}
	for _, j := range k.jamlets {
		j.MonitorAll(order)
	}

	for _, ident := range order {
		it, ok := k.items[ident]
		if !ok || !it.Ready() {
			continue
		}
		it.Finalize(k)
		delete(k.items, ident)
	}

	for _, j := range k.jamlets {
		j.StepSend()
	}
	for _, j := range k.jamlets {
		j.StepRouters()
	}
	for _, j := range k.jamlets {
		j.StepReceive()
	}
}

// PeekLocalByte reads byteAddr through the cache when its line is
// resident, reporting ok=false otherwise. Harness-side only.
func (k *Kamlet) PeekLocalByte(jInKIndex int, byteAddr uint64) (b byte, ok bool) {
	idx := k.cache.Lookup(k.lineAddrOf(byteAddr))
	if idx < 0 || !k.cache.IsAvailable(idx) {
		return 0, false
	}
	off := idx*k.stripeBytes + int(byteAddr)%k.stripeBytes
	return k.jamlets[jInKIndex].ReadSRAM(off, 1)[0], true
}

// PokeLocalByte writes byteAddr through the cache when its line is
// resident, marking the line dirty; reports whether it hit.
// Harness-side only.
func (k *Kamlet) PokeLocalByte(jInKIndex int, byteAddr uint64, b byte) bool {
	idx := k.cache.Lookup(k.lineAddrOf(byteAddr))
	if idx < 0 || !k.cache.IsAvailable(idx) {
		return false
	}
	off := idx*k.stripeBytes + int(byteAddr)%k.stripeBytes
	k.jamlets[jInKIndex].WriteSRAM(off, []byte{b})
	k.cache.MarkModified(idx)
	return true
}

// Busy reports whether this kamlet still has live waiting items or
// in-flight cache line fetches or write-backs.
func (k *Kamlet) Busy() bool {
	return len(k.items) > 0 || len(k.fetches) > 0 || len(k.evictions) > 0
}

// FlushDirtyLines starts a WRITE_LINE write-back for every MODIFIED
// slot, returning how many it started. Evicted slots become INVALID
// once every jamlet's WRITE_LINE_RESP has arrived; callers poll Busy.
func (k *Kamlet) FlushDirtyLines() int {
	started := 0
	for idx := 0; idx < k.cache.NumSlots(); idx++ {
		s := k.cache.Slot(idx)
		if s.State != cache.Modified {
			continue
		}
		ident := k.cache.RequestEviction(idx)
		k.evictions[ident] = &lineEviction{
			slotIdx: idx, lineAddr: s.Addr,
			sent: make([]bool, len(k.jamlets)), responded: make([]bool, len(k.jamlets)),
		}
		started++
	}
	return started
}

// Update resets every per-cycle queue token owned by this kamlet's
// jamlets.
func (k *Kamlet) Update() {
	for _, j := range k.jamlets {
		j.Update()
	}
}

func (k *Kamlet) itemOrder() []int {
	order := make([]int, 0, len(k.items))
	for ident := range k.items {
		order = append(order, ident)
	}
	// Deterministic order: ascending ident, so replay is reproducible.
	// Idents come from the lamlet's wrapping ident ring (allocIdent), so
	// after a wrap this order is not dispatch order.
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && order[j-1] > order[j]; j-- {
			order[j-1], order[j] = order[j], order[j-1]
		}
	}
	return order
}

func (k *Kamlet) driveFetches() {
	for ident, f := range k.fetches {
		for i, j := range k.jamlets {
			if f.sent[i] {
				continue
			}
			var h message.Header
			if f.needsWriteback {
				payload := j.ReadSRAM(f.slotIdx*k.stripeBytes, k.stripeBytes)
				h = message.NewBuilder(message.WriteLineReadLine).
					WithSource(j.Coords()).WithTarget(k.memletX, k.memletY).
					WithIdent(ident).WithAddress(f.lineAddr).WithOldAddress(f.evictedAddr).
					WithNBytes(k.stripeBytes).WithPayload(payload).BuildAddress()
			} else {
				h = message.NewBuilder(message.ReadLine).
					WithSource(j.Coords()).WithTarget(k.memletX, k.memletY).
					WithIdent(ident).WithAddress(f.lineAddr).WithNBytes(k.stripeBytes).
					BuildAddress()
			}
			if j.Send(h) {
				f.sent[i] = true
			}
		}
	}
}

func (k *Kamlet) driveEvictions() {
	for ident, ev := range k.evictions {
		for i, j := range k.jamlets {
			if ev.sent[i] {
				continue
			}
			payload := j.ReadSRAM(ev.slotIdx*k.stripeBytes, k.stripeBytes)
			h := message.NewBuilder(message.WriteLine).
				WithSource(j.Coords()).WithTarget(k.memletX, k.memletY).
				WithIdent(ident).WithAddress(ev.lineAddr).
				WithNBytes(k.stripeBytes).WithPayload(payload).BuildAddress()
			if j.Send(h) {
				ev.sent[i] = true
			}
		}
	}
}

func (k *Kamlet) handleCacheResponse(jInKIndex int, h message.Header) {
	b := h.Base()

	if b.MessageType == message.WriteLineResp {
		ev, ok := k.evictions[b.Ident]
		if !ok || ev.responded[jInKIndex] {
			return
		}
		ev.responded[jInKIndex] = true
		for _, r := range ev.responded {
			if !r {
				return
			}
		}
		k.cache.CompleteEviction(ev.slotIdx)
		delete(k.evictions, b.Ident)
		return
	}

	f, ok := k.fetches[b.Ident]
	if !ok {
		return
	}
	if b.MessageType == message.WriteLineReadLineDrop {
		f.sent[jInKIndex] = false // memlet had no room; resend
		return
	}
	if f.responded[jInKIndex] {
		return
	}
	f.responded[jInKIndex] = true

	if ah, ok := h.(*message.AddressHeader); ok && len(ah.Payload) > 0 {
		k.jamlets[jInKIndex].WriteSRAM(f.slotIdx*k.stripeBytes, ah.Payload)
	}

	for _, r := range f.responded {
		if !r {
			return
		}
	}

	k.cache.CompleteFetch(f.slotIdx)
	delete(k.fetches, b.Ident)
}
