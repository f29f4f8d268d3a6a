// Package gatherscatter implements the strided and indexed vector
// load/store transactions (spec.md §4.7.1/§4.7.2): VLoad/VStore and
// their gather/scatter variants, dispatched once per kamlet by
// package lamlet's SIMD lock-step driver.
//
// Grounded on original_source/python/zamlet/transactions/load_gather_base.py
// and store_scatter_base.py. Two simplifications are carried over from
// those files' own structure, both recorded in DESIGN.md:
//
//   - A request is only ever issued for an element-start byte lane (the
//     reference model's "eb == 0" fast path), fetching the whole
//     ew/8-byte element in one packet rather than splitting it into
//     byte-granular requests that may straddle a page boundary.
//   - A scatter-store's fault-sync runs over its own InstrIdent and its
//     completion-sync over (InstrIdent+1) mod MaxResponseTags, exactly as
//     store_scatter_base.py runs two independent synchronizer instances
//     per instruction.
package gatherscatter

import (
	"github.com/sarchlab/lamlet/addr"
	"github.com/sarchlab/lamlet/kamlet"
	"github.com/sarchlab/lamlet/message"
	"github.com/sarchlab/lamlet/sync"
	"github.com/sarchlab/lamlet/witem"
)

// AddressMode selects how a gather/scatter computes each element's
// GlobalAddress.
type AddressMode int

const (
	// Strided computes element i's address as Base + i*Stride.
	Strided AddressMode = iota
	// Indexed reads a per-element byte offset from IndexReg, laid out the
	// same way the data register is (one offset per vector lane).
	Indexed
)

// registerOrdering is the fixed (non-permuted) word order every vector
// register file slice is laid out under; unlike VPU memory, register
// placement is not page-governed, so no Ordering from the TLB applies.
var registerOrdering = addr.Ordering{WordOrder: addr.Standard}

// LoadGather is a strided or indexed vector load (kamlet.Instruction).
type LoadGather struct {
	InstrIdent int
	DstReg     int
	Mode       AddressMode
	Base       addr.GlobalAddress
	Stride     int64 // bytes, used when Mode == Strided
	IndexReg   int   // used when Mode == Indexed
	MaskReg    int   // -1 if unmasked
	StartIndex int
	VL         int
	EW         int // element width, bits
}

// Dispatch implements kamlet.Instruction.
func (lg *LoadGather) Dispatch(k *kamlet.Kamlet) witem.Item {
	it := newItem(k, lg.InstrIdent, false, lg.DstReg, 0, lg.Mode, lg.Base, lg.Stride,
		lg.IndexReg, lg.MaskReg, lg.StartIndex, lg.VL, lg.EW)
	it.register(k)
	return it
}

// StoreScatter is a strided or indexed vector store (kamlet.Instruction).
type StoreScatter struct {
	InstrIdent int
	SrcReg     int
	Mode       AddressMode
	Base       addr.GlobalAddress
	Stride     int64
	IndexReg   int
	MaskReg    int
	StartIndex int
	VL         int
	EW         int
}

// Dispatch implements kamlet.Instruction.
func (ss *StoreScatter) Dispatch(k *kamlet.Kamlet) witem.Item {
	it := newItem(k, ss.InstrIdent, true, 0, ss.SrcReg, ss.Mode, ss.Base, ss.Stride,
		ss.IndexReg, ss.MaskReg, ss.StartIndex, ss.VL, ss.EW)
	it.register(k)
	return it
}

type elementState struct {
	globalIndex  int
	regJInK      int
	within       int
	elementBytes int
	masked       bool
	resolved     bool
	memType      addr.MemoryType
	fault        bool
	skipped      bool
	kTarget      int
	jTarget      int
	byteOff      uint64
	scalarAddr   addr.ScalarAddr
	scalarDone   bool
	state        witem.ProtocolState
}

// item is the waiting-item shared by LoadGather and StoreScatter: the
// per-transaction control flow differs only in which register and
// which tags the fault/completion synchronizer runs under.
type item struct {
	instrIdent int
	isStore    bool
	dstReg     int
	srcReg     int
	mode       AddressMode
	base       addr.GlobalAddress
	stride     int64
	indexReg   int
	maskReg    int
	startIndex int
	vl         int
	ew         int
	p          addr.Params

	elems []*elementState

	faultSyncDone   bool
	globalMinFault  *int
	completionIdent sync.Ident
	completionDone  bool

	faultElement *int
}

func newItem(k *kamlet.Kamlet, instrIdent int, isStore bool, dstReg, srcReg int, mode AddressMode,
	base addr.GlobalAddress, stride int64, indexReg, maskReg, startIndex, vl, ew int) *item {
	p := k.Params()
	elementBytes := ew / 8

	it := &item{
		instrIdent: instrIdent, isStore: isStore, dstReg: dstReg, srcReg: srcReg,
		mode: mode, base: base, stride: stride, indexReg: indexReg, maskReg: maskReg,
		startIndex: startIndex, vl: vl, ew: ew, p: p,
	}

	// Two barriers per instruction: fault-sync on the instruction ident,
	// completion-sync on the next ring slot. Loads run the fault-sync
	// too, so elements at or past the lamlet-wide minimum faulting
	// element are never delivered to the destination register.
	it.completionIdent = sync.Ident((instrIdent + 1) % maxOr1(p.MaxResponseTags))

	for i := 0; i < vl; i++ {
		ge := startIndex + i
		vw := ge % p.JInL()
		regK, regJ := registerOrdering.FromVWIndex(p, vw)
		if regK != k.KIndex() {
			continue
		}
		it.elems = append(it.elems, &elementState{
			globalIndex:  ge,
			regJInK:      regJ,
			within:       ge / p.JInL(),
			elementBytes: elementBytes,
			state:        witem.Initial,
		})
	}
	return it
}

func maxOr1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

func (it *item) InstrIdent() int { return it.instrIdent }

func (it *item) register(k *kamlet.Kamlet) {
	seen := map[int]bool{}
	for _, e := range it.elems {
		if !seen[e.regJInK] {
			seen[e.regJInK] = true
			k.ConcreteJamlet(e.regJInK).RegisterItem(it.instrIdent, it)
		}
	}
}

func (it *item) regByteOffset(e *elementState) int {
	return regByteOffsetFor(it.p, it.regOf(), e.within)
}

func regByteOffsetFor(p addr.Params, reg, within int) int {
	return (reg + within) * p.WordBytes
}

func (it *item) regOf() int {
	if it.isStore {
		return it.srcReg
	}
	return it.dstReg
}

// MonitorKamlet resolves each local element's target address (once),
// runs the fault-sync, then the shared completion-sync.
func (it *item) MonitorKamlet(k witem.Kamlet) {
	for _, e := range it.elems {
		if e.resolved {
			continue
		}
		it.resolveElement(k, e)
	}

	if !it.faultSyncDone {
		for _, e := range it.elems {
			if e.resolved && !e.masked && e.state == witem.Initial {
				e.state = witem.WaitingInCaseFault
			}
		}
		local := it.localMinFault()
		k.Sync().LocalEvent(sync.Ident(it.instrIdent), k.KIndex(), local)
		if k.Sync().IsComplete(sync.Ident(it.instrIdent), k.KIndex()) {
			it.globalMinFault = k.Sync().GetMinValue(sync.Ident(it.instrIdent), k.KIndex())
			it.faultSyncDone = true
			it.faultElement = it.globalMinFault
			for _, e := range it.elems {
				if it.globalMinFault != nil && e.globalIndex >= *it.globalMinFault {
					e.skipped = true
					e.state = witem.Complete
				}
			}
		}
		return
	}

	for _, e := range it.elems {
		if e.skipped || e.masked || e.fault {
			e.state = witem.Complete
			continue
		}
		if e.memType == addr.ScalarIdempotent || e.memType == addr.ScalarNonIdempotent {
			it.serviceScalar(k, e)
			continue
		}
		if e.memType == addr.Unallocated {
			e.fault = true
			if it.faultElement == nil {
				fe := e.globalIndex
				it.faultElement = &fe
			}
			e.state = witem.Complete
			continue
		}
		if e.state == witem.Initial || e.state == witem.WaitingInCaseFault {
			e.state = witem.NeedToSend
		}
	}

	if it.allComplete() {
		k.Sync().LocalEvent(it.completionIdent, k.KIndex(), nil)
		if k.Sync().IsComplete(it.completionIdent, k.KIndex()) {
			it.completionDone = true
		}
	}
}

func (it *item) resolveElement(k witem.Kamlet, e *elementState) {
	j := k.JamletAt(e.regJInK)

	if it.maskReg >= 0 {
		maskByte := j.ReadRF(regByteOffsetFor(it.p, it.maskReg, e.within), 1)
		e.masked = maskByte[0] == 0
	}
	if e.masked {
		e.resolved = true
		return
	}

	offsetBytes := int64(e.globalIndex-it.startIndex) * it.stride
	if it.mode == Indexed {
		idxBytes := j.ReadRF(regByteOffsetFor(it.p, it.indexReg, e.within), 8)
		var v int64
		for i := 7; i >= 0; i-- {
			v = v<<8 | int64(idxBytes[i])
		}
		offsetBytes = v
	}

	target := it.base.BitOffset(offsetBytes * 8)
	info := k.TLB().GetPageInfo(target)
	e.memType = info.MemoryType

	switch info.MemoryType {
	case addr.VPU:
		km := target.ToKMAddr(it.p, info)
		e.kTarget, e.jTarget = km.KIndex, km.JInKIndex
		e.byteOff = km.Addr
	case addr.ScalarIdempotent, addr.ScalarNonIdempotent:
		e.scalarAddr = target.ToScalarAddr()
	default:
		// Unallocated: left for the fault path in MonitorKamlet.
	}
	e.resolved = true
}

func (it *item) localMinFault() *int {
	var min *int
	for _, e := range it.elems {
		if !e.resolved || e.masked {
			continue
		}
		if e.memType == addr.Unallocated {
			v := e.globalIndex
			if min == nil || v < *min {
				min = &v
			}
		}
	}
	return min
}

func (it *item) serviceScalar(k witem.Kamlet, e *elementState) {
	if e.scalarDone {
		return
	}
	if it.isStore {
		j := k.JamletAt(e.regJInK)
		data := j.ReadRF(it.regByteOffset(e), e.elementBytes)
		k.ScalarMem().Write(e.scalarAddr, data)
	} else {
		data := k.ScalarMem().Read(e.scalarAddr, e.elementBytes)
		j := k.JamletAt(e.regJInK)
		j.WriteRF(it.regByteOffset(e), data)
	}
	if e.memType == addr.ScalarNonIdempotent {
		k.TLB().LogNonIdempotentAccess(e.scalarAddr)
	}
	e.scalarDone = true
	e.state = witem.Complete
}

// MonitorJamlet drives the per-element send/receive state machine for
// VPU-backed elements whose register lives on jamlet j.
func (it *item) MonitorJamlet(j witem.Jamlet) {
	for _, e := range it.elems {
		if e.regJInK != j.JInKIndex() {
			continue
		}
		if e.memType != addr.VPU || e.skipped || e.masked || e.fault {
			continue
		}
		if e.state != witem.NeedToSend {
			continue
		}

		x, y := it.p.KamletJInKToJCoords(e.kTarget, e.jTarget)
		sx, sy := j.Coords()

		if it.isStore {
			data := j.ReadRF(it.regByteOffset(e), e.elementBytes)
			h := message.NewBuilder(message.WriteMemWordReq).
				WithSource(sx, sy).WithTarget(x, y).WithIdent(it.instrIdent).
				WithTag(e.globalIndex).WithElementIndex(e.globalIndex).
				WithAddress(e.byteOff).WithNBytes(e.elementBytes).WithPayload(data).
				BuildWriteMemWord()
			if j.Send(h) {
				e.state = witem.WaitingForResponse
			}
		} else {
			h := message.NewBuilder(message.ReadMemWordReq).
				WithSource(sx, sy).WithTarget(x, y).WithIdent(it.instrIdent).
				WithTag(e.globalIndex).WithElementIndex(e.globalIndex).
				WithAddress(e.byteOff).WithNBytes(e.elementBytes).
				BuildReadMemWord()
			if j.Send(h) {
				e.state = witem.WaitingForResponse
			}
		}
	}
}

// HandlePacket processes a RESP/DROP/RETRY header addressed back to this
// item's ident. Memory-word requests never reach it: the jamlet serves
// READ_MEM_WORD_REQ/WRITE_MEM_WORD_REQ before consulting its item table.
func (it *item) HandlePacket(j witem.Jamlet, h message.Header) {
	b := h.Base()
	var tag int
	switch hh := h.(type) {
	case *message.ReadMemWordHeader:
		tag = hh.Tag
	case *message.WriteMemWordHeader:
		tag = hh.Tag
	default:
		return
	}

	for _, e := range it.elems {
		if e.regJInK != j.JInKIndex() || e.globalIndex != tag {
			continue
		}
		switch hh := h.(type) {
		case *message.ReadMemWordHeader:
			switch b.MessageType {
			case message.ReadMemWordResp:
				j.WriteRF(it.regByteOffset(e), hh.Payload)
				e.state = witem.Complete
			case message.ReadMemWordDrop:
				// The remote cache missed; its line fetch is underway.
				if e.state == witem.WaitingForResponse {
					e.state = witem.NeedToSend
				}
			}
		case *message.WriteMemWordHeader:
			switch b.MessageType {
			case message.WriteMemWordResp:
				e.state = witem.Complete
			case message.WriteMemWordDrop, message.WriteMemWordRetry:
				if e.state == witem.WaitingForResponse {
					e.state = witem.NeedToSend
				}
			}
		}
		return
	}
}

func (it *item) allComplete() bool {
	for _, e := range it.elems {
		if e.state != witem.Complete {
			return false
		}
	}
	return true
}

// Ready reports whether this kamlet's share of the instruction has
// completed, including the lamlet-wide completion barrier.
func (it *item) Ready() bool {
	return it.completionDone
}

// FaultElement reports the lowest global element index that faulted (a
// page-fault or, for a store, a fault-sync cancellation), or nil.
func (it *item) FaultElement() *int { return it.faultElement }

// FaultReporter is implemented by every witem.Item this package dispatches,
// letting callers holding one only as a witem.Item recover its fault
// element via a type assertion.
type FaultReporter interface {
	FaultElement() *int
}

// Finalize unregisters this item from every jamlet it was registered on
// and releases the synchronizer barriers it consumed.
func (it *item) Finalize(k witem.Kamlet) {
	seen := map[int]bool{}
	for _, e := range it.elems {
		if !seen[e.regJInK] {
			seen[e.regJInK] = true
			k.JamletAt(e.regJInK).UnregisterItem(it.instrIdent)
		}
	}
	k.UnregisterItem(it.instrIdent)
	k.Sync().Release(sync.Ident(it.instrIdent))
	k.Sync().Release(it.completionIdent)
}
