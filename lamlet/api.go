package lamlet

import (
	"github.com/sarchlab/lamlet/addr"
	"github.com/sarchlab/lamlet/clock"
	"github.com/sarchlab/lamlet/kamlet"
	"github.com/sarchlab/lamlet/regfile"
	"github.com/sarchlab/lamlet/transaction/gatherscatter"
	"github.com/sarchlab/lamlet/transaction/indexedelement"
	"github.com/sarchlab/lamlet/transaction/j2jwords"
	"github.com/sarchlab/lamlet/transaction/reggather"
	"github.com/sarchlab/lamlet/witem"
)

// Result is what every vector memory operation returns to the caller.
// Faults are data, not errors (spec.md §7): Success is false iff some
// element faulted, and FaultElement then names the lowest faulting
// global element index.
type Result struct {
	Success      bool
	FaultElement *int
}

// Unmasked disables per-element masking for the operations below.
const Unmasked = -1

var standardOrdering = addr.Ordering{WordOrder: addr.Standard}

// regGroup lists the registers a vl-element operand starting at reg
// occupies: one word lane per jamlet per register, so every JInL
// elements consume one more register.
func (d *Device) regGroup(reg, vl int) []int {
	n := (vl + d.p.JInL() - 1) / d.p.JInL()
	if n < 1 {
		n = 1
	}
	regs := make([]int, n)
	for i := range regs {
		regs[i] = reg + i
	}
	return regs
}

func appendRegGroups(dst []int, groups ...[]int) []int {
	for _, g := range groups {
		dst = append(dst, g...)
	}
	return dst
}

// acquireRF blocks (running the clock) until every kamlet's hazard
// tracker admits the given read/write sets, then reserves them,
// honoring spec.md §5's wait_for_rf_available contract at the dispatch
// boundary.
func (d *Device) acquireRF(readRegs, writeRegs []int) ([]regfile.Ident, error) {
	idents := make([]regfile.Ident, 0, len(d.kamlets))
	for _, k := range d.kamlets {
		rf := k.RegFile()
		if err := d.clk.Run(func() bool { return rf.CanStart(readRegs, writeRegs) }); err != nil {
			return nil, err
		}
		idents = append(idents, rf.Start(readRegs, writeRegs))
	}
	return idents, nil
}

func (d *Device) releaseRF(idents []regfile.Ident, readRegs, writeRegs []int) {
	for i, k := range d.kamlets {
		k.RegFile().Finish(idents[i], readRegs, writeRegs)
	}
}

func (d *Device) runItems(items []witem.Item) error {
	return d.clk.Run(func() bool {
		for _, it := range items {
			if !it.Ready() {
				return false
			}
		}
		return true
	})
}

func minFaultOf(items []witem.Item) *int {
	var min *int
	for _, it := range items {
		fr, ok := it.(gatherscatter.FaultReporter)
		if !ok {
			continue
		}
		if f := fr.FaultElement(); f != nil && (min == nil || *f < *min) {
			v := *f
			min = &v
		}
	}
	return min
}

// VLoad is a unit-stride vector load of vl ew-bit elements from base
// into dstReg's register group.
func (d *Device) VLoad(dstReg int, base addr.GlobalAddress, vl, ew, maskReg int) (Result, error) {
	return d.runGatherScatter(false, dstReg, gatherscatter.Strided, base, int64(ew/8), 0, maskReg, vl, ew)
}

// VStore is a unit-stride vector store of vl ew-bit elements from
// srcReg's register group to base.
func (d *Device) VStore(srcReg int, base addr.GlobalAddress, vl, ew, maskReg int) (Result, error) {
	return d.runGatherScatter(true, srcReg, gatherscatter.Strided, base, int64(ew/8), 0, maskReg, vl, ew)
}

// VLoadStrided loads vl ew-bit elements spaced strideBytes apart.
func (d *Device) VLoadStrided(dstReg int, base addr.GlobalAddress, strideBytes int64, vl, ew, maskReg int) (Result, error) {
	return d.runGatherScatter(false, dstReg, gatherscatter.Strided, base, strideBytes, 0, maskReg, vl, ew)
}

// VStoreStrided stores vl ew-bit elements spaced strideBytes apart.
func (d *Device) VStoreStrided(srcReg int, base addr.GlobalAddress, strideBytes int64, vl, ew, maskReg int) (Result, error) {
	return d.runGatherScatter(true, srcReg, gatherscatter.Strided, base, strideBytes, 0, maskReg, vl, ew)
}

// VLoadIndexed is an unordered indexed gather: element i loads from
// base + indexReg[i].
func (d *Device) VLoadIndexed(dstReg, indexReg int, base addr.GlobalAddress, vl, ew, maskReg int) (Result, error) {
	return d.runGatherScatter(false, dstReg, gatherscatter.Indexed, base, 0, indexReg, maskReg, vl, ew)
}

// VStoreIndexed is an unordered indexed scatter: element i stores to
// base + indexReg[i], with fault-sync suppressing non-idempotent writes
// at or past the lowest faulting element.
func (d *Device) VStoreIndexed(srcReg, indexReg int, base addr.GlobalAddress, vl, ew, maskReg int) (Result, error) {
	return d.runGatherScatter(true, srcReg, gatherscatter.Indexed, base, 0, indexReg, maskReg, vl, ew)
}

func (d *Device) runGatherScatter(isStore bool, reg int, mode gatherscatter.AddressMode,
	base addr.GlobalAddress, stride int64, indexReg, maskReg, vl, ew int) (Result, error) {
	dataRegs := d.regGroup(reg, vl)
	var readRegs, writeRegs []int
	if isStore {
		readRegs = appendRegGroups(nil, dataRegs)
	} else {
		writeRegs = dataRegs
	}
	if mode == gatherscatter.Indexed {
		readRegs = appendRegGroups(readRegs, d.regGroup(indexReg, vl))
	}
	if maskReg != Unmasked {
		readRegs = appendRegGroups(readRegs, d.regGroup(maskReg, vl))
	}

	rfIdents, err := d.acquireRF(readRegs, writeRegs)
	if err != nil {
		return Result{}, err
	}
	defer d.releaseRF(rfIdents, readRegs, writeRegs)

	items := d.dispatchGatherScatter(isStore, reg, mode, base, stride, indexReg, maskReg, vl, ew)
	if err := d.runItems(items); err != nil {
		return Result{}, err
	}

	fault := minFaultOf(items)
	return Result{Success: fault == nil, FaultElement: fault}, nil
}

// dispatchGatherScatter creates the per-kamlet waiting items for one
// gather/scatter instruction without blocking; callers own hazard
// acquisition and completion.
func (d *Device) dispatchGatherScatter(isStore bool, reg int, mode gatherscatter.AddressMode,
	base addr.GlobalAddress, stride int64, indexReg, maskReg, vl, ew int) []witem.Item {
	ident := d.allocIdent()
	items := make([]witem.Item, 0, len(d.kamlets))
	for _, k := range d.kamlets {
		var instr kamlet.Instruction
		if isStore {
			instr = &gatherscatter.StoreScatter{
				InstrIdent: ident, SrcReg: reg, Mode: mode, Base: base, Stride: stride,
				IndexReg: indexReg, MaskReg: maskReg, VL: vl, EW: ew,
			}
		} else {
			instr = &gatherscatter.LoadGather{
				InstrIdent: ident, DstReg: reg, Mode: mode, Base: base, Stride: stride,
				IndexReg: indexReg, MaskReg: maskReg, VL: vl, EW: ew,
			}
		}
		items = append(items, k.Dispatch(instr))
	}
	return items
}

// VLoadIndexedOrdered is an ordered indexed gather: elements are
// visited in strictly ascending index order, one element in flight at a
// time, so non-idempotent source pages observe exactly the program
// order (spec.md §4.7.3).
func (d *Device) VLoadIndexedOrdered(dstReg, indexReg int, base addr.GlobalAddress, vl, ew, maskReg int) (Result, error) {
	return d.runIndexedOrdered(false, dstReg, indexReg, base, vl, ew, maskReg)
}

// VStoreIndexedOrdered is VLoadIndexedOrdered's store counterpart.
func (d *Device) VStoreIndexedOrdered(srcReg, indexReg int, base addr.GlobalAddress, vl, ew, maskReg int) (Result, error) {
	return d.runIndexedOrdered(true, srcReg, indexReg, base, vl, ew, maskReg)
}

func (d *Device) runIndexedOrdered(isStore bool, reg, indexReg int, base addr.GlobalAddress, vl, ew, maskReg int) (Result, error) {
	dataRegs := d.regGroup(reg, vl)
	readRegs := appendRegGroups(nil, d.regGroup(indexReg, vl))
	var writeRegs []int
	if isStore {
		readRegs = appendRegGroups(readRegs, dataRegs)
	} else {
		writeRegs = dataRegs
	}
	if maskReg != Unmasked {
		readRegs = appendRegGroups(readRegs, d.regGroup(maskReg, vl))
	}

	rfIdents, err := d.acquireRF(readRegs, writeRegs)
	if err != nil {
		return Result{}, err
	}
	defer d.releaseRF(rfIdents, readRegs, writeRegs)

	elementBytes := ew / 8
	for i := 0; i < vl; i++ {
		vw := i % d.p.JInL()
		kIndex, jInK := standardOrdering.FromVWIndex(d.p, vw)
		within := i / d.p.JInL()
		k := d.kamlets[kIndex]
		j := k.ConcreteJamlet(jInK)

		masked := false
		if maskReg != Unmasked {
			masked = j.ReadRF((maskReg+within)*d.p.WordBytes, 1)[0] == 0
		}

		idx := leUint64(j.ReadRF((indexReg+within)*d.p.WordBytes, 8))
		target := base.BitOffset(int64(idx) * 8)

		var instr kamlet.Instruction
		ident := d.allocIdent()
		if isStore {
			instr = &indexedelement.StoreIndexedElement{
				InstrIdent: ident, Reg: reg + within, RegJInK: jInK,
				Target: target, ElementBytes: elementBytes, Masked: masked,
			}
		} else {
			instr = &indexedelement.LoadIndexedElement{
				InstrIdent: ident, Reg: reg + within, RegJInK: jInK,
				Target: target, ElementBytes: elementBytes, Masked: masked,
			}
		}

		it := k.Dispatch(instr)
		if err := d.runItems([]witem.Item{it}); err != nil {
			return Result{}, err
		}
		if fr, ok := it.(indexedelement.FaultReporter); ok && fr.Fault() {
			fe := i
			return Result{Success: false, FaultElement: &fe}, nil
		}
	}
	return Result{Success: true}, nil
}

// VRegGather is vrgather: dstReg[i] = srcReg[indexReg[i]], with indices
// at or past vlmax writing zero.
func (d *Device) VRegGather(dstReg, indexReg, srcReg, vl, vlmax, ew int) (Result, error) {
	readRegs := appendRegGroups(nil, d.regGroup(indexReg, vl), d.regGroup(srcReg, vlmax))
	writeRegs := d.regGroup(dstReg, vl)

	rfIdents, err := d.acquireRF(readRegs, writeRegs)
	if err != nil {
		return Result{}, err
	}
	defer d.releaseRF(rfIdents, readRegs, writeRegs)

	items := d.dispatchRegGather(dstReg, indexReg, srcReg, vl, vlmax, ew)
	if err := d.runItems(items); err != nil {
		return Result{}, err
	}
	return Result{Success: true}, nil
}

func (d *Device) dispatchRegGather(dstReg, indexReg, srcReg, vl, vlmax, ew int) []witem.Item {
	ident := d.allocIdent()
	items := make([]witem.Item, 0, len(d.kamlets))
	for _, k := range d.kamlets {
		items = append(items, k.Dispatch(&reggather.RegGather{
			InstrIdent: ident, DstReg: dstReg, IndexReg: indexReg, SrcReg: srcReg,
			VL: vl, VLMax: vlmax, ElementBytes: ew / 8,
		}))
	}
	return items
}

// VLoadUnaligned loads nElements whole words through the coherent cache
// with jamlet-to-jamlet realignment (spec.md §4.7.1); base must resolve
// to a VPU page. The owning kamlet alone executes the transfer.
func (d *Device) VLoadUnaligned(dstReg int, base addr.GlobalAddress, nElements, maskReg int) (Result, error) {
	return d.runJ2J(false, dstReg, base, nElements, maskReg)
}

// VStoreUnaligned is VLoadUnaligned's store counterpart.
func (d *Device) VStoreUnaligned(srcReg int, base addr.GlobalAddress, nElements, maskReg int) (Result, error) {
	return d.runJ2J(true, srcReg, base, nElements, maskReg)
}

func (d *Device) runJ2J(isStore bool, reg int, base addr.GlobalAddress, nElements, maskReg int) (Result, error) {
	info := d.tlb.GetPageInfo(base)
	if info.MemoryType != addr.VPU {
		fe := 0
		return Result{Success: false, FaultElement: &fe}, nil
	}
	km := base.ToKMAddr(d.p, info)
	k := d.kamlets[km.KIndex]

	// A J2J transfer spans only the owning kamlet's lanes, so vline
	// count (not the lamlet-wide regGroup) sizes the register group.
	nVlines := (nElements + d.p.JInK() - 1) / d.p.JInK()
	dataRegs := make([]int, nVlines)
	for i := range dataRegs {
		dataRegs[i] = reg + i
	}
	var readRegs, writeRegs []int
	if isStore {
		readRegs = dataRegs
	} else {
		writeRegs = dataRegs
	}
	if maskReg != Unmasked {
		for i := 0; i < nVlines; i++ {
			readRegs = append(readRegs, maskReg+i)
		}
	}

	rf := k.RegFile()
	if err := d.clk.Run(func() bool { return rf.CanStart(readRegs, writeRegs) }); err != nil {
		return Result{}, err
	}
	rfIdent := rf.Start(readRegs, writeRegs)
	defer rf.Finish(rfIdent, readRegs, writeRegs)

	var instr kamlet.Instruction
	ident := d.allocIdent()
	if isStore {
		instr = &j2jwords.StoreJ2JWords{InstrIdent: ident, SrcReg: reg, MaskReg: maskReg, Base: base, NElements: nElements}
	} else {
		instr = &j2jwords.LoadJ2JWords{InstrIdent: ident, DstReg: reg, MaskReg: maskReg, Base: base, NElements: nElements}
	}
	it := k.Dispatch(instr)
	if err := d.runItems([]witem.Item{it}); err != nil {
		return Result{}, err
	}
	return Result{Success: true}, nil
}

// FlushCache writes every dirty cache line back to its memlet and runs
// the clock until the write-backs complete, so DRAM reflects every
// cache-backed store.
func (d *Device) FlushCache() error {
	for _, k := range d.kamlets {
		k.FlushDirtyLines()
	}
	return d.clk.Run(func() bool { return !d.Busy() })
}

// SetMemory seeds scalar memory directly (spec.md §6.2's set_memory).
func (d *Device) SetMemory(a addr.ScalarAddr, data []byte) {
	d.scalar.Write(a, data)
}

// GetMemory probes scalar memory, returning a resolved future to match
// the reference model's get_memory -> Future<bytes> signature; scalar
// memory here answers in the same cycle.
func (d *Device) GetMemory(a addr.ScalarAddr, n int) *clock.Future[[]byte] {
	f := clock.NewFuture[[]byte]()
	f.Resolve(d.scalar.Read(a, n))
	return f
}

// NonIdempotentAccessLog returns every access to non-idempotent scalar
// pages, in access order, for test verification (spec.md §6.2).
func (d *Device) NonIdempotentAccessLog() []addr.ScalarAddr {
	return d.tlb.NonIdempotentAccessLog()
}

// AllocateMemory maps [global, global+size) pages (spec.md §6.3's
// allocate_memory).
func (d *Device) AllocateMemory(global addr.GlobalAddress, size int, memType addr.MemoryType, ordering addr.Ordering) error {
	return d.tlb.Allocate(global, size, memType, ordering)
}

// WriteGlobal seeds memory through the global address map, byte by
// byte: a VPU byte whose cache line is resident is written through the
// cache (keeping it authoritative), otherwise it lands in the backing
// DRAM; scalar bytes go to the scalar store. Harness-side only; no
// packets move.
func (d *Device) WriteGlobal(g addr.GlobalAddress, data []byte) {
	for i := range data {
		t := g.BitOffset(int64(i) * 8)
		info := d.tlb.GetPageInfo(t)
		switch info.MemoryType {
		case addr.VPU:
			km := t.ToKMAddr(d.p, info)
			if !d.kamlets[km.KIndex].PokeLocalByte(km.JInKIndex, km.Addr, data[i]) {
				d.memletFor(km.KIndex).PokeByte(km.KIndex, km.JInKIndex, km.Addr, data[i])
			}
		case addr.ScalarIdempotent, addr.ScalarNonIdempotent:
			d.scalar.Write(t.ToScalarAddr(), data[i:i+1])
		default:
			panic("lamlet: WriteGlobal to an unallocated page")
		}
	}
}

// ReadGlobal is WriteGlobal's probe counterpart: resident cache lines
// shadow the backing DRAM.
func (d *Device) ReadGlobal(g addr.GlobalAddress, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		t := g.BitOffset(int64(i) * 8)
		info := d.tlb.GetPageInfo(t)
		switch info.MemoryType {
		case addr.VPU:
			km := t.ToKMAddr(d.p, info)
			if b, ok := d.kamlets[km.KIndex].PeekLocalByte(km.JInKIndex, km.Addr); ok {
				out[i] = b
			} else {
				out[i] = d.memletFor(km.KIndex).PeekByte(km.KIndex, km.JInKIndex, km.Addr)
			}
		case addr.ScalarIdempotent, addr.ScalarNonIdempotent:
			out[i] = d.scalar.Read(t.ToScalarAddr(), 1)[0]
		default:
			panic("lamlet: ReadGlobal from an unallocated page")
		}
	}
	return out
}

// SetVRegElement writes element i of the logical register group rooted
// at reg, under the standard word-order.
func (d *Device) SetVRegElement(reg, i, ew int, value uint64) {
	kIndex, jInK := standardOrdering.FromVWIndex(d.p, i%d.p.JInL())
	within := i / d.p.JInL()
	buf := make([]byte, ew/8)
	putLeUint(buf, value)
	d.JamletAt(kIndex, jInK).WriteRF((reg+within)*d.p.WordBytes, buf)
}

// VRegElement reads element i of the logical register group rooted at
// reg.
func (d *Device) VRegElement(reg, i, ew int) uint64 {
	kIndex, jInK := standardOrdering.FromVWIndex(d.p, i%d.p.JInL())
	within := i / d.p.JInL()
	return leUint64(d.JamletAt(kIndex, jInK).ReadRF((reg+within)*d.p.WordBytes, ew/8))
}

// SetMaskBits writes one predicate byte per element into maskReg's
// group: bits[i] true enables element i.
func (d *Device) SetMaskBits(maskReg int, bits []bool) {
	for i, b := range bits {
		v := uint64(0)
		if b {
			v = 1
		}
		kIndex, jInK := standardOrdering.FromVWIndex(d.p, i%d.p.JInL())
		within := i / d.p.JInL()
		d.JamletAt(kIndex, jInK).WriteRF((maskReg+within)*d.p.WordBytes, []byte{byte(v)})
	}
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func putLeUint(b []byte, v uint64) {
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
}
