// Package reggather implements register-to-register gather (vrgather):
// for every lane, read an index from IndexReg on that lane, then fetch
// vs2[index] from whichever jamlet owns that element of the source
// register, writing it (or zero, if index is out of range) into the
// destination register on the requesting lane.
//
// Grounded on original_source/python/zamlet/transactions/reg_gather.py's
// READ_REG_ELEMENT_REQ/RESP exchange; jamlet.serveReadRegElement
// (jamlet/jamlet.go) already implements the stateless responder side
// this package's requests target, so reggather only needs the
// requester-side state machine.
package reggather

import (
	"github.com/sarchlab/lamlet/addr"
	"github.com/sarchlab/lamlet/kamlet"
	"github.com/sarchlab/lamlet/message"
	"github.com/sarchlab/lamlet/sync"
	"github.com/sarchlab/lamlet/witem"
)

var regOrdering = addr.Ordering{WordOrder: addr.Standard}

// RegGather is a vrgather instruction (kamlet.Instruction), dispatched
// once per kamlet the way gatherscatter is.
type RegGather struct {
	InstrIdent int
	DstReg     int
	IndexReg   int
	SrcReg     int
	StartIndex int
	VL         int
	VLMax      int // indices >= VLMax write zero, per the RISC-V vrgather semantics
	ElementBytes int
}

// Dispatch implements kamlet.Instruction.
func (rg *RegGather) Dispatch(k *kamlet.Kamlet) witem.Item {
	p := k.Params()
	it := &item{
		instrIdent: rg.InstrIdent, dstReg: rg.DstReg, indexReg: rg.IndexReg, srcReg: rg.SrcReg,
		elementBytes: rg.ElementBytes, vlMax: rg.VLMax, p: p,
		completionIdent: sync.Ident(rg.InstrIdent),
	}
	for i := 0; i < rg.VL; i++ {
		ge := rg.StartIndex + i
		vw := ge % p.JInL()
		regK, regJ := regOrdering.FromVWIndex(p, vw)
		if regK != k.KIndex() {
			continue
		}
		it.lanes = append(it.lanes, &lane{ge: ge, regJInK: regJ, within: ge / p.JInL()})
	}

	seen := map[int]bool{}
	for _, l := range it.lanes {
		if !seen[l.regJInK] {
			seen[l.regJInK] = true
			k.ConcreteJamlet(l.regJInK).RegisterItem(it.instrIdent, it)
		}
	}
	return it
}

type lane struct {
	ge      int // global element index; doubles as the response tag
	regJInK int
	within  int

	index       int64
	srcKIndex   int
	srcJInK     int
	state       witem.ProtocolState
	done        bool
}

// item is the concrete witem.Item this package's instructions dispatch.
type item struct {
	instrIdent      int
	dstReg          int
	indexReg        int
	srcReg          int
	elementBytes    int
	vlMax           int
	p               addr.Params
	lanes           []*lane
	completionIdent sync.Ident
	completionDone  bool
}

func (it *item) InstrIdent() int { return it.instrIdent }

func regOffset(p addr.Params, reg, within int) int { return (reg + within) * p.WordBytes }

// MonitorKamlet reads each lane's index and, for out-of-range indices,
// resolves them immediately; it then waits on the shared completion
// barrier once every lane is done.
func (it *item) MonitorKamlet(k witem.Kamlet) {
	for _, l := range it.lanes {
		if l.done || l.state != witem.Initial {
			continue
		}
		j := k.JamletAt(l.regJInK)
		idxBytes := j.ReadRF(regOffset(it.p, it.indexReg, l.within), 8)
		var v int64
		for i := 7; i >= 0; i-- {
			v = v<<8 | int64(idxBytes[i])
		}
		l.index = v
		if v < 0 || v >= int64(it.vlMax) {
			j.WriteRF(regOffset(it.p, it.dstReg, l.within), make([]byte, it.elementBytes))
			l.done = true
			continue
		}
		vw := int(v) % it.p.JInL()
		l.srcKIndex, l.srcJInK = regOrdering.FromVWIndex(it.p, vw)
		l.state = witem.NeedToSend
	}

	if it.allDone() {
		k.Sync().LocalEvent(it.completionIdent, k.KIndex(), nil)
		if k.Sync().IsComplete(it.completionIdent, k.KIndex()) {
			it.completionDone = true
		}
	}
}

// MonitorJamlet issues READ_REG_ELEMENT_REQ for every lane owned by j
// that still needs one.
func (it *item) MonitorJamlet(j witem.Jamlet) {
	for _, l := range it.lanes {
		if l.regJInK != j.JInKIndex() || l.state != witem.NeedToSend {
			continue
		}
		within := int(l.index) / it.p.JInL()
		x, y := it.p.KamletJInKToJCoords(regOrderingKamletOf(it.p, l.srcJInK, int(l.index)))
		sx, sy := j.Coords()

		h := message.NewBuilder(message.ReadRegElementReq).
			WithSource(sx, sy).WithTarget(x, y).WithIdent(it.instrIdent).
			WithTag(l.ge).WithSrcReg(it.srcReg + within).WithSrcByteOffset(0).
			WithNBytes(it.elementBytes).BuildRegElement()
		if j.Send(h) {
			l.state = witem.WaitingForResponse
		}
	}
}

// regOrderingKamletOf recovers the owning kamlet index for a source
// register element's vw, alongside the already-known lane within it.
func regOrderingKamletOf(p addr.Params, srcJInK, index int) (kIndex, jInKIndex int) {
	vw := index % p.JInL()
	return regOrdering.FromVWIndex(p, vw)
}

// HandlePacket completes a lane once its READ_REG_ELEMENT_RESP arrives,
// or retries on a DROP (the remote jamlet had no room to answer this
// cycle; original_source/reg_gather.py's resend path).
func (it *item) HandlePacket(j witem.Jamlet, h message.Header) {
	rh, ok := h.(*message.RegElementHeader)
	if !ok {
		return
	}
	for _, l := range it.lanes {
		if l.regJInK != j.JInKIndex() || l.ge != rh.Tag {
			continue
		}
		switch h.Base().MessageType {
		case message.ReadRegElementResp:
			j.WriteRF(regOffset(it.p, it.dstReg, l.within), rh.Payload)
			l.done = true
		case message.ReadRegElementDrop:
			l.state = witem.NeedToSend
		}
		return
	}
}

func (it *item) allDone() bool {
	for _, l := range it.lanes {
		if !l.done {
			return false
		}
	}
	return true
}

// Ready reports whether this kamlet's lanes, and the lamlet-wide
// completion barrier, are done.
func (it *item) Ready() bool { return it.completionDone }

// Finalize unregisters this item from every jamlet it touched.
func (it *item) Finalize(k witem.Kamlet) {
	seen := map[int]bool{}
	for _, l := range it.lanes {
		if !seen[l.regJInK] {
			seen[l.regJInK] = true
			k.JamletAt(l.regJInK).UnregisterItem(it.instrIdent)
		}
	}
	k.Sync().Release(it.completionIdent)
}
