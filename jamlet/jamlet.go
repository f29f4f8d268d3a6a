// Package jamlet implements a single vector lane: its slice of the
// logical vector register file, its slice of the kamlet's cache SRAM,
// its per-channel routers and send queues, and the packet dispatch loop
// that hands arriving headers to either a registered waiting item or a
// small set of stateless responder handlers. Memory-word responders go
// through the owning kamlet's coherent cache table (CacheBackend): a
// read whose line is not resident answers DROP while the fetch it just
// started completes, and a write parks until the line arrives and then
// asks the sender to resend via WRITE_MEM_WORD_RETRY.
//
// Grounded on original_source/python/zamlet/jamlet/jamlet.py for the
// run-loop shape (send_packets/receive_packets per channel, dispatch by
// message type) and on the teacher's core.Core (core/core.go, now
// deleted from this tree) for the "one component polled once per cycle"
// idiom, adapted to the explicit mesh router built in package router.
package jamlet

import (
	"github.com/sarchlab/lamlet/addr"
	"github.com/sarchlab/lamlet/message"
	"github.com/sarchlab/lamlet/monitor"
	"github.com/sarchlab/lamlet/queue"
	"github.com/sarchlab/lamlet/router"
	"github.com/sarchlab/lamlet/witem"
)

// NChannels is the number of virtual channels this simulator models:
// channel 0 (responses/drops/retries) and channel 1 (requests), per
// message.Type.Channel()'s binding.
const NChannels = 2

// CacheBackend is the coherent-cache surface the stateless memory-word
// responders consult, wired by the owning kamlet (implemented by
// *kamlet.Kamlet). EnsureLineResident starts a line fetch on a miss, so
// a dropped request succeeds once the sender retries.
type CacheBackend interface {
	EnsureLineResident(jInKIndex int, byteAddr uint64) (ready bool, slotIdx int)
	MarkLineModified(jInKIndex int, byteAddr uint64)
	StripeBytes() int
}

// pendingWrite is a WRITE_MEM_WORD_REQ whose cache line was not yet
// resident on arrival: the receiver holds the request's identity (not
// its data) and asks the sender to resend once the line lands.
type pendingWrite struct {
	sourceX, sourceY int
	ident            int
	tag              int
	elementIndex     int
	ordered          bool
	parentIdent      int
	address          uint64
}

// Jamlet is a single lane: one vector-register slice, one cache-line
// byte stripe, and the routers that move its packets one hop per
// cycle.
type Jamlet struct {
	kIndex, jInKIndex int
	x, y              int

	wordBytes int

	rf   []byte // n_vregs * word_bytes
	sram []byte // jamlet_sram_bytes, cache-backed (see package cache)

	routers [NChannels]*router.Router
	outbox  [NChannels]*queue.Queue[message.Header]

	// deferred holds responses that found the channel-0 outbox full the
	// cycle they were produced; drained ahead of new sends so a response
	// is delayed, never lost.
	deferred []message.Header

	// pendingWrites holds write requests waiting for their cache line;
	// bounded by recvDepth, beyond which new arrivals are DROPped.
	pendingWrites []pendingWrite

	recvDepth int

	items map[int]witem.Item

	cache           CacheBackend
	onCacheResponse func(jInKIndex int, h message.Header)
	onReadRegElem   func(j *Jamlet, h *message.RegElementHeader)

	mon monitor.Hooks
}

// New creates a jamlet at lamlet-wide coordinate (x, y), owned by kamlet
// kIndex at local index jInKIndex.
func New(p addr.Params, kIndex, jInKIndex, x, y int) *Jamlet {
	j := &Jamlet{
		kIndex: kIndex, jInKIndex: jInKIndex, x: x, y: y,
		wordBytes: p.WordBytes,
		recvDepth: p.ReceiveBufferDepth,
		rf:    make([]byte, p.NVRegs*p.WordBytes),
		sram:  make([]byte, p.JamletSRAMBytes),
		items: make(map[int]witem.Item),
		mon:   monitor.NopHooks{},
	}
	for c := 0; c < NChannels; c++ {
		j.routers[c] = router.New(x, y, c, p.RouterInputBufferLength, p.RouterOutputBufferLength)
		j.outbox[c] = queue.New[message.Header](p.RouterInputBufferLength)
	}
	return j
}

// WithMonitor installs the observability hooks this jamlet reports
// activity to.
func (j *Jamlet) WithMonitor(m monitor.Hooks) { j.mon = m }

// OnCacheResponse installs the callback invoked for coherence response
// message types (READ_LINE_RESP and friends); wired by the owning
// kamlet, which is the sole recipient of cache-line fetch/eviction
// state.
func (j *Jamlet) OnCacheResponse(f func(jInKIndex int, h message.Header)) {
	j.onCacheResponse = f
}

// SetCacheBackend installs the coherent-cache surface the memory-word
// responders read and write through; wired by the owning kamlet.
func (j *Jamlet) SetCacheBackend(c CacheBackend) {
	j.cache = c
}

// KIndex, JInKIndex, Coords implement witem.Jamlet.
func (j *Jamlet) KIndex() int           { return j.kIndex }
func (j *Jamlet) JInKIndex() int        { return j.jInKIndex }
func (j *Jamlet) Coords() (int, int)    { return j.x, j.y }
func (j *Jamlet) Monitor() monitor.Hooks { return j.mon }

// Router exposes the per-channel router so the owning lamlet can wire
// mesh neighbors and boundary endpoints.
func (j *Jamlet) Router(channel int) *router.Router { return j.routers[channel] }

// Send enqueues h in the outbox for its statically-bound channel. Reports
// false (caller must retry next cycle) if the outbox has no room this
// cycle.
func (j *Jamlet) Send(h message.Header) bool {
	c := h.Base().MessageType.Channel()
	if !j.outbox[c].CanAppend() {
		return false
	}
	j.outbox[c].Append(h)
	j.mon.MessageSent(j.kIndex, j.jInKIndex, h.Base().MessageType.String())
	return true
}

// Reply enqueues a response/drop header, deferring it locally when the
// outbox has no room this cycle. Responses must never be dropped: the
// always-consumable channel-0 contract (spec.md §4.4) assumes every
// produced response eventually reaches the wire.
func (j *Jamlet) Reply(h message.Header) {
	if !j.Send(h) {
		j.deferred = append(j.deferred, h)
	}
}

// ReadRF/WriteRF address this jamlet's register-file slice.
func (j *Jamlet) ReadRF(byteOffset, n int) []byte {
	return append([]byte(nil), j.rf[byteOffset:byteOffset+n]...)
}

func (j *Jamlet) WriteRF(byteOffset int, data []byte) {
	copy(j.rf[byteOffset:], data)
}

// ReadSRAM/WriteSRAM address this jamlet's cache-backed SRAM.
func (j *Jamlet) ReadSRAM(byteOffset, n int) []byte {
	return append([]byte(nil), j.sram[byteOffset:byteOffset+n]...)
}

func (j *Jamlet) WriteSRAM(byteOffset int, data []byte) {
	copy(j.sram[byteOffset:], data)
}

// RegisterItem/UnregisterItem implement witem.Jamlet.
func (j *Jamlet) RegisterItem(ident int, it witem.Item) { j.items[ident] = it }
func (j *Jamlet) UnregisterItem(ident int)              { delete(j.items, ident) }

// StepSend drains at most one header per channel from the outbox into
// this tile's own router, via the Host input direction (a router's H
// port doubles as "packet originates locally", mirroring how H also
// means "packet terminates locally" on the output side).
func (j *Jamlet) StepSend() {
	if j.cache != nil && len(j.pendingWrites) > 0 {
		j.fireWriteRetries()
	}
	for len(j.deferred) > 0 {
		if !j.Send(j.deferred[0]) {
			break
		}
		j.deferred = j.deferred[1:]
	}
	for c := 0; c < NChannels; c++ {
		if j.outbox[c].Empty() || !j.routers[c].HasInputRoom(message.Host) {
			continue
		}
		h, _ := j.outbox[c].PopLeft()
		j.routers[c].Receive(message.Host, h)
	}
}

// StepReceive drains every channel's Host output (packets whose target
// is this tile) and dispatches them.
func (j *Jamlet) StepReceive() {
	for c := 0; c < NChannels; c++ {
		out := j.routers[c].OutputQueue(message.Host)
		taken := 0
		for j.recvDepth <= 0 || taken < j.recvDepth {
			h, ok := out.PopLeft()
			if !ok {
				break
			}
			taken++
			j.mon.MessageReceived(j.kIndex, j.jInKIndex, h.Base().MessageType.String())
			j.dispatch(h)
		}
	}
}

// StepRouters runs one admit/forward/retire pass on every channel's
// router. Must run after StepSend across the whole lamlet and before
// the owning device propagates words between neighboring tiles.
func (j *Jamlet) StepRouters() {
	for c := 0; c < NChannels; c++ {
		j.routers[c].Step()
	}
}

// Update resets every per-cycle queue token (outbox and router buffers).
func (j *Jamlet) Update() {
	for c := 0; c < NChannels; c++ {
		j.outbox[c].Update()
		j.routers[c].Update()
	}
}

// MonitorAll invokes MonitorJamlet on every item registered on this
// jamlet, in a stable (registration) order for determinism.
func (j *Jamlet) MonitorAll(order []int) {
	for _, ident := range order {
		if it, ok := j.items[ident]; ok {
			it.MonitorJamlet(j)
		}
	}
}

// dispatch routes an arriving header. Stateless request types are served
// before the item table is consulted: the ident a request carries is the
// sender's instruction ident, and this jamlet may well have its own item
// registered under the same ident (every kamlet dispatches the same
// instruction), which must not swallow a request meant for the memory
// side.
func (j *Jamlet) dispatch(h message.Header) {
	b := h.Base()

	switch b.MessageType {
	case message.ReadLineResp, message.WriteLineReadLineResp, message.WriteLineReadLineDrop, message.WriteLineResp:
		if j.onCacheResponse != nil {
			j.onCacheResponse(j.jInKIndex, h)
		}
		return
	case message.ReadMemWordReq:
		j.serveReadMemWord(h.(*message.ReadMemWordHeader))
		return
	case message.WriteMemWordReq:
		j.serveWriteMemWord(h.(*message.WriteMemWordHeader))
		return
	case message.ReadRegElementReq:
		if j.onReadRegElem != nil {
			j.onReadRegElem(j, h.(*message.RegElementHeader))
		} else {
			j.serveReadRegElement(h.(*message.RegElementHeader))
		}
		return
	}

	if it, ok := j.items[b.Ident]; ok {
		it.HandlePacket(j, h)
		return
	}
	// Stray response for an item that already finalized (e.g. a late
	// retry after the operation completed); dropping it is safe and
	// matches spec.md §7's "not visible to caller".
}

// sramOffset translates a jamlet-local memory byte address into the
// SRAM offset inside the resident cache slot.
func (j *Jamlet) sramOffset(slotIdx int, byteAddr uint64) int {
	stripe := j.cache.StripeBytes()
	return slotIdx*stripe + int(byteAddr)%stripe
}

// serveReadMemWord answers a gather/indexed READ_MEM_WORD_REQ from the
// coherent cache. A miss answers DROP: EnsureLineResident has already
// started the fetch, so the sender's retry will land on a resident
// line.
func (j *Jamlet) serveReadMemWord(h *message.ReadMemWordHeader) {
	ready, slot := j.cache.EnsureLineResident(j.jInKIndex, h.Address)
	if !ready {
		drop := message.NewBuilder(message.ReadMemWordDrop).
			WithSource(h.TargetX, h.TargetY).WithTarget(h.SourceX, h.SourceY).
			WithIdent(h.Ident).WithTag(h.Tag).WithElementIndex(h.ElementIndex).
			WithOrdered(h.Ordered).WithParentIdent(h.ParentIdent).
			BuildReadMemWord()
		j.Reply(drop)
		return
	}
	data := j.ReadSRAM(j.sramOffset(slot, h.Address), h.NBytes)
	resp := message.NewBuilder(message.ReadMemWordResp).
		WithSource(h.TargetX, h.TargetY).WithTarget(h.SourceX, h.SourceY).
		WithIdent(h.Ident).WithTag(h.Tag).WithElementIndex(h.ElementIndex).
		WithOrdered(h.Ordered).WithParentIdent(h.ParentIdent).
		WithPayload(data).BuildReadMemWord()
	j.Reply(resp)
}

// serveWriteMemWord answers a scatter/indexed WRITE_MEM_WORD_REQ
// through the coherent cache. On a miss the request's identity parks in
// pendingWrites; once the line is resident a WRITE_MEM_WORD_RETRY asks
// the sender to resend. A full parking list answers DROP outright.
func (j *Jamlet) serveWriteMemWord(h *message.WriteMemWordHeader) {
	ready, slot := j.cache.EnsureLineResident(j.jInKIndex, h.Address)
	if !ready {
		if j.recvDepth > 0 && len(j.pendingWrites) >= j.recvDepth {
			drop := message.NewBuilder(message.WriteMemWordDrop).
				WithSource(h.TargetX, h.TargetY).WithTarget(h.SourceX, h.SourceY).
				WithIdent(h.Ident).WithTag(h.Tag).WithElementIndex(h.ElementIndex).
				WithOrdered(h.Ordered).WithParentIdent(h.ParentIdent).
				BuildWriteMemWord()
			j.Reply(drop)
			return
		}
		j.pendingWrites = append(j.pendingWrites, pendingWrite{
			sourceX: h.SourceX, sourceY: h.SourceY,
			ident: h.Ident, tag: h.Tag, elementIndex: h.ElementIndex,
			ordered: h.Ordered, parentIdent: h.ParentIdent, address: h.Address,
		})
		return
	}
	j.WriteSRAM(j.sramOffset(slot, h.Address), h.Payload)
	j.cache.MarkLineModified(j.jInKIndex, h.Address)
	resp := message.NewBuilder(message.WriteMemWordResp).
		WithSource(h.TargetX, h.TargetY).WithTarget(h.SourceX, h.SourceY).
		WithIdent(h.Ident).WithTag(h.Tag).WithElementIndex(h.ElementIndex).
		WithOrdered(h.Ordered).WithParentIdent(h.ParentIdent).
		BuildWriteMemWord()
	j.Reply(resp)
}

// fireWriteRetries asks the sender of every parked write whose line has
// become resident to resend, mirroring the J2J receiver's
// NEED_TO_ASK_FOR_RESEND pattern.
func (j *Jamlet) fireWriteRetries() {
	kept := j.pendingWrites[:0]
	for _, pw := range j.pendingWrites {
		ready, _ := j.cache.EnsureLineResident(j.jInKIndex, pw.address)
		if !ready {
			kept = append(kept, pw)
			continue
		}
		retry := message.NewBuilder(message.WriteMemWordRetry).
			WithSource(j.x, j.y).WithTarget(pw.sourceX, pw.sourceY).
			WithIdent(pw.ident).WithTag(pw.tag).WithElementIndex(pw.elementIndex).
			WithOrdered(pw.ordered).WithParentIdent(pw.parentIdent).
			BuildWriteMemWord()
		j.Reply(retry)
	}
	j.pendingWrites = kept
}

// serveReadRegElement is the default vrgather responder: read n_bytes
// from this jamlet's register file at src_reg/src_byte_offset.
func (j *Jamlet) serveReadRegElement(h *message.RegElementHeader) {
	data := j.ReadRF(h.SrcReg*j.wordBytes+h.SrcByteOffset, h.NBytes)
	resp := message.NewBuilder(message.ReadRegElementResp).
		WithSource(h.TargetX, h.TargetY).WithTarget(h.SourceX, h.SourceY).
		WithIdent(h.Ident).WithTag(h.Tag).WithPayload(data).BuildRegElement()
	j.Reply(resp)
}

