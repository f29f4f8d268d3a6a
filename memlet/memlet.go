// Package memlet implements the DRAM-facing tiles that sit outside the
// jamlet grid's east and west edges. A memlet answers cache-line fetch
// and write-back/fetch requests from every jamlet row it is attached to;
// it holds no router of its own (spec.md §4.2 treats it as a boundary
// endpoint, not a mesh node) and is wired directly to the west/east edge
// column's per-row link by the owning lamlet.
//
// Grounded on original_source/python/zamlet/memlet/memlet.py for the
// request/response shape and on the teacher's idealmemcontroller usage
// pattern (config/config.go, now deleted from this tree) for "a simple
// component that answers one request per cycle per attached link" — the
// backing store itself is a plain Go map rather than
// akita/v4/mem/idealmemcontroller.Comp, a deliberate divergence recorded
// in DESIGN.md: idealmemcontroller models a single akita port queue with
// its own engine-driven latency, which would force memlet onto akita's
// event-driven scheduler while every other tile here runs on the
// bespoke cooperative clock (package clock); duplicating two schedulers
// was judged a worse fit than a flat Go map keyed by (kamlet, jamlet,
// line) for a functional (not timing-calibrated-to-real-DRAM) simulator.
package memlet

import (
	"github.com/sarchlab/lamlet/addr"
	"github.com/sarchlab/lamlet/message"
	"github.com/sarchlab/lamlet/queue"
)

type dramKey struct {
	kIndex, jInKIndex int
	line              uint64
}

// Memlet is one DRAM tile, attached to every jamlet row in its half of a
// kamlet row band.
type Memlet struct {
	p addr.Params
	x int // lamlet-wide x coordinate this memlet is wired at (-1 or j_in_l_x)

	rows    []int
	inbox   map[int]*queue.Queue[message.Header]
	outbox  map[int]*queue.Queue[message.Header]
	pending map[int][]message.Header

	dram map[dramKey][]byte
}

// New creates a memlet at x, serving the given lamlet-wide jamlet rows.
func New(p addr.Params, x int, rows []int, bufferLength int) *Memlet {
	m := &Memlet{
		p: p, x: x,
		rows:    append([]int(nil), rows...),
		inbox:   make(map[int]*queue.Queue[message.Header]),
		outbox:  make(map[int]*queue.Queue[message.Header]),
		pending: make(map[int][]message.Header),
		dram:    make(map[dramKey][]byte),
	}
	for _, y := range rows {
		m.inbox[y] = queue.New[message.Header](bufferLength)
		m.outbox[y] = queue.New[message.Header](bufferLength)
	}
	return m
}

// InboxFor and OutboxFor expose the per-row link queues the owning
// lamlet wires to the boundary column's router.
func (m *Memlet) InboxFor(y int) *queue.Queue[message.Header]  { return m.inbox[y] }
func (m *Memlet) OutboxFor(y int) *queue.Queue[message.Header] { return m.outbox[y] }

// Rows reports the jamlet rows this memlet answers.
func (m *Memlet) Rows() []int { return append([]int(nil), m.rows...) }

// Step drains every row's inbox, services each request against the flat
// backing store, and (subject to per-row send-once-per-cycle limits)
// drains queued responses into the outbox.
func (m *Memlet) Step() {
	for _, y := range m.rows {
		out := m.outbox[y]
		pend := m.pending[y]
		for len(pend) > 0 && out.CanAppend() {
			out.Append(pend[0])
			pend = pend[1:]
		}
		m.pending[y] = pend

		in := m.inbox[y]
		for {
			h, ok := in.PopLeft()
			if !ok {
				break
			}
			m.pending[y] = append(m.pending[y], m.handle(h))
		}
	}
}

// Update resets every per-cycle queue token owned by this memlet.
func (m *Memlet) Update() {
	for _, y := range m.rows {
		m.inbox[y].Update()
		m.outbox[y].Update()
	}
}

func (m *Memlet) handle(h message.Header) message.Header {
	b := h.Base()
	ah := h.(*message.AddressHeader)
	kIndex, jInKIndex := m.p.JCoordsToKamlet(b.SourceX, b.SourceY)

	switch b.MessageType {
	case message.ReadLine:
		data := m.read(dramKey{kIndex, jInKIndex, ah.Address}, ah.NBytes)
		return message.NewBuilder(message.ReadLineResp).
			WithSource(m.x, b.SourceY).WithTarget(b.SourceX, b.SourceY).
			WithIdent(b.Ident).WithAddress(ah.Address).WithNBytes(ah.NBytes).
			WithPayload(data).BuildAddress()

	case message.WriteLineReadLine:
		m.write(dramKey{kIndex, jInKIndex, ah.OldAddress}, ah.Payload)
		data := m.read(dramKey{kIndex, jInKIndex, ah.Address}, ah.NBytes)
		return message.NewBuilder(message.WriteLineReadLineResp).
			WithSource(m.x, b.SourceY).WithTarget(b.SourceX, b.SourceY).
			WithIdent(b.Ident).WithAddress(ah.Address).WithNBytes(ah.NBytes).
			WithPayload(data).BuildAddress()

	case message.WriteLine:
		m.write(dramKey{kIndex, jInKIndex, ah.Address}, ah.Payload)
		return message.NewBuilder(message.WriteLineResp).
			WithSource(m.x, b.SourceY).WithTarget(b.SourceX, b.SourceY).
			WithIdent(b.Ident).BuildAddress()

	default:
		return message.NewBuilder(message.ReadLineResp).
			WithSource(m.x, b.SourceY).WithTarget(b.SourceX, b.SourceY).
			WithIdent(b.Ident).BuildAddress()
	}
}

func (m *Memlet) stripe() int {
	return m.p.CacheLineBytes / m.p.JInK()
}

// lineFor grows (if needed) and returns the mutable backing slice for
// one jamlet's byte-slice of a DRAM line.
func (m *Memlet) lineFor(kIndex, jInKIndex int, line uint64) []byte {
	key := dramKey{kIndex, jInKIndex, line}
	data := m.dram[key]
	if len(data) < m.stripe() {
		grown := make([]byte, m.stripe())
		copy(grown, data)
		m.dram[key] = grown
		data = grown
	}
	return data
}

// PokeByte writes one byte of backing DRAM at a jamlet-local byte
// address, for harness seeding.
func (m *Memlet) PokeByte(kIndex, jInKIndex int, byteAddr uint64, b byte) {
	line := byteAddr / uint64(m.stripe())
	m.lineFor(kIndex, jInKIndex, line)[int(byteAddr)%m.stripe()] = b
}

// PeekByte reads one byte of backing DRAM at a jamlet-local byte
// address, zero if never written.
func (m *Memlet) PeekByte(kIndex, jInKIndex int, byteAddr uint64) byte {
	line := byteAddr / uint64(m.stripe())
	data, ok := m.dram[dramKey{kIndex, jInKIndex, line}]
	off := int(byteAddr) % m.stripe()
	if !ok || off >= len(data) {
		return 0
	}
	return data[off]
}

// Preload seeds the backing store for one jamlet's byte-slice of a DRAM
// line, the harness-side equivalent of the teacher driver's
// PreloadMemory.
func (m *Memlet) Preload(kIndex, jInKIndex int, line uint64, data []byte) {
	m.write(dramKey{kIndex, jInKIndex, line}, data)
}

// PeekLine returns a copy of one jamlet's byte-slice of a DRAM line,
// zero-filled if never written, for harness inspection.
func (m *Memlet) PeekLine(kIndex, jInKIndex int, line uint64, n int) []byte {
	return m.read(dramKey{kIndex, jInKIndex, line}, n)
}

func (m *Memlet) read(key dramKey, n int) []byte {
	data, ok := m.dram[key]
	if !ok {
		return make([]byte, n)
	}
	out := make([]byte, n)
	copy(out, data)
	return out
}

func (m *Memlet) write(key dramKey, data []byte) {
	stored := make([]byte, len(data))
	copy(stored, data)
	m.dram[key] = stored
}
