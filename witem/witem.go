// Package witem defines the waiting-item contract every in-flight
// transaction (J2J transfer, gather/scatter, indexed access, register
// gather) implements, plus the per-tag protocol state machine shared
// across all of them. Grounded on spec.md §4.6 and the WaitingItem base
// class usage visible across original_source/python/zamlet/transactions/*.py.
//
// The Jamlet/Kamlet interfaces below are the narrow surfaces package
// transaction needs from packages jamlet/kamlet; they live here (rather
// than as concrete types on jamlet.Jamlet/kamlet.Kamlet) so neither
// jamlet nor kamlet needs to import transaction, which owns the concrete
// Item implementations and the instruction types that create them.
package witem

import (
	"github.com/sarchlab/lamlet/addr"
	"github.com/sarchlab/lamlet/message"
	"github.com/sarchlab/lamlet/regfile"
	"github.com/sarchlab/lamlet/scalarmem"
	syncnet "github.com/sarchlab/lamlet/sync"
)

// ProtocolState is the per-tag send/receive state machine every
// transaction's tags progress through.
type ProtocolState int

const (
	Initial ProtocolState = iota
	NeedToSend
	WaitingForResponse
	Complete

	// WaitingInCaseFault holds a scatter-store tag whose element might be
	// cancelled by a concurrent fault-sync.
	WaitingInCaseFault

	// Receiver-side states for the J2J request/retry pattern.
	WaitingForRequest
	NeedToAskForResend
)

func (s ProtocolState) String() string {
	switch s {
	case Initial:
		return "INITIAL"
	case NeedToSend:
		return "NEED_TO_SEND"
	case WaitingForResponse:
		return "WAITING_FOR_RESPONSE"
	case Complete:
		return "COMPLETE"
	case WaitingInCaseFault:
		return "WAITING_IN_CASE_FAULT"
	case WaitingForRequest:
		return "WAITING_FOR_REQUEST"
	case NeedToAskForResend:
		return "NEED_TO_ASK_FOR_RESEND"
	default:
		return "UNKNOWN"
	}
}

// Jamlet is the surface a waiting item needs from its owning lane.
// Implemented by *jamlet.Jamlet.
type Jamlet interface {
	KIndex() int
	JInKIndex() int
	Coords() (x, y int)

	// Send enqueues h on the channel its message type is bound to. It
	// reports false if the per-cycle send queue has no room; the caller
	// must stay in NeedToSend and retry next cycle.
	Send(h message.Header) bool

	// Reply enqueues a response/drop header, deferring it locally when
	// the send queue has no room this cycle; unlike Send it never fails,
	// so receiver-side handlers (which run synchronously and have no
	// retry state) always answer exactly once.
	Reply(h message.Header)

	// ReadRF/WriteRF address this jamlet's slice of the logical vector
	// register file, by byte offset within the slice.
	ReadRF(byteOffset, n int) []byte
	WriteRF(byteOffset int, data []byte)

	// ReadSRAM/WriteSRAM address this jamlet's cache SRAM by flat byte
	// offset (slot*bytesPerSlot + within-slot offset; callers compute the
	// offset via the kamlet's cache.Table and its own JInK byte stripe).
	ReadSRAM(byteOffset, n int) []byte
	WriteSRAM(byteOffset int, data []byte)

	// RegisterItem/UnregisterItem attach this item to the jamlet's
	// packet dispatch table so arriving headers carrying this item's
	// ident reach HandlePacket.
	RegisterItem(ident int, it Item)
	UnregisterItem(ident int)
}

// Kamlet is the surface a waiting item needs from its owning tile.
// Implemented by *kamlet.Kamlet.
type Kamlet interface {
	KIndex() int
	NJamlets() int
	JamletAt(i int) Jamlet

	RegisterItem(ident int, it Item)
	UnregisterItem(ident int)

	// Params exposes the lamlet-wide geometry every address computation
	// (word-order decode, TLB lookup, stride arithmetic) needs.
	Params() addr.Params

	// TLB, Sync and RegFile expose the lamlet-wide page table, the
	// barrier/min-reduction network and this kamlet's register hazard
	// tracker, shared by every transaction that touches cache-backed
	// vector memory, ordered/unordered completion sync, or register
	// read/write sets.
	TLB() *addr.TLB
	Sync() *syncnet.Network
	RegFile() *regfile.File

	// ScalarMem exposes the lamlet-wide scalar memory, bypassing the mesh
	// the way package memlet bypasses it for DRAM (see package scalarmem).
	ScalarMem() *scalarmem.Store

	// EnsureLineResident, MarkLineModified and StripeBytes expose this
	// kamlet's coherent cache (package cache): the sole backing for
	// VPU memory, shared by the J2J transfers that read it in bulk
	// (package transaction/j2jwords) and by the stateless memory-word
	// responders every gather/scatter request lands on.
	EnsureLineResident(jInKIndex int, byteAddr uint64) (ready bool, slotIdx int)
	MarkLineModified(jInKIndex int, byteAddr uint64)
	StripeBytes() int
}

// Item is the hook set every waiting-item implements. The kamlet run
// loop calls MonitorKamlet and, once Ready, Finalize, exactly once per
// item per cycle; the jamlet run loop calls MonitorJamlet on every live
// item each cycle.
type Item interface {
	// InstrIdent identifies the instruction this item realizes; also the
	// dispatch key every jamlet/kamlet it touches is registered under.
	InstrIdent() int

	// MonitorJamlet may emit packets via j.Send and update per-tag state
	// local to jamlet j. Must not block. Called once per cycle for every
	// jamlet this item is registered on.
	MonitorJamlet(j Jamlet)

	// MonitorKamlet drives cross-jamlet synchronization, cache slot
	// acquisition and two-phase fault aggregation. Called once per cycle.
	MonitorKamlet(k Kamlet)

	// HandlePacket is called synchronously when a header carrying this
	// item's ident arrives at jamlet j, whether it is a request this item
	// must service (receiver side) or a response/drop/retry it sent out
	// itself (sender side); implementations dispatch on h's message type
	// and tag themselves.
	HandlePacket(j Jamlet, h message.Header)

	// Ready reports whether all work is complete and all syncs
	// collected.
	Ready() bool

	// Finalize runs once after Ready() is first observed true: release
	// rf_ident read/write sets and any cache slot held, and unregister
	// from every jamlet/kamlet it was registered on.
	Finalize(k Kamlet)
}
