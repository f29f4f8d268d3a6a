// Package message defines the header taxonomy carried over the mesh, the
// static message-type-to-channel binding, and the sim.Msg glue that lets a
// Header travel through akita's ports and connections.
//
// Header subtypes follow the reference model's dataclass hierarchy
// (original_source/python/zamlet/message.py is not part of the retrieved
// excerpt; the concrete field sets below are reconstructed from the call
// sites visible in load_gather_base.py, store_scatter_base.py and
// load_j2j_words.py), compiled here to a sum type whose discriminant is
// Type, per spec.md §6.5.
package message

import "github.com/sarchlab/akita/v4/sim"

// Type is the wire discriminant for a Header.
type Type int

const (
	ReadLine Type = iota
	ReadLineResp
	WriteLineReadLine
	WriteLineReadLineResp
	WriteLineReadLineDrop
	WriteLineResp
	WriteLine

	LoadJ2JWordsReq
	LoadJ2JWordsResp
	LoadJ2JWordsDrop
	StoreJ2JWordsReq
	StoreJ2JWordsResp
	StoreJ2JWordsDrop
	StoreJ2JWordsRetry

	ReadMemWordReq
	ReadMemWordResp
	ReadMemWordDrop
	WriteMemWordReq
	WriteMemWordResp
	WriteMemWordDrop
	WriteMemWordRetry

	LoadIndexedElementResp
	StoreIndexedElementResp

	ReadRegElementReq
	ReadRegElementResp
	ReadRegElementDrop

	Instructions
	IdentQueryResp
)

var typeNames = map[Type]string{
	ReadLine:                 "READ_LINE",
	ReadLineResp:              "READ_LINE_RESP",
	WriteLineReadLine:         "WRITE_LINE_READ_LINE",
	WriteLineReadLineResp:     "WRITE_LINE_READ_LINE_RESP",
	WriteLineReadLineDrop:     "WRITE_LINE_READ_LINE_DROP",
	WriteLineResp:             "WRITE_LINE_RESP",
	WriteLine:                 "WRITE_LINE",
	LoadJ2JWordsReq:           "LOAD_J2J_WORDS_REQ",
	LoadJ2JWordsResp:          "LOAD_J2J_WORDS_RESP",
	LoadJ2JWordsDrop:          "LOAD_J2J_WORDS_DROP",
	StoreJ2JWordsReq:          "STORE_J2J_WORDS_REQ",
	StoreJ2JWordsResp:         "STORE_J2J_WORDS_RESP",
	StoreJ2JWordsDrop:         "STORE_J2J_WORDS_DROP",
	StoreJ2JWordsRetry:        "STORE_J2J_WORDS_RETRY",
	ReadMemWordReq:            "READ_MEM_WORD_REQ",
	ReadMemWordResp:           "READ_MEM_WORD_RESP",
	ReadMemWordDrop:           "READ_MEM_WORD_DROP",
	WriteMemWordReq:           "WRITE_MEM_WORD_REQ",
	WriteMemWordResp:          "WRITE_MEM_WORD_RESP",
	WriteMemWordDrop:          "WRITE_MEM_WORD_DROP",
	WriteMemWordRetry:         "WRITE_MEM_WORD_RETRY",
	LoadIndexedElementResp:    "LOAD_INDEXED_ELEMENT_RESP",
	StoreIndexedElementResp:   "STORE_INDEXED_ELEMENT_RESP",
	ReadRegElementReq:         "READ_REG_ELEMENT_REQ",
	ReadRegElementResp:        "READ_REG_ELEMENT_RESP",
	ReadRegElementDrop:        "READ_REG_ELEMENT_DROP",
	Instructions:              "INSTRUCTIONS",
	IdentQueryResp:            "IDENT_QUERY_RESP",
}

// String renders the message type the way the reference model names it.
func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return "UNKNOWN"
}

// Channel returns the virtual channel this message type is statically
// bound to. Channel 0 is reserved for responses, drops and retries so a
// receiver is never required to send in order to make channel 0
// consumable (spec.md §4.4).
func (t Type) Channel() int {
	switch t {
	case ReadLineResp, WriteLineReadLineResp, WriteLineReadLineDrop, WriteLineResp,
		LoadJ2JWordsResp, LoadJ2JWordsDrop, StoreJ2JWordsResp, StoreJ2JWordsDrop, StoreJ2JWordsRetry,
		ReadMemWordResp, ReadMemWordDrop, WriteMemWordResp, WriteMemWordDrop, WriteMemWordRetry,
		LoadIndexedElementResp, StoreIndexedElementResp,
		ReadRegElementResp, ReadRegElementDrop,
		IdentQueryResp:
		return 0
	default:
		return 1
	}
}

// IsResponse reports whether this type must travel on channel 0.
func (t Type) IsResponse() bool { return t.Channel() == 0 }

// SendType distinguishes a single-destination packet from a
// tree-replicated broadcast.
type SendType int

const (
	Single SendType = iota
	Broadcast
)

// Direction names a router's logical port.
type Direction int

const (
	North Direction = iota
	South
	East
	West
	Host
)

func (d Direction) String() string {
	switch d {
	case North:
		return "N"
	case South:
		return "S"
	case East:
		return "E"
	case West:
		return "W"
	case Host:
		return "H"
	default:
		return "?"
	}
}

// Fields carries the fields every Header subtype shares (spec.md §6.5).
// Embed it first so a Header value can be handed directly to a
// sim.Buffer/sim.Port as a sim.Msg. It cannot be named Base: an
// anonymous field takes its type's name, which would collide with the
// Header.Base() accessor method below and make it unreachable.
type Fields struct {
	sim.MsgMeta

	MessageType Type
	SendType    SendType
	Length      int

	SourceX, SourceY int
	TargetX, TargetY int

	Ident int
	Chan  int // physical virtual-channel index this packet travels on
}

// Header is the sum type every message subtype implements.
type Header interface {
	sim.Msg
	Base() *Fields
}

func (b *Fields) Meta() *sim.MsgMeta { return &b.MsgMeta }
func (b *Fields) Base() *Fields      { return b }

// IdentHeader carries only the shared Fields: used for bare
// control/coherence packets (READ_LINE, WRITE_LINE, and their responses)
// that need nothing beyond an ident to correlate request and reply.
type IdentHeader struct {
	Fields

	Payload []byte // coherence line byte-slices ride here
	Fault   bool
}

func (h *IdentHeader) Clone() sim.Msg {
	c := *h
	c.ID = sim.GetIDGenerator().Generate()
	c.Payload = append([]byte(nil), h.Payload...)
	return &c
}

// TaggedHeader adds the per-tag correlation the J2J and scatter/gather
// protocols need.
type TaggedHeader struct {
	Fields

	Tag           int
	ParentIdent   int
	Mask          bool
	Payload       []byte
	DstByteInWord int
}

func (h *TaggedHeader) Clone() sim.Msg {
	c := *h
	c.ID = sim.GetIDGenerator().Generate()
	c.Payload = append([]byte(nil), h.Payload...)
	return &c
}

// AddressHeader carries a byte address target, used by coherence and
// memory-word requests.
type AddressHeader struct {
	Fields

	Address       uint64
	OldAddress    uint64 // evicted line's address, valid only for WriteLineReadLine
	NBytes        int
	DstByteInWord int
	Tag           int
	Ordered       bool
	ParentIdent   int
	Mask          bool
	Fault         bool
	Payload       []byte
}

func (h *AddressHeader) Clone() sim.Msg {
	c := *h
	c.ID = sim.GetIDGenerator().Generate()
	c.Payload = append([]byte(nil), h.Payload...)
	return &c
}

// ElementIndexHeader is used by the ordered indexed-access protocol,
// which dispatches one instruction (and therefore one header chain) per
// vector element.
type ElementIndexHeader struct {
	Fields

	ElementIndex int
	ParentIdent  int
	Masked       bool
	Fault        bool
	Payload      []byte
}

func (h *ElementIndexHeader) Clone() sim.Msg {
	c := *h
	c.ID = sim.GetIDGenerator().Generate()
	c.Payload = append([]byte(nil), h.Payload...)
	return &c
}

// ReadMemWordHeader requests (or answers) a strided/indexed/ordered
// memory-word access.
type ReadMemWordHeader struct {
	Fields

	Tag           int
	ElementIndex  int
	Ordered       bool
	ParentIdent   int
	Address       uint64
	DstByteInWord int
	NBytes        int
	Payload       []byte
	Fault         bool
}

func (h *ReadMemWordHeader) Clone() sim.Msg {
	c := *h
	c.ID = sim.GetIDGenerator().Generate()
	c.Payload = append([]byte(nil), h.Payload...)
	return &c
}

// WriteMemWordHeader is ReadMemWordHeader's write-side counterpart; it
// additionally carries the mask bit and the bytes to write.
type WriteMemWordHeader struct {
	Fields

	Tag           int
	ElementIndex  int
	Ordered       bool
	ParentIdent   int
	Address       uint64
	DstByteInWord int
	NBytes        int
	Mask          bool
	Payload       []byte
	Fault         bool
}

func (h *WriteMemWordHeader) Clone() sim.Msg {
	c := *h
	c.ID = sim.GetIDGenerator().Generate()
	c.Payload = append([]byte(nil), h.Payload...)
	return &c
}

// RegElementHeader carries a register-to-register gather request/response
// (READ_REG_ELEMENT_*).
type RegElementHeader struct {
	Fields

	Tag           int
	SrcReg        int
	SrcByteOffset int
	NBytes        int
	Payload       []byte
}

func (h *RegElementHeader) Clone() sim.Msg {
	c := *h
	c.ID = sim.GetIDGenerator().Generate()
	c.Payload = append([]byte(nil), h.Payload...)
	return &c
}

// Builder is the fluent constructor every caller uses, mirroring the
// teacher's MoveMsgBuilder idiom (cgra/msg.go) generalized to this
// package's header taxonomy.
type Builder struct {
	src, dst sim.RemotePort
	sendTime sim.VTimeInSec

	messageType Type
	sendType    SendType
	length      int

	sourceX, sourceY int
	targetX, targetY int
	ident            int
	channel          int

	tag, parentIdent, elementIndex, srcReg, srcByteOffset, nBytes, dstByteInWord int
	address, oldAddress                                                        uint64
	ordered, masked, mask, fault                                                bool
	payload                                                                     []byte
}

func NewBuilder(messageType Type) Builder {
	return Builder{messageType: messageType, channel: messageType.Channel()}
}

func (b Builder) WithSrc(src sim.RemotePort) Builder          { b.src = src; return b }
func (b Builder) WithDst(dst sim.RemotePort) Builder          { b.dst = dst; return b }
func (b Builder) WithSendTime(t sim.VTimeInSec) Builder       { b.sendTime = t; return b }
func (b Builder) WithSendType(st SendType) Builder            { b.sendType = st; return b }
func (b Builder) WithLength(n int) Builder                    { b.length = n; return b }
func (b Builder) WithSource(x, y int) Builder                 { b.sourceX, b.sourceY = x, y; return b }
func (b Builder) WithTarget(x, y int) Builder                 { b.targetX, b.targetY = x, y; return b }
func (b Builder) WithIdent(ident int) Builder                 { b.ident = ident; return b }
func (b Builder) WithChannel(ch int) Builder                  { b.channel = ch; return b }
func (b Builder) WithTag(tag int) Builder                     { b.tag = tag; return b }
func (b Builder) WithParentIdent(parent int) Builder          { b.parentIdent = parent; return b }
func (b Builder) WithElementIndex(idx int) Builder            { b.elementIndex = idx; return b }
func (b Builder) WithAddress(addr uint64) Builder              { b.address = addr; return b }
func (b Builder) WithOldAddress(addr uint64) Builder           { b.oldAddress = addr; return b }
func (b Builder) WithNBytes(n int) Builder                    { b.nBytes = n; return b }
func (b Builder) WithDstByteInWord(n int) Builder             { b.dstByteInWord = n; return b }
func (b Builder) WithOrdered(v bool) Builder                  { b.ordered = v; return b }
func (b Builder) WithMasked(v bool) Builder                   { b.masked = v; return b }
func (b Builder) WithMask(v bool) Builder                     { b.mask = v; return b }
func (b Builder) WithFault(v bool) Builder                    { b.fault = v; return b }
func (b Builder) WithPayload(p []byte) Builder                { b.payload = p; return b }
func (b Builder) WithSrcReg(reg int) Builder                   { b.srcReg = reg; return b }
func (b Builder) WithSrcByteOffset(off int) Builder            { b.srcByteOffset = off; return b }

func (b Builder) base() Fields {
	return Fields{
		MsgMeta: sim.MsgMeta{
			ID:  sim.GetIDGenerator().Generate(),
			Src: b.src,
			Dst: b.dst,
		},
		MessageType: b.messageType,
		SendType:    b.sendType,
		Length:      b.length,
		SourceX:     b.sourceX,
		SourceY:     b.sourceY,
		TargetX:     b.targetX,
		TargetY:     b.targetY,
		Ident:       b.ident,
		Chan:        b.channel,
	}
}

// BuildIdent builds an IdentHeader (coherence control packets).
func (b Builder) BuildIdent() *IdentHeader {
	return &IdentHeader{Fields: b.base(), Payload: b.payload, Fault: b.fault}
}

// BuildTagged builds a TaggedHeader (J2J transfer packets).
func (b Builder) BuildTagged() *TaggedHeader {
	return &TaggedHeader{
		Fields: b.base(), Tag: b.tag, ParentIdent: b.parentIdent,
		Mask: b.mask, Payload: b.payload, DstByteInWord: b.dstByteInWord,
	}
}

// BuildAddress builds an AddressHeader (coherence/gather addressed
// packets).
func (b Builder) BuildAddress() *AddressHeader {
	return &AddressHeader{
		Fields: b.base(), Address: b.address, OldAddress: b.oldAddress, NBytes: b.nBytes,
		DstByteInWord: b.dstByteInWord, Tag: b.tag, Ordered: b.ordered,
		ParentIdent: b.parentIdent, Mask: b.mask, Fault: b.fault, Payload: b.payload,
	}
}

// BuildElementIndex builds an ElementIndexHeader (ordered indexed access
// instruction dispatch).
func (b Builder) BuildElementIndex() *ElementIndexHeader {
	return &ElementIndexHeader{
		Fields: b.base(), ElementIndex: b.elementIndex, ParentIdent: b.parentIdent,
		Masked: b.masked, Fault: b.fault, Payload: b.payload,
	}
}

// BuildReadMemWord builds a ReadMemWordHeader.
func (b Builder) BuildReadMemWord() *ReadMemWordHeader {
	return &ReadMemWordHeader{
		Fields: b.base(), Tag: b.tag, ElementIndex: b.elementIndex, Ordered: b.ordered,
		ParentIdent: b.parentIdent, Address: b.address, DstByteInWord: b.dstByteInWord,
		NBytes: b.nBytes, Payload: b.payload, Fault: b.fault,
	}
}

// BuildWriteMemWord builds a WriteMemWordHeader.
func (b Builder) BuildWriteMemWord() *WriteMemWordHeader {
	return &WriteMemWordHeader{
		Fields: b.base(), Tag: b.tag, ElementIndex: b.elementIndex, Ordered: b.ordered,
		ParentIdent: b.parentIdent, Address: b.address, DstByteInWord: b.dstByteInWord,
		NBytes: b.nBytes, Mask: b.mask, Payload: b.payload, Fault: b.fault,
	}
}

// BuildRegElement builds a RegElementHeader (vrgather requests/replies).
func (b Builder) BuildRegElement() *RegElementHeader {
	return &RegElementHeader{
		Fields: b.base(), Tag: b.tag, SrcReg: b.srcReg, SrcByteOffset: b.srcByteOffset,
		NBytes: b.nBytes, Payload: b.payload,
	}
}
