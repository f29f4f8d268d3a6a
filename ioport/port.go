// Package ioport adapts the teacher's core/port.go Port abstraction to
// the lamlet device tree's host<->device link (lamlet.Comp's host
// port), driven by sim.Connection/sim.Buffer exactly as core.Core's
// MemPort is.
//
// The mesh's own N/S/E/W/H virtual channels, and the kamlet<->memlet
// traffic that rides them, are handled entirely inside package router;
// ioport.Port is only used where a component must speak directly to an
// akita sim.Connection instead of going through a neighbor router.
package ioport

import (
	"fmt"
	"sync"

	"github.com/sarchlab/akita/v4/sim"
)

var HookPosPortMsgSend = &sim.HookPos{Name: "Port Msg Send"}
var HookPosPortMsgRecvd = &sim.HookPos{Name: "Port Msg Recv"}
var HookPosPortMsgRetrieve = &sim.HookPos{Name: "Port Msg Retrieve"}

// Port is owned by a component and plugs into an akita connection.
type Port interface {
	sim.Named
	sim.Hookable

	AsRemote() sim.RemotePort
	SetConnection(conn sim.Connection)
	Component() sim.Component

	Deliver(msg sim.Msg) *sim.SendError
	NotifyAvailable()
	RetrieveOutgoing() sim.Msg
	PeekOutgoing() sim.Msg

	CanSend() bool
	Send(msg sim.Msg) *sim.SendError
	RetrieveIncoming() sim.Msg
	PeekIncoming() sim.Msg
}

type defaultPort struct {
	sim.HookableBase

	lock sync.Mutex
	name string
	comp sim.Component
	conn sim.Connection

	incomingBuf sim.Buffer
	outgoingBuf sim.Buffer
}

// New creates a port with default single-channel behavior.
func New(comp sim.Component, incomingBufCap, outgoingBufCap int, name string) Port {
	p := new(defaultPort)
	p.comp = comp
	p.incomingBuf = sim.NewBuffer(name+".IncomingBuf", incomingBufCap)
	p.outgoingBuf = sim.NewBuffer(name+".OutgoingBuf", outgoingBufCap)
	p.name = name
	return p
}

func (p *defaultPort) AsRemote() sim.RemotePort { return sim.RemotePort(p.name) }

func (p *defaultPort) SetConnection(conn sim.Connection) {
	if p.conn != nil {
		panic(fmt.Sprintf("connection already set to %s, now connecting to %s",
			p.conn.Name(), conn.Name()))
	}
	p.conn = conn
}

func (p *defaultPort) Component() sim.Component { return p.comp }
func (p *defaultPort) Name() string             { return p.name }

func (p *defaultPort) CanSend() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.outgoingBuf.CanPush()
}

func (p *defaultPort) Send(msg sim.Msg) *sim.SendError {
	p.lock.Lock()

	msgMustBeValid(p, msg)

	if !p.outgoingBuf.CanPush() {
		p.lock.Unlock()
		return sim.NewSendError()
	}

	wasEmpty := p.outgoingBuf.Size() == 0
	p.outgoingBuf.Push(msg)
	p.InvokeHook(sim.HookCtx{Domain: p, Pos: HookPosPortMsgSend, Item: msg})
	p.lock.Unlock()

	if wasEmpty {
		p.conn.NotifySend()
	}
	return nil
}

func (p *defaultPort) Deliver(msg sim.Msg) *sim.SendError {
	p.lock.Lock()

	if !p.incomingBuf.CanPush() {
		p.lock.Unlock()
		return sim.NewSendError()
	}

	wasEmpty := p.incomingBuf.Size() == 0
	p.InvokeHook(sim.HookCtx{Domain: p, Pos: HookPosPortMsgRecvd, Item: msg})
	p.incomingBuf.Push(msg)
	p.lock.Unlock()

	if p.comp != nil && wasEmpty {
		p.comp.NotifyRecv(p)
	}
	return nil
}

func (p *defaultPort) RetrieveIncoming() sim.Msg {
	p.lock.Lock()
	defer p.lock.Unlock()

	item := p.incomingBuf.Pop()
	if item == nil {
		return nil
	}
	msg := item.(sim.Msg)
	p.InvokeHook(sim.HookCtx{Domain: p, Pos: HookPosPortMsgRetrieve, Item: msg})

	if p.conn != nil && p.incomingBuf.Size() == p.incomingBuf.Capacity()-1 {
		p.conn.NotifyAvailable(p)
	}
	return msg
}

func (p *defaultPort) RetrieveOutgoing() sim.Msg {
	p.lock.Lock()
	defer p.lock.Unlock()

	item := p.outgoingBuf.Pop()
	if item == nil {
		return nil
	}
	msg := item.(sim.Msg)
	p.InvokeHook(sim.HookCtx{Domain: p, Pos: HookPosPortMsgRetrieve, Item: msg})

	if p.outgoingBuf.Size() == p.outgoingBuf.Capacity()-1 {
		p.comp.NotifyPortFree(p)
	}
	return msg
}

func (p *defaultPort) PeekIncoming() sim.Msg {
	p.lock.Lock()
	defer p.lock.Unlock()
	item := p.incomingBuf.Peek()
	if item == nil {
		return nil
	}
	return item.(sim.Msg)
}

func (p *defaultPort) PeekOutgoing() sim.Msg {
	p.lock.Lock()
	defer p.lock.Unlock()
	item := p.outgoingBuf.Peek()
	if item == nil {
		return nil
	}
	return item.(sim.Msg)
}

func (p *defaultPort) NotifyAvailable() {
	if p.comp != nil {
		p.comp.NotifyPortFree(p)
	}
}

func msgMustBeValid(p Port, msg sim.Msg) {
	if p.Name() != string(msg.Meta().Src) {
		panic(fmt.Sprintf("sending from a port (%s) that is not the message's src (%s)",
			p.Name(), msg.Meta().Src))
	}
	if msg.Meta().Dst == "" {
		panic("message destination is empty")
	}
	if msg.Meta().Src == msg.Meta().Dst {
		panic(fmt.Sprintf("message src and dst are the same: %s", msg.Meta().Src))
	}
}
