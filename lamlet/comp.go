package lamlet

import (
	"errors"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/lamlet/ioport"
	"github.com/sarchlab/lamlet/regfile"
	"github.com/sarchlab/lamlet/witem"
)

// KernelMsg delivers kernel operations to a Comp's host port: the
// engine-level realization of spec.md §6.1's INSTRUCTIONS stream, with
// the operation records riding the message instead of packed words.
type KernelMsg struct {
	sim.MsgMeta

	Ops []KernelOp
}

func (m *KernelMsg) Meta() *sim.MsgMeta { return &m.MsgMeta }

func (m *KernelMsg) Clone() sim.Msg {
	c := *m
	c.ID = sim.GetIDGenerator().Generate()
	c.Ops = append([]KernelOp(nil), m.Ops...)
	return &c
}

// Comp adapts a Device to sim.TickingComponent so a harness can drive
// the simulation from a sim.Engine (NewSerialEngine, builders, schedule
// a tick event, engine runs to quiescence). Comp runs one device clock
// cycle per engine tick, feeding it a queue of kernel operations;
// ordered indexed operations are not accepted here (they need the
// synchronous per-element API), matching the declarative kernel-file
// surface.
type Comp struct {
	*sim.TickingComponent

	device   *Device
	hostPort ioport.Port
	queue    []KernelOp

	inflight []witem.Item
	rfIdents []regfile.Ident
	rfRead   []int
	rfWrite  []int

	results []Result
	err     error
}

// CompBuilder builds Comps, in the teacher's fluent-builder shape.
type CompBuilder struct {
	engine sim.Engine
	freq   sim.Freq
	device *Device
}

func (b CompBuilder) WithEngine(engine sim.Engine) CompBuilder {
	b.engine = engine
	return b
}

func (b CompBuilder) WithFreq(freq sim.Freq) CompBuilder {
	b.freq = freq
	return b
}

func (b CompBuilder) WithDevice(d *Device) CompBuilder {
	b.device = d
	return b
}

func (b CompBuilder) Build(name string) *Comp {
	c := &Comp{device: b.device}
	c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)
	c.hostPort = ioport.New(c, 4, 4, name+".HostPort")
	return c
}

// HostPort exposes the port a front-end component sends KernelMsgs to.
func (c *Comp) HostPort() ioport.Port { return c.hostPort }

// EnqueueKernel appends ops to the run queue; they dispatch in order as
// earlier operations complete.
func (c *Comp) EnqueueKernel(ops []KernelOp) {
	c.queue = append(c.queue, ops...)
}

// Results returns the per-op results collected so far, and Err any
// fatal simulation error (timeout or an unknown op).
func (c *Comp) Results() []Result { return c.results }
func (c *Comp) Err() error        { return c.err }

// Tick advances the device by one cycle, dispatching the next queued
// operation whenever the register-file hazard trackers admit it and the
// previous operation has fully retired.
func (c *Comp) Tick() bool {
	if c.err != nil {
		return false
	}

	for {
		msg := c.hostPort.RetrieveIncoming()
		if msg == nil {
			break
		}
		if km, ok := msg.(*KernelMsg); ok {
			c.queue = append(c.queue, km.Ops...)
		}
	}

	if c.inflight != nil && allReady(c.inflight) {
		c.device.releaseRF(c.rfIdents, c.rfRead, c.rfWrite)
		c.results = append(c.results, Result{
			Success:      minFaultOf(c.inflight) == nil,
			FaultElement: minFaultOf(c.inflight),
		})
		c.inflight = nil
	}

	if c.inflight == nil && len(c.queue) > 0 {
		c.tryDispatch()
	}

	if c.inflight == nil && len(c.queue) == 0 && !c.device.Busy() {
		return false
	}

	if err := c.device.clk.Step(); err != nil {
		c.err = err // clock.ErrTimeout: budget exhausted
		return false
	}
	return true
}

func (c *Comp) tryDispatch() {
	op := c.queue[0]

	read, write, ok := c.device.kernelOpRegSets(op)
	if !ok {
		c.err = errors.New("lamlet: kernel op " + op.Op + " is not dispatchable from a kernel file")
		return
	}
	for _, k := range c.device.kamlets {
		if !k.RegFile().CanStart(read, write) {
			return // hazards still outstanding; retry next tick
		}
	}

	idents := make([]regfile.Ident, 0, len(c.device.kamlets))
	for _, k := range c.device.kamlets {
		idents = append(idents, k.RegFile().Start(read, write))
	}

	items, err := c.device.dispatchKernelOp(op)
	if err != nil {
		c.err = err
		return
	}
	c.queue = c.queue[1:]
	c.inflight, c.rfIdents, c.rfRead, c.rfWrite = items, idents, read, write
}

func allReady(items []witem.Item) bool {
	for _, it := range items {
		if !it.Ready() {
			return false
		}
	}
	return true
}
