package ioport_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/lamlet/ioport"
)

type testMsg sim.MsgMeta

func (m *testMsg) Meta() *sim.MsgMeta { return (*sim.MsgMeta)(m) }
func (m *testMsg) Clone() sim.Msg {
	clone := *m
	clone.ID = sim.GetIDGenerator().Generate()
	return &clone
}

var _ = Describe("Port", func() {
	It("reports its own remote name", func() {
		p := ioport.New(nil, 2, 2, "kamlet(0,0).memPort")
		Expect(p.AsRemote()).To(Equal(sim.RemotePort("kamlet(0,0).memPort")))
		Expect(p.Name()).To(Equal("kamlet(0,0).memPort"))
	})

	It("refuses to send a message whose Src does not match the port", func() {
		p := ioport.New(nil, 2, 2, "PortA")
		msg := &testMsg{ID: sim.GetIDGenerator().Generate(), Src: "PortB", Dst: "PortC"}
		Expect(func() { p.Send(msg) }).To(Panic())
	})

	It("reports CanSend true for an empty outgoing buffer", func() {
		p := ioport.New(nil, 2, 2, "PortA")
		Expect(p.CanSend()).To(BeTrue())
		Expect(p.PeekOutgoing()).To(BeNil())
		Expect(p.RetrieveIncoming()).To(BeNil())
	})
})
