package message_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/lamlet/message"
)

var _ = Describe("Type", func() {
	It("names every channel-0 response/drop/retry type", func() {
		responses := []message.Type{
			message.ReadLineResp, message.WriteLineReadLineResp, message.WriteLineReadLineDrop,
			message.WriteLineResp, message.LoadJ2JWordsResp, message.LoadJ2JWordsDrop,
			message.StoreJ2JWordsResp, message.StoreJ2JWordsDrop, message.StoreJ2JWordsRetry,
			message.ReadMemWordResp, message.ReadMemWordDrop, message.WriteMemWordResp,
			message.WriteMemWordDrop, message.WriteMemWordRetry, message.LoadIndexedElementResp,
			message.StoreIndexedElementResp, message.ReadRegElementResp, message.ReadRegElementDrop,
			message.IdentQueryResp,
		}
		for _, t := range responses {
			Expect(t.Channel()).To(Equal(0), t.String())
			Expect(t.IsResponse()).To(BeTrue(), t.String())
		}
	})

	It("binds every request type to a channel >= 1", func() {
		requests := []message.Type{
			message.ReadLine, message.WriteLineReadLine, message.WriteLine,
			message.LoadJ2JWordsReq, message.StoreJ2JWordsReq,
			message.ReadMemWordReq, message.WriteMemWordReq,
			message.ReadRegElementReq, message.Instructions,
		}
		for _, t := range requests {
			Expect(t.Channel()).To(BeNumerically(">=", 1), t.String())
			Expect(t.IsResponse()).To(BeFalse(), t.String())
		}
	})

	It("stringifies to the reference model's names", func() {
		Expect(message.ReadMemWordReq.String()).To(Equal("READ_MEM_WORD_REQ"))
		Expect(message.StoreJ2JWordsRetry.String()).To(Equal("STORE_J2J_WORDS_RETRY"))
	})
})

var _ = Describe("Builder", func() {
	It("builds a ReadMemWordHeader usable as a sim.Msg", func() {
		h := message.NewBuilder(message.ReadMemWordReq).
			WithSrc("jamlet(0,0)").
			WithDst("jamlet(1,0)").
			WithIdent(3).
			WithTag(2).
			WithAddress(64).
			WithNBytes(4).
			BuildReadMemWord()

		var _ sim.Msg = h
		Expect(h.Meta().Src).To(Equal(sim.RemotePort("jamlet(0,0)")))
		Expect(h.Meta().Dst).To(Equal(sim.RemotePort("jamlet(1,0)")))
		Expect(h.Base().Ident).To(Equal(3))
		Expect(h.Tag).To(Equal(2))
		Expect(h.Address).To(Equal(uint64(64)))
		Expect(h.Base().Chan).To(Equal(message.ReadMemWordReq.Channel()))
	})

	It("clones with a fresh message ID and a copied payload", func() {
		h := message.NewBuilder(message.LoadJ2JWordsReq).
			WithPayload([]byte{1, 2, 3}).
			BuildTagged()

		clone := h.Clone().(*message.TaggedHeader)
		Expect(clone.ID).NotTo(Equal(h.ID))
		Expect(clone.Payload).To(Equal(h.Payload))

		clone.Payload[0] = 99
		Expect(h.Payload[0]).To(Equal(byte(1)))
	})

	It("defaults the channel from the message type", func() {
		h := message.NewBuilder(message.WriteMemWordResp).BuildWriteMemWord()
		Expect(h.Base().Chan).To(Equal(0))
	})
})
