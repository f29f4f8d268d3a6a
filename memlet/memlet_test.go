package memlet_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/lamlet/addr"
	"github.com/sarchlab/lamlet/memlet"
	"github.com/sarchlab/lamlet/message"
)

func testParams() addr.Params {
	return addr.Params{
		KCols: 2, KRows: 1, JCols: 1, JRows: 1,
		WordBytes: 8, VlineBytes: 16, MaxVLBytes: 256,
		PageBytes: 4096, CacheLineBytes: 64,
		JamletSRAMBytes: 1024, KamletMemoryBytes: 65536,
		NChannels: 2, RouterInputBufferLength: 4, RouterOutputBufferLength: 4,
		ReceiveBufferDepth: 4, NResponseIdents: 64, MaxResponseTags: 64, NVRegs: 32,
	}
}

var _ = Describe("Memlet", func() {
	var m *memlet.Memlet

	BeforeEach(func() {
		m = memlet.New(testParams(), -1, []int{0}, 4)
	})

	step := func() {
		m.Step()
		m.Update()
	}

	It("answers READ_LINE with the preloaded line slice", func() {
		line := make([]byte, 64)
		for i := range line {
			line[i] = byte(i)
		}
		m.Preload(0, 0, 7, line)

		req := message.NewBuilder(message.ReadLine).
			WithSource(0, 0).WithTarget(-1, 0).
			WithIdent(3).WithAddress(7).WithNBytes(64).
			BuildAddress()
		m.InboxFor(0).Append(req)

		step()
		step()

		h, ok := m.OutboxFor(0).PopLeft()
		Expect(ok).To(BeTrue())
		resp := h.(*message.AddressHeader)
		Expect(resp.MessageType).To(Equal(message.ReadLineResp))
		Expect(resp.Ident).To(Equal(3))
		Expect(resp.TargetX).To(Equal(0))
		Expect(resp.Payload).To(Equal(line))
	})

	It("zero-fills lines that were never written", func() {
		req := message.NewBuilder(message.ReadLine).
			WithSource(0, 0).WithTarget(-1, 0).
			WithIdent(1).WithAddress(9).WithNBytes(64).
			BuildAddress()
		m.InboxFor(0).Append(req)

		step()
		step()

		h, _ := m.OutboxFor(0).PopLeft()
		Expect(h.(*message.AddressHeader).Payload).To(Equal(make([]byte, 64)))
	})

	It("writes back the evicted line while fetching the new one", func() {
		dirty := make([]byte, 64)
		for i := range dirty {
			dirty[i] = 0xaa
		}
		fresh := make([]byte, 64)
		for i := range fresh {
			fresh[i] = 0x55
		}
		m.Preload(0, 0, 2, fresh)

		req := message.NewBuilder(message.WriteLineReadLine).
			WithSource(0, 0).WithTarget(-1, 0).
			WithIdent(5).WithAddress(2).WithOldAddress(1).WithNBytes(64).
			WithPayload(dirty).
			BuildAddress()
		m.InboxFor(0).Append(req)

		step()
		step()

		h, _ := m.OutboxFor(0).PopLeft()
		resp := h.(*message.AddressHeader)
		Expect(resp.MessageType).To(Equal(message.WriteLineReadLineResp))
		Expect(resp.Payload).To(Equal(fresh))
		Expect(m.PeekLine(0, 0, 1, 64)).To(Equal(dirty))
	})
})
