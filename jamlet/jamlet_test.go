package jamlet_test

import (
	gomock "github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/lamlet/addr"
	"github.com/sarchlab/lamlet/jamlet"
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

var _ = Describe("Jamlet", func() {
	var (
		mockCtrl *gomock.Controller
		cache    *MockCacheBackend
		j        *jamlet.Jamlet
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		cache = NewMockCacheBackend(mockCtrl)
		j = jamlet.New(testParams(), 0, 0, 0, 0)
		j.SetCacheBackend(cache)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	// cycle runs one full send/route/receive pass, then resets the
	// per-cycle queue tokens the way the owning kamlet would.
	cycle := func() {
		j.StepSend()
		j.StepRouters()
		j.StepReceive()
		j.Update()
	}

	// drainEast pops every header currently sitting on a channel's East
	// output.
	drainEast := func(channel int) []message.Header {
		var out []message.Header
		q := j.Router(channel).OutputQueue(message.East)
		for {
			h, ok := q.PopLeft()
			if !ok {
				return out
			}
			out = append(out, h)
		}
	}

	It("admits one send per channel per cycle and reports backpressure", func() {
		req := func() message.Header {
			return message.NewBuilder(message.ReadMemWordReq).
				WithSource(0, 0).WithTarget(1, 0).WithIdent(1).
				BuildReadMemWord()
		}
		Expect(j.Send(req())).To(BeTrue())
		Expect(j.Send(req())).To(BeFalse(), "second append in the same cycle")
		j.Update()
		Expect(j.Send(req())).To(BeTrue())
	})

	It("defers replies instead of dropping them", func() {
		resp := func() message.Header {
			return message.NewBuilder(message.ReadMemWordResp).
				WithSource(0, 0).WithTarget(1, 0).WithIdent(1).
				BuildReadMemWord()
		}
		Expect(j.Send(resp())).To(BeTrue())
		j.Reply(resp()) // outbox already used this cycle; must not vanish

		sent := 0
		for i := 0; i < 4; i++ {
			cycle()
			sent += len(drainEast(0))
		}
		Expect(sent).To(Equal(2))
	})

	It("serves READ_MEM_WORD_REQ from the resident cache slot", func() {
		cache.EXPECT().EnsureLineResident(0, uint64(80)).Return(true, 3)
		cache.EXPECT().StripeBytes().Return(64).AnyTimes()
		j.WriteSRAM(3*64+16, []byte{1, 2, 3, 4})

		req := message.NewBuilder(message.ReadMemWordReq).
			WithSource(1, 0).WithTarget(0, 0).WithIdent(9).
			WithTag(2).WithAddress(80).WithNBytes(4).
			BuildReadMemWord()
		j.Router(1).Receive(message.East, req)

		var resp *message.ReadMemWordHeader
		for i := 0; i < 4 && resp == nil; i++ {
			cycle()
			for _, h := range drainEast(0) {
				resp = h.(*message.ReadMemWordHeader)
			}
		}
		Expect(resp).NotTo(BeNil())
		Expect(resp.MessageType).To(Equal(message.ReadMemWordResp))
		Expect(resp.Ident).To(Equal(9))
		Expect(resp.Tag).To(Equal(2))
		Expect(resp.Payload).To(Equal([]byte{1, 2, 3, 4}))
	})

	It("answers DROP for a read whose line is not resident", func() {
		cache.EXPECT().EnsureLineResident(0, uint64(80)).Return(false, 0)

		req := message.NewBuilder(message.ReadMemWordReq).
			WithSource(1, 0).WithTarget(0, 0).WithIdent(9).
			WithTag(2).WithAddress(80).WithNBytes(4).
			BuildReadMemWord()
		j.Router(1).Receive(message.East, req)

		var resp *message.ReadMemWordHeader
		for i := 0; i < 4 && resp == nil; i++ {
			cycle()
			for _, h := range drainEast(0) {
				resp = h.(*message.ReadMemWordHeader)
			}
		}
		Expect(resp).NotTo(BeNil())
		Expect(resp.MessageType).To(Equal(message.ReadMemWordDrop))
	})

	It("serves WRITE_MEM_WORD_REQ and marks the line dirty", func() {
		cache.EXPECT().EnsureLineResident(0, uint64(32)).Return(true, 0)
		cache.EXPECT().StripeBytes().Return(64).AnyTimes()
		cache.EXPECT().MarkLineModified(0, uint64(32))

		req := message.NewBuilder(message.WriteMemWordReq).
			WithSource(1, 0).WithTarget(0, 0).WithIdent(4).
			WithAddress(32).WithNBytes(4).WithPayload([]byte{9, 8, 7, 6}).
			BuildWriteMemWord()
		j.Router(1).Receive(message.East, req)

		var resp *message.WriteMemWordHeader
		for i := 0; i < 4 && resp == nil; i++ {
			cycle()
			for _, h := range drainEast(0) {
				resp = h.(*message.WriteMemWordHeader)
			}
		}
		Expect(resp).NotTo(BeNil())
		Expect(resp.MessageType).To(Equal(message.WriteMemWordResp))
		Expect(j.ReadSRAM(32, 4)).To(Equal([]byte{9, 8, 7, 6}))
	})

	It("parks a write on a miss and asks for a resend once the line lands", func() {
		calls := 0
		cache.EXPECT().EnsureLineResident(0, uint64(32)).
			DoAndReturn(func(int, uint64) (bool, int) {
				calls++
				return calls > 1, 0 // miss on arrival, resident afterwards
			}).AnyTimes()

		req := message.NewBuilder(message.WriteMemWordReq).
			WithSource(1, 0).WithTarget(0, 0).WithIdent(4).
			WithTag(1).WithAddress(32).WithNBytes(4).WithPayload([]byte{9, 8, 7, 6}).
			BuildWriteMemWord()
		j.Router(1).Receive(message.East, req)

		var retry *message.WriteMemWordHeader
		for i := 0; i < 6 && retry == nil; i++ {
			cycle()
			for _, h := range drainEast(0) {
				retry = h.(*message.WriteMemWordHeader)
			}
		}
		Expect(retry).NotTo(BeNil())
		Expect(retry.MessageType).To(Equal(message.WriteMemWordRetry))
		Expect(retry.Ident).To(Equal(4))
		Expect(retry.Tag).To(Equal(1))
	})

	It("serves READ_REG_ELEMENT_REQ from its register slice", func() {
		j.WriteRF(5*8, []byte{0xca, 0xfe, 0, 0})

		req := message.NewBuilder(message.ReadRegElementReq).
			WithSource(1, 0).WithTarget(0, 0).WithIdent(2).
			WithTag(1).WithSrcReg(5).WithSrcByteOffset(0).WithNBytes(4).
			BuildRegElement()
		j.Router(1).Receive(message.East, req)

		var resp *message.RegElementHeader
		for i := 0; i < 4 && resp == nil; i++ {
			cycle()
			if h, ok := j.Router(0).OutputQueue(message.East).PopLeft(); ok {
				resp = h.(*message.RegElementHeader)
			}
		}
		Expect(resp).NotTo(BeNil())
		Expect(resp.Payload).To(Equal([]byte{0xca, 0xfe, 0, 0}))
	})
})
