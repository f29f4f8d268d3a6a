package kamlet_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/lamlet/addr"
	"github.com/sarchlab/lamlet/jamlet"
	"github.com/sarchlab/lamlet/kamlet"
	"github.com/sarchlab/lamlet/message"
	"github.com/sarchlab/lamlet/scalarmem"
	syncnet "github.com/sarchlab/lamlet/sync"
	"github.com/sarchlab/lamlet/witem"
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

// countdownItem is a minimal waiting item: ready after a fixed number of
// kamlet monitor calls.
type countdownItem struct {
	ident     int
	remaining int
	finalized bool
}

func (c *countdownItem) InstrIdent() int { return c.ident }

func (c *countdownItem) MonitorJamlet(witem.Jamlet) {}

func (c *countdownItem) MonitorKamlet(witem.Kamlet) {
	if c.remaining > 0 {
		c.remaining--
	}
}

func (c *countdownItem) HandlePacket(witem.Jamlet, message.Header) {}

func (c *countdownItem) Ready() bool { return c.remaining == 0 }

func (c *countdownItem) Finalize(k witem.Kamlet) {
	c.finalized = true
	k.UnregisterItem(c.ident)
}

type countdownInstr struct {
	ident  int
	cycles int
}

func (i *countdownInstr) Dispatch(*kamlet.Kamlet) witem.Item {
	return &countdownItem{ident: i.ident, remaining: i.cycles}
}

func newKamlet(p addr.Params) *kamlet.Kamlet {
	js := []*jamlet.Jamlet{jamlet.New(p, 0, 0, 0, 0)}
	return kamlet.New(p, 0, js, addr.NewTLB(p), syncnet.New(p.KCols, p.KRows), scalarmem.New(), -1, 0)
}

var _ = Describe("Kamlet", func() {
	var k *kamlet.Kamlet

	BeforeEach(func() {
		k = newKamlet(testParams())
	})

	It("monitors dispatched items each cycle and finalizes ready ones", func() {
		it := k.Dispatch(&countdownInstr{ident: 1, cycles: 3}).(*countdownItem)
		Expect(k.Busy()).To(BeTrue())

		for i := 0; i < 3; i++ {
			Expect(it.finalized).To(BeFalse())
			k.Step()
			k.Update()
		}
		Expect(it.finalized).To(BeTrue())
		Expect(k.Busy()).To(BeFalse())
	})

	It("drives items in ascending ident order", func() {
		var order []int
		mk := func(ident int) *orderItem {
			return &orderItem{ident: ident, order: &order}
		}
		a, b, c := mk(12), mk(3), mk(7)
		k.RegisterItem(12, a)
		k.RegisterItem(3, b)
		k.RegisterItem(7, c)

		k.Step()
		Expect(order).To(Equal([]int{3, 7, 12}))
	})

	It("starts exactly one line fetch per missing line", func() {
		ready, slot := k.EnsureLineResident(0, 128)
		Expect(ready).To(BeFalse())

		// Asking again while the fetch is outstanding must not start a
		// second one; the slot is already reserved.
		readyAgain, slotAgain := k.EnsureLineResident(0, 130)
		Expect(readyAgain).To(BeFalse())
		Expect(slotAgain).To(Equal(slot))
		Expect(k.Busy()).To(BeTrue())
	})
})

type orderItem struct {
	ident int
	order *[]int
}

func (o *orderItem) InstrIdent() int { return o.ident }

func (o *orderItem) MonitorJamlet(witem.Jamlet) {}

func (o *orderItem) MonitorKamlet(witem.Kamlet) {
	*o.order = append(*o.order, o.ident)
}

func (o *orderItem) HandlePacket(witem.Jamlet, message.Header) {}

func (o *orderItem) Ready() bool { return false }

func (o *orderItem) Finalize(witem.Kamlet) {}
