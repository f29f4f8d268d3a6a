package monitor_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/lamlet/monitor"
)

var _ = Describe("NopHooks", func() {
	It("implements Hooks and does nothing", func() {
		var h monitor.Hooks = monitor.NopHooks{}
		id := h.SpanStart("transaction", 1)
		h.MessageSent(0, 0, "READ_MEM_WORD_REQ")
		h.SpanEnd(id)
	})
})

var _ = Describe("AkitaHooks", func() {
	It("hands out distinct span IDs and closes them", func() {
		h := monitor.NewAkitaHooks(nil)
		a := h.SpanStart("transaction", 1)
		b := h.SpanStart("transaction", 2)
		Expect(a).NotTo(Equal(b))
		h.SpanEnd(a)
		h.SpanEnd(b)
	})

	It("tolerates a nil underlying monitor", func() {
		h := monitor.NewAkitaHooks(nil)
		Expect(func() { h.RegisterComponent(nil) }).NotTo(Panic())
	})
})
