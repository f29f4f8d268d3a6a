package clock_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/lamlet/clock"
)

var _ = Describe("Clock", func() {
	It("runs cycle hooks before update hooks, in registration order", func() {
		var order []string
		c := clock.New(0)
		c.OnCycle(func() { order = append(order, "cycle-a") })
		c.OnCycle(func() { order = append(order, "cycle-b") })
		c.OnUpdate(func() { order = append(order, "update-a") })

		Expect(c.Step()).To(Succeed())
		Expect(order).To(Equal([]string{"cycle-a", "cycle-b", "update-a"}))
	})

	It("increments the cycle counter once per Step", func() {
		c := clock.New(0)
		Expect(c.Cycle()).To(BeEquivalentTo(0))
		Expect(c.Step()).To(Succeed())
		Expect(c.Cycle()).To(BeEquivalentTo(1))
	})

	It("times out once max_cycles is exceeded", func() {
		c := clock.New(2)
		timedOut := false
		c.OnTimeout(func(cycle uint64) { timedOut = true })

		Expect(c.Step()).To(Succeed())
		Expect(c.Step()).To(Succeed())
		err := c.Step()
		Expect(err).To(HaveOccurred())
		Expect(timedOut).To(BeTrue())
	})

	It("Run stops as soon as the condition is satisfied", func() {
		c := clock.New(100)
		n := 0
		c.OnCycle(func() { n++ })
		Expect(c.Run(func() bool { return n >= 5 })).To(Succeed())
		Expect(n).To(Equal(5))
	})
})

var _ = Describe("Future", func() {
	It("is not ready until resolved", func() {
		f := clock.NewFuture[int]()
		Expect(f.Ready()).To(BeFalse())
		f.Resolve(42)
		Expect(f.Ready()).To(BeTrue())
		Expect(f.Value()).To(Equal(42))
	})

	It("panics on double resolution", func() {
		f := clock.NewFuture[int]()
		f.Resolve(1)
		Expect(func() { f.Resolve(2) }).To(Panic())
	})

	It("panics when read before ready", func() {
		f := clock.NewFuture[int]()
		Expect(func() { f.Value() }).To(Panic())
	})
})
