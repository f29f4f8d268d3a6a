package queue_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/lamlet/queue"
)

var _ = Describe("Queue", func() {
	var q *queue.Queue[int]

	BeforeEach(func() {
		q = queue.New[int](2)
	})

	It("admits at most one append per cycle", func() {
		Expect(q.CanAppend()).To(BeTrue())
		q.Append(1)
		Expect(q.CanAppend()).To(BeFalse())

		q.Update()
		Expect(q.CanAppend()).To(BeTrue())
	})

	It("is FIFO", func() {
		q.Append(1)
		q.Update()
		q.Append(2)

		v, ok := q.PopLeft()
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(1))

		v, ok = q.PopLeft()
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(2))

		_, ok = q.PopLeft()
		Expect(ok).To(BeFalse())
	})

	It("refuses to exceed capacity even across cycles", func() {
		q.Append(1)
		q.Update()
		q.Append(2)
		q.Update()
		Expect(q.CanAppend()).To(BeFalse())
	})

	It("panics on append without capacity", func() {
		q.Append(1)
		Expect(func() { q.Append(2) }).To(Panic())
	})
})
