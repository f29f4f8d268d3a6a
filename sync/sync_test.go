package sync_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/lamlet/sync"
)

func intp(v int) *int { return &v }

// settle steps the network until node 0 observes completion of id, or
// the given cycle budget runs out, returning the cycles consumed.
func settle(n *sync.Network, id sync.Ident, maxCycles int) int {
	for c := 0; c < maxCycles; c++ {
		if n.IsComplete(id, 0) {
			return c
		}
		n.Step()
	}
	return maxCycles
}

var _ = Describe("Network", func() {
	It("is not complete until every kamlet contributes", func() {
		n := sync.New(2, 2)
		n.LocalEvent(1, 0, nil)
		n.LocalEvent(1, 1, nil)
		for c := 0; c < 30; c++ {
			n.Step()
		}
		Expect(n.IsComplete(1, 0)).To(BeFalse())

		n.LocalEvent(1, 2, nil)
		n.LocalEvent(1, 3, nil)
		Expect(settle(n, 1, 30)).To(BeNumerically("<", 30))
		Expect(n.IsComplete(1, 0)).To(BeTrue())
	})

	It("aggregates the minimum of contributed values at every node", func() {
		n := sync.New(3, 1)
		n.LocalEvent(7, 0, intp(5))
		n.LocalEvent(7, 1, intp(2))
		n.LocalEvent(7, 2, nil)
		settle(n, 7, 30)
		for k := 0; k < 3; k++ {
			Expect(n.IsComplete(7, k)).To(BeTrue(), "node %d", k)
			Expect(*n.GetMinValue(7, k)).To(Equal(2), "node %d", k)
		}
	})

	It("returns nil for a min value when nobody contributed one", func() {
		n := sync.New(2, 1)
		n.LocalEvent(3, 0, nil)
		n.LocalEvent(3, 1, nil)
		settle(n, 3, 30)
		Expect(n.GetMinValue(3, 0)).To(BeNil())
	})

	It("propagates one hop per cycle, not instantaneously", func() {
		n := sync.New(4, 1)
		n.LocalEvent(9, 0, nil)
		n.LocalEvent(9, 1, nil)
		n.LocalEvent(9, 2, nil)
		n.LocalEvent(9, 3, nil)
		// Node 0 cannot have seen node 3's event before any Step: the
		// contribution is three hops away.
		Expect(n.IsComplete(9, 0)).To(BeFalse())
		n.Step()
		Expect(n.IsComplete(9, 0)).To(BeFalse())
	})

	It("completes everywhere within the grid-diameter bound", func() {
		const kCols, kRows = 4, 4
		n := sync.New(kCols, kRows)
		for k := 0; k < kCols*kRows; k++ {
			n.LocalEvent(2, k, intp(100+k))
		}
		bound := (kCols+kRows)*5 + 10
		cycles := 0
		allComplete := func() bool {
			for k := 0; k < kCols*kRows; k++ {
				if !n.IsComplete(2, k) {
					return false
				}
			}
			return true
		}
		for !allComplete() {
			Expect(cycles).To(BeNumerically("<", bound))
			n.Step()
			cycles++
		}
		for k := 0; k < kCols*kRows; k++ {
			Expect(*n.GetMinValue(2, k)).To(Equal(100))
		}
	})

	It("keeps a barrier alive until every participant has released it", func() {
		n := sync.New(2, 1)
		n.LocalEvent(5, 0, nil)
		n.LocalEvent(5, 1, nil)
		settle(n, 5, 30)
		Expect(n.IsComplete(5, 0)).To(BeTrue())

		n.Release(5)
		Expect(n.IsComplete(5, 1)).To(BeTrue(),
			"the slower participant still polls completion")
		n.Release(5)
		Expect(n.IsComplete(5, 1)).To(BeFalse())
	})

	It("treats each ident independently", func() {
		n := sync.New(1, 1)
		n.LocalEvent(1, 0, intp(1))
		n.LocalEvent(2, 0, intp(2))
		Expect(*n.GetMinValue(1, 0)).To(Equal(1))
		Expect(*n.GetMinValue(2, 0)).To(Equal(2))
		Expect(n.IsComplete(1, 0)).To(BeTrue())
		Expect(n.IsComplete(2, 0)).To(BeTrue())
	})
})
