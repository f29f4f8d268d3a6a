package addr_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/lamlet/addr"
)

func scenarioParams() addr.Params {
	return addr.Params{
		KCols: 2, KRows: 1,
		JCols: 1, JRows: 1,
		WordBytes:         8,
		VlineBytes:        16, // word_bytes * j_in_l (j_in_l = k_in_l*j_in_k = 2)
		MaxVLBytes:        256,
		PageBytes:         4096,
		CacheLineBytes:    64,
		JamletSRAMBytes:   4096,
		KamletMemoryBytes: 65536,
		NChannels:         2,
		RouterInputBufferLength:  4,
		RouterOutputBufferLength: 4,
		ReceiveBufferDepth:       4,
		NResponseIdents:          8,
		MaxResponseTags:          64,
		NVRegs:                   32,
	}
}

var _ = Describe("Params", func() {
	It("validates a well-formed parameter set", func() {
		Expect(scenarioParams().Validate()).To(Succeed())
	})

	It("rejects an odd k_cols", func() {
		p := scenarioParams()
		p.KCols = 3
		p.KRows = 1
		Expect(p.Validate()).To(HaveOccurred())
	})

	It("rejects cache_line_bytes not dividing j_in_k", func() {
		p := scenarioParams()
		p.JCols = 3
		Expect(p.Validate()).To(HaveOccurred())
	})

	It("computes derived geometry", func() {
		p := scenarioParams()
		Expect(p.JInK()).To(Equal(1))
		Expect(p.KInL()).To(Equal(2))
		Expect(p.JInL()).To(Equal(2))
	})
})

var _ = Describe("Addressing", func() {
	var (
		p   addr.Params
		tlb *addr.TLB
	)

	BeforeEach(func() {
		p = scenarioParams()
		tlb = addr.NewTLB(p)
	})

	It("round-trips kamlet/jamlet coordinates", func() {
		for kIndex := 0; kIndex < p.KInL(); kIndex++ {
			for jInK := 0; jInK < p.JInK(); jInK++ {
				jx, jy := p.KamletJInKToJCoords(kIndex, jInK)
				gotK, gotJ := p.JCoordsToKamlet(jx, jy)
				Expect(gotK).To(Equal(kIndex))
				Expect(gotJ).To(Equal(jInK))
			}
		}
	})

	It("stripes a VPU page across kamlets at word granularity", func() {
		ordering := addr.Ordering{WordOrder: addr.Standard, EW: 32}
		Expect(tlb.Allocate(addr.GlobalAddress{}, p.PageBytes, addr.VPU, ordering)).To(Succeed())

		info := tlb.GetPageInfo(addr.GlobalAddress{})
		Expect(info.MemoryType).To(Equal(addr.VPU))

		km0 := (addr.GlobalAddress{BitAddr: 0}).ToKMAddr(p, info)
		km1 := (addr.GlobalAddress{BitAddr: 8 * 8}).ToKMAddr(p, info)
		km2 := (addr.GlobalAddress{BitAddr: 16 * 8}).ToKMAddr(p, info)

		Expect(km0.KIndex).To(Equal(0))
		Expect(km1.KIndex).To(Equal(1))
		Expect(km2.KIndex).To(Equal(0))
		Expect(km2.Addr).To(Equal(uint64(8)))
	})

	It("reports a page fault for unallocated pages", func() {
		info := tlb.GetPageInfo(addr.GlobalAddress{BitAddr: 0})
		Expect(info.MemoryType).To(Equal(addr.Unallocated))
	})

	It("refuses to re-allocate a page", func() {
		ordering := addr.Ordering{WordOrder: addr.Standard, EW: 32}
		Expect(tlb.Allocate(addr.GlobalAddress{}, p.PageBytes, addr.VPU, ordering)).To(Succeed())
		Expect(tlb.Allocate(addr.GlobalAddress{}, p.PageBytes, addr.VPU, ordering)).To(HaveOccurred())
	})

	It("records non-idempotent scalar accesses in order", func() {
		tlb.LogNonIdempotentAccess(addr.ScalarAddr(0))
		tlb.LogNonIdempotentAccess(addr.ScalarAddr(8))
		tlb.LogNonIdempotentAccess(addr.ScalarAddr(16))
		Expect(tlb.NonIdempotentAccessLog()).To(Equal([]addr.ScalarAddr{0, 8, 16}))
	})
})
