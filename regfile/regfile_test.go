package regfile_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/lamlet/regfile"
)

var _ = Describe("File", func() {
	var f *regfile.File

	BeforeEach(func() {
		f = regfile.New()
	})

	It("allows independent register sets to start concurrently", func() {
		Expect(f.CanStart([]int{0}, []int{1})).To(BeTrue())
		id := f.Start([]int{0}, []int{1})
		Expect(f.CanStart([]int{2}, []int{3})).To(BeTrue())
		f.Finish(id, []int{0}, []int{1})
	})

	It("blocks a write that overlaps an outstanding read", func() {
		id := f.Start([]int{5}, nil)
		Expect(f.CanStart(nil, []int{5})).To(BeFalse())
		f.Finish(id, []int{5}, nil)
		Expect(f.CanStart(nil, []int{5})).To(BeTrue())
	})

	It("blocks a read that overlaps an outstanding write", func() {
		id := f.Start(nil, []int{7})
		Expect(f.CanStart([]int{7}, nil)).To(BeFalse())
		f.Finish(id, nil, []int{7})
		Expect(f.CanStart([]int{7}, nil)).To(BeTrue())
	})

	It("allows two outstanding reads of the same register", func() {
		f.Start([]int{9}, nil)
		Expect(f.CanStart([]int{9}, nil)).To(BeTrue())
	})
})
