package scalarmem_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/lamlet/scalarmem"
)

var _ = Describe("Store", func() {
	It("round-trips writes and zero-fills unwritten bytes", func() {
		s := scalarmem.New()
		s.Write(100, []byte{1, 2, 3})
		Expect(s.Read(100, 3)).To(Equal([]byte{1, 2, 3}))
		Expect(s.Read(99, 5)).To(Equal([]byte{0, 1, 2, 3, 0}))
	})

	It("overwrites overlapping ranges byte-wise", func() {
		s := scalarmem.New()
		s.Write(0, []byte{1, 1, 1, 1})
		s.Write(2, []byte{9, 9})
		Expect(s.Read(0, 4)).To(Equal([]byte{1, 1, 9, 9}))
	})
})
