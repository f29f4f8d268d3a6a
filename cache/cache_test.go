package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/lamlet/cache"
)

var _ = Describe("Table", func() {
	It("fetches a line into a free slot as READING then SHARED", func() {
		t := cache.New(2, 64)
		idx, ident, needsWriteback, _ := t.RequestLine(100)
		Expect(needsWriteback).To(BeFalse())
		Expect(t.Slot(idx).State).To(Equal(cache.Reading))
		Expect(ident).To(BeNumerically(">=", 0))

		t.CompleteFetch(idx)
		Expect(t.Slot(idx).State).To(Equal(cache.Shared))
		Expect(t.IsAvailable(idx)).To(BeTrue())
	})

	It("looks up a resident line by address", func() {
		t := cache.New(2, 64)
		idx, _, _, _ := t.RequestLine(100)
		t.CompleteFetch(idx)
		Expect(t.Lookup(100)).To(Equal(idx))
		Expect(t.Lookup(200)).To(Equal(-1))
	})

	It("requires a write-back when evicting a MODIFIED victim", func() {
		t := cache.New(1, 64)
		idx, _, _, _ := t.RequestLine(100)
		t.CompleteFetch(idx)
		t.MarkModified(idx)

		idx2, _, needsWriteback, evicted := t.RequestLine(200)
		Expect(idx2).To(Equal(idx))
		Expect(needsWriteback).To(BeTrue())
		Expect(evicted).To(Equal(uint64(100)))
		Expect(t.Slot(idx2).State).To(Equal(cache.WritingReading))
	})

	It("frees a slot once eviction completes", func() {
		t := cache.New(1, 64)
		idx, _, _, _ := t.RequestLine(100)
		t.CompleteFetch(idx)
		t.MarkModified(idx)

		evictIdent := t.RequestEviction(idx)
		Expect(evictIdent).To(BeNumerically(">=", 0))
		Expect(t.Slot(idx).State).To(Equal(cache.Evicting))

		t.CompleteEviction(idx)
		Expect(t.Slot(idx).State).To(Equal(cache.Invalid))
		Expect(t.Lookup(100)).To(Equal(-1))
	})

	It("reports a slot unavailable while mid-transition", func() {
		t := cache.New(1, 64)
		idx, _, _, _ := t.RequestLine(100)
		Expect(t.IsAvailable(idx)).To(BeFalse())
	})
})
