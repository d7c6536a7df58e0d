package arena_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ffsim/arena"
)

var _ = Describe("Arena", func() {
	var a *arena.Arena

	BeforeEach(func() {
		a = arena.New(1024)
	})

	It("should bump the offset by size", func() {
		ptr, err := a.Allocate(10, 4)
		Expect(err).NotTo(HaveOccurred())
		Expect(ptr).To(Equal(uintptr(0)))
		Expect(a.Offset()).To(Equal(uintptr(40)))
	})

	It("should stack successive allocations", func() {
		_, err := a.Allocate(10, 4)
		Expect(err).NotTo(HaveOccurred())
		ptr2, err := a.Allocate(10, 4)
		Expect(err).NotTo(HaveOccurred())
		Expect(ptr2).To(Equal(uintptr(40)))
	})

	It("should error with the shortfall when the buffer overflows", func() {
		_, err := a.Allocate(1000, 4)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("2976"))
	})

	It("should reset the offset to zero on FreeAll", func() {
		_, _ = a.Allocate(10, 4)
		a.FreeAll()
		Expect(a.Offset()).To(Equal(uintptr(0)))
	})
})
