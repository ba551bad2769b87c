package receipt

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("NormalizeStoreName", func() {
	When("no stores are known yet", func() {
		It("title-cases the raw name", func() {
			Expect(NormalizeStoreName("WHOLE FOODS MKT", nil)).To(Equal("Whole Foods Mkt"))
		})

		It("returns empty for a blank name", func() {
			Expect(NormalizeStoreName("   ", nil)).To(BeEmpty())
		})
	})

	When("a similar store is known", func() {
		known := []string{"Whole Foods Market", "Trader Joe's"}

		It("collapses case variants", func() {
			Expect(NormalizeStoreName("whole foods market", known)).To(Equal("Whole Foods Market"))
		})

		It("collapses word-order variants", func() {
			Expect(NormalizeStoreName("Market Whole Foods", known)).To(Equal("Whole Foods Market"))
		})

		It("collapses light abbreviations", func() {
			Expect(NormalizeStoreName("WHOLE FOODS MKT", known)).To(Equal("Whole Foods Market"))
		})

		It("keeps a genuinely different store separate", func() {
			Expect(NormalizeStoreName("King Soopers", known)).To(Equal("King Soopers"))
		})
	})
})
