package ledger

import (
	"errors"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestLedger(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Ledger Suite")
}

var _ = Describe("Ledger", func() {
	var led *Ledger

	BeforeEach(func() {
		var err error
		led, err = Open(filepath.Join(GinkgoT().TempDir(), "ledger.db"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() {
			Expect(led.Close()).To(Succeed())
		})
	})

	Describe("Seen", func() {
		When("the fingerprint was never recorded", func() {
			It("reports not seen", func() {
				seen, err := led.Seen("abc123")
				Expect(err).NotTo(HaveOccurred())
				Expect(seen).To(BeFalse())
			})
		})

		When("the fingerprint was marked imported", func() {
			BeforeEach(func() {
				Expect(led.MarkImported("abc123", "/receipts/a.jpg")).To(Succeed())
			})

			It("reports seen", func() {
				seen, err := led.Seen("abc123")
				Expect(err).NotTo(HaveOccurred())
				Expect(seen).To(BeTrue())
			})
		})

		When("the fingerprint only has a failed attempt", func() {
			BeforeEach(func() {
				Expect(led.MarkFailed("abc123", "/receipts/a.jpg", "extraction timed out")).To(Succeed())
			})

			It("stays eligible for retry", func() {
				seen, err := led.Seen("abc123")
				Expect(err).NotTo(HaveOccurred())
				Expect(seen).To(BeFalse())
			})

			It("keeps the failure details", func() {
				rec, err := led.Record("abc123")
				Expect(err).NotTo(HaveOccurred())
				Expect(rec.Outcome).To(Equal(OutcomeFailed))
				Expect(rec.Error).To(ContainSubstring("timed out"))
				Expect(rec.Path).To(Equal("/receipts/a.jpg"))
			})
		})
	})

	Describe("MarkFailed after a success", func() {
		BeforeEach(func() {
			Expect(led.MarkImported("abc123", "/receipts/a.jpg")).To(Succeed())
			Expect(led.MarkFailed("abc123", "/receipts/a.jpg", "later failure")).To(Succeed())
		})

		It("never downgrades a successful import", func() {
			seen, err := led.Seen("abc123")
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(BeTrue())

			rec, err := led.Record("abc123")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Outcome).To(Equal(OutcomeSuccess))
		})
	})

	Describe("MarkImported after a failure", func() {
		BeforeEach(func() {
			Expect(led.MarkFailed("abc123", "/receipts/a.jpg", "first attempt")).To(Succeed())
			Expect(led.MarkImported("abc123", "/receipts/a.jpg")).To(Succeed())
		})

		It("replaces the failure", func() {
			rec, err := led.Record("abc123")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Outcome).To(Equal(OutcomeSuccess))
			Expect(rec.Error).To(BeEmpty())
		})
	})

	Describe("Record", func() {
		It("returns nil for an unknown fingerprint", func() {
			rec, err := led.Record("missing")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec).To(BeNil())
		})
	})

	Describe("error classification", func() {
		BeforeEach(func() {
			Expect(led.Close()).To(Succeed())
		})

		It("wraps a failed read as a ledger error", func() {
			_, err := led.Seen("abc123")
			Expect(err).To(HaveOccurred())
			Expect(IsLedgerError(err)).To(BeTrue())
		})

		It("wraps a failed write as a ledger error", func() {
			err := led.MarkImported("abc123", "/receipts/a.jpg")
			Expect(err).To(HaveOccurred())
			Expect(IsLedgerError(err)).To(BeTrue())
		})

		It("does not claim unrelated errors", func() {
			Expect(IsLedgerError(errors.New("disk full"))).To(BeFalse())
		})
	})
})
