package scanning

import (
	"errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestScanning(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Scanning Suite")
}

var _ = Describe("extractDocument", func() {
	It("accepts a bare JSON object", func() {
		doc, err := extractDocument(`{"metadata": {"store": "Market"}}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(doc)).To(Equal(`{"metadata": {"store": "Market"}}`))
	})

	It("strips markdown code fences", func() {
		doc, err := extractDocument("```json\n{\"items\": []}\n```")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(doc)).To(Equal(`{"items": []}`))
	})

	It("ignores chatter around the object", func() {
		doc, err := extractDocument("Here is the receipt:\n{\"total\": 4.2}\nLet me know if you need anything else.")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(doc)).To(Equal(`{"total": 4.2}`))
	})

	It("rejects a response with no JSON object", func() {
		_, err := extractDocument("I could not read this receipt.")
		Expect(err).To(HaveOccurred())
		var ee *ExtractionError
		Expect(errors.As(err, &ee)).To(BeTrue())
		Expect(ee.Kind).To(Equal(InvalidFormat))
	})

	It("rejects malformed JSON", func() {
		_, err := extractDocument(`{"total": }`)
		var ee *ExtractionError
		Expect(errors.As(err, &ee)).To(BeTrue())
		Expect(ee.Kind).To(Equal(InvalidFormat))
	})
})

var _ = Describe("error classification", func() {
	It("reports quota errors", func() {
		err := quotaErr(errors.New("resource exhausted"))
		Expect(IsQuotaExceeded(err)).To(BeTrue())
		Expect(IsTransient(err)).To(BeFalse())
	})

	It("reports transient errors", func() {
		err := transientErr(errors.New("connection reset"))
		Expect(IsTransient(err)).To(BeTrue())
		Expect(IsQuotaExceeded(err)).To(BeFalse())
	})

	It("sees through wrapping", func() {
		wrapped := errors.New("outer")
		err := &ExtractionError{Kind: QuotaExceeded, Err: wrapped}
		Expect(IsQuotaExceeded(err)).To(BeTrue())
	})
})
