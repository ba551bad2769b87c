package scanning

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// minimal 1x1 PNG so prepareImage passes the request through untouched
var pngPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x62, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func ollamaReply(content string) []byte {
	body, _ := json.Marshal(ollamaChatResponse{
		Message: ollamaMessage{Role: "assistant", Content: content},
		Done:    true,
	})
	return body
}

var _ = Describe("Ollama", func() {
	var (
		server  *httptest.Server
		handler http.HandlerFunc
	)

	BeforeEach(func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler(w, r)
		}))
		DeferCleanup(server.Close)
	})

	It("returns the extracted document on success", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Write(ollamaReply(`{"metadata": {"store": "Market"}}`))
		}
		o, err := NewOllama(server.URL, "llava")
		Expect(err).NotTo(HaveOccurred())

		doc, err := o.Extract(context.Background(), pngPixel, "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(doc)).To(ContainSubstring(`"store"`))
	})

	It("retries a transient server error and succeeds exactly once", func() {
		var calls atomic.Int32
		handler = func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				http.Error(w, "upstream hiccup", http.StatusBadGateway)
				return
			}
			w.Write(ollamaReply(`{"metadata": {"store": "Market"}}`))
		}
		o, err := NewOllama(server.URL, "llava")
		Expect(err).NotTo(HaveOccurred())

		doc, err := o.Extract(context.Background(), pngPixel, "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(doc).NotTo(BeNil())
		Expect(calls.Load()).To(Equal(int32(2)))
	})

	It("surfaces a rate limit as quota exhaustion without retrying", func() {
		var calls atomic.Int32
		handler = func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}
		o, err := NewOllama(server.URL, "llava")
		Expect(err).NotTo(HaveOccurred())

		_, err = o.Extract(context.Background(), pngPixel, "image/png")
		Expect(IsQuotaExceeded(err)).To(BeTrue())
		Expect(calls.Load()).To(Equal(int32(1)))
	})

	It("surfaces an unparseable model answer without retrying", func() {
		var calls atomic.Int32
		handler = func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Write(ollamaReply("Sorry, I cannot read this image."))
		}
		o, err := NewOllama(server.URL, "llava")
		Expect(err).NotTo(HaveOccurred())

		_, err = o.Extract(context.Background(), pngPixel, "image/png")
		var ee *ExtractionError
		Expect(err).To(HaveOccurred())
		Expect(errors.As(err, &ee)).To(BeTrue())
		Expect(ee.Kind).To(Equal(InvalidFormat))
		Expect(calls.Load()).To(Equal(int32(1)))
	})
})
