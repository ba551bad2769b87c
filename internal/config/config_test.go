package config_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/parvanovkp/receiptsage/internal/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Load", func() {
	var path string

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "config.yaml")
	})

	Context("when the file does not exist", func() {
		It("writes the defaults and returns them", func() {
			c, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Extraction.Provider).To(Equal("gemini"))
			Expect(c.Import.Workers).To(Equal(1))
			Expect(path).To(BeAnExistingFile())
		})

		It("writes a file a second Load reads back unchanged", func() {
			first, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			second, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(first))
		})
	})

	Context("when the file exists", func() {
		BeforeEach(func() {
			Expect(os.WriteFile(path, []byte(`
storage:
  receipts_dir: /data/receipts
  database_path: /data/receipts.db
extraction:
  provider: ollama
  model: llava
import:
  workers: 4
`), 0644)).To(Succeed())
		})

		It("overlays the file onto the defaults", func() {
			c, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Storage.ReceiptsDir).To(Equal("/data/receipts"))
			Expect(c.Extraction.Provider).To(Equal("ollama"))
			Expect(c.Extraction.Model).To(Equal("llava"))
			Expect(c.Import.Workers).To(Equal(4))
			// unset keys keep their defaults
			Expect(c.Storage.LedgerPath).To(Equal("receipts-ledger.db"))
			Expect(c.Extraction.OllamaURL).To(Equal("http://localhost:11434"))
		})
	})

	Context("when the file is malformed", func() {
		It("returns a parse error", func() {
			Expect(os.WriteFile(path, []byte("storage: [not a mapping"), 0644)).To(Succeed())
			_, err := config.Load(path)
			Expect(err).To(MatchError(ContainSubstring("parsing config")))
		})
	})
})
