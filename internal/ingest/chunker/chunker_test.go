package chunker_test

import (
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/SaintWyss/ragcore/internal/ingest/chunker"
)

func TestChunker(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Chunker Suite")
}

var _ = Describe("Split", func() {
	It("produces zero chunks for empty input", func() {
		Expect(chunker.Split("")).To(BeEmpty())
	})

	It("produces zero chunks for whitespace-only input", func() {
		Expect(chunker.Split("   \n\t  ")).To(BeEmpty())
	})

	It("returns a single chunk for text shorter than the target size", func() {
		chunks := chunker.Split("a short document")
		Expect(chunks).To(HaveLen(1))
		Expect(chunks[0].Index).To(Equal(0))
		Expect(chunks[0].Content).To(Equal("a short document"))
	})

	It("numbers chunks contiguously starting at 0", func() {
		long := strings.Repeat("word ", 1000)
		chunks := chunker.Split(long)
		Expect(len(chunks)).To(BeNumerically(">", 1))
		for i, c := range chunks {
			Expect(c.Index).To(Equal(i))
		}
	})

	It("keeps every chunk at or below the target window", func() {
		long := strings.Repeat("sentence one. sentence two. sentence three. ", 200)
		chunks := chunker.Split(long)
		for _, c := range chunks {
			Expect(len([]rune(c.Content))).To(BeNumerically("<=", chunker.TargetSize+int(float64(chunker.TargetSize)*0.15)+1))
		}
	})

	It("never splits inside a multi-byte UTF-8 code point", func() {
		long := strings.Repeat("héllo wörld ", 300)
		chunks := chunker.Split(long)
		for _, c := range chunks {
			Expect(chunker.ValidUTF8(c.Content)).To(BeTrue())
		}
	})

	It("prefers a paragraph boundary within the window", func() {
		para1 := strings.Repeat("a", 850)
		para2 := strings.Repeat("b", 850)
		text := para1 + "\n\n" + para2
		chunks := chunker.Split(text)
		Expect(chunks[0].Content).To(Equal(para1))
	})
})
