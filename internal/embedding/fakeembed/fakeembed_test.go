package fakeembed_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/SaintWyss/ragcore/internal/domain"
	"github.com/SaintWyss/ragcore/internal/embedding/fakeembed"
)

func TestFakeEmbed(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Fake Embedding Suite")
}

var _ = Describe("Provider.EmbedBatch", func() {
	It("returns one vector of the fixed embedding dimension per input", func() {
		p := fakeembed.New()
		out, err := p.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(3))
		for _, v := range out {
			Expect(v).To(HaveLen(domain.EmbeddingDim))
		}
	})

	It("is deterministic for identical input text", func() {
		p := fakeembed.New()
		a, _ := p.EmbedBatch(context.Background(), []string{"same text"})
		b, _ := p.EmbedBatch(context.Background(), []string{"same text"})
		Expect(a).To(Equal(b))
	})

	It("produces different vectors for different text", func() {
		p := fakeembed.New()
		out, _ := p.EmbedBatch(context.Background(), []string{"alpha", "beta"})
		Expect(out[0]).NotTo(Equal(out[1]))
	})
})
