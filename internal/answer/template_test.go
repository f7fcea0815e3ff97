package answer_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/SaintWyss/ragcore/internal/answer"
)

var _ = Describe("LoadTemplate", func() {
	It("loads the embedded v1 template with its version and no-context answer", func() {
		tmpl, err := answer.LoadTemplate("v1")
		Expect(err).NotTo(HaveOccurred())
		Expect(tmpl.Version).To(Equal("v1"))
		Expect(tmpl.NoContextAnswer).NotTo(BeEmpty())
		Expect(tmpl.PolicyClauses).NotTo(BeEmpty())
	})

	It("errors for an unknown version", func() {
		_, err := answer.LoadTemplate("v999")
		Expect(err).To(HaveOccurred())
	})

	It("assembles a system prompt containing every policy clause and a user prompt containing the question", func() {
		tmpl := answer.PromptTemplate{RolePreamble: "preamble", PolicyClauses: []string{"clause one", "clause two"}}
		system, user := tmpl.Assemble("some context", "what happened?")
		Expect(system).To(ContainSubstring("preamble"))
		Expect(system).To(ContainSubstring("clause one"))
		Expect(system).To(ContainSubstring("clause two"))
		Expect(user).To(ContainSubstring("some context"))
		Expect(user).To(ContainSubstring("what happened?"))
	})
})
