package answer

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templateFS embed.FS

// PromptTemplate is a versioned prompt asset (spec §4.7, "Prompt
// assembly"): not code, loaded once at startup, and recorded in both
// the response metadata and the audit trail for every answer.
type PromptTemplate struct {
	Version         string   `yaml:"version"`
	RolePreamble    string   `yaml:"role_preamble"`
	PolicyClauses   []string `yaml:"policy_clauses"`
	NoContextAnswer string   `yaml:"no_context_answer"`
}

// LoadTemplate reads and parses the prompt template asset for version
// (e.g. "v1") from the embedded templates directory.
func LoadTemplate(version string) (PromptTemplate, error) {
	data, err := templateFS.ReadFile(fmt.Sprintf("templates/%s.yaml", version))
	if err != nil {
		return PromptTemplate{}, fmt.Errorf("failed to load prompt template %q: %w", version, err)
	}
	var tmpl PromptTemplate
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return PromptTemplate{}, fmt.Errorf("failed to parse prompt template %q: %w", version, err)
	}
	if tmpl.Version == "" {
		tmpl.Version = version
	}
	return tmpl, nil
}

// Assemble builds the system and user prompt strings for a single
// generation call (spec §4.7, "Prompt assembly"): role preamble, policy
// clauses, the context block, and the user question.
func (t PromptTemplate) Assemble(contextText, question string) (systemPrompt, userPrompt string) {
	systemPrompt = t.RolePreamble
	for _, clause := range t.PolicyClauses {
		systemPrompt += "\n- " + clause
	}
	userPrompt = "Context:\n" + contextText + "\n\nQuestion: " + question
	return systemPrompt, userPrompt
}
