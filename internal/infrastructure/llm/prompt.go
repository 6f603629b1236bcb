package llm

import "fmt"

// BuildAnswerPrompt is the instruction shared by every generative provider.
func BuildAnswerPrompt(question, passages string) string {
	if passages == "" {
		passages = "(no relevant passages were found)"
	}
	return fmt.Sprintf(`Answer the user question only from the context below.
Cite passages by their [n] marker.
If the context is insufficient, say so directly.

Question:
%s

Context:
%s
`, question, passages)
}
