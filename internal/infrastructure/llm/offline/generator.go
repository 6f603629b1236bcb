package offline

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
)

const excerptLength = 280

var cannedAnswers = []string{
	"The model is unavailable, so here is the most relevant passage I found: %s",
	"I could not reach the answer model. The closest match in your documents says: %s",
	"Answering from stored text only. The best matching excerpt is: %s",
	"Generation is offline right now. Your documents contain this related passage: %s",
}

const noContextAnswer = "I could not find anything in the ingested documents that answers this question."

// Generator produces deterministic canned answers without any external model.
// The template is chosen by a hash of the question, so the same question
// always yields the same answer.
type Generator struct{}

func NewGenerator() *Generator { return &Generator{} }

func (g *Generator) GenerateAnswer(_ context.Context, question, passages string) (string, error) {
	excerpt := firstPassage(passages)
	if excerpt == "" {
		return noContextAnswer, nil
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(question))
	template := cannedAnswers[h.Sum32()%uint32(len(cannedAnswers))]
	return fmt.Sprintf(template, excerpt), nil
}

// firstPassage returns the leading passage without its rank marker, cut to excerptLength runes.
func firstPassage(passages string) string {
	first, _, _ := strings.Cut(passages, domain.ContextDelimiter)
	first = strings.TrimSpace(strings.TrimSuffix(first, domain.ContextTruncationMarker))
	if strings.HasPrefix(first, "[") {
		if _, rest, ok := strings.Cut(first, "]"); ok {
			first = strings.TrimSpace(rest)
		}
	}
	runes := []rune(first)
	if len(runes) > excerptLength {
		return string(runes[:excerptLength]) + "..."
	}
	return first
}
