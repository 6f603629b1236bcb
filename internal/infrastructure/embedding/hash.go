package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

const trigramWeight = 0.5

// HashEmbedder is a deterministic, credential-free EmbeddingProvider.
// Each word and character trigram is hashed into one of dim buckets with a
// hash-derived sign, so identical text always yields the identical vector
// and texts sharing vocabulary land close together.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 768
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dimension() int { return h.dim }

func (h *HashEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *HashEmbedder) vector(text string) []float32 {
	v := make([]float32, h.dim)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		// No letters or digits: fall back to raw character codes.
		for i, r := range text {
			if unicode.IsSpace(r) {
				continue
			}
			v[(int(r)*31+i)%h.dim] += 1
		}
		return v
	}

	for _, token := range tokens {
		h.add(v, token, 1.0)
		padded := " " + token + " "
		runes := []rune(padded)
		for i := 0; i+3 <= len(runes); i++ {
			h.add(v, string(runes[i:i+3]), trigramWeight)
		}
	}
	return v
}

func (h *HashEmbedder) add(v []float32, feature string, weight float32) {
	sum := hashFeature(feature)
	idx := int(sum % uint32(h.dim))
	if sum&(1<<31) != 0 {
		weight = -weight
	}
	v[idx] += weight
}

func hashFeature(feature string) uint32 {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(feature))
	return hasher.Sum32()
}

func tokenize(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
