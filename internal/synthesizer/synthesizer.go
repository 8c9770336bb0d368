package synthesizer

import (
	"context"
	"fmt"
	"strings"

	"askmydocs/internal/domain"
)

// FallbackAnswer is returned, with confidence 0, whenever retrieval produced
// no usable sources. The generation model is not called in that case.
const FallbackAnswer = "I don't have enough information in the uploaded documents to answer that question."

// Synthesizer builds a grounded prompt from retrieved sources and parses the
// generation result into an answer with a confidence estimate.
//
// Confidence is the arithmetic mean of the retrieval scores of the sources
// handed to the model, clamped to [0,1]. The formula is fixed so that the
// same retrieval outcome always reports the same confidence.
type Synthesizer struct {
	generator domain.Generator
}

// New creates a synthesizer backed by the given generator.
func New(generator domain.Generator) *Synthesizer {
	return &Synthesizer{generator: generator}
}

// Synthesize answers the question from the supplied sources only.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, sources []domain.SourceDocument) (string, float64, error) {
	if len(sources) == 0 {
		return FallbackAnswer, 0, nil
	}
	answer, err := s.generator.Generate(ctx, buildPrompt(question, sources))
	if err != nil {
		return "", 0, err
	}
	if strings.TrimSpace(answer) == "" {
		return FallbackAnswer, 0, nil
	}
	return answer, confidence(sources), nil
}

func buildPrompt(question string, sources []domain.SourceDocument) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context passages below. ")
	b.WriteString("If the context does not contain the answer, say you do not have enough information. ")
	b.WriteString("Do not invent facts that are not in the context.\n\nContext:\n")
	for i, src := range sources {
		fmt.Fprintf(&b, "[%d] (%s)\n%s\n\n", i+1, src.Source, src.Content)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

func confidence(sources []domain.SourceDocument) float64 {
	sum := 0.0
	for _, src := range sources {
		sum += src.Score
	}
	c := sum / float64(len(sources))
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
