package synthesizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askmydocs/internal/domain"
)

type fakeGenerator struct {
	answer string
	err    error
	prompt string
	calls  int
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.answer, f.err
}

func sources(scores ...float64) []domain.SourceDocument {
	out := make([]domain.SourceDocument, len(scores))
	for i, s := range scores {
		out[i] = domain.SourceDocument{
			Content: "passage content",
			Source:  "doc.txt (section 1)",
			Score:   s,
		}
	}
	return out
}

func TestSynthesizeNoSourcesSkipsGeneration(t *testing.T) {
	gen := &fakeGenerator{answer: "should not be used"}
	s := New(gen)

	answer, conf, err := s.Synthesize(context.Background(), "what?", nil)
	require.NoError(t, err)
	assert.Equal(t, FallbackAnswer, answer)
	assert.Zero(t, conf)
	assert.Zero(t, gen.calls, "generator must not be called without sources")
}

func TestSynthesizeConfidenceIsMeanOfScores(t *testing.T) {
	gen := &fakeGenerator{answer: "the answer"}
	s := New(gen)

	answer, conf, err := s.Synthesize(context.Background(), "what?", sources(0.8, 0.4))
	require.NoError(t, err)
	assert.Equal(t, "the answer", answer)
	assert.InDelta(t, 0.6, conf, 1e-9)

	// Same sources, same confidence.
	_, again, err := s.Synthesize(context.Background(), "what?", sources(0.8, 0.4))
	require.NoError(t, err)
	assert.Equal(t, conf, again)
}

func TestSynthesizeConfidenceClamped(t *testing.T) {
	gen := &fakeGenerator{answer: "the answer"}
	s := New(gen)

	_, conf, err := s.Synthesize(context.Background(), "q", sources(1.4, 1.2))
	require.NoError(t, err)
	assert.Equal(t, 1.0, conf)

	_, conf, err = s.Synthesize(context.Background(), "q", sources(-0.5))
	require.NoError(t, err)
	assert.Equal(t, 0.0, conf)
}

func TestSynthesizePromptContainsSourcesAndQuestion(t *testing.T) {
	gen := &fakeGenerator{answer: "the answer"}
	s := New(gen)

	srcs := []domain.SourceDocument{
		{Content: "first passage", Source: "a.txt (section 1)", Score: 0.9},
		{Content: "second passage", Source: "b.md (section 3)", Score: 0.7},
	}
	_, _, err := s.Synthesize(context.Background(), "what is in the docs?", srcs)
	require.NoError(t, err)

	assert.Contains(t, gen.prompt, "[1] (a.txt (section 1))")
	assert.Contains(t, gen.prompt, "first passage")
	assert.Contains(t, gen.prompt, "[2] (b.md (section 3))")
	assert.Contains(t, gen.prompt, "second passage")
	assert.Contains(t, gen.prompt, "what is in the docs?")
}

func TestSynthesizeBlankGenerationFallsBack(t *testing.T) {
	gen := &fakeGenerator{answer: "   \n"}
	s := New(gen)

	answer, conf, err := s.Synthesize(context.Background(), "q", sources(0.9))
	require.NoError(t, err)
	assert.Equal(t, FallbackAnswer, answer)
	assert.Zero(t, conf)
}

func TestSynthesizeGenerationErrorPropagates(t *testing.T) {
	genErr := &domain.GenerationError{Err: assert.AnError}
	gen := &fakeGenerator{err: genErr}
	s := New(gen)

	_, _, err := s.Synthesize(context.Background(), "q", sources(0.9))
	require.Error(t, err)
	var ge *domain.GenerationError
	assert.ErrorAs(t, err, &ge)
}
