package synthesizer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/internal/llm"
)

func okResult(src domain.Source, answer string) *domain.AgentResult {
	r := domain.SuccessResult(src, answer, []domain.Row{{"title": answer}})
	return &r
}

func failResult(src domain.Source, kind domain.ErrorKind) *domain.AgentResult {
	r := domain.FailureResult(src, kind, "boom")
	return &r
}

func hybridInput() Input {
	return Input{
		Query:   "top gaming channels and also suggest counter strike videos",
		Routing: domain.NewHybridDecision("top gaming channels", "suggest counter strike videos", 0.9, "both", nil),
	}
}

func TestSynthesize_Rules(t *testing.T) {
	tests := []struct {
		name       string
		analytical *domain.AgentResult
		semantic   *domain.AgentResult
		wantState  domain.State
		wantKind   domain.ErrorKind
		wantAnswer string
	}{
		{
			name:       "single analytical verbatim",
			analytical: okResult(domain.SourceAnalytical, "- **PixelRush** 4,380,000 views"),
			wantState:  domain.StateDone,
			wantAnswer: "- **PixelRush** 4,380,000 views",
		},
		{
			name:       "single semantic verbatim even when empty",
			semantic:   okResult(domain.SourceSemantic, "No matching videos found"),
			wantState:  domain.StateDone,
			wantAnswer: "No matching videos found",
		},
		{
			name:       "partial keeps success and notes failure",
			analytical: okResult(domain.SourceAnalytical, "A answer"),
			semantic:   failResult(domain.SourceSemantic, domain.ErrorKindIndexUnavailable),
			wantState:  domain.StatePartial,
			wantKind:   domain.ErrorKindIndexUnavailable,
			wantAnswer: "A answer\n\nNote: semantic results are unavailable (INDEX_UNAVAILABLE). " +
				domain.Remedy(domain.ErrorKindIndexUnavailable),
		},
		{
			name:       "partial with analytical failure",
			analytical: failResult(domain.SourceAnalytical, domain.ErrorKindTimeout),
			semantic:   okResult(domain.SourceSemantic, "V answer"),
			wantState:  domain.StatePartial,
			wantKind:   domain.ErrorKindTimeout,
			wantAnswer: "V answer\n\nNote: analytical results are unavailable (TIMEOUT). " +
				domain.Remedy(domain.ErrorKindTimeout),
		},
		{
			name:       "single agent failure",
			analytical: failResult(domain.SourceAnalytical, domain.ErrorKindTranslationFailed),
			wantState:  domain.StateFailed,
			wantKind:   domain.ErrorKindTranslationFailed,
			wantAnswer: "Sorry, this question could not be answered.\n- The analytical search failed (TRANSLATION_FAILED). " +
				domain.Remedy(domain.ErrorKindTranslationFailed),
		},
		{
			name:      "nothing ran",
			wantState: domain.StateFailed,
			wantKind:  domain.ErrorKindDependencyUnavailable,
		},
	}

	s := New(nil, nil, DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := hybridInput()
			in.Analytical, in.Semantic = tt.analytical, tt.semantic

			out := s.Synthesize(context.Background(), in)

			assert.Equal(t, tt.wantState, out.State)
			assert.Equal(t, tt.wantKind, out.ErrorKind)
			if tt.wantAnswer != "" {
				assert.Equal(t, tt.wantAnswer, out.Answer)
			}
			assert.NotEmpty(t, out.Answer)
		})
	}
}

func TestSynthesize_AllFailedListsEveryKind(t *testing.T) {
	in := hybridInput()
	in.Analytical = failResult(domain.SourceAnalytical, domain.ErrorKindExecutionFailed)
	in.Semantic = failResult(domain.SourceSemantic, domain.ErrorKindEmbeddingFailed)

	out := New(nil, nil, DefaultConfig()).Synthesize(context.Background(), in)

	assert.Equal(t, domain.StateFailed, out.State)
	assert.Equal(t, domain.ErrorKindExecutionFailed, out.ErrorKind)
	assert.Contains(t, out.Answer, "EXECUTION_FAILED")
	assert.Contains(t, out.Answer, "EMBEDDING_FAILED")
	assert.Equal(t, "all agents failed: EXECUTION_FAILED, EMBEDDING_FAILED", out.ErrorMessage)
}

func TestSynthesize_Combine(t *testing.T) {
	combined := "Top channels:\n- **PixelRush**\n\nRelated videos:\n1. Speedrun"

	tests := []struct {
		name      string
		completer llm.Completer
		want      string
	}{
		{"llm answer accepted", llm.NewScripted().Reply(llm.PurposeCombine, combined), combined},
		{"llm error falls back", llm.NewScripted().Fail(llm.PurposeCombine, errors.New("timeout")), "Top channels:\nA answer\n\nRelated videos:\nV answer"},
		{"empty answer falls back", llm.NewScripted().Reply(llm.PurposeCombine, "  \n"), "Top channels:\nA answer\n\nRelated videos:\nV answer"},
		{"missing labels falls back", llm.NewScripted().Reply(llm.PurposeCombine, "Here is everything."), "Top channels:\nA answer\n\nRelated videos:\nV answer"},
		{"no completer", nil, "Top channels:\nA answer\n\nRelated videos:\nV answer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := hybridInput()
			in.Analytical = okResult(domain.SourceAnalytical, "A answer")
			in.Semantic = okResult(domain.SourceSemantic, "V answer")

			out := New(nil, tt.completer, DefaultConfig()).Synthesize(context.Background(), in)

			assert.Equal(t, domain.StateDone, out.State)
			assert.Empty(t, out.ErrorKind)
			assert.Equal(t, tt.want, out.Answer)
		})
	}
}

func TestSynthesize_CombinePromptCarriesBothFacets(t *testing.T) {
	completer := llm.NewScripted().Reply(llm.PurposeCombine, "Top channels:\nx\n\nRelated videos:\ny")
	in := hybridInput()
	in.Analytical = okResult(domain.SourceAnalytical, "A answer")
	in.Semantic = okResult(domain.SourceSemantic, "V answer")

	New(nil, completer, DefaultConfig()).Synthesize(context.Background(), in)

	calls := completer.Calls()
	if assert.Len(t, calls, 1) {
		user := calls[0].User
		assert.Contains(t, user, "sub-question: top gaming channels")
		assert.Contains(t, user, "sub-question: suggest counter strike videos")
		assert.True(t, strings.Index(user, "A answer") < strings.Index(user, "V answer"))
	}
}

func TestFailureMessage(t *testing.T) {
	assert.Contains(t, FailureMessage(domain.ErrorKindInvalidQuery), "INVALID_QUERY")
	assert.Contains(t, FailureMessage(domain.ErrorKindOverloaded), "OVERLOADED")
	assert.Contains(t, FailureMessage(domain.ErrorKindTimeout), "TIMEOUT")
}
