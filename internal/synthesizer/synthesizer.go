// Package synthesizer composes the final answer from agent results.
package synthesizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/internal/llm"
	"github.com/spherical-ai/trendscope/internal/observability"
)

// Section labels used in combined answers.
const (
	AnalyticalLabel = "Top channels:"
	SemanticLabel   = "Related videos:"
)

const combineSystem = `You merge two partial answers about trending videos into one response.
Write exactly two sections, in this order:

Top channels:
<the analytical findings>

Related videos:
<the semantic findings>

Use only facts that appear in the partial answers or their rows. Do not invent channels,
videos or numbers. Keep each section concise.`

// Config holds synthesizer settings.
type Config struct {
	MaxTokens int
	// PreviewRows bounds the rows of each result included in the combine prompt.
	PreviewRows int
}

// DefaultConfig returns the synthesizer defaults.
func DefaultConfig() Config {
	return Config{MaxTokens: 1024, PreviewRows: 5}
}

// Input is everything the synthesizer may draw on. A nil result means the
// agent did not run.
type Input struct {
	Query      string
	Routing    domain.RoutingDecision
	Analytical *domain.AgentResult
	Semantic   *domain.AgentResult
}

// Output is the composed answer and the terminal state it implies.
type Output struct {
	Answer       string
	State        domain.State
	ErrorKind    domain.ErrorKind
	ErrorMessage string
}

// Synthesizer composes answers. It never fails.
type Synthesizer struct {
	logger    *observability.Logger
	completer llm.Completer
	config    Config
}

// New creates a synthesizer. completer may be nil, in which case combined
// answers always use the labelled concatenation.
func New(logger *observability.Logger, completer llm.Completer, cfg Config) *Synthesizer {
	defaults := DefaultConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.PreviewRows <= 0 {
		cfg.PreviewRows = defaults.PreviewRows
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Synthesizer{logger: logger, completer: completer, config: cfg}
}

// Synthesize applies the composition rules: a lone success is returned
// verbatim, two successes are combined, a mix is PARTIAL with a caveat and
// no success is FAILED.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) Output {
	ran := in.results()
	var ok, failed []*domain.AgentResult
	for _, r := range ran {
		if r.OK {
			ok = append(ok, r)
		} else {
			failed = append(failed, r)
		}
	}

	switch {
	case len(ran) == 0:
		return Output{
			Answer:       FailureMessage(domain.ErrorKindDependencyUnavailable),
			State:        domain.StateFailed,
			ErrorKind:    domain.ErrorKindDependencyUnavailable,
			ErrorMessage: "no agent was available",
		}

	case len(failed) == 0 && len(ok) == 1:
		return Output{Answer: ok[0].AnswerText, State: domain.StateDone}

	case len(failed) == 0:
		return Output{Answer: s.combine(ctx, in), State: domain.StateDone}

	case len(ok) == 0:
		return Output{
			Answer:       failedAnswer(failed),
			State:        domain.StateFailed,
			ErrorKind:    failed[0].ErrorKind,
			ErrorMessage: failedSummary(failed),
		}

	default:
		f := failed[0]
		return Output{
			Answer:       ok[0].AnswerText + "\n\n" + caveat(f),
			State:        domain.StatePartial,
			ErrorKind:    f.ErrorKind,
			ErrorMessage: fmt.Sprintf("%s agent failed: %s", f.Source.Label(), f.ErrorMessage),
		}
	}
}

func (in Input) results() []*domain.AgentResult {
	var out []*domain.AgentResult
	if in.Analytical != nil {
		out = append(out, in.Analytical)
	}
	if in.Semantic != nil {
		out = append(out, in.Semantic)
	}
	return out
}

// Concatenate is the combined answer used when the LLM is unavailable.
func Concatenate(analytical, semantic string) string {
	return AnalyticalLabel + "\n" + strings.TrimSpace(analytical) + "\n\n" + SemanticLabel + "\n" + strings.TrimSpace(semantic)
}

func (s *Synthesizer) combine(ctx context.Context, in Input) string {
	fallback := Concatenate(in.Analytical.AnswerText, in.Semantic.AnswerText)
	if s.completer == nil {
		return fallback
	}

	text, err := s.completer.Complete(ctx, llm.Request{
		Purpose:   llm.PurposeCombine,
		System:    combineSystem,
		User:      s.combineUser(in),
		MaxTokens: s.config.MaxTokens,
	})
	text = strings.TrimSpace(text)
	switch {
	case err != nil:
		s.logger.WithContext(ctx).Warn().Err(err).Msg("Combine call failed, concatenating answers")
		return fallback
	case text == "":
		return fallback
	case !strings.Contains(text, AnalyticalLabel) || !strings.Contains(text, SemanticLabel):
		s.logger.WithContext(ctx).Debug().Msg("Combined answer missing section labels, concatenating answers")
		return fallback
	}
	return text
}

func (s *Synthesizer) combineUser(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", in.Query)
	section := func(title, sub string, r *domain.AgentResult) {
		fmt.Fprintf(&b, "%s (sub-question: %s)\nAnswer:\n%s\n", title, sub, r.AnswerText)
		rows := r.Rows
		if len(rows) > s.config.PreviewRows {
			rows = rows[:s.config.PreviewRows]
		}
		if len(rows) > 0 {
			data, _ := json.Marshal(rows)
			fmt.Fprintf(&b, "Top rows (JSON): %s\n", data)
		}
		b.WriteString("\n")
	}
	section("Analytical findings", in.Routing.SubqueryFor(domain.SourceAnalytical, in.Query), in.Analytical)
	section("Semantic findings", in.Routing.SubqueryFor(domain.SourceSemantic, in.Query), in.Semantic)
	return strings.TrimRight(b.String(), "\n")
}

func caveat(r *domain.AgentResult) string {
	return fmt.Sprintf("Note: %s results are unavailable (%s). %s", r.Source.Label(), r.ErrorKind, domain.Remedy(r.ErrorKind))
}

func failedAnswer(failed []*domain.AgentResult) string {
	var b strings.Builder
	b.WriteString("Sorry, this question could not be answered.")
	for _, r := range failed {
		fmt.Fprintf(&b, "\n- The %s search failed (%s). %s", r.Source.Label(), r.ErrorKind, domain.Remedy(r.ErrorKind))
	}
	return b.String()
}

func failedSummary(failed []*domain.AgentResult) string {
	kinds := make([]string, len(failed))
	for i, r := range failed {
		kinds[i] = string(r.ErrorKind)
	}
	return "all agents failed: " + strings.Join(kinds, ", ")
}

// FailureMessage is the answer for requests that never reached an agent.
func FailureMessage(kind domain.ErrorKind) string {
	switch kind {
	case domain.ErrorKindInvalidQuery:
		return "The question is empty or too long (INVALID_QUERY). " + domain.Remedy(kind)
	case domain.ErrorKindOverloaded:
		return "The service is handling too many requests (OVERLOADED). " + domain.Remedy(kind)
	default:
		return fmt.Sprintf("No agent could answer this question (%s). %s", kind, domain.Remedy(kind))
	}
}
