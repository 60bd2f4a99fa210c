// Package analytical answers quantitative questions by translating them to
// read-only SQL over the videos table.
package analytical

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/internal/llm"
	"github.com/spherical-ai/trendscope/internal/observability"
	"github.com/spherical-ai/trendscope/internal/storage"
)

// translateAttempts is the initial translation plus one corrective retry.
const translateAttempts = 2

// Store is the read-only relational handle the agent queries.
// *storage.Store satisfies it.
type Store interface {
	Query(ctx context.Context, query string, args ...any) (*storage.Result, error)
	Driver() string
	Table() string
	Ping(ctx context.Context) error
}

// Config holds analytical agent settings.
type Config struct {
	MaxTokens int
	// PreviewRows bounds the rows sent to the paraphrase prompt and the table fallback.
	PreviewRows int
	// RetryDelay is the pause before re-running a statement after a transient store error.
	RetryDelay time.Duration
}

// DefaultConfig returns the agent defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:   1024,
		PreviewRows: 20,
		RetryDelay:  50 * time.Millisecond,
	}
}

// Agent is the analytical agent.
type Agent struct {
	logger    *observability.Logger
	completer llm.Completer
	store     Store
	config    Config
}

var _ domain.Agent = (*Agent)(nil)

// New creates an analytical agent. A nil completer behaves like a disabled provider.
func New(logger *observability.Logger, completer llm.Completer, store Store, cfg Config) *Agent {
	defaults := DefaultConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.PreviewRows <= 0 {
		cfg.PreviewRows = defaults.PreviewRows
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	if completer == nil {
		completer = llm.Disabled{}
	}
	return &Agent{
		logger:    logger.WithAgent("analytical"),
		completer: completer,
		store:     store,
		config:    cfg,
	}
}

func (a *Agent) Source() domain.Source { return domain.SourceAnalytical }

func (a *Agent) Capabilities() domain.Capabilities {
	return domain.Capabilities{
		Name:        "SQL Analytics Agent",
		Source:      domain.SourceAnalytical,
		Description: "Answers quantitative questions with read-only SQL over trending video statistics",
		Capabilities: []string{
			"Aggregation queries (SUM, AVG, COUNT, MAX, MIN)",
			"Filtering by category, country, language and channel",
			"Top-N rankings by views, likes or comments",
			"Statistical comparisons between groups",
			"Temporal analysis of trending periods",
		},
		BestFor: []string{
			"Top 10 channels by views",
			"Average likes per category",
			"Videos trending for more than 5 days",
			"Compare views between countries",
		},
	}
}

func (a *Agent) Ping(ctx context.Context) error {
	if a.store == nil {
		return domain.DependencyError("relational store not configured", nil)
	}
	if err := a.store.Ping(ctx); err != nil {
		return domain.DependencyError("relational store unreachable", err)
	}
	return nil
}

// SchemaDescription describes the queryable table.
func (a *Agent) SchemaDescription() string {
	if a.store == nil {
		return storage.SchemaDescription(storage.DriverSQLite, storage.DefaultTable)
	}
	return storage.SchemaDescription(a.store.Driver(), a.store.Table())
}

// Run translates, validates, executes and paraphrases the task query.
func (a *Agent) Run(ctx context.Context, task domain.Task) domain.AgentResult {
	start := time.Now()
	res := a.run(ctx, task)
	res.LatencyMs = time.Since(start).Milliseconds()
	res.Diagnostics["latency_ms"] = strconv.FormatInt(res.LatencyMs, 10)
	if f := task.Filter.Normalized(); f != nil {
		res.Diagnostics["filters"] = f.String()
	}
	return res
}

func (a *Agent) run(ctx context.Context, task domain.Task) domain.AgentResult {
	logger := a.logger.WithContext(ctx)
	src := domain.SourceAnalytical

	if err := task.Filter.Validate(); err != nil {
		return domain.FailureResult(src, domain.ErrorKindTranslationFailed, "invalid filter: "+err.Error())
	}
	if a.store == nil {
		return domain.FailureResult(src, domain.ErrorKindExecutionFailed, "relational store not configured")
	}

	query, attempts, err := a.translate(ctx, task)
	if err != nil {
		logger.Warn().Err(err).Int("attempts", attempts).Msg("SQL translation failed")
		res := domain.FailureFromError(src, err, domain.ErrorKindTranslationFailed)
		res.Diagnostics["attempts"] = strconv.Itoa(attempts)
		var ve *storage.ValidationError
		if errors.As(err, &ve) {
			res.Diagnostics["validation_error"] = ve.Reason
		}
		return res
	}

	result, err := a.execute(ctx, query)
	if err != nil {
		logger.Warn().Err(err).Str("sql", query).Msg("SQL execution failed")
		res := domain.FailureFromError(src, err, domain.ErrorKindExecutionFailed)
		res.Diagnostics["sql"] = query
		res.Diagnostics["attempts"] = strconv.Itoa(attempts)
		return res
	}

	res := domain.SuccessResult(src, noMatches, result.Rows)
	res.Columns = result.Columns
	res.Diagnostics["sql"] = query
	res.Diagnostics["attempts"] = strconv.Itoa(attempts)
	res.Diagnostics["row_count"] = strconv.Itoa(len(result.Rows))

	if len(result.Rows) > 0 {
		answer, how := a.paraphrase(ctx, task.Query, result)
		res.AnswerText = answer
		res.Diagnostics["paraphrase"] = how
	}

	logger.Debug().
		Int("rows", len(result.Rows)).
		Int("attempts", attempts).
		Msg("Analytical query answered")
	return res
}

// translate asks the LLM for SQL, retrying once with the rejection reason when
// the statement fails validation. It returns the validated statement.
func (a *Agent) translate(ctx context.Context, task domain.Task) (string, int, error) {
	system := translatePrompt(a.store.Driver(), a.store.Table(), task.Filter)
	feedback := ""
	var lastErr error

	for attempt := 1; attempt <= translateAttempts; attempt++ {
		text, err := a.completer.Complete(ctx, llm.Request{
			Purpose:   llm.PurposeTranslate,
			System:    system,
			User:      translateUser(task.Query, feedback),
			MaxTokens: a.config.MaxTokens,
		})
		if err != nil {
			if ctx.Err() != nil {
				return "", attempt, ctx.Err()
			}
			return "", attempt, domain.TranslationError("sql translation unavailable", err)
		}

		candidate := extractSQL(text)
		query, err := storage.ValidateReadOnly(candidate, a.store.Table())
		if err == nil {
			if cond := unenforcedFilter(query, task.Filter); cond != "" {
				err = &storage.ValidationError{Reason: "missing required filter condition " + cond}
			}
		}
		if err == nil {
			return query, attempt, nil
		}

		a.logger.Debug().Int("attempt", attempt).Str("sql", candidate).Err(err).Msg("Generated SQL rejected")
		lastErr = err
		feedback = err.Error()
	}
	return "", translateAttempts, domain.TranslationError(
		"could not produce a valid read-only query: "+strings.TrimPrefix(lastErr.Error(), "sql rejected: "),
		lastErr,
	)
}

// execute runs a validated statement, retrying once on a transient store error.
func (a *Agent) execute(ctx context.Context, query string) (*storage.Result, error) {
	var out *storage.Result
	err := retry.Do(
		func() error {
			res, err := a.store.Query(ctx, query)
			if err != nil {
				return err
			}
			out = res
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(a.config.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(storage.IsTransient),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, domain.ExecutionError("query execution failed", err)
	}
	return out, nil
}

// paraphrase summarizes the rows with the LLM, falling back to a table.
func (a *Agent) paraphrase(ctx context.Context, question string, res *storage.Result) (string, string) {
	text, err := a.completer.Complete(ctx, llm.Request{
		Purpose:   llm.PurposeParaphrase,
		System:    paraphraseSystem,
		User:      paraphraseUser(question, res, a.config.PreviewRows),
		MaxTokens: a.config.MaxTokens,
	})
	if text = strings.TrimSpace(text); err == nil && text != "" {
		return text, "llm"
	}
	if err != nil {
		a.logger.WithContext(ctx).Debug().Err(err).Msg("Paraphrase unavailable, using table")
	}
	return formatTable(res.Columns, res.Rows, a.config.PreviewRows), "table"
}

// ExecuteSQL validates and runs a caller-supplied statement. It returns the
// statement as executed, including an appended LIMIT.
func (a *Agent) ExecuteSQL(ctx context.Context, query string) (*storage.Result, string, error) {
	if a.store == nil {
		return nil, "", domain.DependencyError("relational store not configured", nil)
	}
	validated, err := storage.ValidateReadOnly(query, a.store.Table())
	if err != nil {
		return nil, "", domain.InvalidQueryError(strings.TrimPrefix(err.Error(), "sql rejected: "), err)
	}
	res, err := a.execute(ctx, validated)
	if err != nil {
		return nil, validated, err
	}
	return res, validated, nil
}
