package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultQueryCeiling is the maximum query length in runes.
const DefaultQueryCeiling = 2000

// DescriptionLimit is the number of description characters kept on a record.
const DescriptionLimit = 500

// Source identifies the agent that produced a result.
type Source string

const (
	SourceAnalytical Source = "ANALYTICAL"
	SourceSemantic   Source = "SEMANTIC"
)

// Label returns the lowercase name used in user-facing text.
func (s Source) Label() string {
	switch s {
	case SourceAnalytical:
		return "analytical"
	case SourceSemantic:
		return "semantic"
	default:
		return strings.ToLower(string(s))
	}
}

// NormalizeQuery trims the query and collapses internal whitespace runs.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

// ValidateQuery normalizes q and rejects it when empty or longer than ceiling runes.
func ValidateQuery(q string, ceiling int) (string, error) {
	if ceiling <= 0 {
		ceiling = DefaultQueryCeiling
	}
	normalized := NormalizeQuery(q)
	if normalized == "" {
		return "", InvalidQueryError("query must not be empty", nil)
	}
	if n := utf8.RuneCountInString(normalized); n > ceiling {
		return "", InvalidQueryError(fmt.Sprintf("query is %d characters, limit is %d", n, ceiling), nil)
	}
	return normalized, nil
}

// VideoRecord is one trending video with its aggregated trending metrics.
type VideoRecord struct {
	VideoID                      string    `json:"video_id"`
	Title                        string    `json:"title"`
	Channel                      string    `json:"channel"`
	Category                     string    `json:"category"`
	CategoryID                   int       `json:"category_id"`
	Country                      string    `json:"country"`
	Language                     string    `json:"language"`
	Views                        int64     `json:"views"`
	Likes                        int64     `json:"likes"`
	CommentCount                 int64     `json:"comment_count"`
	PublishTime                  time.Time `json:"publish_time"`
	FirstTrendDate               time.Time `json:"first_trend_date"`
	LastTrendDate                time.Time `json:"last_trend_date"`
	DaysTrendingUnique           int       `json:"days_trending_unique"`
	LongestConsecutiveStreakDays int       `json:"longest_consecutive_streak_days"`
	Tags                         []string  `json:"tags"`
	Description                  string    `json:"description,omitempty"`
	SearchableText               string    `json:"searchable_text,omitempty"`
}

// TruncateDescription limits the description to DescriptionLimit runes.
func (v *VideoRecord) TruncateDescription() {
	if utf8.RuneCountInString(v.Description) <= DescriptionLimit {
		return
	}
	runes := []rune(v.Description)
	v.Description = string(runes[:DescriptionLimit])
}

// BuildSearchableText returns the denormalized text that is embedded for the record.
func (v *VideoRecord) BuildSearchableText() string {
	parts := []string{v.Title}
	if v.Channel != "" {
		parts = append(parts, "Channel: "+v.Channel)
	}
	if v.Category != "" {
		parts = append(parts, "Category: "+v.Category)
	}
	if len(v.Tags) > 0 {
		parts = append(parts, "Tags: "+strings.Join(v.Tags, ", "))
	}
	if v.Description != "" {
		desc := v.Description
		if r := []rune(desc); len(r) > DescriptionLimit {
			desc = string(r[:DescriptionLimit])
		}
		parts = append(parts, desc)
	}
	return strings.Join(parts, " | ")
}

// RouteKind is the Router's classification of a query.
type RouteKind string

const (
	RouteAnalytical RouteKind = "ANALYTICAL"
	RouteSemantic   RouteKind = "SEMANTIC"
	RouteHybrid     RouteKind = "HYBRID"
	RouteUnknown    RouteKind = "UNKNOWN"
)

// ParseRouteKind accepts a kind name in any case.
func ParseRouteKind(s string) (RouteKind, bool) {
	switch RouteKind(strings.ToUpper(strings.TrimSpace(s))) {
	case RouteAnalytical:
		return RouteAnalytical, true
	case RouteSemantic:
		return RouteSemantic, true
	case RouteHybrid:
		return RouteHybrid, true
	case RouteUnknown:
		return RouteUnknown, true
	}
	return "", false
}

// Agents returns the canonical agent set for the kind in assembly order.
func (k RouteKind) Agents() []Source {
	switch k {
	case RouteAnalytical:
		return []Source{SourceAnalytical}
	case RouteHybrid:
		return []Source{SourceAnalytical, SourceSemantic}
	default:
		return []Source{SourceSemantic}
	}
}

// Execution strategies reported on a routing decision.
const (
	StrategySingleAgent        = "single_agent"
	StrategyMultiAgentParallel = "multi_agent_parallel"
	StrategyFallback           = "fallback"
)

// RoutingDecision is the Router's verdict. Build it with the New*Decision
// constructors so sub-query presence always matches Kind.
type RoutingDecision struct {
	Kind               RouteKind         `json:"kind"`
	Confidence         float64           `json:"confidence"`
	Reasoning          string            `json:"reasoning"`
	AnalyticalSubquery string            `json:"analytical_subquery,omitempty"`
	SemanticSubquery   string            `json:"semantic_subquery,omitempty"`
	Filters            *Filter           `json:"filters,omitempty"`
	// AnalyticalFilters and SemanticFilters are what each agent of a HYBRID
	// decision applies; Filters covers the whole question.
	AnalyticalFilters  *Filter           `json:"analytical_filters,omitempty"`
	SemanticFilters    *Filter           `json:"semantic_filters,omitempty"`
	ExecutionStrategy  string            `json:"execution_strategy"`
	Degraded           bool              `json:"degraded,omitempty"`
	Diagnostics        map[string]string `json:"diagnostics,omitempty"`
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func NewAnalyticalDecision(subquery string, confidence float64, reasoning string, f *Filter) RoutingDecision {
	return RoutingDecision{
		Kind:               RouteAnalytical,
		Confidence:         clampConfidence(confidence),
		Reasoning:          reasoning,
		AnalyticalSubquery: subquery,
		Filters:            f.Normalized(),
		ExecutionStrategy:  StrategySingleAgent,
	}
}

func NewSemanticDecision(subquery string, confidence float64, reasoning string, f *Filter) RoutingDecision {
	return RoutingDecision{
		Kind:              RouteSemantic,
		Confidence:        clampConfidence(confidence),
		Reasoning:         reasoning,
		SemanticSubquery:  subquery,
		Filters:           f.Normalized(),
		ExecutionStrategy: StrategySingleAgent,
	}
}

func NewHybridDecision(analytical, semantic string, confidence float64, reasoning string, f *Filter) RoutingDecision {
	return RoutingDecision{
		Kind:               RouteHybrid,
		Confidence:         clampConfidence(confidence),
		Reasoning:          reasoning,
		AnalyticalSubquery: analytical,
		SemanticSubquery:   semantic,
		Filters:            f.Normalized(),
		AnalyticalFilters:  f.Normalized(),
		SemanticFilters:    f.Normalized(),
		ExecutionStrategy:  StrategyMultiAgentParallel,
	}
}

// ScopeFilters sets the filter each agent of a HYBRID decision receives.
func (d *RoutingDecision) ScopeFilters(analytical, semantic *Filter) {
	d.AnalyticalFilters = analytical.Normalized()
	d.SemanticFilters = semantic.Normalized()
}

// FilterFor returns a copy of the filter the given agent applies.
func (d RoutingDecision) FilterFor(src Source) *Filter {
	if d.Kind != RouteHybrid {
		return d.Filters.Clone()
	}
	switch src {
	case SourceAnalytical:
		return d.AnalyticalFilters.Clone()
	case SourceSemantic:
		return d.SemanticFilters.Clone()
	}
	return nil
}

// NewUnknownDecision carries no sub-queries; the semantic agent receives the full query.
func NewUnknownDecision(confidence float64, reasoning string, f *Filter) RoutingDecision {
	return RoutingDecision{
		Kind:              RouteUnknown,
		Confidence:        clampConfidence(confidence),
		Reasoning:         reasoning,
		Filters:           f.Normalized(),
		ExecutionStrategy: StrategyFallback,
	}
}

// MarkDegraded records that the fallback classifier produced the decision.
func (d *RoutingDecision) MarkDegraded(cause string) {
	d.Degraded = true
	if d.Diagnostics == nil {
		d.Diagnostics = make(map[string]string)
	}
	d.Diagnostics["router_degraded"] = string(ErrorKindRouterDegraded)
	if cause != "" {
		d.Diagnostics["router_error"] = cause
	}
}

// SubqueryFor returns the text the given agent should receive.
func (d RoutingDecision) SubqueryFor(src Source, query string) string {
	switch src {
	case SourceAnalytical:
		if d.AnalyticalSubquery != "" {
			return d.AnalyticalSubquery
		}
	case SourceSemantic:
		if d.SemanticSubquery != "" {
			return d.SemanticSubquery
		}
	}
	return query
}

// Row is one result item keyed by column or field name.
type Row map[string]any

// String returns the value at key formatted as text, or "" when absent.
func (r Row) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// Float returns the value at key as a float64 when it is numeric.
func (r Row) Float(key string) (float64, bool) {
	switch t := r[key].(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}

// UnmarshalJSON decodes integral numbers as int64 so counts above 2^53
// survive a round trip; other numbers become float64.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		*r = nil
		return nil
	}
	for k, v := range raw {
		raw[k] = fromJSONNumber(v)
	}
	*r = raw
	return nil
}

func fromJSONNumber(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = fromJSONNumber(e)
		}
	case []any:
		for i, e := range t {
			t[i] = fromJSONNumber(e)
		}
	}
	return v
}

// AgentResult is the uniform envelope returned by every agent.
type AgentResult struct {
	OK           bool              `json:"ok"`
	AnswerText   string            `json:"answer_text"`
	Rows         []Row             `json:"rows"`
	Columns      []string          `json:"columns,omitempty"`
	Source       Source            `json:"source"`
	Diagnostics  map[string]string `json:"diagnostics,omitempty"`
	ErrorKind    ErrorKind         `json:"error_kind,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	LatencyMs    int64             `json:"latency_ms"`
}

// SuccessResult builds an ok result; rows is never nil in the result.
func SuccessResult(src Source, answer string, rows []Row) AgentResult {
	if rows == nil {
		rows = []Row{}
	}
	return AgentResult{
		OK:          true,
		AnswerText:  answer,
		Rows:        rows,
		Source:      src,
		Diagnostics: make(map[string]string),
	}
}

// FailureResult builds a failed result with the given kind.
func FailureResult(src Source, kind ErrorKind, message string) AgentResult {
	return AgentResult{
		OK:           false,
		Rows:         []Row{},
		Source:       src,
		Diagnostics:  make(map[string]string),
		ErrorKind:    kind,
		ErrorMessage: message,
	}
}

// FailureFromError classifies err with KindOf, using fallback for unclassified errors.
func FailureFromError(src Source, err error, fallback ErrorKind) AgentResult {
	msg := ""
	var de *DomainError
	if err != nil {
		msg = err.Error()
		if errors.As(err, &de) {
			msg = de.Message
		}
	}
	return FailureResult(src, KindOf(err, fallback), msg)
}

// OrchestratedResponse is the system's answer to one query.
type OrchestratedResponse struct {
	RequestID        string           `json:"request_id"`
	Query            string           `json:"query"`
	Answer           string           `json:"answer"`
	Success          bool             `json:"success"`
	Routing          *RoutingDecision `json:"routing,omitempty"`
	AnalyticalResult *AgentResult     `json:"analytical_result,omitempty"`
	SemanticResult   *AgentResult     `json:"semantic_result,omitempty"`
	ProcessingTimeMs int64            `json:"processing_time_ms"`
	State            State            `json:"state"`
	ErrorKind        ErrorKind        `json:"error_kind,omitempty"`
	ErrorMessage     string           `json:"error_message,omitempty"`
}

// Results returns the agent results present on the response in field order.
func (r *OrchestratedResponse) Results() []*AgentResult {
	var out []*AgentResult
	if r.AnalyticalResult != nil {
		out = append(out, r.AnalyticalResult)
	}
	if r.SemanticResult != nil {
		out = append(out, r.SemanticResult)
	}
	return out
}

// Capabilities describes an agent for the system info endpoint.
type Capabilities struct {
	Name         string   `json:"name"`
	Source       Source   `json:"source"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
	BestFor      []string `json:"best_for"`
}

// Statistics enumerates the filter values present in the semantic index.
type Statistics struct {
	TotalDocuments int64    `json:"total_documents"`
	Categories     []string `json:"categories"`
	Countries      []string `json:"countries"`
	Languages      []string `json:"languages"`
}
