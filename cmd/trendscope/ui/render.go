package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spherical-ai/trendscope/internal/domain"
)

// Response prints an orchestrated answer. verbose adds routing details and per-agent rows.
func (u *UI) Response(resp *domain.OrchestratedResponse, verbose bool) {
	u.Section("Answer")
	u.Println(resp.Answer)

	switch resp.State {
	case domain.StateDone:
	case domain.StatePartial:
		u.Warning("Partial answer: %s", resp.ErrorMessage)
	default:
		u.Error("%s: %s", resp.ErrorKind, resp.ErrorMessage)
		if remedy := domain.Remedy(resp.ErrorKind); remedy != "" {
			u.Info("%s", remedy)
		}
	}

	if !verbose {
		u.KeyValue("state", fmt.Sprintf("%s in %dms", resp.State, resp.ProcessingTimeMs))
		return
	}

	u.Section("Details")
	u.KeyValue("request", resp.RequestID)
	u.KeyValue("state", string(resp.State))
	u.KeyValue("elapsed", fmt.Sprintf("%dms", resp.ProcessingTimeMs))
	if d := resp.Routing; d != nil {
		route := fmt.Sprintf("%s (confidence %.2f)", d.Kind, d.Confidence)
		if d.Degraded {
			route += ", keyword fallback"
		}
		u.KeyValue("route", route)
		u.KeyValue("reasoning", d.Reasoning)
		if !d.Filters.IsEmpty() {
			u.KeyValue("filters", d.Filters.String())
		}
	}
	for _, r := range resp.Results() {
		u.agentResult(r)
	}
}

func (u *UI) agentResult(r *domain.AgentResult) {
	title := fmt.Sprintf("%s agent (%dms)", capitalize(r.Source.Label()), r.LatencyMs)
	u.Section(title)
	if !r.OK {
		u.Error("%s: %s", r.ErrorKind, r.ErrorMessage)
		return
	}
	if sql := r.Diagnostics["sql"]; sql != "" {
		u.KeyValue("sql", sql)
	}
	u.Rows(r.Columns, r.Rows)
}

// Rows prints rows as a table. Without columns the keys of the first row are used.
func (u *UI) Rows(columns []string, rows []domain.Row) {
	if len(rows) == 0 {
		u.Info("No rows")
		return
	}
	if len(columns) == 0 {
		columns = rowKeys(rows[0])
	}
	out := make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(columns))
		for j, c := range columns {
			cells[j] = cell(row[c])
		}
		out[i] = cells
	}
	u.Table(columns, out)
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case float64:
		if t == float64(int64(t)) {
			return domain.FormatCount(int64(t))
		}
		return fmt.Sprintf("%.4f", t)
	case int64:
		return domain.FormatCount(t)
	case int:
		return domain.FormatCount(int64(t))
	case []string:
		return strings.Join(t, ", ")
	default:
		s := fmt.Sprint(t)
		if len([]rune(s)) > 60 {
			s = string([]rune(s)[:57]) + "..."
		}
		return s
	}
}

func rowKeys(r domain.Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
