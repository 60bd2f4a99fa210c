package analytical

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spherical-ai/trendscope/internal/domain"
)

const noMatches = "No matches"

// formatTable renders rows as a markdown table, used when the LLM cannot paraphrase.
func formatTable(columns []string, rows []domain.Row, max int) string {
	if len(rows) == 0 {
		return noMatches
	}
	shown := rows
	if max > 0 && len(shown) > max {
		shown = shown[:max]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d %s:\n\n", len(rows), plural(len(rows), "row", "rows"))
	b.WriteString("| " + strings.Join(columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(columns)) + "\n")
	for _, row := range shown {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = formatValue(row[col])
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	if len(shown) < len(rows) {
		fmt.Fprintf(&b, "\n(%d more rows not shown)", len(rows)-len(shown))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case int64:
		return domain.FormatCount(x)
	case int:
		return domain.FormatCount(int64(x))
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return domain.FormatCount(int64(x))
		}
		return strconv.FormatFloat(x, 'f', 2, 64)
	case string:
		return strings.ReplaceAll(x, "|", "/")
	default:
		return fmt.Sprint(x)
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
