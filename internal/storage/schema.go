package storage

import (
	"fmt"
	"strings"
)

// DefaultTable is the relational table holding one row per video.
const DefaultTable = "videos"

// Column describes one column of the videos table.
type Column struct {
	Name         string
	SQLiteType   string
	PostgresType string
	Description  string
}

// Columns is the fixed schema of the videos table, in declaration order.
var Columns = []Column{
	{"video_id", "TEXT PRIMARY KEY", "TEXT PRIMARY KEY", "Unique identifier"},
	{"title", "TEXT NOT NULL", "TEXT NOT NULL", "Video title"},
	{"description", "TEXT", "TEXT", "Video description, truncated to 500 characters"},
	{"tags", "TEXT", "TEXT", "Pipe-separated tags, e.g. 'music|live'"},
	{"category_id", "INTEGER", "INTEGER", "Numeric category ID"},
	{"category_name", "TEXT", "TEXT", "Category name, e.g. 'Music', 'Gaming'"},
	{"channel_title", "TEXT", "TEXT", "Channel name"},
	{"country", "TEXT", "TEXT", "ISO country code, e.g. 'US', 'CA'"},
	{"language", "TEXT", "TEXT", "ISO language code, e.g. 'en'"},
	{"publish_time", "TEXT", "TIMESTAMPTZ", "Publication timestamp"},
	{"first_trend_date", "TEXT", "DATE", "First trending date"},
	{"last_trend_date", "TEXT", "DATE", "Last trending date"},
	{"days_trending_unique", "INTEGER", "INTEGER", "Number of distinct days trending"},
	{"longest_consecutive_streak_days", "INTEGER", "INTEGER", "Longest consecutive trending streak in days"},
	{"views", "INTEGER", "BIGINT", "View count"},
	{"likes", "INTEGER", "BIGINT", "Like count"},
	{"comment_count", "INTEGER", "BIGINT", "Comment count"},
}

// ColumnAliases maps names an LLM commonly guesses to the real column.
var ColumnAliases = map[string]string{
	"view_count":    "views",
	"view_counts":   "views",
	"like_count":    "likes",
	"like_counts":   "likes",
	"comments":      "comment_count",
	"channel":       "channel_title",
	"channel_name":  "channel_title",
	"category":      "category_name",
	"days_trending": "days_trending_unique",
}

// ColumnNames returns the column names in declaration order.
func ColumnNames() []string {
	names := make([]string, len(Columns))
	for i, c := range Columns {
		names[i] = c.Name
	}
	return names
}

func isColumn(name string) bool {
	for _, c := range Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// CreateTableSQL returns the DDL for the videos table in the given driver's dialect.
func CreateTableSQL(driver, table string) string {
	if table == "" {
		table = DefaultTable
	}
	defs := make([]string, len(Columns))
	for i, c := range Columns {
		typ := c.SQLiteType
		if driver == DriverPostgres {
			typ = c.PostgresType
		}
		defs[i] = fmt.Sprintf("\t%s %s", c.Name, typ)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", table, strings.Join(defs, ",\n"))
}

// IndexSQL returns secondary indexes used by the common aggregate queries.
func IndexSQL(table string) []string {
	if table == "" {
		table = DefaultTable
	}
	return []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_channel ON %s (channel_title)", table, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_category ON %s (category_name)", table, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_country ON %s (country)", table, table),
	}
}

// SchemaDescription renders the table layout for prompts and the CLI.
func SchemaDescription(driver, table string) string {
	if table == "" {
		table = DefaultTable
	}
	var b strings.Builder
	dialect := "SQLite"
	if driver == DriverPostgres {
		dialect = "PostgreSQL"
	}
	fmt.Fprintf(&b, "Dialect: %s\nTable: %s\n\nColumns:\n", dialect, table)
	for _, c := range Columns {
		typ := c.SQLiteType
		if driver == DriverPostgres {
			typ = c.PostgresType
		}
		typ = strings.Fields(typ)[0]
		fmt.Fprintf(&b, "- %s (%s): %s\n", c.Name, typ, c.Description)
	}
	b.WriteString("\nColumn name warnings:\n")
	for _, wrong := range []string{"view_count", "like_count", "comments", "channel", "channel_name", "category"} {
		fmt.Fprintf(&b, "- use %s, not %s\n", ColumnAliases[wrong], wrong)
	}
	return b.String()
}
