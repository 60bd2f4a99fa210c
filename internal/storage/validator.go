package storage

import (
	"fmt"
	"strings"
)

// DefaultLimit is appended to statements that carry no LIMIT clause.
const DefaultLimit = 10

// ValidationError reports why a statement was rejected as unsafe or unknown.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "sql rejected: " + e.Reason
}

func rejectf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

var forbiddenVerbs = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true, "ALTER": true,
	"CREATE": true, "REPLACE": true, "TRUNCATE": true, "ATTACH": true, "DETACH": true,
	"PRAGMA": true, "VACUUM": true, "GRANT": true, "REVOKE": true, "MERGE": true,
	"UPSERT": true, "REINDEX": true, "COPY": true, "CALL": true, "EXEC": true,
	"EXECUTE": true,
}

var sqlKeywords = toSet(
	"SELECT", "WITH", "RECURSIVE", "AS", "FROM", "WHERE", "AND", "OR", "NOT", "IN", "IS",
	"NULL", "LIKE", "ILIKE", "GLOB", "BETWEEN", "EXISTS", "CASE", "WHEN", "THEN", "ELSE",
	"END", "GROUP", "BY", "ORDER", "HAVING", "LIMIT", "OFFSET", "ASC", "DESC", "DISTINCT",
	"ALL", "ANY", "UNION", "INTERSECT", "EXCEPT", "JOIN", "INNER", "LEFT", "RIGHT", "FULL",
	"OUTER", "CROSS", "NATURAL", "ON", "USING", "OVER", "PARTITION", "ROWS", "RANGE",
	"PRECEDING", "FOLLOWING", "UNBOUNDED", "CURRENT", "ROW", "FILTER", "NULLS", "FIRST",
	"LAST", "TRUE", "FALSE", "COLLATE", "NOCASE", "ESCAPE", "INTERVAL", "WINDOW", "FETCH",
	"NEXT", "ONLY", "CURRENT_DATE", "CURRENT_TIME", "CURRENT_TIMESTAMP",
	"INTEGER", "INT", "BIGINT", "SMALLINT", "REAL", "TEXT", "NUMERIC", "FLOAT", "DOUBLE",
	"PRECISION", "VARCHAR", "CHAR", "DATE", "TIMESTAMP", "TIMESTAMPTZ", "BOOLEAN", "DECIMAL",
	"YEAR", "MONTH", "DAY", "HOUR", "MINUTE", "SECOND", "WEEK", "DOW", "EPOCH",
)

var sqlFunctions = toSet(
	"COUNT", "SUM", "AVG", "MIN", "MAX", "TOTAL", "ROUND", "ABS", "CEIL", "CEILING", "FLOOR",
	"LOWER", "UPPER", "LENGTH", "SUBSTR", "SUBSTRING", "TRIM", "LTRIM", "RTRIM", "REPLACE",
	"INSTR", "POSITION", "SPLIT_PART", "COALESCE", "IFNULL", "NULLIF", "IIF", "CAST",
	"DATE", "TIME", "DATETIME", "JULIANDAY", "STRFTIME", "EXTRACT", "DATE_TRUNC", "DATE_PART",
	"TO_CHAR", "NOW", "AGE", "GROUP_CONCAT", "STRING_AGG", "ARRAY_AGG", "PRINTF", "FORMAT",
	"CONCAT", "ROW_NUMBER", "RANK", "DENSE_RANK", "NTILE", "PERCENT_RANK", "LAG", "LEAD",
	"FIRST_VALUE", "LAST_VALUE", "GREATEST", "LEAST", "MEDIAN",
)

func toSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokQuoted
	tokNumber
	tokString
	tokPunct
)

type token struct {
	kind  tokenKind
	text  string // identifiers are lowercased, punctuation is the literal character
	upper string
}

func (t token) is(p string) bool { return t.kind == tokPunct && t.text == p }

func (t token) kw(k string) bool { return t.kind == tokWord && t.upper == k }

func (t token) ident() bool { return t.kind == tokWord || t.kind == tokQuoted }

// scan tokenizes src, returning the statement with comments removed and the token stream.
func scan(src string) (string, []token, error) {
	var b strings.Builder
	var toks []token
	n := len(src)
	for i := 0; i < n; {
		c := src[i]
		switch {
		case c == '-' && i+1 < n && src[i+1] == '-':
			for i < n && src[i] != '\n' {
				i++
			}
			b.WriteByte(' ')
		case c == '/' && i+1 < n && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return "", nil, rejectf("unterminated comment")
			}
			i += end + 4
			b.WriteByte(' ')
		case c == '\'':
			j := i + 1
			for {
				if j >= n {
					return "", nil, rejectf("unterminated string literal")
				}
				if src[j] == '\'' {
					if j+1 < n && src[j+1] == '\'' {
						j += 2
						continue
					}
					break
				}
				j++
			}
			b.WriteString(src[i : j+1])
			toks = append(toks, token{kind: tokString})
			i = j + 1
		case c == '"' || c == '`':
			end := strings.IndexByte(src[i+1:], c)
			if end < 0 {
				return "", nil, rejectf("unterminated quoted identifier")
			}
			name := strings.ToLower(src[i+1 : i+1+end])
			b.WriteString(src[i : i+end+2])
			toks = append(toks, token{kind: tokQuoted, text: name, upper: strings.ToUpper(name)})
			i += end + 2
		case isIdentStart(c):
			j := i
			for j < n && isIdentPart(src[j]) {
				j++
			}
			word := src[i:j]
			b.WriteString(word)
			toks = append(toks, token{kind: tokWord, text: strings.ToLower(word), upper: strings.ToUpper(word)})
			i = j
		case isDigit(c) || (c == '.' && i+1 < n && isDigit(src[i+1])):
			j := i
			for j < n && (isIdentPart(src[j]) || src[j] == '.') {
				j++
			}
			b.WriteString(src[i:j])
			toks = append(toks, token{kind: tokNumber, text: src[i:j]})
			i = j
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			b.WriteByte(c)
			i++
		default:
			b.WriteByte(c)
			toks = append(toks, token{kind: tokPunct, text: string(c)})
			i++
		}
	}
	return b.String(), toks, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// ValidateReadOnly checks that query is a single read-only SELECT (or WITH ... SELECT)
// over table and its CTEs, using only known columns, aliases and functions.
// Comments are removed and LIMIT 10 is appended when no LIMIT is present.
func ValidateReadOnly(query, table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	clean, toks, err := scan(query)
	if err != nil {
		return "", err
	}
	clean = strings.TrimRight(strings.TrimSpace(clean), "; \t\r\n")
	for len(toks) > 0 && toks[len(toks)-1].is(";") {
		toks = toks[:len(toks)-1]
	}
	if len(toks) == 0 {
		return "", rejectf("empty statement")
	}
	for _, t := range toks {
		if t.is(";") {
			return "", rejectf("multiple statements are not allowed")
		}
	}
	if !toks[0].kw("SELECT") && !toks[0].kw("WITH") {
		return "", rejectf("statement must start with SELECT or WITH")
	}
	for i, t := range toks {
		if t.kind != tokWord || !forbiddenVerbs[t.upper] {
			continue
		}
		// replace(x, a, b) is a scalar function, not the REPLACE statement.
		if t.upper == "REPLACE" && i+1 < len(toks) && toks[i+1].is("(") {
			continue
		}
		return "", rejectf("forbidden keyword %s", t.upper)
	}

	c := &checker{
		toks:    toks,
		table:   strings.ToLower(table),
		ctes:    map[string]bool{},
		aliases: map[string]bool{},
	}
	c.collect()
	if err := c.verify(); err != nil {
		return "", err
	}

	if !hasTopLevelLimit(toks) {
		clean = fmt.Sprintf("%s LIMIT %d", clean, DefaultLimit)
	}
	return clean, nil
}

type checker struct {
	toks      []token
	table     string
	ctes      map[string]bool
	aliases   map[string]bool
	tableRefs []string
}

func (c *checker) at(i int) (token, bool) {
	if i < 0 || i >= len(c.toks) {
		return token{}, false
	}
	return c.toks[i], true
}

func (c *checker) collect() {
	var parens []bool // true when the paren opens a function call
	for i := 0; i < len(c.toks); i++ {
		t := c.toks[i]
		next, hasNext := c.at(i + 1)

		switch {
		case t.ident() && hasNext && next.kw("AS"):
			if after, ok := c.at(i + 2); ok && after.is("(") {
				c.ctes[t.text] = true
			}
		case t.kw("AS") && hasNext && next.ident():
			if after, ok := c.at(i + 2); !ok || !after.is("(") {
				c.aliases[next.text] = true
			}
		}

		switch {
		case t.is("("):
			prev, ok := c.at(i - 1)
			parens = append(parens, ok && prev.kind == tokWord && sqlFunctions[prev.upper])
		case t.is(")"):
			if len(parens) > 0 {
				parens = parens[:len(parens)-1]
			}
			// FROM (SELECT ...) sub
			if hasNext && next.kind == tokWord && !sqlKeywords[next.upper] && !sqlFunctions[next.upper] {
				c.aliases[next.text] = true
			}
		case t.kw("FROM") && (len(parens) == 0 || !parens[len(parens)-1]):
			i = c.tableList(i+1, true)
		case t.kw("JOIN"):
			i = c.tableList(i+1, false)
		}
	}
}

// tableList records table references starting at j and returns the index of the last consumed token.
func (c *checker) tableList(j int, allowComma bool) int {
	for {
		t, ok := c.at(j)
		if !ok || !t.ident() || (t.kind == tokWord && sqlKeywords[t.upper]) {
			return j - 1
		}
		name := t.text
		if dot, ok := c.at(j + 1); ok && dot.is(".") {
			if part, ok := c.at(j + 2); ok && part.ident() {
				name = part.text
				j += 2
			}
		}
		c.tableRefs = append(c.tableRefs, name)
		j++

		if t, ok := c.at(j); ok && t.kw("AS") {
			if alias, ok := c.at(j + 1); ok && alias.ident() {
				c.aliases[alias.text] = true
			}
			j += 2
		} else if ok && t.ident() && !(t.kind == tokWord && (sqlKeywords[t.upper] || sqlFunctions[t.upper])) {
			c.aliases[t.text] = true
			j++
		}

		if t, ok := c.at(j); allowComma && ok && t.is(",") {
			j++
			continue
		}
		return j - 1
	}
}

func (c *checker) known(name string) bool {
	return isColumn(name) || c.aliases[name] || c.ctes[name] || name == c.table
}

func (c *checker) verify() error {
	for _, ref := range c.tableRefs {
		if ref != c.table && !c.ctes[ref] {
			return rejectf("unknown table %s", ref)
		}
	}

	for i := 0; i < len(c.toks); i++ {
		t := c.toks[i]
		if !t.ident() {
			continue
		}
		next, hasNext := c.at(i + 1)

		if hasNext && next.is(".") {
			if !c.aliases[t.text] && !c.ctes[t.text] && t.text != c.table {
				return rejectf("unknown qualifier %s", t.text)
			}
			field, ok := c.at(i + 2)
			if !ok {
				return rejectf("dangling qualifier %s", t.text)
			}
			if field.is("*") {
				i += 2
				continue
			}
			if !field.ident() || !(isColumn(field.text) || c.aliases[field.text]) {
				return rejectf("unknown column %s.%s", t.text, field.text)
			}
			i += 2
			continue
		}

		if t.kind == tokWord && sqlKeywords[t.upper] {
			continue
		}
		if hasNext && next.is("(") {
			if t.kind == tokWord && sqlFunctions[t.upper] {
				continue
			}
			if c.ctes[t.text] {
				continue
			}
			return rejectf("unknown function %s", t.text)
		}
		if !c.known(t.text) {
			if alias, ok := ColumnAliases[t.text]; ok {
				return rejectf("unknown column %s (did you mean %s?)", t.text, alias)
			}
			return rejectf("unknown column %s", t.text)
		}
	}
	return nil
}

func hasTopLevelLimit(toks []token) bool {
	depth := 0
	for _, t := range toks {
		switch {
		case t.is("("):
			depth++
		case t.is(")"):
			depth--
		case depth == 0 && (t.kw("LIMIT") || t.kw("FETCH")):
			return true
		}
	}
	return false
}
