// Package ui provides terminal output for the trendscope CLI.
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
)

// UI writes human or JSON output to the command's streams.
type UI struct {
	out, err io.Writer
	jsonMode bool
	// interactive enables spinners and progress bars.
	interactive bool

	green, red, yellow, cyan, blue, bold *color.Color
}

// New creates a UI. Spinners and colors are only used when interactive is true.
func New(out, err io.Writer, jsonMode, noColor, interactive bool) *UI {
	u := &UI{
		out:         out,
		err:         err,
		jsonMode:    jsonMode,
		interactive: interactive && !jsonMode,
		green:       color.New(color.FgGreen),
		red:         color.New(color.FgRed),
		yellow:      color.New(color.FgYellow),
		cyan:        color.New(color.FgCyan),
		blue:        color.New(color.FgBlue),
		bold:        color.New(color.Bold),
	}
	if noColor || !interactive {
		for _, c := range []*color.Color{u.green, u.red, u.yellow, u.cyan, u.blue, u.bold} {
			c.DisableColor()
		}
	}
	return u
}

// JSON reports whether output is machine-readable.
func (u *UI) JSON() bool { return u.jsonMode }

// Out is the primary output stream.
func (u *UI) Out() io.Writer { return u.out }

// PrintJSON writes v as indented JSON to the output stream.
func (u *UI) PrintJSON(v any) error {
	enc := json.NewEncoder(u.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Success prints a success message.
func (u *UI) Success(format string, args ...interface{}) {
	if u.jsonMode {
		return
	}
	u.green.Fprintf(u.out, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Error prints an error message to the error stream. It is shown in JSON mode too.
func (u *UI) Error(format string, args ...interface{}) {
	u.red.Fprintf(u.err, "✗ %s\n", fmt.Sprintf(format, args...))
}

// Warning prints a warning to the error stream.
func (u *UI) Warning(format string, args ...interface{}) {
	if u.jsonMode {
		return
	}
	u.yellow.Fprintf(u.err, "⚠ %s\n", fmt.Sprintf(format, args...))
}

// Info prints an informational message.
func (u *UI) Info(format string, args ...interface{}) {
	if u.jsonMode {
		return
	}
	u.cyan.Fprintf(u.out, "ℹ %s\n", fmt.Sprintf(format, args...))
}

// Step prints a step message.
func (u *UI) Step(format string, args ...interface{}) {
	if u.jsonMode {
		return
	}
	u.blue.Fprintf(u.out, "→ %s\n", fmt.Sprintf(format, args...))
}

// Section prints an underlined header.
func (u *UI) Section(title string) {
	if u.jsonMode {
		return
	}
	u.bold.Fprintf(u.out, "\n%s\n", title)
	fmt.Fprintf(u.out, "%s\n", strings.Repeat("=", len([]rune(title))))
}

// KeyValue prints an indented key-value pair.
func (u *UI) KeyValue(key, value string) {
	if u.jsonMode {
		return
	}
	fmt.Fprintf(u.out, "  %s: %s\n", key, value)
}

// Println writes a plain line.
func (u *UI) Println(s string) {
	fmt.Fprintln(u.out, s)
}

// Table prints rows under headers in aligned columns.
func (u *UI) Table(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(u.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	sep := make([]string, len(headers))
	for i, h := range headers {
		sep[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(w, strings.Join(sep, "\t"))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = strings.ReplaceAll(c, "\t", " ")
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	_ = w.Flush()
}
