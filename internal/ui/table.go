package ui

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Table renders rows of data in aligned columns.
type Table struct {
	w       *tabwriter.Writer
	headers []string
	rows    int
}

// NewTable creates a new table writer with the given column headers.
func NewTable(out io.Writer, headers ...string) *Table {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	t := &Table{w: tw, headers: headers}
	_, _ = fmt.Fprintln(tw, strings.Join(headers, "\t"))
	return t
}

// Row appends a row of values. Missing trailing values render as "-".
func (t *Table) Row(values ...any) {
	n := len(values)
	if len(t.headers) > n {
		n = len(t.headers)
	}
	parts := make([]string, n)
	for i := range parts {
		if i < len(values) && values[i] != nil && fmt.Sprint(values[i]) != "" {
			parts[i] = fmt.Sprintf("%v", values[i])
		} else {
			parts[i] = "-"
		}
	}
	t.rows++
	_, _ = fmt.Fprintln(t.w, strings.Join(parts, "\t"))
}

// Len returns the number of rows added.
func (t *Table) Len() int { return t.rows }

// Flush writes the buffered output.
func (t *Table) Flush() error {
	return t.w.Flush()
}
