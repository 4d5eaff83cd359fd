package output

import (
	"fmt"
	"io"
	"strings"
)

// Table renders aligned columns for text output.
type Table struct {
	headers    []string
	rows       [][]string
	noHeader   bool
	separator  string
	alignRight map[int]bool
}

// NewTable creates a table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{
		headers:    headers,
		rows:       [][]string{},
		separator:  "  ",
		alignRight: map[int]bool{},
	}
}

// AddRow appends a row. Short rows pad out with empty cells.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// SetNoHeader drops the header and rule rows from output.
func (t *Table) SetNoHeader(noHeader bool) {
	t.noHeader = noHeader
}

// SetSeparator overrides the default two-space column gap.
func (t *Table) SetSeparator(sep string) {
	t.separator = sep
}

// AlignRight right-aligns the given columns. Amount columns read better
// right-aligned.
func (t *Table) AlignRight(cols ...int) {
	for _, c := range cols {
		t.alignRight[c] = true
	}
}

// Render writes the table to w. An empty table produces no output.
func (t *Table) Render(w io.Writer) error {
	if len(t.headers) == 0 && len(t.rows) == 0 {
		return nil
	}

	widths := t.columnWidths()

	if !t.noHeader && len(t.headers) > 0 {
		if err := t.renderLine(w, t.headers, widths); err != nil {
			return err
		}
		rule := make([]string, len(widths))
		for i, width := range widths {
			rule[i] = strings.Repeat("-", width)
		}
		if err := t.renderLine(w, rule, widths); err != nil {
			return err
		}
	}

	for _, row := range t.rows {
		if err := t.renderLine(w, row, widths); err != nil {
			return err
		}
	}
	return nil
}

// String returns the rendered table.
func (t *Table) String() string {
	var b strings.Builder
	_ = t.Render(&b)
	return b.String()
}

// columnWidths sizes each column to its widest cell, header included.
// The column count follows the widest row, not just the header.
func (t *Table) columnWidths() []int {
	count := len(t.headers)
	for _, row := range t.rows {
		if len(row) > count {
			count = len(row)
		}
	}

	widths := make([]int, count)
	grow := func(i, n int) {
		if i < count && n > widths[i] {
			widths[i] = n
		}
	}
	for i, h := range t.headers {
		grow(i, len(h))
	}
	for _, row := range t.rows {
		for i, cell := range row {
			grow(i, len(cell))
		}
	}
	return widths
}

// renderLine pads each cell to its column width and joins with the
// separator.
func (t *Table) renderLine(w io.Writer, cells []string, widths []int) error {
	padded := make([]string, len(widths))
	for i, width := range widths {
		var cell string
		if i < len(cells) {
			cell = cells[i]
		}
		if t.alignRight[i] {
			padded[i] = fmt.Sprintf("%*s", width, cell)
		} else {
			padded[i] = fmt.Sprintf("%-*s", width, cell)
		}
	}
	_, err := fmt.Fprintln(w, strings.Join(padded, t.separator))
	return err
}
