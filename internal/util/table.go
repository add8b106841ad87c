package util

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"
)

var ansiSequence = regexp.MustCompile("\x1b\\[[0-9;]*m")

// Table is a left aligned text table. Cells may carry color sequences.
type Table struct {
	headers []string
	rows    [][]string
}

func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// AddRow appends a row. Missing cells render empty, extra cells are ignored.
func (t *Table) AddRow(cells ...interface{}) {
	row := make([]string, len(t.headers))
	for i := range row {
		if i < len(cells) {
			row[i] = fmt.Sprint(cells[i])
		}
	}
	t.rows = append(t.rows, row)
}

func (t *Table) Len() int {
	return len(t.rows)
}

// Render writes the header, a dashed separator and every row.
func (t *Table) Render(w io.Writer) {
	if len(t.rows) == 0 {
		fmt.Fprintln(w, "No data to display")
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = displayWidth(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], displayWidth(cell))
		}
	}

	separator := make([]string, len(widths))
	for i, n := range widths {
		separator[i] = strings.Repeat("-", n)
	}

	writeRow(w, t.headers, widths)
	fmt.Fprintln(w, strings.Join(separator, " "))
	for _, row := range t.rows {
		writeRow(w, row, widths)
	}
}

func writeRow(w io.Writer, cells []string, widths []int) {
	var b strings.Builder
	for i, cell := range cells {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(cell)
		if pad := widths[i] - displayWidth(cell); pad > 0 {
			b.WriteString(strings.Repeat(" ", pad))
		}
	}
	fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
}

func displayWidth(s string) int {
	return utf8.RuneCountInString(ansiSequence.ReplaceAllString(s, ""))
}
