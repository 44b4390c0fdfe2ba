package output

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const columnGap = "  "

// Table aligns text into columns. Widths are measured in terminal cells
// so styled and multibyte cells line up. A table created without headers
// prints rows only.
type Table struct {
	headers []string
	rows    [][]string
}

// NewTable returns a table with optional column headers.
func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// AddRow appends a row. Rows may be shorter or longer than the header.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render writes the table to w in a single write.
func (t *Table) Render(w io.Writer) error {
	grid := t.grid()
	if len(grid) == 0 {
		return nil
	}

	widths := columnWidths(grid)
	var sb strings.Builder
	for _, row := range grid {
		var line strings.Builder
		for i, width := range widths {
			if i > 0 {
				line.WriteString(columnGap)
			}
			var cell string
			if i < len(row) {
				cell = row[i]
			}
			line.WriteString(cell)
			line.WriteString(strings.Repeat(" ", width-lipgloss.Width(cell)))
		}
		sb.WriteString(strings.TrimRight(line.String(), " "))
		sb.WriteByte('\n')
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// String returns the rendered table.
func (t *Table) String() string {
	var sb strings.Builder
	_ = t.Render(&sb)
	return sb.String()
}

// grid is the header, its underline, then the rows.
func (t *Table) grid() [][]string {
	if len(t.headers) == 0 {
		return t.rows
	}
	widths := columnWidths(append([][]string{t.headers}, t.rows...))
	rule := make([]string, len(widths))
	for i, width := range widths {
		rule[i] = strings.Repeat("-", width)
	}
	return append([][]string{t.headers, rule}, t.rows...)
}

func columnWidths(grid [][]string) []int {
	var widths []int
	for _, row := range grid {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}
	return widths
}
