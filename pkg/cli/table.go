package cli

import (
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"
)

// Table collects rows and renders them through tablewriter on Flush.
// Empty tables produce no output.
type Table struct {
	out     io.Writer
	headers []string
	rows    [][]string
	border  bool
}

// NewTable creates a table with the given column headers writing to stdout.
func NewTable(headers ...string) *Table {
	return &Table{out: os.Stdout, headers: headers}
}

// WithWriter redirects the rendered table.
func (t *Table) WithWriter(w io.Writer) *Table {
	t.out = w
	return t
}

// WithBorder draws the ASCII frame around the table.
func (t *Table) WithBorder() *Table {
	t.border = true
	return t
}

// Row appends a row. Missing trailing cells are rendered empty.
func (t *Table) Row(values ...string) {
	row := make([]string, len(t.headers))
	copy(row, values)
	t.rows = append(t.rows, row)
}

// Len returns the number of rows added so far.
func (t *Table) Len() int {
	return len(t.rows)
}

// Flush renders the table. If no rows were added, nothing is printed.
func (t *Table) Flush() {
	if len(t.rows) == 0 {
		return
	}
	tw := tablewriter.NewWriter(t.out)
	tw.SetHeader(t.headers)
	tw.SetAutoFormatHeaders(false)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)
	if !t.border {
		tw.SetBorder(false)
		tw.SetColumnSeparator("")
		tw.SetCenterSeparator("")
		tw.SetRowSeparator("-")
		tw.SetTablePadding("  ")
		tw.SetNoWhiteSpace(true)
	}
	if w := columnWidth(len(t.headers)); w > 0 {
		tw.SetColWidth(w)
	}
	tw.AppendBulk(t.rows)
	tw.Render()
	t.rows = nil
}

// TerminalWidth returns the width of stdout, or 0 when stdout is not a
// terminal.
func TerminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	w, _, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return w
}

// columnWidth caps each column at an equal share of the terminal.
func columnWidth(cols int) int {
	width := TerminalWidth()
	if width == 0 || cols == 0 {
		return 0
	}
	w := width/cols - 2
	if w < 10 {
		w = 10
	}
	return w
}
