package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultCellWidth bounds table cells before truncation.
const DefaultCellWidth = 48

var tableStyles = struct {
	Header lipgloss.Style
	Cell   lipgloss.Style
	Border lipgloss.Style
}{
	Header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Padding(0, 1),
	Cell:   lipgloss.NewStyle().Padding(0, 1),
	Border: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
}

// Title converts a header like "last modified" to "Last Modified".
func Title(s string) string {
	return cases.Title(language.English).String(s)
}

// Truncate shortens s to at most width terminal cells, ending in "…".
// Wide characters count as two cells.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// Table renders rows under title-cased headers. Cells wider than cellWidth
// are truncated; a cellWidth of zero uses DefaultCellWidth.
func Table(headers []string, rows [][]string, cellWidth int) string {
	if cellWidth <= 0 {
		cellWidth = DefaultCellWidth
	}

	titled := make([]string, len(headers))
	for i, h := range headers {
		titled[i] = Title(h)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableStyles.Border).
		Headers(titled...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableStyles.Header
			}
			return tableStyles.Cell
		})

	for _, row := range rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = Truncate(c, cellWidth)
		}
		t.Row(cells...)
	}
	return t.String()
}
