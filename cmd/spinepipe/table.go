package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column is a table heading. Numeric columns (counts, durations) are
// right-aligned.
type column struct {
	title   string
	numeric bool
}

func label(title string) column   { return column{title: title} }
func numeric(title string) column { return column{title: title, numeric: true} }

var (
	stepColumns    = []column{label("Step"), label("Outcome"), numeric("Duration")}
	batchColumns   = []column{label("Subject"), label("Status"), numeric("Executed"), numeric("Cached"), numeric("Duration"), label("Error")}
	historyColumns = []column{label("Started"), label("Run"), label("Subject"), label("Pipeline"), label("Step"), label("Outcome"), numeric("Duration")}
)

// renderTable draws rows under columns. A non-empty footer is rendered as a
// final summary row.
func renderTable(columns []column, rows [][]string, footer ...string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make([]string, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		header[i] = col.title
		configs[i] = table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
		if col.numeric {
			configs[i].Align = text.AlignRight
		}
	}
	tw.AppendHeader(padRow(header, len(columns)))
	for _, row := range rows {
		tw.AppendRow(padRow(row, len(columns)))
	}
	if len(footer) > 0 {
		tw.AppendFooter(padRow(footer, len(columns)))
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// padRow fits cells to width, blanking missing trailing cells.
func padRow(cells []string, width int) table.Row {
	row := make(table.Row, width)
	for i := range row {
		row[i] = ""
		if i < len(cells) {
			row[i] = cells[i]
		}
	}
	return row
}
