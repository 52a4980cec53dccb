package main

import (
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

var (
	okStyle     = color.New(color.FgGreen).SprintFunc()
	failStyle   = color.New(color.FgRed, color.Bold).SprintFunc()
	createStyle = color.New(color.FgGreen).SprintFunc()
	deleteStyle = color.New(color.FgRed).SprintFunc()
)

// renderTable lays rows out as borderless, left-aligned columns.
func renderTable(headers []string, rows [][]string) string {
	str := &strings.Builder{}

	cell := tw.CellConfig{
		Formatting: tw.CellFormatting{AutoWrap: tw.WrapNormal, Alignment: tw.AlignLeft},
		Padding:    tw.CellPadding{Global: tw.Padding{Right: "   "}},
	}
	table := tablewriter.NewTable(str,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Borders:  tw.BorderNone,
			Settings: tw.Settings{Lines: tw.LinesNone, Separators: tw.SeparatorsNone},
		})),
		tablewriter.WithConfig(tablewriter.Config{Row: cell, Header: cell}),
	)
	table.Header(headers)
	if err := table.Bulk(rows); err != nil {
		return "error: " + err.Error() + "\n"
	}
	if err := table.Render(); err != nil {
		return "error: " + err.Error() + "\n"
	}
	return str.String()
}
