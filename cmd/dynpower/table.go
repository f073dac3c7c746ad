package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"dynpower/internal/ipc"
)

// renderMatches lays out process override matches, highest priority first
// as the session reports them. The rule that currently decides is starred.
func renderMatches(matches []ipc.ProcessMatch) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"", "Rule", "Process", "Priority", "Mode"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Priority", Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	for _, match := range matches {
		name := match.Name
		if name == "" {
			name = match.ProcessName
		}
		winner := ""
		if match.Active {
			winner = "*"
		}
		tw.AppendRow(table.Row{winner, name, match.ProcessName, match.Priority, string(match.Mode)})
	}
	return tw.Render()
}
