// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/HennerM/coremltools/pkg/core/passes"
	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 0, 4)
)

func newPlainTable(withHeader bool, alignments ...lipgloss.Position) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if withHeader && row < 0 {
				s = headerRowStyle
				return
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			} else if len(alignments) > 0 {
				alignment = alignments[len(alignments)-1]
			}
			s = s.Align(alignment)
			return
		})
}

// statsTable lists the effect of each pass, with a final row with the totals.
func statsTable(stats []passes.PassStats) *lgtable.Table {
	table := newPlainTable(true, lipgloss.Left, lipgloss.Right)
	table.Headers("Pass", "Ops before", "Ops after", "Removed", "Elapsed")
	if len(stats) == 0 {
		return table
	}
	for _, s := range stats {
		table.Row(s.Pass,
			humanize.Comma(int64(s.OpsBefore)), humanize.Comma(int64(s.OpsAfter)),
			humanize.Comma(int64(s.Removed())), s.Elapsed.String())
	}
	first, last := stats[0], stats[len(stats)-1]
	elapsed := first.Elapsed
	for _, s := range stats[1:] {
		elapsed += s.Elapsed
	}
	table.Row("total",
		humanize.Comma(int64(first.OpsBefore)), humanize.Comma(int64(last.OpsAfter)),
		humanize.Comma(int64(first.OpsBefore-last.OpsAfter)), elapsed.String())
	return table
}
