// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	primaryColor = lipgloss.Color("#8BE9FD")
	accentColor  = lipgloss.Color("#50FA7B")
	dangerColor  = lipgloss.Color("#FF5555")
	mutedColor   = lipgloss.Color("#6272A4")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(1, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(22)

	valueStyle = lipgloss.NewStyle().
			Bold(true)

	accentValueStyle = lipgloss.NewStyle().
				Foreground(accentColor).
				Bold(true)

	dangerValueStyle = lipgloss.NewStyle().
				Foreground(dangerColor).
				Bold(true)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	rowStyle = lipgloss.NewStyle().
			Padding(0, 1)
)

// Render formats the summary for the terminal.
func Render(s Summary) string {
	var content strings.Builder

	metrics := []struct {
		label string
		value string
		style lipgloss.Style
	}{
		{"Rooms", fmt.Sprintf("%d", s.Rooms), valueStyle},
		{"Users", fmt.Sprintf("%d", s.Users), valueStyle},
		{"Servers", fmt.Sprintf("%d", s.Servers), valueStyle},
		{"Edges", fmt.Sprintf("%d", s.Edges), valueStyle},
		{"Reachable servers", fmt.Sprintf("%d of %d probed", s.ReachableServers, s.ProbedServers), accentValueStyle},
		{"Unreachable servers", fmt.Sprintf("%d", s.UnreachableServers), unreachableStyle(s.UnreachableServers)},
		{"Largest room", fmt.Sprintf("%d users", s.LargestRoom), valueStyle},
		{"Mean room size", fmt.Sprintf("%.1f users", s.MeanRoomSize), valueStyle},
	}
	for _, m := range metrics {
		content.WriteString(labelStyle.Render(m.label) + m.style.Render(m.value) + "\n")
	}

	if len(s.TopServers) > 0 {
		content.WriteString("\n")
		content.WriteString(serverTable(s.TopServers))
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("DSN Traveller"),
		strings.TrimRight(content.String(), "\n"),
	)
	return panelStyle.Render(body)
}

func unreachableStyle(n int) lipgloss.Style {
	if n > 0 {
		return dangerValueStyle
	}
	return valueStyle
}

func serverTable(ranks []ServerRank) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(mutedColor)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return rowStyle
		}).
		Headers("Server", "Rooms", "Users", "Federation", "Software")

	for _, r := range ranks {
		t.Row(r.Pseudonym,
			fmt.Sprintf("%d", r.Rooms),
			fmt.Sprintf("%d", r.Users),
			federationState(r),
			software(r))
	}
	return t.Render()
}

func federationState(r ServerRank) string {
	switch {
	case !r.Probed:
		return "not probed"
	case r.Reachable:
		return "reachable"
	default:
		return "unreachable"
	}
}

func software(r ServerRank) string {
	if r.Software == "" {
		return "-"
	}
	if r.Version == "" {
		return r.Software
	}
	return r.Software + " " + r.Version
}
