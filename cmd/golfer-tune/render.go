package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"golfer/solver"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	roundStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
	forbiddenStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	leaderStyle    = lipgloss.NewStyle().Underline(true)
)

// renderSchedule draws each round as a box listing its groups. With leaders
// the first member of every group is underlined.
func renderSchedule(rounds []solver.Round, scores []float64, leaders bool) string {
	boxes := make([]string, len(rounds))
	for i, round := range rounds {
		cost := strconv.FormatFloat(scores[i], 'g', -1, 64)
		title := titleStyle.Render(fmt.Sprintf("Round %d", i+1)) + "  cost " + cost
		if math.IsInf(scores[i], 1) {
			title += " " + forbiddenStyle.Render("forbidden pair")
		}
		lines := []string{title}
		for gi, g := range round {
			members := make([]string, len(g))
			for j, p := range g {
				members[j] = strconv.Itoa(p)
				if leaders && j == 0 {
					members[j] = leaderStyle.Render(members[j])
				}
			}
			lines = append(lines, fmt.Sprintf("%2d: %s", gi+1, strings.Join(members, " ")))
		}
		boxes[i] = roundStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, boxes...)
}
