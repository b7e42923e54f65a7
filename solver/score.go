package solver

import (
	"slices"
	"strconv"
	"strings"
)

// Candidate is a round scored against the weights in force when it was built.
type Candidate struct {
	Groups      Round
	GroupScores []float64
	Total       float64
}

// Score sums weight(a,b)^2 over every pair inside each group. Squaring makes
// a repeated pairing cost far more than several first meetings.
func Score(round Round, ws *Weights) Candidate {
	c := Candidate{
		Groups:      round,
		GroupScores: make([]float64, len(round)),
	}
	for gi, g := range round {
		cost := 0.0
		forEachPair(g, func(a, b int) {
			w := ws.At(a, b)
			cost += w * w
		})
		c.GroupScores[gi] = cost
		c.Total += cost
	}
	return c
}

// Key returns a canonical form of round: members sorted within each group and
// groups ordered by their smallest member. Two rounds with the same key put
// the same people together.
func Key(round Round) string {
	gs := make([][]int, 0, len(round))
	for _, g := range round {
		if len(g) == 0 {
			continue
		}
		members := slices.Clone(g)
		slices.Sort(members)
		gs = append(gs, members)
	}
	slices.SortFunc(gs, func(a, b []int) int { return a[0] - b[0] })
	var buf strings.Builder
	for _, g := range gs {
		for i, m := range g {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(strconv.Itoa(m))
		}
		buf.WriteByte(';')
	}
	return buf.String()
}
