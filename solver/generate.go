package solver

import (
	"math/rand"
	"slices"
)

// Round is one partition of every person into groups.
type Round [][]int

func (r Round) clone() Round {
	cp := make(Round, len(r))
	for i, g := range r {
		cp[i] = slices.Clone(g)
	}
	return cp
}

type layout struct {
	people  int
	sizes   []int
	leaders bool
}

// randomRound shuffles everybody into groups of the layout's sizes. With
// leaders, person i is the first member of group i and only the rest are
// shuffled.
func (l *layout) randomRound(rng *rand.Rand) Round {
	start := 0
	if l.leaders {
		start = len(l.sizes)
	}
	shuffled := make([]int, 0, l.people-start)
	for p := start; p < l.people; p++ {
		shuffled = append(shuffled, p)
	}
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	round := make(Round, len(l.sizes))
	next := 0
	for gi, size := range l.sizes {
		g := make([]int, 0, size)
		if l.leaders {
			g = append(g, gi)
		}
		for len(g) < size && next < len(shuffled) {
			g = append(g, shuffled[next])
			next++
		}
		round[gi] = g
	}
	return round
}
