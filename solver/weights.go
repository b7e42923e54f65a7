package solver

import (
	"math"
	"slices"
)

// Forbidden is the weight of a pair that must never share a group.
var Forbidden = math.Inf(1)

// Weights counts how often each pair of people has shared a group. It is
// symmetric and stored row-major in a single slice.
type Weights struct {
	n int
	w []float64
}

func NewWeights(n int) *Weights {
	return &Weights{n: n, w: make([]float64, n*n)}
}

func (ws *Weights) Len() int {
	return ws.n
}

func (ws *Weights) At(a, b int) float64 {
	return ws.w[a*ws.n+b]
}

func (ws *Weights) inRange(a, b int) bool {
	return a >= 0 && b >= 0 && a < ws.n && b < ws.n && a != b
}

func (ws *Weights) set(a, b int, v float64) {
	ws.w[a*ws.n+b] = v
	ws.w[b*ws.n+a] = v
}

func (ws *Weights) add(a, b int, d float64) {
	ws.set(a, b, ws.At(a, b)+d)
}

// ForbidLeaders marks every pair among the first leaders people as forbidden.
func (ws *Weights) ForbidLeaders(leaders int) {
	leaders = min(leaders, ws.n)
	for i := 0; i < leaders-1; i++ {
		for j := i + 1; j < leaders; j++ {
			ws.set(i, j, Forbidden)
		}
	}
}

// Forbid marks every pair within each listed set as forbidden. Indices
// outside [0, n) are skipped.
func (ws *Weights) Forbid(sets [][]int) {
	for _, set := range sets {
		forEachPair(set, func(a, b int) {
			if ws.inRange(a, b) {
				ws.set(a, b, Forbidden)
			}
		})
	}
}

// Discourage adds one to every pair within each listed group. Indices
// outside [0, n) are skipped.
func (ws *Weights) Discourage(groups [][]int) {
	for _, g := range groups {
		forEachPair(g, func(a, b int) {
			if ws.inRange(a, b) {
				ws.add(a, b, 1)
			}
		})
	}
}

// Apply records that every pair grouped together in round met once more.
func (ws *Weights) Apply(round Round) {
	for _, g := range round {
		forEachPair(g, func(a, b int) {
			ws.add(a, b, 1)
		})
	}
}

func (ws *Weights) Clone() *Weights {
	return &Weights{n: ws.n, w: slices.Clone(ws.w)}
}

// Rows copies the matrix out as nested slices.
func (ws *Weights) Rows() [][]float64 {
	rows := make([][]float64, ws.n)
	for i := range rows {
		rows[i] = slices.Clone(ws.w[i*ws.n : (i+1)*ws.n])
	}
	return rows
}

func forEachPair(members []int, fn func(a, b int)) {
	for i := 0; i < len(members)-1; i++ {
		for j := i + 1; j < len(members); j++ {
			fn(members[i], members[j])
		}
	}
}
