package solver

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	ws := NewWeights(6)
	ws.Apply(Round{{0, 1, 2}, {3, 4, 5}})
	ws.Apply(Round{{0, 1, 3}, {2, 4, 5}})

	round := Round{{0, 1, 4}, {2, 3, 5}}
	c := Score(round, ws)

	// {0,1}=2 {0,4}=0 {1,4}=0 ; {2,3}=0 {2,5}=1 {3,5}=1
	assert.Equal(t, []float64{4, 2}, c.GroupScores)
	assert.Equal(t, 6.0, c.Total)
	assert.Equal(t, c, Score(round, ws))
}

func TestScoreForbidden(t *testing.T) {
	ws := NewWeights(4)
	ws.Forbid([][]int{{1, 2}})

	c := Score(Round{{0, 1, 2}, {3}}, ws)
	assert.True(t, math.IsInf(c.Total, 1))
	assert.True(t, math.IsInf(c.GroupScores[0], 1))
	assert.Zero(t, c.GroupScores[1])
}

func TestKey(t *testing.T) {
	a := Round{{5, 3, 4}, {2, 0, 1}}
	b := Round{{0, 2, 1}, {4, 5, 3}}
	assert.Equal(t, "0,1,2;3,4,5;", Key(a))
	assert.Equal(t, Key(a), Key(b))
	assert.NotEqual(t, Key(a), Key(Round{{0, 1, 3}, {2, 4, 5}}))
	assert.Equal(t, Round{{5, 3, 4}, {2, 0, 1}}, a)
}
