package solver

import (
	"cmp"
	"context"
	"math/rand"
	"slices"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type explorer struct {
	layout          *layout
	weights         *Weights
	randomMutations int
	workers         int
}

// expand builds the next generation from the elite set. Each elite candidate
// gets its own RNG stream drawn from rng before any work starts and results
// are joined in elite order, so the outcome does not depend on workers.
func (x *explorer) expand(ctx context.Context, elite []Candidate, rng *rand.Rand) ([]Candidate, error) {
	rngs := make([]*rand.Rand, len(elite))
	for i := range rngs {
		rngs[i] = rand.New(rand.NewSource(rng.Int63()))
	}

	out := make([][]Candidate, len(elite))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(x.workers, 1))
	for i, c := range elite {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, err := x.mutations(c, rngs[i])
			if err != nil {
				return err
			}
			out[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pool := slices.Concat(out...)
	candidatesScored.Add(float64(len(pool) - len(elite)))
	return pool, nil
}

// mutations keeps c, then tries every swap between a member of its most
// expensive group and a member of any other group, then adds a few fresh
// random rounds. Leader slots never move.
func (x *explorer) mutations(c Candidate, rng *rand.Rand) ([]Candidate, error) {
	order := make([]int, len(c.Groups))
	for i := range order {
		order[i] = i
	}
	// costliest first; among equal costs the later group goes first
	slices.SortFunc(order, func(a, b int) int {
		return cmp.Or(cmp.Compare(c.GroupScores[b], c.GroupScores[a]), cmp.Compare(b, a))
	})
	sorted := make(Round, len(order))
	for i, gi := range order {
		sorted[i] = c.Groups[gi]
	}

	out := []Candidate{c}

	if len(sorted) > 1 {
		first := 0
		if x.layout.leaders {
			first = 1
		}
		others := sorted[1:]
		slots := 0
		for _, g := range others {
			slots += len(g)
		}
		for i := first; i < len(sorted[0]); i++ {
			for flat := range slots {
				gi, j, err := position(others, flat)
				if err != nil {
					return nil, err
				}
				if x.layout.leaders && j == 0 {
					continue
				}
				out = append(out, Score(swap(sorted, 0, i, gi+1, j), x.weights))
			}
		}
	}

	for range x.randomMutations {
		out = append(out, Score(x.layout.randomRound(rng), x.weights))
	}
	return out, nil
}

// position resolves a flat index over the concatenated groups to a group
// index and the offset within that group.
func position(groups Round, flat int) (int, int, error) {
	if flat < 0 {
		return 0, 0, errors.Wrapf(ErrInternal, "index %d out of bounds", flat)
	}
	remaining := flat
	for gi, g := range groups {
		if remaining < len(g) {
			return gi, remaining, nil
		}
		remaining -= len(g)
	}
	return 0, 0, errors.Wrapf(ErrInternal, "index %d out of bounds", flat)
}

func swap(round Round, gi, i, gj, j int) Round {
	cp := round.clone()
	cp[gi][i], cp[gj][j] = cp[gj][j], cp[gi][i]
	return cp
}
