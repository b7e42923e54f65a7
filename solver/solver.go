package solver

import (
	"cmp"
	"context"
	"iter"
	"math/rand"
	"slices"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("golfer/solver")

var (
	ErrInvalidConfig = errors.New("solver: invalid config")
	ErrInvalidParams = errors.New("solver: invalid params")
	// ErrInternal reports a broken invariant inside the search; the solve
	// stops rather than continue from corrupted state.
	ErrInternal = errors.New("solver: internal error")

	errStopped = errors.New("solver: stopped by consumer")
)

// Config describes one scheduling problem. People are numbered
// 0..People()-1. With Leaders, people 0..n-1 (n = number of groups actually
// used) lead one group each in every round.
type Config struct {
	Groups            int
	OfSize            int
	Rounds            int
	Leaders           bool
	ForbiddenPairs    [][]int
	DiscouragedGroups [][]int
	// TotalPeople overrides Groups*OfSize when non-zero.
	TotalPeople int
}

func (c Config) People() int {
	if c.TotalPeople != 0 {
		return c.TotalPeople
	}
	return c.Groups * c.OfSize
}

func (c Config) Validate() error {
	switch {
	case c.Groups <= 0:
		return errors.Wrapf(ErrInvalidConfig, "groups must be positive, got %d", c.Groups)
	case c.Rounds < 0:
		return errors.Wrapf(ErrInvalidConfig, "rounds must not be negative, got %d", c.Rounds)
	case c.TotalPeople < 0:
		return errors.Wrapf(ErrInvalidConfig, "total people must not be negative, got %d", c.TotalPeople)
	case c.TotalPeople == 0 && c.OfSize <= 0:
		return errors.Wrapf(ErrInvalidConfig, "group size must be positive, got %d", c.OfSize)
	}
	return nil
}

type Params struct {
	Seeds           int
	Generations     int
	RandomMutations int
	MaxDescendants  int
	Workers         int
}

var DefaultParams = Params{
	Seeds:           5,
	Generations:     30,
	RandomMutations: 2,
	MaxDescendants:  100,
	Workers:         1,
}

func (p Params) Validate() error {
	switch {
	case p.Seeds <= 0:
		return errors.Wrapf(ErrInvalidParams, "seeds must be positive, got %d", p.Seeds)
	case p.Generations < 0:
		return errors.Wrapf(ErrInvalidParams, "generations must not be negative, got %d", p.Generations)
	case p.RandomMutations < 0:
		return errors.Wrapf(ErrInvalidParams, "random mutations must not be negative, got %d", p.RandomMutations)
	case p.MaxDescendants <= 0:
		return errors.Wrapf(ErrInvalidParams, "max descendants must be positive, got %d", p.MaxDescendants)
	}
	return nil
}

// Progress is handed to the progress callback after every committed round.
// Rounds and Scores are fresh slices and Weights is a copy, so the callback
// may keep them after it returns.
type Progress struct {
	Rounds  []Round
	Scores  []float64
	Weights *Weights
	Done    bool
}

type ProgressFunc func(Progress) error

// Result holds every round committed before Solve returned, including when
// it returns an error.
type Result struct {
	Rounds  []Round
	Scores  []float64
	Weights *Weights
}

// Solve schedules cfg.Rounds rounds one after another, each by a bounded
// hill climb against the pair weights left by the previous rounds. A nil rng
// is seeded from the clock. onProgress may be nil; an error from it stops the
// solve. ctx is checked before every round and every generation.
func Solve(ctx context.Context, cfg Config, params Params, rng *rand.Rand, onProgress ProgressFunc) (res *Result, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	people := cfg.People()
	l := &layout{
		people:  people,
		sizes:   GroupSizes(cfg.Groups, people),
		leaders: cfg.Leaders,
	}

	ctx, span := tracer.Start(ctx, "solver.Solve", trace.WithAttributes(
		attribute.Int("people", people),
		attribute.Int("groups", len(l.sizes)),
		attribute.Int("rounds", cfg.Rounds),
		attribute.Bool("leaders", cfg.Leaders),
	))
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		solveDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
		span.End()
	}()

	ws := NewWeights(people)
	if cfg.Leaders {
		ws.ForbidLeaders(len(l.sizes))
	}
	ws.Forbid(cfg.ForbiddenPairs)
	ws.Discourage(cfg.DiscouragedGroups)

	rs := &roundSolver{
		layout: l,
		params: params,
		explorer: &explorer{
			layout:          l,
			weights:         ws,
			randomMutations: params.RandomMutations,
			workers:         params.Workers,
		},
	}

	logger := log.Ctx(ctx)
	res = &Result{Weights: ws}
	for r := range cfg.Rounds {
		if err := ctx.Err(); err != nil {
			return res, errors.Wrapf(err, "before round %d", r+1)
		}

		best, gens, err := rs.solve(ctx, r, rng)
		if err != nil {
			return res, errors.Wrapf(err, "round %d", r+1)
		}

		round := best.Groups.clone()
		if cfg.Leaders {
			slices.SortFunc(round, func(a, b []int) int { return a[0] - b[0] })
		}
		res.Rounds = append(res.Rounds, round)
		res.Scores = append(res.Scores, best.Total)
		ws.Apply(round)

		outcome := outcomeExhausted
		if best.Total == 0 {
			outcome = outcomeConverged
		}
		roundsCommitted.WithLabelValues(outcome).Inc()
		roundGenerations.Observe(float64(gens))
		roundCost.Observe(best.Total)
		logger.Debug().
			Int("round", r+1).
			Float64("cost", best.Total).
			Int("generations", gens).
			Str("outcome", outcome).
			Msg("round committed")

		if onProgress != nil {
			err := onProgress(Progress{
				Rounds:  cloneRounds(res.Rounds),
				Scores:  slices.Clone(res.Scores),
				Weights: ws.Clone(),
				Done:    r+1 >= cfg.Rounds,
			})
			if err != nil {
				return res, errors.Wrapf(err, "progress after round %d", r+1)
			}
		}
	}

	logger.Info().
		Int("people", people).
		Int("groups", len(l.sizes)).
		Int("rounds", len(res.Rounds)).
		Dur("elapsed", time.Since(start)).
		Msg("schedule solved")
	return res, nil
}

func cloneRounds(rounds []Round) []Round {
	out := make([]Round, len(rounds))
	for i, r := range rounds {
		out[i] = r.clone()
	}
	return out
}

// Rounds is Solve as a lazy sequence: one element per committed round, or a
// single error element if the solve fails. Breaking out of the loop stops the
// solve before the next round.
func Rounds(ctx context.Context, cfg Config, params Params, rng *rand.Rand) iter.Seq2[Progress, error] {
	return func(yield func(Progress, error) bool) {
		stopped := false
		_, err := Solve(ctx, cfg, params, rng, func(p Progress) error {
			if !yield(p, nil) {
				stopped = true
				return errStopped
			}
			return nil
		})
		if err != nil && !stopped {
			yield(Progress{}, err)
		}
	}
}

type roundSolver struct {
	layout   *layout
	params   Params
	explorer *explorer
}

// solve runs one round's search: seed, then expand and prune until the best
// candidate costs nothing or the generation budget is spent.
func (s *roundSolver) solve(ctx context.Context, round int, rng *rand.Rand) (Candidate, int, error) {
	ctx, span := tracer.Start(ctx, "solver.round", trace.WithAttributes(attribute.Int("round", round+1)))
	defer span.End()

	elite := make([]Candidate, s.params.Seeds)
	for i := range elite {
		elite[i] = Score(s.layout.randomRound(rng), s.explorer.weights)
	}
	slices.SortStableFunc(elite, byTotal)

	gen := 0
	for gen < s.params.Generations && elite[0].Total > 0 {
		if err := ctx.Err(); err != nil {
			return Candidate{}, gen, err
		}
		pool, err := s.explorer.expand(ctx, elite, rng)
		if err != nil {
			return Candidate{}, gen, err
		}
		elite = prune(pool, s.params.MaxDescendants, rng)
		gen++
	}

	span.SetAttributes(attribute.Int("generations", gen), attribute.Float64("cost", elite[0].Total))
	return elite[0], gen, nil
}

// prune keeps the candidates tied at the lowest total, in random order, at
// most limit of them.
func prune(pool []Candidate, limit int, rng *rand.Rand) []Candidate {
	slices.SortStableFunc(pool, byTotal)
	n := 1
	for n < len(pool) && pool[n].Total == pool[0].Total {
		n++
	}
	elite := slices.Clone(pool[:n])
	rng.Shuffle(len(elite), func(i, j int) { elite[i], elite[j] = elite[j], elite[i] })
	return elite[:min(limit, len(elite))]
}

func byTotal(a, b Candidate) int {
	return cmp.Compare(a.Total, b.Total)
}
