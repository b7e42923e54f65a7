package solver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// roundsCommitted counts committed rounds by how the search ended
	roundsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "golfer_rounds_committed_total",
		Help: "Committed rounds by search outcome",
	}, []string{"outcome"})

	roundGenerations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "golfer_round_generations",
		Help:    "Generations searched before a round was committed",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 30, 50},
	})

	// roundCost observes the winner's total; forbidden pairings land in +Inf
	roundCost = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "golfer_round_cost",
		Help:    "Total cost of each committed round",
		Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64, 128},
	})

	candidatesScored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "golfer_candidates_scored_total",
		Help: "Candidates built and scored by the mutation explorer",
	})

	solveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "golfer_solve_duration_seconds",
		Help:    "Wall time of a full solve",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"result"})
)

const (
	outcomeConverged = "converged"
	outcomeExhausted = "exhausted"
)
