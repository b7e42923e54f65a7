package main

import (
	"cmp"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"golfer/solver"
)

type runResult struct {
	rounds  []solver.Round
	scores  []float64
	elapsed time.Duration
}

// total sums round scores; any forbidden pairing makes it +Inf.
func (r runResult) total() float64 {
	t := 0.0
	for _, s := range r.scores {
		t += s
	}
	return t
}

func (r runResult) forbidden() bool {
	return slices.ContainsFunc(r.scores, func(s float64) bool { return math.IsInf(s, 1) })
}

func scheduleKey(rounds []solver.Round) string {
	keys := make([]string, len(rounds))
	for i, r := range rounds {
		keys[i] = solver.Key(r)
	}
	return strings.Join(keys, "|")
}

type scoreCount struct {
	score float64
	count int
}

type summary struct {
	runs          int
	avgTime       time.Duration
	scores        []scoreCount
	unique        int
	stable        int
	topFreqs      []int
	forbiddenRuns int
	best          int
}

func summarize(results []runResult) summary {
	sum := summary{runs: len(results), best: -1}
	if len(results) == 0 {
		return sum
	}

	scores := map[float64]int{}
	schedules := map[string]int{}
	var totalTime time.Duration
	for i, r := range results {
		totalTime += r.elapsed
		scores[r.total()]++
		schedules[scheduleKey(r.rounds)]++
		if r.forbidden() {
			sum.forbiddenRuns++
		}
		if sum.best < 0 || r.total() < results[sum.best].total() {
			sum.best = i
		}
	}
	sum.avgTime = totalTime / time.Duration(len(results))

	for s, c := range scores {
		sum.scores = append(sum.scores, scoreCount{s, c})
	}
	slices.SortFunc(sum.scores, func(a, b scoreCount) int { return cmp.Compare(a.score, b.score) })

	sum.unique = len(schedules)
	var freqs []int
	for _, c := range schedules {
		freqs = append(freqs, c)
		if c == len(results) {
			sum.stable++
		}
	}
	slices.SortFunc(freqs, func(a, b int) int { return b - a })
	sum.topFreqs = freqs[:min(5, len(freqs))]
	return sum
}

func printStats(w io.Writer, label string, sum summary) {
	fmt.Fprintf(w, "--- %s ---\n", label)
	fmt.Fprintf(w, "  avg time: %v\n", sum.avgTime)
	fmt.Fprintf(w, "  total cost distribution:\n")
	for _, sc := range sum.scores {
		fmt.Fprintf(w, "    cost %g: %d/%d runs (%.0f%%)\n", sc.score, sc.count, sum.runs, float64(sc.count)/float64(sum.runs)*100)
	}
	fmt.Fprintf(w, "  runs with a forbidden pairing: %d/%d\n", sum.forbiddenRuns, sum.runs)
	fmt.Fprintf(w, "  unique schedules seen: %d\n", sum.unique)
	fmt.Fprintf(w, "  schedules found in all runs: %d\n", sum.stable)
	if len(sum.topFreqs) > 0 {
		fmt.Fprintf(w, "  top %d schedule frequencies: ", len(sum.topFreqs))
		for i, f := range sum.topFreqs {
			if i > 0 {
				fmt.Fprint(w, ", ")
			}
			fmt.Fprintf(w, "%d/%d", f, sum.runs)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
}

func parseIntList(s string) ([]int, error) {
	var result []int
	for _, p := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, errors.Errorf("invalid number %q in %q", strings.TrimSpace(p), s)
		}
		result = append(result, v)
	}
	return result, nil
}
