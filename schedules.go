package main

import (
	"cmp"
	"context"
	"database/sql"
	"math"
	"math/rand"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"

	"golfer/solver"
)

var errNoLeaders = errors.New("event uses group leaders but none are marked")

// problem is an event translated into solver terms. ids maps a solver index
// back to its participant.
type problem struct {
	cfg solver.Config
	ids []int64
}

// buildProblem numbers participants by id, leaders first when the event uses
// them, in which case there is one group per leader. Constraint members that
// are no longer participants get index -1, which the solver ignores.
func buildProblem(ev event, ps []participant, cs []pairing) (problem, error) {
	ordered := slices.Clone(ps)
	slices.SortFunc(ordered, func(a, b participant) int { return cmp.Compare(a.ID, b.ID) })

	groups := ev.NumGroups
	if ev.WithLeaders {
		slices.SortStableFunc(ordered, func(a, b participant) int {
			switch {
			case a.Leader == b.Leader:
				return 0
			case a.Leader:
				return -1
			default:
				return 1
			}
		})
		groups = 0
		for _, p := range ordered {
			if p.Leader {
				groups++
			}
		}
		if groups == 0 {
			return problem{}, errNoLeaders
		}
	}

	idx := map[int64]int{}
	ids := make([]int64, len(ordered))
	for i, p := range ordered {
		idx[p.ID] = i
		ids[i] = p.ID
	}
	indices := func(members []int64) []int {
		out := make([]int, len(members))
		for i, id := range members {
			j, ok := idx[id]
			if !ok {
				j = -1
			}
			out[i] = j
		}
		return out
	}

	cfg := solver.Config{
		Groups:      groups,
		OfSize:      ev.GroupSize,
		Rounds:      ev.NumRounds,
		Leaders:     ev.WithLeaders,
		TotalPeople: len(ordered),
	}
	for _, c := range cs {
		switch c.Kind {
		case kindForbidden:
			cfg.ForbiddenPairs = append(cfg.ForbiddenPairs, indices(c.ParticipantIDs))
		case kindDiscouraged:
			cfg.DiscouragedGroups = append(cfg.DiscouragedGroups, indices(c.ParticipantIDs))
		}
	}
	return problem{cfg: cfg, ids: ids}, nil
}

func (p problem) memberIDs(group []int) []int64 {
	out := make([]int64, len(group))
	for i, m := range group {
		out[i] = p.ids[m]
	}
	return out
}

// roundScore stores a round cost; a forbidden pairing makes it infinite and
// is kept as NULL.
func roundScore(v float64) sql.NullFloat64 {
	if math.IsInf(v, 1) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

type scheduleMember struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type scheduleRound struct {
	Round         int                `json:"round"`
	Groups        [][]scheduleMember `json:"groups"`
	Score         *float64           `json:"score"`
	ForbiddenPair bool               `json:"forbidden_pair"`
}

type schedule struct {
	ID      uuid.UUID       `json:"id"`
	EventID int64           `json:"event_id"`
	Done    bool            `json:"done"`
	Rounds  []scheduleRound `json:"rounds"`
}

func newScheduleRound(round int, groups [][]int64, score sql.NullFloat64, names map[int64]string) scheduleRound {
	sr := scheduleRound{Round: round, ForbiddenPair: !score.Valid}
	if score.Valid {
		v := score.Float64
		sr.Score = &v
	}
	for _, g := range groups {
		members := make([]scheduleMember, len(g))
		for i, id := range g {
			members[i] = scheduleMember{ID: id, Name: names[id]}
		}
		sr.Groups = append(sr.Groups, members)
	}
	return sr
}

func participantNames(ps []participant) map[int64]string {
	names := make(map[int64]string, len(ps))
	for _, p := range ps {
		names[p.ID] = p.Name
	}
	return names
}

// execer is the slice of *sql.Tx a scheduleWriter needs.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// scheduleWriter stores a schedule round by round as the solver commits
// them, and mirrors what it stored in sched.
type scheduleWriter struct {
	exec  execer
	prob  problem
	names map[int64]string
	sched schedule
}

func newScheduleWriter(exec execer, eventID int64, prob problem, names map[int64]string) *scheduleWriter {
	return &scheduleWriter{
		exec:  exec,
		prob:  prob,
		names: names,
		sched: schedule{ID: uuid.New(), EventID: eventID, Rounds: []scheduleRound{}},
	}
}

func (sw *scheduleWriter) begin(ctx context.Context) error {
	_, err := sw.exec.ExecContext(ctx, "INSERT INTO schedules (id, event_id) VALUES ($1, $2)", sw.sched.ID, sw.sched.EventID)
	return errors.Wrap(err, "create schedule")
}

// record saves the newest round of p.
func (sw *scheduleWriter) record(ctx context.Context, p solver.Progress) error {
	ri := len(p.Rounds) - 1
	groups := make([][]int64, len(p.Rounds[ri]))
	for gi, g := range p.Rounds[ri] {
		groups[gi] = sw.prob.memberIDs(g)
	}
	score := roundScore(p.Scores[ri])
	if err := sw.saveRound(ctx, ri+1, groups, score); err != nil {
		return err
	}
	sw.sched.Rounds = append(sw.sched.Rounds, newScheduleRound(ri+1, groups, score, sw.names))
	return nil
}

func (sw *scheduleWriter) saveRound(ctx context.Context, round int, groups [][]int64, score sql.NullFloat64) error {
	if _, err := sw.exec.ExecContext(ctx, "INSERT INTO schedule_rounds (schedule_id, round, score) VALUES ($1, $2, $3)", sw.sched.ID, round, score); err != nil {
		return errors.Wrapf(err, "save round %d", round)
	}
	for gi, g := range groups {
		_, err := sw.exec.ExecContext(ctx, "INSERT INTO schedule_groups (schedule_id, round, group_index, participant_ids) VALUES ($1, $2, $3, $4)",
			sw.sched.ID, round, gi, pq.Array(g))
		if err != nil {
			return errors.Wrapf(err, "save round %d group %d", round, gi)
		}
	}
	return nil
}

func (sw *scheduleWriter) finish(ctx context.Context) error {
	_, err := sw.exec.ExecContext(ctx, "UPDATE schedules SET done = TRUE WHERE id = $1", sw.sched.ID)
	return errors.Wrap(err, "finish schedule")
}

func (s *server) newRNG() *rand.Rand {
	seed := s.cfg.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

func (s *server) handleSolve() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, eventID, ok := s.requireEventAdmin(w, r)
		if !ok {
			return
		}
		ctx := r.Context()
		logger := hlog.FromRequest(r).With().Int64("event_id", eventID).Logger()
		ctx = logger.WithContext(ctx)

		ev, err := s.loadEvent(ctx, eventID)
		if errors.Is(err, errEventNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			serverError(w, r, err)
			return
		}
		ps, err := s.loadParticipants(ctx, eventID)
		if err != nil {
			serverError(w, r, err)
			return
		}
		if len(ps) == 0 {
			writeJSON(w, schedule{EventID: eventID, Done: true, Rounds: []scheduleRound{}})
			return
		}
		cs, err := s.loadConstraints(ctx, eventID)
		if err != nil {
			serverError(w, r, err)
			return
		}

		prob, err := buildProblem(ev, ps, cs)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			serverError(w, r, err)
			return
		}
		defer tx.Rollback()

		sw := newScheduleWriter(tx, eventID, prob, participantNames(ps))
		if err := sw.begin(ctx); err != nil {
			serverError(w, r, err)
			return
		}

		params := solver.DefaultParams
		params.Workers = s.cfg.workers
		_, err = solver.Solve(ctx, prob.cfg, params, s.newRNG(), func(p solver.Progress) error {
			return sw.record(ctx, p)
		})
		switch {
		case errors.Is(err, solver.ErrInvalidConfig):
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		case errors.Is(err, context.Canceled):
			logger.Warn().Err(err).Msg("solve abandoned")
			return
		case err != nil:
			serverError(w, r, err)
			return
		}

		if err := sw.finish(ctx); err != nil {
			serverError(w, r, err)
			return
		}
		if err := tx.Commit(); err != nil {
			serverError(w, r, err)
			return
		}
		sched := sw.sched
		sched.Done = true
		logger.Info().Str("schedule_id", sched.ID.String()).Int("rounds", len(sched.Rounds)).Msg("schedule saved")
		writeJSON(w, sched)
	}
}

func (s *server) handleGetSchedule() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, eventID, _, _, ok := s.requireEventMember(w, r)
		if !ok {
			return
		}
		ctx := r.Context()

		sched := schedule{EventID: eventID, Rounds: []scheduleRound{}}
		err := s.db.QueryRowContext(ctx, "SELECT id, done FROM schedules WHERE event_id = $1 ORDER BY created_at DESC LIMIT 1", eventID).
			Scan(&sched.ID, &sched.Done)
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "no schedule yet", http.StatusNotFound)
			return
		}
		if err != nil {
			serverError(w, r, err)
			return
		}

		ps, err := s.loadParticipants(ctx, eventID)
		if err != nil {
			serverError(w, r, err)
			return
		}
		names := participantNames(ps)

		groups := map[int][][]int64{}
		grows, err := s.db.QueryContext(ctx, "SELECT round, participant_ids FROM schedule_groups WHERE schedule_id = $1 ORDER BY round, group_index", sched.ID)
		if err != nil {
			serverError(w, r, err)
			return
		}
		defer grows.Close()
		for grows.Next() {
			var round int
			var members []int64
			if err := grows.Scan(&round, pq.Array(&members)); err != nil {
				serverError(w, r, err)
				return
			}
			groups[round] = append(groups[round], members)
		}
		if err := grows.Err(); err != nil {
			serverError(w, r, err)
			return
		}

		rrows, err := s.db.QueryContext(ctx, "SELECT round, score FROM schedule_rounds WHERE schedule_id = $1 ORDER BY round", sched.ID)
		if err != nil {
			serverError(w, r, err)
			return
		}
		defer rrows.Close()
		for rrows.Next() {
			var round int
			var score sql.NullFloat64
			if err := rrows.Scan(&round, &score); err != nil {
				serverError(w, r, err)
				return
			}
			sched.Rounds = append(sched.Rounds, newScheduleRound(round, groups[round], score, names))
		}
		if err := rrows.Err(); err != nil {
			serverError(w, r, err)
			return
		}
		writeJSON(w, sched)
	}
}
