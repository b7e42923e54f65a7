package main

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golfer/solver"
)

func TestBuildProblem(t *testing.T) {
	ev := event{ID: 1, NumGroups: 2, GroupSize: 3, NumRounds: 4}
	ps := []participant{{ID: 30}, {ID: 10}, {ID: 20}, {ID: 40}}
	cs := []pairing{
		{Kind: kindForbidden, ParticipantIDs: []int64{10, 40}},
		{Kind: kindDiscouraged, ParticipantIDs: []int64{20, 30, 99}},
	}

	p, err := buildProblem(ev, ps, cs)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30, 40}, p.ids)
	assert.Equal(t, 2, p.cfg.Groups)
	assert.Equal(t, 3, p.cfg.OfSize)
	assert.Equal(t, 4, p.cfg.Rounds)
	assert.Equal(t, 4, p.cfg.TotalPeople)
	assert.False(t, p.cfg.Leaders)
	assert.Equal(t, [][]int{{0, 3}}, p.cfg.ForbiddenPairs)
	assert.Equal(t, [][]int{{1, 2, -1}}, p.cfg.DiscouragedGroups)
	assert.Equal(t, []int64{40, 20}, p.memberIDs([]int{3, 1}))
}

func TestBuildProblemLeaders(t *testing.T) {
	ev := event{ID: 1, NumGroups: 5, GroupSize: 3, NumRounds: 2, WithLeaders: true}
	ps := []participant{{ID: 5}, {ID: 4, Leader: true}, {ID: 3}, {ID: 2, Leader: true}, {ID: 1}}

	p, err := buildProblem(ev, ps, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4, 1, 3, 5}, p.ids)
	assert.Equal(t, 2, p.cfg.Groups)
	assert.True(t, p.cfg.Leaders)

	_, err = buildProblem(ev, []participant{{ID: 1}, {ID: 2}}, nil)
	assert.True(t, errors.Is(err, errNoLeaders))
}

func TestRoundScore(t *testing.T) {
	assert.Equal(t, sql.NullFloat64{Float64: 3, Valid: true}, roundScore(3))
	assert.Equal(t, sql.NullFloat64{Float64: 0, Valid: true}, roundScore(0))
	assert.False(t, roundScore(math.Inf(1)).Valid)
}

func TestNewScheduleRound(t *testing.T) {
	names := map[int64]string{1: "Ada", 2: "Grace", 3: "Linus"}

	sr := newScheduleRound(2, [][]int64{{1, 3}, {2}}, roundScore(1), names)
	out, err := json.Marshal(sr)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"round": 2,
		"groups": [[{"id":1,"name":"Ada"},{"id":3,"name":"Linus"}],[{"id":2,"name":"Grace"}]],
		"score": 1,
		"forbidden_pair": false
	}`, string(out))

	sr = newScheduleRound(1, [][]int64{{1, 2}}, roundScore(math.Inf(1)), names)
	assert.Nil(t, sr.Score)
	assert.True(t, sr.ForbiddenPair)
}

func TestPairingValidate(t *testing.T) {
	tests := []struct {
		name string
		p    pairing
		ok   bool
	}{
		{"forbidden pair", pairing{Kind: kindForbidden, ParticipantIDs: []int64{1, 2}}, true},
		{"forbidden triple", pairing{Kind: kindForbidden, ParticipantIDs: []int64{1, 2, 3}}, false},
		{"forbidden self", pairing{Kind: kindForbidden, ParticipantIDs: []int64{1, 1}}, false},
		{"discouraged group", pairing{Kind: kindDiscouraged, ParticipantIDs: []int64{3, 1, 2}}, true},
		{"discouraged single", pairing{Kind: kindDiscouraged, ParticipantIDs: []int64{1}}, false},
		{"discouraged duplicate", pairing{Kind: kindDiscouraged, ParticipantIDs: []int64{1, 2, 1}}, false},
		{"unknown kind", pairing{Kind: "must", ParticipantIDs: []int64{1, 2}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestEventUpdateValidate(t *testing.T) {
	n := func(v int) *int { return &v }
	assert.NoError(t, eventUpdate{}.validate())
	assert.NoError(t, eventUpdate{NumGroups: n(3), GroupSize: n(1), NumRounds: n(0)}.validate())
	assert.Error(t, eventUpdate{NumGroups: n(0)}.validate())
	assert.Error(t, eventUpdate{GroupSize: n(0)}.validate())
	assert.Error(t, eventUpdate{NumRounds: n(-1)}.validate())
}

type execCall struct {
	query string
	args  []any
}

type fakeExecer struct {
	calls  []execCall
	failAt int
}

func (f *fakeExecer) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.calls = append(f.calls, execCall{query: query, args: args})
	if len(f.calls) == f.failAt {
		return nil, errors.New("connection reset")
	}
	return driver.RowsAffected(1), nil
}

func TestScheduleWriter(t *testing.T) {
	fe := &fakeExecer{}
	prob := problem{ids: []int64{10, 20, 30, 40}}
	names := map[int64]string{10: "Ada", 20: "Grace", 30: "Linus", 40: "Ken"}
	sw := newScheduleWriter(fe, 7, prob, names)
	ctx := context.Background()

	require.NoError(t, sw.begin(ctx))
	require.Len(t, fe.calls, 1)
	assert.Contains(t, fe.calls[0].query, "INSERT INTO schedules")
	assert.Equal(t, []any{sw.sched.ID, int64(7)}, fe.calls[0].args)

	first := solver.Round{{0, 1}, {2, 3}}
	require.NoError(t, sw.record(ctx, solver.Progress{Rounds: []solver.Round{first}, Scores: []float64{0}}))
	second := solver.Round{{0, 2}, {1, 3}}
	require.NoError(t, sw.record(ctx, solver.Progress{Rounds: []solver.Round{first, second}, Scores: []float64{0, math.Inf(1)}, Done: true}))
	require.NoError(t, sw.finish(ctx))

	// schedule, then per round one score row and one row per group, then done
	require.Len(t, fe.calls, 1+2*3+1)
	assert.Contains(t, fe.calls[1].query, "INSERT INTO schedule_rounds")
	assert.Equal(t, []any{sw.sched.ID, 1, sql.NullFloat64{Valid: true}}, fe.calls[1].args)
	assert.Contains(t, fe.calls[2].query, "INSERT INTO schedule_groups")
	assert.Equal(t, []any{sw.sched.ID, 2, sql.NullFloat64{}}, fe.calls[4].args)
	assert.Contains(t, fe.calls[7].query, "UPDATE schedules SET done = TRUE")
	assert.Equal(t, []any{sw.sched.ID}, fe.calls[7].args)

	require.Len(t, sw.sched.Rounds, 2)
	assert.Equal(t, "Linus", sw.sched.Rounds[0].Groups[1][0].Name)
	assert.Equal(t, int64(30), sw.sched.Rounds[1].Groups[0][1].ID)
	assert.True(t, sw.sched.Rounds[1].ForbiddenPair)
}

func TestScheduleWriterFailure(t *testing.T) {
	fe := &fakeExecer{failAt: 3}
	sw := newScheduleWriter(fe, 7, problem{ids: []int64{1, 2}}, nil)
	ctx := context.Background()

	require.NoError(t, sw.begin(ctx))
	err := sw.record(ctx, solver.Progress{Rounds: []solver.Round{{{0}, {1}}}, Scores: []float64{0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save round 1 group 0")
	assert.Empty(t, sw.sched.Rounds)
}

func newMockServer(t *testing.T) (*server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &server{db: db, cfg: config{clientSecret: "secret", admins: []string{"boss@example.com"}, workers: 1, seed: 1}}, mock
}

func adminRequest(method, target string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	r.Header.Set("Authorization", "Bearer "+signEmail("secret", "boss@example.com"))
	return r
}

func expectEventLoad(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(regexp.QuoteMeta("FROM events WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"name", "num_groups", "group_size", "num_rounds", "with_leaders"}).
			AddRow("Friday league", int64(2), int64(2), int64(2), false))
	participants := sqlmock.NewRows([]string{"id", "name", "email", "leader"})
	for i, name := range []string{"Ada", "Grace", "Linus", "Ken"} {
		participants.AddRow(int64(i+1), name, strings.ToLower(name)+"@example.com", false)
	}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, email, leader FROM participants")).
		WithArgs(int64(7)).
		WillReturnRows(participants)
	mock.ExpectQuery(regexp.QuoteMeta("FROM pairing_constraints")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "participant_ids"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedules")).
		WithArgs(sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestHandleSolve(t *testing.T) {
	s, mock := newMockServer(t)
	expectEventLoad(mock)
	for round := 1; round <= 2; round++ {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_rounds")).
			WithArgs(sqlmock.AnyArg(), round, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		for gi := range 2 {
			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_groups")).
				WithArgs(sqlmock.AnyArg(), round, gi, sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, 1))
		}
	}
	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedules SET done = TRUE")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := httptest.NewRecorder()
	s.routes().ServeHTTP(w, adminRequest("POST", "/api/events/7/solve"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got schedule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.Done)
	assert.Equal(t, int64(7), got.EventID)
	assert.NotEqual(t, uuid.Nil, got.ID)
	require.Len(t, got.Rounds, 2)
	for _, sr := range got.Rounds {
		require.Len(t, sr.Groups, 2)
		for _, g := range sr.Groups {
			require.Len(t, g, 2)
			assert.NotEmpty(t, g[0].Name)
		}
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleSolveRollsBackOnSaveError(t *testing.T) {
	s, mock := newMockServer(t)
	expectEventLoad(mock)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_rounds")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	w := httptest.NewRecorder()
	s.routes().ServeHTTP(w, adminRequest("POST", "/api/events/7/solve"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleGetScheduleRowError(t *testing.T) {
	s, mock := newMockServer(t)
	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, done FROM schedules")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "done"}).AddRow(id.String(), true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, email, leader FROM participants")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "leader"}).
			AddRow(int64(1), "Ada", "", false).
			AddRow(int64(2), "Grace", "", false))
	mock.ExpectQuery(regexp.QuoteMeta("FROM schedule_groups")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"round", "participant_ids"}).
			AddRow(int64(1), "{1}").
			AddRow(int64(1), "{2}").
			AddRow(int64(2), "{1,2}"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM schedule_rounds")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"round", "score"}).
			AddRow(int64(1), 0.0).
			AddRow(int64(2), 1.0).
			RowError(1, errors.New("connection lost")))

	w := httptest.NewRecorder()
	s.routes().ServeHTTP(w, adminRequest("GET", "/api/events/7/schedule"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "connection lost")
	assert.NoError(t, mock.ExpectationsWereMet())
}
