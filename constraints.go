package main

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const (
	kindForbidden   = "forbidden"
	kindDiscouraged = "discouraged"
)

// pairing is a constraint row: forbidden lists exactly two participants who
// must never share a group, discouraged lists people who should rather not.
type pairing struct {
	ID             int64   `json:"id"`
	Kind           string  `json:"kind"`
	ParticipantIDs []int64 `json:"participant_ids"`
}

func (p pairing) validate() error {
	switch p.Kind {
	case kindForbidden:
		if len(p.ParticipantIDs) != 2 {
			return errors.New("forbidden needs exactly two participants")
		}
	case kindDiscouraged:
		if len(p.ParticipantIDs) < 2 {
			return errors.New("discouraged needs at least two participants")
		}
	default:
		return errors.Errorf("invalid kind %q", p.Kind)
	}
	sorted := slices.Clone(p.ParticipantIDs)
	slices.Sort(sorted)
	if len(slices.Compact(sorted)) != len(p.ParticipantIDs) {
		return errors.New("participants must be different")
	}
	return nil
}

func (s *server) loadConstraints(ctx context.Context, eventID int64) ([]pairing, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, kind::text, participant_ids FROM pairing_constraints WHERE event_id = $1 ORDER BY id", eventID)
	if err != nil {
		return nil, errors.Wrap(err, "load constraints")
	}
	defer rows.Close()
	var cs []pairing
	for rows.Next() {
		var c pairing
		if err := rows.Scan(&c.ID, &c.Kind, pq.Array(&c.ParticipantIDs)); err != nil {
			return nil, errors.Wrap(err, "scan constraint")
		}
		cs = append(cs, c)
	}
	return cs, errors.Wrap(rows.Err(), "load constraints")
}

func (s *server) handleListConstraints() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, eventID, ok := s.requireEventAdmin(w, r)
		if !ok {
			return
		}
		cs, err := s.loadConstraints(r.Context(), eventID)
		if err != nil {
			serverError(w, r, err)
			return
		}
		if cs == nil {
			cs = []pairing{}
		}
		writeJSON(w, cs)
	}
}

func (s *server) handleCreateConstraint() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, eventID, ok := s.requireEventAdmin(w, r)
		if !ok {
			return
		}
		var body pairing
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := body.validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var known int
		err := s.db.QueryRowContext(r.Context(), "SELECT count(*) FROM participants WHERE event_id = $1 AND id = ANY($2)",
			eventID, pq.Array(body.ParticipantIDs)).Scan(&known)
		if err != nil {
			serverError(w, r, err)
			return
		}
		if known != len(body.ParticipantIDs) {
			http.Error(w, "participants must belong to the event", http.StatusBadRequest)
			return
		}

		err = s.db.QueryRowContext(r.Context(), `
			INSERT INTO pairing_constraints (event_id, kind, participant_ids)
			VALUES ($1, $2::pairing_kind, $3)
			RETURNING id`, eventID, body.Kind, pq.Array(body.ParticipantIDs)).Scan(&body.ID)
		if err != nil {
			serverError(w, r, err)
			return
		}
		writeJSON(w, body)
	}
}

func (s *server) handleDeleteConstraint() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, eventID, ok := s.requireEventAdmin(w, r)
		if !ok {
			return
		}
		constraintID, ok := pathID(w, r, "constraintID")
		if !ok {
			return
		}
		result, err := s.db.ExecContext(r.Context(), "DELETE FROM pairing_constraints WHERE id = $1 AND event_id = $2", constraintID, eventID)
		if !rowsAffected(w, r, result, err, "constraint not found") {
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
