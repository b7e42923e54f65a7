package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
)

type participant struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Leader bool   `json:"leader"`
}

func (s *server) loadParticipants(ctx context.Context, eventID int64) ([]participant, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, email, leader FROM participants WHERE event_id = $1 ORDER BY id", eventID)
	if err != nil {
		return nil, errors.Wrap(err, "load participants")
	}
	defer rows.Close()
	var ps []participant
	for rows.Next() {
		var p participant
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.Leader); err != nil {
			return nil, errors.Wrap(err, "scan participant")
		}
		ps = append(ps, p)
	}
	return ps, errors.Wrap(rows.Err(), "load participants")
}

func (s *server) handleListParticipants() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, eventID, role, _, ok := s.requireEventMember(w, r)
		if !ok {
			return
		}
		ps, err := s.loadParticipants(r.Context(), eventID)
		if err != nil {
			serverError(w, r, err)
			return
		}
		if ps == nil {
			ps = []participant{}
		}
		if role != roleAdmin {
			for i := range ps {
				ps[i].Email = ""
			}
		}
		writeJSON(w, ps)
	}
}

func (s *server) handleCreateParticipant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, eventID, ok := s.requireEventAdmin(w, r)
		if !ok {
			return
		}
		var body struct {
			Name   string `json:"name"`
			Email  string `json:"email"`
			Leader bool   `json:"leader"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		p := participant{Name: body.Name, Email: body.Email, Leader: body.Leader}
		err := s.db.QueryRowContext(r.Context(), "INSERT INTO participants (event_id, name, email, leader) VALUES ($1, $2, $3, $4) RETURNING id",
			eventID, body.Name, body.Email, body.Leader).Scan(&p.ID)
		if err != nil {
			serverError(w, r, err)
			return
		}
		writeJSON(w, p)
	}
}

func (s *server) handleDeleteParticipant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, eventID, ok := s.requireEventAdmin(w, r)
		if !ok {
			return
		}
		participantID, ok := pathID(w, r, "participantID")
		if !ok {
			return
		}
		result, err := s.db.ExecContext(r.Context(), "DELETE FROM participants WHERE id = $1 AND event_id = $2", participantID, eventID)
		if !rowsAffected(w, r, result, err, "participant not found") {
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
