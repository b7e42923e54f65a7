package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
)

type event struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	NumGroups   int    `json:"num_groups"`
	GroupSize   int    `json:"group_size"`
	NumRounds   int    `json:"num_rounds"`
	WithLeaders bool   `json:"with_leaders"`
}

var errEventNotFound = errors.New("event not found")

func (s *server) loadEvent(ctx context.Context, eventID int64) (event, error) {
	ev := event{ID: eventID}
	err := s.db.QueryRowContext(ctx, "SELECT name, num_groups, group_size, num_rounds, with_leaders FROM events WHERE id = $1", eventID).
		Scan(&ev.Name, &ev.NumGroups, &ev.GroupSize, &ev.NumRounds, &ev.WithLeaders)
	if errors.Is(err, sql.ErrNoRows) {
		return ev, errEventNotFound
	}
	return ev, errors.Wrap(err, "load event")
}

func (s *server) handleListEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.requireAdmin(w, r); !ok {
			return
		}
		rows, err := s.db.QueryContext(r.Context(), `
			SELECT e.id, e.name, e.num_groups, e.group_size, e.num_rounds, e.with_leaders, COALESCE(
				json_agg(json_build_object('id', ea.id, 'email', ea.email)) FILTER (WHERE ea.id IS NOT NULL),
				'[]'
			)
			FROM events e
			LEFT JOIN event_admins ea ON ea.event_id = e.id
			GROUP BY e.id, e.name, e.num_groups, e.group_size, e.num_rounds, e.with_leaders
			ORDER BY e.id`)
		if err != nil {
			serverError(w, r, err)
			return
		}
		defer rows.Close()

		type eventAdmin struct {
			ID    int64  `json:"id"`
			Email string `json:"email"`
		}
		type eventWithAdmins struct {
			event
			Admins []eventAdmin `json:"admins"`
		}

		events := []eventWithAdmins{}
		for rows.Next() {
			var e eventWithAdmins
			var adminsJSON string
			if err := rows.Scan(&e.ID, &e.Name, &e.NumGroups, &e.GroupSize, &e.NumRounds, &e.WithLeaders, &adminsJSON); err != nil {
				serverError(w, r, err)
				return
			}
			json.Unmarshal([]byte(adminsJSON), &e.Admins)
			events = append(events, e)
		}
		writeJSON(w, events)
	}
}

func (s *server) handleCreateEvent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.requireAdmin(w, r); !ok {
			return
		}
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		var id int64
		err := s.db.QueryRowContext(r.Context(), "INSERT INTO events (name) VALUES ($1) RETURNING id", body.Name).Scan(&id)
		if err != nil {
			serverError(w, r, err)
			return
		}
		writeJSON(w, map[string]any{"id": id, "name": body.Name})
	}
}

func (s *server) handleDeleteEvent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.requireAdmin(w, r); !ok {
			return
		}
		eventID, ok := pathID(w, r, "eventID")
		if !ok {
			return
		}
		result, err := s.db.ExecContext(r.Context(), "DELETE FROM events WHERE id = $1", eventID)
		if !rowsAffected(w, r, result, err, "event not found") {
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *server) handleAddEventAdmin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.requireAdmin(w, r); !ok {
			return
		}
		eventID, ok := pathID(w, r, "eventID")
		if !ok {
			return
		}
		var body struct {
			Email string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
			http.Error(w, "email is required", http.StatusBadRequest)
			return
		}
		var id int64
		err := s.db.QueryRowContext(r.Context(), "INSERT INTO event_admins (event_id, email) VALUES ($1, $2) RETURNING id", eventID, body.Email).Scan(&id)
		if err != nil {
			serverError(w, r, err)
			return
		}
		writeJSON(w, map[string]any{"id": id, "email": body.Email})
	}
}

func (s *server) handleRemoveEventAdmin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.requireAdmin(w, r); !ok {
			return
		}
		eventID, ok := pathID(w, r, "eventID")
		if !ok {
			return
		}
		adminID, ok := pathID(w, r, "adminID")
		if !ok {
			return
		}
		result, err := s.db.ExecContext(r.Context(), "DELETE FROM event_admins WHERE id = $1 AND event_id = $2", adminID, eventID)
		if !rowsAffected(w, r, result, err, "event admin not found") {
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *server) handleEventMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, eventID, role, ids, ok := s.requireEventMember(w, r)
		if !ok {
			return
		}
		type me struct {
			ID     int64  `json:"id"`
			Name   string `json:"name"`
			Leader bool   `json:"leader"`
		}
		participants := []me{}
		for _, id := range ids {
			p := me{ID: id}
			if err := s.db.QueryRowContext(r.Context(), "SELECT name, leader FROM participants WHERE id = $1 AND event_id = $2", id, eventID).Scan(&p.Name, &p.Leader); err == nil {
				participants = append(participants, p)
			}
		}
		writeJSON(w, map[string]any{"role": role, "participants": participants})
	}
}

func (s *server) handleGetEvent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, eventID, _, _, ok := s.requireEventMember(w, r)
		if !ok {
			return
		}
		ev, err := s.loadEvent(r.Context(), eventID)
		if errors.Is(err, errEventNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			serverError(w, r, err)
			return
		}
		writeJSON(w, ev)
	}
}

type eventUpdate struct {
	NumGroups   *int  `json:"num_groups"`
	GroupSize   *int  `json:"group_size"`
	NumRounds   *int  `json:"num_rounds"`
	WithLeaders *bool `json:"with_leaders"`
}

func (u eventUpdate) validate() error {
	if u.NumGroups != nil && *u.NumGroups < 1 {
		return errors.New("num_groups must be at least 1")
	}
	if u.GroupSize != nil && *u.GroupSize < 1 {
		return errors.New("group_size must be at least 1")
	}
	if u.NumRounds != nil && *u.NumRounds < 0 {
		return errors.New("num_rounds must be at least 0")
	}
	return nil
}

func (s *server) handleUpdateEvent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, eventID, ok := s.requireEventAdmin(w, r)
		if !ok {
			return
		}
		var body eventUpdate
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := body.validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, err := s.db.ExecContext(r.Context(), `
			UPDATE events SET
				num_groups = COALESCE($1, num_groups),
				group_size = COALESCE($2, group_size),
				num_rounds = COALESCE($3, num_rounds),
				with_leaders = COALESCE($4, with_leaders)
			WHERE id = $5`, body.NumGroups, body.GroupSize, body.NumRounds, body.WithLeaders, eventID)
		if !rowsAffected(w, r, result, err, "event not found") {
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
