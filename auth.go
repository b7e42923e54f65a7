package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
	"google.golang.org/api/idtoken"
)

const (
	roleAdmin       = "admin"
	roleParticipant = "participant"
)

func (s *server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	credential := r.FormValue("credential")
	if credential == "" {
		http.Error(w, "missing credential", http.StatusBadRequest)
		return
	}

	payload, err := idtoken.Validate(r.Context(), credential, s.cfg.clientID)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("failed to validate token")
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	email, _ := payload.Claims["email"].(string)
	if email == "" {
		http.Error(w, "token has no email", http.StatusUnauthorized)
		return
	}

	profile := map[string]any{
		"email":   email,
		"name":    payload.Claims["name"],
		"picture": payload.Claims["picture"],
		"token":   signEmail(s.cfg.clientSecret, email),
	}
	writeJSON(w, profile)
}

func signEmail(secret, email string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(email))
	sig := base64.RawURLEncoding.EncodeToString(h.Sum(nil))
	return base64.RawURLEncoding.EncodeToString([]byte(email)) + "." + sig
}

func (s *server) authorize(r *http.Request) (string, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return "", false
	}
	emailBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", false
	}
	email := string(emailBytes)
	if !hmac.Equal([]byte(signEmail(s.cfg.clientSecret, email)), []byte(token)) {
		return "", false
	}
	return email, true
}

func (s *server) isAdmin(email string) bool {
	return slices.Contains(s.cfg.admins, email)
}

func (s *server) requireAdmin(w http.ResponseWriter, r *http.Request) (string, bool) {
	email, ok := s.authorize(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	if !s.isAdmin(email) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return "", false
	}
	return email, true
}

func (s *server) isEventAdmin(r *http.Request, email string, eventID int64) bool {
	var exists bool
	s.db.QueryRowContext(r.Context(), "SELECT EXISTS(SELECT 1 FROM event_admins WHERE event_id = $1 AND email = $2)", eventID, email).Scan(&exists)
	return exists
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		http.Error(w, "invalid "+strings.TrimSuffix(name, "ID")+" ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (s *server) requireEventAdmin(w http.ResponseWriter, r *http.Request) (string, int64, bool) {
	email, ok := s.authorize(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", 0, false
	}
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return "", 0, false
	}
	if !s.isAdmin(email) && !s.isEventAdmin(r, email, eventID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return "", 0, false
	}
	return email, eventID, true
}

// eventRole resolves what email may do in an event: admin, participant (with
// the participant rows matching the email) or nothing.
func (s *server) eventRole(r *http.Request, email string, eventID int64) (string, []int64, error) {
	if s.isAdmin(email) || s.isEventAdmin(r, email, eventID) {
		return roleAdmin, nil, nil
	}
	rows, err := s.db.QueryContext(r.Context(), "SELECT id FROM participants WHERE event_id = $1 AND email = $2", eventID, email)
	if err != nil {
		return "", nil, errors.Wrap(err, "resolve role")
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return "", nil, errors.Wrap(err, "scan participant id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", nil, errors.Wrap(err, "resolve role")
	}
	if len(ids) > 0 {
		return roleParticipant, ids, nil
	}
	return "", nil, nil
}

func (s *server) requireEventMember(w http.ResponseWriter, r *http.Request) (string, int64, string, []int64, bool) {
	email, ok := s.authorize(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", 0, "", nil, false
	}
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return "", 0, "", nil, false
	}
	role, ids, err := s.eventRole(r, email, eventID)
	if err != nil {
		serverError(w, r, err)
		return "", 0, "", nil, false
	}
	if role == "" {
		http.Error(w, "forbidden", http.StatusForbidden)
		return "", 0, "", nil, false
	}
	return email, eventID, role, ids, true
}

func (s *server) handleAdminCheck(w http.ResponseWriter, r *http.Request) {
	email, ok := s.authorize(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]bool{"admin": s.isAdmin(email)})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func serverError(w http.ResponseWriter, r *http.Request, err error) {
	hlog.FromRequest(r).Error().Err(err).Msg("request failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// rowsAffected answers 404 with msg when a write touched nothing.
func rowsAffected(w http.ResponseWriter, r *http.Request, result sql.Result, err error, msg string) bool {
	if err != nil {
		serverError(w, r, err)
		return false
	}
	if n, _ := result.RowsAffected(); n == 0 {
		http.Error(w, msg, http.StatusNotFound)
		return false
	}
	return true
}
