package main

import (
	"database/sql"
	_ "embed"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

//go:embed schema.sql
var schema string

type config struct {
	pgConn       string
	clientID     string
	clientSecret string
	admins       []string
	addr         string
	logLevel     string
	workers      int
	seed         int64
}

func loadConfig(v *viper.Viper) (config, error) {
	v.SetDefault("ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SOLVER_WORKERS", 1)
	v.SetDefault("SOLVER_SEED", 0)

	for _, key := range []string{"PGCONN", "CLIENT_ID", "CLIENT_SECRET", "ADMINS"} {
		if v.GetString(key) == "" {
			return config{}, errors.Errorf("%s environment variable is required", key)
		}
	}

	var admins []string
	for _, a := range strings.Split(v.GetString("ADMINS"), ",") {
		if a = strings.TrimSpace(a); a != "" {
			admins = append(admins, a)
		}
	}

	return config{
		pgConn:       v.GetString("PGCONN"),
		clientID:     v.GetString("CLIENT_ID"),
		clientSecret: v.GetString("CLIENT_SECRET"),
		admins:       admins,
		addr:         v.GetString("ADDR"),
		logLevel:     v.GetString("LOG_LEVEL"),
		workers:      max(v.GetInt("SOLVER_WORKERS"), 1),
		seed:         v.GetInt64("SOLVER_SEED"),
	}, nil
}

type server struct {
	db  *sql.DB
	cfg config
}

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	v := viper.New()
	v.AutomaticEnv()
	cfg, err := loadConfig(v)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	level, err := zerolog.ParseLevel(cfg.logLevel)
	if err != nil {
		log.Fatal().Err(err).Str("level", cfg.logLevel).Msg("invalid log level")
	}
	zerolog.SetGlobalLevel(level)

	db, err := sql.Open("postgres", cfg.pgConn)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	log.Info().Msg("connected to database")

	if _, err := db.Exec(schema); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}

	s := &server{db: db, cfg: cfg}

	log.Info().Str("addr", cfg.addr).Msg("listening")
	if err := http.ListenAndServe(cfg.addr, s.routes()); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/google/callback", s.handleGoogleCallback)
	mux.HandleFunc("GET /api/admin/check", s.handleAdminCheck)
	mux.HandleFunc("GET /api/events", s.handleListEvents())
	mux.HandleFunc("POST /api/events", s.handleCreateEvent())
	mux.HandleFunc("DELETE /api/events/{eventID}", s.handleDeleteEvent())
	mux.HandleFunc("POST /api/events/{eventID}/admins", s.handleAddEventAdmin())
	mux.HandleFunc("DELETE /api/events/{eventID}/admins/{adminID}", s.handleRemoveEventAdmin())
	mux.HandleFunc("GET /api/events/{eventID}/me", s.handleEventMe())
	mux.HandleFunc("GET /api/events/{eventID}", s.handleGetEvent())
	mux.HandleFunc("PATCH /api/events/{eventID}", s.handleUpdateEvent())
	mux.HandleFunc("GET /api/events/{eventID}/participants", s.handleListParticipants())
	mux.HandleFunc("POST /api/events/{eventID}/participants", s.handleCreateParticipant())
	mux.HandleFunc("DELETE /api/events/{eventID}/participants/{participantID}", s.handleDeleteParticipant())
	mux.HandleFunc("GET /api/events/{eventID}/constraints", s.handleListConstraints())
	mux.HandleFunc("POST /api/events/{eventID}/constraints", s.handleCreateConstraint())
	mux.HandleFunc("DELETE /api/events/{eventID}/constraints/{constraintID}", s.handleDeleteConstraint())
	mux.HandleFunc("POST /api/events/{eventID}/solve", s.handleSolve())
	mux.HandleFunc("GET /api/events/{eventID}/schedule", s.handleGetSchedule())
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.PingContext(r.Context()); err != nil {
			http.Error(w, "db unhealthy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ok")
	})

	var h http.Handler = mux
	h = hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	})(h)
	h = hlog.NewHandler(log.Logger)(h)
	return h
}
