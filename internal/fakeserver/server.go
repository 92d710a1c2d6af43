package fakeserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Config struct {
	Secret         []byte
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server wires the store and the hub behind an HTTP router.
type Server struct {
	store  *Store
	hub    *Hub
	secret []byte
	log    *slog.Logger
	now    func() time.Time
	router chi.Router
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.Secret) == 0 {
		cfg.Secret = []byte("dev-secret-change-me")
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	}

	s := &Server{
		store:  NewStore(),
		hub:    NewHub(cfg.Logger),
		secret: cfg.Secret,
		log:    cfg.Logger,
		now:    time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "user", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/devs", s.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/devs", s.handleQueue)
		r.Post("/devs/{id}/likes", s.handleLike)
		r.Post("/devs/{id}/dislikes", s.handleDislike)
		r.Get("/ws", s.handleWS)
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Store exposes the backing store for seeding and inspection.
func (s *Server) Store() *Store { return s.store }

// Hub exposes the push hub.
func (s *Server) Hub() *Hub { return s.hub }

// --- Response helpers ---
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type loginResponse struct {
	ID       string `json:"_id"`
	Username string `json:"user"`
	Name     string `json:"name"`
	Bio      string `json:"bio"`
	Avatar   string `json:"avatar"`
	Token    string `json:"token"`
}

// POST /devs {username}
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "missing_username")
		return
	}

	dev, created, err := s.store.Login(req.Username)
	if errors.Is(err, ErrUnknownAccount) {
		writeError(w, http.StatusNotFound, "user_not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "login_error")
		s.log.Error("login failed", "username", req.Username, "error", err)
		return
	}

	token, err := s.issueToken(dev.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_generation_error")
		s.log.Error("token generation failed", "user", dev.ID, "error", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.log.Info("dev logged in", "user", dev.ID, "username", dev.Username, "created", created)
	writeJSON(w, status, loginResponse{
		ID: dev.ID, Username: dev.Username, Name: dev.Name, Bio: dev.Bio, Avatar: dev.Avatar, Token: token,
	})
}

// GET /devs
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.store.Queue(callerID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "queue_error")
		return
	}
	out := make([]wireProfile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, toWire(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /devs/{id}/likes
// A like on someone who already liked the caller is a match: both sides are
// notified over the push channel.
func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	me, target, matched, err := s.store.Like(callerID(r), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, ErrAlreadyLiked):
		writeError(w, http.StatusConflict, "already_liked")
		return
	case err != nil:
		writeDecisionError(w, err)
		return
	}

	if matched {
		s.log.Info("match", "user", me.ID, "target", target.ID)
		s.hub.NotifyMatch(me, target)
	}
	writeJSON(w, http.StatusOK, map[string]any{"liked": target.ID, "match": matched})
}

// POST /devs/{id}/dislikes
func (s *Server) handleDislike(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "id")
	if err := s.store.Dislike(callerID(r), target); err != nil {
		writeDecisionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"disliked": target})
}

func writeDecisionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSelfDecision):
		writeError(w, http.StatusBadRequest, "invalid_target")
	case errors.Is(err, ErrUnknownDev):
		writeError(w, http.StatusNotFound, "not_found")
	default:
		writeError(w, http.StatusInternalServerError, "decision_error")
	}
}

// GET /ws?user=<id>
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.serve(w, r, callerID(r))
}
