// Package api serves the read-only inspection surface: liveness, status,
// and a peek at the stored message log per chat.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/perchbot/perch/internal/store"
)

const defaultRecentLimit = 10

type Server struct {
	router *chi.Mux
	port   int
	store  store.MessageLog
}

func NewServer(port int, s store.MessageLog) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	srv := &Server{
		router: router,
		port:   port,
		store:  s,
	}

	router.Get("/health", srv.health)
	router.Get("/api/v1/perch/status", srv.status)
	router.Get("/api/v1/chats/{chatID}/messages", srv.recentMessages)

	return srv
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	storeStatus := "ok"
	if err := s.store.Ping(r.Context()); err != nil {
		storeStatus = "unreachable"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"agent": "perch",
		"store": storeStatus,
	})
}

type messageView struct {
	ID        int64  `json:"id"`
	ChatID    int64  `json:"chat_id"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// recentMessages returns the newest stored messages for a chat, newest
// first. Read-only: the serving bot never consumes this endpoint.
func (s *Server) recentMessages(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid chat id", http.StatusBadRequest)
		return
	}

	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	msgs, err := s.store.Recent(r.Context(), chatID, limit)
	if err != nil {
		slog.Error("failed to read recent messages", "chat_id", chatID, "error", err)
		http.Error(w, "store read failed", http.StatusInternalServerError)
		return
	}

	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, messageView{
			ID:        m.ID,
			ChatID:    m.ChatID,
			UserID:    m.UserID,
			Username:  m.Username,
			Text:      m.Text,
			Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(views)
}
