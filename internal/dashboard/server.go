// Package dashboard exposes the order ledger over an HTTP JSON API.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/klcheung/alertledger/internal/engine"
	"github.com/klcheung/alertledger/internal/models"
)

// Tracker is the slice of the lifecycle engine the dashboard serves.
type Tracker interface {
	Ingest(msg models.Message) (orderID string, produced bool)
	AllOrders() []models.Order
	OpenOrders() []models.Order
	ClosedOrders() []models.Order
	OrderByID(id string) (models.Order, bool)
	Statistics() models.Statistics
	Journal(filter engine.JournalFilter) []models.JournalEntry
	Export() engine.ExportBundle
	ClearAll() error
	Deduplicate() engine.DedupResult
}

type Server struct {
	router    *chi.Mux
	server    *http.Server
	tracker   Tracker
	logger    *logrus.Logger
	port      int
	authToken string
}

type Config struct {
	Port      int
	AuthToken string
}

func NewServer(cfg Config, tracker Tracker, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		tracker:   tracker,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/trading", s.handleExport)
	s.router.Get("/api/trading/orders", s.handleGetOrders)
	s.router.Get("/api/trading/orders/{id}", s.handleGetOrder)
	s.router.Get("/api/trading/statistics", s.handleGetStatistics)
	s.router.Get("/api/trading/messages", s.handleGetMessages)
	s.router.Post("/api/trading/test", s.handleTestMessage)
	s.router.Post("/api/trading/clear", s.handleClear)
	s.router.Post("/api/trading/deduplicate", s.handleDeduplicate)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	s.logger.Infof("Starting dashboard server on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.tracker.Export())
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	var orders []models.Order
	switch status := r.URL.Query().Get("status"); status {
	case "", "all":
		orders = s.tracker.AllOrders()
	case "open":
		orders = s.tracker.OpenOrders()
	case "closed":
		orders = s.tracker.ClosedOrders()
	default:
		http.Error(w, fmt.Sprintf("unknown status %q", status), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	order, ok := s.tracker.OrderByID(id)
	if !ok {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleGetStatistics(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.tracker.Statistics())
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter engine.JournalFilter
	if v := q.Get("has_order"); v != "" {
		hasOrder, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "has_order must be a boolean", http.StatusBadRequest)
			return
		}
		filter.HasOrder = &hasOrder
	}
	filter.ChannelID = q.Get("channel_id")

	var err error
	if filter.Offset, err = parseIntParam(q.Get("offset"), 0); err != nil {
		http.Error(w, "offset must be a non-negative integer", http.StatusBadRequest)
		return
	}
	if filter.Limit, err = parseIntParam(q.Get("limit"), 100); err != nil {
		http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
		return
	}

	s.writeJSON(w, http.StatusOK, s.tracker.Journal(filter))
}

func parseIntParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	return n, nil
}

// testMessageRequest is a hand-fed message for exercising the grammars
// without a relay connection.
type testMessageRequest struct {
	Content   string         `json:"content"`
	ChannelID string         `json:"channel_id"`
	Embeds    []models.Embed `json:"embeds,omitempty"`
}

func (s *Server) handleTestMessage(w http.ResponseWriter, r *http.Request) {
	var req testMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Content == "" && len(req.Embeds) == 0 {
		http.Error(w, "content or embeds required", http.StatusBadRequest)
		return
	}

	msg := models.Message{
		ChannelID: req.ChannelID,
		Content:   req.Content,
		Timestamp: time.Now().UTC(),
		Embeds:    req.Embeds,
	}
	orderID, produced := s.tracker.Ingest(msg)

	resp := map[string]interface{}{"produced": produced}
	if produced {
		resp["order_id"] = orderID
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	if err := s.tracker.ClearAll(); err != nil {
		s.logger.WithError(err).Error("Failed to clear ledger")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleDeduplicate(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.tracker.Deduplicate())
}
