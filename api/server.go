package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gregtusar/thstrader/pkg/journal"
	"github.com/gregtusar/thstrader/pkg/models"
	"github.com/sirupsen/logrus"
)

// Trader is what the platform reaches over HTTP.
type Trader interface {
	Login(ctx context.Context) bool
	Logout(ctx context.Context, oneKeyHangUp bool) bool
	Refresh(ctx context.Context) error
	GetBalance(ctx context.Context, fromBroker bool) (models.Table, error)
	GetPositions(ctx context.Context, fromBroker bool) (models.Table, string, error)
	GetCurEntrusts(ctx context.Context) (models.Table, error)
	GetCurDeals(ctx context.Context) (models.Table, error)
	Buy(ctx context.Context, code, name string, price float64, volume int) bool
	Sell(ctx context.Context, code, name string, price float64, volume int) bool
	Cancel(ctx context.Context, entrust models.Entrust) bool
	Journal() journal.Journal
}

type Server struct {
	trader Trader
	logger *logrus.Logger
	port   string
	http   *http.Server
}

type positionsResponse struct {
	models.Table
	ForegroundColumn string `json:"foreground_column"`
}

type cancelRequest struct {
	Code            string `json:"code"`
	Name            string `json:"name"`
	BrokerEntrustID string `json:"broker_entrust_id"`
}

type logoutRequest struct {
	OneKeyHangUp bool `json:"one_key_hang_up"`
}

func NewServer(trader Trader, logger *logrus.Logger, port string) *Server {
	return &Server{
		trader: trader,
		logger: logger,
		port:   port,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/logout", s.handleLogout)
	mux.HandleFunc("/api/refresh", s.handleRefresh)
	mux.HandleFunc("/api/balance", s.handleBalance)
	mux.HandleFunc("/api/positions", s.handlePositions)
	mux.HandleFunc("/api/entrusts", s.handleEntrusts)
	mux.HandleFunc("/api/deals", s.handleDeals)
	mux.HandleFunc("/api/orders", s.handleOrders)
	mux.HandleFunc("/api/orders/cancel", s.handleCancel)
	mux.HandleFunc("/api/journal", s.handleJournal)

	return corsMiddleware(mux)
}

func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting API server on port %s", s.port)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	s.writeOK(w, s.trader.Login(r.Context()))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req logoutRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	s.writeOK(w, s.trader.Logout(r.Context(), req.OneKeyHangUp))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.trader.Refresh(r.Context()); err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeOK(w, true)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	table, err := s.trader.GetBalance(r.Context(), !cachedParam(r))
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, table)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	table, col, err := s.trader.GetPositions(r.Context(), !cachedParam(r))
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, positionsResponse{Table: table, ForegroundColumn: col})
}

func (s *Server) handleEntrusts(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	table, err := s.trader.GetCurEntrusts(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, table)
}

func (s *Server) handleDeals(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	table, err := s.trader.GetCurDeals(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, table)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req models.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Code == "" || req.Volume <= 0 || req.Price <= 0 {
		http.Error(w, "code, positive price and volume are required", http.StatusBadRequest)
		return
	}

	var ok bool
	switch req.Side {
	case models.OrderSideBuy:
		ok = s.trader.Buy(r.Context(), req.Code, req.Name, req.Price, req.Volume)
	case models.OrderSideSell:
		ok = s.trader.Sell(r.Context(), req.Code, req.Name, req.Price, req.Volume)
	default:
		http.Error(w, "side must be buy or sell", http.StatusBadRequest)
		return
	}

	s.writeOK(w, ok)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.BrokerEntrustID == "" {
		http.Error(w, "broker_entrust_id is required", http.StatusBadRequest)
		return
	}

	ok := s.trader.Cancel(r.Context(), models.Entrust{
		Code:            req.Code,
		Name:            req.Name,
		BrokerEntrustID: req.BrokerEntrustID,
	})
	s.writeOK(w, ok)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	j := s.trader.Journal()
	if j == nil {
		s.writeJSON(w, http.StatusOK, []models.JournalEntry{})
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := j.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func cachedParam(r *http.Request) bool {
	cached, _ := strconv.ParseBool(r.URL.Query().Get("cached"))
	return cached
}

func (s *Server) writeOK(w http.ResponseWriter, ok bool) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": ok})
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.WithError(err).Warn("Request failed")
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}
