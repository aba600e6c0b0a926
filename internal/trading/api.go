package trading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"metachrome-options-go/internal/ledger"
	"metachrome-options-go/internal/models"
	"metachrome-options-go/internal/pricefeed"
)

// APIServer exposes the engine over a thin JSON HTTP surface: trade
// open/cancel, read accessors, funding, and the administrative
// settle/outcome-control endpoints. Authentication is handled
// upstream; requests carry the user id as a plain field.
type APIServer struct {
	server *http.Server
	engine *Engine
	logger *zap.Logger
}

// NewAPIServer creates a new APIServer listening on the configured port.
func NewAPIServer(engine *Engine, port int, logger *zap.Logger) *APIServer {
	s := &APIServer{
		engine: engine,
		logger: logger.Named("api-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/trades/open", s.openTradeHandler)
	mux.HandleFunc("/api/trades/cancel", s.cancelTradeHandler)
	mux.HandleFunc("/api/trades/active", s.activeTradesHandler)
	mux.HandleFunc("/api/trades", s.userTradesHandler)
	mux.HandleFunc("/api/trade", s.tradeHandler)
	mux.HandleFunc("/api/balance", s.balanceHandler)
	mux.HandleFunc("/api/deposit", s.depositHandler)
	mux.HandleFunc("/api/withdraw", s.withdrawHandler)
	mux.HandleFunc("/admin/settle", s.settleHandler)
	mux.HandleFunc("/admin/control", s.controlHandler)
	mux.HandleFunc("/health", s.healthHandler)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return s
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (s *APIServer) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrTradeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrAlreadyTerminal):
		status = http.StatusConflict
	case errors.Is(err, ErrNotTradeOwner):
		status = http.StatusForbidden
	case errors.Is(err, ErrInvalidDirection),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidDuration),
		errors.Is(err, ErrAmountBelowMinimum),
		errors.Is(err, ErrInvalidControlType):
		status = http.StatusBadRequest
	case errors.Is(err, pricefeed.ErrPriceUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrInsufficientBalance):
		status = http.StatusBadRequest
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *APIServer) openTradeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		UserID    string `json:"user_id"`
		Symbol    string `json:"symbol"`
		Direction string `json:"direction"`
		Amount    string `json:"amount"`
		Duration  int    `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		s.writeError(w, ErrInvalidAmount)
		return
	}

	trade, err := s.engine.OpenTrade(r.Context(), OpenTradeRequest{
		UserID:          body.UserID,
		Symbol:          body.Symbol,
		Direction:       models.TradeDirection(body.Direction),
		Amount:          amount,
		DurationSeconds: body.Duration,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, trade)
}

func (s *APIServer) cancelTradeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		TradeID string `json:"trade_id"`
		UserID  string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.engine.Cancel(r.Context(), body.TradeID, body.UserID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func (s *APIServer) tradeHandler(w http.ResponseWriter, r *http.Request) {
	trade, err := s.engine.GetTrade(r.URL.Query().Get("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trade)
}

func (s *APIServer) userTradesHandler(w http.ResponseWriter, r *http.Request) {
	trades, err := s.engine.GetUserTrades(r.URL.Query().Get("user_id"), 100)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}

func (s *APIServer) activeTradesHandler(w http.ResponseWriter, r *http.Request) {
	trades, err := s.engine.GetActiveTrades()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}

func (s *APIServer) balanceHandler(w http.ResponseWriter, r *http.Request) {
	balance, err := s.engine.GetUserBalance(r.URL.Query().Get("user_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, balance)
}

func (s *APIServer) depositHandler(w http.ResponseWriter, r *http.Request) {
	s.fundingHandler(w, r, s.engine.Deposit)
}

func (s *APIServer) withdrawHandler(w http.ResponseWriter, r *http.Request) {
	s.fundingHandler(w, r, s.engine.Withdraw)
}

func (s *APIServer) fundingHandler(w http.ResponseWriter, r *http.Request, op func(string, decimal.Decimal) (*models.Balance, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		UserID string `json:"user_id"`
		Amount string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		s.writeError(w, ErrInvalidAmount)
		return
	}

	balance, err := op(body.UserID, amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, balance)
}

// settleHandler is the manual/administrative settlement trigger. It
// races freely against the timer and sweep paths; a no-op outcome is
// reported as settled.
func (s *APIServer) settleHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		TradeID string `json:"trade_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.engine.Settle(r.Context(), body.TradeID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"settled": true})
}

func (s *APIServer) controlHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		UserID      string `json:"user_id"`
		ControlType string `json:"control_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	control, err := s.engine.SetOutcomeControl(body.UserID, models.ControlType(body.ControlType))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, control)
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}
