/*

This file contains the HTTP surface of the market. It is a thin JSON layer over the
Trading Engine, the Graduation Orchestrator and the ledger's read side; every invariant
is enforced below it, so the handlers only parse, dispatch and map sentinel errors to
status codes.

*/

package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"

	"github.com/curveforge/curved/internal/engine"
	"github.com/curveforge/curved/internal/graduation"
	"github.com/curveforge/curved/internal/ledger"
	"github.com/curveforge/curved/internal/logger"
	"github.com/curveforge/curved/internal/pricing"
	"github.com/curveforge/curved/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer handles HTTP requests for the token market
type WebServer struct {
	router       *mux.Router
	port         string
	engine       *engine.Engine
	orchestrator *graduation.Orchestrator
	store        ledger.Store
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, eng *engine.Engine, orch *graduation.Orchestrator, store ledger.Store) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:       mux.NewRouter(),
		port:         port,
		engine:       eng,
		orchestrator: orch,
		store:        store,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/tokens", ws.handleRegisterToken).Methods("POST")
	api.HandleFunc("/tokens/{token}", ws.handleGetToken).Methods("GET")
	api.HandleFunc("/tokens/{token}/quote", ws.handleQuote).Methods("GET")
	api.HandleFunc("/tokens/{token}/buy", ws.handleBuy).Methods("POST")
	api.HandleFunc("/tokens/{token}/sell", ws.handleSell).Methods("POST")
	api.HandleFunc("/tokens/{token}/graduate", ws.handleGraduate).Methods("POST")
	api.HandleFunc("/tokens/{token}/claim", ws.handleClaim).Methods("POST")
	api.HandleFunc("/tokens/{token}/claims/sweep", ws.handleSweepClaims).Methods("POST")
	api.HandleFunc("/accounts/{account}/deposit", ws.handleDeposit).Methods("POST")
	api.HandleFunc("/events", ws.handleGetEvents).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"component": map[string]interface{}{
			"name":    "curved-token-market",
			"version": "1.0.0",
		},
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

type registerRequest struct {
	Profile   types.TokenProfile `json:"profile"`
	StartTime *time.Time         `json:"start_time,omitempty"`
}

// handleRegisterToken records a new token profile and opens its curve
func (ws *WebServer) handleRegisterToken(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	startTime := time.Time{}
	if req.StartTime != nil {
		startTime = *req.StartTime
	}
	if err := ws.engine.RegisterToken(r.Context(), req.Profile, startTime); err != nil {
		ws.writeDomainError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusCreated, map[string]interface{}{
		"token": req.Profile.Token,
	})
}

// handleGetToken returns the profile and runtime state of one token
func (ws *WebServer) handleGetToken(w http.ResponseWriter, r *http.Request) {
	token := types.Address(mux.Vars(r)["token"])

	profile, err := ws.store.ReadProfile(r.Context(), token)
	if err != nil {
		ws.writeDomainError(w, err)
		return
	}
	state, err := ws.store.ReadRuntime(r.Context(), token)
	if err != nil {
		ws.writeDomainError(w, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"profile": profile,
		"state":   state,
	})
}

// handleQuote returns a read-only price preview
func (ws *WebServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	token := types.Address(mux.Vars(r)["token"])

	var side types.TradeSide
	switch r.URL.Query().Get("side") {
	case "buy":
		side = types.SideBuy
	case "sell":
		side = types.SideSell
	default:
		ws.writeErrorResponse(w, http.StatusBadRequest, "side must be 'buy' or 'sell'")
		return
	}

	amount, ok := sdkmath.NewIntFromString(r.URL.Query().Get("amount"))
	if !ok || !amount.IsPositive() {
		ws.writeErrorResponse(w, http.StatusBadRequest, "amount must be a positive integer")
		return
	}

	out, err := ws.engine.Quote(r.Context(), token, side, amount)
	if err != nil {
		ws.writeDomainError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"token":  token,
		"side":   side,
		"amount": amount,
		"quote":  out,
	})
}

type buyRequest struct {
	Buyer        types.Address `json:"buyer"`
	EthIn        sdkmath.Int   `json:"eth_in"`
	MinTokensOut sdkmath.Int   `json:"min_tokens_out"`
}

// handleBuy executes a buy against the curve
func (ws *WebServer) handleBuy(w http.ResponseWriter, r *http.Request) {
	token := types.Address(mux.Vars(r)["token"])

	var req buyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.MinTokensOut.IsNil() {
		req.MinTokensOut = sdkmath.ZeroInt()
	}

	receipt, err := ws.engine.Buy(r.Context(), token, req.Buyer, req.EthIn, req.MinTokensOut)
	if err != nil {
		ws.writeDomainError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, receipt)
}

type sellRequest struct {
	Seller    types.Address `json:"seller"`
	Amount    sdkmath.Int   `json:"amount"`
	MinEthOut sdkmath.Int   `json:"min_eth_out"`
}

// handleSell executes a sell against the curve
func (ws *WebServer) handleSell(w http.ResponseWriter, r *http.Request) {
	token := types.Address(mux.Vars(r)["token"])

	var req sellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.MinEthOut.IsNil() {
		req.MinEthOut = sdkmath.ZeroInt()
	}

	receipt, err := ws.engine.Sell(r.Context(), token, req.Seller, req.Amount, req.MinEthOut)
	if err != nil {
		ws.writeDomainError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, receipt)
}

type graduateRequest struct {
	Trigger types.Address `json:"trigger"`
}

// handleGraduate runs the manual graduation path
func (ws *WebServer) handleGraduate(w http.ResponseWriter, r *http.Request) {
	token := types.Address(mux.Vars(r)["token"])

	var req graduateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := ws.orchestrator.Graduate(r.Context(), token, req.Trigger)
	if err != nil {
		ws.writeDomainError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, result)
}

type claimRequest struct {
	Holder types.Address `json:"holder"`
}

// handleClaim settles one holder's deferred distribution
func (ws *WebServer) handleClaim(w http.ResponseWriter, r *http.Request) {
	token := types.Address(mux.Vars(r)["token"])

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	amount, err := ws.orchestrator.Claim(r.Context(), token, req.Holder)
	if err != nil {
		ws.writeDomainError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"token":  token,
		"holder": req.Holder,
		"amount": amount,
	})
}

type sweepRequest struct {
	BatchSize int `json:"batch_size"`
}

// handleSweepClaims pushes a batch of outstanding claims
func (ws *WebServer) handleSweepClaims(w http.ResponseWriter, r *http.Request) {
	token := types.Address(mux.Vars(r)["token"])

	var req sweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	settled, done, err := ws.orchestrator.SweepClaims(r.Context(), token, req.BatchSize)
	if err != nil {
		ws.writeDomainError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"token":   token,
		"settled": settled,
		"done":    done,
	})
}

type depositRequest struct {
	Amount sdkmath.Int `json:"amount"`
}

// handleDeposit credits an account's native balance
func (ws *WebServer) handleDeposit(w http.ResponseWriter, r *http.Request) {
	account := types.Address(mux.Vars(r)["account"])

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := ws.engine.Deposit(r.Context(), account, req.Amount); err != nil {
		ws.writeDomainError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"account": account,
		"amount":  req.Amount,
	})
}

// handleGetEvents returns the most recent market events
func (ws *WebServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 500 {
			limit = parsedLimit
		}
	}

	events, err := ws.store.RecentEvents(r.Context(), limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent events")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve events")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  limit,
	})
}

// writeDomainError maps sentinel errors from the lower layers onto HTTP status codes
func (ws *WebServer) writeDomainError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, ledger.ErrTokenUnknown):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrTokenExists),
		errors.Is(err, engine.ErrAlreadyGraduated),
		errors.Is(err, graduation.ErrAlreadyGraduated),
		errors.Is(err, graduation.ErrAlreadyClaimed):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrReentrantCall):
		status = http.StatusLocked
	case errors.Is(err, ledger.ErrInsufficientNative),
		errors.Is(err, engine.ErrInsufficientBalance):
		status = http.StatusPaymentRequired
	case errors.Is(err, engine.ErrNotLive),
		errors.Is(err, engine.ErrCapReached),
		errors.Is(err, engine.ErrZeroQuote),
		errors.Is(err, engine.ErrSlippageExceeded),
		errors.Is(err, engine.ErrMaxTxExceeded),
		errors.Is(err, engine.ErrMaxWalletExceeded),
		errors.Is(err, engine.ErrOvershootExceeded),
		errors.Is(err, engine.ErrDustNeedsFullAmount),
		errors.Is(err, graduation.ErrNotAtCap),
		errors.Is(err, graduation.ErrNotGraduated),
		errors.Is(err, graduation.ErrNotClaimMode),
		errors.Is(err, graduation.ErrNothingToClaim),
		errors.Is(err, graduation.ErrPoolOutOfBounds),
		errors.Is(err, graduation.ErrPoolTooSmall),
		errors.Is(err, pricing.ErrInvalidAmount),
		errors.Is(err, pricing.ErrZeroEthIn),
		errors.Is(err, pricing.ErrOverSell),
		errors.Is(err, types.ErrProfileInvalid),
		errors.Is(err, types.ErrFinalTaxTooHigh),
		errors.Is(err, types.ErrUnknownProfileKind):
		status = http.StatusUnprocessableEntity
	default:
		webLogger.Error().Err(err).Msg("Unhandled domain error")
		status = http.StatusInternalServerError
	}
	ws.writeErrorResponse(w, status, err.Error())
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
