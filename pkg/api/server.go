package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/hypermarket/pkg/app/core/ledger"
	"github.com/uhyunpark/hypermarket/pkg/app/market"
)

const (
	maxTxBytes        = 64 << 10
	defaultTradeLimit = 50
	maxTradeLimit     = 1000
)

// Server handles REST API and WebSocket connections
type Server struct {
	app    *market.App
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger

	allowedOrigins []string
}

// NewServer creates the API server and subscribes it to applied txs
func NewServer(app *market.App, log *zap.Logger, allowedOrigins []string) *Server {
	s := &Server{
		app:            app,
		router:         mux.NewRouter(),
		log:            log.Sugar(),
		allowedOrigins: allowedOrigins,
	}
	s.hub = NewHub(s.log, app.Metrics())

	s.setupRoutes()
	app.Subscribe(s.broadcastResult)
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/trades", s.handleGetTrades).Methods("GET")
	api.HandleFunc("/ledger/status", s.handleGetStatus).Methods("GET")

	// Signed transaction submission
	api.HandleFunc("/tx", s.handleSubmitTx).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	if reg := s.app.Metrics().Registry(); reg != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")
	}
}

// Handler returns the router wrapped with CORS
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	hubCtx, cancelHub := context.WithCancel(ctx)
	defer cancelHub()
	go s.hub.Run(hubCtx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("api_server_starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Infow("api_server_stopping")
		return srv.Shutdown(shutdownCtx)
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.app.Engine().Config()
	respondJSON(w, ConfigInfo{
		Owner:                cfg.Owner.Hex(),
		UnitPrice:            cfg.UnitPrice,
		CommissionRate:       cfg.CommissionRate,
		ReserveCap:           cfg.ReserveCap,
		CurrentReserve:       cfg.CurrentReserve,
		MaxListingPerAccount: cfg.MaxListingPerAccount,
	})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addressStr := mux.Vars(r)["address"]
	if !common.IsHexAddress(addressStr) {
		respondError(w, http.StatusBadRequest, "invalid address", "", "")
		return
	}
	addr := common.HexToAddress(addressStr)

	nonce, err := s.app.Nonce(addr)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load nonce", "", err.Error())
		return
	}

	acct := s.app.Engine().Account(addr)
	respondJSON(w, AccountInfo{
		Address:      addr.Hex(),
		Currency:     acct.Currency,
		Inventory:    acct.Inventory,
		Listed:       acct.Listing.Quantity,
		Unlisted:     acct.Unlisted(),
		ListingPrice: acct.Listing.Price,
		Nonce:        nonce,
	})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	limit := defaultTradeLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", "", v)
			return
		}
		limit = min(n, maxTradeLimit)
	}

	trades, err := s.app.RecentTrades(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load trades", "", err.Error())
		return
	}

	response := make([]TradeInfo, len(trades))
	for i, t := range trades {
		response[i] = toTradeInfo(t)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.app.Engine().Snapshot()
	respondJSON(w, LedgerStatus{
		StateRoot:      market.StateRoot(snap).Hex(),
		CurrentReserve: snap.Config.CurrentReserve,
		ReserveCap:     snap.Config.ReserveCap,
		MempoolSize:    s.app.PendingTxs(),
		Timestamp:      time.Now().UnixMilli(),
	})
}

func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTxBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", "", err.Error())
		return
	}
	if len(body) > maxTxBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "transaction too large", "", "")
		return
	}

	hash, err := s.app.SubmitTx(body)
	if err != nil {
		status := http.StatusBadRequest
		kind := market.Kind(err)
		switch kind {
		case "BadSignature":
			status = http.StatusUnauthorized
		case "MempoolFull":
			status = http.StatusServiceUnavailable
		}
		respondError(w, status, "transaction rejected", kind, err.Error())
		return
	}

	s.log.Debugw("tx_submitted", "hash", hash, "bytes", len(body))
	respondJSONStatus(w, http.StatusAccepted, SubmitTxResponse{Status: "submitted", Hash: hash})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast
// ==============================

// broadcastResult pushes an applied tx to "txs", its caller's account
// channel, and "trades" for buys
func (s *Server) broadcastResult(res market.Result) {
	update := TxUpdate{
		Type:   "tx",
		Hash:   res.Hash,
		Op:     string(res.Type),
		Caller: res.Caller.Hex(),
		OK:     res.OK(),
		Kind:   res.Kind,
		Error:  res.Error,
	}
	s.hub.BroadcastToChannel("txs", update)
	s.hub.BroadcastToChannel("account:"+res.Caller.Hex(), update)

	if res.Trade != nil {
		s.hub.BroadcastToChannel("trades", TradeUpdate{Type: "trade", Trade: toTradeInfo(res.Trade)})
	}
}

// ==============================
// Helper Functions
// ==============================

func toTradeInfo(t *ledger.Trade) TradeInfo {
	return TradeInfo{
		ID:          t.ID,
		Buyer:       t.Buyer.Hex(),
		Seller:      t.Seller.Hex(),
		Quantity:    t.Quantity,
		Price:       t.Price,
		ProductCost: t.ProductCost,
		Commission:  t.Commission,
		TotalCost:   t.TotalCost,
		Timestamp:   t.Timestamp,
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, kind string, message string) {
	respondJSONStatus(w, status, ErrorResponse{
		Error:   error,
		Kind:    kind,
		Message: message,
	})
}
