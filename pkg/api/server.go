package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	cerrors "github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/decefi/pkg/ledger"
	"github.com/uhyunpark/decefi/pkg/program/programerr"
	"github.com/uhyunpark/decefi/pkg/program/state"
)

const maxBodyBytes = 64 << 10

// Server handles REST API and WebSocket connections for one Runtime
type Server struct {
	rt       *ledger.Runtime
	router   *mux.Router
	hub      *Hub
	gatherer prometheus.Gatherer
	log      *zap.SugaredLogger
}

// NewServer builds the router. gatherer backs /metrics; nil omits the route.
func NewServer(rt *ledger.Runtime, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	log := logger.Sugar().Named("api")
	s := &Server{
		rt:       rt,
		router:   mux.NewRouter(),
		hub:      NewHub(log),
		gatherer: gatherer,
		log:      log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/status", s.handleStatus).Methods("GET")

	api.HandleFunc("/accounts", s.handleListAccounts).Methods("GET")
	api.HandleFunc("/accounts", s.handleCreateAccount).Methods("POST")
	api.HandleFunc("/accounts/{key}", s.handleGetAccount).Methods("GET")

	api.HandleFunc("/transactions", s.handleSubmitTransaction).Methods("POST")
	api.HandleFunc("/transactions/{signature}", s.handleGetReceipt).Methods("GET")

	api.HandleFunc("/slots/latest", s.handleLatestSlot).Methods("GET")

	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped in CORS handling
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run()
	defer s.hub.Stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("api_server_listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, StatusResponse{
		ProgramID:        s.rt.ProgramID().String(),
		Slot:             s.rt.Slot(),
		Pending:          s.rt.Pending(),
		CodeTableVersion: programerr.CodeTableVersion,
	})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	var owner *solana.PublicKey
	if v := r.URL.Query().Get("owner"); v != "" {
		pk, err := solana.PublicKeyFromBase58(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid owner", err.Error())
			return
		}
		owner = &pk
	}

	accounts, err := s.rt.Accounts(owner)
	if err != nil {
		s.internalError(w, "list_accounts_failed", err)
		return
	}
	out := make([]AccountView, len(accounts))
	for i, acc := range accounts {
		out[i] = s.accountView(acc)
	}
	respondJSON(w, out)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Key == (solana.PublicKey{}) {
		respondError(w, http.StatusBadRequest, "missing key", "")
		return
	}
	owner := s.rt.ProgramID()
	if req.Owner != nil {
		owner = *req.Owner
	}
	space := state.AccountSize
	if req.Space != nil {
		space = *req.Space
	}

	acc, err := s.rt.CreateAccount(req.Key, owner, space, req.Lamports)
	switch {
	case cerrors.Is(err, ledger.ErrAccountExists):
		respondError(w, http.StatusConflict, "account exists", err.Error())
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, "create account failed", err.Error())
		return
	}
	respondJSONStatus(w, http.StatusCreated, s.accountView(acc))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	key, err := solana.PublicKeyFromBase58(mux.Vars(r)["key"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid key", err.Error())
		return
	}
	acc, err := s.rt.Account(key)
	if err != nil {
		s.internalError(w, "load_account_failed", err)
		return
	}
	if acc == nil {
		respondError(w, http.StatusNotFound, "account not found", "")
		return
	}
	respondJSON(w, s.accountView(acc))
}

// handleSubmitTransaction queues by default; ?mode=sync executes immediately
// and returns the receipt.
func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	tx := &ledger.Transaction{
		ProgramID:  s.rt.ProgramID(),
		Nonce:      req.Nonce,
		Accounts:   req.Accounts,
		Data:       req.Data,
		Signatures: req.Signatures,
	}
	if req.ProgramID != nil {
		tx.ProgramID = *req.ProgramID
	}

	if r.URL.Query().Get("mode") == "sync" {
		rc, err := s.rt.Execute(tx)
		if err != nil {
			s.rejectTx(w, err)
			return
		}
		respondJSON(w, SubmitResponse{Status: "executed", Signature: rc.Signature, Receipt: &rc})
		return
	}

	sig, err := s.rt.Submit(tx)
	if err != nil {
		s.rejectTx(w, err)
		return
	}
	respondJSONStatus(w, http.StatusAccepted, SubmitResponse{Status: "queued", Signature: sig})
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	rc, err := s.rt.Receipt(mux.Vars(r)["signature"])
	if err != nil {
		s.internalError(w, "load_receipt_failed", err)
		return
	}
	if rc == nil {
		respondError(w, http.StatusNotFound, "receipt not found", "queued transactions have no receipt until their slot commits")
		return
	}
	respondJSON(w, rc)
}

func (s *Server) handleLatestSlot(w http.ResponseWriter, r *http.Request) {
	rec, err := s.rt.LatestSlot()
	if err != nil {
		s.internalError(w, "load_slot_failed", err)
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "no slot committed", "")
		return
	}
	respondJSON(w, rec)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods (wired to Runtime hooks)
// ==============================

func (s *Server) BroadcastAccounts(accounts []*ledger.Account) {
	for _, acc := range accounts {
		update := AccountUpdate{Type: "account", Account: s.accountView(acc)}
		s.hub.BroadcastToChannel(ChannelAccounts, update)
		s.hub.BroadcastToChannel(accountPrefix+acc.Key.String(), update)
	}
}

func (s *Server) BroadcastReceipt(rc ledger.Receipt) {
	s.hub.BroadcastToChannel(ChannelReceipts, ReceiptUpdate{Type: "receipt", Receipt: rc})
}

func (s *Server) BroadcastSlot(rec ledger.SlotRecord) {
	s.hub.BroadcastToChannel(ChannelSlots, SlotUpdate{Type: "slot", Slot: rec})
}

// ==============================
// Helper Functions
// ==============================

// accountView decodes the order book of program-owned accounts. Accounts
// that fail to decode are still returned, without orders.
func (s *Server) accountView(acc *ledger.Account) AccountView {
	v := AccountView{
		Key:      acc.Key.String(),
		Owner:    acc.Owner.String(),
		Lamports: acc.Lamports,
		Data:     hexutil.Encode(acc.Data),
	}
	if !acc.Owner.Equals(s.rt.ProgramID()) {
		return v
	}
	orders, err := state.Unpack(acc.Data)
	if err != nil {
		return v
	}
	ov := &OrdersView{Reserved: orders.Reserved, Orders: make([]OrderView, 0, orders.Orders.Len())}
	for _, o := range orders.Orders.All() {
		ov.Orders = append(ov.Orders, OrderView{
			ID:       o.ID().String(),
			State:    o.State.String(),
			Hash:     hexutil.Encode(o.Hash[:]),
			PaidBack: o.PaidBack,
			Reserved: o.Reserved,
		})
	}
	v.Orders = ov
	return v
}

func (s *Server) rejectTx(w http.ResponseWriter, err error) {
	if cerrors.Is(err, ledger.ErrUnknownProgram) || cerrors.Is(err, ledger.ErrTooLarge) || cerrors.Is(err, ledger.ErrBadSignature) {
		respondError(w, http.StatusBadRequest, "transaction rejected", err.Error())
		return
	}
	s.internalError(w, "execute_failed", err)
}

func (s *Server) internalError(w http.ResponseWriter, event string, err error) {
	s.log.Errorw(event, "err", err)
	respondError(w, http.StatusInternalServerError, "internal error", "")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
