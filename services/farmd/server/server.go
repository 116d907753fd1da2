package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	farmconfig "yieldfarm/config"
	"yieldfarm/crypto"
	"yieldfarm/native/bank"
	"yieldfarm/native/common"
	"yieldfarm/native/farm"
	"yieldfarm/native/vault"
	"yieldfarm/services/farmd/service"
	"yieldfarm/storage/history"
)

// FarmService is the serialised farm surface served over HTTP.
type FarmService interface {
	Deposit(user crypto.Address, pid uint64, amount *big.Int) (*big.Int, error)
	Withdraw(user crypto.Address, pid uint64, amount *big.Int) (*big.Int, error)
	Harvest(user crypto.Address, pid uint64) (*big.Int, error)
	EmergencyWithdraw(user crypto.Address, pid uint64) (*big.Int, error)
	AddPool(caller crypto.Address, pool farmconfig.Pool) (uint64, error)
	SetPool(caller crypto.Address, pid, weight uint64) error
	SetWithdrawFee(caller crypto.Address, pid, rate uint64) error
	StartMining(caller crypto.Address, startTime uint64) error
	ClaimYield(caller crypto.Address, pid uint64, recipient crypto.Address) (*big.Int, error)
	Pause(caller crypto.Address, module string) error
	Resume(caller crypto.Address, module string) error
	Pools() ([]service.PoolView, error)
	Pool(pid uint64) (service.PoolView, error)
	Position(pid uint64, user crypto.Address) (service.PositionView, error)
	Globals() (service.GlobalsView, error)
}

// HistoryReader serves recorded events.
type HistoryReader interface {
	ForUser(ctx context.Context, user string, limit int) ([]history.Record, error)
}

// RequestObserver records request outcomes.
type RequestObserver interface {
	ObserveRequest(route, method string, status int, elapsed time.Duration)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Service   FarmService
	History   HistoryReader
	Observer  RequestObserver
	Metrics   http.Handler
	Auth      AuthConfig
	RateLimit RateLimit
	Logger    *slog.Logger
}

// Server exposes the farm over HTTP.
type Server struct {
	svc      FarmService
	history  HistoryReader
	observer RequestObserver
	metrics  http.Handler
	auth     *Authenticator
	limiter  *RateLimiter
	logger   *slog.Logger
	router   http.Handler
}

// New constructs the router.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("farmd server: service must not be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	srv := &Server{
		svc:      cfg.Service,
		history:  cfg.History,
		observer: cfg.Observer,
		metrics:  cfg.Metrics,
		auth:     NewAuthenticator(cfg.Auth, cfg.Logger),
		limiter:  NewRateLimiter(cfg.RateLimit),
		logger:   cfg.Logger,
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)
	r.Use(s.limiter.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/v1", func(api chi.Router) {
		api.Get("/farm", s.handleGlobals)
		api.Get("/pools", s.handlePools)
		api.Get("/pools/{pid}", s.handlePool)
		api.Get("/pools/{pid}/users/{addr}", s.handlePosition)
		api.Get("/history/{addr}", s.handleHistory)

		api.Group(func(user chi.Router) {
			user.Use(s.auth.Middleware(ScopeUser))
			user.Post("/pools/{pid}/deposit", s.handleDeposit)
			user.Post("/pools/{pid}/withdraw", s.handleWithdraw)
			user.Post("/pools/{pid}/harvest", s.handleHarvest)
			user.Post("/pools/{pid}/emergency-withdraw", s.handleEmergencyWithdraw)
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(s.auth.Middleware(ScopeAdmin))
			admin.Post("/pools", s.handleAddPool)
			admin.Post("/pools/{pid}", s.handleSetPool)
			admin.Post("/pools/{pid}/fee", s.handleSetFee)
			admin.Post("/pools/{pid}/claim-yield", s.handleClaimYield)
			admin.Post("/mining/start", s.handleStartMining)
			admin.Post("/pause/{module}", s.handlePause)
			admin.Post("/resume/{module}", s.handleResume)
		})
	})
	return r
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type amountResponse struct {
	Amount string `json:"amount"`
}

type addPoolRequest struct {
	Asset           string `json:"asset"`
	Kind            string `json:"kind"`
	Weight          uint64 `json:"weight"`
	WithdrawFeeRate uint64 `json:"withdrawFeeRate"`
	Strategy        string `json:"strategy"`
}

type setPoolRequest struct {
	Weight uint64 `json:"weight"`
}

type setFeeRequest struct {
	Rate uint64 `json:"rate"`
}

type claimYieldRequest struct {
	To string `json:"to"`
}

type startMiningRequest struct {
	StartTime uint64 `json:"startTime"`
}

func (s *Server) handleGlobals(w http.ResponseWriter, _ *http.Request) {
	view, err := s.svc.Globals()
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePools(w http.ResponseWriter, _ *http.Request) {
	pools, err := s.svc.Pools()
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pools)
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	pid, ok := poolParam(w, r)
	if !ok {
		return
	}
	view, err := s.svc.Pool(pid)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	pid, ok := poolParam(w, r)
	if !ok {
		return
	}
	user, err := crypto.DecodeAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid address: %w", err))
		return
	}
	view, err := s.svc.Position(pid, user)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, errors.New("history not enabled"))
		return
	}
	user, err := crypto.DecodeAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid address: %w", err))
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
	}
	records, err := s.history.ForUser(r.Context(), user.String(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.userAmountCall(w, r, s.svc.Deposit)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.userAmountCall(w, r, s.svc.Withdraw)
}

func (s *Server) handleHarvest(w http.ResponseWriter, r *http.Request) {
	s.userCall(w, r, s.svc.Harvest)
}

func (s *Server) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	s.userCall(w, r, s.svc.EmergencyWithdraw)
}

func (s *Server) userAmountCall(w http.ResponseWriter, r *http.Request, call func(crypto.Address, uint64, *big.Int) (*big.Int, error)) {
	principal, pid, ok := s.callerAndPool(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !decode(w, r, &req) {
		return
	}
	amount, err := farmconfig.ParseAmount(req.Amount)
	if err != nil || amount.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("amount must be a positive integer"))
		return
	}
	out, err := call(principal.Account, pid, amount)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: out.String()})
}

func (s *Server) userCall(w http.ResponseWriter, r *http.Request, call func(crypto.Address, uint64) (*big.Int, error)) {
	principal, pid, ok := s.callerAndPool(w, r)
	if !ok {
		return
	}
	out, err := call(principal.Account, pid)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: out.String()})
}

func (s *Server) handleAddPool(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var req addPoolRequest
	if !decode(w, r, &req) {
		return
	}
	pool := farmconfig.Pool{
		Asset:           strings.ToUpper(strings.TrimSpace(req.Asset)),
		Kind:            strings.ToLower(strings.TrimSpace(req.Kind)),
		Weight:          req.Weight,
		WithdrawFeeRate: req.WithdrawFeeRate,
		Strategy:        strings.ToLower(strings.TrimSpace(req.Strategy)),
	}
	if pool.Kind == "" {
		pool.Kind = farm.PoolToken.String()
		if pool.Asset == farmconfig.NativeSymbol {
			pool.Kind = farm.PoolNative.String()
		}
	}
	if pool.Asset == "" {
		writeError(w, http.StatusBadRequest, errors.New("asset is required"))
		return
	}
	if _, err := farm.ParsePoolKind(pool.Kind); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if pool.Strategy != "" && pool.Strategy != "custody" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown strategy %q", pool.Strategy))
		return
	}
	if pool.WithdrawFeeRate > farm.MaxWithdrawFeeRate {
		writeError(w, http.StatusBadRequest, errors.New("withdrawFeeRate exceeds 1000 permille"))
		return
	}
	pid, err := s.svc.AddPool(principal.Account, pool)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"pid": pid})
}

func (s *Server) handleSetPool(w http.ResponseWriter, r *http.Request) {
	principal, pid, ok := s.callerAndPool(w, r)
	if !ok {
		return
	}
	var req setPoolRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.svc.SetPool(principal.Account, pid, req.Weight); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetFee(w http.ResponseWriter, r *http.Request) {
	principal, pid, ok := s.callerAndPool(w, r)
	if !ok {
		return
	}
	var req setFeeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Rate > farm.MaxWithdrawFeeRate {
		writeError(w, http.StatusBadRequest, errors.New("rate exceeds 1000 permille"))
		return
	}
	if err := s.svc.SetWithdrawFee(principal.Account, pid, req.Rate); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClaimYield(w http.ResponseWriter, r *http.Request) {
	principal, pid, ok := s.callerAndPool(w, r)
	if !ok {
		return
	}
	var req claimYieldRequest
	if !decode(w, r, &req) {
		return
	}
	recipient := principal.Account
	if strings.TrimSpace(req.To) != "" {
		decoded, err := crypto.DecodeAddress(strings.TrimSpace(req.To))
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid recipient: %w", err))
			return
		}
		recipient = decoded
	}
	claimed, err := s.svc.ClaimYield(principal.Account, pid, recipient)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: claimed.String()})
}

func (s *Server) handleStartMining(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var req startMiningRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.svc.StartMining(principal.Account, req.StartTime); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	if err := s.svc.Pause(principal.Account, chi.URLParam(r, "module")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	if err := s.svc.Resume(principal.Account, chi.URLParam(r, "module")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) callerAndPool(w http.ResponseWriter, r *http.Request) (Principal, uint64, bool) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing identity"))
		return Principal{}, 0, false
	}
	pid, ok := poolParam(w, r)
	return principal, pid, ok
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("farmd: request failed", "error", err)
	}
	writeError(w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, farm.ErrUnauthorized), errors.Is(err, vault.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, farm.ErrPoolNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, farm.ErrDuplicatePool),
		errors.Is(err, farm.ErrMiningStarted),
		errors.Is(err, farm.ErrMiningNotStarted),
		errors.Is(err, common.ErrReentrantCall):
		return http.StatusConflict
	case errors.Is(err, farm.ErrInsufficientStake),
		errors.Is(err, vault.ErrInsufficientPrincipal),
		errors.Is(err, bank.ErrInsufficientBalance),
		errors.Is(err, bank.ErrInsufficientAllowance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, farm.ErrZeroAddress),
		errors.Is(err, farm.ErrInvalidWeight),
		errors.Is(err, vault.ErrZeroAddress),
		errors.Is(err, bank.ErrUnknownToken),
		errors.Is(err, common.ErrUnknownModule):
		return http.StatusBadRequest
	case errors.Is(err, vault.ErrStrategyFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func poolParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	pid, err := strconv.ParseUint(chi.URLParam(r, "pid"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid pool id"))
		return 0, false
	}
	return pid, true
}

func decode(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid payload"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// RequestIDHeader carries the per-request identifier.
const RequestIDHeader = "X-Request-ID"

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), chimw.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		if s.observer != nil {
			s.observer.ObserveRequest(route, r.Method, status, elapsed)
		}
		s.logger.Debug("farmd: request",
			"method", r.Method,
			"route", route,
			"status", status,
			"durationMs", elapsed.Milliseconds(),
			"requestId", chimw.GetReqID(r.Context()))
	})
}
