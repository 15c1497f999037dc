package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"stayer/core"
	"stayer/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	clientRateLimit = rate.Limit(20)
	clientRateBurst = 40
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

// Server exposes the protocol engines over JSON-RPC plus health and metrics
// endpoints. Mutating methods require the bearer token; every client address
// is rate limited independently.
type Server struct {
	node      *core.Node
	authToken string
	logger    *slog.Logger
	metrics   *observability.RPCMetrics

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewServer creates an RPC server over the node. An empty auth token disables
// the mutating-method check, intended only for tests.
func NewServer(node *core.Node, authToken string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		node:      node,
		authToken: strings.TrimSpace(authToken),
		logger:    logger,
		metrics:   observability.Metrics(),
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Router assembles the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return r
}

// Start serves the router until the listener fails.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", "addr", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}

// RPCRequest is a single JSON-RPC 2.0 call.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

// writeEngineError maps engine failures onto a server-error response carrying
// the sentinel text so callers can branch on the specific failure.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	writeError(w, http.StatusOK, id, codeServerError, err.Error(), nil)
}

func (s *Server) limiterFor(client string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[client]
	if !ok {
		limiter = rate.NewLimiter(clientRateLimit, clientRateBurst)
		s.limiters[client] = limiter
	}
	return limiter
}

func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return &RPCError{Code: codeUnauthorized, Message: "bearer token required"}
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid token"}
	}
	return nil
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest)

type methodSpec struct {
	handler handlerFunc
	auth    bool
}

func (s *Server) methods() map[string]methodSpec {
	return map[string]methodSpec{
		"oracle_getPrice":           {handler: s.handleOracleGetPrice},
		"oracle_getLatestPriceData": {handler: s.handleOracleLatestPriceData},
		"oracle_isPriceStale":       {handler: s.handleOracleIsPriceStale},
		"oracle_getPriceAge":        {handler: s.handleOracleGetPriceAge},
		"oracle_getMaxAge":          {handler: s.handleOracleGetMaxAge},
		"oracle_updatePrice":        {handler: s.handleOracleUpdatePrice, auth: true},
		"oracle_fetchFromFeed":      {handler: s.handleOracleFetchFromFeed, auth: true},
		"oracle_setMaxAge":          {handler: s.handleOracleSetMaxAge, auth: true},
		"oracle_setFallbackPrice":   {handler: s.handleOracleSetFallbackPrice, auth: true},
		"oracle_setUseFallback":     {handler: s.handleOracleSetUseFallback, auth: true},
		"oracle_setFeedAddress":     {handler: s.handleOracleSetFeedAddress, auth: true},
		"oracle_addUpdater":         {handler: s.handleOracleAddUpdater, auth: true},
		"oracle_removeUpdater":      {handler: s.handleOracleRemoveUpdater, auth: true},

		"registry_updateValidators": {handler: s.handleRegistryUpdateValidators, auth: true},
		"registry_getValidator":     {handler: s.handleRegistryGetValidator},
		"registry_getNetworkPAvg":   {handler: s.handleRegistryGetNetworkPAvg},
		"registry_getLastUpdateEra": {handler: s.handleRegistryGetLastUpdateEra},
		"registry_isValid":          {handler: s.handleRegistryIsValid},
		"registry_setKeeper":        {handler: s.handleRegistrySetKeeper, auth: true},

		"staking_stake":                   {handler: s.handleStakingStake, auth: true},
		"staking_unstake":                 {handler: s.handleStakingUnstake, auth: true},
		"staking_claim":                   {handler: s.handleStakingClaim, auth: true},
		"staking_harvestRewards":          {handler: s.handleStakingHarvest, auth: true},
		"staking_getExchangeRate":         {handler: s.handleStakingExchangeRate},
		"staking_getTotalStaked":          {handler: s.handleStakingTotalStaked},
		"staking_getStats":                {handler: s.handleStakingStats},
		"staking_getStakeOf":              {handler: s.handleStakingStakeOf},
		"staking_pendingDelegations":      {handler: s.handleStakingPendingDelegations},
		"staking_pendingUndelegations":    {handler: s.handleStakingPendingUndelegations},
		"staking_withdrawForDelegation":   {handler: s.handleStakingWithdrawForDelegation, auth: true},
		"staking_confirmDelegation":       {handler: s.handleStakingConfirmDelegation, auth: true},
		"staking_confirmUndelegation":     {handler: s.handleStakingConfirmUndelegation, auth: true},
		"staking_depositFromUndelegation": {handler: s.handleStakingDepositFromUndelegation, auth: true},
		"staking_setKeeper":               {handler: s.handleStakingSetKeeper, auth: true},

		"vault_deposit":         {handler: s.handleVaultDeposit, auth: true},
		"vault_borrow":          {handler: s.handleVaultBorrow, auth: true},
		"vault_repay":           {handler: s.handleVaultRepay, auth: true},
		"vault_withdraw":        {handler: s.handleVaultWithdraw, auth: true},
		"vault_liquidate":       {handler: s.handleVaultLiquidate, auth: true},
		"vault_getPosition":     {handler: s.handleVaultGetPosition},
		"vault_getHealthFactor": {handler: s.handleVaultHealthFactor},
		"vault_isLiquidatable":  {handler: s.handleVaultIsLiquidatable},
		"vault_getStats":        {handler: s.handleVaultStats},
		"vault_getParams":       {handler: s.handleVaultParams},
		"vault_getTotalDebt":    {handler: s.handleVaultTotalDebt},
		"vault_setParams":       {handler: s.handleVaultSetParams, auth: true},
		"vault_setOracle":       {handler: s.handleVaultSetOracle, auth: true},
		"vault_pause":           {handler: s.handleVaultPause, auth: true},
		"vault_unpause":         {handler: s.handleVaultUnpause, auth: true},

		"node_getEvents": {handler: s.handleNodeGetEvents},
		"node_setPaused": {handler: s.handleNodeSetPaused, auth: true},
	}
}

// handle is the main request handler that routes to method handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()
	w.Header().Set("Content-Type", "application/json")

	if !s.limiterFor(clientAddress(r)).Allow() {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	spec, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}
	if spec.auth {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}

	started := time.Now()
	recorder := &statusRecorder{ResponseWriter: w}
	spec.handler(recorder, r, req)
	outcome := "ok"
	if recorder.failed {
		outcome = "error"
	}
	s.metrics.ObserveRequest(req.Method, outcome, time.Since(started))
}

// statusRecorder lets the dispatcher observe whether a handler wrote an error
// status without threading a return value through every handler.
type statusRecorder struct {
	http.ResponseWriter
	failed bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if status >= http.StatusBadRequest {
		r.failed = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func singleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected exactly one parameter object")
	}
	return json.Unmarshal(req.Params[0], out)
}
