package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"bondchain/core"
	"bondchain/observability"
	"bondchain/rpc/modules"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	rateLimitWindow = time.Minute
	maxTxPerWindow  = 60
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeUnauthorized   = -32001
	codeRateLimited    = -32020
)

type rateLimiter struct {
	count       int
	windowStart time.Time
}

type Server struct {
	node *core.Node

	mu           sync.Mutex
	rateLimiters map[string]*rateLimiter
	limiterSweep time.Time
	authToken    string

	registry *modules.RegistryModule
	oracle   *modules.OracleModule
	vault    *modules.VaultModule
	bond     *modules.BondModule
	ledger   *modules.LedgerModule

	routes map[string]methodSpec
}

func NewServer(node *core.Node, authToken string) *Server {
	s := &Server{
		node:         node,
		rateLimiters: make(map[string]*rateLimiter),
		authToken:    strings.TrimSpace(authToken),
		registry:     modules.NewRegistryModule(node),
		oracle:       modules.NewOracleModule(node),
		vault:        modules.NewVaultModule(node),
		bond:         modules.NewBondModule(node),
		ledger:       modules.NewLedgerModule(node),
	}
	s.routes = s.methods()
	return s
}

func (s *Server) Start(addr string) error {
	fmt.Printf("Starting JSON-RPC server on %s\n", addr)
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return http.ListenAndServe(addr, mux)
}

// Handler returns the server's HTTP handler for embedding in tests or a
// custom listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return mux
}

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
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// methodSpec binds one JSON-RPC method name to its handler. Mutations require
// a bearer token and count against the per-source rate limit.
type methodSpec struct {
	module   string
	mutation bool
	handler  func(json.RawMessage) (interface{}, *modules.ModuleError)
}

func (s *Server) methods() map[string]methodSpec {
	wrapBool := func(fn func(json.RawMessage) (bool, *modules.ModuleError)) func(json.RawMessage) (interface{}, *modules.ModuleError) {
		return func(raw json.RawMessage) (interface{}, *modules.ModuleError) {
			ok, err := fn(raw)
			return ok, err
		}
	}
	wrapString := func(fn func(json.RawMessage) (string, *modules.ModuleError)) func(json.RawMessage) (interface{}, *modules.ModuleError) {
		return func(raw json.RawMessage) (interface{}, *modules.ModuleError) {
			result, err := fn(raw)
			return result, err
		}
	}
	noParams := func(fn func() (interface{}, *modules.ModuleError)) func(json.RawMessage) (interface{}, *modules.ModuleError) {
		return func(json.RawMessage) (interface{}, *modules.ModuleError) {
			return fn()
		}
	}

	return map[string]methodSpec{
		// policy registry
		"registry_listCollateral":              {module: "registry", mutation: true, handler: wrapBool(s.registry.ListCollateral)},
		"registry_listBond":                    {module: "registry", mutation: true, handler: wrapBool(s.registry.ListBond)},
		"registry_setCollateralizationRatio":   {module: "registry", mutation: true, handler: wrapBool(s.registry.SetCollateralizationRatio)},
		"registry_setLiquidationIncentive":     {module: "registry", mutation: true, handler: wrapBool(s.registry.SetLiquidationIncentive)},
		"registry_setDebtCeiling":              {module: "registry", mutation: true, handler: wrapBool(s.registry.SetDebtCeiling)},
		"registry_setBorrowAllowed":            {module: "registry", mutation: true, handler: wrapBool(s.registry.SetBorrowAllowed)},
		"registry_setDepositCollateralAllowed": {module: "registry", mutation: true, handler: wrapBool(s.registry.SetDepositCollateralAllowed)},
		"registry_setLiquidateBorrowAllowed":   {module: "registry", mutation: true, handler: wrapBool(s.registry.SetLiquidateBorrowAllowed)},
		"registry_setRepayBorrowAllowed":       {module: "registry", mutation: true, handler: wrapBool(s.registry.SetRepayBorrowAllowed)},
		"registry_setMaxBonds":                 {module: "registry", mutation: true, handler: wrapBool(s.registry.SetMaxBonds)},
		"registry_getBond": {module: "registry", handler: func(raw json.RawMessage) (interface{}, *modules.ModuleError) {
			return s.registry.GetBond(raw)
		}},
		"registry_getCollateral": {module: "registry", handler: func(raw json.RawMessage) (interface{}, *modules.ModuleError) {
			return s.registry.GetCollateral(raw)
		}},
		"registry_listBonds": {module: "registry", handler: noParams(func() (interface{}, *modules.ModuleError) {
			return s.registry.BondList()
		})},
		"registry_listCollaterals": {module: "registry", handler: noParams(func() (interface{}, *modules.ModuleError) {
			return s.registry.CollateralList()
		})},
		"registry_maxBonds": {module: "registry", handler: noParams(func() (interface{}, *modules.ModuleError) {
			return s.registry.MaxBonds()
		})},

		// oracle
		"oracle_setFeed":     {module: "oracle", mutation: true, handler: wrapBool(s.oracle.SetFeed)},
		"oracle_deleteFeed":  {module: "oracle", mutation: true, handler: wrapBool(s.oracle.DeleteFeed)},
		"oracle_submitPrice": {module: "oracle", mutation: true, handler: wrapBool(s.oracle.SubmitPrice)},
		"oracle_getPrice":    {module: "oracle", handler: wrapString(s.oracle.GetPrice)},
		"oracle_getFeed": {module: "oracle", handler: func(raw json.RawMessage) (interface{}, *modules.ModuleError) {
			return s.oracle.GetFeed(raw)
		}},
		"oracle_listFeeds": {module: "oracle", handler: noParams(func() (interface{}, *modules.ModuleError) {
			return s.oracle.Symbols()
		})},

		// vault ledger
		"vault_open":               {module: "vault", mutation: true, handler: wrapBool(s.vault.Open)},
		"vault_depositCollateral":  {module: "vault", mutation: true, handler: wrapBool(s.vault.DepositCollateral)},
		"vault_withdrawCollateral": {module: "vault", mutation: true, handler: wrapBool(s.vault.WithdrawCollateral)},
		"vault_lockCollateral":     {module: "vault", mutation: true, handler: wrapBool(s.vault.LockCollateral)},
		"vault_freeCollateral":     {module: "vault", mutation: true, handler: wrapBool(s.vault.FreeCollateral)},
		"vault_get": {module: "vault", handler: func(raw json.RawMessage) (interface{}, *modules.ModuleError) {
			return s.vault.Get(raw)
		}},
		"vault_list": {module: "vault", handler: func(raw json.RawMessage) (interface{}, *modules.ModuleError) {
			return s.vault.List(raw)
		}},
		"vault_hypotheticalCollateralizationRatio": {module: "vault", handler: wrapString(s.vault.HypotheticalCollateralizationRatio)},
		"vault_clutchableCollateral":               {module: "vault", handler: wrapString(s.vault.ClutchableCollateral)},
		"vault_isUnderwater":                       {module: "vault", handler: wrapBool(s.vault.IsUnderwater)},

		// bond controller and token ledger
		"bond_borrow":            {module: "bond", mutation: true, handler: wrapBool(s.bond.Borrow)},
		"bond_repayBorrow":       {module: "bond", mutation: true, handler: wrapBool(s.bond.RepayBorrow)},
		"bond_repayBorrowBehalf": {module: "bond", mutation: true, handler: wrapBool(s.bond.RepayBorrowBehalf)},
		"bond_liquidateBorrow":   {module: "bond", mutation: true, handler: wrapBool(s.bond.LiquidateBorrow)},
		"bond_transfer":          {module: "bond", mutation: true, handler: wrapBool(s.bond.Transfer)},
		"bond_getToken": {module: "bond", handler: func(raw json.RawMessage) (interface{}, *modules.ModuleError) {
			return s.bond.Token(raw)
		}},
		"bond_listTokens": {module: "bond", handler: noParams(func() (interface{}, *modules.ModuleError) {
			return s.bond.Tokens()
		})},
		"bond_balanceOf": {module: "bond", handler: wrapString(s.bond.BalanceOf)},

		// token ledger and node administration
		"ledger_mintToken": {module: "ledger", mutation: true, handler: wrapBool(s.ledger.MintToken)},
		"ledger_getAccount": {module: "ledger", handler: func(raw json.RawMessage) (interface{}, *modules.ModuleError) {
			return s.ledger.GetAccount(raw)
		}},
		"ledger_listTokens": {module: "ledger", handler: noParams(func() (interface{}, *modules.ModuleError) {
			return s.ledger.TokenList()
		})},
		"ledger_setModulePaused": {module: "ledger", mutation: true, handler: wrapBool(s.ledger.SetModulePaused)},
		"ledger_events": {module: "ledger", handler: noParams(func() (interface{}, *modules.ModuleError) {
			return s.ledger.Events()
		})},
	}
}

// handle is the main request handler that routes to module handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

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

	spec, ok := s.routes[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}

	if spec.mutation {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		if !s.allowSource(clientSource(r), time.Now()) {
			observability.ModuleMetrics().RecordThrottle(spec.module, "rate_limit")
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
			return
		}
	}

	var params json.RawMessage
	if len(req.Params) > 0 {
		params = req.Params[0]
	} else {
		params = json.RawMessage("{}")
	}

	started := time.Now()
	result, moduleErr := spec.handler(params)
	status := http.StatusOK
	if moduleErr != nil {
		status = moduleErr.HTTPStatus
	}
	observability.ModuleMetrics().Observe(spec.module, req.Method, status, time.Since(started))

	if moduleErr != nil {
		writeError(w, moduleErr.HTTPStatus, req.ID, moduleErr.Code, moduleErr.Message, moduleErr.Data)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) allowSource(source string, now time.Time) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Drop sources whose window has lapsed so the map does not grow with
	// every address a client rotates through.
	if now.Sub(s.limiterSweep) >= rateLimitWindow {
		for key, limiter := range s.rateLimiters {
			if now.Sub(limiter.windowStart) >= rateLimitWindow {
				delete(s.rateLimiters, key)
			}
		}
		s.limiterSweep = now
	}

	limiter, ok := s.rateLimiters[source]
	if !ok {
		limiter = &rateLimiter{windowStart: now}
		s.rateLimiters[source] = limiter
	}
	if now.Sub(limiter.windowStart) >= rateLimitWindow {
		limiter.windowStart = now
		limiter.count = 0
	}
	if limiter.count >= maxTxPerWindow {
		return false
	}
	limiter.count++
	return true
}

func clientSource(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
