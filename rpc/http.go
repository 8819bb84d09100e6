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
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"proofpay/audit"
	"proofpay/native/approval"
	"proofpay/native/token"
	"proofpay/observability/metrics"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeDuplicateProof = -32010
	codeRateLimited    = -32020
	codeRejected       = -32030
	codeNotFound       = -32040
)

type Server struct {
	registry *approval.Registry
	engine   *token.Engine
	trail    *audit.Store
	logger   *slog.Logger

	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	rps       rate.Limit
	burst     int
	authToken string
	nowFn     func() int64
}

// NewServer wires the approval registry and the settlement engine behind the
// JSON-RPC surface. The auth token for mutating methods is read from the
// PROOFPAY_RPC_TOKEN environment variable.
func NewServer(registry *approval.Registry, engine *token.Engine, trail *audit.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		registry:  registry,
		engine:    engine,
		trail:     trail,
		logger:    logger,
		limiters:  make(map[string]*rate.Limiter),
		rps:       rate.Limit(50),
		burst:     100,
		authToken: strings.TrimSpace(os.Getenv("PROOFPAY_RPC_TOKEN")),
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetRateLimit overrides the per-source request budget. A zero rps disables
// limiting.
func (s *Server) SetRateLimit(rps float64, burst int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rps = rate.Limit(rps)
	s.burst = burst
	s.limiters = make(map[string]*rate.Limiter)
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (s *Server) SetNowFunc(now func() int64) {
	if now == nil {
		return
	}
	s.nowFn = now
}

// Handler returns the http handler serving the JSON-RPC endpoint.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handle)
}

func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", slog.String("addr", addr))
	return http.ListenAndServe(addr, s.Handler())
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

// handle is the main request handler that routes to specific handlers.
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

	source := clientSource(r)
	if !s.allowSource(source) {
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "request rate limit exceeded", source)
		return
	}

	switch req.Method {
	case "approval_admit":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleApprovalAdmit(w, r, req)
	case "approval_consume":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleApprovalConsume(w, r, req)
	case "approval_count":
		s.handleApprovalCount(w, r, req)
	case "approval_isConsumed":
		s.handleApprovalIsConsumed(w, r, req)
	case "approval_issuer":
		s.handleApprovalIssuer(w, r, req)
	case "approval_history":
		s.handleApprovalHistory(w, r, req)
	case "approval_auditExport":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleAuditExport(w, r, req)
	case "token_balance":
		s.handleTokenBalance(w, r, req)
	case "token_credit":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleTokenCredit(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
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

func (s *Server) allowSource(source string) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rps == 0 {
		return true
	}
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(s.rps, s.burst)
		s.limiters[source] = limiter
	}
	return limiter.Allow()
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rejectionReason labels admission failures for the rejection counter.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, approval.ErrMalformedInput):
		return "malformed"
	case errors.Is(err, approval.ErrInconsistentPublicInputs):
		return "inconsistent"
	case errors.Is(err, approval.ErrInvalidApprovalData):
		return "invalid_data"
	case errors.Is(err, approval.ErrScalingOverflow):
		return "overflow"
	case errors.Is(err, approval.ErrProofAlreadyUsed):
		return "replay"
	case errors.Is(err, approval.ErrProofVerificationFailed):
		return "verification"
	case errors.Is(err, approval.ErrCallerNotIssuer):
		return "caller"
	default:
		return "unknown"
	}
}

func admissionErrorCode(err error) int {
	switch {
	case errors.Is(err, approval.ErrProofAlreadyUsed):
		return codeDuplicateProof
	case errors.Is(err, approval.ErrCallerNotIssuer), errors.Is(err, approval.ErrCallerNotToken):
		return codeUnauthorized
	default:
		return codeRejected
	}
}

func observeRejection(err error) {
	metrics.Approval().ObserveRejection(rejectionReason(err))
}
