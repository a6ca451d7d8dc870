package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"nftbank/core"
	"nftbank/explorer"
	"nftbank/native/bank"
	"nftbank/native/collection"
	"nftbank/native/guard"
	"nftbank/native/mint"
	"nftbank/native/swap"
	"nftbank/native/token"
	"nftbank/observability"
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
)

// Server exposes the node over JSON-RPC. Administrative methods require the
// bearer token from NFTBANK_RPC_TOKEN in addition to an owner caller.
type Server struct {
	node      *core.Node
	index     *explorer.Index
	authToken string
}

// NewServer builds a server around the node. index may be nil when event
// queries are not served.
func NewServer(node *core.Node, index *explorer.Index) *Server {
	token := strings.TrimSpace(os.Getenv("NFTBANK_RPC_TOKEN"))
	return &Server{node: node, index: index, authToken: token}
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

// moduleError translates an engine failure into its HTTP status and RPC code.
func moduleError(err error) (int, int) {
	switch {
	case errors.Is(err, core.ErrNotOwner),
		errors.Is(err, core.ErrNotPendingOwner),
		errors.Is(err, bank.ErrUnauthorized),
		errors.Is(err, mint.ErrUnauthorized),
		errors.Is(err, collection.ErrUnauthorized):
		return http.StatusForbidden, codeUnauthorized
	case errors.Is(err, bank.ErrInactive),
		errors.Is(err, mint.ErrInactive),
		errors.Is(err, bank.ErrProhibited),
		errors.Is(err, collection.ErrProhibited):
		return http.StatusConflict, codeServerError
	case errors.Is(err, bank.ErrLimitExceeded),
		errors.Is(err, mint.ErrLimitExceeded),
		errors.Is(err, collection.ErrLimitExceeded),
		errors.Is(err, bank.ErrZeroInput),
		errors.Is(err, mint.ErrZeroInput),
		errors.Is(err, collection.ErrZeroInput),
		errors.Is(err, bank.ErrZeroAddress),
		errors.Is(err, collection.ErrZeroAddress),
		errors.Is(err, core.ErrZeroAddress),
		errors.Is(err, token.ErrZeroAddress),
		errors.Is(err, token.ErrZeroAmount),
		errors.Is(err, guard.ErrZeroInput),
		errors.Is(err, guard.ErrDeviationOutOfRange):
		return http.StatusBadRequest, codeInvalidParams
	case errors.Is(err, guard.ErrPriceDeviationExceeded),
		errors.Is(err, swap.ErrDeadlineExpired),
		errors.Is(err, swap.ErrExcessiveInput),
		errors.Is(err, swap.ErrInsufficientLiquidity),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance):
		return http.StatusUnprocessableEntity, codeServerError
	case errors.Is(err, collection.ErrUnknownUnit):
		return http.StatusNotFound, codeServerError
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

func writeModuleError(w http.ResponseWriter, id interface{}, err error) int {
	status, code := moduleError(err)
	writeError(w, status, id, code, err.Error(), nil)
	return status
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

// ServeHTTP parses the JSON-RPC envelope and routes to the method handlers.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	module, handler, authed := s.route(req.Method)
	if handler == nil {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}
	if authed {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			observability.Metrics().ObserveRequest(module, req.Method, http.StatusUnauthorized, 0)
			return
		}
	}

	start := time.Now()
	status := handler(w, req)
	observability.Metrics().ObserveRequest(module, req.Method, status, time.Since(start))
}

type handlerFunc func(w http.ResponseWriter, req *RPCRequest) int

// route maps a method name to its module label, handler, and whether the
// bearer token is required.
func (s *Server) route(method string) (string, handlerFunc, bool) {
	switch method {
	case "bank_deposit":
		return "bank", s.handleBankDeposit, false
	case "bank_withdraw":
		return "bank", s.handleBankWithdraw, false
	case "bank_withdrawWithSecondary":
		return "bank", s.handleBankWithdrawWithSecondary, false
	case "bank_info":
		return "bank", s.handleBankInfo, false
	case "bank_activate":
		return "bank", s.handleBankActivate, true
	case "bank_setMaxPerTransaction":
		return "bank", s.handleBankSetMaxPerTransaction, true
	case "mint_create":
		return "mint", s.handleMintCreate, false
	case "mint_createWithSecondary":
		return "mint", s.handleMintCreateWithSecondary, false
	case "mint_info":
		return "mint", s.handleMintInfo, false
	case "mint_flipSaleState":
		return "mint", s.handleMintFlipSaleState, true
	case "guard_params":
		return "guard", s.handleGuardParams, false
	case "guard_setLookbackSeconds":
		return "guard", s.handleGuardSetLookbackSeconds, true
	case "guard_setDeviationBps":
		return "guard", s.handleGuardSetDeviationBps, true
	case "collection_tokenURI":
		return "collection", s.handleCollectionTokenURI, false
	case "collection_info":
		return "collection", s.handleCollectionInfo, false
	case "collection_cutSupply":
		return "collection", s.handleCollectionCutSupply, true
	case "collection_setBaseURI":
		return "collection", s.handleCollectionSetBaseURI, true
	case "collection_setContractURI":
		return "collection", s.handleCollectionSetContractURI, true
	case "token_balance":
		return "token", s.handleTokenBalance, false
	case "owner_get":
		return "owner", s.handleOwnerGet, false
	case "owner_transfer":
		return "owner", s.handleOwnerTransfer, true
	case "owner_accept":
		return "owner", s.handleOwnerAccept, false
	case "explorer_listEvents":
		return "explorer", s.handleExplorerListEvents, false
	default:
		return "", nil, false
	}
}
