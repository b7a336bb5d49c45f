package web

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/sweeney/verbot/internal/controller"
	"github.com/sweeney/verbot/internal/logic"
)

// MethodAction is the only JSON-RPC method served.
const MethodAction = "verbot_action"

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeBusy           = -32000
	CodeNotRunning     = -32001
)

// maxRequestBytes bounds a JSON-RPC request body.
const maxRequestBytes = 4096

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// ActionParams are the named parameters of verbot_action.
type ActionParams struct {
	Action string `json:"action"`
}

// Requester accepts action requests by name.
type Requester interface {
	RequestAction(ctx context.Context, name string) error
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		writeRPC(w, http.StatusOK, Response{Error: &Error{Code: CodeParseError, Message: "parse error"}})
		return
	}

	resp := Response{ID: req.ID}
	status := http.StatusOK

	switch {
	case req.JSONRPC != "2.0":
		resp.Error = &Error{Code: CodeInvalidRequest, Message: "invalid request"}
	case req.Method != MethodAction:
		resp.Error = &Error{Code: CodeMethodNotFound, Message: "method not found"}
	case s.limiter != nil && !s.limiter.Allow():
		resp.Error = &Error{Code: CodeBusy, Message: "busy"}
		status = http.StatusTooManyRequests
	default:
		resp.Result, resp.Error = s.callAction(r.Context(), req.Params)
	}

	writeRPC(w, status, resp)
}

func (s *Server) callAction(ctx context.Context, raw json.RawMessage) (any, *Error) {
	var params ActionParams
	if len(raw) == 0 || json.Unmarshal(raw, &params) != nil || params.Action == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid params"}
	}
	if s.requester == nil {
		return nil, &Error{Code: CodeNotRunning, Message: "not running"}
	}

	err := s.requester.RequestAction(ctx, params.Action)
	switch {
	case err == nil:
		log.Printf("rpc: %s %s", MethodAction, params.Action)
		return "ok", nil
	case errors.Is(err, logic.ErrUnknownAction):
		return nil, &Error{Code: CodeInvalidParams, Message: "unknown action"}
	case errors.Is(err, controller.ErrNotRunning):
		return nil, &Error{Code: CodeNotRunning, Message: "not running"}
	}
	log.Printf("rpc: %s %s: %v", MethodAction, params.Action, err)
	return nil, &Error{Code: CodeInternalError, Message: err.Error()}
}

func writeRPC(w http.ResponseWriter, status int, resp Response) {
	resp.JSONRPC = "2.0"
	if resp.ID == nil {
		resp.ID = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
