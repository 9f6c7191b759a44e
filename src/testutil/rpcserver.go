package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// RPCError is the error object a fake method answers with.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// HTTPStatus as a handler result makes the server answer with that status and an empty body.
type HTTPStatus int

// DropConnection as a handler result closes the connection after reading the request.
type DropConnection struct{}

// RPCHandler serves one JSON-RPC method. A nil result with a nil error answers null.
type RPCHandler func(params json.RawMessage) (any, *RPCError)

// RPCServer is an in-process JSON-RPC endpoint for exercising the real clients.
type RPCServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]RPCHandler
	calls    map[string]int
	params   map[string][]json.RawMessage
}

func NewRPCServer(t *testing.T, handlers map[string]RPCHandler) *RPCServer {
	t.Helper()

	s := &RPCServer{
		handlers: handlers,
		calls:    make(map[string]int),
		params:   make(map[string][]json.RawMessage),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Handle replaces the handler for method.
func (s *RPCServer) Handle(method string, h RPCHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Calls returns how many requests for method were received.
func (s *RPCServer) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// Params returns the raw params of every request received for method.
func (s *RPCServer) Params(method string) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]json.RawMessage(nil), s.params[method]...)
}

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (s *RPCServer) serve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.calls[req.Method]++
	s.params[req.Method] = append(s.params[req.Method], req.Params)
	h, ok := s.handlers[req.Method]
	s.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = &RPCError{Code: -32601, Message: "the method " + req.Method + " does not exist/is not available"}
		writeJSON(w, resp)
		return
	}

	result, rpcErr := h(req.Params)
	switch v := result.(type) {
	case HTTPStatus:
		w.WriteHeader(int(v))
		return
	case DropConnection:
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				conn.Close()
				return
			}
		}
		panic(http.ErrAbortHandler)
	}

	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
