package erc4337

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// RPCError is a JSON-RPC error object returned by a sponsor or bundler. Receiving
// one means the request was delivered and answered: the remote refused it.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

func (e *RPCError) ErrorCode() int { return e.Code }

// TransportError is a failure to obtain any JSON-RPC answer.
//
// Delivered reports whether the request may have reached the remote. It is false
// only when the connection could not be established, which makes a resend safe.
type TransportError struct {
	Method    string
	Delivered bool
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport failure: %v", e.Method, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AsRPCError extracts the JSON-RPC error object from err, including the error
// types produced by the go-ethereum rpc client.
func AsRPCError(err error) (*RPCError, bool) {
	var own *RPCError
	if errors.As(err, &own) {
		return own, true
	}
	var gethErr rpc.Error
	if errors.As(err, &gethErr) {
		out := &RPCError{Code: gethErr.ErrorCode(), Message: gethErr.Error()}
		var dataErr rpc.DataError
		if errors.As(err, &dataErr) {
			out.Data = dataErr.ErrorData()
		}
		return out, true
	}
	return nil, false
}

// IsRevert reports whether a JSON-RPC error describes a reverted execution.
func IsRevert(e *RPCError) bool {
	if e == nil {
		return false
	}
	// geth reports reverts with code 3; other clients use -32000 and a message
	return e.Code == 3 || strings.Contains(strings.ToLower(e.Message), "revert")
}

// classifyTransport wraps a non JSON-RPC failure. Dial failures and rate-limit
// rejections were never processed; anything else may have been received by the remote.
func classifyTransport(method string, err error) *TransportError {
	return &TransportError{Method: method, Delivered: !isDialError(err), Err: err}
}

// wrapCallError turns a go-ethereum rpc client error into either *RPCError or *TransportError.
func wrapCallError(method string, err error) error {
	if err == nil {
		return nil
	}
	if rpcErr, ok := AsRPCError(err); ok {
		return rpcErr
	}
	return classifyTransport(method, err)
}

func isDialError(err error) bool {
	// rate limited before reaching the handler
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
