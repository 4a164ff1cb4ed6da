package lsp

import (
	"errors"
	"fmt"
)

// Standard errors returned by the transport and client.
var (
	// ErrNotStarted indicates the client has not been started.
	ErrNotStarted = errors.New("lsp client not started")

	// ErrAlreadyStarted indicates the client is already running.
	ErrAlreadyStarted = errors.New("lsp client already started")

	// ErrShutdown indicates the transport has been shut down.
	ErrShutdown = errors.New("lsp transport shut down")

	// ErrServerExited indicates the server process terminated unexpectedly.
	ErrServerExited = errors.New("embedded language server exited")

	// ErrInvalidMessage indicates a frame that is not valid JSON-RPC.
	ErrInvalidMessage = errors.New("invalid json-rpc message")
)

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeRequestCancelled is LSP's cancellation code.
	CodeRequestCancelled = -32800
)

// NewRPCError builds an error object with the given code.
func NewRPCError(code int, format string, args ...any) *RPCError {
	return &RPCError{Code: code, Message: fmt.Sprintf(format, args...)}
}
