// Package jsonrpc exposes the control service as JSON-RPC 2.0 over HTTP and
// provides a matching client.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Method names.
const (
	MethodApplySettings = "applySettings"
	MethodGetStatus     = "getStatus"
)

// Request represents a JSON-RPC 2.0 request
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// Response represents a JSON-RPC 2.0 response
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      interface{}     `json:"id"`
}

// Error represents a JSON-RPC 2.0 error object
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// CodeName returns the symbolic name of the error code.
func (e *Error) CodeName() string {
	switch e.Code {
	case CodeParseError:
		return "PARSE_ERROR"
	case CodeInvalidRequest:
		return "INVALID_REQUEST"
	case CodeMethodNotFound:
		return "METHOD_NOT_FOUND"
	case CodeInvalidParams:
		return "INVALID_PARAMS"
	case CodeInternalError:
		return "INTERNAL"
	default:
		return fmt.Sprintf("CODE_%d", e.Code)
	}
}

// applySettingsParams uses pointers so missing numbers can be told apart from zero.
type applySettingsParams struct {
	FrequencyMHz *float64 `json:"frequencyMHz"`
	GainDB       *float64 `json:"gainDB"`
	DeviceID     string   `json:"deviceId"`
}

type getStatusParams struct {
	DeviceID string `json:"deviceId"`
}
