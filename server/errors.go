package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Flow error codes. Every failure of the authorization relay maps to exactly
// one of these; nothing else is surfaced to the caller.
const (
	ErrInvalidRequest        = "invalid_request"
	ErrInvalidState          = "invalid_state"
	ErrInvalidStateSignature = "invalid_state_signature"
	ErrExpiredState          = "expired_state"
	ErrUpstreamOAuth         = "github_oauth_error"
	ErrTokenExchange         = "token_exchange_failed"
	ErrProfileFetch          = "profile_fetch_failed"
	ErrServerMisconfigured   = "server_misconfigured"
	ErrProviderMisconfigured = "oauth_provider_misconfigured"
	ErrCallbackFailed        = "callback_failed"
)

// FlowError is a terminal outcome of one authorization attempt. It is
// returned, never panicked, and rendered as {error, error_description}.
type FlowError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *FlowError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

func flowErr(code, format string, args ...any) *FlowError {
	return &FlowError{Code: code, Description: fmt.Sprintf(format, args...)}
}

// httpStatus maps a flow error to the response status. Client and state
// errors are 400s, upstream failures 502s, configuration faults 500s.
func (e *FlowError) httpStatus() int {
	switch e.Code {
	case ErrInvalidRequest, ErrInvalidState, ErrInvalidStateSignature, ErrExpiredState:
		return http.StatusBadRequest
	case ErrUpstreamOAuth, ErrTokenExchange, ErrProfileFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// asFlowError coerces any error into a FlowError, folding unexpected faults
// into callback_failed so no raw error text ever reaches the client.
func asFlowError(err error) *FlowError {
	if fe, ok := err.(*FlowError); ok {
		return fe
	}
	return &FlowError{Code: ErrCallbackFailed, Description: "unexpected failure during authorization"}
}

func writeFlowError(w http.ResponseWriter, err error) {
	fe := asFlowError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(fe.httpStatus())
	_ = json.NewEncoder(w).Encode(fe)
}
