package server

import (
	"errors"
	"net/http"
	"testing"
)

func TestFlowErrorStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{ErrInvalidRequest, http.StatusBadRequest},
		{ErrInvalidState, http.StatusBadRequest},
		{ErrInvalidStateSignature, http.StatusBadRequest},
		{ErrExpiredState, http.StatusBadRequest},
		{ErrUpstreamOAuth, http.StatusBadGateway},
		{ErrTokenExchange, http.StatusBadGateway},
		{ErrProfileFetch, http.StatusBadGateway},
		{ErrServerMisconfigured, http.StatusInternalServerError},
		{ErrProviderMisconfigured, http.StatusInternalServerError},
		{ErrCallbackFailed, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := (&FlowError{Code: tt.code}).httpStatus(); got != tt.want {
			t.Errorf("httpStatus(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestAsFlowErrorFoldsUnknownErrors(t *testing.T) {
	fe := asFlowError(errors.New("dial tcp: connection refused"))
	if fe.Code != ErrCallbackFailed {
		t.Fatalf("code = %q", fe.Code)
	}
	if fe.Description == "dial tcp: connection refused" {
		t.Fatal("raw error text leaked into the client-facing description")
	}

	original := flowErr(ErrExpiredState, "gone")
	if asFlowError(original) != original {
		t.Fatal("flow errors must pass through untouched")
	}
}
