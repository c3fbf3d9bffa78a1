package model

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestHasCode_FindsWrappedAPIError(t *testing.T) {
	err := fmt.Errorf("save programs: %w", NewCapacityExceededError(100, 120))

	if !HasCode(err, ErrCodeCapacityExceeded) {
		t.Error("HasCode should find the wrapped CAPACITY_EXCEEDED error")
	}
	if HasCode(err, ErrCodeInvalidRecord) {
		t.Error("HasCode should not match a different code")
	}
	if HasCode(errors.New("plain"), ErrCodeInternal) {
		t.Error("HasCode should be false for non-APIError")
	}
	if HasCode(nil, ErrCodeInternal) {
		t.Error("HasCode(nil) should be false")
	}
}

func TestAPIError_WrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewStoreUnavailableError(cause)

	if !errors.Is(err, cause) {
		t.Error("store error should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Error() = %q, want cause included", err.Error())
	}
	if err.Category != "store" {
		t.Errorf("Category = %q, want store", err.Category)
	}
}

func TestConstructors_SetCodeAndCategory(t *testing.T) {
	tests := []struct {
		err      *APIError
		code     string
		category string
	}{
		{NewUnknownFieldValueError("status", "Done"), ErrCodeUnknownFieldValue, "validation"},
		{NewInvalidRecordError("pid が重複しています"), ErrCodeInvalidRecord, "validation"},
		{NewCapacityExceededError(1, 2), ErrCodeCapacityExceeded, "validation"},
		{NewPersistenceFailureError(errors.New("tx")), ErrCodePersistenceFailure, "store"},
		{NewSSRFBlockedError(), ErrCodeSSRFBlocked, "validation"},
		{NewParseFailedError(), ErrCodeParseFailed, "import"},
		{NewInvalidRequestError("bad json"), ErrCodeInvalidRequest, "validation"},
		{NewUnauthorizedError(), ErrCodeUnauthorized, "auth"},
		{NewRateLimitedError(), ErrCodeRateLimited, "system"},
		{NewInternalError(), ErrCodeInternal, "system"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.Category != tt.category {
				t.Errorf("Category = %q, want %q", tt.err.Category, tt.category)
			}
			if tt.err.Message == "" || tt.err.Action == "" {
				t.Errorf("Message/Action must be set: %+v", tt.err)
			}
		})
	}
}
