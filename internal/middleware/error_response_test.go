package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/radioedit/internal/model"
)

func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusConflict, model.NewCapacityExceededError(100, 101))

	resp := w.Result()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Code != model.ErrCodeCapacityExceeded || body.Category != "validation" {
		t.Errorf("body = %+v", body)
	}
	if body.Message == "" || body.Action == "" {
		t.Errorf("message and action must be set: %+v", body)
	}
}

// 原因エラーの内容がレスポンスに漏れないことを検証
func TestWriteErrorResponse_DoesNotExposeCause(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusServiceUnavailable,
		model.NewStoreUnavailableError(errors.New("dial tcp 10.0.0.5:5432: connection refused")))

	if strings.Contains(w.Body.String(), "10.0.0.5") {
		t.Errorf("response leaks cause: %s", w.Body.String())
	}
}

func TestWriteInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w)

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if w.Code != http.StatusInternalServerError || body.Code != model.ErrCodeInternal {
		t.Errorf("status=%d body=%+v", w.Code, body)
	}
}
