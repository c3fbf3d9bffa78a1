package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type mockHealthChecker struct {
	pingFn func(ctx context.Context) error
}

func (m *mockHealthChecker) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantBody   string
	}{
		{"store reachable", nil, http.StatusOK, `"status":"ok"`},
		{"store unreachable", errors.New("dial tcp: connection refused"), http.StatusServiceUnavailable, `"STORE_UNAVAILABLE"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hasDeadline bool
			checker := &mockHealthChecker{pingFn: func(ctx context.Context) error {
				_, hasDeadline = ctx.Deadline()
				return tt.pingErr
			}}

			w := httptest.NewRecorder()
			NewHealthHandler(checker)(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want %s", w.Body.String(), tt.wantBody)
			}
			if strings.Contains(w.Body.String(), "connection refused") {
				t.Error("cause must not be exposed")
			}
			if !hasDeadline {
				t.Error("ping context should have a deadline")
			}
		})
	}
}
