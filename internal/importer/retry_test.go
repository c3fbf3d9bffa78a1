package importer

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/hitoshi/radioedit/internal/model"
)

func fetchFailedWithStatus(code int) error {
	apiErr := model.NewFetchFailedError(fmt.Sprintf("HTTPステータス %d", code))
	apiErr.Err = &StatusError{StatusCode: code}
	return apiErr
}

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want failureAction
	}{
		{"404 stops", fetchFailedWithStatus(http.StatusNotFound), actionStop},
		{"410 stops", fetchFailedWithStatus(http.StatusGone), actionStop},
		{"401 stops", fetchFailedWithStatus(http.StatusUnauthorized), actionStop},
		{"403 stops", fetchFailedWithStatus(http.StatusForbidden), actionStop},
		{"429 backs off", fetchFailedWithStatus(http.StatusTooManyRequests), actionBackoff},
		{"503 backs off", fetchFailedWithStatus(http.StatusServiceUnavailable), actionBackoff},
		{"network error backs off", model.NewFetchFailedError("connection reset"), actionBackoff},
		{"ssrf stops", model.NewSSRFBlockedError(), actionStop},
		{"invalid url stops", model.NewInvalidURLError("bad scheme"), actionStop},
		{"no feed stops", model.NewFeedNotDetectedError("https://a.example.com"), actionStop},
		{"parse failure", model.NewParseFailedError(), actionParseFailure},
		{"store error backs off", model.NewStoreUnavailableError(errors.New("down")), actionBackoff},
		{"plain error backs off", errors.New("boom"), actionBackoff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyFailure(tt.err); got != tt.want {
				t.Errorf("classifyFailure = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		errors int
		want   time.Duration
	}{
		{0, 30 * time.Minute},
		{1, time.Hour},
		{2, 2 * time.Hour},
		{4, 8 * time.Hour},
		{5, 12 * time.Hour},
		{50, 12 * time.Hour},
	}
	for _, tt := range tests {
		if got := calculateBackoff(tt.errors); got != tt.want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tt.errors, got, tt.want)
		}
	}
}

func TestFeedState_BackoffThenSuccessResets(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var st feedState

	st.applyFailure(fetchFailedWithStatus(http.StatusBadGateway), now)
	if st.due(now.Add(29 * time.Minute)) {
		t.Error("feed should not be due during the first backoff")
	}
	if !st.due(now.Add(30 * time.Minute)) {
		t.Error("feed should be due when the backoff elapses")
	}

	st.applyFailure(fetchFailedWithStatus(http.StatusBadGateway), now)
	if want := now.Add(time.Hour); !st.nextAttemptAt.Equal(want) {
		t.Errorf("nextAttemptAt = %v, want %v", st.nextAttemptAt, want)
	}

	st.applySuccess()
	if st.consecutiveErrors != 0 || !st.due(now) || st.lastError != "" {
		t.Errorf("state not reset: %+v", st)
	}
}

func TestFeedState_ParseFailureStopsAtThreshold(t *testing.T) {
	now := time.Now()
	var st feedState

	for i := 1; i < parseFailureThreshold; i++ {
		st.applyFailure(model.NewParseFailedError(), now)
		if st.stopped {
			t.Fatalf("stopped after %d parse failures, want %d", i, parseFailureThreshold)
		}
		if !st.due(now) {
			t.Fatal("parse failures below the threshold should retry on the next cycle")
		}
	}

	st.applyFailure(model.NewParseFailedError(), now)
	if !st.stopped {
		t.Error("feed should stop at the parse failure threshold")
	}
	if st.due(now.Add(24 * time.Hour)) {
		t.Error("stopped feed should never be due")
	}
}
