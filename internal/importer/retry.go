package importer

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hitoshi/radioedit/internal/model"
)

// StatusError は取得先が200以外を返したことを表す。FETCH_FAILED の原因として包まれる。
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.StatusCode)
}

// failureAction は定期取り込みが失敗したときの扱い。
type failureAction int

const (
	// actionBackoff は指数バックオフ後に再試行する（429/5xx、ネットワークエラー等）。
	actionBackoff failureAction = iota
	// actionStop はプロセスが終わるまで再試行しない（404/410/401/403、SSRF、不正URL）。
	actionStop
	// actionParseFailure はパース失敗。閾値に達するまでは次のサイクルで再試行する。
	actionParseFailure
)

const (
	// initialBackoff は指数バックオフの初回遅延。
	initialBackoff = 30 * time.Minute
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = 12 * time.Hour
	// parseFailureThreshold はパース失敗による取り込み停止の閾値。
	parseFailureThreshold = 10
)

// classifyFailure は取り込みエラーを再試行方針に分類する。
func classifyFailure(err error) failureAction {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch code := statusErr.StatusCode; {
		case code == http.StatusNotFound, code == http.StatusGone,
			code == http.StatusUnauthorized, code == http.StatusForbidden:
			return actionStop
		default:
			return actionBackoff
		}
	}

	switch {
	case model.HasCode(err, model.ErrCodeSSRFBlocked),
		model.HasCode(err, model.ErrCodeInvalidURL),
		model.HasCode(err, model.ErrCodeFeedNotDetected):
		return actionStop
	case model.HasCode(err, model.ErrCodeParseFailed):
		return actionParseFailure
	default:
		return actionBackoff
	}
}

// calculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回30分、2倍ずつ増加、最大12時間。
func calculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// feedState は定期取り込みにおける1フィードの状態。
type feedState struct {
	consecutiveErrors int
	nextAttemptAt     time.Time
	stopped           bool
	lastError         string
}

// due はnowの時点で取り込みを試みてよいかを返す。
func (s *feedState) due(now time.Time) bool {
	return !s.stopped && !now.Before(s.nextAttemptAt)
}

func (s *feedState) applySuccess() {
	s.consecutiveErrors = 0
	s.nextAttemptAt = time.Time{}
	s.lastError = ""
}

// applyFailure はエラーの分類に応じて状態を更新する。
func (s *feedState) applyFailure(err error, now time.Time) failureAction {
	action := classifyFailure(err)
	s.consecutiveErrors++
	s.lastError = err.Error()

	switch action {
	case actionStop:
		s.stopped = true
	case actionParseFailure:
		if s.consecutiveErrors >= parseFailureThreshold {
			s.stopped = true
		}
	default:
		s.nextAttemptAt = now.Add(calculateBackoff(s.consecutiveErrors - 1))
	}
	return action
}
