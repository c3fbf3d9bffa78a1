package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/radioedit/internal/middleware"
	"github.com/hitoshi/radioedit/internal/model"
)

// HealthChecker はストアへの疎通確認のインターフェース。
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler は /health のハンドラーを返す。
// ストアに2秒以内に疎通できれば200、できなければ503を返す。
func NewHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.Ping(ctx); err != nil {
			slog.Warn("health check failed", slog.String("error", err.Error()))
			middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewStoreUnavailableError(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
