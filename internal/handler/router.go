package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/radioedit/internal/metrics"
	"github.com/hitoshi/radioedit/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger            *slog.Logger
	Tokens            middleware.TokenSet
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	ProgramService ProgramServiceInterface
	// Importer がnilの場合は取り込みエンドポイントを登録しない。
	Importer      ImporterInterface
	HealthChecker HealthChecker
	// MetricsGatherer がnilの場合は /metrics を登録しない。
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS → BearerAuth → RateLimit(General)
//
// /health と /metrics は認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	programHandler := NewProgramHandler(deps.ProgramService)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBearerAuthMiddleware(deps.Tokens))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/programs", func(r chi.Router) {
			r.Get("/", programHandler.ListPrograms)
			r.Put("/", programHandler.SavePrograms)
			r.Get("/fields", programHandler.Fields)
			r.Get("/history", programHandler.ListHistory)

			if deps.Importer != nil {
				importHandler := NewImportHandler(deps.Importer)
				r.With(deps.RateLimiter.ImportMiddleware()).Post("/import", importHandler.Import)
			}
		})
	})

	return r
}
