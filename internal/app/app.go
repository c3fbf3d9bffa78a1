package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/radioedit/internal/config"
	"github.com/hitoshi/radioedit/internal/database"
	"github.com/hitoshi/radioedit/internal/field"
	"github.com/hitoshi/radioedit/internal/handler"
	"github.com/hitoshi/radioedit/internal/importer"
	"github.com/hitoshi/radioedit/internal/logger"
	"github.com/hitoshi/radioedit/internal/metrics"
	"github.com/hitoshi/radioedit/internal/middleware"
	"github.com/hitoshi/radioedit/internal/programs"
	"github.com/hitoshi/radioedit/internal/security"
	"github.com/hitoshi/radioedit/internal/store"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込み、
// LOG_LEVEL を反映したロガーに差し替える。フィールド表の整合性もここで検証する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetupDefaultWithLevel(w, logger.ParseLevel(cfg.LogLevel))

	// 3. 正引き・逆引き表と順序表の整合性
	if err := field.Validate(); err != nil {
		return nil, fmt.Errorf("field tables are inconsistent: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("store_backend", cfg.StoreBackend),
		slog.String("port", cfg.ServerPort),
		slog.Int("max_programs", cfg.MaxPrograms),
	)

	var rest []string
	if len(args) > 1 {
		rest = args[1:]
	}

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg, rest)
	case CommandImport:
		return runImport(cfg, rest)
	default:
		return runServe(cfg)
	}
}

// components はサブコマンド間で共有する依存関係。
type components struct {
	store    store.DocumentStore
	service  *programs.Service
	importer *importer.Importer
	registry *prometheus.Registry
	closeFn  func() error
}

func (c *components) Close() {
	if c.closeFn == nil {
		return
	}
	if err := c.closeFn(); err != nil {
		slog.Warn("failed to close store", slog.String("error", err.Error()))
	}
}

// openStore は STORE_BACKEND に応じたドキュメントストアを開く。
func openStore(ctx context.Context, cfg *config.Config) (store.DocumentStore, func() error, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		slog.Warn("using in-memory store, programs are lost on restart")
		return store.NewMemoryStore(), nil, nil

	case config.StoreBackendRedis:
		rs, err := store.NewRedisStore(ctx, store.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		return rs, rs.Close, nil

	default:
		db, err := database.OpenAndPing(ctx, cfg.DatabaseURL, 5*time.Second)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		return store.NewPostgresStore(db), db.Close, nil
	}
}

// buildComponents はストア、番組サービス、インポーター、メトリクスを組み立てる。
func buildComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	st, closeFn, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	syncer := programs.NewSynchronizer(st, programs.Options{
		ProgramsTable: cfg.ProgramsTable,
		HistoryTable:  cfg.HistoryTable,
		MaxPrograms:   cfg.MaxPrograms,
	})
	service := programs.NewService(syncer, collector, slog.Default())

	imp := importer.New(
		service,
		security.NewSSRFGuard(),
		security.NewTextSanitizer(),
		collector,
		slog.Default(),
		importer.Options{Timeout: cfg.ImportTimeout, MaxBodySize: cfg.ImportMaxSize},
	)

	return &components{
		store:    st,
		service:  service,
		importer: imp,
		registry: registry,
		closeFn:  closeFn,
	}, nil
}

// newHandler はAPIトークンを解析し、ルーターを構築する。
func newHandler(cfg *config.Config, c *components, rl *middleware.RateLimiter) (http.Handler, error) {
	tokens, err := middleware.ParseTokens(cfg.APITokens)
	if err != nil {
		return nil, fmt.Errorf("invalid API_TOKENS: %w", err)
	}

	return handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		Tokens:            tokens,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rl,
		ProgramService:    c.service,
		Importer:          c.importer,
		HealthChecker:     c.service,
		MetricsGatherer:   c.registry,
	}), nil
}

// runServe はAPIサーバーモードで起動する。
// ストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// IMPORT_FEED_URLS が設定されていれば取り込みスケジューラを同じプロセスで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	rl := middleware.NewRateLimiter(middleware.PerMinuteConfig(cfg.RateLimitGeneral, cfg.RateLimitImport))
	defer rl.Stop()

	router, err := newHandler(cfg, c, rl)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	schedulerDone := make(chan struct{})
	if len(cfg.ImportFeedURLs) > 0 {
		scheduler := importer.NewScheduler(c.importer, cfg.ImportFeedURLs, slog.Default())
		go func() {
			defer close(schedulerDone)
			scheduler.Start(ctx, cfg.ImportInterval)
		}()
	} else {
		close(schedulerDone)
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		stop()
		<-schedulerDone
		return fmt.Errorf("server listen error: %w", err)
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	<-schedulerDone

	slog.Info("API server stopped gracefully")
	return nil
}

// runImport はフィードを1回だけ取り込む。
// 引数でURLが指定されなければ IMPORT_FEED_URLS を使う。
// 失敗したURLがあっても残りのURLは処理し、最後にまとめてエラーを返す。
func runImport(cfg *config.Config, args []string) error {
	urls := args
	if len(urls) == 0 {
		urls = cfg.ImportFeedURLs
	}
	if len(urls) == 0 {
		return errors.New("no feed URLs to import (pass URLs or set IMPORT_FEED_URLS)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	return importAll(ctx, c.importer, urls)
}

func importAll(ctx context.Context, imp importer.FeedImporter, urls []string) error {
	var errs []error
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := imp.Import(ctx, u)
		if err != nil {
			errs = append(errs, fmt.Errorf("import %s: %w", u, err))
			continue
		}
		slog.Info("feed imported",
			slog.String("url", u),
			slog.String("feed_url", res.FeedURL),
			slog.Int("added", res.Added),
			slog.Int("skipped", res.Skipped),
		)
	}
	return errors.Join(errs...)
}

// runMigrate はデータベースマイグレーションを実行する。
// PostgreSQLバックエンドでのみ有効。
func runMigrate(cfg *config.Config, args []string) error {
	if cfg.StoreBackend != config.StoreBackendPostgres {
		return fmt.Errorf("migrate requires STORE_BACKEND=%s, got %s", config.StoreBackendPostgres, cfg.StoreBackend)
	}

	action, steps, err := ParseMigrateArgs(args)
	if err != nil {
		return err
	}

	slog.Info("running database migrations",
		slog.String("action", string(action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action {
	case MigrateDown:
		if err := database.RollbackMigrations(cfg.DatabaseURL, steps); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
	case MigrateVersion:
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		slog.Info("database migration version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
		return nil
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
