package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/boothpost/internal/analysis"
	"github.com/hitoshi/boothpost/internal/appstore"
	"github.com/hitoshi/boothpost/internal/config"
	"github.com/hitoshi/boothpost/internal/database"
	"github.com/hitoshi/boothpost/internal/handler"
	"github.com/hitoshi/boothpost/internal/kotaro"
	"github.com/hitoshi/boothpost/internal/logger"
	"github.com/hitoshi/boothpost/internal/metrics"
	"github.com/hitoshi/boothpost/internal/middleware"
	"github.com/hitoshi/boothpost/internal/model"
	"github.com/hitoshi/boothpost/internal/persondb"
	"github.com/hitoshi/boothpost/internal/repository"
	"github.com/hitoshi/boothpost/internal/security"
	"github.com/hitoshi/boothpost/internal/webhook"
	"github.com/hitoshi/boothpost/internal/worker/statusrefresh"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
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
		slog.String("port", cfg.ServerPort),
		slog.String("storage_backend", cfg.StorageBackend),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	}
}

// application はserveモードで組み立てた依存関係一式。
type application struct {
	handler   http.Handler
	store     *appstore.Store
	persons   *persondb.Database
	refresher *statusrefresh.Refresher
	limiter   *middleware.RateLimiter
}

// newApplication はストレージを受け取り、ストア・外部クライアント・ルーターをワイヤリングする。
func newApplication(ctx context.Context, cfg *config.Config, st *storage, reg *prometheus.Registry) *application {
	base := slog.Default()
	collector := metrics.NewCollector(reg)

	kv := repository.WithPrefix(st.kv, cfg.StorageKeyPrefix)
	defaults := model.AppSettings{WebhookURL: cfg.WebhookURL}
	store := appstore.New(ctx, kv, defaults, appstore.WithLogger(logger.Component(base, "appstore")))
	persons := persondb.New(ctx, kv, persondb.WithLogger(logger.Component(base, "persondb")))

	ssrfGuard := security.NewSSRFGuard()
	webhookClient := ssrfGuard.NewSafeClient(cfg.WebhookTimeout)
	var validator handler.URLValidator = ssrfGuard
	if cfg.WebhookAllowPrivate {
		slog.Warn("WEBHOOK_ALLOW_PRIVATE が有効です。プライベートアドレスへのWebhook送信を許可します")
		webhookClient = &http.Client{Timeout: cfg.WebhookTimeout}
		validator = nil
	}

	sender := webhook.NewService(
		webhookClient, store, security.NewCaptionSanitizer(), collector,
		logger.Component(base, "webhook"), cfg.WebhookAIModel,
	)
	analyzer := analysis.NewClient(
		&http.Client{Timeout: cfg.AnalyzerTimeout}, cfg.AnalyzerURL, collector,
		logger.Component(base, "analysis"),
	)
	forwarder := kotaro.NewClient(
		&http.Client{Timeout: cfg.KotaroTimeout}, cfg.KotaroUpstreamURL, collector,
		logger.Component(base, "kotaro"),
	)

	limiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigFromPerMinute(cfg.RateLimitGeneral, cfg.RateLimitUpstream),
	)

	deps := &handler.RouterDeps{
		Logger:            base,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:    limiter,
		Store:          store,
		URLValidator:   validator,
		Persons:        persons,
		Sender:         sender,
		Analyzer:       analyzer,
		Kotaro:         forwarder,
		MaxUploadSize:  cfg.MaxUploadSize,
		Storage:        st.kv,
		StorageBackend: st.backend,
		MetricsHandler: metrics.SetupMetricsRoute(reg),
	}

	return &application{
		handler:   handler.NewRouter(deps),
		store:     store,
		persons:   persons,
		refresher: statusrefresh.NewRefresher(store, persons, collector, logger.Component(base, "statusrefresh")),
		limiter:   limiter,
	}
}

// Close はバックグラウンドで動作するリソースを停止する。
func (a *application) Close() {
	a.limiter.Stop()
}

// runServe はAPIサーバーモードで起動する。
// ストレージを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	st, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(); err != nil {
			slog.Error("ストレージのクローズに失敗しました", slog.String("error", err.Error()))
		}
	}()

	reg := prometheus.NewRegistry()
	app := newApplication(ctx, cfg, st, reg)
	defer app.Close()

	go app.refresher.Start(ctx, cfg.StatusRefreshInterval)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		// kotaroのアップロードと応答待ちを含むため長めにとる
		ReadTimeout:  cfg.KotaroTimeout + 30*time.Second,
		WriteTimeout: cfg.KotaroTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はPostgreSQLのマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.StorageBackend != config.StoragePostgres {
		return fmt.Errorf("migrate requires STORAGE_BACKEND=postgres (current: %s)", cfg.StorageBackend)
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
