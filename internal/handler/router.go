package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/boothpost/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// アプリ状態
	Store        AppStore
	URLValidator URLValidator

	// 人物データベース
	Persons PersonDirectory

	// 外部サービス
	Sender        PostSender
	Analyzer      ImageAnalyzer
	Kotaro        KotaroForwarder
	MaxUploadSize int64

	// 運用
	Storage        Pinger
	StorageBackend string
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → Logging → SecurityHeaders → CORS
//	/api/*: RateLimit(General) → CSRF → RequestSize(JSON系のみ)
//
// 外部サービスを呼び出すエンドポイントにはRateLimit(Upstream)を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	stateHandler := NewStateHandler(deps.Store, deps.URLValidator)
	queueHandler := NewQueueHandler(deps.Store, deps.Sender, deps.Analyzer, logger)
	personHandler := NewPersonHandler(deps.Persons)
	kotaroHandler := NewKotaroHandler(deps.Kotaro, deps.MaxUploadSize, logger)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.Storage, deps.StorageBackend))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
			upstream := deps.RateLimiter.UpstreamMiddleware()

			// JSONボディはMAX_UPLOAD_SIZEで打ち切る。kotaroはmultipartのため個別に制限する
			r.Group(func(r chi.Router) {
				if deps.MaxUploadSize > 0 {
					r.Use(chimw.RequestSize(deps.MaxUploadSize))
				}

				// ウィザード状態
				r.Route("/state", func(r chi.Router) {
					r.Get("/", stateHandler.GetState)
					r.Put("/step", stateHandler.SetStep)
					r.Patch("/event-info", stateHandler.PatchEventInfo)
					r.Put("/current-event", stateHandler.SetCurrentEvent)
					r.Delete("/current-event", stateHandler.ClearCurrentEvent)
				})

				// 設定
				r.Get("/settings", stateHandler.GetSettings)
				r.Patch("/settings", stateHandler.PatchSettings)

				// 投稿キュー
				r.Route("/queue", func(r chi.Router) {
					r.Get("/", queueHandler.List)
					r.Post("/", queueHandler.Add)
					r.Delete("/", queueHandler.Clear)
					r.Put("/edit-index", queueHandler.SetEditIndex)
					r.Get("/status", queueHandler.Status)

					r.Route("/{index}", func(r chi.Router) {
						r.Get("/", queueHandler.Get)
						r.Patch("/", queueHandler.Update)
						r.Delete("/", queueHandler.Remove)
						r.With(upstream).Post("/send", queueHandler.Send)
						r.With(upstream).Post("/analyze", queueHandler.Analyze)
					})
				})

				// 人物データベース
				r.Route("/persons", func(r chi.Router) {
					r.Get("/", personHandler.Search)
					r.Get("/recent", personHandler.Recent)
					r.Post("/", personHandler.Add)
				})
			})

			// Kotaro-Engineプロキシ
			r.With(upstream).Post("/kotaro", kotaroHandler.Proxy)
		})
	})

	return r
}
