package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/cometab/internal/metrics"
	"github.com/hitoshi/cometab/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	Statuses           middleware.StatusRecorder
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	Gatherer           prometheus.Gatherer

	// サービス
	DB           Pinger
	UserService  UserServiceInterface
	ClickService ClickServiceInterface
	StatsService StatsServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → ClientIP → Logging → SecurityHeaders → CORS → RateLimit(General)
//
// 書き込みエンドポイントには書き込み用のレート制限を追加する。
// /、/health、/metricsはレート制限の対象外。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger, true))
	r.Use(middleware.NewClientIPMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Statuses))
	r.Use(middleware.NewSecurityHeadersMiddleware(false))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	systemHandler := NewSystemHandler(deps.DB)
	userHandler := NewUserHandler(deps.UserService)
	clickHandler := NewClickHandler(deps.ClickService)
	statsHandler := NewStatsHandler(deps.StatsService)

	r.Get("/", systemHandler.Root)
	r.Get("/health", systemHandler.Health)
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}

		// 書き込み
		r.Group(func(r chi.Router) {
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.WriteMiddleware())
			}
			r.Post("/register-user", userHandler.RegisterUser)
			r.Post("/log-click", clickHandler.LogClick)
		})

		// 検索
		r.Get("/api/users", userHandler.FindUser)
		r.Get("/api/groups", statsHandler.FindGroup)

		// 集計
		r.Get("/stats/group/{id}", statsHandler.GroupStats)
		r.Get("/stats/all", statsHandler.AllStats)
	})

	return r
}
