package landing

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/cometab/internal/metrics"
	"github.com/hitoshi/cometab/internal/middleware"
)

// RouterDeps はランディングページのルーター構築に必要な依存関係。
type RouterDeps struct {
	Handler    *Handler
	CSRFConfig middleware.CSRFConfig
	Logger     *slog.Logger
	Statuses   middleware.StatusRecorder
	Gatherer   prometheus.Gatherer
}

// NewRouter はランディングページのchiルーターを構築する。
//
// ルーティング:
//
//	GET  /health  - ヘルスチェック
//	GET  /metrics - Prometheusメトリクス
//	GET  /        - ランディングページ（割り当て）
//	POST /cta     - CTAクリック（フォーム表示）
//	POST /signup  - サインアップ送信
//	POST /back    - プロモーションに戻る
func NewRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()

	// クライアントIPはロギングより先に解決する
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger, false))
	r.Use(middleware.NewClientIPMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Statuses))
	r.Use(middleware.NewSecurityHeadersMiddleware(true))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Get("/", deps.Handler.Landing)
		r.Post("/cta", deps.Handler.ClickCTA)
		r.Post("/signup", deps.Handler.Signup)
		r.Post("/back", deps.Handler.Back)
	})

	return r
}
