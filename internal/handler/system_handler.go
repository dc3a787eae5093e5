package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger はデータベースの疎通確認を行う。*sql.DBが実装する。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// healthCheckTimeout はヘルスチェック時のDB疎通確認のタイムアウト。
const healthCheckTimeout = 2 * time.Second

// SystemHandler はルートとヘルスチェックのHTTPハンドラー。
type SystemHandler struct {
	db Pinger
}

// NewSystemHandler はSystemHandlerを生成する。
func NewSystemHandler(db Pinger) *SystemHandler {
	return &SystemHandler{db: db}
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Root はAPIの稼働メッセージを返す。
// GET /
func (h *SystemHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "cometab A/B test API is running"})
}

// Health はDBの疎通を確認し、結果を返す。到達できない場合は503。
// GET /health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC().Format(time.RFC3339)

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			slog.Warn("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Timestamp: now})
			return
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Timestamp: now})
}
