package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/cometab/internal/middleware"
	"github.com/hitoshi/cometab/internal/model"
)

// ClickServiceInterface はクリックハンドラーが必要とするサービスインターフェース。
type ClickServiceInterface interface {
	// Log はクリックを追記し、採番されたIDをcに設定する。
	Log(ctx context.Context, c *model.Click) error
}

// ClickHandler はクリック記録のHTTPハンドラー。
type ClickHandler struct {
	service ClickServiceInterface
}

// NewClickHandler はClickHandlerを生成する。
func NewClickHandler(service ClickServiceInterface) *ClickHandler {
	return &ClickHandler{service: service}
}

// logClickRequest はクリック記録リクエストのボディ。
type logClickRequest struct {
	UserID    int64  `json:"user_id" validate:"gt=0"`
	GroupID   int64  `json:"group_id" validate:"gt=0"`
	SessionID string `json:"session_id" validate:"max=64"`
	PageURL   string `json:"page_url" validate:"max=2048"`
	UserAgent string `json:"user_agent" validate:"max=1024"`
	IPAddress string `json:"ip_address" validate:"omitempty,ip"`
}

// logClickResponse はクリック記録のAPIレスポンス。
type logClickResponse struct {
	Success bool  `json:"success"`
	ClickID int64 `json:"click_id"`
}

// LogClick はクリックを記録する。
// ip_addressとuser_agentが省略された場合はリクエストから補完する。
// POST /log-click
func (h *ClickHandler) LogClick(w http.ResponseWriter, r *http.Request) {
	var req logClickRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if req.IPAddress == "" {
		if ip, err := middleware.ClientIPFromContext(r.Context()); err == nil {
			req.IPAddress = ip
		} else {
			req.IPAddress = middleware.ClientIP(r)
		}
	}
	if req.UserAgent == "" {
		req.UserAgent = r.UserAgent()
	}

	c := &model.Click{
		UserID:    req.UserID,
		GroupID:   req.GroupID,
		SessionID: req.SessionID,
		PageURL:   req.PageURL,
		UserAgent: req.UserAgent,
		IPAddress: req.IPAddress,
	}
	if err := h.service.Log(r.Context(), c); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, logClickResponse{Success: true, ClickID: c.ID})
}
