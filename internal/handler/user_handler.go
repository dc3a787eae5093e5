package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/cometab/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Register はemailをキーにユーザーをfind-or-createする。新規作成時のみcreatedがtrue。
	Register(ctx context.Context, name, email string, groupID int64) (*model.User, bool, error)
	// FindByEmail はemailでユーザーを検索する。
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

// UserHandler はユーザー登録と検索のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// registerUserRequest はユーザー登録リクエストのボディ。
type registerUserRequest struct {
	Name    string `json:"name" validate:"required,max=255"`
	Email   string `json:"email" validate:"required,email,max=320"`
	GroupID int64  `json:"group_id" validate:"gt=0"`
}

// registerUserResponse はユーザー登録のAPIレスポンス。
type registerUserResponse struct {
	Success bool  `json:"success"`
	UserID  int64 `json:"user_id"`
	GroupID int64 `json:"group_id"`
	Created bool  `json:"created"`
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RegisterUser はユーザーを登録する。既に同じemailのユーザーがいる場合はそのユーザーを返す。
// POST /register-user
func (h *UserHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, created, err := h.service.Register(r.Context(), req.Name, req.Email, req.GroupID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, registerUserResponse{
		Success: true,
		UserID:  user.ID,
		GroupID: req.GroupID,
		Created: created,
	})
}

// FindUser はemailでユーザーを検索する。
// GET /api/users?email=
func (h *UserHandler) FindUser(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		handleServiceError(w, model.NewInvalidRequestError("email query parameter is required"))
		return
	}

	user, err := h.service.FindByEmail(r.Context(), email)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{ID: user.ID, Name: user.Name, Email: user.Email})
}
