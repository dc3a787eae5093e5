// Package user はランディングページ訪問者の登録と検索のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/cometab/internal/model"
	"github.com/hitoshi/cometab/internal/repository"
	"github.com/hitoshi/cometab/internal/security"
)

// GroupFinder はグループの存在確認に使うインターフェース。
type GroupFinder interface {
	FindByID(ctx context.Context, id int64) (*model.Group, error)
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo  repository.UserRepository
	groups    GroupFinder
	sanitizer security.InputSanitizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, groups GroupFinder, sanitizer security.InputSanitizer) *Service {
	if sanitizer == nil {
		sanitizer = security.NewInputSanitizer()
	}
	return &Service{
		userRepo:  userRepo,
		groups:    groups,
		sanitizer: sanitizer,
	}
}

// Register はemailをキーにユーザーをfind-or-createする。
// 存在しないグループIDが指定された場合はGROUP_NOT_FOUNDを返す。
// 新規作成時のみ初回のクリックが記録される。
func (s *Service) Register(ctx context.Context, name, email string, groupID int64) (*model.User, bool, error) {
	name = s.sanitizer.SanitizeName(name)
	email = s.sanitizer.NormalizeEmail(email)
	if name == "" {
		return nil, false, model.NewInvalidRequestError("name is empty after sanitization")
	}

	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		return nil, false, fmt.Errorf("グループの取得に失敗しました: %w", err)
	}
	if group == nil {
		return nil, false, model.NewGroupNotFoundError(fmt.Sprintf("%d", groupID))
	}

	user, created, err := s.userRepo.RegisterWithInitialClick(ctx, name, email, groupID)
	if err != nil {
		return nil, false, fmt.Errorf("ユーザーの登録に失敗しました: %w", err)
	}

	if created {
		slog.Info("user registered",
			slog.Int64("user_id", user.ID),
			slog.String("group", group.GroupName),
		)
	}
	return user, created, nil
}

// FindByEmail はemailでユーザーを検索する。見つからない場合はNOT_FOUNDを返す。
func (s *Service) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, s.sanitizer.NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewNotFoundError("ユーザー")
	}
	return user, nil
}
