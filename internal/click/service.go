// Package click はクリックイベントの記録を提供する。
package click

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/cometab/internal/model"
	"github.com/hitoshi/cometab/internal/repository"
)

// UserFinder はクリック元ユーザーの存在確認に使うインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

// GroupFinder はクリック先グループの存在確認に使うインターフェース。
type GroupFinder interface {
	FindByID(ctx context.Context, id int64) (*model.Group, error)
}

// Recorder は記録したクリックをメトリクスに反映する。
type Recorder interface {
	RecordClickLogged(groupID int64)
}

// Service はクリック記録のサービス層。
type Service struct {
	clicks   repository.ClickRepository
	users    UserFinder
	groups   GroupFinder
	recorder Recorder
}

// NewService はServiceを生成する。recorderはnilでもよい。
func NewService(clicks repository.ClickRepository, users UserFinder, groups GroupFinder, recorder Recorder) *Service {
	return &Service{
		clicks:   clicks,
		users:    users,
		groups:   groups,
		recorder: recorder,
	}
}

// Log はクリックを追記する。
// ユーザーが存在しない場合はUSER_NOT_FOUND、グループが存在しない場合はGROUP_NOT_FOUNDを返す。
func (s *Service) Log(ctx context.Context, c *model.Click) error {
	user, err := s.users.FindByID(ctx, c.UserID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError(fmt.Sprintf("%d", c.UserID))
	}

	group, err := s.groups.FindByID(ctx, c.GroupID)
	if err != nil {
		return fmt.Errorf("グループの取得に失敗しました: %w", err)
	}
	if group == nil {
		return model.NewGroupNotFoundError(fmt.Sprintf("%d", c.GroupID))
	}

	if err := s.clicks.Create(ctx, c); err != nil {
		return fmt.Errorf("クリックの記録に失敗しました: %w", err)
	}

	slog.Debug("click logged",
		slog.Int64("click_id", c.ID),
		slog.String("group", group.GroupName),
	)
	if s.recorder != nil {
		s.recorder.RecordClickLogged(c.GroupID)
	}
	return nil
}
