// Package stats はグループ単位のクリック集計を提供する。
//
// CTRは総クリック数を全ユーザー数で割った値、コンバージョン率はクリックした
// ユニークユーザー数を全ユーザー数で割った値。ユーザーがいない場合はどちらも0。
package stats

import (
	"context"
	"fmt"

	"github.com/hitoshi/cometab/internal/model"
	"github.com/hitoshi/cometab/internal/repository"
)

// UserCounter は全ユーザー数を返す。
type UserCounter interface {
	Count(ctx context.Context) (int, error)
}

// Service は集計のサービス層。
type Service struct {
	groups repository.GroupRepository
	clicks repository.ClickRepository
	users  UserCounter
}

// NewService はServiceを生成する。
func NewService(groups repository.GroupRepository, clicks repository.ClickRepository, users UserCounter) *Service {
	return &Service{groups: groups, clicks: clicks, users: users}
}

// GroupStats は指定グループの集計を返す。存在しないグループの場合はGROUP_NOT_FOUNDを返す。
func (s *Service) GroupStats(ctx context.Context, groupID int64) (*model.GroupStats, error) {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("グループの取得に失敗しました: %w", err)
	}
	if group == nil {
		return nil, model.NewGroupNotFoundError(fmt.Sprintf("%d", groupID))
	}

	totalUsers, err := s.users.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー数の取得に失敗しました: %w", err)
	}
	return s.compute(ctx, group, totalUsers)
}

// AllStats は全グループの集計をID順に返す。
func (s *Service) AllStats(ctx context.Context) ([]model.GroupStats, error) {
	groups, err := s.groups.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("グループ一覧の取得に失敗しました: %w", err)
	}

	totalUsers, err := s.users.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー数の取得に失敗しました: %w", err)
	}

	out := make([]model.GroupStats, 0, len(groups))
	for _, g := range groups {
		st, err := s.compute(ctx, g, totalUsers)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, nil
}

// FindGroupByName はgroup_nameでグループを検索する。見つからない場合はNOT_FOUNDを返す。
func (s *Service) FindGroupByName(ctx context.Context, name string) (*model.Group, error) {
	group, err := s.groups.FindByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("グループの検索に失敗しました: %w", err)
	}
	if group == nil {
		return nil, model.NewNotFoundError("グループ")
	}
	return group, nil
}

func (s *Service) compute(ctx context.Context, g *model.Group, totalUsers int) (*model.GroupStats, error) {
	counts, err := s.clicks.CountByGroup(ctx, g.ID)
	if err != nil {
		return nil, fmt.Errorf("クリック数の取得に失敗しました (group_id=%d): %w", g.ID, err)
	}

	st := &model.GroupStats{
		GroupID:     g.ID,
		GroupName:   g.GroupName,
		TotalClicks: counts.TotalClicks,
		UniqueUsers: counts.UniqueUsers,
		TotalUsers:  totalUsers,
	}
	if totalUsers > 0 {
		st.CTR = float64(counts.TotalClicks) / float64(totalUsers)
		st.ConversionRate = float64(counts.UniqueUsers) / float64(totalUsers)
	}
	return st, nil
}
