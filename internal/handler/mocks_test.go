package handler

import (
	"context"
	"errors"

	"github.com/hitoshi/cometab/internal/model"
)

// --- モック定義 ---

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	registerFn    func(ctx context.Context, name, email string, groupID int64) (*model.User, bool, error)
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
}

func (m *mockUserService) Register(ctx context.Context, name, email string, groupID int64) (*model.User, bool, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, name, email, groupID)
	}
	return &model.User{ID: 1, Name: name, Email: email}, true, nil
}

func (m *mockUserService) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, model.NewNotFoundError("ユーザー")
}

// mockClickService はClickServiceInterfaceのモック実装。
type mockClickService struct {
	logFn  func(ctx context.Context, c *model.Click) error
	logged []*model.Click
}

func (m *mockClickService) Log(ctx context.Context, c *model.Click) error {
	if m.logFn != nil {
		if err := m.logFn(ctx, c); err != nil {
			return err
		}
	}
	c.ID = int64(len(m.logged) + 100)
	m.logged = append(m.logged, c)
	return nil
}

// mockStatsService はStatsServiceInterfaceのモック実装。
type mockStatsService struct {
	groupStatsFn func(ctx context.Context, groupID int64) (*model.GroupStats, error)
	allStatsFn   func(ctx context.Context) ([]model.GroupStats, error)
	findGroupFn  func(ctx context.Context, name string) (*model.Group, error)
}

func (m *mockStatsService) GroupStats(ctx context.Context, groupID int64) (*model.GroupStats, error) {
	if m.groupStatsFn != nil {
		return m.groupStatsFn(ctx, groupID)
	}
	return nil, model.NewGroupNotFoundError("")
}

func (m *mockStatsService) AllStats(ctx context.Context) ([]model.GroupStats, error) {
	if m.allStatsFn != nil {
		return m.allStatsFn(ctx)
	}
	return nil, nil
}

func (m *mockStatsService) FindGroupByName(ctx context.Context, name string) (*model.Group, error) {
	if m.findGroupFn != nil {
		return m.findGroupFn(ctx, name)
	}
	return nil, model.NewNotFoundError("グループ")
}

// mockPinger はPingerのモック実装。
type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.err
}

var errDatabaseDown = errors.New("database is down")
