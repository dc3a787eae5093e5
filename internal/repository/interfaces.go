// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/cometab/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// RegisterWithInitialClick はemailをキーにユーザーをfind-or-createする。
	// 新規作成した場合は同一トランザクションで初回のクリックを記録する。
	// createdは今回の呼び出しで作成された場合にtrueとなる。
	RegisterWithInitialClick(ctx context.Context, name, email string, groupID int64) (user *model.User, created bool, err error)

	// FindByEmail はemailでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// Count は全ユーザー数を返す。
	Count(ctx context.Context) (int, error)
}

// GroupRepository は実験グループの永続化インターフェース。
type GroupRepository interface {
	// FindByID は指定IDのグループを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Group, error)

	// FindByName はgroup_nameでグループを検索する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.Group, error)

	// List は全グループをID順に返す。
	List(ctx context.Context) ([]*model.Group, error)
}

// ClickRepository はクリックの永続化インターフェース。クリックは追記のみ。
type ClickRepository interface {
	// Create はクリックを記録し、採番されたIDとタイムスタンプをclickに設定する。
	Create(ctx context.Context, click *model.Click) error

	// CountByGroup は指定グループのクリック数とクリックしたユニークユーザー数を返す。
	CountByGroup(ctx context.Context, groupID int64) (ClickCounts, error)
}

// ClickCounts はグループ単位のクリック集計。
type ClickCounts struct {
	TotalClicks int
	UniqueUsers int
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
