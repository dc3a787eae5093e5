package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/cometab/internal/model"
)

// PostgresClickRepo はPostgreSQLを使用したクリックリポジトリ。
type PostgresClickRepo struct {
	db *sql.DB
}

// NewPostgresClickRepo はPostgresClickRepoを生成する。
func NewPostgresClickRepo(db *sql.DB) *PostgresClickRepo {
	return &PostgresClickRepo{db: db}
}

// Create はクリックを記録する。空文字の任意項目はNULLとして保存する。
func (r *PostgresClickRepo) Create(ctx context.Context, click *model.Click) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO clicks (user_id, group_id, session_id, page_url, user_agent, ip_address)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, timestamp`,
		click.UserID, click.GroupID,
		nullString(click.SessionID), nullString(click.PageURL),
		nullString(click.UserAgent), nullString(click.IPAddress),
	).Scan(&click.ID, &click.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert click: %w", err)
	}
	return nil
}

// CountByGroup は指定グループのクリック数とユニークユーザー数を返す。
func (r *PostgresClickRepo) CountByGroup(ctx context.Context, groupID int64) (ClickCounts, error) {
	var c ClickCounts
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*), count(DISTINCT user_id) FROM clicks WHERE group_id = $1`,
		groupID,
	).Scan(&c.TotalClicks, &c.UniqueUsers)
	if err != nil {
		return ClickCounts{}, fmt.Errorf("failed to count clicks: %w", err)
	}
	return c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ ClickRepository = (*PostgresClickRepo)(nil)
