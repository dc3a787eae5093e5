package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/cometab/internal/model"
)

// PostgresGroupRepo はPostgreSQLを使用したグループリポジトリ。
type PostgresGroupRepo struct {
	db *sql.DB
}

// NewPostgresGroupRepo はPostgresGroupRepoを生成する。
func NewPostgresGroupRepo(db *sql.DB) *PostgresGroupRepo {
	return &PostgresGroupRepo{db: db}
}

const groupColumns = `id, group_name, description, created_at`

// FindByID は指定IDのグループを取得する。見つからない場合はnilを返す。
func (r *PostgresGroupRepo) FindByID(ctx context.Context, id int64) (*model.Group, error) {
	g, err := scanGroup(r.db.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM groups WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to find group by ID: %w", err)
	}
	return g, nil
}

// FindByName はgroup_nameでグループを検索する。見つからない場合はnilを返す。
func (r *PostgresGroupRepo) FindByName(ctx context.Context, name string) (*model.Group, error) {
	g, err := scanGroup(r.db.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM groups WHERE group_name = $1`, name))
	if err != nil {
		return nil, fmt.Errorf("failed to find group by name: %w", err)
	}
	return g, nil
}

// List は全グループをID順に返す。
func (r *PostgresGroupRepo) List(ctx context.Context) ([]*model.Group, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+groupColumns+` FROM groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*model.Group
	for rows.Next() {
		g := &model.Group{}
		if err := rows.Scan(&g.ID, &g.GroupName, &g.Description, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}
	return groups, nil
}

// scanGroup は1行をGroupに読み込む。行がない場合はnil, nilを返す。
func scanGroup(row *sql.Row) (*model.Group, error) {
	g := &model.Group{}
	err := row.Scan(&g.ID, &g.GroupName, &g.Description, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

// compile-time interface check
var _ GroupRepository = (*PostgresGroupRepo)(nil)
