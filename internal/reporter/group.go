package reporter

import (
	"context"
	"fmt"
)

// GroupResolver はバケット名をバックエンドのグループIDに解決する。
type GroupResolver interface {
	ResolveGroupID(ctx context.Context, bucketName string) (int64, error)
}

// staticGroupIDs はマイグレーションで投入されるグループ行と一致する。
var staticGroupIDs = map[string]int64{
	"control": 1,
	"variant": 2,
}

// StaticGroupResolver は固定マッピングで解決する。
type StaticGroupResolver struct{}

// ResolveGroupID はcontrol=1、variant=2を返す。それ以外はエラー。
func (StaticGroupResolver) ResolveGroupID(_ context.Context, bucketName string) (int64, error) {
	id, ok := staticGroupIDs[bucketName]
	if !ok {
		return 0, fmt.Errorf("unknown bucket %q", bucketName)
	}
	return id, nil
}

// LookupGroupResolver はバックエンドのグループ検索APIで解決する。
type LookupGroupResolver struct {
	client *Client
}

// ResolveGroupID はGET /api/groups?name=でグループを検索する。
func (r *LookupGroupResolver) ResolveGroupID(ctx context.Context, bucketName string) (int64, error) {
	g, err := r.client.LookupGroup(ctx, bucketName)
	if err != nil {
		return 0, err
	}
	return g.ID, nil
}
