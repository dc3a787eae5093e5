// Package model はドメインモデルを定義する。
package model

import "time"

// User はランディングページから登録された訪問者を表す。
// emailが自然キーであり、同一emailに対しては常に同一IDが返る。
type User struct {
	ID        int64
	Name      string
	Email     string
	CreatedAt time.Time
}

// Group は実験バケットのバックエンド側の表現。
// group_nameはAssignmentのバケット名（control / variant）と一致する。
type Group struct {
	ID          int64
	GroupName   string
	Description string
	CreatedAt   time.Time
}

// Click はランディングページ上で追跡されたインタラクションの記録。
// 追記専用であり、更新・削除の経路は存在しない。
type Click struct {
	ID        int64
	UserID    int64
	GroupID   int64
	SessionID string
	PageURL   string
	UserAgent string
	IPAddress string
	Timestamp time.Time
}

// GroupStats はグループごとのクリック集計結果を表す。
type GroupStats struct {
	GroupID        int64
	GroupName      string
	TotalClicks    int
	UniqueUsers    int
	TotalUsers     int
	CTR            float64
	ConversionRate float64
}
