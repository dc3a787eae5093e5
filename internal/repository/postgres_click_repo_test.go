package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hitoshi/cometab/internal/model"
)

func TestPostgresClickRepo_Create_SetsIDAndTimestamp(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresClickRepo(db)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO clicks .* RETURNING id, timestamp`).
		WithArgs(int64(7), int64(2),
			sql.NullString{String: "sess-1", Valid: true},
			sql.NullString{String: "/comet-promo", Valid: true},
			sql.NullString{},
			sql.NullString{String: "203.0.113.9", Valid: true},
		).
		WillReturnRows(sqlmock.NewRows([]string{"id", "timestamp"}).AddRow(55, now))

	click := &model.Click{
		UserID:    7,
		GroupID:   2,
		SessionID: "sess-1",
		PageURL:   "/comet-promo",
		IPAddress: "203.0.113.9",
	}
	if err := repo.Create(context.Background(), click); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if click.ID != 55 {
		t.Errorf("ID = %d, want 55", click.ID)
	}
	if !click.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", click.Timestamp, now)
	}
	assertExpectations(t, mock)
}

func TestPostgresClickRepo_CountByGroup(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresClickRepo(db)

	mock.ExpectQuery(`SELECT count\(\*\), count\(DISTINCT user_id\) FROM clicks WHERE group_id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count", "count"}).AddRow(12, 5))

	counts, err := repo.CountByGroup(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts != (ClickCounts{TotalClicks: 12, UniqueUsers: 5}) {
		t.Errorf("counts = %+v", counts)
	}
	assertExpectations(t, mock)
}
