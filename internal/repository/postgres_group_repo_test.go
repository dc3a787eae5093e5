package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var groupRowColumns = []string{"id", "group_name", "description", "created_at"}

func TestPostgresGroupRepo_FindByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresGroupRepo(db)

	mock.ExpectQuery(`FROM groups WHERE id = \$1`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(groupRowColumns).AddRow(2, "variant", "trial copy", time.Now()))

	g, err := repo.FindByID(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g == nil || g.GroupName != "variant" {
		t.Errorf("group = %+v", g)
	}
	assertExpectations(t, mock)
}

func TestPostgresGroupRepo_FindByName_NotFound_ReturnsNil(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresGroupRepo(db)

	mock.ExpectQuery(`FROM groups WHERE group_name = \$1`).
		WithArgs("holdout").
		WillReturnRows(sqlmock.NewRows(groupRowColumns))

	g, err := repo.FindByName(context.Background(), "holdout")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g != nil {
		t.Errorf("group = %+v, want nil", g)
	}
	assertExpectations(t, mock)
}

func TestPostgresGroupRepo_List_OrderedByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresGroupRepo(db)
	now := time.Now()

	mock.ExpectQuery(`FROM groups ORDER BY id`).
		WillReturnRows(sqlmock.NewRows(groupRowColumns).
			AddRow(1, "control", "original", now).
			AddRow(2, "variant", "trial", now))

	groups, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 2 || groups[0].GroupName != "control" || groups[1].ID != 2 {
		t.Errorf("groups = %+v", groups)
	}
	assertExpectations(t, mock)
}

func TestPostgresGroupRepo_List_RowError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresGroupRepo(db)

	mock.ExpectQuery(`FROM groups ORDER BY id`).
		WillReturnRows(sqlmock.NewRows(groupRowColumns).
			AddRow(1, "control", "original", time.Now()).
			RowError(0, context.DeadlineExceeded))

	if _, err := repo.List(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
