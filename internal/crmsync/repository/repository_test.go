package repository

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kilang-desa-murni/crm/internal/crmsync/domain"
)

func newDealRepoWithMock(t *testing.T) (*DealRepository, sqlmock.Sqlmock, *sqlx.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	sqlxDB := sqlx.NewDb(db, "postgres")
	repo := NewDealRepository(sqlxDB, nil)
	return repo, mock, sqlxDB
}

func TestDealCreateRejectsDuplicateExternalID(t *testing.T) {
	repo, mock, sqlxDB := newDealRepoWithMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	tx, err := sqlxDB.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	mock.ExpectExec(`INSERT INTO deals`).WillReturnError(&pq.Error{Code: "23505"})

	deal := &domain.Deal{
		Common: domain.Common{ExternalID: domain.NewIntID(100)},
		Title:  "Test deal",
		Opportunity: domain.Money{Amount: 1000, Currency: "KZT"},
	}
	err = repo.Create(ctx, tx, deal)
	if err == nil {
		t.Fatal("expected conflict error on duplicate external_id")
	}
}

func TestDealGetNotFound(t *testing.T) {
	repo, mock, _ := newDealRepoWithMock(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT \* FROM deals`).
		WithArgs("999").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(ctx, domain.NewIntID(999))
	if err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestDealUpdateWritesOnlySetFields(t *testing.T) {
	repo, mock, sqlxDB := newDealRepoWithMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	tx, err := sqlxDB.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	stageID := "C1:NEW"
	mock.ExpectExec(`UPDATE deals SET stage_id`).
		WithArgs(stageID, "100").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Update(ctx, tx, domain.NewIntID(100), domain.DealUpdate{StageID: &stageID})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
}

func TestDealUpdateEmptyPatchIsNoop(t *testing.T) {
	repo, _, sqlxDB := newDealRepoWithMock(t)
	ctx := context.Background()
	tx, _ := sqlxDB.Begin()

	if err := repo.Update(ctx, tx, domain.NewIntID(100), domain.DealUpdate{}); err != nil {
		t.Fatalf("empty update should be a no-op, got %v", err)
	}
}
