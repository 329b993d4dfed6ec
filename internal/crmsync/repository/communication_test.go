package repository

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/kilang-desa-murni/crm/internal/crmsync/domain"
)

func TestReplaceChannelsDeletesThenInserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	repo := &CommunicationRepository{}
	ctx := context.Background()

	mock.ExpectBegin()
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	mock.ExpectQuery(`SELECT id FROM communication_channel_types`).
		WithArgs(string(domain.ChannelPhone), "PHONE").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	mock.ExpectExec(`DELETE FROM communication_channels`).
		WithArgs("DEAL", int64(42), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	mock.ExpectExec(`INSERT INTO communication_channels`).
		WithArgs("DEAL", int64(42), int64(1), "+1000").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO communication_channels`).
		WithArgs("DEAL", int64(42), int64(1), "+2000").
		WillReturnResult(sqlmock.NewResult(2, 1))

	if err := repo.ReplaceChannels(ctx, tx, "DEAL", 42, domain.ChannelPhone, "PHONE", []string{"+1000", "+2000"}); err != nil {
		t.Fatalf("ReplaceChannels: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReplaceChannelsEmptyListClears(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	repo := &CommunicationRepository{}
	ctx := context.Background()
	mock.ExpectBegin()
	tx, _ := db.Begin()

	mock.ExpectQuery(`SELECT id FROM communication_channel_types`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectExec(`DELETE FROM communication_channels`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.ReplaceChannels(ctx, tx, "CONTACT", 7, domain.ChannelEmail, "EMAIL", nil); err != nil {
		t.Fatalf("ReplaceChannels with empty values: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
