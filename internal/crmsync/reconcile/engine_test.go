package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/kilang-desa-murni/crm/internal/crmsync/domain"
	"github.com/kilang-desa-murni/crm/pkg/errors"
)

func testStages() domain.StageTable {
	return domain.StageTable{
		1: {ExternalID: "NEW", SortOrder: 1},
		2: {ExternalID: "C1:PREPARATION", SortOrder: 2},
		3: {ExternalID: "C1:EXECUTING", SortOrder: 3},
	}
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

// E1 — first deal import: CRM already reports the target state, so no CRM
// write is needed; the DB still gets the normalized first-observation row.
func TestReconcileFirstImportMatchingCRM(t *testing.T) {
	today := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	engine := NewEngine(testStages())
	engine.Now = fixedClock(today)

	crmDeal := &domain.Deal{
		Common:          domain.Common{ExternalID: domain.NewIntID(42)},
		Title:           "T",
		CategoryID:      0,
		StageID:         "NEW",
		StageSemanticID: domain.SemanticProspective,
		StatusDeal:      domain.StatusNew,
		MovedDate:       &today,
	}

	outcome, err := engine.Reconcile(context.Background(), crmDeal, nil)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if outcome.Skipped {
		t.Fatal("main-funnel deal should not be skipped")
	}
	if !outcome.FirstImport {
		t.Fatal("expected FirstImport")
	}
	if outcome.DBUpdate.StageID == nil || *outcome.DBUpdate.StageID != "NEW" {
		t.Fatalf("DBUpdate.StageID = %v", outcome.DBUpdate.StageID)
	}
	if outcome.DBUpdate.StatusDeal == nil || *outcome.DBUpdate.StatusDeal != domain.StatusNew {
		t.Fatalf("DBUpdate.StatusDeal = %v", outcome.DBUpdate.StatusDeal)
	}
	if len(outcome.CRMUpdate) != 0 {
		t.Fatalf("expected no CRM write when CRM already matches target state, got %v", outcome.CRMUpdate)
	}
}

// E2 — external status change is rolled back: DB is authoritative.
func TestReconcileExternalStatusChangeRollsBack(t *testing.T) {
	engine := NewEngine(testStages())

	dbDeal := &domain.Deal{
		Common:     domain.Common{ExternalID: domain.NewIntID(7)},
		CategoryID: 0,
		StageID:    "C1:PREPARATION",
		StatusDeal: domain.StatusAccepted,
	}
	crmDeal := &domain.Deal{
		Common:     domain.Common{ExternalID: domain.NewIntID(7)},
		CategoryID: 0,
		StageID:    "C1:PREPARATION",
		StatusDeal: domain.StatusNew,
	}

	outcome, err := engine.Reconcile(context.Background(), crmDeal, dbDeal)
	if err == nil {
		t.Fatal("expected invalid-state error")
	}
	appErr, ok := err.(*errors.AppError)
	if !ok || appErr.Code != errors.ErrCodeInvalidDealState {
		t.Fatalf("expected ErrCodeInvalidDealState, got %v", err)
	}
	if outcome.CRMUpdate["UF_CRM_STATUS_DEAL"] != string(domain.StatusAccepted) {
		t.Fatalf("expected CRM write-back of DB status, got %v", outcome.CRMUpdate)
	}
	if !outcome.DBUpdate.IsEmpty() {
		t.Fatal("expected no DB write on rollback")
	}
}

// E3 — fail deal: status forced to DEAL_LOSE, moved_date snapped to today.
func TestReconcileFailDealForcesLose(t *testing.T) {
	today := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	stale := time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC)
	engine := NewEngine(testStages())
	engine.Now = fixedClock(today)

	dbDeal := &domain.Deal{
		Common:     domain.Common{ExternalID: domain.NewIntID(9)},
		CategoryID: 0,
		StageID:    "C1:PREPARATION",
		StatusDeal: domain.StatusNew,
		MovedDate:  &stale,
	}
	crmDeal := &domain.Deal{
		Common:          domain.Common{ExternalID: domain.NewIntID(9)},
		CategoryID:      0,
		StageID:         "C1:PREPARATION",
		StageSemanticID: domain.SemanticFail,
		StatusDeal:      domain.StatusNew,
		MovedDate:       &stale,
	}

	outcome, err := engine.Reconcile(context.Background(), crmDeal, dbDeal)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if outcome.DBUpdate.StatusDeal == nil || *outcome.DBUpdate.StatusDeal != domain.StatusDealLose {
		t.Fatalf("DBUpdate.StatusDeal = %v", outcome.DBUpdate.StatusDeal)
	}
	if outcome.DBUpdate.MovedDate == nil || !outcome.DBUpdate.MovedDate.Equal(today) {
		t.Fatalf("DBUpdate.MovedDate = %v", outcome.DBUpdate.MovedDate)
	}
	if outcome.CRMUpdate["UF_CRM_STATUS_DEAL"] != string(domain.StatusDealLose) {
		t.Fatalf("CRMUpdate missing status write, got %v", outcome.CRMUpdate)
	}
}

func TestReconcileNotInMainFunnelSkips(t *testing.T) {
	engine := NewEngine(testStages())
	crmDeal := &domain.Deal{CategoryID: 5}
	outcome, err := engine.Reconcile(context.Background(), crmDeal, nil)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !outcome.Skipped {
		t.Fatal("expected Skipped for non-main-funnel deal")
	}
}

func TestReconcileNewStatusClampsToSecondStage(t *testing.T) {
	engine := NewEngine(testStages())
	dbDeal := &domain.Deal{
		Common:     domain.Common{ExternalID: domain.NewIntID(3)},
		CategoryID: 0,
		StageID:    "C1:EXECUTING", // sort_order 3, ahead of NEW's sort_order 1
		StatusDeal: domain.StatusNew,
	}
	crmDeal := &domain.Deal{
		Common:     domain.Common{ExternalID: domain.NewIntID(3)},
		CategoryID: 0,
		StageID:    "C1:EXECUTING",
		StatusDeal: domain.StatusNew,
	}

	outcome, err := engine.Reconcile(context.Background(), crmDeal, dbDeal)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if outcome.DBUpdate.StageID == nil || *outcome.DBUpdate.StageID != "C1:PREPARATION" {
		t.Fatalf("DBUpdate.StageID = %v", outcome.DBUpdate.StageID)
	}
	if outcome.DBUpdate.StatusDeal == nil || *outcome.DBUpdate.StatusDeal != domain.StatusAccepted {
		t.Fatalf("DBUpdate.StatusDeal = %v", outcome.DBUpdate.StatusDeal)
	}
}

func TestReconcileAcceptedWithCompanyAdvancesToThird(t *testing.T) {
	engine := NewEngine(testStages())
	companyID := int64(1)
	dbDeal := &domain.Deal{
		Common:            domain.Common{ExternalID: domain.NewIntID(4)},
		CategoryID:        0,
		StageID:           "C1:PREPARATION",
		StatusDeal:        domain.StatusAccepted,
		CompanyExternalID: &companyID,
	}
	crmDeal := &domain.Deal{
		Common:            domain.Common{ExternalID: domain.NewIntID(4)},
		CategoryID:        0,
		StageID:           "C1:PREPARATION",
		StatusDeal:        domain.StatusAccepted,
		CompanyExternalID: &companyID,
	}

	outcome, err := engine.Reconcile(context.Background(), crmDeal, dbDeal)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if outcome.DBUpdate.StageID == nil || *outcome.DBUpdate.StageID != "C1:EXECUTING" {
		t.Fatalf("DBUpdate.StageID = %v", outcome.DBUpdate.StageID)
	}
}

func TestReconcileAcceptedWithoutCompanyStaysAtSecond(t *testing.T) {
	engine := NewEngine(testStages())
	dbDeal := &domain.Deal{
		Common:     domain.Common{ExternalID: domain.NewIntID(5)},
		CategoryID: 0,
		StageID:    "C1:PREPARATION",
		StatusDeal: domain.StatusAccepted,
	}
	crmDeal := &domain.Deal{
		Common:     domain.Common{ExternalID: domain.NewIntID(5)},
		CategoryID: 0,
		StageID:    "C1:PREPARATION",
		StatusDeal: domain.StatusAccepted,
	}

	outcome, err := engine.Reconcile(context.Background(), crmDeal, dbDeal)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if outcome.DBUpdate.StageID != nil {
		t.Fatalf("expected no stage change, got %v", *outcome.DBUpdate.StageID)
	}
}
