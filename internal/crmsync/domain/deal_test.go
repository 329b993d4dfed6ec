package domain

import "testing"

func TestDealUpdateApplyToOverridesBlankLegacyStatus(t *testing.T) {
	// E1: CRM sends STATUS_DEAL legacy-blank and no MOVED_TIME; the first-
	// import DBUpdate still carries the reconciled NEW status and stage-1 id.
	deal := &Deal{StatusDeal: "", StageID: ""}
	stage := "NEW"
	status := StatusNew

	update := DealUpdate{StageID: &stage, StatusDeal: &status}
	update.ApplyTo(deal)

	if deal.StatusDeal != StatusNew {
		t.Fatalf("StatusDeal = %q, want %q", deal.StatusDeal, StatusNew)
	}
	if deal.StageID != "NEW" {
		t.Fatalf("StageID = %q, want NEW", deal.StageID)
	}
}

func TestDealUpdateApplyToOverridesFirstSeenFailStatus(t *testing.T) {
	// E3: a first-seen FAIL deal must end up DEAL_LOSE in the DB, not
	// whatever status CRM happened to report.
	deal := &Deal{StatusDeal: StatusAccepted}
	status := StatusDealLose

	update := DealUpdate{StatusDeal: &status}
	update.ApplyTo(deal)

	if deal.StatusDeal != StatusDealLose {
		t.Fatalf("StatusDeal = %q, want %q", deal.StatusDeal, StatusDealLose)
	}
}

func TestDealUpdateApplyToLeavesUnsetFieldsUntouched(t *testing.T) {
	deal := &Deal{Title: "original", Comments: "kept"}
	status := StatusNew

	update := DealUpdate{StatusDeal: &status}
	update.ApplyTo(deal)

	if deal.Title != "original" || deal.Comments != "kept" {
		t.Fatalf("unset fields were overwritten: %+v", deal)
	}
}
