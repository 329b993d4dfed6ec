// Package reconcile implements the deal reconciliation engine (component
// G): a stage/status state machine that diffs CRM state against DB state
// and produces a bounded set of writes to both sides.
package reconcile

import (
	"time"

	"github.com/kilang-desa-murni/crm/internal/crmsync/domain"
)

// DefaultExcludedFields names the fields the reconciliation policy itself
// owns; a blind CRM→DB diff must not clobber them with CRM's copy.
var DefaultExcludedFields = map[string]bool{
	"StageID":         true,
	"StageSemanticID": true,
	"StatusDeal":      true,
	"MovedDate":       true,
}

// Diff computes the field-level DB write needed to catch CRM's copy of the
// fields the policy doesn't itself control, skipping any named in exclude.
func Diff(crmDeal, dbDeal *domain.Deal, exclude map[string]bool) domain.DealUpdate {
	var update domain.DealUpdate
	if dbDeal == nil {
		return update
	}
	if !exclude["Title"] && crmDeal.Title != dbDeal.Title {
		v := crmDeal.Title
		update.Title = &v
	}
	if !exclude["Opportunity"] && crmDeal.Opportunity != dbDeal.Opportunity {
		v := crmDeal.Opportunity
		update.Opportunity = &v
	}
	if !exclude["Comments"] && crmDeal.Comments != dbDeal.Comments {
		v := crmDeal.Comments
		update.Comments = &v
	}
	return update
}

// Tracker accumulates field-level flips as the reconciliation policy runs
// and reports whether it changed anything (§4.7's diff tracker).
type Tracker struct {
	update domain.DealUpdate
	dirty  bool
}

func NewTracker() *Tracker { return &Tracker{} }

func (t *Tracker) SetStageID(v string) {
	t.update.StageID = &v
	t.dirty = true
}

func (t *Tracker) SetStageSemanticID(v domain.SemanticStage) {
	t.update.StageSemanticID = &v
	t.dirty = true
}

func (t *Tracker) SetStatusDeal(v domain.StatusDeal) {
	t.update.StatusDeal = &v
	t.dirty = true
}

func (t *Tracker) SetMovedDate(v time.Time) {
	t.update.MovedDate = &v
	t.dirty = true
}

// HasChanges reports whether the policy itself flipped any field.
func (t *Tracker) HasChanges() bool { return t.dirty }

// Update returns the accumulated DealUpdate.
func (t *Tracker) Update() domain.DealUpdate { return t.update }

// MergeExternalDiff folds fields present in diff that the tracker itself
// did not already set, so one DealUpdate carries both the policy's own
// flips and any other out-of-band CRM change persisted in the same write.
func (t *Tracker) MergeExternalDiff(diff domain.DealUpdate) {
	if t.update.Title == nil {
		t.update.Title = diff.Title
	}
	if t.update.Opportunity == nil {
		t.update.Opportunity = diff.Opportunity
	}
	if t.update.Comments == nil {
		t.update.Comments = diff.Comments
	}
}
