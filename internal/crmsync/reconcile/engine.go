package reconcile

import (
	"context"
	"time"

	"github.com/kilang-desa-murni/crm/internal/crmsync/bitrix"
	"github.com/kilang-desa-murni/crm/internal/crmsync/domain"
	"github.com/kilang-desa-murni/crm/pkg/errors"
)

// ProductCheck decides whether a deal's attached products satisfy the
// condition gating the ACCEPTED→sort_order-3 transition. Hard-coded true
// in the system this was derived from; kept as a pluggable predicate with
// that same default.
type ProductCheck func(ctx context.Context, deal *domain.Deal) bool

func defaultProductCheck(context.Context, *domain.Deal) bool { return true }

// Engine implements the deal reconciliation policy (component G) against a
// portal's precomputed stage table.
type Engine struct {
	Stages       domain.StageTable
	ProductCheck ProductCheck
	Now          func() time.Time
}

// NewEngine builds an Engine with the default product check (always true)
// and the real clock.
func NewEngine(stages domain.StageTable) *Engine {
	return &Engine{Stages: stages, ProductCheck: defaultProductCheck, Now: time.Now}
}

// Outcome is what Reconcile decided to write.
type Outcome struct {
	DBUpdate    domain.DealUpdate
	CRMUpdate   map[string]interface{}
	FirstImport bool
	Skipped     bool // not in main funnel; short-circuits to success, no writes
}

// Reconcile runs the §4.7 policy. crmDeal is the CRM-observed state;
// dbDeal is nil on first observation. The DB write always precedes the CRM
// write at the call site; Reconcile only computes what each side needs.
func (e *Engine) Reconcile(ctx context.Context, crmDeal *domain.Deal, dbDeal *domain.Deal) (Outcome, error) {
	if !crmDeal.IsMainFunnel() {
		return Outcome{Skipped: true}, nil
	}

	today := e.Now()
	tracker := NewTracker()
	firstImport := dbDeal == nil

	switch {
	case crmDeal.StageSemanticID == domain.SemanticFail:
		tracker.SetStatusDeal(domain.StatusDealLose)
		if firstImport || !sameDay(movedDateOf(dbDeal), today) {
			tracker.SetMovedDate(today)
		}

	case firstImport:
		tracker.SetStatusDeal(domain.StatusNew)
		if stage, ok := e.Stages.BySortOrder(domain.InitialSortOrder); ok {
			tracker.SetStageID(stage.ExternalID)
		}
		tracker.SetMovedDate(today)

	default:
		if crmDeal.StatusDeal != dbDeal.StatusDeal {
			return Outcome{
					CRMUpdate: map[string]interface{}{"UF_CRM_STATUS_DEAL": string(dbDeal.StatusDeal)},
				}, errors.Newf(errors.ErrCodeInvalidDealState,
					"deal %s: status_deal changed in CRM (%s != %s); DB is authoritative, rolled back",
					crmDeal.ExternalID.String(), crmDeal.StatusDeal, dbDeal.StatusDeal)
		}

		e.dispatchByStatus(ctx, dbDeal, tracker)
	}

	externalDiff := Diff(crmDeal, dbDeal, DefaultExcludedFields)
	if !tracker.HasChanges() && externalDiff.IsEmpty() && !firstImport {
		return Outcome{}, nil
	}

	tracker.MergeExternalDiff(externalDiff)
	update := tracker.Update()

	return Outcome{
		DBUpdate:    update,
		CRMUpdate:   filterCRMChanges(crmDeal, update),
		FirstImport: firstImport,
	}, nil
}

// dispatchByStatus applies the NEW/ACCEPTED stage clamps; other statuses
// are a documented no-op (logged by the caller, not here).
func (e *Engine) dispatchByStatus(ctx context.Context, dbDeal *domain.Deal, tracker *Tracker) {
	currentOrder, ok := e.Stages.SortOrderOf(dbDeal.StageID)
	if !ok {
		return
	}

	switch dbDeal.StatusDeal {
	case domain.StatusNew:
		if currentOrder > domain.InitialSortOrder {
			if stage, ok := e.Stages.BySortOrder(domain.SecondSortOrder); ok {
				tracker.SetStageID(stage.ExternalID)
			}
			tracker.SetStatusDeal(domain.StatusAccepted)
		}

	case domain.StatusAccepted:
		available := domain.SecondSortOrder
		if dbDeal.CompanyExternalID != nil && e.ProductCheck(ctx, dbDeal) {
			available = domain.ThirdSortOrder
		}
		if currentOrder != available {
			if stage, ok := e.Stages.BySortOrder(available); ok {
				tracker.SetStageID(stage.ExternalID)
			}
		}
	}
}

// filterCRMChanges keeps only the fields in update whose value actually
// differs from CRM's own copy, since DB-authoritative fields only need
// pushing back when they diverge from what CRM already reports (E1: a
// first-time deal whose CRM fields already match the target state writes
// nothing back).
func filterCRMChanges(crmDeal *domain.Deal, update domain.DealUpdate) map[string]interface{} {
	fields := map[string]interface{}{}
	if update.StageID != nil && *update.StageID != crmDeal.StageID {
		fields["STAGE_ID"] = *update.StageID
	}
	if update.StatusDeal != nil && *update.StatusDeal != crmDeal.StatusDeal {
		fields["UF_CRM_STATUS_DEAL"] = string(*update.StatusDeal)
	}
	if update.MovedDate != nil && (crmDeal.MovedDate == nil || !update.MovedDate.Equal(*crmDeal.MovedDate)) {
		fields["MOVED_TIME"] = bitrix.EncodeDateTime(*update.MovedDate, false)
	}
	if update.Opportunity != nil && *update.Opportunity != crmDeal.Opportunity {
		fields["OPPORTUNITY"] = bitrix.EncodeMoney(update.Opportunity.Amount, update.Opportunity.Currency)
	}
	if update.Title != nil && *update.Title != crmDeal.Title {
		fields["TITLE"] = *update.Title
	}
	if update.Comments != nil && *update.Comments != crmDeal.Comments {
		fields["COMMENTS"] = *update.Comments
	}
	return fields
}

func movedDateOf(d *domain.Deal) time.Time {
	if d == nil || d.MovedDate == nil {
		return time.Time{}
	}
	return *d.MovedDate
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
