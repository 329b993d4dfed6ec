package domain

import "time"

// SemanticStage is the coarse classification of a deal's stage.
type SemanticStage string

const (
	SemanticProspective SemanticStage = "P"
	SemanticSuccess     SemanticStage = "S"
	SemanticFail        SemanticStage = "F"
)

// StatusDeal is the finer-grained status tracked in a user field; DB is
// authoritative for this value, CRM's copy is advisory until reconciled.
type StatusDeal string

const (
	StatusNew      StatusDeal = "NEW"
	StatusAccepted StatusDeal = "ACCEPTED"
	StatusDealLose StatusDeal = "DEAL_LOSE"
)

// Stage describes one of the 13 ordered CRM deal stages.
type Stage struct {
	ExternalID string
	SortOrder  int
}

// InitialSortOrder is the sort_order assigned to brand-new deals.
const InitialSortOrder = 1

// SecondSortOrder is the stage a NEW-status deal is clamped into once it
// has moved off the initial stage, and the ceiling the ACCEPTED-status
// deal clamps back to when the product/company check fails.
const SecondSortOrder = 2

// ThirdSortOrder is the stage ACCEPTED deals advance to once a company is
// present and the (pluggable) product check passes.
const ThirdSortOrder = 3

// MainFunnelCategoryID is the category_id value reconciliation rules apply to.
const MainFunnelCategoryID = 0

// StagesBySortOrder maps sort_order (1..13) to its CRM stage external id.
// Populated at startup from the portal's deal-stage listing; callers index
// it directly rather than hard-coding stage external ids.
type StageTable map[int]Stage

// BySortOrder looks up the stage at the given sort order.
func (t StageTable) BySortOrder(order int) (Stage, bool) {
	s, ok := t[order]
	return s, ok
}

// SortOrderOf returns the sort order of the stage with the given external id.
func (t StageTable) SortOrderOf(externalID string) (int, bool) {
	for order, s := range t {
		if s.ExternalID == externalID {
			return order, true
		}
	}
	return 0, false
}

// Deal is the local, canonical representation of a CRM deal record.
type Deal struct {
	Common

	Title           string
	CategoryID      int
	StageID         string
	StageSemanticID SemanticStage
	StatusDeal      StatusDeal
	Opportunity     Money
	Probability     *int

	CompanyExternalID *int64
	ContactExternalID *int64
	LeadExternalID    *int64

	AssignedByID     int64
	CreatedByID      int64
	ModifyByID       *int64
	MovedByID        *int64
	LastActivityByID *int64

	BeginDate  *time.Time
	CloseDate  *time.Time
	MovedDate  *time.Time

	Comments string
}

// IsMainFunnel reports whether this deal participates in reconciliation.
func (d Deal) IsMainFunnel() bool { return d.CategoryID == MainFunnelCategoryID }

// DealUpdate is a sparse set of field changes; only fields explicitly set
// by the diff tracker (or merged in from the CRM/DB diff) are written.
type DealUpdate struct {
	StageID         *string
	StageSemanticID *SemanticStage
	StatusDeal      *StatusDeal
	MovedDate       *time.Time
	Opportunity     *Money
	Title           *string
	Comments        *string
}

// IsEmpty reports whether the update carries no field changes.
func (u DealUpdate) IsEmpty() bool {
	return u.StageID == nil && u.StageSemanticID == nil && u.StatusDeal == nil &&
		u.MovedDate == nil && u.Opportunity == nil && u.Title == nil && u.Comments == nil
}

// ApplyTo folds the sparse update onto deal in place, so a first-import row
// reflects the reconciled state rather than the raw CRM read.
func (u DealUpdate) ApplyTo(deal *Deal) {
	if u.StageID != nil {
		deal.StageID = *u.StageID
	}
	if u.StageSemanticID != nil {
		deal.StageSemanticID = *u.StageSemanticID
	}
	if u.StatusDeal != nil {
		deal.StatusDeal = *u.StatusDeal
	}
	if u.MovedDate != nil {
		deal.MovedDate = u.MovedDate
	}
	if u.Opportunity != nil {
		deal.Opportunity = *u.Opportunity
	}
	if u.Title != nil {
		deal.Title = *u.Title
	}
	if u.Comments != nil {
		deal.Comments = *u.Comments
	}
}

// AdditionalInfo is the 1:0..1 side record attached to a deal.
type AdditionalInfo struct {
	DealExternalID int64
	Payload        map[string]string
}

// ProductAgreementSupervisor is a 1:N side record keyed by deal.
type ProductAgreementSupervisor struct {
	DealExternalID int64
	UserExternalID int64
}

// TimelineComment is a derived, view-only record of a CRM timeline comment.
type TimelineComment struct {
	Common
	EntityType     string
	EntityID       int64
	AuthorID       int64
	Text           string
}

// ProductRow is a single line item attached to a deal's product rows.
type ProductRow struct {
	ProductID int64
	Quantity  float64
	Price     Money
	Discount  float64
}
