package repository

import (
	"database/sql"
	"time"

	"github.com/kilang-desa-murni/crm/internal/crmsync/domain"
)

// dealRow is the Postgres row shape for the deal table; toDomain/dealFromDomain
// convert between it and the canonical domain.Deal the rest of the system
// uses, isolating the column layout to this package.
type dealRow struct {
	LocalID           int64          `db:"id"`
	ExternalID        int64          `db:"external_id"`
	Title             string         `db:"title"`
	CategoryID        int            `db:"category_id"`
	StageID           string         `db:"stage_id"`
	StageSemanticID   string         `db:"stage_semantic_id"`
	StatusDeal        string         `db:"status_deal"`
	OpportunityAmount float64        `db:"opportunity_amount"`
	OpportunityCcy    string         `db:"opportunity_currency"`
	Probability       sql.NullInt64  `db:"probability"`
	CompanyExternalID sql.NullInt64  `db:"company_external_id"`
	ContactExternalID sql.NullInt64  `db:"contact_external_id"`
	LeadExternalID    sql.NullInt64  `db:"lead_external_id"`
	AssignedByID      int64          `db:"assigned_by_id"`
	CreatedByID       int64          `db:"created_by_id"`
	ModifyByID        sql.NullInt64  `db:"modify_by_id"`
	MovedByID         sql.NullInt64  `db:"moved_by_id"`
	LastActivityByID  sql.NullInt64  `db:"last_activity_by_id"`
	BeginDate         sql.NullTime   `db:"begin_date"`
	CloseDate         sql.NullTime   `db:"close_date"`
	MovedDate         sql.NullTime   `db:"moved_date"`
	Comments          string         `db:"comments"`
	IsDeletedInBitrix  bool          `db:"is_deleted_in_bitrix"`
	CreatedAt          time.Time     `db:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at"`
}

var dealTable = Table{Name: "deals", ExternalIDCol: "external_id", DeletedCol: "is_deleted_in_bitrix"}

func dealFromDomain(d *domain.Deal) *dealRow {
	row := &dealRow{
		LocalID:           d.LocalID,
		ExternalID:        d.ExternalID.Int,
		Title:             d.Title,
		CategoryID:        d.CategoryID,
		StageID:           d.StageID,
		StageSemanticID:   string(d.StageSemanticID),
		StatusDeal:        string(d.StatusDeal),
		OpportunityAmount: d.Opportunity.Amount,
		OpportunityCcy:    d.Opportunity.Currency,
		AssignedByID:      d.AssignedByID,
		CreatedByID:       d.CreatedByID,
		Comments:          d.Comments,
		IsDeletedInBitrix: d.IsDeletedInBitrix,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
	if d.Probability != nil {
		row.Probability = sql.NullInt64{Int64: int64(*d.Probability), Valid: true}
	}
	if d.CompanyExternalID != nil {
		row.CompanyExternalID = sql.NullInt64{Int64: *d.CompanyExternalID, Valid: true}
	}
	if d.ContactExternalID != nil {
		row.ContactExternalID = sql.NullInt64{Int64: *d.ContactExternalID, Valid: true}
	}
	if d.LeadExternalID != nil {
		row.LeadExternalID = sql.NullInt64{Int64: *d.LeadExternalID, Valid: true}
	}
	if d.ModifyByID != nil {
		row.ModifyByID = sql.NullInt64{Int64: *d.ModifyByID, Valid: true}
	}
	if d.MovedByID != nil {
		row.MovedByID = sql.NullInt64{Int64: *d.MovedByID, Valid: true}
	}
	if d.LastActivityByID != nil {
		row.LastActivityByID = sql.NullInt64{Int64: *d.LastActivityByID, Valid: true}
	}
	if d.BeginDate != nil {
		row.BeginDate = sql.NullTime{Time: *d.BeginDate, Valid: true}
	}
	if d.CloseDate != nil {
		row.CloseDate = sql.NullTime{Time: *d.CloseDate, Valid: true}
	}
	if d.MovedDate != nil {
		row.MovedDate = sql.NullTime{Time: *d.MovedDate, Valid: true}
	}
	return row
}

func (row *dealRow) toDomain() *domain.Deal {
	d := &domain.Deal{
		Common: domain.Common{
			LocalID:           row.LocalID,
			ExternalID:        domain.NewIntID(row.ExternalID),
			CreatedAt:         row.CreatedAt,
			UpdatedAt:         row.UpdatedAt,
			IsDeletedInBitrix: row.IsDeletedInBitrix,
		},
		Title:           row.Title,
		CategoryID:      row.CategoryID,
		StageID:         row.StageID,
		StageSemanticID: domain.SemanticStage(row.StageSemanticID),
		StatusDeal:      domain.StatusDeal(row.StatusDeal),
		Opportunity:     domain.Money{Amount: row.OpportunityAmount, Currency: row.OpportunityCcy},
		AssignedByID:    row.AssignedByID,
		CreatedByID:     row.CreatedByID,
		Comments:        row.Comments,
	}
	if row.Probability.Valid {
		p := int(row.Probability.Int64)
		d.Probability = &p
	}
	if row.CompanyExternalID.Valid {
		d.CompanyExternalID = &row.CompanyExternalID.Int64
	}
	if row.ContactExternalID.Valid {
		d.ContactExternalID = &row.ContactExternalID.Int64
	}
	if row.LeadExternalID.Valid {
		d.LeadExternalID = &row.LeadExternalID.Int64
	}
	if row.ModifyByID.Valid {
		d.ModifyByID = &row.ModifyByID.Int64
	}
	if row.MovedByID.Valid {
		d.MovedByID = &row.MovedByID.Int64
	}
	if row.LastActivityByID.Valid {
		d.LastActivityByID = &row.LastActivityByID.Int64
	}
	if row.BeginDate.Valid {
		d.BeginDate = &row.BeginDate.Time
	}
	if row.CloseDate.Valid {
		d.CloseDate = &row.CloseDate.Time
	}
	if row.MovedDate.Valid {
		d.MovedDate = &row.MovedDate.Time
	}
	return d
}

// DealDependencies declares Deal's foreign references per §4.3: company
// and contact are optional, the assigning user is required.
var DealDependencies = []Dependency{
	{Field: "company", Kind: domain.KindCompany, Required: false},
	{Field: "contact", Kind: domain.KindContact, Required: false},
	{Field: "assigned_by", Kind: domain.KindUser, Required: true},
}
