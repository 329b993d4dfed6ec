package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/kilang-desa-murni/crm/internal/crmsync/domain"
	"github.com/kilang-desa-murni/crm/internal/crmsync/reqctx"
)

// DealRepository is the domain-typed facade over the generic Repository
// for the deal table, converting to/from dealRow at the boundary.
type DealRepository struct {
	inner *Repository[dealRow]
}

// NewDealRepository builds a DealRepository wired with its declared
// dependencies against the given importer set.
func NewDealRepository(db *sqlx.DB, importers map[domain.Kind]Importer) *DealRepository {
	return &DealRepository{
		inner: NewRepository[dealRow](db, domain.KindDeal, dealTable, DealDependencies, importers),
	}
}

func (r *DealRepository) Get(ctx context.Context, externalID domain.ExternalID) (*domain.Deal, error) {
	row, err := r.inner.Get(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *DealRepository) Create(ctx context.Context, tx *sql.Tx, deal *domain.Deal) error {
	return r.inner.Create(ctx, tx, deal.ExternalID, dealFromDomain(deal))
}

// Update writes a sparse DealUpdate to the row for externalID.
func (r *DealRepository) Update(ctx context.Context, tx *sql.Tx, externalID domain.ExternalID, update domain.DealUpdate) error {
	clauses := map[string]interface{}{}
	if update.StageID != nil {
		clauses["stage_id"] = *update.StageID
	}
	if update.StageSemanticID != nil {
		clauses["stage_semantic_id"] = string(*update.StageSemanticID)
	}
	if update.StatusDeal != nil {
		clauses["status_deal"] = string(*update.StatusDeal)
	}
	if update.MovedDate != nil {
		clauses["moved_date"] = *update.MovedDate
	}
	if update.Opportunity != nil {
		clauses["opportunity_amount"] = update.Opportunity.Amount
		clauses["opportunity_currency"] = update.Opportunity.Currency
	}
	if update.Title != nil {
		clauses["title"] = *update.Title
	}
	if update.Comments != nil {
		clauses["comments"] = *update.Comments
	}
	return r.inner.Update(ctx, tx, externalID, clauses)
}

func (r *DealRepository) SetDeletedInBitrix(ctx context.Context, tx *sql.Tx, externalID domain.ExternalID, flag bool) error {
	return r.inner.SetDeletedInBitrix(ctx, tx, externalID, flag)
}

// RelatedChecks resolves Deal's declared dependencies (company, contact,
// assigned_by) against the coordination cache before a create/update.
func (r *DealRepository) RelatedChecks(ctx context.Context, rc *reqctx.Context) error {
	return r.inner.RelatedChecks(ctx, rc)
}
