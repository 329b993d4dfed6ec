package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/kilang-desa-murni/crm/internal/crmsync/domain"
)

// LeadRepository is the domain-typed facade over the generic Repository
// for the leads table.
type LeadRepository struct{ inner *Repository[leadRow] }

func NewLeadRepository(db *sqlx.DB, importers map[domain.Kind]Importer) *LeadRepository {
	return &LeadRepository{inner: NewRepository[leadRow](db, domain.KindLead, leadTable, LeadDependencies, importers)}
}

func (r *LeadRepository) Get(ctx context.Context, id domain.ExternalID) (*domain.Lead, error) {
	row, err := r.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *LeadRepository) Create(ctx context.Context, tx *sql.Tx, l *domain.Lead) error {
	return r.inner.Create(ctx, tx, l.ExternalID, leadFromDomain(l))
}

// Replace overwrites the full row for id, used by the ingest pipeline's
// refresh and create-conflict-fallback paths.
func (r *LeadRepository) Replace(ctx context.Context, tx *sql.Tx, id domain.ExternalID, l *domain.Lead) error {
	row := leadFromDomain(l)
	return r.inner.Update(ctx, tx, id, map[string]interface{}{
		"title": row.Title, "name": row.Name,
		"assigned_by_id": row.AssignedByID, "created_by_id": row.CreatedByID,
		"is_deleted_in_bitrix": row.IsDeletedInBitrix,
	})
}

func (r *LeadRepository) Exists(ctx context.Context, id domain.ExternalID) (bool, error) {
	_, err := r.inner.Get(ctx, id)
	return err == nil, nil
}

func (r *LeadRepository) SetDeletedInBitrix(ctx context.Context, tx *sql.Tx, id domain.ExternalID, flag bool) error {
	return r.inner.SetDeletedInBitrix(ctx, tx, id, flag)
}

// CompanyRepository is the domain-typed facade over the generic Repository
// for the companies table.
type CompanyRepository struct{ inner *Repository[companyRow] }

func NewCompanyRepository(db *sqlx.DB, importers map[domain.Kind]Importer) *CompanyRepository {
	return &CompanyRepository{inner: NewRepository[companyRow](db, domain.KindCompany, companyTable, CompanyDependencies, importers)}
}

func (r *CompanyRepository) Get(ctx context.Context, id domain.ExternalID) (*domain.Company, error) {
	row, err := r.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *CompanyRepository) Create(ctx context.Context, tx *sql.Tx, c *domain.Company) error {
	return r.inner.Create(ctx, tx, c.ExternalID, companyFromDomain(c))
}

func (r *CompanyRepository) Replace(ctx context.Context, tx *sql.Tx, id domain.ExternalID, c *domain.Company) error {
	row := companyFromDomain(c)
	return r.inner.Update(ctx, tx, id, map[string]interface{}{
		"title": row.Title, "assigned_by_id": row.AssignedByID, "created_by_id": row.CreatedByID,
		"is_deleted_in_bitrix": row.IsDeletedInBitrix,
	})
}

func (r *CompanyRepository) Exists(ctx context.Context, id domain.ExternalID) (bool, error) {
	_, err := r.inner.Get(ctx, id)
	return err == nil, nil
}

func (r *CompanyRepository) SetDeletedInBitrix(ctx context.Context, tx *sql.Tx, id domain.ExternalID, flag bool) error {
	return r.inner.SetDeletedInBitrix(ctx, tx, id, flag)
}

// ContactRepository is the domain-typed facade over the generic Repository
// for the contacts table.
type ContactRepository struct{ inner *Repository[contactRow] }

func NewContactRepository(db *sqlx.DB, importers map[domain.Kind]Importer) *ContactRepository {
	return &ContactRepository{inner: NewRepository[contactRow](db, domain.KindContact, contactTable, ContactDependencies, importers)}
}

func (r *ContactRepository) Get(ctx context.Context, id domain.ExternalID) (*domain.Contact, error) {
	row, err := r.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *ContactRepository) Create(ctx context.Context, tx *sql.Tx, c *domain.Contact) error {
	return r.inner.Create(ctx, tx, c.ExternalID, contactFromDomain(c))
}

func (r *ContactRepository) Replace(ctx context.Context, tx *sql.Tx, id domain.ExternalID, c *domain.Contact) error {
	row := contactFromDomain(c)
	return r.inner.Update(ctx, tx, id, map[string]interface{}{
		"name": row.Name, "last_name": row.LastName,
		"assigned_by_id": row.AssignedByID, "created_by_id": row.CreatedByID,
		"is_deleted_in_bitrix": row.IsDeletedInBitrix,
	})
}

func (r *ContactRepository) Exists(ctx context.Context, id domain.ExternalID) (bool, error) {
	_, err := r.inner.Get(ctx, id)
	return err == nil, nil
}

func (r *ContactRepository) SetDeletedInBitrix(ctx context.Context, tx *sql.Tx, id domain.ExternalID, flag bool) error {
	return r.inner.SetDeletedInBitrix(ctx, tx, id, flag)
}

// UserRepository is the domain-typed facade over the generic Repository
// for the users table.
type UserRepository struct{ inner *Repository[userRow] }

func NewUserRepository(db *sqlx.DB, importers map[domain.Kind]Importer) *UserRepository {
	return &UserRepository{inner: NewRepository[userRow](db, domain.KindUser, userTable, UserDependencies, importers)}
}

func (r *UserRepository) Get(ctx context.Context, id domain.ExternalID) (*domain.User, error) {
	row, err := r.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *UserRepository) Create(ctx context.Context, tx *sql.Tx, u *domain.User) error {
	return r.inner.Create(ctx, tx, u.ExternalID, userFromDomain(u))
}

func (r *UserRepository) Replace(ctx context.Context, tx *sql.Tx, id domain.ExternalID, u *domain.User) error {
	row := userFromDomain(u)
	return r.inner.Update(ctx, tx, id, map[string]interface{}{
		"name": row.Name, "last_name": row.LastName, "active": row.Active,
		"department_id": row.DepartmentID, "is_deleted_in_bitrix": row.IsDeletedInBitrix,
	})
}

func (r *UserRepository) Exists(ctx context.Context, id domain.ExternalID) (bool, error) {
	_, err := r.inner.Get(ctx, id)
	return err == nil, nil
}

func (r *UserRepository) SetDeletedInBitrix(ctx context.Context, tx *sql.Tx, id domain.ExternalID, flag bool) error {
	return r.inner.SetDeletedInBitrix(ctx, tx, id, flag)
}

// ListByDepartment returns external ids of active users in department id,
// used by the least-loaded-manager fallback in the site-request pipeline.
func (r *UserRepository) ListByDepartment(ctx context.Context, departmentID int64) ([]int64, error) {
	var ids []int64
	err := r.inner.db.SelectContext(ctx, &ids,
		`SELECT external_id FROM users WHERE department_id = $1 AND active = true AND is_deleted_in_bitrix = false`,
		departmentID)
	return ids, err
}
