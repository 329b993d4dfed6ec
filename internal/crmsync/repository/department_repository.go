package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/kilang-desa-murni/crm/internal/crmsync/domain"
	"github.com/kilang-desa-murni/crm/pkg/errors"
)

// DepartmentRepository stores the department forest (§4.11). Departments
// are pulled in full on every sync, so parent_id is allowed to reference a
// department row that does not exist yet within the same batch.
type DepartmentRepository struct {
	db *sqlx.DB
}

func NewDepartmentRepository(db *sqlx.DB) *DepartmentRepository {
	return &DepartmentRepository{db: db}
}

// Exists reports whether id is already stored locally.
func (r *DepartmentRepository) Exists(ctx context.Context, id domain.ExternalID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM departments WHERE external_id = $1)`, id.String())
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "check department existence")
	}
	return exists, nil
}

// Upsert creates or overwrites the row for d.ExternalID.
func (r *DepartmentRepository) Upsert(ctx context.Context, tx *sql.Tx, d *domain.Department) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO departments (external_id, name, parent_id, is_deleted_in_bitrix)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (external_id) DO UPDATE SET
			name = EXCLUDED.name,
			parent_id = EXCLUDED.parent_id,
			is_deleted_in_bitrix = EXCLUDED.is_deleted_in_bitrix,
			updated_at = now()`,
		d.ExternalID.String(), d.Name, d.ParentID, d.IsDeletedInBitrix,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "upsert department")
	}
	return nil
}

// ListExternalIDs returns every external id currently stored locally.
func (r *DepartmentRepository) ListExternalIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT external_id FROM departments`); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "list department ids")
	}
	return ids, nil
}

// Tombstone marks a department deleted without removing it, for rows CRM no
// longer lists in a pull-all pass.
func (r *DepartmentRepository) Tombstone(ctx context.Context, tx *sql.Tx, externalID string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE departments SET is_deleted_in_bitrix = true WHERE external_id = $1`, externalID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "tombstone department")
	}
	return nil
}
