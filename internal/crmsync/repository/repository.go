// Package repository implements the generic entity repository (component E)
// and its communication-channel sub-collection (component F).
package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kilang-desa-murni/crm/internal/crmsync/domain"
	"github.com/kilang-desa-murni/crm/internal/crmsync/reqctx"
	"github.com/kilang-desa-murni/crm/pkg/errors"
)

// Dependency declares a foreign reference one entity's create/update
// must satisfy via the coordination cache before writing.
type Dependency struct {
	Field    string
	Kind     domain.Kind
	Required bool
}

// Importer resolves a dependency: Import creates a local row for an
// external id not yet known locally; Refresh re-pulls an already-known
// row. Both return only an error; no entity is handed back to the caller.
type Importer interface {
	Import(ctx context.Context, rc *reqctx.Context, id domain.ExternalID) error
	Refresh(ctx context.Context, rc *reqctx.Context, id domain.ExternalID) error
	Exists(ctx context.Context, rc *reqctx.Context, id domain.ExternalID) (bool, error)
}

// Hook runs inside the same transaction as the write it decorates.
type Hook[T any] func(ctx context.Context, tx *sql.Tx, entity *T) error

// Table describes how a Go struct maps onto a Postgres table for the
// generic repository's reflection-free SQL generation.
type Table struct {
	Name          string
	ExternalIDCol string
	DeletedCol    string
}

// Repository is a generic CRUD layer over one entity kind, parameterized
// by its row struct T (sqlx `db`-tagged). It enforces the dependency
// contract against the per-request coordination cache before writing.
type Repository[T any] struct {
	db           *sqlx.DB
	table        Table
	kind         domain.Kind
	dependencies []Dependency
	importers    map[domain.Kind]Importer

	preCommit  Hook[T]
	postCommit Hook[T]
}

// NewRepository builds a Repository for kind over the given table.
func NewRepository[T any](db *sqlx.DB, kind domain.Kind, table Table, deps []Dependency, importers map[domain.Kind]Importer) *Repository[T] {
	return &Repository[T]{db: db, table: table, kind: kind, dependencies: deps, importers: importers}
}

// WithHooks attaches pre/post-commit decorators run inside the write's transaction.
func (r *Repository[T]) WithHooks(pre, post Hook[T]) *Repository[T] {
	r.preCommit = pre
	r.postCommit = post
	return r
}

// RelatedChecks resolves every declared dependency against the
// coordination cache and the dependency's own importer, surfacing
// not-found for any required dependency still missing afterward, and
// folding cyclic-call deferrals into the request's update_needed set.
func (r *Repository[T]) RelatedChecks(ctx context.Context, rc *reqctx.Context) error {
	var missing []string

	for _, dep := range r.dependencies {
		extID, ok := depValue(ctx, dep)
		if !ok {
			continue
		}

		importer, ok := r.importers[dep.Kind]
		if !ok {
			continue
		}

		exists, err := rc.CheckExists(dep.Kind, fmt.Sprintf("id=%s", extID.String()), func() (bool, error) {
			return importer.Exists(ctx, rc, extID)
		})
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeNotFound, "dependency existence probe failed")
		}

		var opErr error
		if !exists {
			opErr = r.relatedCreate(ctx, rc, importer, dep.Kind, extID, importer.Import)
		} else if !rc.IsUpdated(dep.Kind, extID) {
			opErr = r.relatedCreate(ctx, rc, importer, dep.Kind, extID, importer.Refresh)
		}

		if opErr != nil && dep.Required && !isCyclicCall(opErr) {
			missing = append(missing, dep.Field)
		}
	}

	if len(missing) > 0 {
		return errors.Newf(errors.ErrCodeNotFound, "missing required dependencies: %v", missing)
	}
	return nil
}

// relatedCreate runs op (Import or Refresh) after guarding against a
// cyclic call via the coordination cache; on success it marks (kind,
// id) updated, on a cyclic-call it leaves the dependency recorded in
// update_needed for the caller to refresh once the cycle unwinds.
func (r *Repository[T]) relatedCreate(ctx context.Context, rc *reqctx.Context, importer Importer, kind domain.Kind, extID domain.ExternalID, op func(context.Context, *reqctx.Context, domain.ExternalID) error) error {
	if err := rc.BeginImportOrRefresh(kind, extID); err != nil {
		return err
	}
	if err := op(ctx, rc, extID); err != nil {
		return err
	}
	rc.MarkUpdated(kind, extID)
	return nil
}

func isCyclicCall(err error) bool {
	return stderrors.Is(err, reqctx.ErrCyclicCall)
}

func depValue(ctx context.Context, dep Dependency) (domain.ExternalID, bool) {
	v := ctx.Value(dependencyContextKey(dep.Field))
	if v == nil {
		return domain.ExternalID{}, false
	}
	id, ok := v.(domain.ExternalID)
	return id, ok
}

type dependencyContextKey string

// WithDependencyValue attaches a resolved dependency external id to ctx
// under its declared field name, for RelatedChecks to pick up.
func WithDependencyValue(ctx context.Context, field string, id domain.ExternalID) context.Context {
	return context.WithValue(ctx, dependencyContextKey(field), id)
}

// Create inserts a new row for externalID; requires externalID and
// rejects with conflict if already present. Runs pre_commit before the
// insert and post_commit after, both inside the same transaction.
func (r *Repository[T]) Create(ctx context.Context, tx *sql.Tx, externalID domain.ExternalID, entity *T) error {
	cols, vals, err := structColumns(entity)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "build insert columns")
	}

	if r.preCommit != nil {
		if err := r.preCommit(ctx, tx, entity); err != nil {
			return err
		}
	}

	query := buildInsert(r.table.Name, cols)
	if _, err := tx.ExecContext(ctx, query, vals...); err != nil {
		if isUniqueViolation(err) {
			return errors.Newf(errors.ErrCodeConflict, "%s %s already exists", r.kind, externalID.String())
		}
		return errors.Wrap(err, errors.ErrCodeInternal, "insert "+r.table.Name)
	}

	if r.postCommit != nil {
		if err := r.postCommit(ctx, tx, entity); err != nil {
			return err
		}
	}
	return nil
}

// Get fetches the row for externalID.
func (r *Repository[T]) Get(ctx context.Context, externalID domain.ExternalID) (*T, error) {
	var out T
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = $1", r.table.Name, r.table.ExternalIDCol)
	if err := r.db.GetContext(ctx, &out, query, externalID.String()); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Newf(errors.ErrCodeNotFound, "%s %s not found", r.kind, externalID.String())
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "get "+r.table.Name)
	}
	return &out, nil
}

// Update writes only the columns named in setClauses (column name to new
// value) to externalID's row. not-found if absent.
func (r *Repository[T]) Update(ctx context.Context, tx *sql.Tx, externalID domain.ExternalID, setClauses map[string]interface{}) error {
	if len(setClauses) == 0 {
		return nil
	}
	query, args := buildUpdate(r.table.Name, r.table.ExternalIDCol, externalID.String(), setClauses)
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "update "+r.table.Name)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errors.Newf(errors.ErrCodeNotFound, "%s %s not found", r.kind, externalID.String())
	}
	return nil
}

// Delete physically removes the row for externalID.
func (r *Repository[T]) Delete(ctx context.Context, tx *sql.Tx, externalID domain.ExternalID) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", r.table.Name, r.table.ExternalIDCol)
	res, err := tx.ExecContext(ctx, query, externalID.String())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "delete "+r.table.Name)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errors.Newf(errors.ErrCodeNotFound, "%s %s not found", r.kind, externalID.String())
	}
	return nil
}

// SetDeletedInBitrix tombstones a row in place of a physical delete;
// this is the default path for CRM delete webhooks.
func (r *Repository[T]) SetDeletedInBitrix(ctx context.Context, tx *sql.Tx, externalID domain.ExternalID, flag bool) error {
	if r.table.DeletedCol == "" {
		return errors.New(errors.ErrCodeInternal, r.table.Name+" has no tombstone column configured")
	}
	query := fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s = $2", r.table.Name, r.table.DeletedCol, r.table.ExternalIDCol)
	res, err := tx.ExecContext(ctx, query, flag, externalID.String())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "tombstone "+r.table.Name)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errors.Newf(errors.ErrCodeNotFound, "%s %s not found", r.kind, externalID.String())
	}
	return nil
}

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}
