// Package ingest implements the entity ingest pipeline (component L): pull
// an entity from CRM, run it through the generic repository, and keep its
// derived sub-collections (timeline comments, departments) in sync (§4.8).
package ingest

import (
	"context"
	"database/sql"

	"github.com/kilang-desa-murni/crm/internal/crmsync/domain"
	"github.com/kilang-desa-murni/crm/internal/crmsync/reqctx"
	"github.com/kilang-desa-murni/crm/pkg/errors"
	"github.com/kilang-desa-murni/crm/pkg/logger"
)

// Source binds one entity kind's CRM fetch and DB write operations. The
// generic Pipeline drives import/refresh over it without knowing the row
// shape, so every entity kind shares one implementation of the §4.8
// create-or-update-on-conflict contract.
type Source[T any] struct {
	Kind       domain.Kind
	Fetch      func(ctx context.Context, id domain.ExternalID) (*T, error)
	GetDefault func(id domain.ExternalID) *T
	Exists     func(ctx context.Context, id domain.ExternalID) (bool, error)
	Create     func(ctx context.Context, tx *sql.Tx, entity *T) error
	Replace    func(ctx context.Context, tx *sql.Tx, id domain.ExternalID, entity *T) error
}

// Pipeline drives import/refresh for one entity kind against its Source.
// Its method set satisfies repository.Importer by structural typing, so it
// can be registered directly into a Repository's importers map.
type Pipeline[T any] struct {
	src Source[T]
	log *logger.Logger
}

// NewPipeline builds a Pipeline for kind's Source.
func NewPipeline[T any](src Source[T], log *logger.Logger) *Pipeline[T] {
	return &Pipeline[T]{src: src, log: log}
}

// fetchOrDefault pulls id from CRM, substituting the tombstone-default
// record when CRM reports not-found.
func (p *Pipeline[T]) fetchOrDefault(ctx context.Context, id domain.ExternalID) (*T, error) {
	entity, err := p.src.Fetch(ctx, id)
	if err == nil {
		return entity, nil
	}
	if errors.GetCode(err) == errors.ErrCodeNotFound {
		return p.src.GetDefault(id), nil
	}
	return nil, err
}

// Import implements the dependency-resolution half of repository.Importer.
// The caller (repository.RelatedChecks, or the top-level ImportEntity
// helper below) is responsible for the cyclic-call guard; this method only
// does the fetch/create/conflict-fallback-to-update work.
func (p *Pipeline[T]) Import(ctx context.Context, rc *reqctx.Context, id domain.ExternalID) error {
	entity, err := p.fetchOrDefault(ctx, id)
	if err != nil {
		return err
	}

	err = p.src.Create(ctx, rc.Tx, entity)
	if err == nil {
		return nil
	}
	if errors.GetCode(err) == errors.ErrCodeConflict {
		// Raced: another path created the row between our existence probe
		// and this write. Fall back to update, per §4.8.
		return p.src.Replace(ctx, rc.Tx, id, entity)
	}
	return err
}

// Refresh re-pulls id from CRM and writes it over the existing row.
func (p *Pipeline[T]) Refresh(ctx context.Context, rc *reqctx.Context, id domain.ExternalID) error {
	entity, err := p.fetchOrDefault(ctx, id)
	if err != nil {
		return err
	}
	return p.src.Replace(ctx, rc.Tx, id, entity)
}

// Exists probes local DB presence for id.
func (p *Pipeline[T]) Exists(ctx context.Context, rc *reqctx.Context, id domain.ExternalID) (bool, error) {
	return p.src.Exists(ctx, id)
}

// ImportEntity is the top-level entry point used when an entity is the
// primary subject of a request (a webhook, a site-request) rather than a
// dependency resolved by the repository layer. It applies the same cyclic
// guard repository.relatedCreate applies to dependencies, and reports
// whether the import's own dependency walk deferred anything via
// update_needed — callers use this to decide whether a follow-up refresh
// pass is required once the current request settles.
func ImportEntity[T any](ctx context.Context, rc *reqctx.Context, p *Pipeline[T], id domain.ExternalID) (updateNeeded bool, err error) {
	if err := rc.BeginImportOrRefresh(p.src.Kind, id); err != nil {
		return false, err
	}
	if err := p.Import(ctx, rc, id); err != nil {
		return false, err
	}
	rc.MarkUpdated(p.src.Kind, id)
	return len(rc.PendingRefreshes()) > 0, nil
}

// RefreshEntity is ImportEntity's refresh counterpart.
func RefreshEntity[T any](ctx context.Context, rc *reqctx.Context, p *Pipeline[T], id domain.ExternalID) error {
	if err := rc.BeginImportOrRefresh(p.src.Kind, id); err != nil {
		return err
	}
	if err := p.Refresh(ctx, rc, id); err != nil {
		return err
	}
	rc.MarkUpdated(p.src.Kind, id)
	return nil
}
