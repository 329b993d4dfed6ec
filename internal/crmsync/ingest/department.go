package ingest

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/kilang-desa-murni/crm/internal/crmsync/bitrix"
	"github.com/kilang-desa-murni/crm/internal/crmsync/repository"
	"github.com/kilang-desa-murni/crm/pkg/logger"
)

// DepartmentSync pulls the whole department forest from CRM and mirrors it
// locally in one pass (§4.11). Unlike the generic per-kind Pipeline,
// departments are never imported one id at a time: a pull-all sync is the
// only operation CRM's department.get namespace supports.
type DepartmentSync struct {
	db          *sqlx.DB
	departments *bitrix.DepartmentAdapter
	repo        *repository.DepartmentRepository
	log         *logger.Logger
}

func NewDepartmentSync(db *sqlx.DB, departments *bitrix.DepartmentAdapter, repo *repository.DepartmentRepository, log *logger.Logger) *DepartmentSync {
	return &DepartmentSync{db: db, departments: departments, repo: repo, log: log}
}

// Run pulls every department, upserts each by external id (forward
// references to not-yet-seen parents are fine, since the whole set lands
// in one pass), then tombstones any local row CRM no longer lists.
func (s *DepartmentSync) Run(ctx context.Context) error {
	remote, err := s.departments.List(ctx)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	seen := make(map[string]bool, len(remote))
	for _, dep := range remote {
		if err := s.repo.Upsert(ctx, tx, dep); err != nil {
			return err
		}
		seen[dep.ExternalID.String()] = true
	}

	local, err := s.repo.ListExternalIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range local {
		if seen[id] {
			continue
		}
		if err := s.repo.Tombstone(ctx, tx, id); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Info().Int("count", len(remote)).Msg("ingest: department sync complete")
	return nil
}
