package ingest

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/kilang-desa-murni/crm/internal/crmsync/bitrix"
	"github.com/kilang-desa-murni/crm/internal/crmsync/domain"
	"github.com/kilang-desa-murni/crm/internal/crmsync/repository"
	"github.com/kilang-desa-murni/crm/pkg/logger"
)

// TimelineSyncer keeps the local timeline_comments mirror in sync with CRM
// after a deal create/update (§4.8.1). It runs fire-and-forget: any
// failure is logged and swallowed, never propagated to the caller, and it
// opens its own transaction rather than sharing the request's.
type TimelineSyncer struct {
	db       *sqlx.DB
	timeline *bitrix.TimelineAdapter
	comments *repository.TimelineCommentRepository
	log      *logger.Logger
}

func NewTimelineSyncer(db *sqlx.DB, timeline *bitrix.TimelineAdapter, comments *repository.TimelineCommentRepository, log *logger.Logger) *TimelineSyncer {
	return &TimelineSyncer{db: db, timeline: timeline, comments: comments, log: log}
}

// Sync lists CRM comments for (entityType, entityID), upserts each by
// external id, and tombstones any local row CRM no longer lists.
func (s *TimelineSyncer) Sync(ctx context.Context, entityType string, entityID int64) {
	remote, err := s.timeline.List(ctx, entityType, entityID)
	if err != nil {
		s.log.Warn().Err(err).Str("entity_type", entityType).Int64("entity_id", entityID).Msg("ingest: timeline sync: list failed")
		return
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ingest: timeline sync: begin tx")
		return
	}
	defer tx.Rollback()

	seen := make(map[string]bool, len(remote))
	for _, c := range remote {
		comment := &domain.TimelineComment{
			Common:     domain.Common{ExternalID: domain.NewIntID(c.ID)},
			EntityType: c.EntityType,
			EntityID:   c.EntityID,
			AuthorID:   c.AuthorID,
			Text:       c.Comment,
		}
		if err := s.comments.UpsertByExternalID(ctx, tx, comment); err != nil {
			s.log.Warn().Err(err).Msg("ingest: timeline sync: upsert failed")
			return
		}
		seen[comment.ExternalID.String()] = true
	}

	local, err := s.comments.ListExternalIDsByOwner(ctx, entityType, entityID)
	if err != nil {
		s.log.Warn().Err(err).Msg("ingest: timeline sync: list local ids failed")
		return
	}
	for _, id := range local {
		if seen[id] {
			continue
		}
		if err := s.comments.TombstoneByExternalID(ctx, tx, id); err != nil {
			s.log.Warn().Err(err).Msg("ingest: timeline sync: tombstone failed")
			return
		}
	}

	if err := tx.Commit(); err != nil {
		s.log.Warn().Err(err).Msg("ingest: timeline sync: commit failed")
	}
}
