package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/kilang-desa-murni/crm/internal/crmsync/domain"
	"github.com/kilang-desa-murni/crm/pkg/errors"
)

// TimelineCommentRepository stores the derived, view-only local copy of a
// CRM entity's timeline comments (§3's "viewonly" TimelineComment edge).
type TimelineCommentRepository struct {
	db *sqlx.DB
}

func NewTimelineCommentRepository(db *sqlx.DB) *TimelineCommentRepository {
	return &TimelineCommentRepository{db: db}
}

// UpsertByExternalID creates or overwrites the local row for c.ExternalID.
func (r *TimelineCommentRepository) UpsertByExternalID(ctx context.Context, tx *sql.Tx, c *domain.TimelineComment) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO timeline_comments (external_id, entity_type, entity_id, author_id, text)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (external_id) DO UPDATE SET
			text = EXCLUDED.text,
			author_id = EXCLUDED.author_id,
			updated_at = now()`,
		c.ExternalID.String(), c.EntityType, c.EntityID, c.AuthorID, c.Text,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "upsert timeline comment")
	}
	return nil
}

// ListExternalIDsByOwner returns the external ids of every local comment
// currently stored for (entityType, entityID).
func (r *TimelineCommentRepository) ListExternalIDsByOwner(ctx context.Context, entityType string, entityID int64) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids,
		`SELECT external_id FROM timeline_comments WHERE entity_type = $1 AND entity_id = $2 AND is_deleted_in_bitrix = false`,
		entityType, entityID,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "list timeline comment ids")
	}
	return ids, nil
}

// TombstoneByExternalID marks a local comment deleted without removing it,
// for comments CRM no longer lists.
func (r *TimelineCommentRepository) TombstoneByExternalID(ctx context.Context, tx *sql.Tx, externalID string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE timeline_comments SET is_deleted_in_bitrix = true WHERE external_id = $1`,
		externalID,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "tombstone timeline comment")
	}
	return nil
}
