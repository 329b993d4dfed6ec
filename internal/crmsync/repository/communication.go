package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/kilang-desa-murni/crm/internal/crmsync/domain"
	"github.com/kilang-desa-murni/crm/pkg/errors"
)

// CommunicationRepository implements the replace-on-update sub-collection
// (component F): communication channels are a set-valued field per owner,
// keyed by (owner_entity_type, owner_entity_id, channel type). A present
// field, even an empty list, replaces the owner's channels of that type;
// an absent field leaves existing channels untouched.
type CommunicationRepository struct {
	db *sqlx.DB
}

func NewCommunicationRepository(db *sqlx.DB) *CommunicationRepository {
	return &CommunicationRepository{db: db}
}

// EnsureChannelType returns the local id of the (type, valueType) row,
// creating it on demand; channel-type rows are keyed uniquely by that pair.
func (r *CommunicationRepository) EnsureChannelType(ctx context.Context, tx *sql.Tx, chType domain.ChannelType, valueType string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM communication_channel_types WHERE type = $1 AND value_type = $2`,
		string(chType), valueType,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "lookup communication channel type")
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO communication_channel_types (type, value_type) VALUES ($1, $2) RETURNING id`,
		string(chType), valueType,
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "create communication channel type")
	}
	return id, nil
}

// ReplaceChannels deletes every existing channel of chType owned by
// (ownerEntityType, ownerEntityID) and inserts values in its place. An
// empty values slice clears the channel type entirely for this owner.
func (r *CommunicationRepository) ReplaceChannels(ctx context.Context, tx *sql.Tx, ownerEntityType string, ownerEntityID int64, chType domain.ChannelType, valueType string, values []string) error {
	channelTypeID, err := r.EnsureChannelType(ctx, tx, chType, valueType)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM communication_channels
		 WHERE owner_entity_type = $1 AND owner_entity_id = $2 AND channel_type_id = $3`,
		ownerEntityType, ownerEntityID, channelTypeID,
	); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "clear communication channels")
	}

	for _, v := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO communication_channels (owner_entity_type, owner_entity_id, channel_type_id, value)
			 VALUES ($1, $2, $3, $4)`,
			ownerEntityType, ownerEntityID, channelTypeID, v,
		); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "insert communication channel")
		}
	}
	return nil
}

// ListByOwner returns every channel owned by (ownerEntityType, ownerEntityID).
func (r *CommunicationRepository) ListByOwner(ctx context.Context, ownerEntityType string, ownerEntityID int64) ([]domain.CommunicationChannel, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT cc.id, cc.owner_entity_type, cc.owner_entity_id, cc.channel_type_id, cc.value, cc.created_at, cc.updated_at
		 FROM communication_channels cc
		 WHERE cc.owner_entity_type = $1 AND cc.owner_entity_id = $2`,
		ownerEntityType, ownerEntityID,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "list communication channels")
	}
	defer rows.Close()

	var out []domain.CommunicationChannel
	for rows.Next() {
		var c domain.CommunicationChannel
		var localID int64
		if err := rows.Scan(&localID, &c.OwnerEntityType, &c.OwnerEntityID, &c.ChannelTypeID, &c.Value, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "scan communication channel")
		}
		c.LocalID = localID
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListValuesByType returns only the string values of channels of chType
// owned by (ownerEntityType, ownerEntityID); used for §8 invariant 6
// ("listing phones for the entity returns exactly {a,b,c}").
func (r *CommunicationRepository) ListValuesByType(ctx context.Context, ownerEntityType string, ownerEntityID int64, chType domain.ChannelType) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT cc.value FROM communication_channels cc
		 JOIN communication_channel_types t ON t.id = cc.channel_type_id
		 WHERE cc.owner_entity_type = $1 AND cc.owner_entity_id = $2 AND t.type = $3`,
		ownerEntityType, ownerEntityID, string(chType),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "list communication channel values")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "scan communication channel value")
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
