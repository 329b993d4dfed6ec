// Package domain contains the entity model for the CRM synchronization core.
package domain

import "time"

// Kind identifies an entity kind in the synchronized graph. Every kind
// carries its own external_id namespace.
type Kind string

const (
	KindDeal                     Kind = "Deal"
	KindLead                     Kind = "Lead"
	KindCompany                  Kind = "Company"
	KindContact                  Kind = "Contact"
	KindUser                     Kind = "User"
	KindProduct                  Kind = "Product"
	KindProductLine              Kind = "ProductLine"
	KindTimelineComment          Kind = "TimelineComment"
	KindCommunicationChannel     Kind = "CommunicationChannel"
	KindCommunicationChannelType Kind = "CommunicationChannelType"
	KindDealStage                Kind = "DealStage"
	KindDepartment               Kind = "Department"
	KindManager                  Kind = "Manager"
	KindAdditionalInfo           Kind = "AdditionalInfo"
	KindProductAgreementSupervisor Kind = "ProductAgreementSupervisor"
)

// ExternalID is the CRM-assigned identifier. Most kinds use an integer id;
// DealStage uses the CRM's string status code, so both representations are
// kept and compared by their string form.
type ExternalID struct {
	Int int64
	Str string
}

// NewIntID wraps an integer external id.
func NewIntID(id int64) ExternalID { return ExternalID{Int: id} }

// NewStrID wraps a string external id (used for DealStage).
func NewStrID(id string) ExternalID { return ExternalID{Str: id} }

// String returns the canonical string form used as a cache/map key.
func (e ExternalID) String() string {
	if e.Str != "" {
		return e.Str
	}
	return formatInt(e.Int)
}

func formatInt(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Key is the composite (kind, external_id) key used throughout the
// coordination cache and cyclic-import guard.
type Key struct {
	Kind Kind
	ID   string
}

// NewKey builds a Key from a kind and an external id.
func NewKey(kind Kind, id ExternalID) Key {
	return Key{Kind: kind, ID: id.String()}
}

// Common holds the attributes shared by every synchronized entity.
type Common struct {
	LocalID           int64     `db:"id"`
	ExternalID        ExternalID
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
	IsDeletedInBitrix bool      `db:"is_deleted_in_bitrix"`
}

// Tombstoned reports whether CRM has authoritatively deleted this row. The
// row itself is never physically removed; this is a fact, not a state.
func (c Common) Tombstoned() bool { return c.IsDeletedInBitrix }
