package domain

// Lead is the local representation of a CRM lead.
type Lead struct {
	Common
	Title        string
	Name         string
	AssignedByID int64
	CreatedByID  int64
}

// Company is the local representation of a CRM company.
type Company struct {
	Common
	Title        string
	AssignedByID int64
	CreatedByID  int64
}

// Contact is the local representation of a CRM contact.
type Contact struct {
	Common
	Name         string
	LastName     string
	AssignedByID int64
	CreatedByID  int64
}

// User is the local representation of a CRM user. Users are the one
// dependency kind that MUST exist before its referencing owner is created.
type User struct {
	Common
	Name         string
	LastName     string
	Active       bool
	DepartmentID *int64
}

// Department is a node in the (possibly forward-referencing) department forest.
type Department struct {
	Common
	Name     string
	ParentID *int64
}

// Product is a catalog entry, addressed through the separate catalog.product
// namespace rather than crm.<entity>.* or crm.item.*.
type Product struct {
	Common
	Name   string
	XMLID  string
	Price  Money
}

// ChannelType enumerates the CRM communication channel type codes.
type ChannelType string

const (
	ChannelPhone ChannelType = "PHONE"
	ChannelEmail ChannelType = "EMAIL"
	ChannelWeb   ChannelType = "WEB"
	ChannelIM    ChannelType = "IM"
	ChannelLink  ChannelType = "LINK"
)

// CommunicationChannelType is the typed (type_id, value_type) pair every
// CommunicationChannel row must reference.
type CommunicationChannelType struct {
	Common
	Type      ChannelType
	ValueType string
}

// CommunicationChannel is a single communication entry owned by a tagged
// (entity_type, entity_id) pair, not a foreign key.
type CommunicationChannel struct {
	Common
	OwnerEntityType string
	OwnerEntityID   int64
	ChannelTypeID   int64
	Value           string
}

// Manager is a configured deal-owning user eligible for least-loaded
// assignment in the site-request pipeline.
type Manager struct {
	ExternalID int64
}
