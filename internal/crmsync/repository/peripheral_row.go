package repository

import (
	"database/sql"
	"time"

	"github.com/kilang-desa-murni/crm/internal/crmsync/domain"
)

type leadRow struct {
	LocalID           int64     `db:"id"`
	ExternalID        int64     `db:"external_id"`
	Title             string    `db:"title"`
	Name              string    `db:"name"`
	AssignedByID      int64     `db:"assigned_by_id"`
	CreatedByID       int64     `db:"created_by_id"`
	IsDeletedInBitrix bool      `db:"is_deleted_in_bitrix"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

var leadTable = Table{Name: "leads", ExternalIDCol: "external_id", DeletedCol: "is_deleted_in_bitrix"}

func leadFromDomain(l *domain.Lead) *leadRow {
	return &leadRow{
		LocalID: l.LocalID, ExternalID: l.ExternalID.Int, Title: l.Title, Name: l.Name,
		AssignedByID: l.AssignedByID, CreatedByID: l.CreatedByID, IsDeletedInBitrix: l.IsDeletedInBitrix,
	}
}

func (row *leadRow) toDomain() *domain.Lead {
	return &domain.Lead{
		Common: domain.Common{LocalID: row.LocalID, ExternalID: domain.NewIntID(row.ExternalID),
			CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt, IsDeletedInBitrix: row.IsDeletedInBitrix},
		Title: row.Title, Name: row.Name, AssignedByID: row.AssignedByID, CreatedByID: row.CreatedByID,
	}
}

// LeadDependencies: leads carry no required foreign references.
var LeadDependencies = []Dependency{}

type companyRow struct {
	LocalID           int64     `db:"id"`
	ExternalID        int64     `db:"external_id"`
	Title             string    `db:"title"`
	AssignedByID      int64     `db:"assigned_by_id"`
	CreatedByID       int64     `db:"created_by_id"`
	IsDeletedInBitrix bool      `db:"is_deleted_in_bitrix"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

var companyTable = Table{Name: "companies", ExternalIDCol: "external_id", DeletedCol: "is_deleted_in_bitrix"}

func companyFromDomain(c *domain.Company) *companyRow {
	return &companyRow{
		LocalID: c.LocalID, ExternalID: c.ExternalID.Int, Title: c.Title,
		AssignedByID: c.AssignedByID, CreatedByID: c.CreatedByID, IsDeletedInBitrix: c.IsDeletedInBitrix,
	}
}

func (row *companyRow) toDomain() *domain.Company {
	return &domain.Company{
		Common: domain.Common{LocalID: row.LocalID, ExternalID: domain.NewIntID(row.ExternalID),
			CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt, IsDeletedInBitrix: row.IsDeletedInBitrix},
		Title: row.Title, AssignedByID: row.AssignedByID, CreatedByID: row.CreatedByID,
	}
}

var CompanyDependencies = []Dependency{}

type contactRow struct {
	LocalID           int64     `db:"id"`
	ExternalID        int64     `db:"external_id"`
	Name              string    `db:"name"`
	LastName          string    `db:"last_name"`
	AssignedByID      int64     `db:"assigned_by_id"`
	CreatedByID       int64     `db:"created_by_id"`
	IsDeletedInBitrix bool      `db:"is_deleted_in_bitrix"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

var contactTable = Table{Name: "contacts", ExternalIDCol: "external_id", DeletedCol: "is_deleted_in_bitrix"}

func contactFromDomain(c *domain.Contact) *contactRow {
	return &contactRow{
		LocalID: c.LocalID, ExternalID: c.ExternalID.Int, Name: c.Name, LastName: c.LastName,
		AssignedByID: c.AssignedByID, CreatedByID: c.CreatedByID, IsDeletedInBitrix: c.IsDeletedInBitrix,
	}
}

func (row *contactRow) toDomain() *domain.Contact {
	return &domain.Contact{
		Common: domain.Common{LocalID: row.LocalID, ExternalID: domain.NewIntID(row.ExternalID),
			CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt, IsDeletedInBitrix: row.IsDeletedInBitrix},
		Name: row.Name, LastName: row.LastName, AssignedByID: row.AssignedByID, CreatedByID: row.CreatedByID,
	}
}

var ContactDependencies = []Dependency{}

type userRow struct {
	LocalID           int64         `db:"id"`
	ExternalID        int64         `db:"external_id"`
	Name              string        `db:"name"`
	LastName          string        `db:"last_name"`
	Active            bool          `db:"active"`
	DepartmentID      sql.NullInt64 `db:"department_id"`
	IsDeletedInBitrix bool          `db:"is_deleted_in_bitrix"`
	CreatedAt         time.Time     `db:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at"`
}

var userTable = Table{Name: "users", ExternalIDCol: "external_id", DeletedCol: "is_deleted_in_bitrix"}

func userFromDomain(u *domain.User) *userRow {
	row := &userRow{
		LocalID: u.LocalID, ExternalID: u.ExternalID.Int, Name: u.Name, LastName: u.LastName,
		Active: u.Active, IsDeletedInBitrix: u.IsDeletedInBitrix,
	}
	if u.DepartmentID != nil {
		row.DepartmentID = sql.NullInt64{Int64: *u.DepartmentID, Valid: true}
	}
	return row
}

func (row *userRow) toDomain() *domain.User {
	u := &domain.User{
		Common: domain.Common{LocalID: row.LocalID, ExternalID: domain.NewIntID(row.ExternalID),
			CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt, IsDeletedInBitrix: row.IsDeletedInBitrix},
		Name: row.Name, LastName: row.LastName, Active: row.Active,
	}
	if row.DepartmentID.Valid {
		u.DepartmentID = &row.DepartmentID.Int64
	}
	return u
}

// UserDependencies: users are the one kind everything else may reference,
// but carry no dependency of their own (department linkage is informational).
var UserDependencies = []Dependency{}
