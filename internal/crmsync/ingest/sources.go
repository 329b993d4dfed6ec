package ingest

import (
	"github.com/kilang-desa-murni/crm/internal/crmsync/bitrix"
	"github.com/kilang-desa-murni/crm/internal/crmsync/domain"
	"github.com/kilang-desa-murni/crm/internal/crmsync/repository"
)

// LeadSource binds the lead adapter and repository into a Source the
// generic Pipeline can drive.
func LeadSource(adapter *bitrix.EntityAdapter[domain.Lead], repo *repository.LeadRepository) Source[domain.Lead] {
	return Source[domain.Lead]{
		Kind:       domain.KindLead,
		Fetch:      adapter.Get,
		GetDefault: adapter.GetDefault,
		Exists:     repo.Exists,
		Create:     repo.Create,
		Replace:    repo.Replace,
	}
}

// CompanySource binds the company adapter and repository into a Source.
func CompanySource(adapter *bitrix.EntityAdapter[domain.Company], repo *repository.CompanyRepository) Source[domain.Company] {
	return Source[domain.Company]{
		Kind:       domain.KindCompany,
		Fetch:      adapter.Get,
		GetDefault: adapter.GetDefault,
		Exists:     repo.Exists,
		Create:     repo.Create,
		Replace:    repo.Replace,
	}
}

// ContactSource binds the contact adapter and repository into a Source.
func ContactSource(adapter *bitrix.EntityAdapter[domain.Contact], repo *repository.ContactRepository) Source[domain.Contact] {
	return Source[domain.Contact]{
		Kind:       domain.KindContact,
		Fetch:      adapter.Get,
		GetDefault: adapter.GetDefault,
		Exists:     repo.Exists,
		Create:     repo.Create,
		Replace:    repo.Replace,
	}
}

// UserSource binds the user adapter and repository into a Source.
func UserSource(adapter *bitrix.EntityAdapter[domain.User], repo *repository.UserRepository) Source[domain.User] {
	return Source[domain.User]{
		Kind:       domain.KindUser,
		Fetch:      adapter.Get,
		GetDefault: adapter.GetDefault,
		Exists:     repo.Exists,
		Create:     repo.Create,
		Replace:    repo.Replace,
	}
}
