package bitrix

import (
	"encoding/json"
	"testing"

	"github.com/kilang-desa-murni/crm/internal/crmsync/domain"
)

func TestDealToWireFromWireRoundTrip(t *testing.T) {
	companyID := int64(17)
	deal := &domain.Deal{
		Common:          domain.Common{ExternalID: domain.NewIntID(42)},
		Title:           "Test deal",
		CategoryID:      0,
		StageID:         "C0:NEW",
		StageSemanticID: domain.SemanticProspective,
		StatusDeal:      domain.StatusNew,
		Opportunity:     domain.Money{Amount: 1000, Currency: "KZT"},
		AssignedByID:    5,
		CreatedByID:     5,
		CompanyExternalID: &companyID,
		Comments:        "hello",
	}

	wire := dealToWire(deal)
	if wire["TITLE"] != "Test deal" {
		t.Fatalf("TITLE = %v", wire["TITLE"])
	}
	if wire["COMPANY_ID"] != companyID {
		t.Fatalf("COMPANY_ID = %v", wire["COMPANY_ID"])
	}
	if wire["OPPORTUNITY"] != "1000|KZT" {
		t.Fatalf("OPPORTUNITY = %v", wire["OPPORTUNITY"])
	}

	raw, err := json.Marshal(map[string]string{
		"ID":                 "42",
		"TITLE":              "Test deal",
		"CATEGORY_ID":        "0",
		"STAGE_ID":           "C0:NEW",
		"STAGE_SEMANTIC_ID":  "P",
		"UF_CRM_STATUS_DEAL": "NEW",
		"OPPORTUNITY":        "1000",
		"CURRENCY_ID":        "KZT",
		"COMPANY_ID":         "17",
		"ASSIGNED_BY_ID":     "5",
		"CREATED_BY_ID":      "5",
		"COMMENTS":           "hello",
	})
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}

	decoded, err := dealFromWire(raw)
	if err != nil {
		t.Fatalf("dealFromWire: %v", err)
	}
	if decoded.ExternalID.Int != 42 {
		t.Fatalf("ExternalID = %v", decoded.ExternalID)
	}
	if decoded.StageSemanticID != domain.SemanticProspective {
		t.Fatalf("StageSemanticID = %v", decoded.StageSemanticID)
	}
	if decoded.CompanyExternalID == nil || *decoded.CompanyExternalID != 17 {
		t.Fatalf("CompanyExternalID = %v", decoded.CompanyExternalID)
	}
}

func TestDealFromWireAbsentCompanyIsNil(t *testing.T) {
	raw, _ := json.Marshal(map[string]string{
		"ID":         "1",
		"TITLE":      "No company",
		"COMPANY_ID": "0",
	})
	decoded, err := dealFromWire(raw)
	if err != nil {
		t.Fatalf("dealFromWire: %v", err)
	}
	if decoded.CompanyExternalID != nil {
		t.Fatalf("expected nil CompanyExternalID, got %v", *decoded.CompanyExternalID)
	}
}

func TestDealGetDefaultIsTombstoned(t *testing.T) {
	def := dealGetDefault(domain.NewIntID(99))
	if !def.IsDeletedInBitrix {
		t.Fatal("expected tombstone-default to be marked deleted")
	}
	if def.ExternalID.Int != 99 {
		t.Fatalf("ExternalID = %v", def.ExternalID)
	}
}

func TestEntityAdapterMethodDerivation(t *testing.T) {
	adapter := &EntityAdapter[domain.Lead]{entityName: "lead"}
	method, _ := adapter.method("add")
	if method != "crm.lead.add" {
		t.Fatalf("method = %q, want crm.lead.add", method)
	}
}

func TestEntityAdapterItemAPIIncludesEntityTypeID(t *testing.T) {
	adapter := &EntityAdapter[domain.Deal]{useItemAPI: true, entityTypeID: 1058}
	method, params := adapter.method("list")
	if method != "crm.item.list" {
		t.Fatalf("method = %q", method)
	}
	if params["entityTypeId"] != 1058 {
		t.Fatalf("entityTypeId = %v", params["entityTypeId"])
	}
}

func TestUserAdapterUsesMethodOverride(t *testing.T) {
	adapter := NewUserAdapter(&Client{})
	method, _ := adapter.method("get")
	if method != "user.get" {
		t.Fatalf("method = %q, want user.get", method)
	}
}

func TestParseIntListSkipsUnparseable(t *testing.T) {
	out := parseIntList([]string{"1", "", "0", "abc", "7"})
	if len(out) != 2 || out[0] != 1 || out[1] != 7 {
		t.Fatalf("parseIntList = %v", out)
	}
}
