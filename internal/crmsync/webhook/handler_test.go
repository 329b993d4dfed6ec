package webhook

import (
	"testing"

	"github.com/kilang-desa-murni/crm/internal/crmsync/domain"
)

func TestKindForEventRecognizesEachEntity(t *testing.T) {
	cases := []struct {
		event string
		kind  domain.Kind
	}{
		{"ONCRMDEALADD", domain.KindDeal},
		{"ONCRMDEALUPDATE", domain.KindDeal},
		{"ONCRMDEALDELETE", domain.KindDeal},
		{"ONCRMLEADUPDATE", domain.KindLead},
		{"ONCRMCOMPANYUPDATE", domain.KindCompany},
		{"ONCRMCONTACTUPDATE", domain.KindContact},
	}
	for _, c := range cases {
		kind, ok := kindForEvent(c.event)
		if !ok || kind != c.kind {
			t.Errorf("kindForEvent(%q) = %v, %v; want %v, true", c.event, kind, ok, c.kind)
		}
	}
}

func TestKindForEventRejectsUnknown(t *testing.T) {
	if _, ok := kindForEvent("ONCRMQUOTEUPDATE"); ok {
		t.Fatal("expected false for an unconfigured entity kind")
	}
}

func TestIsDeleteEvent(t *testing.T) {
	if !isDeleteEvent("ONCRMDEALDELETE") {
		t.Fatal("expected DELETE suffix to be recognized")
	}
	if isDeleteEvent("ONCRMDEALUPDATE") {
		t.Fatal("UPDATE should not be treated as delete")
	}
	if isDeleteEvent("") {
		t.Fatal("empty event should not be treated as delete")
	}
}
