package reqctx

import (
	"errors"
	"testing"

	"github.com/kilang-desa-murni/crm/internal/crmsync/domain"
)

func TestCheckExistsMemoizesWithinRequest(t *testing.T) {
	c := New(nil)
	calls := 0
	probe := func() (bool, error) {
		calls++
		return true, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.CheckExists(domain.KindCompany, "name=Acme", probe)
		if err != nil {
			t.Fatalf("CheckExists: %v", err)
		}
		if !v {
			t.Fatal("expected true")
		}
	}
	if calls != 1 {
		t.Fatalf("probe called %d times, want exactly 1", calls)
	}
}

func TestCheckExistsDistinctFilters(t *testing.T) {
	c := New(nil)
	calls := 0
	probe := func() (bool, error) { calls++; return false, nil }

	if _, err := c.CheckExists(domain.KindCompany, "name=Acme", probe); err != nil {
		t.Fatal(err)
	}
	if _, err := c.CheckExists(domain.KindCompany, "name=Other", probe); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("expected a probe per distinct filter, got %d calls", calls)
	}
}

func TestBeginImportOrRefreshDetectsCycle(t *testing.T) {
	c := New(nil)
	dealID := domain.NewIntID(1)

	if err := c.BeginImportOrRefresh(domain.KindDeal, dealID); err != nil {
		t.Fatalf("first BeginImportOrRefresh: %v", err)
	}
	err := c.BeginImportOrRefresh(domain.KindDeal, dealID)
	if !errors.Is(err, ErrCyclicCall) {
		t.Fatalf("expected ErrCyclicCall, got %v", err)
	}

	pending := c.PendingRefreshes()
	if len(pending) != 1 || pending[0] != domain.NewKey(domain.KindDeal, dealID) {
		t.Fatalf("expected the cyclic id scheduled for refresh, got %v", pending)
	}
	if more := c.PendingRefreshes(); len(more) != 0 {
		t.Fatalf("PendingRefreshes should drain, got %v", more)
	}
}

func TestMarkAndIsUpdated(t *testing.T) {
	c := New(nil)
	companyID := domain.NewIntID(5)
	if c.IsUpdated(domain.KindCompany, companyID) {
		t.Fatal("should not be updated yet")
	}
	c.MarkUpdated(domain.KindCompany, companyID)
	if !c.IsUpdated(domain.KindCompany, companyID) {
		t.Fatal("expected updated after MarkUpdated")
	}
}

func TestReset(t *testing.T) {
	c := New(nil)
	dealID := domain.NewIntID(1)
	_ = c.BeginImportOrRefresh(domain.KindDeal, dealID)
	c.MarkUpdated(domain.KindDeal, dealID)
	_, _ = c.CheckExists(domain.KindDeal, "f", func() (bool, error) { return true, nil })

	c.Reset()

	if c.IsUpdated(domain.KindDeal, dealID) {
		t.Fatal("expected updated set cleared after Reset")
	}
	if err := c.BeginImportOrRefresh(domain.KindDeal, dealID); err != nil {
		t.Fatalf("expected fresh cycle guard after Reset, got %v", err)
	}
}
