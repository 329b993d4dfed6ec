package siterequest

import (
	"testing"

	"github.com/kilang-desa-murni/crm/pkg/validator"
)

func TestRequestValidationRejectsMissingPhone(t *testing.T) {
	v := validator.New()
	if err := v.Validate(Request{Phone: ""}); err == nil {
		t.Fatal("expected validation error for empty phone")
	}
}

func TestRequestValidationAcceptsWellFormedPhone(t *testing.T) {
	v := validator.New()
	if err := v.Validate(Request{Phone: "+7 700 123-45-67"}); err != nil {
		t.Fatalf("expected valid phone to pass, got %v", err)
	}
}

func TestPickLeastLoadedPicksSmallestTally(t *testing.T) {
	managers := []int64{10, 20, 30}
	tally := map[int64]int{10: 3, 20: 1, 30: 2}

	if got := pickLeastLoaded(managers, tally); got != 20 {
		t.Fatalf("pickLeastLoaded = %d, want 20", got)
	}
}

func TestPickLeastLoadedBreaksTiesByConfiguredOrder(t *testing.T) {
	managers := []int64{10, 20, 30}
	tally := map[int64]int{10: 1, 20: 1, 30: 0}

	if got := pickLeastLoaded(managers, tally); got != 30 {
		t.Fatalf("pickLeastLoaded = %d, want 30 (smallest tally)", got)
	}

	tally = map[int64]int{10: 2, 20: 2, 30: 2}
	if got := pickLeastLoaded(managers, tally); got != 10 {
		t.Fatalf("pickLeastLoaded = %d, want 10 (first in configured order on a full tie)", got)
	}
}

func TestPickLeastLoadedSingleManager(t *testing.T) {
	managers := []int64{42}
	tally := map[int64]int{42: 5}

	if got := pickLeastLoaded(managers, tally); got != 42 {
		t.Fatalf("pickLeastLoaded = %d, want 42", got)
	}
}
