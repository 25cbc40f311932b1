package leasesync

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/leasing_backend/models"
)

func baseSkipInput() skipInput {
	return skipInput{
		HasLeaseTerm:   true,
		HasInventory:   true,
		HasActiveLease: true,
		Now:            time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestEvaluateSkip_ProcessableEntry(t *testing.T) {
	if got := EvaluateSkip(baseSkipInput()); got != nil {
		t.Fatalf("expected no skip, got %s", *got)
	}
}

func TestEvaluateSkip_RuleOrder(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(*skipInput)
		expected models.SkipReason
	}{
		{
			name:     "no lease term",
			mutate:   func(in *skipInput) { in.HasLeaseTerm = false },
			expected: models.SkipReasonNoLeaseTerm,
		},
		{
			name:     "missing unit",
			mutate:   func(in *skipInput) { in.HasInventory = false },
			expected: models.SkipReasonMissingUnit,
		},
		{
			name:     "new lease workflow exists",
			mutate:   func(in *skipInput) { in.HasNewLease = true },
			expected: models.SkipReasonNewRecordExists,
		},
		{
			name: "past resident without a lease",
			mutate: func(in *skipInput) {
				in.IsPastResident = true
				in.HasActiveLease = false
			},
			expected: models.SkipReasonMovedOut,
		},
		{
			name: "past resident after confirmed move out",
			mutate: func(in *skipInput) {
				in.IsPastResident = true
				in.MoveOutConfirmed = true
			},
			expected: models.SkipReasonMovedOut,
		},
		{
			name: "past resident on an expired lease",
			mutate: func(in *skipInput) {
				in.IsPastResident = true
				end := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
				in.LeaseEndDate = &end
			},
			expected: models.SkipReasonActiveLeaseEnded,
		},
		{
			name: "unit already held by another tenancy",
			mutate: func(in *skipInput) {
				in.HasActiveLease = false
				in.InventoryConflict = true
			},
			expected: models.SkipReasonActiveLeaseOnSameUnit,
		},
	}
	for _, tc := range cases {
		in := baseSkipInput()
		tc.mutate(&in)
		got := EvaluateSkip(in)
		if got == nil || *got != tc.expected {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.expected, got)
		}
	}
}

func TestEvaluateSkip_PastResidentWithRunningLeaseIsProcessed(t *testing.T) {
	in := baseSkipInput()
	in.IsPastResident = true
	end := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	in.LeaseEndDate = &end
	if got := EvaluateSkip(in); got != nil {
		t.Fatalf("entry with a still-running lease must be processed, got %s", *got)
	}
}

func TestEvaluateSkip_ConflictIgnoredWhenPartyHoldsLease(t *testing.T) {
	in := baseSkipInput()
	in.InventoryConflict = true
	if got := EvaluateSkip(in); got != nil {
		t.Fatalf("conflict only applies to new tenancies, got %s", *got)
	}
}
