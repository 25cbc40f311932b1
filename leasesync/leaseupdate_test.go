package leasesync

import (
	"encoding/json"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/leasing_backend/models"
	"github.com/shopspring/decimal"
)

func dateRef(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func strRef(s string) *string { return &s }

func baseLeaseData() models.LeaseData {
	return models.LeaseData{
		LeaseTerm:      "12",
		LeaseStartDate: dateRef(2025, 7, 1),
		LeaseEndDate:   dateRef(2026, 6, 30),
		UnitRent:       decimal.NewFromInt(1500),
		UnitId:         "101",
		BuildingId:     "A",
	}
}

func baseRawEntry() RawEntry {
	return RawEntry{
		PrimaryExternalId: "t0011",
		LeaseTerm:         strRef("12"),
		LeaseStartDate:    "2025-07-01",
		LeaseEndDate:      "2026-06-30",
		UnitId:            "101",
		BuildingId:        "A",
		UnitRent:          json.Number("1500"),
	}
}

func TestComputeLeaseDelta_NoChange(t *testing.T) {
	delta := computeLeaseDelta(baseLeaseData(), nil, nil, baseRawEntry(), "UTC", models.ImportProviderMRI)
	if !delta.isEmpty() {
		t.Fatalf("expected empty delta, got %+v", delta)
	}
}

func TestComputeLeaseDelta_EndDateAndRent(t *testing.T) {
	raw := baseRawEntry()
	raw.LeaseEndDate = "2026-07-31"
	raw.UnitRent = json.Number("1600")

	delta := computeLeaseDelta(baseLeaseData(), nil, nil, raw, "UTC", models.ImportProviderMRI)
	if !delta.EndDateChanged || delta.NewEndDate == nil {
		t.Fatalf("expected end date change, got %+v", delta)
	}
	if !delta.RentChanged || !delta.NewRent.Equal(decimal.NewFromInt(1600)) {
		t.Fatalf("expected rent change to 1600, got %+v", delta)
	}
	if delta.TermChanged || delta.RecurringChanged || delta.ConcessionsChanged {
		t.Fatalf("unrelated fields flagged: %+v", delta)
	}
}

func TestComputeLeaseDelta_StartDateOnlyForYardi(t *testing.T) {
	raw := baseRawEntry()
	raw.LeaseStartDate = "2025-08-01"

	delta := computeLeaseDelta(baseLeaseData(), nil, nil, raw, "UTC", models.ImportProviderMRI)
	if delta.StartDateChanged {
		t.Fatal("start date changes must be ignored for mri")
	}
	delta = computeLeaseDelta(baseLeaseData(), nil, nil, raw, "UTC", models.ImportProviderYardi)
	if !delta.StartDateChanged {
		t.Fatal("start date changes must be honored for yardi")
	}
}

func TestComputeLeaseDelta_MonthToMonthTogglesRollover(t *testing.T) {
	raw := baseRawEntry()
	raw.LeaseTerm = strRef("MTM")

	delta := computeLeaseDelta(baseLeaseData(), nil, nil, raw, "UTC", models.ImportProviderMRI)
	if !delta.TermChanged || !delta.NewRollover {
		t.Fatalf("expected rollover term change, got %+v", delta)
	}
}

func TestChargesEqual_OrderInsensitive(t *testing.T) {
	a := []models.LeaseCharge{
		{Code: "PRK", Amount: decimal.NewFromInt(75)},
		{Code: "PET", Amount: decimal.NewFromInt(50)},
	}
	b := []models.LeaseCharge{
		{Code: "PET", Amount: decimal.NewFromInt(50)},
		{Code: "PRK", Amount: decimal.NewFromInt(75)},
	}
	if !chargesEqual(a, b) {
		t.Fatal("expected order-insensitive equality")
	}
	b[0].Amount = decimal.NewFromInt(55)
	if chargesEqual(a, b) {
		t.Fatal("expected amount change to be detected")
	}
}

func TestApplyEndDateChange_PastEndDateBecomesExtension(t *testing.T) {
	now := time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)
	cur := baseLeaseData()
	cur.LeaseEndDate = dateRef(2026, 12, 31) // still running
	meta := models.LeaseMetadata{}
	delta := leaseDelta{EndDateChanged: true, NewEndDate: dateRef(2026, 6, 1)}

	applyEndDateChange(&cur, &meta, delta, now)
	if !meta.IsExtension {
		t.Fatalf("an end date landing in the past must flag an extension, got meta=%+v", meta)
	}
	if meta.OriginalEndDate == nil || !meta.OriginalEndDate.Equal(*dateRef(2026, 12, 31)) {
		t.Fatalf("expected stored end date preserved in metadata, got %v", meta.OriginalEndDate)
	}
	if cur.LeaseEndDate == nil || !cur.LeaseEndDate.Equal(*delta.NewEndDate) {
		t.Fatalf("expected feed end date applied, got %v", cur.LeaseEndDate)
	}
}

func TestApplyEndDateChange_PastEndDateIgnoredWhileExtended(t *testing.T) {
	now := time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)
	cur := baseLeaseData() // ends 2026-06-30
	meta := models.LeaseMetadata{IsExtension: true, OriginalEndDate: dateRef(2026, 3, 31)}
	delta := leaseDelta{EndDateChanged: true, NewEndDate: dateRef(2026, 5, 1)}

	applyEndDateChange(&cur, &meta, delta, now)
	if !cur.LeaseEndDate.Equal(*dateRef(2026, 6, 30)) {
		t.Fatalf("an already extended lease must keep its end date, got %v", cur.LeaseEndDate)
	}
	if !meta.IsExtension || meta.OriginalEndDate == nil {
		t.Fatalf("extension bookkeeping must survive, got %+v", meta)
	}
}

func TestApplyEndDateChange_PastEndDateIgnoredOnMonthToMonth(t *testing.T) {
	now := time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)
	cur := baseLeaseData()
	cur.RolloverPeriod = true
	meta := models.LeaseMetadata{}
	delta := leaseDelta{EndDateChanged: true, NewEndDate: dateRef(2026, 5, 1)}

	applyEndDateChange(&cur, &meta, delta, now)
	if meta.IsExtension {
		t.Fatal("a month to month lease never becomes an extension")
	}
	if !cur.LeaseEndDate.Equal(*dateRef(2026, 6, 30)) {
		t.Fatalf("a month to month lease keeps its end date, got %v", cur.LeaseEndDate)
	}
}

func TestApplyEndDateChange_ForwardRollOfExpiredLeaseIsPlainUpdate(t *testing.T) {
	now := time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)
	cur := baseLeaseData() // ends 2026-06-30, already expired
	meta := models.LeaseMetadata{}
	delta := leaseDelta{EndDateChanged: true, NewEndDate: dateRef(2027, 6, 30)}

	applyEndDateChange(&cur, &meta, delta, now)
	if meta.IsExtension {
		t.Fatal("rolling an expired lease forward is a plain update, not an extension")
	}
	if !cur.LeaseEndDate.Equal(*delta.NewEndDate) {
		t.Fatalf("expected new end date applied, got %v", cur.LeaseEndDate)
	}
}

func TestApplyEndDateChange_LaterDateClearsExtension(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	cur := baseLeaseData()
	meta := models.LeaseMetadata{
		IsExtension:              true,
		OriginalEndDate:          dateRef(2026, 6, 30),
		ComputedExtensionEndDate: dateRef(2026, 9, 30),
	}
	delta := leaseDelta{EndDateChanged: true, NewEndDate: dateRef(2027, 6, 30)}

	applyEndDateChange(&cur, &meta, delta, now)
	if meta.IsExtension || meta.OriginalEndDate != nil || meta.ComputedExtensionEndDate != nil {
		t.Fatalf("expected extension bookkeeping cleared, got %+v", meta)
	}
	if !cur.LeaseEndDate.Equal(*delta.NewEndDate) {
		t.Fatalf("expected new end date applied, got %v", cur.LeaseEndDate)
	}
}

func TestApplyEndDateChange_FutureLeaseIsNotAnExtension(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cur := baseLeaseData() // ends 2026-06-30, still running
	meta := models.LeaseMetadata{}
	delta := leaseDelta{EndDateChanged: true, NewEndDate: dateRef(2026, 12, 31)}

	applyEndDateChange(&cur, &meta, delta, now)
	if meta.IsExtension {
		t.Fatal("an end date pushed on a running lease is a plain update, not an extension")
	}
}

func TestEndDateMatchesPublishedRenewal(t *testing.T) {
	published := &models.PublishedLease{
		Status:       models.PublishedLeaseStatusSubmitted,
		LeaseTerm:    "12",
		LeaseEndDate: dateRef(2027, 6, 30),
	}
	if !endDateMatchesPublishedRenewal(published, dateRef(2027, 6, 30)) {
		t.Fatal("an end date equal to the published renewal end date must match")
	}
	if endDateMatchesPublishedRenewal(published, dateRef(2027, 7, 31)) {
		t.Fatal("a different end date must not match")
	}
	if endDateMatchesPublishedRenewal(nil, dateRef(2027, 6, 30)) {
		t.Fatal("no published lease means no match")
	}
}

func TestTermMatchesPublishedRenewal(t *testing.T) {
	published := &models.PublishedLease{LeaseTerm: "12"}
	if !termMatchesPublishedRenewal(published, "12") {
		t.Fatal("an equal term must match")
	}
	if termMatchesPublishedRenewal(published, "6") {
		t.Fatal("a different term must not match")
	}
	if termMatchesPublishedRenewal(&models.PublishedLease{}, "12") {
		t.Fatal("a published lease without a term must not match")
	}
}

func TestComputeVacateTransition_EntersMovingOut(t *testing.T) {
	raw := baseRawEntry()
	raw.LeaseVacateDate = "2026-05-31"
	raw.LeaseVacateReason = "relocation"

	state, meta, changed := computeVacateTransition(models.ActiveLeaseStateNone, models.LeaseMetadata{}, raw, "UTC")
	if !changed || state != models.ActiveLeaseStateMovingOut {
		t.Fatalf("expected MOVING_OUT, got state=%s changed=%v", state, changed)
	}
	if meta.VacateDate == nil || meta.VacateReason != "relocation" {
		t.Fatalf("expected vacate metadata, got %+v", meta)
	}
}

func TestComputeVacateTransition_EvictionAloneEntersMovingOut(t *testing.T) {
	raw := baseRawEntry()
	raw.IsUnderEviction = true

	state, meta, changed := computeVacateTransition(models.ActiveLeaseStateNone, models.LeaseMetadata{}, raw, "UTC")
	if !changed || state != models.ActiveLeaseStateMovingOut || !meta.IsUnderEviction {
		t.Fatalf("expected eviction to enter MOVING_OUT, got state=%s meta=%+v", state, meta)
	}
}

func TestComputeVacateTransition_VacateRemovedCancelsUnlessEvicted(t *testing.T) {
	meta := models.LeaseMetadata{VacateDate: dateRef(2026, 5, 31)}
	raw := baseRawEntry()

	state, newMeta, changed := computeVacateTransition(models.ActiveLeaseStateMovingOut, meta, raw, "UTC")
	if !changed || state != models.ActiveLeaseStateNone {
		t.Fatalf("expected cancellation, got state=%s changed=%v", state, changed)
	}
	if newMeta.VacateDate != nil {
		t.Fatal("expected vacate date cleared")
	}

	// same removal while eviction is still flagged must keep MOVING_OUT
	raw.IsUnderEviction = true
	state, _, _ = computeVacateTransition(models.ActiveLeaseStateMovingOut, meta, raw, "UTC")
	if state != models.ActiveLeaseStateMovingOut {
		t.Fatal("eviction must keep the lease in MOVING_OUT")
	}
}

func TestComputeVacateTransition_ConfirmedMoveOutIsNeverCancelled(t *testing.T) {
	meta := models.LeaseMetadata{VacateDate: dateRef(2026, 5, 31), MoveOutConfirmed: true}
	raw := baseRawEntry()

	state, _, changed := computeVacateTransition(models.ActiveLeaseStateMovingOut, meta, raw, "UTC")
	if changed || state != models.ActiveLeaseStateMovingOut {
		t.Fatalf("confirmed move out must stay, got state=%s changed=%v", state, changed)
	}
}

func TestRenewalExecuted(t *testing.T) {
	ec := &entryContext{renewalParty: &models.Party{ID: 9}}
	cur := baseLeaseData()
	delta := leaseDelta{StartDateChanged: true, NewStartDate: dateRef(2026, 7, 1)}
	if !renewalExecuted(ec, cur, delta) {
		t.Fatal("start after current end during a renewal must count as executed")
	}

	delta.NewStartDate = dateRef(2026, 1, 1)
	if renewalExecuted(ec, cur, delta) {
		t.Fatal("start before current end is not an executed renewal")
	}

	ec.renewalParty = nil
	delta.NewStartDate = dateRef(2026, 7, 1)
	if renewalExecuted(ec, cur, delta) {
		t.Fatal("no renewal workflow means nothing to execute")
	}
}
