package leasesync

// End-to-end reconciliation tests against a real MySQL instance. They are
// opt-in: set LEASESYNC_IT=true plus the usual DB_* env vars to run them.
// Every test works in its own throwaway tenant, so reruns never collide.

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/leasing_backend/config"
	"bitbucket.org/mmdatafocus/leasing_backend/models"
	"bitbucket.org/mmdatafocus/leasing_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var itConnect sync.Once

type importFixture struct {
	ctx       context.Context
	db        *gorm.DB
	tenantId  string
	property  *models.Property
	inventory *models.Inventory
}

func newImportFixture(t *testing.T) *importFixture {
	t.Helper()
	if os.Getenv("LEASESYNC_IT") != "true" {
		t.Skip("set LEASESYNC_IT=true and DB_* env vars to run against MySQL")
	}
	itConnect.Do(func() {
		config.ConnectDatabaseWithRetry()
		models.MigrateTable()
	})

	tenantId := "it-" + uuid.NewString()
	ctx := utils.SetTenantIdInContext(context.Background(), tenantId)

	property := &models.Property{
		TenantId:   tenantId,
		ExternalId: "prop-" + uuid.NewString()[:8],
		Name:       "Cove Apartments",
		Timezone:   "UTC",
	}
	if err := models.CreateProperty(ctx, property); err != nil {
		t.Fatal(err)
	}
	inventory := &models.Inventory{
		TenantId:   tenantId,
		PropertyId: property.ID,
		ExternalId: "u-101",
		UnitName:   "u-101",
	}
	if err := models.CreateInventory(ctx, inventory); err != nil {
		t.Fatal(err)
	}

	return &importFixture{
		ctx:       ctx,
		db:        config.GetDB(),
		tenantId:  tenantId,
		property:  property,
		inventory: inventory,
	}
}

// householdEntry is the base snapshot: two adults on unit u-101, Jane primary.
func (f *importFixture) householdEntry() RawEntry {
	term := "12"
	return RawEntry{
		PrimaryExternalId:  "t-100",
		PropertyExternalId: f.property.ExternalId,
		UnitId:             "u-101",
		LeaseTerm:          &term,
		LeaseStartDate:     "2026-01-01",
		LeaseEndDate:       "2026-12-31",
		UnitRent:           json.Number("1500.00"),
		Status:             "CURRENT",
		Members: []RawMember{
			{Id: "t-100", Type: "RESIDENT", FirstName: "Jane", LastName: "Doe", Email: "jane@example.com"},
			{Id: "r-200", Type: "RESIDENT", FirstName: "John", LastName: "Doe", Email: "john@example.com"},
		},
	}
}

func (f *importFixture) storeEntry(t *testing.T, raw RawEntry) *models.ImportEntry {
	t.Helper()
	data, err := json.Marshal(raw)
	if err != nil {
		t.Fatal(err)
	}
	entry := &models.ImportEntry{
		TenantId:           f.tenantId,
		PropertyExternalId: f.property.ExternalId,
		PrimaryExternalId:  raw.PrimaryExternalId,
		RawData:            data,
		Status:             models.ImportEntryStatusPending,
		LastSyncDate:       time.Now().UTC(),
	}
	if err := models.SaveImportEntry(f.ctx, f.db, entry); err != nil {
		t.Fatal(err)
	}
	return entry
}

// runEntry reconciles one entry and records the resulting status, the way the
// sync worker does.
func (f *importFixture) runEntry(t *testing.T, entry *models.ImportEntry) *models.SkipReason {
	t.Helper()
	reason, err := processEntryInTx(f.ctx, f.db, f.tenantId, "mri", defaultImportSettings(), f.property, entry)
	if err != nil {
		t.Fatal(err)
	}
	if reason != nil {
		if err := models.SetImportEntryStatus(f.ctx, f.db, entry.ID, models.ImportEntryStatusSkipped, reason, nil); err != nil {
			t.Fatal(err)
		}
	} else {
		if err := models.SetImportEntryStatus(f.ctx, f.db, entry.ID, models.ImportEntryStatusProcessed, nil, nil); err != nil {
			t.Fatal(err)
		}
	}
	return reason
}

func (f *importFixture) householdParty(t *testing.T) *models.Party {
	t.Helper()
	partyIds, err := models.GetPartyIdsByExternalIds(f.ctx, f.tenantId, []string{"t-100"})
	if err != nil {
		t.Fatal(err)
	}
	if len(partyIds) != 1 {
		t.Fatalf("expected exactly one party, got ids %v", partyIds)
	}
	party, err := models.GetParty(f.ctx, f.db, f.tenantId, partyIds[0])
	if err != nil {
		t.Fatal(err)
	}
	return party
}

// startRenewal opens a renewal workflow on the tenancy, the way the renewal
// kickoff does: a sibling party in the same group, linked under the primary
// external id.
func (f *importFixture) startRenewal(t *testing.T, activeParty *models.Party, primaryExternalId string) *models.Party {
	t.Helper()
	renewal := &models.Party{
		TenantId:      f.tenantId,
		PropertyId:    f.property.ID,
		PartyGroupId:  activeParty.PartyGroupId,
		WorkflowName:  models.WorkflowNameRenewal,
		WorkflowState: models.WorkflowStateActive,
	}
	if err := models.CreateParty(f.ctx, f.db, renewal); err != nil {
		t.Fatal(err)
	}
	memberId := 0
	link := &models.ExternalIdentityLink{
		TenantId:      f.tenantId,
		PartyId:       renewal.ID,
		PropertyId:    f.property.ID,
		PartyMemberId: &memberId,
		ExternalId:    primaryExternalId,
		IsPrimary:     true,
		StartDate:     time.Now().UTC(),
	}
	if err := f.db.WithContext(f.ctx).Create(link).Error; err != nil {
		t.Fatal(err)
	}
	return renewal
}

func (f *importFixture) findReport(t *testing.T, rule models.ExceptionRule, externalId string) *models.ExceptionReport {
	t.Helper()
	reports, err := models.ListExceptionReports(f.ctx, f.tenantId, f.property.ExternalId, false, 200, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, report := range reports {
		if report.RuleId == rule && report.ExternalId == externalId {
			return report
		}
	}
	return nil
}

func TestImportIntegration_HouseholdGetsOneLinkPerMember(t *testing.T) {
	f := newImportFixture(t)

	if reason := f.runEntry(t, f.storeEntry(t, f.householdEntry())); reason != nil {
		t.Fatalf("unexpected skip: %s", *reason)
	}

	party := f.householdParty(t)
	links, err := models.GetActiveLinksByParty(f.ctx, f.db, f.tenantId, party.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 2 {
		t.Fatalf("expected a link per adult, got %d", len(links))
	}
	primaries := 0
	effective := map[string]bool{}
	for _, link := range links {
		if link.IsPrimary {
			primaries++
		}
		effective[link.EffectiveExternalId()] = true
	}
	if primaries != 1 {
		t.Fatalf("expected exactly one primary link, got %d", primaries)
	}
	if !effective["t-100"] || !effective["r-200"] {
		t.Fatalf("expected links keyed by member external ids, got %v", effective)
	}

	members, err := models.GetActivePartyMembers(f.ctx, f.db, f.tenantId, party.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 {
		t.Fatalf("expected both adults as members, got %d", len(members))
	}
}

func TestImportIntegration_ReimportIsIdempotent(t *testing.T) {
	f := newImportFixture(t)

	if reason := f.runEntry(t, f.storeEntry(t, f.householdEntry())); reason != nil {
		t.Fatalf("unexpected skip on first run: %s", *reason)
	}
	party := f.householdParty(t)
	firstLinks, err := models.GetActiveLinksByParty(f.ctx, f.db, f.tenantId, party.ID)
	if err != nil {
		t.Fatal(err)
	}

	if reason := f.runEntry(t, f.storeEntry(t, f.householdEntry())); reason != nil {
		t.Fatalf("unexpected skip on second run: %s", *reason)
	}

	again := f.householdParty(t)
	if again.ID != party.ID {
		t.Fatalf("expected the same party, got %d then %d", party.ID, again.ID)
	}
	secondLinks, err := models.GetActiveLinksByParty(f.ctx, f.db, f.tenantId, party.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(secondLinks) != len(firstLinks) {
		t.Fatalf("expected %d links after reimport, got %d", len(firstLinks), len(secondLinks))
	}
	for i := range firstLinks {
		if firstLinks[i].ID != secondLinks[i].ID {
			t.Fatalf("expected stable link rows, got %d then %d", firstLinks[i].ID, secondLinks[i].ID)
		}
	}
	members, err := models.GetActivePartyMembers(f.ctx, f.db, f.tenantId, party.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 {
		t.Fatalf("expected member set unchanged, got %d", len(members))
	}
}

func TestImportIntegration_RenewalFreezesRecurringCharges(t *testing.T) {
	f := newImportFixture(t)

	if reason := f.runEntry(t, f.storeEntry(t, f.householdEntry())); reason != nil {
		t.Fatalf("unexpected skip: %s", *reason)
	}
	f.startRenewal(t, f.householdParty(t), "t-100")

	raw := f.householdEntry()
	raw.RecurringCharges = []RawCharge{
		{Code: "PRK", Amount: json.Number("75.00"), Description: "Parking"},
	}
	entry := f.storeEntry(t, raw)
	if reason := f.runEntry(t, entry); reason != nil {
		t.Fatalf("unexpected skip: %s", *reason)
	}

	if f.findReport(t, models.ExceptionRuleRecurringChargesUpdatedAfterRenewalStart, "t-100") == nil {
		t.Fatal("expected the charge change frozen into an exception report")
	}

	var reloaded models.ImportEntry
	if err := f.db.WithContext(f.ctx).First(&reloaded, entry.ID).Error; err != nil {
		t.Fatal(err)
	}
	if !reloaded.WasAddedToExceptionReport {
		t.Fatal("expected the entry flagged as added to the exception report")
	}
}

func TestImportIntegration_RenewalFreezesMemberRemoval(t *testing.T) {
	f := newImportFixture(t)

	if reason := f.runEntry(t, f.storeEntry(t, f.householdEntry())); reason != nil {
		t.Fatalf("unexpected skip: %s", *reason)
	}
	party := f.householdParty(t)
	f.startRenewal(t, party, "t-100")

	raw := f.householdEntry()
	raw.Members = raw.Members[:1] // John dropped from the feed
	if reason := f.runEntry(t, f.storeEntry(t, raw)); reason != nil {
		t.Fatalf("unexpected skip: %s", *reason)
	}

	members, err := models.GetActivePartyMembers(f.ctx, f.db, f.tenantId, party.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 {
		t.Fatalf("a removal during renewal must not be applied, got %d members", len(members))
	}
	if f.findReport(t, models.ExceptionRuleDeletedMembersAfterRenewalStart, "r-200") == nil {
		t.Fatal("expected the removal frozen into an exception report")
	}
}

func TestImportIntegration_RenewalPicksUpProcessedFrozenEntry(t *testing.T) {
	f := newImportFixture(t)

	if reason := f.runEntry(t, f.storeEntry(t, f.householdEntry())); reason != nil {
		t.Fatalf("unexpected skip: %s", *reason)
	}
	f.startRenewal(t, f.householdParty(t), "t-100")

	raw := f.householdEntry()
	raw.RecurringCharges = []RawCharge{
		{Code: "PRK", Amount: json.Number("75.00"), Description: "Parking"},
	}
	frozen := f.storeEntry(t, raw)
	if reason := f.runEntry(t, frozen); reason != nil {
		t.Fatalf("unexpected skip: %s", *reason)
	}

	// the entry is PROCESSED now; the renewal kickoff must still find it
	// because it carries frozen changes
	got, err := models.GetRenewalEntryToProcess(f.ctx, f.tenantId, "t-100")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != frozen.ID {
		t.Fatalf("expected the frozen processed entry, got %+v", got)
	}
	if got.Status != models.ImportEntryStatusProcessed {
		t.Fatalf("expected a processed entry, got status %s", got.Status)
	}

	if err := models.ResetImportEntryForReprocess(f.ctx, f.db, got.ID); err != nil {
		t.Fatal(err)
	}
	var reloaded models.ImportEntry
	if err := f.db.WithContext(f.ctx).First(&reloaded, got.ID).Error; err != nil {
		t.Fatal(err)
	}
	if reloaded.Status != models.ImportEntryStatusPending {
		t.Fatalf("expected the entry reset to pending, got %s", reloaded.Status)
	}
}

func TestImportIntegration_IgnoredExceptionSuppressesRefiling(t *testing.T) {
	f := newImportFixture(t)
	rule := models.ExceptionRuleLeaseTermUpdatedAfterRenewalStart
	payload := []byte(`{"field":"leaseTerm","newValue":"6"}`)

	first, err := models.CreateExceptionReport(f.ctx, f.db, &models.ExceptionReport{
		TenantId:           f.tenantId,
		PropertyExternalId: f.property.ExternalId,
		ExternalId:         "t-100",
		RuleId:             rule,
		ReportData:         payload,
	})
	if err != nil {
		t.Fatal(err)
	}
	if first == nil {
		t.Fatal("expected the first report created")
	}
	if err := models.MarkLastExceptionReportAsIgnored(f.ctx, f.db, f.tenantId, "t-100", rule, "resolved manually"); err != nil {
		t.Fatal(err)
	}

	dup, err := models.CreateExceptionReport(f.ctx, f.db, &models.ExceptionReport{
		TenantId:           f.tenantId,
		PropertyExternalId: f.property.ExternalId,
		ExternalId:         "t-100",
		RuleId:             rule,
		ReportData:         payload,
	})
	if err != nil {
		t.Fatal(err)
	}
	if dup != nil {
		t.Fatal("an ignored identical report must suppress refiling")
	}

	changed, err := models.CreateExceptionReport(f.ctx, f.db, &models.ExceptionReport{
		TenantId:           f.tenantId,
		PropertyExternalId: f.property.ExternalId,
		ExternalId:         "t-100",
		RuleId:             rule,
		ReportData:         []byte(`{"field":"leaseTerm","newValue":"9"}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if changed == nil {
		t.Fatal("a report with a different payload must be filed")
	}
}

func TestImportIntegration_EarlierSkipSuppressesInventoryConflictReport(t *testing.T) {
	f := newImportFixture(t)

	if reason := f.runEntry(t, f.storeEntry(t, f.householdEntry())); reason != nil {
		t.Fatalf("unexpected skip: %s", *reason)
	}

	// a second household claims the same unit, but its snapshot has no lease
	// term, so the entry is skipped before the conflict matters
	raw := f.householdEntry()
	raw.PrimaryExternalId = "t-900"
	raw.LeaseTerm = nil
	raw.Members = []RawMember{
		{Id: "t-900", Type: "RESIDENT", FirstName: "Bob", LastName: "Ross"},
	}
	reason := f.runEntry(t, f.storeEntry(t, raw))
	if reason == nil || *reason != models.SkipReasonNoLeaseTerm {
		t.Fatalf("expected NO_LEASE_TERM skip, got %v", reason)
	}
	if f.findReport(t, models.ExceptionRuleActiveLeaseAlreadyExistsForInventory, "t-900") != nil {
		t.Fatal("an entry skipped for a missing lease term must not file a conflict report")
	}
}
