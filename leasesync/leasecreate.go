package leasesync

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/leasing_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// leaseDataFromRaw maps feed lease fields into the stored lease data value.
func leaseDataFromRaw(raw RawEntry, timezone string) models.LeaseData {
	data := models.LeaseData{
		UnitId:     raw.UnitId,
		BuildingId: raw.BuildingId,
	}
	if raw.LeaseTerm != nil {
		data.LeaseTerm = *raw.LeaseTerm
		data.RolloverPeriod = isMonthToMonth(*raw.LeaseTerm)
	}
	if t, err := models.ParseDateString(raw.LeaseStartDate, timezone); err == nil {
		data.LeaseStartDate = &t
	}
	if t, err := models.ParseDateString(raw.LeaseEndDate, timezone); err == nil {
		data.LeaseEndDate = &t
	}
	if rent, err := decimal.NewFromString(raw.UnitRent.String()); err == nil {
		data.UnitRent = rent
	}
	return data
}

func isMonthToMonth(term string) bool {
	t := strings.ToUpper(strings.TrimSpace(term))
	return t == "MTM" || t == "MONTH-TO-MONTH" || t == "MONTH TO MONTH"
}

// splitCharges separates the feed charge list into recurring charges and
// concessions. The base rent line (code RNT) is excluded from both; its amount
// lives on the lease data.
func splitCharges(raw []RawCharge, timezone string) (recurring []models.LeaseCharge, concessions []models.LeaseCharge) {
	for _, rc := range raw {
		amount, err := decimal.NewFromString(rc.Amount.String())
		if err != nil {
			continue
		}
		charge := models.LeaseCharge{
			Code:        rc.Code,
			Amount:      amount,
			Description: rc.Description,
		}
		if t, err := models.ParseDateString(rc.StartDate, timezone); err == nil {
			charge.StartDate = &t
		}
		if t, err := models.ParseDateString(rc.EndDate, timezone); err == nil {
			charge.EndDate = &t
		}
		switch {
		case amount.IsNegative():
			concessions = append(concessions, charge)
		case rc.Code != models.BaseRentChargeCode && amount.IsPositive():
			recurring = append(recurring, charge)
		}
	}
	return recurring, concessions
}

// isCorporateEntry recognizes company tenancies: a primary member typed as
// corporate, or one carrying a last name with no first name.
func isCorporateEntry(raw RawEntry) (bool, string) {
	for _, m := range raw.Members {
		if m.Id != raw.PrimaryExternalId {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(m.Type), "CORPORATE") {
			return true, BuildFullName(m)
		}
		if strings.TrimSpace(m.FirstName) == "" && strings.TrimSpace(m.LastName) != "" {
			return true, strings.TrimSpace(m.LastName)
		}
	}
	return false, ""
}

// createLeaseParty materializes a brand new active lease from an import entry:
// party, lease snapshot, members, children, pets and vehicles.
func createLeaseParty(ctx context.Context, tx *gorm.DB, ec *entryContext, now time.Time) error {
	isCorporate, companyName := isCorporateEntry(ec.raw)
	party := &models.Party{
		TenantId:     ec.tenantId,
		PropertyId:   ec.property.ID,
		WorkflowName: models.WorkflowNameActiveLease,
		OwnerId:      ec.property.OwnerId,
		TeamId:       ec.property.TeamId,
		IsCorporate:  isCorporate,
		CompanyName:  companyName,
	}
	if err := models.CreateParty(ctx, tx, party); err != nil {
		return err
	}
	ec.activeLeaseParty = party
	ec.members = nil
	ec.links = nil

	snapshot := &models.ActiveLeaseSnapshot{
		TenantId:    ec.tenantId,
		PartyId:     party.ID,
		InventoryId: ec.inventory.ID,
		State:       models.ActiveLeaseStateNone,
	}
	timezone := ec.timezone()
	if err := snapshot.EncodeLeaseData(leaseDataFromRaw(ec.raw, timezone)); err != nil {
		return err
	}
	recurring, concessions := splitCharges(ec.raw.RecurringCharges, timezone)
	if err := snapshot.EncodeCharges(recurring); err != nil {
		return err
	}
	if err := snapshot.EncodeConcessions(concessions); err != nil {
		return err
	}
	meta := models.LeaseMetadata{
		WasExternalRenewalLetterSent: ec.raw.WasExternalRenewalLetterSent,
	}
	if t, err := models.ParseDateString(ec.raw.ExternalRenewalLetterSentDate, timezone); err == nil {
		meta.ExternalRenewalLetterSentDate = &t
	}
	if err := snapshot.EncodeMetadata(meta); err != nil {
		return err
	}
	if err := models.CreateActiveLeaseSnapshot(ctx, tx, snapshot); err != nil {
		return err
	}
	ec.leaseSnapshot = snapshot

	if err := reconcileMembers(ctx, tx, ec, now); err != nil {
		return err
	}
	if ec.settings.ProcessesPetsAndVehicles {
		if err := reconcilePetsAndVehicles(ctx, tx, ec, now); err != nil {
			return err
		}
	}
	if err := handleLeaseVacate(ctx, tx, ec, now); err != nil {
		return err
	}

	return models.PublishActivity(ctx, tx, ec.tenantId, ec.entry.PropertyExternalId,
		party.ID, models.ReferenceTypeParty, party, nil, models.PubSubMessageActionCreate)
}
