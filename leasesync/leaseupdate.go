package leasesync

import (
	"context"
	"sort"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/leasing_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// leaseDelta captures every lease-level field the feed changed. Unlike member
// matching, which stops at the first rule, all changed lease fields are acted
// on in the same pass.
type leaseDelta struct {
	EndDateChanged bool
	NewEndDate     *time.Time

	StartDateChanged bool
	NewStartDate     *time.Time

	TermChanged bool
	NewTerm     string
	NewRollover bool

	RentChanged bool
	NewRent     decimal.Decimal

	RecurringChanged bool
	NewRecurring     []models.LeaseCharge

	ConcessionsChanged bool
	NewConcessions     []models.LeaseCharge
}

func (d leaseDelta) isEmpty() bool {
	return !d.EndDateChanged && !d.StartDateChanged && !d.TermChanged &&
		!d.RentChanged && !d.RecurringChanged && !d.ConcessionsChanged
}

// computeLeaseDelta diffs the stored lease against the feed. Start date
// changes are only honored for providers that send reliable start dates.
func computeLeaseDelta(cur models.LeaseData, curRecurring, curConcessions []models.LeaseCharge, raw RawEntry, timezone string, provider string) leaseDelta {
	next := leaseDataFromRaw(raw, timezone)
	nextRecurring, nextConcessions := splitCharges(raw.RecurringCharges, timezone)

	var delta leaseDelta
	if !models.SameDate(cur.LeaseEndDate, next.LeaseEndDate) {
		delta.EndDateChanged = true
		delta.NewEndDate = next.LeaseEndDate
	}
	if provider == models.ImportProviderYardi && !models.SameDate(cur.LeaseStartDate, next.LeaseStartDate) {
		delta.StartDateChanged = true
		delta.NewStartDate = next.LeaseStartDate
	}
	if cur.LeaseTerm != next.LeaseTerm || cur.RolloverPeriod != next.RolloverPeriod {
		delta.TermChanged = true
		delta.NewTerm = next.LeaseTerm
		delta.NewRollover = next.RolloverPeriod
	}
	if !cur.UnitRent.Equal(next.UnitRent) {
		delta.RentChanged = true
		delta.NewRent = next.UnitRent
	}
	if !chargesEqual(curRecurring, nextRecurring) {
		delta.RecurringChanged = true
		delta.NewRecurring = nextRecurring
	}
	if !chargesEqual(curConcessions, nextConcessions) {
		delta.ConcessionsChanged = true
		delta.NewConcessions = nextConcessions
	}
	return delta
}

func chargesEqual(a, b []models.LeaseCharge) bool {
	if len(a) != len(b) {
		return false
	}
	keys := func(charges []models.LeaseCharge) []string {
		out := make([]string, 0, len(charges))
		for _, c := range charges {
			key := c.Code + "|" + c.Amount.String() + "|" + c.Description
			if c.StartDate != nil {
				key += "|" + c.StartDate.UTC().Format("2006-01-02")
			}
			if c.EndDate != nil {
				key += "|" + c.EndDate.UTC().Format("2006-01-02")
			}
			out = append(out, key)
		}
		sort.Strings(out)
		return out
	}
	ka, kb := keys(a), keys(b)
	for i := range ka {
		if ka[i] != kb[i] {
			return false
		}
	}
	return true
}

// renewalExecuted reports whether the feed now reflects a signed renewal: the
// incoming lease starts after the stored lease ends while a renewal workflow
// is in flight.
func renewalExecuted(ec *entryContext, cur models.LeaseData, delta leaseDelta) bool {
	if !ec.renewalInProgress() || !delta.StartDateChanged || delta.NewStartDate == nil {
		return false
	}
	return cur.LeaseEndDate != nil && delta.NewStartDate.After(*cur.LeaseEndDate)
}

// reconcileLease applies the lease-level feed changes, or freezes them into
// exception reports while a renewal cycle is active.
func reconcileLease(ctx context.Context, tx *gorm.DB, ec *entryContext, now time.Time) error {
	snapshot := ec.leaseSnapshot
	if snapshot == nil {
		return nil
	}
	cur := snapshot.DecodeLeaseData()
	curRecurring := snapshot.DecodeCharges()
	curConcessions := snapshot.DecodeConcessions()
	timezone := ec.timezone()

	delta := computeLeaseDelta(cur, curRecurring, curConcessions, ec.raw, timezone, ec.provider)
	if delta.isEmpty() {
		return handleLeaseVacate(ctx, tx, ec, now)
	}

	executed := renewalExecuted(ec, cur, delta)
	freeze := ec.renewalInProgress() && !executed
	if freeze {
		if err := fileLeaseExceptions(ctx, tx, ec, cur, curRecurring, curConcessions, delta); err != nil {
			return err
		}
		return handleLeaseVacate(ctx, tx, ec, now)
	}

	meta := snapshot.DecodeMetadata()
	if delta.EndDateChanged {
		applyEndDateChange(&cur, &meta, delta, now)
	}
	if delta.StartDateChanged {
		cur.LeaseStartDate = delta.NewStartDate
		if meta.IsExtension {
			meta.IsExtension = false
			meta.OriginalEndDate = nil
			meta.ComputedExtensionEndDate = nil
		}
	}
	if delta.TermChanged {
		cur.LeaseTerm = delta.NewTerm
		cur.RolloverPeriod = delta.NewRollover
	}
	if delta.RentChanged {
		cur.UnitRent = delta.NewRent
	}
	if err := snapshot.EncodeLeaseData(cur); err != nil {
		return err
	}
	if delta.RecurringChanged {
		if err := snapshot.EncodeCharges(delta.NewRecurring); err != nil {
			return err
		}
	}
	if delta.ConcessionsChanged {
		if err := snapshot.EncodeConcessions(delta.NewConcessions); err != nil {
			return err
		}
	}
	if err := snapshot.EncodeMetadata(meta); err != nil {
		return err
	}
	if err := models.SaveActiveLeaseSnapshot(ctx, tx, snapshot); err != nil {
		return err
	}

	if executed {
		if err := ignoreSupersededLeaseExceptions(ctx, tx, ec); err != nil {
			return err
		}
	}

	if err := models.PublishActivity(ctx, tx, ec.tenantId, ec.entry.PropertyExternalId,
		snapshot.PartyId, models.ReferenceTypeActiveLease, snapshot, nil, models.PubSubMessageActionUpdate); err != nil {
		return err
	}
	return handleLeaseVacate(ctx, tx, ec, now)
}

// applyEndDateChange applies the feed's end date and keeps the extension
// bookkeeping. An end date landing in the past extends the expired lease: the
// stored end date is preserved in metadata and isExtension set, instead of the
// tenancy getting shortened. While the lease is already an extension or rolls
// month to month, a past end date is ignored. A future end date past the
// computed extension boundary clears the flag again.
func applyEndDateChange(cur *models.LeaseData, meta *models.LeaseMetadata, delta leaseDelta, now time.Time) {
	newEnd := delta.NewEndDate
	if newEnd == nil {
		return
	}
	if newEnd.Before(now) {
		if meta.IsExtension || cur.RolloverPeriod {
			return
		}
		if cur.LeaseEndDate != nil {
			original := *cur.LeaseEndDate
			meta.OriginalEndDate = &original
		}
		meta.IsExtension = true
		cur.LeaseEndDate = newEnd
		return
	}
	if meta.IsExtension && meta.ComputedExtensionEndDate != nil && meta.ComputedExtensionEndDate.Before(*newEnd) {
		meta.IsExtension = false
		meta.OriginalEndDate = nil
		meta.ComputedExtensionEndDate = nil
	}
	cur.LeaseEndDate = newEnd
}

// endDateMatchesPublishedRenewal reports whether a frozen end-date change only
// echoes the renewal lease the workflow already published.
func endDateMatchesPublishedRenewal(published *models.PublishedLease, newEnd *time.Time) bool {
	if published == nil || published.LeaseEndDate == nil || newEnd == nil {
		return false
	}
	return models.SameDate(published.LeaseEndDate, newEnd)
}

// termMatchesPublishedRenewal is the same check for the lease term.
func termMatchesPublishedRenewal(published *models.PublishedLease, newTerm string) bool {
	if published == nil || published.LeaseTerm == "" || newTerm == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(published.LeaseTerm), strings.TrimSpace(newTerm))
}

func fileLeaseExceptions(ctx context.Context, tx *gorm.DB, ec *entryContext, cur models.LeaseData, curRecurring, curConcessions []models.LeaseCharge, delta leaseDelta) error {
	externalId := ec.raw.PrimaryExternalId
	if delta.EndDateChanged && !endDateMatchesPublishedRenewal(ec.renewalPublishedLease, delta.NewEndDate) {
		if err := fileException(ctx, tx, ec, externalId,
			models.ExceptionRuleLeaseEndDateUpdateAfterRenewalStart,
			fieldChangePayload("leaseEndDate", cur.LeaseEndDate, delta.NewEndDate)); err != nil {
			return err
		}
	}
	if delta.StartDateChanged {
		if err := fileException(ctx, tx, ec, externalId,
			models.ExceptionRuleLeaseStartDateUpdateAfterRenewalStart,
			fieldChangePayload("leaseStartDate", cur.LeaseStartDate, delta.NewStartDate)); err != nil {
			return err
		}
	}
	if delta.TermChanged && !termMatchesPublishedRenewal(ec.renewalPublishedLease, delta.NewTerm) {
		if err := fileException(ctx, tx, ec, externalId,
			models.ExceptionRuleLeaseTermUpdatedAfterRenewalStart,
			fieldChangePayload("leaseTerm", cur.LeaseTerm, delta.NewTerm)); err != nil {
			return err
		}
	}
	if delta.RentChanged {
		if err := fileException(ctx, tx, ec, externalId,
			models.ExceptionRuleUnitRentUpdatedAfterRenewalStart,
			fieldChangePayload("unitRent", cur.UnitRent.String(), delta.NewRent.String())); err != nil {
			return err
		}
	}
	if delta.RecurringChanged {
		if err := fileException(ctx, tx, ec, externalId,
			models.ExceptionRuleRecurringChargesUpdatedAfterRenewalStart,
			fieldChangePayload("recurringCharges", curRecurring, delta.NewRecurring)); err != nil {
			return err
		}
	}
	if delta.ConcessionsChanged {
		if err := fileException(ctx, tx, ec, externalId,
			models.ExceptionRuleConcessionsUpdatedAfterRenewalStart,
			fieldChangePayload("concessions", curConcessions, delta.NewConcessions)); err != nil {
			return err
		}
	}
	return nil
}

var leaseFieldRules = []models.ExceptionRule{
	models.ExceptionRuleLeaseEndDateUpdateAfterRenewalStart,
	models.ExceptionRuleLeaseStartDateUpdateAfterRenewalStart,
	models.ExceptionRuleLeaseTermUpdatedAfterRenewalStart,
	models.ExceptionRuleUnitRentUpdatedAfterRenewalStart,
	models.ExceptionRuleRecurringChargesUpdatedAfterRenewalStart,
	models.ExceptionRuleConcessionsUpdatedAfterRenewalStart,
}

func ignoreSupersededLeaseExceptions(ctx context.Context, tx *gorm.DB, ec *entryContext) error {
	for _, rule := range leaseFieldRules {
		if err := models.MarkLastExceptionReportAsIgnored(ctx, tx, ec.tenantId,
			ec.raw.PrimaryExternalId, rule, models.IgnoreReasonSupersededByNewReport); err != nil {
			return err
		}
	}
	return nil
}

// computeVacateTransition is the MOVING_OUT state machine. A vacate date or an
// eviction flag puts the lease into MOVING_OUT; the state is only cancelled
// when the signal that caused it disappears and the other one is not present.
func computeVacateTransition(state models.ActiveLeaseState, meta models.LeaseMetadata, raw RawEntry, timezone string) (models.ActiveLeaseState, models.LeaseMetadata, bool) {
	var newVacate, newNotification *time.Time
	if t, err := models.ParseDateString(raw.LeaseVacateDate, timezone); err == nil {
		newVacate = &t
	}
	if t, err := models.ParseDateString(raw.LeaseVacateNotificationDate, timezone); err == nil {
		newNotification = &t
	}
	eviction := raw.IsUnderEviction

	changed := false
	switch {
	case newVacate != nil || eviction:
		if state != models.ActiveLeaseStateMovingOut ||
			!models.SameDate(meta.VacateDate, newVacate) ||
			meta.IsUnderEviction != eviction ||
			meta.VacateReason != raw.LeaseVacateReason {
			state = models.ActiveLeaseStateMovingOut
			meta.VacateDate = newVacate
			meta.VacateNotificationDate = newNotification
			meta.VacateReason = raw.LeaseVacateReason
			meta.IsUnderEviction = eviction
			changed = true
		}

	case state == models.ActiveLeaseStateMovingOut:
		vacateRemoved := meta.VacateDate != nil && newVacate == nil
		evictionRemoved := meta.IsUnderEviction && !eviction
		cancel := (vacateRemoved && !eviction) || (evictionRemoved && meta.VacateDate == nil)
		if cancel && !meta.MoveOutConfirmed {
			state = models.ActiveLeaseStateNone
			meta.VacateDate = nil
			meta.VacateNotificationDate = nil
			meta.VacateReason = ""
			meta.IsUnderEviction = false
			changed = true
		}
	}

	if meta.WasExternalRenewalLetterSent != raw.WasExternalRenewalLetterSent {
		meta.WasExternalRenewalLetterSent = raw.WasExternalRenewalLetterSent
		if t, err := models.ParseDateString(raw.ExternalRenewalLetterSentDate, timezone); err == nil {
			meta.ExternalRenewalLetterSentDate = &t
		}
		changed = true
	}
	return state, meta, changed
}

func handleLeaseVacate(ctx context.Context, tx *gorm.DB, ec *entryContext, now time.Time) error {
	snapshot := ec.leaseSnapshot
	if snapshot == nil {
		return nil
	}
	state, meta, changed := computeVacateTransition(snapshot.State, snapshot.DecodeMetadata(), ec.raw, ec.timezone())
	if !changed {
		return nil
	}
	snapshot.State = state
	if err := snapshot.EncodeMetadata(meta); err != nil {
		return err
	}
	return models.SaveActiveLeaseSnapshot(ctx, tx, snapshot)
}
