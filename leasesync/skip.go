package leasesync

import (
	"time"

	"bitbucket.org/mmdatafocus/leasing_backend/models"
)

// skipInput is the distilled state the skip rules operate on. Keeping it flat
// lets the rules stay free of storage concerns.
type skipInput struct {
	HasLeaseTerm       bool
	HasInventory       bool
	HasActiveLease     bool
	HasNewLease        bool
	IsPastResident     bool
	LeaseEndDate       *time.Time
	MoveOutConfirmed   bool
	InventoryConflict  bool
	Now                time.Time
}

func buildSkipInput(ec *entryContext, inventoryConflict bool, now time.Time) skipInput {
	input := skipInput{
		HasLeaseTerm:      ec.raw.LeaseTerm != nil && *ec.raw.LeaseTerm != "",
		HasInventory:      ec.inventory != nil,
		HasActiveLease:    ec.activeLeaseParty != nil,
		HasNewLease:       ec.newLeaseParty != nil,
		IsPastResident:    ec.raw.IsPastResident(),
		InventoryConflict: inventoryConflict,
		Now:               now,
	}
	if ec.leaseSnapshot != nil {
		data := ec.leaseSnapshot.DecodeLeaseData()
		input.LeaseEndDate = data.LeaseEndDate
		input.MoveOutConfirmed = ec.leaseSnapshot.DecodeMetadata().MoveOutConfirmed
	}
	return input
}

// EvaluateSkip runs the skip rules in order and returns the first applicable
// reason, or nil when the entry should be processed.
func EvaluateSkip(input skipInput) *models.SkipReason {
	if !input.HasLeaseTerm {
		return skipReason(models.SkipReasonNoLeaseTerm)
	}
	if !input.HasInventory {
		return skipReason(models.SkipReasonMissingUnit)
	}
	if input.HasNewLease {
		return skipReason(models.SkipReasonNewRecordExists)
	}
	if input.IsPastResident {
		if !input.HasActiveLease {
			return skipReason(models.SkipReasonMovedOut)
		}
		if input.MoveOutConfirmed {
			return skipReason(models.SkipReasonMovedOut)
		}
		if input.LeaseEndDate != nil && input.LeaseEndDate.Before(input.Now) {
			return skipReason(models.SkipReasonActiveLeaseEnded)
		}
	}
	if !input.HasActiveLease && input.InventoryConflict {
		return skipReason(models.SkipReasonActiveLeaseOnSameUnit)
	}
	return nil
}

func skipReason(r models.SkipReason) *models.SkipReason {
	return &r
}
