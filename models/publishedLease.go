package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// PublishedLease is the renewal workflow's published lease for a party, in
// SUBMITTED or EXECUTED state. The workflow owns these rows; the import
// pipeline only reads them to recognize feed changes that echo the already
// published renewal terms.
type PublishedLease struct {
	ID             int        `gorm:"primary_key" json:"id"`
	TenantId       string     `gorm:"index;size:64;not null" json:"tenant_id"`
	PartyId        int        `gorm:"index;not null" json:"party_id"`
	Status         string     `gorm:"size:20;not null;index" json:"status"`
	LeaseTerm      string     `gorm:"size:20" json:"lease_term"`
	LeaseStartDate *time.Time `json:"lease_start_date"`
	LeaseEndDate   *time.Time `json:"lease_end_date"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

const (
	PublishedLeaseStatusSubmitted = "submitted"
	PublishedLeaseStatusExecuted  = "executed"
)

// GetPublishedRenewalLease returns the latest submitted or executed lease of
// the renewal party, or nil when nothing was published yet.
func GetPublishedRenewalLease(ctx context.Context, tx *gorm.DB, tenantId string, partyId int) (*PublishedLease, error) {
	var lease PublishedLease
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND party_id = ? AND status IN ?", tenantId, partyId,
			[]string{PublishedLeaseStatusSubmitted, PublishedLeaseStatusExecuted}).
		Order("id desc").
		First(&lease).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &lease, nil
}
