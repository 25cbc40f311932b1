package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ActiveLeaseSnapshot is the mutable record of current lease terms, charges
// and occupancy state for one ACTIVE_LEASE party. One row per party.
type ActiveLeaseSnapshot struct {
	ID            int              `gorm:"primary_key" json:"id"`
	TenantId      string           `gorm:"index;size:64;not null" json:"tenant_id"`
	PartyId       int              `gorm:"uniqueIndex;not null" json:"party_id"`
	InventoryId   int              `gorm:"index;not null" json:"inventory_id"`
	State         ActiveLeaseState `gorm:"size:20;not null;index" json:"state"`
	LeaseDataJSON []byte           `gorm:"type:json" json:"lease_data"`
	ChargesJSON   []byte           `gorm:"type:json" json:"recurring_charges"`
	ConcessionsJSON []byte         `gorm:"type:json" json:"concessions"`
	MetadataJSON  []byte           `gorm:"type:json" json:"metadata"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type LeaseData struct {
	LeaseTerm      string          `json:"leaseTerm"`
	LeaseStartDate *time.Time      `json:"leaseStartDate"`
	LeaseEndDate   *time.Time      `json:"leaseEndDate"`
	UnitRent       decimal.Decimal `json:"unitRent"`
	UnitId         string          `json:"unitId"`
	BuildingId     string          `json:"buildingId"`
	// RolloverPeriod is set while the lease runs month-to-month.
	RolloverPeriod bool `json:"rolloverPeriod"`
}

type LeaseCharge struct {
	Code        string          `json:"code"`
	Amount      decimal.Decimal `json:"amount"`
	StartDate   *time.Time      `json:"startDate"`
	EndDate     *time.Time      `json:"endDate"`
	Description string          `json:"description"`
}

type LeaseMetadata struct {
	VacateDate                    *time.Time `json:"vacateDate"`
	VacateNotificationDate        *time.Time `json:"vacateNotificationDate"`
	VacateReason                  string     `json:"vacateReason"`
	IsUnderEviction               bool       `json:"isUnderEviction"`
	MoveOutConfirmed              bool       `json:"moveOutConfirmed"`
	WasExternalRenewalLetterSent  bool       `json:"wasExternalRenewalLetterSent"`
	ExternalRenewalLetterSentDate *time.Time `json:"externalRenewalLetterSentDate"`
	IsExtension                   bool       `json:"isExtension"`
	OriginalEndDate               *time.Time `json:"originalEndDate"`
	ComputedExtensionEndDate      *time.Time `json:"computedExtensionEndDate"`
}

// Decode helpers fall back to zero values on malformed JSON so a bad row
// cannot wedge the whole pipeline.

func (s *ActiveLeaseSnapshot) DecodeLeaseData() LeaseData {
	var out LeaseData
	if len(s.LeaseDataJSON) > 0 {
		_ = json.Unmarshal(s.LeaseDataJSON, &out)
	}
	return out
}

func (s *ActiveLeaseSnapshot) EncodeLeaseData(data LeaseData) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	s.LeaseDataJSON = b
	return nil
}

func (s *ActiveLeaseSnapshot) DecodeCharges() []LeaseCharge {
	var out []LeaseCharge
	if len(s.ChargesJSON) > 0 {
		_ = json.Unmarshal(s.ChargesJSON, &out)
	}
	return out
}

func (s *ActiveLeaseSnapshot) EncodeCharges(charges []LeaseCharge) error {
	b, err := json.Marshal(charges)
	if err != nil {
		return err
	}
	s.ChargesJSON = b
	return nil
}

func (s *ActiveLeaseSnapshot) DecodeConcessions() []LeaseCharge {
	var out []LeaseCharge
	if len(s.ConcessionsJSON) > 0 {
		_ = json.Unmarshal(s.ConcessionsJSON, &out)
	}
	return out
}

func (s *ActiveLeaseSnapshot) EncodeConcessions(concessions []LeaseCharge) error {
	b, err := json.Marshal(concessions)
	if err != nil {
		return err
	}
	s.ConcessionsJSON = b
	return nil
}

func (s *ActiveLeaseSnapshot) DecodeMetadata() LeaseMetadata {
	var out LeaseMetadata
	if len(s.MetadataJSON) > 0 {
		_ = json.Unmarshal(s.MetadataJSON, &out)
	}
	return out
}

func (s *ActiveLeaseSnapshot) EncodeMetadata(meta LeaseMetadata) error {
	b, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	s.MetadataJSON = b
	return nil
}

func CreateActiveLeaseSnapshot(ctx context.Context, tx *gorm.DB, snapshot *ActiveLeaseSnapshot) error {
	if snapshot.TenantId == "" {
		return errors.New("tenant id is required")
	}
	if snapshot.PartyId <= 0 {
		return errors.New("party id is required")
	}
	if snapshot.State == "" {
		snapshot.State = ActiveLeaseStateNone
	}
	return tx.WithContext(ctx).Create(snapshot).Error
}

func GetActiveLeaseSnapshotByParty(ctx context.Context, tx *gorm.DB, tenantId string, partyId int) (*ActiveLeaseSnapshot, error) {
	var snapshot ActiveLeaseSnapshot
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND party_id = ?", tenantId, partyId).
		First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snapshot, nil
}

func SaveActiveLeaseSnapshot(ctx context.Context, tx *gorm.DB, snapshot *ActiveLeaseSnapshot) error {
	return tx.WithContext(ctx).Model(&ActiveLeaseSnapshot{}).
		Where("id = ?", snapshot.ID).
		Updates(map[string]interface{}{
			"state":            snapshot.State,
			"inventory_id":     snapshot.InventoryId,
			"lease_data_json":  snapshot.LeaseDataJSON,
			"charges_json":     snapshot.ChargesJSON,
			"concessions_json": snapshot.ConcessionsJSON,
			"metadata_json":    snapshot.MetadataJSON,
		}).Error
}
