package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/leasing_backend/config"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Party is one leasing workflow instance. Workflows belonging to the same
// physical tenancy share a party_group_id.
type Party struct {
	ID            int           `gorm:"primary_key" json:"id"`
	TenantId      string        `gorm:"index;size:64;not null" json:"tenant_id"`
	PropertyId    int           `gorm:"index;not null" json:"property_id"`
	PartyGroupId  string        `gorm:"index;size:36;not null" json:"party_group_id"`
	WorkflowName  WorkflowName  `gorm:"size:20;not null;index" json:"workflow_name"`
	WorkflowState WorkflowState `gorm:"size:20;not null;index" json:"workflow_state"`
	OwnerId       int           `json:"owner_id"`
	TeamId        int           `json:"team_id"`
	IsCorporate   bool          `gorm:"default:false" json:"is_corporate"`
	CompanyName   string        `gorm:"size:255" json:"company_name"`
	SeedPartyId   *int          `gorm:"index" json:"seed_party_id"`
	ArchiveReason string        `gorm:"size:64" json:"archive_reason"`
	ArchivedAt    *time.Time    `json:"archived_at"`
	CreatedAt     time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"autoUpdateTime" json:"updated_at"`

	Members []PartyMember `gorm:"foreignKey:PartyId" json:"members,omitempty"`
}

func CreateParty(ctx context.Context, tx *gorm.DB, party *Party) error {
	if party.TenantId == "" {
		return errors.New("tenant id is required")
	}
	if party.PartyGroupId == "" {
		party.PartyGroupId = uuid.NewString()
	}
	if party.WorkflowState == "" {
		party.WorkflowState = WorkflowStateActive
	}
	return tx.WithContext(ctx).Create(party).Error
}

func GetParty(ctx context.Context, tx *gorm.DB, tenantId string, id int) (*Party, error) {
	var party Party
	err := tx.WithContext(ctx).
		Where("tenant_id = ?", tenantId).
		First(&party, id).Error
	if err != nil {
		return nil, err
	}
	return &party, nil
}

// GetPartyWorkflows loads every workflow (with members) attached to the given
// party ids, active ones first, most recently created first. The first
// ACTIVE_LEASE in this ordering is the workflow an import entry operates on.
func GetPartyWorkflows(ctx context.Context, tx *gorm.DB, tenantId string, partyIds []int) ([]*Party, error) {
	if len(partyIds) == 0 {
		return nil, nil
	}
	var parties []*Party
	err := tx.WithContext(ctx).
		Preload("Members").
		Where("tenant_id = ? AND id IN ?", tenantId, partyIds).
		Order("workflow_state asc, created_at desc").
		Find(&parties).Error
	return parties, err
}

// GetActiveRenewalForGroup returns the in-flight RENEWAL workflow of a party
// group, or nil when no renewal cycle is active.
func GetActiveRenewalForGroup(ctx context.Context, tx *gorm.DB, tenantId string, partyGroupId string) (*Party, error) {
	var party Party
	err := tx.WithContext(ctx).
		Preload("Members").
		Where("tenant_id = ? AND party_group_id = ? AND workflow_name = ? AND workflow_state = ?",
			tenantId, partyGroupId, WorkflowNameRenewal, WorkflowStateActive).
		Order("created_at desc").
		First(&party).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &party, nil
}

// GetActiveLeasePartyByInventory finds the party currently holding an active
// lease on an inventory, for the duplicate-unit check.
func GetActiveLeasePartyByInventory(ctx context.Context, tx *gorm.DB, tenantId string, inventoryId int, excludePartyId int) (*Party, error) {
	var party Party
	err := tx.WithContext(ctx).
		Joins("JOIN active_lease_snapshots als ON als.party_id = parties.id").
		Where("parties.tenant_id = ? AND als.inventory_id = ? AND parties.workflow_name = ? AND parties.workflow_state = ? AND parties.id <> ?",
			tenantId, inventoryId, WorkflowNameActiveLease, WorkflowStateActive, excludePartyId).
		First(&party).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &party, nil
}

func ArchiveParty(ctx context.Context, tx *gorm.DB, tenantId string, id int, reason string) error {
	now := time.Now().UTC()
	return tx.WithContext(ctx).Model(&Party{}).
		Where("tenant_id = ? AND id = ? AND workflow_state = ?", tenantId, id, WorkflowStateActive).
		Updates(map[string]interface{}{
			"workflow_state": WorkflowStateArchived,
			"archive_reason": reason,
			"archived_at":    now,
		}).Error
}

func UpdateParty(ctx context.Context, tx *gorm.DB, id int, updates map[string]interface{}) error {
	return tx.WithContext(ctx).Model(&Party{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// CountActivePartiesForProperty is a health metric used by the sync handlers.
func CountActivePartiesForProperty(ctx context.Context, tenantId string, propertyId int) (int64, error) {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&Party{}).
		Where("tenant_id = ? AND property_id = ? AND workflow_state = ?", tenantId, propertyId, WorkflowStateActive).
		Count(&count).Error
	return count, err
}
