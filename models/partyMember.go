package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type PartyMember struct {
	ID         int        `gorm:"primary_key" json:"id"`
	TenantId   string     `gorm:"index;size:64;not null" json:"tenant_id"`
	PartyId    int        `gorm:"index;not null" json:"party_id"`
	PersonId   int        `gorm:"index;not null" json:"person_id"`
	MemberType MemberType `gorm:"size:20;not null;index" json:"member_type"`
	IsPointOfContact bool `gorm:"default:false" json:"is_point_of_contact"`
	VacateDate *time.Time `json:"vacate_date"`
	EndDate    *time.Time `gorm:"index" json:"end_date"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Person *Person `gorm:"foreignKey:PersonId" json:"person,omitempty"`
}

func CreatePartyMember(ctx context.Context, tx *gorm.DB, member *PartyMember) error {
	if member.TenantId == "" {
		return errors.New("tenant id is required")
	}
	if member.PartyId <= 0 {
		return errors.New("party id is required")
	}
	if member.PersonId <= 0 {
		return errors.New("person id is required")
	}
	return tx.WithContext(ctx).Create(member).Error
}

func GetPartyMember(ctx context.Context, tx *gorm.DB, tenantId string, id int) (*PartyMember, error) {
	var member PartyMember
	err := tx.WithContext(ctx).
		Preload("Person").
		Preload("Person.ContactInfos").
		Where("tenant_id = ?", tenantId).
		First(&member, id).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// GetActivePartyMembers loads non-removed members of a party with persons and
// contact infos preloaded.
func GetActivePartyMembers(ctx context.Context, tx *gorm.DB, tenantId string, partyId int) ([]*PartyMember, error) {
	var members []*PartyMember
	err := tx.WithContext(ctx).
		Preload("Person").
		Preload("Person.ContactInfos").
		Where("tenant_id = ? AND party_id = ? AND end_date IS NULL", tenantId, partyId).
		Order("id asc").
		Find(&members).Error
	return members, err
}

func UpdatePartyMember(ctx context.Context, tx *gorm.DB, id int, updates map[string]interface{}) error {
	return tx.WithContext(ctx).Model(&PartyMember{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// RemovePartyMember marks a member as removed. The person record stays; only
// the tenancy role ends.
func RemovePartyMember(ctx context.Context, tx *gorm.DB, tenantId string, id int, endDate time.Time) error {
	return tx.WithContext(ctx).Model(&PartyMember{}).
		Where("tenant_id = ? AND id = ? AND end_date IS NULL", tenantId, id).
		Update("end_date", endDate).Error
}

// ReinstatePartyMember clears end_date and vacate_date when a member
// previously removed or vacated reappears in the feed.
func ReinstatePartyMember(ctx context.Context, tx *gorm.DB, tenantId string, id int) error {
	return tx.WithContext(ctx).Model(&PartyMember{}).
		Where("tenant_id = ? AND id = ?", tenantId, id).
		Updates(map[string]interface{}{
			"end_date":    nil,
			"vacate_date": nil,
		}).Error
}

func FindMemberByPersonId(members []*PartyMember, personId int) *PartyMember {
	for _, m := range members {
		if m.PersonId == personId {
			return m
		}
	}
	return nil
}
