package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Person struct {
	ID         int       `gorm:"primary_key" json:"id"`
	TenantId   string    `gorm:"index;size:64;not null" json:"tenant_id"`
	FullName   string    `gorm:"size:255;not null" json:"full_name"`
	PreferredName string `gorm:"size:255" json:"preferred_name"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	ContactInfos []ContactInfo `gorm:"foreignKey:PersonId" json:"contact_infos,omitempty"`
}

// ContactInfo is one email or phone of a person. Exactly one primary per type.
type ContactInfo struct {
	ID        int             `gorm:"primary_key" json:"id"`
	TenantId  string          `gorm:"index;size:64;not null" json:"tenant_id"`
	PersonId  int             `gorm:"index;not null" json:"person_id"`
	Type      ContactInfoType `gorm:"size:10;not null;index" json:"type"`
	Value     string          `gorm:"size:255;not null;index" json:"value"`
	Extension string          `gorm:"size:20" json:"extension"`
	IsPrimary bool            `gorm:"default:false" json:"is_primary"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func CreatePerson(ctx context.Context, tx *gorm.DB, person *Person) error {
	if person.TenantId == "" {
		return errors.New("tenant id is required")
	}
	if person.FullName == "" {
		return errors.New("full name is required")
	}
	return tx.WithContext(ctx).Create(person).Error
}

func GetPerson(ctx context.Context, tx *gorm.DB, tenantId string, id int) (*Person, error) {
	var person Person
	err := tx.WithContext(ctx).
		Preload("ContactInfos").
		Where("tenant_id = ?", tenantId).
		First(&person, id).Error
	if err != nil {
		return nil, err
	}
	return &person, nil
}

func UpdatePersonFullName(ctx context.Context, tx *gorm.DB, tenantId string, id int, fullName string) error {
	return tx.WithContext(ctx).Model(&Person{}).
		Where("tenant_id = ? AND id = ?", tenantId, id).
		Update("full_name", fullName).Error
}

// AddContactInfo appends a contact entry. When markPrimary is set the current
// primary of the same type is demoted first.
func AddContactInfo(ctx context.Context, tx *gorm.DB, info *ContactInfo, markPrimary bool) error {
	if info.TenantId == "" {
		return errors.New("tenant id is required")
	}
	if markPrimary {
		if err := unmarkPrimaryContactInfo(ctx, tx, info.TenantId, info.PersonId, info.Type); err != nil {
			return err
		}
		info.IsPrimary = true
	}
	return tx.WithContext(ctx).Create(info).Error
}

func unmarkPrimaryContactInfo(ctx context.Context, tx *gorm.DB, tenantId string, personId int, infoType ContactInfoType) error {
	return tx.WithContext(ctx).Model(&ContactInfo{}).
		Where("tenant_id = ? AND person_id = ? AND type = ? AND is_primary = ?", tenantId, personId, infoType, true).
		Update("is_primary", false).Error
}

// MarkContactInfoPrimary promotes an existing entry, demoting the current
// primary of the same type.
func MarkContactInfoPrimary(ctx context.Context, tx *gorm.DB, info *ContactInfo) error {
	if err := unmarkPrimaryContactInfo(ctx, tx, info.TenantId, info.PersonId, info.Type); err != nil {
		return err
	}
	return tx.WithContext(ctx).Model(&ContactInfo{}).
		Where("id = ?", info.ID).
		Update("is_primary", true).Error
}

func GetContactInfosByPerson(ctx context.Context, tx *gorm.DB, tenantId string, personId int) ([]*ContactInfo, error) {
	var infos []*ContactInfo
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND person_id = ?", tenantId, personId).
		Order("id asc").
		Find(&infos).Error
	return infos, err
}

// FindPersonIdsByContactValue looks up identity collisions by an exact email
// or formatted phone value.
func FindPersonIdsByContactValue(ctx context.Context, tx *gorm.DB, tenantId string, infoType ContactInfoType, value string, excludePersonId int) ([]int, error) {
	if value == "" {
		return nil, nil
	}
	var personIds []int
	query := tx.WithContext(ctx).Model(&ContactInfo{}).
		Distinct("person_id").
		Where("tenant_id = ? AND type = ? AND value = ?", tenantId, infoType, value)
	if excludePersonId > 0 {
		query = query.Where("person_id <> ?", excludePersonId)
	}
	err := query.Pluck("person_id", &personIds).Error
	return personIds, err
}

// FindPersonsByIds loads persons with contact infos preloaded.
func FindPersonsByIds(ctx context.Context, tx *gorm.DB, tenantId string, ids []int) ([]*Person, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var persons []*Person
	err := tx.WithContext(ctx).
		Preload("ContactInfos").
		Where("tenant_id = ? AND id IN ?", tenantId, ids).
		Find(&persons).Error
	return persons, err
}

// FindPersonsByFullNames returns persons whose stored full name matches any of
// the given values exactly. Fuzzy comparison happens in the matching engine;
// the candidate set here is deliberately broad (raw and cleaned variants).
func FindPersonsByFullNames(ctx context.Context, tx *gorm.DB, tenantId string, names []string, excludePersonId int) ([]*Person, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var persons []*Person
	query := tx.WithContext(ctx).
		Preload("ContactInfos").
		Where("tenant_id = ? AND full_name IN ?", tenantId, names)
	if excludePersonId > 0 {
		query = query.Where("id <> ?", excludePersonId)
	}
	err := query.Find(&persons).Error
	return persons, err
}

var ErrContactInfoInUse = errors.New("contact info value belongs to another person")
