package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/leasing_backend/config"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// ExternalIdentityLink ties one external member id to exactly one internal
// party member or child record. At most one link per external id is active
// (end_date null) at a time, and at most one active link per party carries
// is_primary.
type ExternalIdentityLink struct {
	ID                 int        `gorm:"primary_key" json:"id"`
	TenantId           string     `gorm:"index;size:64;not null" json:"tenant_id"`
	PartyId            int        `gorm:"index;not null" json:"party_id"`
	PropertyId         int        `gorm:"index;not null" json:"property_id"`
	PartyMemberId      *int       `gorm:"index" json:"party_member_id"`
	ChildId            *int       `gorm:"index" json:"child_id"`
	ExternalId         string     `gorm:"index;size:128;not null" json:"external_id"`
	ExternalProspectId string     `gorm:"size:128" json:"external_prospect_id"`
	ExternalRoommateId *string    `gorm:"index;size:128" json:"external_roommate_id"`
	IsPrimary          bool       `gorm:"default:false" json:"is_primary"`
	StartDate          time.Time  `gorm:"not null" json:"start_date"`
	EndDate            *time.Time `gorm:"index" json:"end_date"`
	Metadata           []byte     `gorm:"type:json" json:"metadata"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// EffectiveExternalId is the external member id the link is keyed by:
// external_roommate_id for non-primary members, external_id otherwise.
func (l *ExternalIdentityLink) EffectiveExternalId() string {
	if l.ExternalRoommateId != nil {
		return *l.ExternalRoommateId
	}
	return l.ExternalId
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

func CreateExternalIdentityLink(ctx context.Context, tx *gorm.DB, link *ExternalIdentityLink) error {
	if link.TenantId == "" {
		return errors.New("tenant id is required")
	}
	if link.PartyMemberId == nil && link.ChildId == nil {
		return errors.New("link requires a party member or a child")
	}
	if link.StartDate.IsZero() {
		link.StartDate = time.Now().UTC()
	}
	// The active-link invariant is enforced in code, not by a DB constraint:
	// historical rows share the same external id with end_date set. Uniqueness
	// is on the member's effective external id: the primary is keyed by
	// external_id, every other member by external_roommate_id, so the members
	// of one household never collide with each other.
	query := tx.WithContext(ctx).Model(&ExternalIdentityLink{}).
		Where("tenant_id = ? AND end_date IS NULL", link.TenantId)
	if link.ExternalRoommateId != nil {
		query = query.Where("external_roommate_id = ?", *link.ExternalRoommateId)
	} else {
		query = query.Where("external_id = ? AND external_roommate_id IS NULL", link.ExternalId)
	}
	var active int64
	if err := query.Count(&active).Error; err != nil {
		return err
	}
	if active > 0 {
		return errors.New("an active link already exists for this external id")
	}
	if link.IsPrimary {
		if err := unmarkPrimaryLinks(ctx, tx, link.TenantId, link.PartyId); err != nil {
			return err
		}
	}
	return tx.WithContext(ctx).Create(link).Error
}

func unmarkPrimaryLinks(ctx context.Context, tx *gorm.DB, tenantId string, partyId int) error {
	return tx.WithContext(ctx).Model(&ExternalIdentityLink{}).
		Where("tenant_id = ? AND party_id = ? AND end_date IS NULL AND is_primary = ?", tenantId, partyId, true).
		Update("is_primary", false).Error
}

// SetLinkPrimary promotes one active link to primary, demoting any other
// active primary link of the same party first.
func SetLinkPrimary(ctx context.Context, tx *gorm.DB, link *ExternalIdentityLink) error {
	if err := unmarkPrimaryLinks(ctx, tx, link.TenantId, link.PartyId); err != nil {
		return err
	}
	return tx.WithContext(ctx).Model(&ExternalIdentityLink{}).
		Where("id = ?", link.ID).
		Update("is_primary", true).Error
}

func ArchiveExternalIdentityLink(ctx context.Context, tx *gorm.DB, id int, endDate time.Time) error {
	return tx.WithContext(ctx).Model(&ExternalIdentityLink{}).
		Where("id = ? AND end_date IS NULL", id).
		Update("end_date", endDate).Error
}

// ReviveExternalIdentityLink clears end_date when a previously removed member
// reappears in the feed under the same external id.
func ReviveExternalIdentityLink(ctx context.Context, tx *gorm.DB, id int) error {
	return tx.WithContext(ctx).Model(&ExternalIdentityLink{}).
		Where("id = ?", id).
		Update("end_date", nil).Error
}

func UpdateExternalIdentityLink(ctx context.Context, tx *gorm.DB, id int, updates map[string]interface{}) error {
	return tx.WithContext(ctx).Model(&ExternalIdentityLink{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func GetActiveLinksByParty(ctx context.Context, tx *gorm.DB, tenantId string, partyId int) ([]*ExternalIdentityLink, error) {
	var links []*ExternalIdentityLink
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND party_id = ? AND end_date IS NULL", tenantId, partyId).
		Order("id asc").
		Find(&links).Error
	return links, err
}

// GetLinksByExternalId returns all links (active first) recorded for one
// external member id, including archived history rows.
func GetLinksByExternalId(ctx context.Context, tx *gorm.DB, tenantId string, externalId string) ([]*ExternalIdentityLink, error) {
	var links []*ExternalIdentityLink
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND (external_id = ? OR external_roommate_id = ?)", tenantId, externalId, externalId).
		Order("end_date IS NULL desc, id desc").
		Find(&links).Error
	return links, err
}

func GetActiveLinkForMember(ctx context.Context, tx *gorm.DB, tenantId string, partyMemberId int) (*ExternalIdentityLink, error) {
	var link ExternalIdentityLink
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND party_member_id = ? AND end_date IS NULL", tenantId, partyMemberId).
		First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

// GetPartyIdsByExternalIds resolves candidate parties by primary external id
// or roommate id, for the workflow lookup at the top of entry processing.
func GetPartyIdsByExternalIds(ctx context.Context, tenantId string, externalIds []string) ([]int, error) {
	if len(externalIds) == 0 {
		return nil, nil
	}
	db := config.GetDB()
	var partyIds []int
	err := db.WithContext(ctx).Model(&ExternalIdentityLink{}).
		Distinct("party_id").
		Where("tenant_id = ? AND (external_id IN ? OR external_roommate_id IN ?)", tenantId, externalIds, externalIds).
		Pluck("party_id", &partyIds).Error
	return partyIds, err
}
