package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/leasing_backend/config"
	"bitbucket.org/mmdatafocus/leasing_backend/utils"
	"gorm.io/gorm"
)

type Property struct {
	ID         int       `gorm:"primary_key" json:"id"`
	TenantId   string    `gorm:"index;size:64;not null" json:"tenant_id"`
	ExternalId string    `gorm:"index;size:128;not null" json:"external_id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	Timezone   string    `gorm:"size:64" json:"timezone"`
	OwnerId    int       `json:"owner_id"`
	TeamId     int       `json:"team_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Inventory is one rentable unit. Its external id is
// "<property>-<building>-<unit>" when a building id is present, else just the
// unit id; the same convention the feed uses.
type Inventory struct {
	ID         int       `gorm:"primary_key" json:"id"`
	TenantId   string    `gorm:"index;size:64;not null" json:"tenant_id"`
	PropertyId int       `gorm:"index;not null" json:"property_id"`
	ExternalId string    `gorm:"index;size:255;not null" json:"external_id"`
	UnitName   string    `gorm:"size:100" json:"unit_name"`
	BuildingId string    `gorm:"size:100" json:"building_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BuildInventoryExternalId joins the non-empty parts with '-'.
func BuildInventoryExternalId(propertyExternalId, buildingId, unitId string) string {
	if strings.TrimSpace(buildingId) == "" {
		return unitId
	}
	return strings.Join([]string{propertyExternalId, buildingId, unitId}, "-")
}

func GetPropertyByExternalId(ctx context.Context, tenantId string, externalId string) (*Property, error) {
	db := config.GetDB()

	// hot path during imports, so cached per property
	cached, err := utils.RetrieveRedisList[Property](tenantId + ":" + externalId)
	if err == nil && len(cached) == 1 {
		return cached[0], nil
	}

	var property Property
	err = db.WithContext(ctx).
		Where("tenant_id = ? AND external_id = ?", tenantId, externalId).
		First(&property).Error
	if err != nil {
		return nil, err
	}
	_ = utils.StoreRedisList[Property]([]*Property{&property}, tenantId+":"+externalId)
	return &property, nil
}

func GetInventoryByExternalId(ctx context.Context, tx *gorm.DB, tenantId string, externalId string) (*Inventory, error) {
	if externalId == "" {
		return nil, nil
	}
	var inventory Inventory
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND external_id = ?", tenantId, externalId).
		First(&inventory).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inventory, nil
}

func CreateProperty(ctx context.Context, property *Property) error {
	if property.TenantId == "" {
		return errors.New("tenant id is required")
	}
	db := config.GetDB()
	return db.WithContext(ctx).Create(property).Error
}

func CreateInventory(ctx context.Context, inventory *Inventory) error {
	if inventory.TenantId == "" {
		return errors.New("tenant id is required")
	}
	db := config.GetDB()
	return db.WithContext(ctx).Create(inventory).Error
}
