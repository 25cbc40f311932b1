package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// AdditionalInfo holds pet, vehicle and child records attached to a party.
// Pets and vehicles are set-diffed against the feed; children double as
// match targets for CHILD-typed feed members.
type AdditionalInfo struct {
	ID        int                `gorm:"primary_key" json:"id"`
	TenantId  string             `gorm:"index;size:64;not null" json:"tenant_id"`
	PartyId   int                `gorm:"index;not null" json:"party_id"`
	Type      AdditionalInfoType `gorm:"size:10;not null;index" json:"type"`
	Info      []byte             `gorm:"type:json" json:"info"`
	EndDate   *time.Time         `gorm:"index" json:"end_date"`
	CreatedAt time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type PetInfo struct {
	Name    string `json:"name"`
	PetType string `json:"type"`
	Breed   string `json:"breed"`
	Weight  string `json:"weight"`
	Sex     string `json:"sex"`
	IsServiceAnimal bool `json:"isServiceAnimal"`
}

type VehicleInfo struct {
	LicensePlate string `json:"licensePlate"`
	State        string `json:"state"`
	Make         string `json:"make"`
	Model        string `json:"model"`
	Color        string `json:"color"`
	Year         string `json:"year"`
}

type ChildInfo struct {
	FullName  string     `json:"fullName"`
	Birthdate *time.Time `json:"birthdate"`
}

func (a *AdditionalInfo) DecodePet() PetInfo {
	var out PetInfo
	if len(a.Info) > 0 {
		_ = json.Unmarshal(a.Info, &out)
	}
	return out
}

func (a *AdditionalInfo) DecodeVehicle() VehicleInfo {
	var out VehicleInfo
	if len(a.Info) > 0 {
		_ = json.Unmarshal(a.Info, &out)
	}
	return out
}

func (a *AdditionalInfo) DecodeChild() ChildInfo {
	var out ChildInfo
	if len(a.Info) > 0 {
		_ = json.Unmarshal(a.Info, &out)
	}
	return out
}

func (a *AdditionalInfo) EncodeInfo(info interface{}) error {
	b, err := json.Marshal(info)
	if err != nil {
		return err
	}
	a.Info = b
	return nil
}

func CreateAdditionalInfo(ctx context.Context, tx *gorm.DB, info *AdditionalInfo) error {
	if info.TenantId == "" {
		return errors.New("tenant id is required")
	}
	if info.PartyId <= 0 {
		return errors.New("party id is required")
	}
	return tx.WithContext(ctx).Create(info).Error
}

func UpdateAdditionalInfo(ctx context.Context, tx *gorm.DB, id int, infoJSON []byte) error {
	return tx.WithContext(ctx).Model(&AdditionalInfo{}).
		Where("id = ?", id).
		Update("info", infoJSON).Error
}

// RemoveAdditionalInfo soft-deletes by setting end_date, mirroring how party
// members are removed.
func RemoveAdditionalInfo(ctx context.Context, tx *gorm.DB, tenantId string, id int, endDate time.Time) error {
	return tx.WithContext(ctx).Model(&AdditionalInfo{}).
		Where("tenant_id = ? AND id = ? AND end_date IS NULL", tenantId, id).
		Update("end_date", endDate).Error
}

func ReinstateAdditionalInfo(ctx context.Context, tx *gorm.DB, tenantId string, id int) error {
	return tx.WithContext(ctx).Model(&AdditionalInfo{}).
		Where("tenant_id = ? AND id = ?", tenantId, id).
		Update("end_date", nil).Error
}

func GetActiveAdditionalInfo(ctx context.Context, tx *gorm.DB, tenantId string, partyId int, infoType AdditionalInfoType) ([]*AdditionalInfo, error) {
	var infos []*AdditionalInfo
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND party_id = ? AND type = ? AND end_date IS NULL", tenantId, partyId, infoType).
		Order("id asc").
		Find(&infos).Error
	return infos, err
}
