package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/leasing_backend/config"
	"gorm.io/gorm"
)

// ImportJobProgress is the per-property resume state of the batch job: the
// last status and the last successful sync date, used to gate same-day
// re-runs and to resume after partial failures.
type ImportJobProgress struct {
	ID                     int        `gorm:"primary_key" json:"id"`
	TenantId               string     `gorm:"uniqueIndex:uniq_job_progress,priority:1;size:64;not null" json:"tenant_id"`
	PropertyExternalId     string     `gorm:"uniqueIndex:uniq_job_progress,priority:2;size:128;not null" json:"property_external_id"`
	Status                 string     `gorm:"size:20;not null" json:"status"`
	LastSuccessfulSyncDate *time.Time `json:"last_successful_sync_date"`
	LastError              *string    `gorm:"type:text" json:"last_error"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetJobProgress(ctx context.Context, tenantId string, propertyExternalId string) (*ImportJobProgress, error) {
	db := config.GetDB()
	var progress ImportJobProgress
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND property_external_id = ?", tenantId, propertyExternalId).
		First(&progress).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &progress, nil
}

// UpsertJobProgress writes the progress row, creating it on first contact
// with a property. Duplicate-key races fall back to an update.
func UpsertJobProgress(ctx context.Context, tenantId string, propertyExternalId string, status string, syncDate *time.Time, lastError *string) error {
	db := config.GetDB()

	existing, err := GetJobProgress(ctx, tenantId, propertyExternalId)
	if err != nil {
		return err
	}
	if existing == nil {
		progress := ImportJobProgress{
			TenantId:               tenantId,
			PropertyExternalId:     propertyExternalId,
			Status:                 status,
			LastSuccessfulSyncDate: syncDate,
			LastError:              lastError,
		}
		err = db.WithContext(ctx).Create(&progress).Error
		if err == nil || !isDuplicateKeyErr(err) {
			return err
		}
		// lost the race, update instead
	}

	updates := map[string]interface{}{
		"status":     status,
		"last_error": lastError,
	}
	if syncDate != nil {
		updates["last_successful_sync_date"] = *syncDate
	}
	return db.WithContext(ctx).Model(&ImportJobProgress{}).
		Where("tenant_id = ? AND property_external_id = ?", tenantId, propertyExternalId).
		Updates(updates).Error
}

// WasSyncedToday reports whether the property already completed a run on the
// given day. Forced runs bypass this gate.
func WasSyncedToday(progress *ImportJobProgress, now time.Time) bool {
	if progress == nil || progress.LastSuccessfulSyncDate == nil {
		return false
	}
	last := progress.LastSuccessfulSyncDate.UTC()
	now = now.UTC()
	return last.Year() == now.Year() && last.YearDay() == now.YearDay()
}
