package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/leasing_backend/config"
	"gorm.io/gorm"
)

// ImportEntry is one raw resident/lease snapshot received from the external
// source. Entries are append-only; processing only ever mutates status fields
// and last_sync_date.
type ImportEntry struct {
	ID                        int               `gorm:"primary_key" json:"id"`
	TenantId                  string            `gorm:"index;size:64;not null" json:"tenant_id"`
	PropertyExternalId        string            `gorm:"index;size:128;not null" json:"property_external_id"`
	PrimaryExternalId         string            `gorm:"index;size:128;not null" json:"primary_external_id"`
	RawData                   []byte            `gorm:"type:json" json:"raw_data"`
	Status                    ImportEntryStatus `gorm:"size:20;not null;index" json:"status"`
	SkipReason                *SkipReason       `gorm:"size:64" json:"skip_reason"`
	ProcessingError           *string           `gorm:"type:text" json:"processing_error"`
	WasAddedToExceptionReport bool              `gorm:"default:false" json:"was_added_to_exception_report"`
	LastSyncDate              time.Time         `gorm:"index;not null" json:"last_sync_date"`
	SyncRunId                 uint              `gorm:"index" json:"sync_run_id"`
	CreatedAt                 time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                 time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func SaveImportEntry(ctx context.Context, tx *gorm.DB, entry *ImportEntry) error {
	if entry.TenantId == "" {
		return errors.New("tenant id is required")
	}
	if entry.Status == "" {
		entry.Status = ImportEntryStatusPending
	}
	return tx.WithContext(ctx).Create(entry).Error
}

// SetImportEntryStatus transitions an entry out of PENDING. Entries already in
// a terminal status are left untouched so retried runs cannot clobber results.
func SetImportEntryStatus(ctx context.Context, tx *gorm.DB, id int, status ImportEntryStatus, skipReason *SkipReason, processingError *string) error {
	updates := map[string]interface{}{
		"status": status,
	}
	if skipReason != nil {
		updates["skip_reason"] = *skipReason
	}
	if processingError != nil {
		updates["processing_error"] = *processingError
	}
	result := tx.WithContext(ctx).Model(&ImportEntry{}).
		Where("id = ? AND status = ?", id, ImportEntryStatusPending).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("import entry is not pending")
	}
	return nil
}

// UpdateImportEntryLastSyncDate bumps last_sync_date on an unchanged entry
// without reprocessing it.
func UpdateImportEntryLastSyncDate(ctx context.Context, tx *gorm.DB, id int, syncDate time.Time) error {
	return tx.WithContext(ctx).Model(&ImportEntry{}).
		Where("id = ?", id).
		Update("last_sync_date", syncDate).Error
}

func MarkImportEntryAddedToExceptionReport(ctx context.Context, tx *gorm.DB, id int) error {
	return tx.WithContext(ctx).Model(&ImportEntry{}).
		Where("id = ?", id).
		Update("was_added_to_exception_report", true).Error
}

// GetLastImportedEntries returns, per primary external id, the latest entry
// previously stored for the property. Used by retrieval to detect unchanged
// snapshots.
func GetLastImportedEntries(ctx context.Context, tenantId string, propertyExternalId string) (map[string]*ImportEntry, error) {
	db := config.GetDB()
	var rows []*ImportEntry
	err := db.WithContext(ctx).
		Raw(`SELECT ie.* FROM import_entries ie
			JOIN (
				SELECT primary_external_id, MAX(last_sync_date) AS max_sync
				FROM import_entries
				WHERE tenant_id = ? AND property_external_id = ?
				GROUP BY primary_external_id
			) latest
			ON ie.primary_external_id = latest.primary_external_id
			AND ie.last_sync_date = latest.max_sync
			WHERE ie.tenant_id = ? AND ie.property_external_id = ?`,
			tenantId, propertyExternalId, tenantId, propertyExternalId).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	byExternalId := make(map[string]*ImportEntry, len(rows))
	for _, row := range rows {
		prev, ok := byExternalId[row.PrimaryExternalId]
		if !ok || row.ID > prev.ID {
			byExternalId[row.PrimaryExternalId] = row
		}
	}
	return byExternalId, nil
}

func GetPendingImportEntries(ctx context.Context, tenantId string, propertyExternalId string, syncRunId uint) ([]*ImportEntry, error) {
	db := config.GetDB()
	var rows []*ImportEntry
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND property_external_id = ? AND sync_run_id = ? AND status = ?",
			tenantId, propertyExternalId, syncRunId, ImportEntryStatusPending).
		Order("id asc").
		Find(&rows).Error
	return rows, err
}

// ResetImportEntryForReprocess puts an already handled entry back into
// PENDING so a renewal kickoff can run it again.
func ResetImportEntryForReprocess(ctx context.Context, tx *gorm.DB, id int) error {
	return tx.WithContext(ctx).Model(&ImportEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           ImportEntryStatusPending,
			"skip_reason":      nil,
			"processing_error": nil,
		}).Error
}

// GetRenewalEntryToProcess finds the latest entry for a tenancy whose renewal
// just started, so the frozen changes can be re-evaluated. Entries already
// processed count as long as they were frozen into the exception report.
func GetRenewalEntryToProcess(ctx context.Context, tenantId string, primaryExternalId string) (*ImportEntry, error) {
	db := config.GetDB()
	var row ImportEntry
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND primary_external_id = ? AND (status = ? OR was_added_to_exception_report = ?)",
			tenantId, primaryExternalId, ImportEntryStatusPending, true).
		Order("last_sync_date desc, id desc").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
