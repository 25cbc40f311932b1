package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/leasing_backend/config"
	"gorm.io/gorm"
)

const (
	RetrievalModeAPI  = "api"
	RetrievalModeFeed = "feed"
)

// ImportConnection describes one external-source integration for a tenant:
// which provider, how snapshots are retrieved and with what credentials.
type ImportConnection struct {
	ID                uint       `gorm:"primary_key" json:"id"`
	TenantId          string     `gorm:"index;not null" json:"tenant_id"`
	Provider          string     `gorm:"index;size:50;not null" json:"provider"`
	Status            string     `gorm:"size:20;not null" json:"status"`
	RetrievalMode     string     `gorm:"size:10;not null" json:"retrieval_mode"`
	AuthType          string     `gorm:"size:20" json:"auth_type"`
	AuthSecretRef     string     `gorm:"type:text" json:"auth_secret_ref"`
	SettingsJSON      []byte     `gorm:"type:json" json:"settings"`
	LastSyncAt        *time.Time `json:"last_sync_at"`
	LastSuccessSyncAt *time.Time `json:"last_success_sync_at"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SyncRun records one import invocation for one property.
type SyncRun struct {
	ID                 uint       `gorm:"primary_key" json:"id"`
	TenantId           string     `gorm:"index;not null" json:"tenant_id"`
	ConnectionId       uint       `gorm:"index;not null" json:"connection_id"`
	Provider           string     `gorm:"index;size:50;not null" json:"provider"`
	PropertyExternalId string     `gorm:"index;size:128;not null" json:"property_external_id"`
	Status             string     `gorm:"size:20;not null" json:"status"`
	TriggeredBy        string     `gorm:"size:20" json:"triggered_by"`
	ForceSync          bool       `gorm:"default:false" json:"force_sync"`
	EntriesFetched     int        `json:"entries_fetched"`
	EntriesProcessed   int        `json:"entries_processed"`
	EntriesSkipped     int        `json:"entries_skipped"`
	EntriesFailed      int        `json:"entries_failed"`
	ErrorText          *string    `gorm:"type:text" json:"error_text"`
	ParentRunId        *uint      `gorm:"index" json:"parent_run_id"`
	StartedAt          *time.Time `json:"started_at"`
	FinishedAt         *time.Time `json:"finished_at"`
	DurationMs         int64      `json:"duration_ms"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SyncError captures one per-entry failure inside a run, for the history UI.
type SyncError struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	SyncRunId   uint      `gorm:"index;not null" json:"sync_run_id"`
	TenantId    string    `gorm:"index;not null" json:"tenant_id"`
	ExternalId  string    `gorm:"size:128" json:"external_id"`
	ErrorCode   string    `gorm:"size:64" json:"error_code"`
	Message     string    `gorm:"type:text" json:"message"`
	PayloadJSON []byte    `gorm:"type:json" json:"payload"`
	Retryable   bool      `gorm:"default:false" json:"retryable"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func GetImportConnection(ctx context.Context, tenantId string, provider string) (*ImportConnection, error) {
	db := config.GetDB()
	var conn ImportConnection
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND provider = ? AND status = ?", tenantId, provider, ConnectionStatusConnected).
		First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func GetImportConnectionById(ctx context.Context, tenantId string, id uint) (*ImportConnection, error) {
	db := config.GetDB()
	var conn ImportConnection
	err := db.WithContext(ctx).
		Where("tenant_id = ?", tenantId).
		First(&conn, id).Error
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func CreateSyncRun(ctx context.Context, run *SyncRun) error {
	if run.TenantId == "" {
		return errors.New("tenant id is required")
	}
	if run.Status == "" {
		run.Status = SyncRunStatusQueued
	}
	db := config.GetDB()
	return db.WithContext(ctx).Create(run).Error
}

func GetSyncRun(ctx context.Context, tenantId string, id uint) (*SyncRun, error) {
	db := config.GetDB()
	var run SyncRun
	err := db.WithContext(ctx).
		Where("tenant_id = ?", tenantId).
		First(&run, id).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func UpdateSyncRun(ctx context.Context, id uint, updates map[string]interface{}) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&SyncRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func ListSyncRuns(ctx context.Context, tenantId string, propertyExternalId string, limit int, offset int) ([]*SyncRun, error) {
	db := config.GetDB()
	query := db.WithContext(ctx).Where("tenant_id = ?", tenantId)
	if propertyExternalId != "" {
		query = query.Where("property_external_id = ?", propertyExternalId)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []*SyncRun
	err := query.Order("id desc").Limit(limit).Offset(offset).Find(&runs).Error
	return runs, err
}

func CreateSyncError(ctx context.Context, syncErr *SyncError) error {
	db := config.GetDB()
	return db.WithContext(ctx).Create(syncErr).Error
}
