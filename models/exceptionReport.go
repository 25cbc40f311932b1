package models

import (
	"bytes"
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/leasing_backend/config"
	"gorm.io/gorm"
)

// ExceptionReport is a durable record of a change suppressed during a renewal
// cycle (or a conflict needing human review). Reports are deduplicated: a new
// report is dropped when the latest one with the same external id, rule and
// payload is already marked ignored.
type ExceptionReport struct {
	ID                 int           `gorm:"primary_key" json:"id"`
	TenantId           string        `gorm:"index;size:64;not null" json:"tenant_id"`
	PropertyExternalId string        `gorm:"index;size:128" json:"property_external_id"`
	ExternalId         string        `gorm:"index;size:128;not null" json:"external_id"`
	RuleId             ExceptionRule `gorm:"index;size:64;not null" json:"rule_id"`
	ReportData         []byte        `gorm:"type:json" json:"report_data"`
	Ignore             bool          `gorm:"default:false;index" json:"ignore"`
	IgnoreReason       *string       `gorm:"size:255" json:"ignore_reason"`
	ImportEntryId      int           `gorm:"index" json:"import_entry_id"`
	CreatedAt          time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// CreateExceptionReport persists a report unless the most recent report with
// identical external id, rule and payload is already ignored. Returns the
// created report, or nil when suppressed by dedup.
func CreateExceptionReport(ctx context.Context, tx *gorm.DB, report *ExceptionReport) (*ExceptionReport, error) {
	if report.TenantId == "" {
		return nil, errors.New("tenant id is required")
	}
	if report.RuleId == "" {
		return nil, errors.New("rule id is required")
	}

	var last ExceptionReport
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND external_id = ? AND rule_id = ?", report.TenantId, report.ExternalId, report.RuleId).
		Order("id desc").
		First(&last).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil && last.Ignore && bytes.Equal(last.ReportData, report.ReportData) {
		return nil, nil
	}

	if err := tx.WithContext(ctx).Create(report).Error; err != nil {
		return nil, err
	}
	if report.ImportEntryId > 0 {
		if err := MarkImportEntryAddedToExceptionReport(ctx, tx, report.ImportEntryId); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// MarkLastExceptionReportAsIgnored flags the most recent unresolved report for
// (externalId, ruleId) when the suppressed change is independently confirmed.
func MarkLastExceptionReportAsIgnored(ctx context.Context, tx *gorm.DB, tenantId string, externalId string, ruleId ExceptionRule, reason string) error {
	var last ExceptionReport
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND external_id = ? AND rule_id = ? AND `ignore` = ?", tenantId, externalId, ruleId, false).
		Order("id desc").
		First(&last).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return tx.WithContext(ctx).Model(&ExceptionReport{}).
		Where("id = ?", last.ID).
		Updates(map[string]interface{}{
			"ignore":        true,
			"ignore_reason": reason,
		}).Error
}

// IgnoreExceptionReport is the manual path used by the review endpoints.
func IgnoreExceptionReport(ctx context.Context, tenantId string, id int, reason string) error {
	db := config.GetDB()
	result := db.WithContext(ctx).Model(&ExceptionReport{}).
		Where("tenant_id = ? AND id = ? AND `ignore` = ?", tenantId, id, false).
		Updates(map[string]interface{}{
			"ignore":        true,
			"ignore_reason": reason,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("exception report not found or already ignored")
	}
	return nil
}

func ListExceptionReports(ctx context.Context, tenantId string, propertyExternalId string, unresolvedOnly bool, limit int, offset int) ([]*ExceptionReport, error) {
	db := config.GetDB()
	query := db.WithContext(ctx).
		Where("tenant_id = ?", tenantId)
	if propertyExternalId != "" {
		query = query.Where("property_external_id = ?", propertyExternalId)
	}
	if unresolvedOnly {
		query = query.Where("`ignore` = ?", false)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var reports []*ExceptionReport
	err := query.Order("id desc").Limit(limit).Offset(offset).Find(&reports).Error
	return reports, err
}
