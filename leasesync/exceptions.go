package leasesync

import (
	"context"
	"encoding/json"

	"bitbucket.org/mmdatafocus/leasing_backend/models"
	"gorm.io/gorm"
)

// fileException records one suppressed or conflicting change. Payload keys are
// sorted by the JSON encoder, so identical changes dedupe against an ignored
// prior report.
func fileException(ctx context.Context, tx *gorm.DB, ec *entryContext, externalId string, rule models.ExceptionRule, payload map[string]interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	report := &models.ExceptionReport{
		TenantId:           ec.tenantId,
		PropertyExternalId: ec.entry.PropertyExternalId,
		ExternalId:         externalId,
		RuleId:             rule,
		ReportData:         data,
		ImportEntryId:      ec.entry.ID,
	}
	created, err := models.CreateExceptionReport(ctx, tx, report)
	if err != nil {
		return err
	}
	if created != nil {
		ec.entry.WasAddedToExceptionReport = true
		return models.PublishActivity(ctx, tx, ec.tenantId, ec.entry.PropertyExternalId,
			created.ID, models.ReferenceTypeExceptionReport, created, nil, models.PubSubMessageActionCreate)
	}
	return nil
}

// fieldChangePayload is the common shape for before/after report data.
func fieldChangePayload(field string, oldValue interface{}, newValue interface{}) map[string]interface{} {
	return map[string]interface{}{
		"field": field,
		"old":   oldValue,
		"new":   newValue,
	}
}

func memberPayload(m RawMember) map[string]interface{} {
	return map[string]interface{}{
		"externalId": m.Id,
		"fullName":   BuildFullName(m),
		"type":       m.Type,
		"email":      MemberEmail(m),
		"phone":      MemberPhone(m),
	}
}
