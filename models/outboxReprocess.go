package models

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/leasing_backend/config"
	"bitbucket.org/mmdatafocus/leasing_backend/utils"
	"gorm.io/gorm"
)

// ReprocessActivityEvents resets FAILED/DEAD outbox rows for a reference back
// to PENDING so the dispatcher picks them up again. Returns the number of rows
// re-queued.
func ReprocessActivityEvents(ctx context.Context, referenceType ActivityReferenceType, referenceId int) (int64, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return 0, errors.New("tenant id is required")
	}

	db := config.GetDB()
	res := db.WithContext(ctx).
		Model(&ActivityEventRecord{}).
		Where("tenant_id = ? AND reference_type = ? AND reference_id = ? AND publish_status IN ?",
			tenantId, referenceType, referenceId,
			[]string{OutboxPublishStatusFailed, OutboxPublishStatusDead}).
		Updates(map[string]interface{}{
			"locked_at":          nil,
			"locked_by":          nil,
			"publish_status":     OutboxPublishStatusPending,
			"next_attempt_at":    nil,
			"last_publish_error": nil,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return res.RowsAffected, nil
}
