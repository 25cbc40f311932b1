package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/leasing_backend/config"
	"bitbucket.org/mmdatafocus/leasing_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityEventRecord is the transactional-outbox row for activity events:
// written inside the caller's DB transaction, published to Pub/Sub after
// commit by the outbox dispatcher.
type ActivityEventRecord struct {
	ID                 int                   `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	TenantId           string                `gorm:"size:64;not null;index" json:"tenant_id"`
	EventDateTime      time.Time             `gorm:"index;not null" json:"event_date_time"`
	ReferenceId        int                   `json:"reference_id"`
	ReferenceType      ActivityReferenceType `gorm:"size:40" json:"reference_type"`
	Action             PubSubMessageAction   `gorm:"size:10" json:"action"`
	OldObj             []byte                `gorm:"type:blob" json:"old_obj"`
	NewObj             []byte                `gorm:"type:blob" json:"new_obj"`
	PropertyExternalId string                `gorm:"size:128;index" json:"property_external_id"`
	// Outbox metadata (publish happens after commit via dispatcher).
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// PublishActivity writes the event record inside the caller's DB transaction
// but does NOT publish to Pub/Sub; the dispatcher picks it up after commit.
func PublishActivity(ctx context.Context, tx *gorm.DB, tenantId string, propertyExternalId string, refId int, refType ActivityReferenceType, obj interface{}, oldObj interface{}, action PubSubMessageAction) error {

	var objInByte []byte
	var oldObjInByte []byte
	var err error

	if action == PubSubMessageActionCreate || action == PubSubMessageActionUpdate {
		objInByte, err = json.Marshal(obj)
		if err != nil {
			return err
		}
	}
	if action == PubSubMessageActionUpdate || action == PubSubMessageActionDelete {
		oldObjInByte, err = json.Marshal(oldObj)
		if err != nil {
			return err
		}
	}

	record := ActivityEventRecord{
		TenantId:           tenantId,
		EventDateTime:      time.Now().UTC(),
		ReferenceId:        refId,
		ReferenceType:      refType,
		Action:             action,
		NewObj:             objInByte,
		OldObj:             oldObjInByte,
		PropertyExternalId: propertyExternalId,
		PublishStatus:      OutboxPublishStatusPending,
		CorrelationId:      correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func ConvertToPubSubMessage(record ActivityEventRecord) config.PubSubMessage {
	return config.PubSubMessage{
		ID:                 record.ID,
		TenantId:           record.TenantId,
		EventDateTime:      record.EventDateTime,
		ReferenceId:        record.ReferenceId,
		ReferenceType:      string(record.ReferenceType),
		Action:             string(record.Action),
		OldObj:             record.OldObj,
		NewObj:             record.NewObj,
		PropertyExternalId: record.PropertyExternalId,
		CorrelationId:      record.CorrelationId,
	}
}
