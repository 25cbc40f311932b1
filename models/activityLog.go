package models

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/leasing_backend/config"
	"gorm.io/gorm"
)

// ActivityLog records member add/remove/update and lease state changes for
// the party timeline. Import-originated entries carry user_name "import".
type ActivityLog struct {
	ID            int       `gorm:"primary_key" json:"id"`
	TenantId      string    `gorm:"index;not null" json:"tenant_id"`
	ActionType    string    `gorm:"size:20;not null" json:"action_type"`
	Before        string    `gorm:"type:text" json:"before"`
	After         string    `gorm:"type:text" json:"after"`
	Description   string    `gorm:"type:text;not null" json:"description"`
	ReferenceID   int       `gorm:"index" json:"reference_id"`
	ReferenceType string    `gorm:"size:255" json:"reference_type"`
	PartyId       int       `gorm:"index" json:"party_id"`
	UserName      string    `gorm:"size:100" json:"user_name"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

const activityUserImport = "import"

func createActivityLog(ctx context.Context, tx *gorm.DB,
	tenantId string,
	actionType string,
	partyId int,
	referenceId int,
	referenceType ActivityReferenceType,
	before interface{},
	after interface{},
	description string) error {

	b, _ := json.Marshal(before)
	a, _ := json.Marshal(after)

	log := ActivityLog{
		TenantId:      tenantId,
		ActionType:    actionType,
		Before:        string(b),
		After:         string(a),
		Description:   description,
		ReferenceID:   referenceId,
		ReferenceType: string(referenceType),
		PartyId:       partyId,
		UserName:      activityUserImport,
	}
	return tx.WithContext(ctx).Create(&log).Error
}

// LogMemberActivity writes the timeline row and enqueues the outbox event in
// the same transaction. Fire-and-forget from the reconcilers' point of view;
// a logging failure still fails the entry so nothing is half-recorded.
func LogMemberActivity(ctx context.Context, tx *gorm.DB, tenantId string, propertyExternalId string, actionType string, partyId int, refId int, refType ActivityReferenceType, before interface{}, after interface{}, description string) error {
	if err := createActivityLog(ctx, tx, tenantId, actionType, partyId, refId, refType, before, after, description); err != nil {
		return err
	}
	action := PubSubMessageActionUpdate
	switch actionType {
	case "add":
		action = PubSubMessageActionCreate
	case "remove":
		action = PubSubMessageActionDelete
	}
	return PublishActivity(ctx, tx, tenantId, propertyExternalId, refId, refType, after, before, action)
}

func GetActivityLogsByParty(ctx context.Context, tenantId string, partyId int, limit int) ([]*ActivityLog, error) {
	db := config.GetDB()
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var logs []*ActivityLog
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND party_id = ?", tenantId, partyId).
		Order("id desc").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

func describeMemberChange(verb string, fullName string, memberType MemberType) string {
	return fmt.Sprintf("%s %s (%s) via import.", verb, fullName, memberType)
}
