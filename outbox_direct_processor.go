package main

import (
	"context"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/leasing_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OutboxDirectDrain drains pending activity event rows without Pub/Sub.
// This is intended for local/dev environments where Pub/Sub is not configured:
// rows are logged and marked SENT so they do not accumulate forever.
type OutboxDirectDrain struct {
	DB        *gorm.DB
	Logger    *logrus.Logger
	WorkerID  string
	BatchSize int
	Interval  time.Duration
	LockTTL   time.Duration
}

func NewOutboxDirectDrain(db *gorm.DB, logger *logrus.Logger) *OutboxDirectDrain {
	return &OutboxDirectDrain{
		DB:        db,
		Logger:    logger,
		WorkerID:  "direct-" + time.Now().Format("20060102-150405.000"),
		BatchSize: 50,
		Interval:  2 * time.Second,
		LockTTL:   30 * time.Second,
	}
}

// shouldRunDirectOutboxDrain: only when explicitly enabled, or when Pub/Sub is
// not configured at all. With Pub/Sub configured the dispatcher owns delivery.
func shouldRunDirectOutboxDrain() bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv("OUTBOX_DIRECT_DRAIN")))
	if val == "true" {
		return true
	}
	if val == "false" {
		return false
	}
	return os.Getenv("GO_ENV") == ""
}

func (p *OutboxDirectDrain) Run(ctx context.Context) {
	if p == nil || p.DB == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.drainOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.Interval):
		}
	}
}

func (p *OutboxDirectDrain) drainOnce(ctx context.Context) {
	now := time.Now().UTC()
	staleBefore := now.Add(-p.LockTTL)

	var claimed []models.ActivityEventRecord
	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("publish_status IN ?", []string{models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed}).
			Where("(locked_at IS NULL OR locked_at <= ?)", staleBefore).
			Order("id ASC").
			Limit(p.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		for i := range claimed {
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &p.WorkerID
			if err := tx.Model(&models.ActivityEventRecord{}).
				Where("id = ?", claimed[i].ID).
				Updates(map[string]interface{}{
					"locked_at": claimed[i].LockedAt,
					"locked_by": claimed[i].LockedBy,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || len(claimed) == 0 {
		return
	}

	for _, rec := range claimed {
		if p.Logger != nil {
			p.Logger.WithFields(logrus.Fields{
				"field":          "OutboxDirectDrain",
				"tenant_id":      rec.TenantId,
				"reference_type": rec.ReferenceType,
				"reference_id":   rec.ReferenceId,
				"action":         rec.Action,
				"record_id":      rec.ID,
			}).Info("activity event drained without publish")
		}
		_ = p.DB.WithContext(ctx).Model(&models.ActivityEventRecord{}).
			Where("id = ?", rec.ID).
			Updates(map[string]interface{}{
				"publish_status": models.OutboxPublishStatusSent,
				"published_at":   &now,
				"locked_at":      nil,
				"locked_by":      nil,
			}).Error
	}
}
