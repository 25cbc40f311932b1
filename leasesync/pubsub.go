package leasesync

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/leasing_backend/config"
	"bitbucket.org/mmdatafocus/leasing_backend/workflow"
)

func syncTopicName() string {
	if v := strings.TrimSpace(os.Getenv("LEASESYNC_TOPIC")); v != "" {
		return v
	}
	return "leasesync-trigger"
}

// PublishSyncRun enqueues one property run on the trigger topic.
func PublishSyncRun(payload SyncPubSubPayload) error {
	return config.PublishIntegrationWorkflow(syncTopicName(), payload)
}

// pushEnvelope is the Pub/Sub push wrapper; Data is base64 decoded by the
// JSON codec of the inner Message type.
type pushEnvelope struct {
	Message struct {
		Data      []byte `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// renewalStartedEvent is published by the renewal workflow when a cycle
// begins; the pending frozen entry gets re-evaluated against it.
type renewalStartedEvent struct {
	TenantId          string `json:"tenant_id"`
	Provider          string `json:"provider"`
	PrimaryExternalId string `json:"primary_external_id"`
}

// HandlePushMessage decodes and dispatches one push delivery. Errors from
// processing are returned so the handler can decide between ack and retry;
// malformed payloads return nil because redelivery cannot fix them.
func HandlePushMessage(ctx context.Context, body []byte) error {
	var envelope pushEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}
	data := envelope.Message.Data
	if len(data) == 0 {
		return nil
	}

	var payload SyncPubSubPayload
	if err := json.Unmarshal(data, &payload); err == nil && payload.RunId > 0 {
		return processWithIdempotency(ctx, payload.TenantId, "leasesync.ProcessSyncRun", envelope.Message.MessageID, func() error {
			return ProcessSyncRun(ctx, payload)
		})
	}

	var renewal renewalStartedEvent
	if err := json.Unmarshal(data, &renewal); err == nil && renewal.PrimaryExternalId != "" {
		return processWithIdempotency(ctx, renewal.TenantId, "leasesync.ReprocessRenewalEntry", envelope.Message.MessageID, func() error {
			return ReprocessRenewalEntry(ctx, renewal.TenantId, renewal.Provider, renewal.PrimaryExternalId)
		})
	}
	return nil
}

// processWithIdempotency wraps a handler in a durable idempotency key so a
// redelivered message is processed at most once.
func processWithIdempotency(ctx context.Context, tenantId string, handlerName string, messageId string, fn func() error) error {
	if messageId == "" {
		return fn()
	}
	db := config.GetDB().WithContext(ctx)
	skip, err := workflow.BeginIdempotency(db, tenantId, handlerName, messageId)
	if err != nil {
		return err
	}
	if skip {
		return nil
	}
	if err := fn(); err != nil {
		_ = workflow.MarkIdempotencyFailed(db, tenantId, handlerName, messageId, err)
		return err
	}
	return workflow.MarkIdempotencySucceeded(db, tenantId, handlerName, messageId)
}
