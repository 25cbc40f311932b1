package leasesync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"bitbucket.org/mmdatafocus/leasing_backend/config"
	"bitbucket.org/mmdatafocus/leasing_backend/models"
	"bitbucket.org/mmdatafocus/leasing_backend/utils"
	"gorm.io/gorm"
)

const (
	propertyLockTTL     = 10 * time.Minute
	retrievalRetryDelay = 30 * time.Second
)

// isRetrievalTimeout reports whether a retrieval failure is a timeout. Timed
// out fetches get one retry for the whole property before the run fails.
func isRetrievalTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ProcessSyncRun executes one queued import run for one property: fetch the
// snapshot, persist entries, then reconcile each entry in its own
// transaction. Properties are processed under a redis lock so two runs never
// interleave on the same property.
func ProcessSyncRun(ctx context.Context, payload SyncPubSubPayload) error {
	logger := config.GetLogger()

	if payload.RunId == 0 || payload.TenantId == "" {
		return errors.New("invalid payload")
	}
	ctx = utils.SetTenantIdInContext(ctx, payload.TenantId)
	db := config.GetDB()

	run, err := models.GetSyncRun(ctx, payload.TenantId, payload.RunId)
	if err != nil {
		return err
	}
	if run.Status == models.SyncRunStatusSuccess || run.Status == models.SyncRunStatusFailed || run.Status == models.SyncRunStatusPartial {
		return nil
	}

	conn, err := models.GetImportConnectionById(ctx, payload.TenantId, run.ConnectionId)
	if err != nil {
		return err
	}
	if conn.Status != models.ConnectionStatusConnected {
		return failRun(ctx, run, errors.New("import connection is not connected"))
	}
	if !config.ResidentImportEnabledFor(conn.Provider) {
		return failRun(ctx, run, fmt.Errorf("resident import disabled for provider %s", conn.Provider))
	}
	settings := DecodeImportSettings(conn.SettingsJSON)

	property, err := models.GetPropertyByExternalId(ctx, payload.TenantId, run.PropertyExternalId)
	if err != nil {
		return failRun(ctx, run, err)
	}

	lock, err := utils.ObtainPropertyLock(ctx, run.PropertyExternalId, propertyLockTTL, "leasesync", "ProcessSyncRun")
	if err != nil {
		if errors.Is(err, utils.ErrPropertyLocked) {
			// another run holds the property; let the message redeliver
			return err
		}
		return failRun(ctx, run, err)
	}
	defer func() { _ = lock.Release(ctx) }()

	progress, err := models.GetJobProgress(ctx, payload.TenantId, run.PropertyExternalId)
	if err != nil {
		return failRun(ctx, run, err)
	}
	now := time.Now().UTC()
	if !run.ForceSync && models.WasSyncedToday(progress, now) {
		logger.WithField("property", run.PropertyExternalId).Info("already synced today, skipping run")
		return finishRun(ctx, run, models.SyncRunStatusSuccess, 0, 0, 0, 0)
	}
	if err := models.UpsertJobProgress(ctx, payload.TenantId, run.PropertyExternalId, models.JobProgressStatusInProgress, nil, nil); err != nil {
		return failRun(ctx, run, err)
	}

	startedAt := now
	if err := models.UpdateSyncRun(ctx, run.ID, map[string]interface{}{
		"status":     models.SyncRunStatusRunning,
		"started_at": startedAt,
	}); err != nil {
		return err
	}
	run.StartedAt = &startedAt

	fetched, err := fetchEntries(ctx, *conn, settings, run.PropertyExternalId)
	if err != nil && isRetrievalTimeout(err) {
		logger.WithField("property", run.PropertyExternalId).Warn("retrieval timed out, retrying once")
		select {
		case <-ctx.Done():
			return failRun(ctx, run, ctx.Err())
		case <-time.After(retrievalRetryDelay):
		}
		fetched, err = fetchEntries(ctx, *conn, settings, run.PropertyExternalId)
	}
	if err != nil {
		markProgressFailed(ctx, payload.TenantId, run.PropertyExternalId, err)
		return failRun(ctx, run, err)
	}

	if _, err := storeFetchedEntries(ctx, db, payload.TenantId, run.PropertyExternalId, run.ID, fetched, run.ForceSync); err != nil {
		markProgressFailed(ctx, payload.TenantId, run.PropertyExternalId, err)
		return failRun(ctx, run, err)
	}

	entries, err := models.GetPendingImportEntries(ctx, payload.TenantId, run.PropertyExternalId, run.ID)
	if err != nil {
		markProgressFailed(ctx, payload.TenantId, run.PropertyExternalId, err)
		return failRun(ctx, run, err)
	}

	processed, skipped, failed := 0, 0, 0
	for _, entry := range entries {
		skipReason, err := processEntryInTx(ctx, db, payload.TenantId, conn.Provider, settings, property, entry)
		switch {
		case err != nil:
			failed++
			msg := err.Error()
			_ = models.CreateSyncError(ctx, &models.SyncError{
				SyncRunId:  run.ID,
				TenantId:   payload.TenantId,
				ExternalId: entry.PrimaryExternalId,
				ErrorCode:  "entry_failed",
				Message:    msg,
				Retryable:  true,
			})
			_ = models.SetImportEntryStatus(ctx, db, entry.ID, models.ImportEntryStatusFailed, nil, &msg)
			config.LogError(logger, "leasesync", "ProcessSyncRun", "entry failed", map[string]interface{}{
				"entry_id":    entry.ID,
				"external_id": entry.PrimaryExternalId,
			}, err)
		case skipReason != nil:
			skipped++
			_ = models.SetImportEntryStatus(ctx, db, entry.ID, models.ImportEntryStatusSkipped, skipReason, nil)
		default:
			processed++
			_ = models.SetImportEntryStatus(ctx, db, entry.ID, models.ImportEntryStatusProcessed, nil, nil)
		}
	}

	status := models.SyncRunStatusSuccess
	if failed > 0 && processed+skipped > 0 {
		status = models.SyncRunStatusPartial
	} else if failed > 0 {
		status = models.SyncRunStatusFailed
	}

	syncDate := time.Now().UTC()
	progressStatus := models.JobProgressStatusSucceeded
	if status == models.SyncRunStatusFailed {
		progressStatus = models.JobProgressStatusFailed
	}
	if err := models.UpsertJobProgress(ctx, payload.TenantId, run.PropertyExternalId, progressStatus, &syncDate, nil); err != nil {
		config.LogError(logger, "leasesync", "ProcessSyncRun", "progress update failed", nil, err)
	}
	if err := updateConnectionSyncDates(ctx, conn.ID, syncDate, status != models.SyncRunStatusFailed); err != nil {
		config.LogError(logger, "leasesync", "ProcessSyncRun", "connection update failed", nil, err)
	}

	return finishRun(ctx, run, status, len(fetched), processed, skipped, failed)
}

// processEntryInTx wraps one entry's reconciliation in a transaction. The
// entry status row is updated outside the transaction by the caller, so a
// rolled back entry stays PENDING-visible as FAILED rather than half-applied.
func processEntryInTx(ctx context.Context, db *gorm.DB, tenantId string, provider string, settings ImportSettings, property *models.Property, entry *models.ImportEntry) (*models.SkipReason, error) {
	var skipReason *models.SkipReason
	err := db.Transaction(func(tx *gorm.DB) error {
		reason, err := processEntry(ctx, tx, tenantId, provider, settings, property, entry)
		skipReason = reason
		return err
	})
	return skipReason, err
}

func processEntry(ctx context.Context, tx *gorm.DB, tenantId string, provider string, settings ImportSettings, property *models.Property, entry *models.ImportEntry) (*models.SkipReason, error) {
	now := time.Now().UTC()
	ec, err := buildEntryContext(ctx, tx, tenantId, provider, settings, property, entry)
	if err != nil {
		return nil, err
	}

	var holder *models.Party
	if ec.activeLeaseParty == nil && ec.inventory != nil {
		holder, err = models.GetActiveLeasePartyByInventory(ctx, tx, tenantId, ec.inventory.ID, 0)
		if err != nil {
			return nil, err
		}
	}

	if reason := EvaluateSkip(buildSkipInput(ec, holder != nil, now)); reason != nil {
		// the exception is filed only when the conflict is what skipped the
		// entry; earlier skip rules win without reporting it
		if *reason == models.SkipReasonActiveLeaseOnSameUnit && holder != nil {
			if err := fileException(ctx, tx, ec, ec.raw.PrimaryExternalId,
				models.ExceptionRuleActiveLeaseAlreadyExistsForInventory,
				map[string]interface{}{
					"inventoryExternalId": ec.inventory.ExternalId,
					"holdingPartyId":      holder.ID,
				}); err != nil {
				return nil, err
			}
		}
		if err := handleSkipSideEffects(ctx, tx, ec, *reason, now); err != nil {
			return nil, err
		}
		return reason, nil
	}

	if ec.activeLeaseParty == nil {
		return nil, createLeaseParty(ctx, tx, ec, now)
	}

	if ec.raw.IsPrimarySwitched && settings.SupportsRoommatePromotion {
		if err := handlePrimarySwitch(ctx, tx, ec); err != nil {
			return nil, err
		}
	}

	if err := reconcileMembers(ctx, tx, ec, now); err != nil {
		return nil, err
	}
	if err := reconcileLease(ctx, tx, ec, now); err != nil {
		return nil, err
	}
	if settings.ProcessesPetsAndVehicles {
		if err := reconcilePetsAndVehicles(ctx, tx, ec, now); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// handleSkipSideEffects archives tenancies the skip rules declare finished.
func handleSkipSideEffects(ctx context.Context, tx *gorm.DB, ec *entryContext, reason models.SkipReason, now time.Time) error {
	if ec.activeLeaseParty == nil {
		return nil
	}
	switch reason {
	case models.SkipReasonActiveLeaseEnded, models.SkipReasonMovedOut:
		if err := models.ArchiveParty(ctx, tx, ec.tenantId, ec.activeLeaseParty.ID, string(reason)); err != nil {
			return err
		}
		if ec.leaseSnapshot != nil {
			meta := ec.leaseSnapshot.DecodeMetadata()
			meta.MoveOutConfirmed = true
			if err := ec.leaseSnapshot.EncodeMetadata(meta); err != nil {
				return err
			}
			if err := models.SaveActiveLeaseSnapshot(ctx, tx, ec.leaseSnapshot); err != nil {
				return err
			}
		}
		return models.PublishActivity(ctx, tx, ec.tenantId, ec.entry.PropertyExternalId,
			ec.activeLeaseParty.ID, models.ReferenceTypeParty, ec.activeLeaseParty, nil, models.PubSubMessageActionUpdate)
	}
	return nil
}

// handlePrimarySwitch promotes the link matching the entry's new primary
// external id. The external source signals this by re-keying the household
// under the promoted roommate's id.
func handlePrimarySwitch(ctx context.Context, tx *gorm.DB, ec *entryContext) error {
	newPrimaryId := ec.raw.PrimaryExternalId
	var promoted *models.ExternalIdentityLink
	for _, link := range ec.links {
		if link.ExternalRoommateId != nil && *link.ExternalRoommateId == newPrimaryId {
			promoted = link
			break
		}
	}
	if promoted == nil || promoted.IsPrimary {
		return nil
	}
	if err := models.SetLinkPrimary(ctx, tx, promoted); err != nil {
		return err
	}
	if err := models.UpdateExternalIdentityLink(ctx, tx, promoted.ID, map[string]interface{}{
		"external_id":          newPrimaryId,
		"external_roommate_id": nil,
	}); err != nil {
		return err
	}
	for _, link := range ec.links {
		link.IsPrimary = link.ID == promoted.ID
	}
	promoted.ExternalId = newPrimaryId
	promoted.ExternalRoommateId = nil

	member := ec.memberForLink(promoted)
	if member == nil {
		return nil
	}
	return models.LogMemberActivity(ctx, tx, ec.tenantId, ec.entry.PropertyExternalId,
		"update", promoted.PartyId, member.ID, models.ReferenceTypePartyMember, nil, member,
		"promoted "+memberFullName(member)+" to primary")
}

// ReprocessRenewalEntry re-runs the latest pending entry for a tenancy whose
// renewal cycle just started, so the frozen state is re-evaluated and fresh
// exception reports are filed against the renewal.
func ReprocessRenewalEntry(ctx context.Context, tenantId string, provider string, primaryExternalId string) error {
	entry, err := models.GetRenewalEntryToProcess(ctx, tenantId, primaryExternalId)
	if err != nil || entry == nil {
		return err
	}
	if entry.Status != models.ImportEntryStatusPending {
		if err := models.ResetImportEntryForReprocess(ctx, config.GetDB(), entry.ID); err != nil {
			return err
		}
		entry.Status = models.ImportEntryStatusPending
	}
	property, err := models.GetPropertyByExternalId(ctx, tenantId, entry.PropertyExternalId)
	if err != nil {
		return err
	}
	conn, err := models.GetImportConnection(ctx, tenantId, provider)
	if err != nil {
		return err
	}
	settings := ImportSettings{}
	if conn != nil {
		settings = DecodeImportSettings(conn.SettingsJSON)
	}

	db := config.GetDB()
	skipReason, err := processEntryInTx(ctx, db, tenantId, provider, settings, property, entry)
	if err != nil {
		msg := err.Error()
		return models.SetImportEntryStatus(ctx, db, entry.ID, models.ImportEntryStatusFailed, nil, &msg)
	}
	if skipReason != nil {
		return models.SetImportEntryStatus(ctx, db, entry.ID, models.ImportEntryStatusSkipped, skipReason, nil)
	}
	return models.SetImportEntryStatus(ctx, db, entry.ID, models.ImportEntryStatusProcessed, nil, nil)
}

func failRun(ctx context.Context, run *models.SyncRun, cause error) error {
	msg := cause.Error()
	now := time.Now().UTC()
	_ = models.UpdateSyncRun(ctx, run.ID, map[string]interface{}{
		"status":      models.SyncRunStatusFailed,
		"error_text":  msg,
		"finished_at": now,
	})
	return cause
}

func finishRun(ctx context.Context, run *models.SyncRun, status string, fetched, processed, skipped, failed int) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":            status,
		"entries_fetched":   fetched,
		"entries_processed": processed,
		"entries_skipped":   skipped,
		"entries_failed":    failed,
		"finished_at":       now,
	}
	if run.StartedAt != nil {
		updates["duration_ms"] = now.Sub(*run.StartedAt).Milliseconds()
	}
	return models.UpdateSyncRun(ctx, run.ID, updates)
}

func markProgressFailed(ctx context.Context, tenantId string, propertyExternalId string, cause error) {
	msg := cause.Error()
	_ = models.UpsertJobProgress(ctx, tenantId, propertyExternalId, models.JobProgressStatusFailed, nil, &msg)
}

func updateConnectionSyncDates(ctx context.Context, connectionId uint, syncDate time.Time, success bool) error {
	db := config.GetDB()
	updates := map[string]interface{}{
		"last_sync_at": syncDate,
	}
	if success {
		updates["last_success_sync_at"] = syncDate
	}
	return db.WithContext(ctx).Model(&models.ImportConnection{}).
		Where("id = ?", connectionId).
		Updates(updates).Error
}
