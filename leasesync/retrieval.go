package leasesync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/leasing_backend/models"
	"bitbucket.org/mmdatafocus/leasing_backend/utils"
	"gorm.io/gorm"
)

// fetchEntries pulls the current resident snapshot for one property through
// the connection's retrieval mode and returns the raw payloads keyed by
// primary external id.
func fetchEntries(ctx context.Context, conn models.ImportConnection, settings ImportSettings, propertyExternalId string) (map[string]json.RawMessage, error) {
	switch conn.RetrievalMode {
	case models.RetrievalModeFeed:
		return fetchFeedEntries(ctx, settings, propertyExternalId)
	case models.RetrievalModeAPI:
		return fetchAPIEntries(ctx, conn, settings, propertyExternalId)
	default:
		return nil, fmt.Errorf("unknown retrieval mode %q", conn.RetrievalMode)
	}
}

func fetchAPIEntries(ctx context.Context, conn models.ImportConnection, settings ImportSettings, propertyExternalId string) (map[string]json.RawMessage, error) {
	client, err := newResidentClient(conn.AuthSecretRef)
	if err != nil {
		return nil, err
	}

	entries := map[string]json.RawMessage{}
	cursor := ""
	for {
		params := url.Values{}
		params.Set("property_id", propertyExternalId)
		params.Set("limit", strconv.Itoa(settings.APIPageSize))
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		resp, err := client.getList(ctx, "/v1/residents", params)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.records() {
			entry, err := DecodeRawEntry(raw)
			if err != nil || entry.PrimaryExternalId == "" {
				continue
			}
			entries[entry.PrimaryExternalId] = raw
		}
		if resp.NextCursor == "" || (resp.HasMore != nil && !*resp.HasMore) {
			break
		}
		cursor = resp.NextCursor
	}
	return entries, nil
}

// fetchFeedEntries reads the latest dropped feed file for the property from
// the GCS bucket. The file is a JSON array of entries.
func fetchFeedEntries(ctx context.Context, settings ImportSettings, propertyExternalId string) (map[string]json.RawMessage, error) {
	prefix := settings.FeedObjectPrefix
	if prefix == "" {
		prefix = "feeds"
	}
	objectName := fmt.Sprintf("%s/%s/residents.json", strings.TrimRight(prefix, "/"), propertyExternalId)
	data, err := utils.ReadFeedObject(ctx, objectName)
	if err != nil {
		return nil, err
	}

	var rawList []json.RawMessage
	if err := json.Unmarshal(data, &rawList); err != nil {
		return nil, fmt.Errorf("feed object %s is not a json array: %w", objectName, err)
	}

	entries := map[string]json.RawMessage{}
	for _, raw := range rawList {
		entry, err := DecodeRawEntry(raw)
		if err != nil || entry.PrimaryExternalId == "" {
			continue
		}
		entries[entry.PrimaryExternalId] = raw
	}
	return entries, nil
}

// storeFetchedEntries persists each fetched payload as a PENDING import entry.
// An entry whose payload is byte-identical to the last stored one only gets
// its last sync date refreshed, unless something about the linked record still
// needs a pass (open exception, active renewal, recent move-out, or a
// never-linked external id).
func storeFetchedEntries(ctx context.Context, tx *gorm.DB, tenantId, propertyExternalId string, runId uint, fetched map[string]json.RawMessage, forceSync bool) (stored int, err error) {
	previous, err := models.GetLastImportedEntries(ctx, tenantId, propertyExternalId)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	for primaryId, raw := range fetched {
		normalized := NormalizeRawJSON(raw)
		prev := previous[primaryId]
		if prev != nil && !forceSync && bytes.Equal(NormalizeRawJSON(prev.RawData), normalized) {
			needsPass, err := entryNeedsAnotherPass(ctx, tx, tenantId, prev)
			if err != nil {
				return stored, err
			}
			if !needsPass {
				if err := models.UpdateImportEntryLastSyncDate(ctx, tx, prev.ID, now); err != nil {
					return stored, err
				}
				continue
			}
		}

		entry := models.ImportEntry{
			TenantId:           tenantId,
			PropertyExternalId: propertyExternalId,
			PrimaryExternalId:  primaryId,
			RawData:            normalized,
			Status:             models.ImportEntryStatusPending,
			LastSyncDate:       now,
			SyncRunId:          runId,
		}
		if err := models.SaveImportEntry(ctx, tx, &entry); err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}

func entryNeedsAnotherPass(ctx context.Context, tx *gorm.DB, tenantId string, prev *models.ImportEntry) (bool, error) {
	if prev.WasAddedToExceptionReport {
		return true, nil
	}
	links, err := models.GetLinksByExternalId(ctx, tx, tenantId, prev.PrimaryExternalId)
	if err != nil {
		return false, err
	}
	if len(links) == 0 {
		// never linked; the earlier run may have skipped it
		return true, nil
	}
	var partyIds []int
	for _, link := range links {
		if link.PartyMemberId == nil || link.EndDate != nil {
			continue
		}
		member, err := models.GetPartyMember(ctx, tx, tenantId, *link.PartyMemberId)
		if err != nil {
			continue
		}
		partyIds = append(partyIds, member.PartyId)
	}
	for _, partyId := range partyIds {
		party, err := models.GetParty(ctx, tx, tenantId, partyId)
		if err != nil {
			continue
		}
		if party.WorkflowState != models.WorkflowStateActive {
			continue
		}
		if party.WorkflowName == models.WorkflowNameRenewal {
			return true, nil
		}
		if party.WorkflowName == models.WorkflowNameActiveLease {
			snapshot, err := models.GetActiveLeaseSnapshotByParty(ctx, tx, tenantId, party.ID)
			if err == nil && snapshot != nil && snapshot.State == models.ActiveLeaseStateMovingOut {
				return true, nil
			}
		}
	}
	return false, nil
}
