package leasesync

import (
	"context"

	"bitbucket.org/mmdatafocus/leasing_backend/models"
	"gorm.io/gorm"
)

// entryContext is everything one import entry needs for reconciliation,
// loaded once at the top of processing.
type entryContext struct {
	tenantId string
	provider string
	settings ImportSettings

	property *models.Property
	entry    *models.ImportEntry
	raw      RawEntry

	inventory *models.Inventory

	// workflows attached to any external id on the entry, active first
	workflows []*models.Party

	activeLeaseParty *models.Party
	newLeaseParty    *models.Party
	renewalParty     *models.Party

	// the renewal workflow's published lease, nil while none is in flight
	renewalPublishedLease *models.PublishedLease

	leaseSnapshot *models.ActiveLeaseSnapshot
	members       []*models.PartyMember
	links         []*models.ExternalIdentityLink
}

func (ec *entryContext) timezone() string {
	if ec.property != nil && ec.property.Timezone != "" {
		return ec.property.Timezone
	}
	return "UTC"
}

func (ec *entryContext) renewalInProgress() bool {
	return ec.renewalParty != nil
}

func buildEntryContext(ctx context.Context, tx *gorm.DB, tenantId string, provider string, settings ImportSettings, property *models.Property, entry *models.ImportEntry) (*entryContext, error) {
	raw, err := DecodeRawEntry(entry.RawData)
	if err != nil {
		return nil, err
	}

	ec := &entryContext{
		tenantId: tenantId,
		provider: provider,
		settings: settings,
		property: property,
		entry:    entry,
		raw:      raw,
	}

	inventoryExternalId := models.BuildInventoryExternalId(entry.PropertyExternalId, raw.BuildingId, raw.UnitId)
	ec.inventory, err = models.GetInventoryByExternalId(ctx, tx, tenantId, inventoryExternalId)
	if err != nil {
		return nil, err
	}

	externalIds := []string{raw.PrimaryExternalId}
	for _, m := range raw.Members {
		if m.Id != "" {
			externalIds = append(externalIds, m.Id)
		}
	}
	partyIds, err := models.GetPartyIdsByExternalIds(ctx, tenantId, externalIds)
	if err != nil {
		return nil, err
	}
	ec.workflows, err = models.GetPartyWorkflows(ctx, tx, tenantId, partyIds)
	if err != nil {
		return nil, err
	}

	for _, party := range ec.workflows {
		if party.WorkflowState != models.WorkflowStateActive {
			continue
		}
		switch party.WorkflowName {
		case models.WorkflowNameActiveLease:
			if ec.activeLeaseParty == nil {
				ec.activeLeaseParty = party
			}
		case models.WorkflowNameNewLease:
			if ec.newLeaseParty == nil {
				ec.newLeaseParty = party
			}
		case models.WorkflowNameRenewal:
			if ec.renewalParty == nil {
				ec.renewalParty = party
			}
		}
	}

	if ec.renewalParty != nil {
		ec.renewalPublishedLease, err = models.GetPublishedRenewalLease(ctx, tx, tenantId, ec.renewalParty.ID)
		if err != nil {
			return nil, err
		}
	}

	if ec.activeLeaseParty != nil {
		ec.leaseSnapshot, err = models.GetActiveLeaseSnapshotByParty(ctx, tx, tenantId, ec.activeLeaseParty.ID)
		if err != nil {
			return nil, err
		}
		ec.members, err = models.GetActivePartyMembers(ctx, tx, tenantId, ec.activeLeaseParty.ID)
		if err != nil {
			return nil, err
		}
		ec.links, err = models.GetActiveLinksByParty(ctx, tx, tenantId, ec.activeLeaseParty.ID)
		if err != nil {
			return nil, err
		}
	}

	return ec, nil
}

// linkForExternalId returns the party's active link for one external member id.
func (ec *entryContext) linkForExternalId(externalId string) *models.ExternalIdentityLink {
	for _, link := range ec.links {
		if link.ExternalId == externalId {
			return link
		}
		if link.ExternalRoommateId != nil && *link.ExternalRoommateId == externalId {
			return link
		}
	}
	return nil
}

// memberForLink resolves the party member an active link points at.
func (ec *entryContext) memberForLink(link *models.ExternalIdentityLink) *models.PartyMember {
	if link == nil || link.PartyMemberId == nil {
		return nil
	}
	for _, m := range ec.members {
		if m.ID == *link.PartyMemberId {
			return m
		}
	}
	return nil
}

// linkForMember is the reverse lookup.
func (ec *entryContext) linkForMember(memberId int) *models.ExternalIdentityLink {
	for _, link := range ec.links {
		if link.PartyMemberId != nil && *link.PartyMemberId == memberId {
			return link
		}
	}
	return nil
}
