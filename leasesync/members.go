package leasesync

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/leasing_backend/models"
	"gorm.io/gorm"
)

// reconcileMembers drives the member, person and child reconciliation for an
// entry that resolved to an active lease party. The primary member is always
// processed first so a brand new party gets its primary link before roommate
// links are written.
func reconcileMembers(ctx context.Context, tx *gorm.DB, ec *entryContext, now time.Time) error {
	party := ec.activeLeaseParty
	feedMembers := SortMembersPrimaryFirst(ec.raw.Members, ec.raw.PrimaryExternalId)

	var adults, children []RawMember
	for _, m := range feedMembers {
		if m.IsChild() {
			children = append(children, m)
		} else {
			adults = append(adults, m)
		}
	}

	seen := map[string]bool{}
	for _, m := range adults {
		if m.Id == "" {
			continue
		}
		seen[m.Id] = true

		link := ec.linkForExternalId(m.Id)
		if link == nil {
			if ec.renewalInProgress() {
				if err := handleNewMemberDuringRenewal(ctx, tx, ec, m, now); err != nil {
					return err
				}
				continue
			}
			member, err := createMember(ctx, tx, ec, party, m, now)
			if err != nil {
				return err
			}
			if err := updatePersonFromMember(ctx, tx, ec, member, m); err != nil {
				return err
			}
			continue
		}

		member := ec.memberForLink(link)
		if member == nil {
			reinstated, err := reinstateLinkedMember(ctx, tx, ec, link, m)
			if err != nil {
				return err
			}
			if reinstated == nil {
				continue
			}
			member = reinstated
		}
		if err := updateMemberFromFeed(ctx, tx, ec, member, m); err != nil {
			return err
		}
		if err := updatePersonFromMember(ctx, tx, ec, member, m); err != nil {
			return err
		}
	}

	if err := removeMissingMembers(ctx, tx, ec, seen, now); err != nil {
		return err
	}
	if err := reconcileChildren(ctx, tx, ec, children, now); err != nil {
		return err
	}
	return setCorporatePointOfContact(ctx, tx, ec, party)
}

// reinstateLinkedMember revives a member that was previously removed but
// reappeared in the feed under the same external id.
func reinstateLinkedMember(ctx context.Context, tx *gorm.DB, ec *entryContext, link *models.ExternalIdentityLink, m RawMember) (*models.PartyMember, error) {
	if link.PartyMemberId == nil {
		return nil, nil
	}
	member, err := models.GetPartyMember(ctx, tx, ec.tenantId, *link.PartyMemberId)
	if err != nil {
		return nil, err
	}
	if err := models.ReinstatePartyMember(ctx, tx, ec.tenantId, member.ID); err != nil {
		return nil, err
	}
	member.EndDate = nil
	member.VacateDate = nil
	ec.members = append(ec.members, member)

	// the removal this member was reported for did not stick
	if err := models.MarkLastExceptionReportAsIgnored(ctx, tx, ec.tenantId, m.Id,
		models.ExceptionRuleDeletedMembersAfterRenewalStart, models.IgnoreReasonMemberConfirmedOnRenewal); err != nil {
		return nil, err
	}

	if err := models.LogMemberActivity(ctx, tx, ec.tenantId, ec.entry.PropertyExternalId,
		"update", member.PartyId, member.ID, models.ReferenceTypePartyMember, nil, member,
		"reinstated member from import"); err != nil {
		return nil, err
	}
	return member, nil
}

// removeMissingMembers ends membership for linked members the feed no longer
// carries. During a renewal cycle removals are frozen into exception reports.
func removeMissingMembers(ctx context.Context, tx *gorm.DB, ec *entryContext, seen map[string]bool, now time.Time) error {
	for _, link := range ec.links {
		externalId := link.EffectiveExternalId()
		if seen[externalId] {
			continue
		}
		member := ec.memberForLink(link)
		if member == nil {
			continue
		}

		if ec.renewalInProgress() {
			payload := map[string]interface{}{
				"externalId": externalId,
				"memberId":   member.ID,
				"fullName":   memberFullName(member),
				"type":       string(member.MemberType),
			}
			if err := fileException(ctx, tx, ec, externalId,
				models.ExceptionRuleDeletedMembersAfterRenewalStart, payload); err != nil {
				return err
			}
			continue
		}

		if err := models.RemovePartyMember(ctx, tx, ec.tenantId, member.ID, now); err != nil {
			return err
		}
		if err := models.ArchiveExternalIdentityLink(ctx, tx, link.ID, now); err != nil {
			return err
		}
		if err := models.LogMemberActivity(ctx, tx, ec.tenantId, ec.entry.PropertyExternalId,
			"remove", member.PartyId, member.ID, models.ReferenceTypePartyMember, member, nil,
			"removed "+memberFullName(member)+" missing from import"); err != nil {
			return err
		}
	}
	return nil
}

// reconcileChildren diff-matches CHILD feed members against the party's child
// records by name. Children never become party members.
func reconcileChildren(ctx context.Context, tx *gorm.DB, ec *entryContext, children []RawMember, now time.Time) error {
	party := ec.activeLeaseParty
	stored, err := models.GetActiveAdditionalInfo(ctx, tx, ec.tenantId, party.ID, models.AdditionalInfoTypeChild)
	if err != nil {
		return err
	}

	matched := map[int]bool{}
	for _, child := range children {
		existing := MatchChild(stored, child)
		if existing != nil {
			matched[existing.ID] = true
			continue
		}
		record := &models.AdditionalInfo{
			TenantId: ec.tenantId,
			PartyId:  party.ID,
			Type:     models.AdditionalInfoTypeChild,
		}
		if err := record.EncodeInfo(models.ChildInfo{FullName: BuildFullName(child)}); err != nil {
			return err
		}
		if err := models.CreateAdditionalInfo(ctx, tx, record); err != nil {
			return err
		}
	}

	for _, record := range stored {
		if matched[record.ID] {
			continue
		}
		if err := models.RemoveAdditionalInfo(ctx, tx, ec.tenantId, record.ID, now); err != nil {
			return err
		}
	}
	return nil
}

func memberFullName(member *models.PartyMember) string {
	if member.Person != nil {
		return member.Person.FullName
	}
	return ""
}
