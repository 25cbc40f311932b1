package leasesync

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/leasing_backend/models"
	"gorm.io/gorm"
)

// updateMemberFromFeed applies role-level changes (member type, vacate date)
// to an already matched party member. During a renewal cycle the changes are
// frozen into exception reports instead. The primary flag is reconciled
// regardless of the renewal state.
func updateMemberFromFeed(ctx context.Context, tx *gorm.DB, ec *entryContext, member *models.PartyMember, m RawMember) error {
	if err := reconcilePrimaryFlag(ctx, tx, ec, member); err != nil {
		return err
	}
	if err := updateMemberType(ctx, tx, ec, member, m); err != nil {
		return err
	}
	return updateMemberVacateDate(ctx, tx, ec, member, m)
}

// primaryFlagTransition decides whether a link must gain or lose the primary
// flag given the feed's current primary external id.
func primaryFlagTransition(link *models.ExternalIdentityLink, primaryExternalId string) (promote bool, demote bool) {
	if link == nil {
		return false, false
	}
	isPrimaryId := link.EffectiveExternalId() == primaryExternalId
	return !link.IsPrimary && isPrimaryId, link.IsPrimary && !isPrimaryId
}

// reconcilePrimaryFlag keeps the link's is_primary flag in step with the
// feed's primary external id.
func reconcilePrimaryFlag(ctx context.Context, tx *gorm.DB, ec *entryContext, member *models.PartyMember) error {
	link := ec.linkForMember(member.ID)
	promote, demote := primaryFlagTransition(link, ec.raw.PrimaryExternalId)
	switch {
	case promote:
		if err := models.SetLinkPrimary(ctx, tx, link); err != nil {
			return err
		}
		for _, other := range ec.links {
			other.IsPrimary = other.ID == link.ID
		}
	case demote:
		if err := models.UpdateExternalIdentityLink(ctx, tx, link.ID, map[string]interface{}{
			"is_primary": false,
		}); err != nil {
			return err
		}
		link.IsPrimary = false
	}
	return nil
}

func updateMemberType(ctx context.Context, tx *gorm.DB, ec *entryContext, member *models.PartyMember, m RawMember) error {
	newType := mapMemberType(m)
	if newType == member.MemberType {
		return nil
	}
	if ec.renewalInProgress() {
		return fileException(ctx, tx, ec, m.Id,
			models.ExceptionRuleMemberTypeUpdatedAfterRenewalStart,
			fieldChangePayload("memberType", string(member.MemberType), string(newType)))
	}
	old := member.MemberType
	if err := models.UpdatePartyMember(ctx, tx, member.ID, map[string]interface{}{
		"member_type": newType,
	}); err != nil {
		return err
	}
	member.MemberType = newType
	return models.LogMemberActivity(ctx, tx, ec.tenantId, ec.entry.PropertyExternalId,
		"update", member.PartyId, member.ID, models.ReferenceTypePartyMember,
		map[string]string{"memberType": string(old)},
		map[string]string{"memberType": string(newType)},
		"changed member type")
}

func updateMemberVacateDate(ctx context.Context, tx *gorm.DB, ec *entryContext, member *models.PartyMember, m RawMember) error {
	var newDate *time.Time
	if m.VacateDate != "" {
		parsed, err := models.ParseDateString(m.VacateDate, ec.timezone())
		if err == nil {
			newDate = &parsed
		}
	}
	if models.SameDate(member.VacateDate, newDate) {
		return nil
	}

	if ec.renewalInProgress() {
		rule := models.ExceptionRuleVacateDateUpdatedAfterRenewalStart
		if member.MemberType == models.MemberTypeOccupant {
			rule = models.ExceptionRuleOccupantVacateDateUpdatedAfterRenewal
		}
		return fileException(ctx, tx, ec, m.Id, rule,
			fieldChangePayload("vacateDate", member.VacateDate, newDate))
	}

	old := member.VacateDate
	if err := models.UpdatePartyMember(ctx, tx, member.ID, map[string]interface{}{
		"vacate_date": newDate,
	}); err != nil {
		return err
	}
	member.VacateDate = newDate
	return models.LogMemberActivity(ctx, tx, ec.tenantId, ec.entry.PropertyExternalId,
		"update", member.PartyId, member.ID, models.ReferenceTypePartyMember,
		map[string]interface{}{"vacateDate": old},
		map[string]interface{}{"vacateDate": newDate},
		"updated member vacate date")
}

// setCorporatePointOfContact keeps exactly one point of contact on corporate
// parties: the primary feed member.
func setCorporatePointOfContact(ctx context.Context, tx *gorm.DB, ec *entryContext, party *models.Party) error {
	if !party.IsCorporate {
		return nil
	}
	primaryLink := ec.linkForExternalId(ec.raw.PrimaryExternalId)
	primaryMember := ec.memberForLink(primaryLink)
	if primaryMember == nil {
		return nil
	}
	for _, member := range ec.members {
		shouldBePOC := member.ID == primaryMember.ID
		if member.IsPointOfContact == shouldBePOC {
			continue
		}
		if err := models.UpdatePartyMember(ctx, tx, member.ID, map[string]interface{}{
			"is_point_of_contact": shouldBePOC,
		}); err != nil {
			return err
		}
		member.IsPointOfContact = shouldBePOC
	}
	return nil
}
