package leasesync

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/leasing_backend/models"
	"bitbucket.org/mmdatafocus/leasing_backend/utils"
	"gorm.io/gorm"
)

// resolvePersonForMember runs the identity rules in order and returns the
// first matching stored person, or nil when the member is genuinely new.
// Rule order: exact email, then cleaned name plus phone. An email hit alone
// is decisive; a name hit alone is not.
func resolvePersonForMember(ctx context.Context, tx *gorm.DB, tenantId string, m RawMember) (*models.Person, error) {
	if email := MemberEmail(m); email != "" {
		personIds, err := models.FindPersonIdsByContactValue(ctx, tx, tenantId, models.ContactInfoTypeEmail, email, 0)
		if err != nil {
			return nil, err
		}
		persons, err := models.FindPersonsByIds(ctx, tx, tenantId, personIds)
		if err != nil {
			return nil, err
		}
		for _, p := range persons {
			return p, nil
		}
	}

	phone := MemberPhone(m)
	if phone == "" {
		return nil, nil
	}
	candidates, err := models.FindPersonsByFullNames(ctx, tx, tenantId, NameCandidates(m), 0)
	if err != nil {
		return nil, err
	}
	for _, p := range candidates {
		if MatchPersonToMember(p, m).IsSamePerson() {
			return p, nil
		}
	}
	return nil, nil
}

// createMember adds one feed member to the party: an existing person when the
// identity rules find one, a brand new person otherwise. Returns the created
// party member.
func createMember(ctx context.Context, tx *gorm.DB, ec *entryContext, party *models.Party, m RawMember, now time.Time) (*models.PartyMember, error) {
	person, err := resolvePersonForMember(ctx, tx, ec.tenantId, m)
	if err != nil {
		return nil, err
	}
	if person == nil {
		person = &models.Person{
			TenantId: ec.tenantId,
			FullName: BuildFullName(m),
		}
		if err := models.CreatePerson(ctx, tx, person); err != nil {
			return nil, err
		}
		if email := MemberEmail(m); email != "" {
			info := &models.ContactInfo{
				TenantId: ec.tenantId,
				PersonId: person.ID,
				Type:     models.ContactInfoTypeEmail,
				Value:    email,
			}
			if err := models.AddContactInfo(ctx, tx, info, true); err != nil {
				return nil, err
			}
		}
		if phone := MemberPhone(m); phone != "" {
			_, extension := utils.SplitPhoneExtension(m.Phone)
			info := &models.ContactInfo{
				TenantId:  ec.tenantId,
				PersonId:  person.ID,
				Type:      models.ContactInfoTypePhone,
				Value:     phone,
				Extension: extension,
			}
			if err := models.AddContactInfo(ctx, tx, info, true); err != nil {
				return nil, err
			}
		}
	}

	member := &models.PartyMember{
		TenantId:   ec.tenantId,
		PartyId:    party.ID,
		PersonId:   person.ID,
		MemberType: mapMemberType(m),
	}
	if m.VacateDate != "" {
		if vacate, err := models.ParseDateString(m.VacateDate, ec.timezone()); err == nil {
			member.VacateDate = &vacate
		}
	}
	if err := models.CreatePartyMember(ctx, tx, member); err != nil {
		return nil, err
	}
	member.Person = person

	link := &models.ExternalIdentityLink{
		TenantId:      ec.tenantId,
		PartyId:       party.ID,
		PropertyId:    ec.property.ID,
		PartyMemberId: &member.ID,
		ExternalId:    m.Id,
		IsPrimary:     m.Id == ec.raw.PrimaryExternalId,
		StartDate:     now,
	}
	if link.IsPrimary {
		link.ExternalId = ec.raw.PrimaryExternalId
	} else {
		roommateId := m.Id
		link.ExternalRoommateId = &roommateId
		link.ExternalId = ec.raw.PrimaryExternalId
	}
	if err := models.CreateExternalIdentityLink(ctx, tx, link); err != nil {
		return nil, err
	}
	ec.members = append(ec.members, member)
	ec.links = append(ec.links, link)

	if err := models.LogMemberActivity(ctx, tx, ec.tenantId, ec.entry.PropertyExternalId,
		"add", party.ID, member.ID, models.ReferenceTypePartyMember, nil, member,
		"added "+person.FullName+" from import"); err != nil {
		return nil, err
	}
	return member, nil
}

// handleNewMemberDuringRenewal links the feed member silently when it matches
// an existing party member, otherwise files a freeze exception and leaves the
// party untouched.
func handleNewMemberDuringRenewal(ctx context.Context, tx *gorm.DB, ec *entryContext, m RawMember, now time.Time) error {
	matched := MatchMemberInParty(ec.members, m)
	if matched != nil {
		if ec.linkForMember(matched.ID) == nil {
			roommateId := m.Id
			link := &models.ExternalIdentityLink{
				TenantId:           ec.tenantId,
				PartyId:            matched.PartyId,
				PropertyId:         ec.property.ID,
				PartyMemberId:      &matched.ID,
				ExternalId:         ec.raw.PrimaryExternalId,
				ExternalRoommateId: &roommateId,
				StartDate:          now,
			}
			if err := models.CreateExternalIdentityLink(ctx, tx, link); err != nil {
				return err
			}
			ec.links = append(ec.links, link)
		}
		// the member the report flagged as new turned out to already exist
		return models.MarkLastExceptionReportAsIgnored(ctx, tx, ec.tenantId, m.Id,
			models.ExceptionRuleNewResidentAddedAfterRenewalStart, models.IgnoreReasonMemberConfirmedOnRenewal)
	}
	return fileException(ctx, tx, ec, m.Id,
		models.ExceptionRuleNewResidentAddedAfterRenewalStart, memberPayload(m))
}

func mapMemberType(m RawMember) models.MemberType {
	switch strings.ToUpper(strings.TrimSpace(m.Type)) {
	case "GUARANTOR":
		return models.MemberTypeGuarantor
	case "OCCUPANT":
		return models.MemberTypeOccupant
	default:
		return models.MemberTypeResident
	}
}
