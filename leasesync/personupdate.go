package leasesync

import (
	"context"

	"bitbucket.org/mmdatafocus/leasing_backend/config"
	"bitbucket.org/mmdatafocus/leasing_backend/models"
	"bitbucket.org/mmdatafocus/leasing_backend/utils"
	"gorm.io/gorm"
)

// updatePersonFromMember applies feed contact info and name changes to the
// matched person. Each axis (email, phone, name) runs its rules in order and
// stops at the first one that applies.
func updatePersonFromMember(ctx context.Context, tx *gorm.DB, ec *entryContext, member *models.PartyMember, m RawMember) error {
	person := member.Person
	if person == nil {
		loaded, err := models.GetPerson(ctx, tx, ec.tenantId, member.PersonId)
		if err != nil {
			return err
		}
		person = loaded
		member.Person = loaded
	}

	if err := updateContactAxis(ctx, tx, ec, person, m, models.ContactInfoTypeEmail, MemberEmail(m), ""); err != nil {
		return err
	}
	_, extension := utils.SplitPhoneExtension(m.Phone)
	if err := updateContactAxis(ctx, tx, ec, person, m, models.ContactInfoTypePhone, MemberPhone(m), extension); err != nil {
		return err
	}
	return updateNameFromMember(ctx, tx, ec, person, m)
}

func updateContactAxis(ctx context.Context, tx *gorm.DB, ec *entryContext, person *models.Person, m RawMember, infoType models.ContactInfoType, value string, extension string) error {
	existing := personContact(person, infoType, value)
	primary := primaryContact(person, infoType)

	switch {
	case value == "":
		// the feed cleared a contact the person still has; never delete
		// stored contact info on import, report instead
		if primary != nil {
			return fileException(ctx, tx, ec, m.Id,
				models.ExceptionRuleEmailOrPhoneClearedOnImport,
				fieldChangePayload(string(infoType), primary.Value, ""))
		}
		return nil

	case existing != nil:
		if !existing.IsPrimary && config.OverrideContactInfo() {
			return models.MarkContactInfoPrimary(ctx, tx, existing)
		}
		return nil

	default:
		// guard against attaching a value that identifies another person
		others, err := models.FindPersonIdsByContactValue(ctx, tx, ec.tenantId, infoType, value, person.ID)
		if err != nil {
			return err
		}
		if len(others) > 0 && infoType == models.ContactInfoTypeEmail {
			return models.ErrContactInfoInUse
		}
		info := &models.ContactInfo{
			TenantId:  ec.tenantId,
			PersonId:  person.ID,
			Type:      infoType,
			Value:     value,
			Extension: extension,
		}
		markPrimary := primary == nil || config.OverrideContactInfo()
		if err := models.AddContactInfo(ctx, tx, info, markPrimary); err != nil {
			return err
		}
		person.ContactInfos = append(person.ContactInfos, *info)
		return nil
	}
}

func updateNameFromMember(ctx context.Context, tx *gorm.DB, ec *entryContext, person *models.Person, m RawMember) error {
	fullName := BuildFullName(m)
	if fullName == "" || SameName(person.FullName, fullName) {
		return nil
	}
	if ec.renewalInProgress() {
		return fileException(ctx, tx, ec, m.Id,
			models.ExceptionRuleNameUpdatedAfterRenewalStart,
			fieldChangePayload("fullName", person.FullName, fullName))
	}
	old := person.FullName
	if err := models.UpdatePersonFullName(ctx, tx, ec.tenantId, person.ID, fullName); err != nil {
		return err
	}
	person.FullName = fullName
	return models.LogMemberActivity(ctx, tx, ec.tenantId, ec.entry.PropertyExternalId,
		"update", ec.activeLeaseParty.ID, person.ID, models.ReferenceTypePerson,
		map[string]string{"fullName": old}, map[string]string{"fullName": fullName},
		"renamed "+old+" to "+fullName)
}

func primaryContact(p *models.Person, infoType models.ContactInfoType) *models.ContactInfo {
	if p == nil {
		return nil
	}
	for i := range p.ContactInfos {
		info := &p.ContactInfos[i]
		if info.Type == infoType && info.IsPrimary {
			return info
		}
	}
	return nil
}
