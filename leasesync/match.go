package leasesync

import (
	"strings"
	"unicode"

	"bitbucket.org/mmdatafocus/leasing_backend/models"
	"bitbucket.org/mmdatafocus/leasing_backend/utils"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nameFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// CleanName folds diacritics, strips parenthesised segments, digits and
// symbols, and collapses whitespace. Comparisons between feed names and
// stored names run on this form.
func CleanName(name string) string {
	folded, _, err := transform.String(nameFolder, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	depth := 0
	for _, r := range folded {
		switch {
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case depth > 0:
			// inside parentheses
		case unicode.IsLetter(r) || r == ' ' || r == '-' || r == '\'':
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// SameName compares two names on their cleaned, case-folded forms.
func SameName(a, b string) bool {
	ca := strings.ToUpper(CleanName(a))
	cb := strings.ToUpper(CleanName(b))
	if ca == "" || cb == "" {
		return false
	}
	return ca == cb
}

// BuildFullName assembles the stored full name from feed name parts.
func BuildFullName(m RawMember) string {
	parts := []string{}
	for _, p := range []string{m.FirstName, m.MiddleInitial, m.LastName} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, strings.TrimSpace(p))
		}
	}
	return strings.Join(parts, " ")
}

// NameCandidates returns the raw and cleaned full-name variants used to pull
// match candidates from storage.
func NameCandidates(m RawMember) []string {
	full := BuildFullName(m)
	cleaned := CleanName(full)
	return utils.UniqueSlice([]string{full, cleaned})
}

// MemberEmail returns the feed email when it is well formed, else "".
func MemberEmail(m RawMember) string {
	email := strings.TrimSpace(strings.ToLower(m.Email))
	if email == "" || !utils.IsValidEmail(email) {
		return ""
	}
	return email
}

// MemberPhone returns the feed phone in stored E.164 form, else "".
func MemberPhone(m RawMember) string {
	return utils.FormatPhoneNumber(m.Phone)
}

func personEmail(p *models.Person, value string) *models.ContactInfo {
	return personContact(p, models.ContactInfoTypeEmail, value)
}

func personPhone(p *models.Person, value string) *models.ContactInfo {
	return personContact(p, models.ContactInfoTypePhone, value)
}

func personContact(p *models.Person, infoType models.ContactInfoType, value string) *models.ContactInfo {
	if p == nil || value == "" {
		return nil
	}
	for i := range p.ContactInfos {
		info := &p.ContactInfos[i]
		if info.Type == infoType && strings.EqualFold(info.Value, value) {
			return info
		}
	}
	return nil
}

// MatchPersonToMember scores a stored person against a feed member on the
// email, phone and name axes.
type PersonMatch struct {
	EmailMatches bool
	PhoneMatches bool
	NameMatches  bool
}

func MatchPersonToMember(p *models.Person, m RawMember) PersonMatch {
	match := PersonMatch{
		NameMatches: SameName(p.FullName, BuildFullName(m)),
	}
	if email := MemberEmail(m); email != "" && personEmail(p, email) != nil {
		match.EmailMatches = true
	}
	if phone := MemberPhone(m); phone != "" && personPhone(p, phone) != nil {
		match.PhoneMatches = true
	}
	return match
}

// IsSamePerson is the combined identity test: an email hit alone is decisive,
// otherwise name plus phone must both agree.
func (pm PersonMatch) IsSamePerson() bool {
	if pm.EmailMatches {
		return true
	}
	return pm.NameMatches && pm.PhoneMatches
}

// nameVariants returns the feed member's full name with and without the
// middle initial. Stored names may carry either form.
func nameVariants(m RawMember) []string {
	variants := []string{BuildFullName(m)}
	if strings.TrimSpace(m.MiddleInitial) != "" {
		short := RawMember{FirstName: m.FirstName, LastName: m.LastName}
		variants = append(variants, BuildFullName(short))
	}
	return variants
}

// MatchMemberInParty resolves a feed member against the active members of one
// party. Candidates are narrowed by name first, with and without the middle
// initial, then disambiguated by email and by phone. The first qualifying
// candidate wins, in list order.
func MatchMemberInParty(members []*models.PartyMember, m RawMember) *models.PartyMember {
	variants := nameVariants(m)

	var candidates []*models.PartyMember
	for _, member := range members {
		if member.Person == nil {
			continue
		}
		for _, variant := range variants {
			if SameName(member.Person.FullName, variant) {
				candidates = append(candidates, member)
				break
			}
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	if email := MemberEmail(m); email != "" {
		for _, member := range candidates {
			if personEmail(member.Person, email) != nil {
				return member
			}
		}
	}
	if phone := MemberPhone(m); phone != "" {
		for _, member := range candidates {
			if personPhone(member.Person, phone) != nil {
				return member
			}
		}
	}
	return candidates[0]
}

// MatchChild resolves a CHILD-typed feed member against the party's child
// records by name only.
func MatchChild(children []*models.AdditionalInfo, m RawMember) *models.AdditionalInfo {
	fullName := BuildFullName(m)
	for _, child := range children {
		info := child.DecodeChild()
		if SameName(info.FullName, fullName) {
			return child
		}
	}
	return nil
}
