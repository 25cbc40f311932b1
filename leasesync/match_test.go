package leasesync

import (
	"testing"

	"bitbucket.org/mmdatafocus/leasing_backend/models"
)

func TestCleanName(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"José García", "Jose Garcia"},
		{"Mary (Molly) Smith", "Mary Smith"},
		{"John Smith Jr2", "John Smith Jr"},
		{"  Anna   Lee  ", "Anna Lee"},
		{"O'Brien-Kelly", "O'Brien-Kelly"},
		{"Renée D'Arcy (unit 4B)", "Renee D'Arcy"},
	}
	for _, tc := range cases {
		if got := CleanName(tc.in); got != tc.expected {
			t.Fatalf("CleanName(%q) expected %q, got %q", tc.in, tc.expected, got)
		}
	}
}

func TestSameName(t *testing.T) {
	cases := []struct {
		a, b     string
		expected bool
	}{
		{"José García", "jose garcia", true},
		{"Mary (Molly) Smith", "MARY SMITH", true},
		{"John Smith", "Jane Smith", false},
		{"", "John Smith", false},
		{"John Smith", "", false},
	}
	for _, tc := range cases {
		if got := SameName(tc.a, tc.b); got != tc.expected {
			t.Fatalf("SameName(%q, %q) expected %v, got %v", tc.a, tc.b, tc.expected, got)
		}
	}
}

func TestBuildFullName(t *testing.T) {
	m := RawMember{FirstName: "John", MiddleInitial: "Q", LastName: "Smith"}
	if got := BuildFullName(m); got != "John Q Smith" {
		t.Fatalf("expected 'John Q Smith', got %q", got)
	}
	m = RawMember{FirstName: " John ", LastName: "Smith"}
	if got := BuildFullName(m); got != "John Smith" {
		t.Fatalf("expected 'John Smith', got %q", got)
	}
}

func personWith(name string, contacts ...models.ContactInfo) *models.Person {
	return &models.Person{FullName: name, ContactInfos: contacts}
}

func email(v string) models.ContactInfo {
	return models.ContactInfo{Type: models.ContactInfoTypeEmail, Value: v}
}

func phone(v string) models.ContactInfo {
	return models.ContactInfo{Type: models.ContactInfoTypePhone, Value: v}
}

func TestIsSamePerson_EmailAloneIsDecisive(t *testing.T) {
	p := personWith("Completely Different", email("jane@example.com"))
	m := RawMember{FirstName: "Jane", LastName: "Doe", Email: "jane@example.com"}
	if !MatchPersonToMember(p, m).IsSamePerson() {
		t.Fatal("expected email match to be decisive")
	}
}

func TestIsSamePerson_NameAloneIsNotEnough(t *testing.T) {
	p := personWith("Jane Doe")
	m := RawMember{FirstName: "Jane", LastName: "Doe"}
	if MatchPersonToMember(p, m).IsSamePerson() {
		t.Fatal("name match without phone must not identify a person")
	}
}

func TestIsSamePerson_NamePlusPhone(t *testing.T) {
	p := personWith("Jane Doe", phone("+12025550123"))
	m := RawMember{FirstName: "Jane", LastName: "Doe", Phone: "(202) 555-0123"}
	if !MatchPersonToMember(p, m).IsSamePerson() {
		t.Fatal("expected name plus phone to identify the person")
	}
}

func TestMatchMemberInParty_EmailDisambiguatesNamesakes(t *testing.T) {
	first := &models.PartyMember{ID: 1, Person: personWith("Jane Doe", email("other@example.com"))}
	second := &models.PartyMember{ID: 2, Person: personWith("Jane Doe", email("jane@example.com"))}
	members := []*models.PartyMember{first, second}

	m := RawMember{FirstName: "Jane", LastName: "Doe", Email: "jane@example.com"}
	got := MatchMemberInParty(members, m)
	if got == nil || got.ID != 2 {
		t.Fatalf("expected email to pick between namesakes, got %+v", got)
	}
}

func TestMatchMemberInParty_EmailAloneDoesNotMatch(t *testing.T) {
	byEmail := &models.PartyMember{ID: 1, Person: personWith("Janet Dole", email("jane@example.com"))}
	members := []*models.PartyMember{byEmail}

	m := RawMember{FirstName: "Jane", LastName: "Doe", Email: "jane@example.com"}
	if got := MatchMemberInParty(members, m); got != nil {
		t.Fatalf("a shared email on a different name must not match, got %+v", got)
	}
}

func TestMatchMemberInParty_PhoneDisambiguatesNamesakes(t *testing.T) {
	first := &models.PartyMember{ID: 1, Person: personWith("Jane Doe")}
	second := &models.PartyMember{ID: 2, Person: personWith("Jane Doe", phone("+12025550123"))}
	members := []*models.PartyMember{first, second}

	m := RawMember{FirstName: "Jane", LastName: "Doe", Phone: "(202) 555-0123"}
	got := MatchMemberInParty(members, m)
	if got == nil || got.ID != 2 {
		t.Fatalf("expected phone to pick between namesakes, got %+v", got)
	}
}

func TestMatchMemberInParty_MiddleInitialVariant(t *testing.T) {
	stored := &models.PartyMember{ID: 1, Person: personWith("Jane Doe")}
	members := []*models.PartyMember{stored}

	m := RawMember{FirstName: "Jane", MiddleInitial: "Q", LastName: "Doe"}
	got := MatchMemberInParty(members, m)
	if got == nil || got.ID != 1 {
		t.Fatalf("expected match without the middle initial, got %+v", got)
	}
}

func TestMatchMemberInParty_FirstCandidateWinsOnTie(t *testing.T) {
	first := &models.PartyMember{ID: 1, Person: personWith("Jane Doe")}
	second := &models.PartyMember{ID: 2, Person: personWith("Jane Doe")}
	members := []*models.PartyMember{first, second}

	m := RawMember{FirstName: "Jane", LastName: "Doe", Email: "other@example.com"}
	got := MatchMemberInParty(members, m)
	if got == nil || got.ID != 1 {
		t.Fatalf("expected the first name candidate on a tie, got %+v", got)
	}
}

func TestMatchMemberInParty_NoMatch(t *testing.T) {
	members := []*models.PartyMember{
		{ID: 1, Person: personWith("Jane Doe")},
	}
	m := RawMember{FirstName: "Bob", LastName: "Ross", Email: "bob@example.com"}
	if got := MatchMemberInParty(members, m); got != nil {
		t.Fatalf("expected no match, got %+v", got)
	}
}

func TestMatchChild(t *testing.T) {
	child := &models.AdditionalInfo{Type: models.AdditionalInfoTypeChild}
	if err := child.EncodeInfo(models.ChildInfo{FullName: "Timmy Doe"}); err != nil {
		t.Fatal(err)
	}
	children := []*models.AdditionalInfo{child}

	m := RawMember{FirstName: "Timmy", LastName: "Doe", Type: "CHILD"}
	if got := MatchChild(children, m); got == nil {
		t.Fatal("expected child name match")
	}
	m = RawMember{FirstName: "Tommy", LastName: "Doe", Type: "CHILD"}
	if got := MatchChild(children, m); got != nil {
		t.Fatal("expected no child match for different name")
	}
}

func TestMemberEmailValidation(t *testing.T) {
	if got := MemberEmail(RawMember{Email: "not-an-email"}); got != "" {
		t.Fatalf("expected invalid email to be dropped, got %q", got)
	}
	if got := MemberEmail(RawMember{Email: " Jane@Example.COM "}); got != "jane@example.com" {
		t.Fatalf("expected lowercased trimmed email, got %q", got)
	}
}
