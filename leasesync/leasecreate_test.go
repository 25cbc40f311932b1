package leasesync

import (
	"encoding/json"
	"testing"

	"bitbucket.org/mmdatafocus/leasing_backend/models"
)

func TestSplitCharges(t *testing.T) {
	raw := []RawCharge{
		{Code: models.BaseRentChargeCode, Amount: json.Number("1500")},
		{Code: "PRK", Amount: json.Number("75"), Description: "Parking"},
		{Code: "PET", Amount: json.Number("50")},
		{Code: "CONC", Amount: json.Number("-100"), Description: "Move-in special"},
		{Code: "ZRO", Amount: json.Number("0")},
		{Code: "BAD", Amount: json.Number("oops")},
	}

	recurring, concessions := splitCharges(raw, "UTC")
	if len(recurring) != 2 {
		t.Fatalf("expected 2 recurring charges, got %d", len(recurring))
	}
	for _, c := range recurring {
		if c.Code == models.BaseRentChargeCode {
			t.Fatal("base rent must not appear in recurring charges")
		}
	}
	if len(concessions) != 1 || concessions[0].Code != "CONC" {
		t.Fatalf("expected the negative charge as a concession, got %+v", concessions)
	}
	if !concessions[0].Amount.IsNegative() {
		t.Fatal("concession amount keeps its sign")
	}
}

func TestLeaseDataFromRaw_MonthToMonth(t *testing.T) {
	raw := baseRawEntry()
	raw.LeaseTerm = strRef("Month-To-Month")

	data := leaseDataFromRaw(raw, "UTC")
	if !data.RolloverPeriod {
		t.Fatal("expected month-to-month to set the rollover period")
	}
	if data.LeaseTerm != "Month-To-Month" {
		t.Fatalf("term text must be preserved, got %q", data.LeaseTerm)
	}
}

func TestIsCorporateEntry(t *testing.T) {
	raw := RawEntry{
		PrimaryExternalId: "c0001",
		Members: []RawMember{
			{Id: "c0001", LastName: "Acme Holdings LLC"},
			{Id: "r0002", FirstName: "Jane", LastName: "Doe"},
		},
	}
	isCorp, name := isCorporateEntry(raw)
	if !isCorp || name != "Acme Holdings LLC" {
		t.Fatalf("expected corporate entry with company name, got %v %q", isCorp, name)
	}

	raw.Members[0].FirstName = "John"
	if isCorp, _ := isCorporateEntry(raw); isCorp {
		t.Fatal("a primary with a first name is a person, not a company")
	}

	raw.Members[0].Type = "CORPORATE"
	if isCorp, _ := isCorporateEntry(raw); !isCorp {
		t.Fatal("explicit corporate type must be recognized")
	}
}
