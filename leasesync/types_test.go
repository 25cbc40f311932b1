package leasesync

import (
	"bytes"
	"testing"
)

func TestSortMembersPrimaryFirst(t *testing.T) {
	members := []RawMember{
		{Id: "r2"},
		{Id: "r3"},
		{Id: "r1"},
		{Id: "r4"},
	}
	sorted := SortMembersPrimaryFirst(members, "r1")
	if sorted[0].Id != "r1" {
		t.Fatalf("expected primary first, got %s", sorted[0].Id)
	}
	// remaining members keep feed order
	if sorted[1].Id != "r2" || sorted[2].Id != "r3" || sorted[3].Id != "r4" {
		t.Fatalf("expected stable order for roommates, got %+v", sorted)
	}
	// input untouched
	if members[0].Id != "r2" {
		t.Fatal("input slice must not be mutated")
	}
}

func TestNormalizeRawJSON_Stable(t *testing.T) {
	a := []byte(`{"b":2,"a":1,"nested":{"y":true,"x":false}}`)
	b := []byte(`{"a":1,"nested":{"x":false,"y":true},"b":2}`)
	if !bytes.Equal(NormalizeRawJSON(a), NormalizeRawJSON(b)) {
		t.Fatal("equivalent payloads must normalize identically")
	}
}

func TestNormalizeRawJSON_PassesThroughInvalid(t *testing.T) {
	in := []byte(`not json`)
	if !bytes.Equal(NormalizeRawJSON(in), in) {
		t.Fatal("invalid payloads are returned untouched")
	}
}

func TestDecodeImportSettings_Defaults(t *testing.T) {
	settings := DecodeImportSettings(nil)
	if settings.APIPageSize != 100 {
		t.Fatalf("expected default page size 100, got %d", settings.APIPageSize)
	}
	settings = DecodeImportSettings([]byte(`{"api_page_size":25,"processes_pets_and_vehicles":true}`))
	if settings.APIPageSize != 25 || !settings.ProcessesPetsAndVehicles {
		t.Fatalf("unexpected settings: %+v", settings)
	}
}
