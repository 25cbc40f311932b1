package leasesync

import (
	"encoding/json"
	"sort"
	"strings"
)

// RawEntry is the normalized shape of one external resident/lease snapshot.
// Both connectors (API and feed) produce this.
type RawEntry struct {
	PrimaryExternalId  string       `json:"primaryExternalId"`
	PropertyExternalId string       `json:"propertyExternalId"`
	Members            []RawMember  `json:"members"`
	LeaseTerm          *string      `json:"leaseTerm"`
	LeaseStartDate     string       `json:"leaseStartDate"`
	LeaseEndDate       string       `json:"leaseEndDate"`
	UnitId             string       `json:"unitId"`
	BuildingId         string       `json:"buildingId"`
	UnitRent           json.Number  `json:"unitRent"`
	RecurringCharges   []RawCharge  `json:"recurringCharges"`
	Pets               []RawPet     `json:"pets"`
	Vehicles           []RawVehicle `json:"vehicles"`
	LeaseVacateDate    string       `json:"leaseVacateDate"`
	LeaseVacateNotificationDate string `json:"leaseVacateNotificationDate"`
	LeaseVacateReason  string       `json:"leaseVacateReason"`
	IsUnderEviction    bool         `json:"isUnderEviction"`
	Status             string       `json:"status"`
	WasExternalRenewalLetterSent  bool   `json:"wasExternalRenewalLetterSent"`
	ExternalRenewalLetterSentDate string `json:"externalRenewalLetterSentDate"`
	// Provider-specific transfer signal (roommate promotion).
	IsPrimarySwitched bool `json:"isPrimarySwitched"`
}

type RawMember struct {
	Id            string `json:"id"`
	Type          string `json:"type"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	MiddleInitial string `json:"middleInitial"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	VacateDate    string `json:"vacateDate"`
}

type RawCharge struct {
	Code        string      `json:"code"`
	Amount      json.Number `json:"amount"`
	StartDate   string      `json:"startDate"`
	EndDate     string      `json:"endDate"`
	Description string      `json:"description"`
}

type RawPet struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Breed   string `json:"breed"`
	Weight  string `json:"weight"`
	Sex     string `json:"sex"`
	IsServiceAnimal bool `json:"isServiceAnimal"`
}

type RawVehicle struct {
	LicensePlate string `json:"licensePlate"`
	State        string `json:"state"`
	Make         string `json:"make"`
	Model        string `json:"model"`
	Color        string `json:"color"`
	Year         string `json:"year"`
}

// DecodeRawEntry tolerates unknown fields; connectors persist the original
// payload untouched and decode on demand.
func DecodeRawEntry(data []byte) (RawEntry, error) {
	var entry RawEntry
	err := json.Unmarshal(data, &entry)
	return entry, err
}

// NormalizeRawJSON re-marshals with sorted keys so byte comparison against
// the previously stored entry is stable across connector runs.
func NormalizeRawJSON(data []byte) []byte {
	var generic map[string]interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return data
	}
	// encoding/json sorts map keys on marshal
	out, err := json.Marshal(generic)
	if err != nil {
		return data
	}
	return out
}

// SortMembersPrimaryFirst orders received members so the primary external id
// is processed before roommates; ties keep feed order.
func SortMembersPrimaryFirst(members []RawMember, primaryExternalId string) []RawMember {
	sorted := make([]RawMember, len(members))
	copy(sorted, members)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Id == primaryExternalId && sorted[j].Id != primaryExternalId
	})
	return sorted
}

func (m RawMember) IsChild() bool {
	return strings.EqualFold(m.Type, "CHILD")
}

func (e RawEntry) IsPastResident() bool {
	return strings.EqualFold(e.Status, "PASTRESIDENT")
}

// SyncPubSubPayload is the trigger message for one property run.
type SyncPubSubPayload struct {
	RunId              uint   `json:"run_id"`
	TenantId           string `json:"tenant_id"`
	PropertyExternalId string `json:"property_external_id"`
	ForceSync          bool   `json:"force_sync"`
	Attempt            int    `json:"attempt"`
}

// ImportSettings is the decoded ImportConnection.SettingsJSON.
type ImportSettings struct {
	FeedObjectPrefix string `json:"feed_object_prefix"`
	APIPageSize      int    `json:"api_page_size"`
	// ProcessesPetsAndVehicles distinguishes providers whose feed carries
	// pet/vehicle records (MRI-style) from those that do not (Yardi-style).
	ProcessesPetsAndVehicles bool `json:"processes_pets_and_vehicles"`
	// SupportsRoommatePromotion enables the primary-switch transfer handling.
	SupportsRoommatePromotion bool `json:"supports_roommate_promotion"`
}

func defaultImportSettings() ImportSettings {
	return DecodeImportSettings(nil)
}

func DecodeImportSettings(data []byte) ImportSettings {
	var settings ImportSettings
	if len(data) > 0 {
		_ = json.Unmarshal(data, &settings)
	}
	if settings.APIPageSize <= 0 {
		settings.APIPageSize = 100
	}
	return settings
}
