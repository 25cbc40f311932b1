package leasesync

import (
	"testing"

	"bitbucket.org/mmdatafocus/leasing_backend/models"
)

func storedPet(t *testing.T, info models.PetInfo) *models.AdditionalInfo {
	t.Helper()
	record := &models.AdditionalInfo{Type: models.AdditionalInfoTypePet}
	if err := record.EncodeInfo(info); err != nil {
		t.Fatal(err)
	}
	return record
}

func storedVehicle(t *testing.T, info models.VehicleInfo) *models.AdditionalInfo {
	t.Helper()
	record := &models.AdditionalInfo{Type: models.AdditionalInfoTypeVehicle}
	if err := record.EncodeInfo(info); err != nil {
		t.Fatal(err)
	}
	return record
}

func TestPetSetChanged(t *testing.T) {
	stored := []*models.AdditionalInfo{
		storedPet(t, models.PetInfo{Name: "Rex", PetType: "Dog", Breed: "Lab"}),
		storedPet(t, models.PetInfo{Name: "Mia", PetType: "Cat"}),
	}

	// same records, different order
	feed := []RawPet{
		{Name: "mia", Type: "CAT"},
		{Name: "REX", Type: "dog", Breed: "Lab"},
	}
	if petSetChanged(stored, feed) {
		t.Fatal("identical set in different order must not count as changed")
	}

	// detail change on an existing pet
	feed[1].Breed = "Poodle"
	if !petSetChanged(stored, feed) {
		t.Fatal("breed change must be detected")
	}

	// removal
	if !petSetChanged(stored, feed[:1]) {
		t.Fatal("removal must be detected")
	}

	// addition
	feed = append(feed, RawPet{Name: "Blu", Type: "Bird"})
	if !petSetChanged(stored, feed) {
		t.Fatal("addition must be detected")
	}
}

func TestPetSetChanged_DuplicateFeedKeyDoesNotMaskRemoval(t *testing.T) {
	stored := []*models.AdditionalInfo{
		storedPet(t, models.PetInfo{Name: "Rex", PetType: "Dog"}),
		storedPet(t, models.PetInfo{Name: "Mia", PetType: "Cat"}),
	}

	// Mia is gone but the feed repeats Rex, so the raw lengths still agree
	feed := []RawPet{
		{Name: "Rex", Type: "Dog"},
		{Name: "rex", Type: "DOG"},
	}
	if !petSetChanged(stored, feed) {
		t.Fatal("a repeated feed record must not hide a removed pet")
	}
}

func TestVehicleSetChanged_DuplicateFeedKeyDoesNotMaskRemoval(t *testing.T) {
	stored := []*models.AdditionalInfo{
		storedVehicle(t, models.VehicleInfo{LicensePlate: "ABC123", State: "TX"}),
		storedVehicle(t, models.VehicleInfo{LicensePlate: "XYZ789", State: "TX"}),
	}

	feed := []RawVehicle{
		{LicensePlate: "ABC123", State: "TX"},
		{LicensePlate: "abc123", State: "tx"},
	}
	if !vehicleSetChanged(stored, feed) {
		t.Fatal("a repeated feed record must not hide a removed vehicle")
	}
}

func TestVehicleSetChanged(t *testing.T) {
	stored := []*models.AdditionalInfo{
		storedVehicle(t, models.VehicleInfo{LicensePlate: "ABC123", State: "TX", Make: "Toyota", Color: "Blue"}),
	}

	feed := []RawVehicle{{LicensePlate: "abc123", State: "tx", Make: "Toyota", Color: "Blue"}}
	if vehicleSetChanged(stored, feed) {
		t.Fatal("plate matching is case-insensitive")
	}

	feed[0].Color = "Red"
	if !vehicleSetChanged(stored, feed) {
		t.Fatal("color change must be detected")
	}

	feed[0] = RawVehicle{LicensePlate: "XYZ789", State: "TX"}
	if !vehicleSetChanged(stored, feed) {
		t.Fatal("replaced vehicle must be detected")
	}
}
