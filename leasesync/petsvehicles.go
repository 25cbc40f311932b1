package leasesync

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/leasing_backend/models"
	"gorm.io/gorm"
)

// Pets and vehicles are diffed as sets: the natural key identifies a record,
// the fingerprint decides whether its details changed.

func petKey(name, petType string) string {
	return strings.ToUpper(strings.TrimSpace(name)) + "|" + strings.ToUpper(strings.TrimSpace(petType))
}

func petFingerprint(p models.PetInfo) string {
	return strings.Join([]string{p.Breed, p.Weight, p.Sex, boolMark(p.IsServiceAnimal)}, "|")
}

func vehicleKey(plate, state string) string {
	return strings.ToUpper(strings.TrimSpace(plate)) + "|" + strings.ToUpper(strings.TrimSpace(state))
}

func vehicleFingerprint(v models.VehicleInfo) string {
	return strings.Join([]string{v.Make, v.Model, v.Color, v.Year}, "|")
}

func boolMark(b bool) string {
	if b {
		return "1"
	}
	return ""
}

func petInfoFromRaw(p RawPet) models.PetInfo {
	return models.PetInfo{
		Name:            p.Name,
		PetType:         p.Type,
		Breed:           p.Breed,
		Weight:          p.Weight,
		Sex:             p.Sex,
		IsServiceAnimal: p.IsServiceAnimal,
	}
}

func vehicleInfoFromRaw(v RawVehicle) models.VehicleInfo {
	return models.VehicleInfo{
		LicensePlate: v.LicensePlate,
		State:        v.State,
		Make:         v.Make,
		Model:        v.Model,
		Color:        v.Color,
		Year:         v.Year,
	}
}

// petSetChanged compares the stored pet set against the feed. Both sides are
// keyed first so repeated keys in the feed cannot hide a stored record that
// dropped out of it.
func petSetChanged(stored []*models.AdditionalInfo, feed []RawPet) bool {
	storedByKey := map[string]models.PetInfo{}
	for _, record := range stored {
		info := record.DecodePet()
		storedByKey[petKey(info.Name, info.PetType)] = info
	}
	feedByKey := map[string]models.PetInfo{}
	for _, p := range feed {
		feedByKey[petKey(p.Name, p.Type)] = petInfoFromRaw(p)
	}
	if len(storedByKey) != len(feedByKey) {
		return true
	}
	for key, info := range feedByKey {
		existing, ok := storedByKey[key]
		if !ok || petFingerprint(existing) != petFingerprint(info) {
			return true
		}
	}
	return false
}

func vehicleSetChanged(stored []*models.AdditionalInfo, feed []RawVehicle) bool {
	storedByKey := map[string]models.VehicleInfo{}
	for _, record := range stored {
		info := record.DecodeVehicle()
		storedByKey[vehicleKey(info.LicensePlate, info.State)] = info
	}
	feedByKey := map[string]models.VehicleInfo{}
	for _, v := range feed {
		feedByKey[vehicleKey(v.LicensePlate, v.State)] = vehicleInfoFromRaw(v)
	}
	if len(storedByKey) != len(feedByKey) {
		return true
	}
	for key, info := range feedByKey {
		existing, ok := storedByKey[key]
		if !ok || vehicleFingerprint(existing) != vehicleFingerprint(info) {
			return true
		}
	}
	return false
}

// reconcilePetsAndVehicles set-diffs the feed's pet and vehicle records
// against storage. During a renewal cycle a changed set is reported instead of
// applied.
func reconcilePetsAndVehicles(ctx context.Context, tx *gorm.DB, ec *entryContext, now time.Time) error {
	if err := reconcilePets(ctx, tx, ec, now); err != nil {
		return err
	}
	return reconcileVehicles(ctx, tx, ec, now)
}

func reconcilePets(ctx context.Context, tx *gorm.DB, ec *entryContext, now time.Time) error {
	party := ec.activeLeaseParty
	stored, err := models.GetActiveAdditionalInfo(ctx, tx, ec.tenantId, party.ID, models.AdditionalInfoTypePet)
	if err != nil {
		return err
	}
	if !petSetChanged(stored, ec.raw.Pets) {
		return nil
	}
	if ec.renewalInProgress() {
		return fileException(ctx, tx, ec, ec.raw.PrimaryExternalId,
			models.ExceptionRulePetsUpdatedAfterRenewalStart,
			map[string]interface{}{"pets": ec.raw.Pets})
	}

	byKey := map[string]*models.AdditionalInfo{}
	for _, record := range stored {
		info := record.DecodePet()
		byKey[petKey(info.Name, info.PetType)] = record
	}
	seen := map[string]bool{}
	for _, p := range ec.raw.Pets {
		key := petKey(p.Name, p.Type)
		seen[key] = true
		info := petInfoFromRaw(p)
		if existing, ok := byKey[key]; ok {
			if petFingerprint(existing.DecodePet()) == petFingerprint(info) {
				continue
			}
			if err := existing.EncodeInfo(info); err != nil {
				return err
			}
			if err := models.UpdateAdditionalInfo(ctx, tx, existing.ID, existing.Info); err != nil {
				return err
			}
			continue
		}
		record := &models.AdditionalInfo{
			TenantId: ec.tenantId,
			PartyId:  party.ID,
			Type:     models.AdditionalInfoTypePet,
		}
		if err := record.EncodeInfo(info); err != nil {
			return err
		}
		if err := models.CreateAdditionalInfo(ctx, tx, record); err != nil {
			return err
		}
	}
	for key, record := range byKey {
		if seen[key] {
			continue
		}
		if err := models.RemoveAdditionalInfo(ctx, tx, ec.tenantId, record.ID, now); err != nil {
			return err
		}
	}
	return nil
}

func reconcileVehicles(ctx context.Context, tx *gorm.DB, ec *entryContext, now time.Time) error {
	party := ec.activeLeaseParty
	stored, err := models.GetActiveAdditionalInfo(ctx, tx, ec.tenantId, party.ID, models.AdditionalInfoTypeVehicle)
	if err != nil {
		return err
	}
	if !vehicleSetChanged(stored, ec.raw.Vehicles) {
		return nil
	}
	if ec.renewalInProgress() {
		return fileException(ctx, tx, ec, ec.raw.PrimaryExternalId,
			models.ExceptionRuleVehiclesUpdatedAfterRenewalStart,
			map[string]interface{}{"vehicles": ec.raw.Vehicles})
	}

	byKey := map[string]*models.AdditionalInfo{}
	for _, record := range stored {
		info := record.DecodeVehicle()
		byKey[vehicleKey(info.LicensePlate, info.State)] = record
	}
	seen := map[string]bool{}
	for _, v := range ec.raw.Vehicles {
		key := vehicleKey(v.LicensePlate, v.State)
		seen[key] = true
		info := vehicleInfoFromRaw(v)
		if existing, ok := byKey[key]; ok {
			if vehicleFingerprint(existing.DecodeVehicle()) == vehicleFingerprint(info) {
				continue
			}
			if err := existing.EncodeInfo(info); err != nil {
				return err
			}
			if err := models.UpdateAdditionalInfo(ctx, tx, existing.ID, existing.Info); err != nil {
				return err
			}
			continue
		}
		record := &models.AdditionalInfo{
			TenantId: ec.tenantId,
			PartyId:  party.ID,
			Type:     models.AdditionalInfoTypeVehicle,
		}
		if err := record.EncodeInfo(info); err != nil {
			return err
		}
		if err := models.CreateAdditionalInfo(ctx, tx, record); err != nil {
			return err
		}
	}
	for key, record := range byKey {
		if seen[key] {
			continue
		}
		if err := models.RemoveAdditionalInfo(ctx, tx, ec.tenantId, record.ID, now); err != nil {
			return err
		}
	}
	return nil
}
