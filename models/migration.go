package models

import (
	"log"

	"bitbucket.org/mmdatafocus/leasing_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Property{}, &Inventory{},
		&Party{}, &PartyMember{}, &Person{}, &ContactInfo{},
		&ExternalIdentityLink{}, &ActiveLeaseSnapshot{}, &AdditionalInfo{},
		&PublishedLease{},
		&ImportEntry{}, &ExceptionReport{},
		&ImportConnection{}, &SyncRun{}, &SyncError{},
		&ImportJobProgress{},
		&ActivityLog{}, &ActivityEventRecord{},
		&IdempotencyKey{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
