// seed-demo-property bootstraps a local environment: an admin user, a demo
// property with a handful of units and a feed-mode connection, so a sync run
// can be triggered right away.
//
// Usage:
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//     go run ./cmd/seed-demo-property --tenant-id demo
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/leasing_backend/config"
	"bitbucket.org/mmdatafocus/leasing_backend/models"
	"bitbucket.org/mmdatafocus/leasing_backend/utils"
)

const (
	adminUsername = "leasingAdmin"
	adminPassword = "Le@singAdmin"
	adminName     = "Leasing Admin"
)

func main() {
	tenantID := flag.String("tenant-id", "demo", "tenant to seed")
	propertyID := flag.String("property", "P100", "property external id")
	provider := flag.String("provider", models.ImportProviderYardi, "provider for the seeded connection")
	units := flag.Int("units", 10, "number of units to create")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx := utils.SetTenantIdInContext(context.Background(), *tenantID)
	ctx = utils.SetUserNameInContext(ctx, "Seed")

	seedAdmin(ctx, db, *tenantID)
	seedProperty(ctx, db, *tenantID, *propertyID, *units)
	seedConnection(ctx, db, *tenantID, *provider)

	fmt.Printf("seeded tenant %q: property %q (%d units), %s connection, admin user %q\n",
		*tenantID, *propertyID, *units, *provider, adminUsername)
}

func seedAdmin(ctx context.Context, db *gorm.DB, tenantID string) {
	hashed, err := utils.HashPassword(adminPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	var existing models.User
	err = db.WithContext(ctx).Where("username = ?", adminUsername).First(&existing).Error
	if err == nil {
		if err := db.WithContext(ctx).Model(&models.User{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
			"password":  hashed,
			"tenant_id": tenantID,
			"is_active": utils.NewTrue(),
			"role":      models.UserRoleAdmin,
		}).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if err != gorm.ErrRecordNotFound {
		fmt.Fprintf(os.Stderr, "failed to lookup admin user: %v\n", err)
		os.Exit(1)
	}

	user := models.User{
		TenantId: tenantID,
		Username: adminUsername,
		Name:     adminName,
		Password: hashed,
		IsActive: utils.NewTrue(),
		Role:     models.UserRoleAdmin,
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
		os.Exit(1)
	}
}

func seedProperty(ctx context.Context, db *gorm.DB, tenantID, propertyExternalID string, units int) {
	var property models.Property
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND external_id = ?", tenantID, propertyExternalID).
		First(&property).Error
	if err == gorm.ErrRecordNotFound {
		property = models.Property{
			TenantId:   tenantID,
			ExternalId: propertyExternalID,
			Name:       "Demo Property " + propertyExternalID,
			Timezone:   "America/Chicago",
		}
		if err := db.WithContext(ctx).Create(&property).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create property: %v\n", err)
			os.Exit(1)
		}
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "failed to lookup property: %v\n", err)
		os.Exit(1)
	}

	for i := 1; i <= units; i++ {
		unit := fmt.Sprintf("%d", 100+i)
		externalID := models.BuildInventoryExternalId(propertyExternalID, "", unit)
		var count int64
		db.WithContext(ctx).Model(&models.Inventory{}).
			Where("tenant_id = ? AND external_id = ?", tenantID, externalID).
			Count(&count)
		if count > 0 {
			continue
		}
		inv := models.Inventory{
			TenantId:   tenantID,
			PropertyId: property.ID,
			ExternalId: externalID,
			UnitName:   unit,
		}
		if err := db.WithContext(ctx).Create(&inv).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create unit %s: %v\n", unit, err)
			os.Exit(1)
		}
	}
}

func seedConnection(ctx context.Context, db *gorm.DB, tenantID, provider string) {
	var conn models.ImportConnection
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND provider = ?", tenantID, provider).
		First(&conn).Error
	if err == nil {
		if err := db.WithContext(ctx).Model(&conn).Updates(map[string]interface{}{
			"status": models.ConnectionStatusConnected,
		}).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to reconnect: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if err != gorm.ErrRecordNotFound {
		fmt.Fprintf(os.Stderr, "failed to lookup connection: %v\n", err)
		os.Exit(1)
	}

	prefix := strings.TrimSpace(os.Getenv("FEED_OBJECT_PREFIX"))
	if prefix == "" {
		prefix = "feeds"
	}
	conn = models.ImportConnection{
		TenantId:      tenantID,
		Provider:      provider,
		Status:        models.ConnectionStatusConnected,
		RetrievalMode: models.RetrievalModeFeed,
		SettingsJSON:  []byte(fmt.Sprintf(`{"feed_object_prefix":%q,"processes_pets_and_vehicles":true}`, prefix)),
	}
	if err := db.WithContext(ctx).Create(&conn).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to create connection: %v\n", err)
		os.Exit(1)
	}
}
