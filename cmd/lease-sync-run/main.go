// lease-sync-run triggers one import run for a property and processes it
// inline, without going through Pub/Sub. Useful for local runs and backfills.
//
// Usage:
//   DB_USER=... DB_PASSWORD=... go run ./cmd/lease-sync-run \
//     --tenant-id t1 --provider yardi --property P100 [--force]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/leasing_backend/config"
	"bitbucket.org/mmdatafocus/leasing_backend/leasesync"
	"bitbucket.org/mmdatafocus/leasing_backend/models"
	"bitbucket.org/mmdatafocus/leasing_backend/utils"
)

func main() {
	tenantID := flag.String("tenant-id", "", "Required: tenant id")
	provider := flag.String("provider", "", "Required: provider (yardi/mri)")
	property := flag.String("property", "", "Required: property external id")
	force := flag.Bool("force", false, "Process entries even when the snapshot is unchanged")
	flag.Parse()

	if strings.TrimSpace(*tenantID) == "" || strings.TrimSpace(*provider) == "" || strings.TrimSpace(*property) == "" {
		fmt.Fprintln(os.Stderr, "--tenant-id, --provider and --property are required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := utils.SetTenantIdInContext(context.Background(), *tenantID)
	ctx = utils.SetUserNameInContext(ctx, "System")

	conn, err := models.GetImportConnection(ctx, *tenantID, *provider)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load connection: %v\n", err)
		os.Exit(1)
	}
	if conn == nil {
		fmt.Fprintf(os.Stderr, "%s is not connected for tenant %s\n", *provider, *tenantID)
		os.Exit(2)
	}

	run := models.SyncRun{
		TenantId:           *tenantID,
		ConnectionId:       conn.ID,
		Provider:           conn.Provider,
		PropertyExternalId: *property,
		Status:             models.SyncRunStatusQueued,
		TriggeredBy:        models.SyncTriggeredManual,
		ForceSync:          *force,
	}
	if err := models.CreateSyncRun(ctx, &run); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create run: %v\n", err)
		os.Exit(1)
	}

	err = leasesync.ProcessSyncRun(ctx, leasesync.SyncPubSubPayload{
		RunId:              run.ID,
		TenantId:           *tenantID,
		PropertyExternalId: *property,
		ForceSync:          *force,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "run %d failed: %v\n", run.ID, err)
		os.Exit(1)
	}

	finished, err := models.GetSyncRun(ctx, *tenantID, run.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run finished but could not be reloaded: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("run %d: status=%s fetched=%d processed=%d skipped=%d failed=%d\n",
		finished.ID, finished.Status, finished.EntriesFetched,
		finished.EntriesProcessed, finished.EntriesSkipped, finished.EntriesFailed)
}
