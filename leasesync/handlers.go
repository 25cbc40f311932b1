package leasesync

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/leasing_backend/config"
	"bitbucket.org/mmdatafocus/leasing_backend/models"
	"bitbucket.org/mmdatafocus/leasing_backend/utils"
)

type TriggerSyncRequest struct {
	PropertyExternalId string `json:"property_external_id" binding:"required"`
	Provider           string `json:"provider" binding:"required"`
	ForceSync          bool   `json:"force_sync"`
}

type IgnoreExceptionRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// TriggerSyncHandler queues an import run for one property. Returns 409 when
// the property is currently locked by a running import.
func TriggerSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := resolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req TriggerSyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)

		conn, err := models.GetImportConnection(ctx, tenantId, req.Provider)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil {
			c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("%s is not connected", req.Provider)})
			return
		}

		// probe the property lock so the caller gets an immediate conflict
		// instead of a queued run that sits behind a running one
		lock, err := utils.ObtainPropertyLock(ctx, req.PropertyExternalId, 5*time.Second, "leasesync", "TriggerSyncHandler")
		if err != nil {
			if errors.Is(err, utils.ErrPropertyLocked) {
				c.JSON(http.StatusConflict, gin.H{"error": "an import is already running for this property"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		_ = lock.Release(ctx)

		run := models.SyncRun{
			TenantId:           tenantId,
			ConnectionId:       conn.ID,
			Provider:           conn.Provider,
			PropertyExternalId: req.PropertyExternalId,
			Status:             models.SyncRunStatusQueued,
			TriggeredBy:        models.SyncTriggeredManual,
			ForceSync:          req.ForceSync,
		}
		if err := models.CreateSyncRun(ctx, &run); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		_ = PublishSyncRun(SyncPubSubPayload{
			RunId:              run.ID,
			TenantId:           tenantId,
			PropertyExternalId: req.PropertyExternalId,
			ForceSync:          req.ForceSync,
		})

		c.JSON(http.StatusOK, gin.H{"id": run.ID})
	}
}

func SyncHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := resolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)

		limit, offset := pagination(c)
		runs, err := models.ListSyncRuns(ctx, tenantId, strings.TrimSpace(c.Query("property_external_id")), limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": runs})
	}
}

func RetrySyncRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := resolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}
		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)

		run, err := models.GetSyncRun(ctx, tenantId, uint(id))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		newRun := models.SyncRun{
			TenantId:           tenantId,
			ConnectionId:       run.ConnectionId,
			Provider:           run.Provider,
			PropertyExternalId: run.PropertyExternalId,
			Status:             models.SyncRunStatusQueued,
			TriggeredBy:        models.SyncTriggeredRetry,
			ForceSync:          true,
			ParentRunId:        &run.ID,
		}
		if err := models.CreateSyncRun(ctx, &newRun); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		_ = PublishSyncRun(SyncPubSubPayload{
			RunId:              newRun.ID,
			TenantId:           tenantId,
			PropertyExternalId: newRun.PropertyExternalId,
			ForceSync:          true,
		})

		c.JSON(http.StatusOK, gin.H{"id": newRun.ID})
	}
}

func ListExceptionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := resolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)

		limit, offset := pagination(c)
		unresolvedOnly := strings.TrimSpace(c.Query("unresolved")) == "true"
		reports, err := models.ListExceptionReports(ctx, tenantId,
			strings.TrimSpace(c.Query("property_external_id")), unresolvedOnly, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": reports})
	}
}

func IgnoreExceptionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := resolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
			return
		}

		var req IgnoreExceptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required"})
			return
		}

		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)
		if err := models.IgnoreExceptionReport(ctx, tenantId, id, strings.TrimSpace(req.Reason)); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// ExportExceptionsHandler writes the open exception reports to a spreadsheet,
// archives a copy in the report bucket and streams it back.
func ExportExceptionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := resolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)

		propertyExternalId := strings.TrimSpace(c.Query("property_external_id"))
		reports, err := models.ListExceptionReports(ctx, tenantId, propertyExternalId, true, 200, 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		f := excelize.NewFile()
		sheet := "Exceptions"
		f.SetSheetName("Sheet1", sheet)
		headers := []string{"ID", "Property", "External ID", "Rule", "Details", "Created At"}
		for i, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			_ = f.SetCellValue(sheet, cell, h)
		}
		for row, report := range reports {
			values := []interface{}{
				report.ID,
				report.PropertyExternalId,
				report.ExternalId,
				string(report.RuleId),
				string(report.ReportData),
				report.CreatedAt.UTC().Format(time.RFC3339),
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
				_ = f.SetCellValue(sheet, cell, v)
			}
		}

		var buf bytes.Buffer
		if err := f.Write(&buf); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		fileName := fmt.Sprintf("exceptions-%s-%s.xlsx", tenantId, time.Now().UTC().Format("20060102-150405"))
		if err := utils.UploadReportObject(ctx, fileName, bytes.NewReader(buf.Bytes()),
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"); err != nil {
			config.LogError(config.GetLogger(), "leasesync", "ExportExceptionsHandler", "report upload failed", nil, err)
		}

		c.Header("Content-Disposition", "attachment; filename="+fileName)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
	}
}

// PushHandler receives Pub/Sub push deliveries. It always answers 204 for
// payloads that cannot succeed on redelivery and 500 for retryable failures.
func PushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.Status(http.StatusNoContent)
			return
		}
		if err := HandlePushMessage(c.Request.Context(), body); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func resolveTenantID(c *gin.Context) (string, error) {
	username, ok := utils.GetUserNameFromContext(c.Request.Context())
	if !ok || strings.TrimSpace(username) == "" {
		return "", errors.New("unauthorized")
	}

	user, err := models.GetUserByUsername(c.Request.Context(), username)
	if err != nil {
		return "", errors.New("unauthorized")
	}

	requested := strings.TrimSpace(c.Query("tenant_id"))
	if requested != "" {
		if user.Role != models.UserRoleAdmin && user.TenantId != requested {
			return "", errors.New("unauthorized")
		}
		return requested, nil
	}
	if user.TenantId == "" {
		return "", errors.New("tenant_id is required")
	}
	return user.TenantId, nil
}

func pagination(c *gin.Context) (limit int, offset int) {
	limit = 20
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := strings.TrimSpace(c.Query("offset")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
