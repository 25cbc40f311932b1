package leasesync

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/leasing_backend/config"
	"bitbucket.org/mmdatafocus/leasing_backend/models"
	"bitbucket.org/mmdatafocus/leasing_backend/utils"
)

type ConnectRequest struct {
	Provider      string          `json:"provider" binding:"required"`
	RetrievalMode string          `json:"retrieval_mode" binding:"required"`
	APIKey        string          `json:"api_key"`
	Settings      *ImportSettings `json:"settings"`
}

type UpdateSettingsRequest struct {
	Provider string         `json:"provider" binding:"required"`
	Settings ImportSettings `json:"settings"`
}

type ConnectionResponse struct {
	Status            string          `json:"status"`
	Provider          string          `json:"provider,omitempty"`
	RetrievalMode     string          `json:"retrieval_mode,omitempty"`
	LastSyncAt        *time.Time      `json:"last_sync_at,omitempty"`
	LastSuccessSyncAt *time.Time      `json:"last_success_sync_at,omitempty"`
	Settings          *ImportSettings `json:"settings,omitempty"`
}

// getAnyConnection loads a connection regardless of status; management
// endpoints need to see disconnected rows too.
func getAnyConnection(db *gorm.DB, tenantId string, provider string) (*models.ImportConnection, error) {
	var conn models.ImportConnection
	err := db.Where("tenant_id = ? AND provider = ?", tenantId, provider).First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := resolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		provider := strings.TrimSpace(c.Query("provider"))
		if provider == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "provider is required"})
			return
		}

		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)
		db := config.GetDB().WithContext(ctx)

		conn, err := getAnyConnection(db, tenantId, provider)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil {
			c.JSON(http.StatusOK, ConnectionResponse{Status: models.ConnectionStatusDisconnected})
			return
		}

		settings := DecodeImportSettings(conn.SettingsJSON)
		c.JSON(http.StatusOK, ConnectionResponse{
			Status:            conn.Status,
			Provider:          conn.Provider,
			RetrievalMode:     conn.RetrievalMode,
			LastSyncAt:        conn.LastSyncAt,
			LastSuccessSyncAt: conn.LastSuccessSyncAt,
			Settings:          &settings,
		})
	}
}

func ConnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := resolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req ConnectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.RetrievalMode != models.RetrievalModeAPI && req.RetrievalMode != models.RetrievalModeFeed {
			c.JSON(http.StatusBadRequest, gin.H{"error": "retrieval_mode must be api or feed"})
			return
		}
		if req.RetrievalMode == models.RetrievalModeAPI && strings.TrimSpace(req.APIKey) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "api_key is required for api retrieval"})
			return
		}

		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)
		db := config.GetDB().WithContext(ctx)

		conn, err := getAnyConnection(db, tenantId, req.Provider)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		settings := defaultImportSettings()
		if req.Settings != nil {
			settings = *req.Settings
		}
		settingsJSON, _ := json.Marshal(settings)
		now := time.Now()

		if conn == nil {
			conn = &models.ImportConnection{
				TenantId:      tenantId,
				Provider:      req.Provider,
				Status:        models.ConnectionStatusConnected,
				RetrievalMode: req.RetrievalMode,
				AuthType:      "api_key",
				AuthSecretRef: req.APIKey,
				SettingsJSON:  settingsJSON,
				UpdatedAt:     now,
			}
			if err := db.Create(conn).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		} else {
			update := map[string]interface{}{
				"status":          models.ConnectionStatusConnected,
				"retrieval_mode":  req.RetrievalMode,
				"auth_type":       "api_key",
				"auth_secret_ref": req.APIKey,
				"updated_at":      now,
			}
			if len(conn.SettingsJSON) == 0 || req.Settings != nil {
				update["settings_json"] = settingsJSON
			}
			if err := db.Model(conn).Updates(update).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func DisconnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := resolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		provider := strings.TrimSpace(c.Query("provider"))
		if provider == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "provider is required"})
			return
		}

		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)
		db := config.GetDB().WithContext(ctx)

		conn, err := getAnyConnection(db, tenantId, provider)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil {
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}

		if err := db.Model(conn).Updates(map[string]interface{}{
			"status":          models.ConnectionStatusDisconnected,
			"auth_secret_ref": "",
			"updated_at":      time.Now(),
		}).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func UpdateSettingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := resolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req UpdateSettingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		ctx := utils.SetTenantIdInContext(c.Request.Context(), tenantId)
		db := config.GetDB().WithContext(ctx)

		conn, err := getAnyConnection(db, tenantId, req.Provider)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
			return
		}

		settingsJSON, _ := json.Marshal(req.Settings)
		if err := db.Model(conn).Updates(map[string]interface{}{
			"settings_json": settingsJSON,
			"updated_at":    time.Now(),
		}).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
