package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"sponsor-engagement-api/config"
	"sponsor-engagement-api/models"
	"sponsor-engagement-api/services"

	"github.com/gin-gonic/gin"
)

// POST /api/v1/sync/run
// Runs one registry sync synchronously and returns the summary. A run already
// holding the advisory lock yields 409.
func RunRegistrySync(c *gin.Context) {
	registryCfg, err := config.LoadRegistryConfig()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": err.Error()})
		return
	}

	registry := services.NewRegistryClient(registryCfg, nil, config.DB)
	job := services.NewRegistrySyncJobService(nil, registry)

	summary, err := job.Run(c.Request.Context(), &services.RegistrySyncInput{
		TriggerSource: "api",
		ReportEmail:   strings.TrimSpace(c.Query("report_email")),
	})
	if err != nil {
		if errors.Is(err, services.ErrRegistrySyncAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": summary.ErrorMessage == "", "summary": summary})
}

// GET /api/v1/sync/runs?limit=20
func GetRegistrySyncRuns(c *gin.Context) {
	limit := 20
	if limStr := strings.TrimSpace(c.Query("limit")); limStr != "" {
		if lim, err := strconv.Atoi(limStr); err == nil && lim > 0 && lim <= 200 {
			limit = lim
		}
	}

	var runs []models.RegistrySyncRun
	if err := config.DB.Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to fetch sync runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "runs": runs})
}
