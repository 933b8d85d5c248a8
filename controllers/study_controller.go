package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"sponsor-engagement-api/config"
	"sponsor-engagement-api/models"

	"github.com/gin-gonic/gin"
)

// GET /api/v1/studies/due?limit=50&offset=0
// Lists studies currently flagged as due a sponsor assessment.
func GetDueStudies(c *gin.Context) {
	limit := 50
	if limStr := strings.TrimSpace(c.Query("limit")); limStr != "" {
		if lim, err := strconv.Atoi(limStr); err == nil && lim > 0 && lim <= 500 {
			limit = lim
		}
	}
	offset := 0
	if offStr := strings.TrimSpace(c.Query("offset")); offStr != "" {
		if off, err := strconv.Atoi(offStr); err == nil && off >= 0 {
			offset = off
		}
	}

	var total int64
	query := config.DB.Model(&models.Study{}).
		Where("is_due_assessment = ? AND is_deleted = ?", true, false)
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to count studies"})
		return
	}

	var studies []models.Study
	if err := query.Order("cpms_id ASC").Limit(limit).Offset(offset).Find(&studies).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to fetch studies"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "total": total, "studies": studies})
}

// GET /api/v1/studies/:cpms_id
func GetStudyByCpmsID(c *gin.Context) {
	cpmsID, err := strconv.Atoi(strings.TrimSpace(c.Param("cpms_id")))
	if err != nil || cpmsID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid cpms id"})
		return
	}

	var study models.Study
	if err := config.DB.Where("cpms_id = ? AND is_deleted = ?", cpmsID, false).First(&study).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Study not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "study": study})
}
