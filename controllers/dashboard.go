package controllers

import (
	"net/http"
	"time"

	"desupply-backend/models"
	"desupply-backend/services"
	"desupply-backend/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type DashboardController struct {
	DB         *gorm.DB
	Reputation *services.ReputationService
}

type DashboardOverview struct {
	Role           string                  `json:"role"`
	TotalInvoices  int64                   `json:"totalInvoices"`
	ByStatus       map[string]int64        `json:"byStatus"`
	TotalFaceValue int64                   `json:"totalFaceValue"`
	DueSoon        int64                   `json:"dueSoon"`
	OpenPositions  int64                   `json:"openPositions"`
	Reputation     *models.ReputationScore `json:"reputation"`
}

// GetOverview returns role-aware counts over the caller's side of the
// ledger: invoices it supplied, owes, or funded.
func (dc *DashboardController) GetOverview(c *gin.Context) {
	address, ok := utils.CallerAddress(c)
	if !ok {
		utils.RespondWithError(c, http.StatusUnauthorized, "Address not found in context")
		return
	}

	role, _ := c.Get("role")
	roleName, _ := role.(string)

	scoped := func() *gorm.DB {
		q := dc.DB.Model(&models.Invoice{})
		switch roleName {
		case models.RoleBuyer:
			return q.Where("buyer = ?", address)
		case models.RoleLender:
			return q.Where("token_id IN (?)",
				dc.DB.Model(&models.FundingPosition{}).Select("token_id").Where("funder = ?", address))
		default:
			return q.Where("supplier = ?", address)
		}
	}

	overview := DashboardOverview{Role: roleName, ByStatus: map[string]int64{}}

	scoped().Count(&overview.TotalInvoices)
	scoped().Select("COALESCE(SUM(face_value), 0)").Scan(&overview.TotalFaceValue)

	type statusCount struct {
		Status string
		Count  int64
	}
	var counts []statusCount
	scoped().Select("status, COUNT(*) as count").Group("status").Scan(&counts)
	for _, sc := range counts {
		overview.ByStatus[sc.Status] = sc.Count
	}

	cutoff := time.Now().AddDate(0, 0, 7)
	scoped().
		Where("status = ? AND due_date <= ?", models.StatusFunded, cutoff).
		Count(&overview.DueSoon)

	if roleName == models.RoleLender {
		dc.DB.Model(&models.FundingPosition{}).
			Where("funder = ? AND status = ?", address, models.PositionFunded).
			Count(&overview.OpenPositions)
	}

	if score, err := dc.Reputation.Get(c.Request.Context(), address); err == nil {
		overview.Reputation = score
	}

	c.JSON(http.StatusOK, overview)
}
