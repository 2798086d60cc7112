package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"desupply-backend/models"
	"desupply-backend/utils"

	"github.com/gin-gonic/gin"
)

// respondLedgerError maps the typed ledger errors onto HTTP statuses.
func respondLedgerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInsufficientBalance):
		utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrUnauthorized),
		errors.Is(err, models.ErrBlacklisted):
		utils.RespondWithError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, models.ErrNotFound):
		utils.RespondWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrDuplicateInvoice),
		errors.Is(err, models.ErrAlreadyRegistered),
		errors.Is(err, models.ErrInvalidState):
		utils.RespondWithError(c, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrTransferTimeout):
		utils.RespondWithError(c, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, models.ErrTransferFailed):
		utils.RespondWithError(c, http.StatusBadGateway, err.Error())
	default:
		utils.RespondWithError(c, http.StatusInternalServerError, "Internal server error")
	}
}

func parseTokenID(c *gin.Context) (uint64, bool) {
	tokenID, err := strconv.ParseUint(c.Param("tokenId"), 10, 64)
	if err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid token ID format")
		return 0, false
	}
	return tokenID, true
}

// parseDate accepts yyyy-mm-dd or RFC3339.
func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// statusVector is the five-flag lifecycle view exposed to dashboards,
// derived from the single status field.
func statusVector(status string) gin.H {
	order := map[string]int{
		models.StatusRegistered:    1,
		models.StatusBuyerAccepted: 2,
		models.StatusFunded:        3,
		models.StatusSettled:       4,
	}
	rank := order[status]
	return gin.H{
		"registered":    rank >= 1 || status == models.StatusDefaulted,
		"buyerAccepted": rank >= 2 || status == models.StatusDefaulted,
		"funded":        rank >= 3 || status == models.StatusDefaulted,
		"settled":       rank >= 4,
		"defaulted":     status == models.StatusDefaulted,
	}
}
