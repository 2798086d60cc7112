// controllers/lifecycle.go
package controllers

import (
	"net/http"
	"os"

	"desupply-backend/services"
	"desupply-backend/utils"

	"github.com/gin-gonic/gin"
)

type LifecycleController struct {
	Engine     *services.FundingEngine
	Reputation *services.ReputationService
	Assets     services.AssetLedger
}

type FundInput struct {
	PurchasePrice int64 `json:"purchasePrice" binding:"required"`
}

type FaucetInput struct {
	Address string `json:"address" binding:"required"`
	Amount  int64  `json:"amount" binding:"required,gt=0"`
}

// Accept records the buyer's commitment to pay the invoice at due date.
func (lc *LifecycleController) Accept(c *gin.Context) {
	caller, ok := utils.CallerAddress(c)
	if !ok {
		utils.RespondWithError(c, http.StatusUnauthorized, "Address not found in context")
		return
	}
	tokenID, ok := parseTokenID(c)
	if !ok {
		return
	}

	invoice, err := lc.Engine.Accept(c.Request.Context(), tokenID, caller)
	if err != nil {
		respondLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"tokenId": invoice.TokenID,
		"status":  invoice.Status,
	})
}

// Fund buys the whole invoice at the given purchase price.
func (lc *LifecycleController) Fund(c *gin.Context) {
	caller, ok := utils.CallerAddress(c)
	if !ok {
		utils.RespondWithError(c, http.StatusUnauthorized, "Address not found in context")
		return
	}
	tokenID, ok := parseTokenID(c)
	if !ok {
		return
	}

	var input FundInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	position, err := lc.Engine.Fund(c.Request.Context(), tokenID, caller, input.PurchasePrice)
	if err != nil {
		respondLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"position": position,
	})
}

// Settle pays the recorded funder the invoice's face value.
func (lc *LifecycleController) Settle(c *gin.Context) {
	caller, ok := utils.CallerAddress(c)
	if !ok {
		utils.RespondWithError(c, http.StatusUnauthorized, "Address not found in context")
		return
	}
	tokenID, ok := parseTokenID(c)
	if !ok {
		return
	}

	position, err := lc.Engine.Settle(c.Request.Context(), tokenID, caller)
	if err != nil {
		respondLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"position": position,
	})
}

// GetReputation returns the identity's score and blacklist flag.
func (lc *LifecycleController) GetReputation(c *gin.Context) {
	score, err := lc.Reputation.Get(c.Request.Context(), c.Param("address"))
	if err != nil {
		utils.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve reputation")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "reputation": score})
}

// GetBalance returns the settlement-currency balance of an address.
func (lc *LifecycleController) GetBalance(c *gin.Context) {
	balance, err := lc.Assets.BalanceOf(c.Request.Context(), c.Param("address"))
	if err != nil {
		utils.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve balance")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "address": c.Param("address"), "balance": balance})
}

// Faucet credits demo balances. Only enabled when ENABLE_FAUCET=true.
func (lc *LifecycleController) Faucet(c *gin.Context) {
	if os.Getenv("ENABLE_FAUCET") != "true" {
		utils.RespondWithError(c, http.StatusForbidden, "Faucet disabled")
		return
	}

	var input FaucetInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	if err := lc.Assets.Mint(c.Request.Context(), input.Address, input.Amount); err != nil {
		respondLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
