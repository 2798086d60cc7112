package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"desupply-backend/models"
	"desupply-backend/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type AuthController struct {
	DB *gorm.DB
}

type RegisterInput struct {
	Address     string `json:"address" binding:"required"`
	Role        string `json:"role" binding:"required,oneof=supplier buyer lender"`
	CompanyName string `json:"companyName"`
	PAN         string `json:"pan"`
	GSTIN       string `json:"gstin"`
	Phone       string `json:"phone"`
	Email       string `json:"email" binding:"omitempty,email"`
	Password    string `json:"password" binding:"required,min=8"`
}

type LoginInput struct {
	Address  string `json:"address" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (a *AuthController) Register(c *gin.Context) {
	var input RegisterInput

	// Bind and validate input
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	if input.Phone != "" && !utils.ValidatePhone(input.Phone) {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid phone number")
		return
	}
	if input.Role == models.RoleSupplier && input.GSTIN != "" && !utils.ValidateGSTIN(input.GSTIN) {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid GSTIN")
		return
	}

	address := strings.TrimSpace(input.Address)

	// Check if the address is already registered
	var existingUser models.User
	result := a.DB.Where("address = ?", address).First(&existingUser)

	if result.Error == nil {
		utils.RespondWithError(c, http.StatusConflict, "Address already registered")
		return
	} else if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		utils.RespondWithError(c, http.StatusInternalServerError, "Database error")
		return
	}

	newUser := models.User{
		Address:     address,
		Role:        input.Role,
		CompanyName: input.CompanyName,
		PAN:         input.PAN,
		GSTIN:       input.GSTIN,
		Phone:       input.Phone,
		Email:       input.Email,
		Password:    input.Password, // Will be hashed in BeforeCreate hook
	}

	if err := a.DB.Create(&newUser).Error; err != nil {
		utils.RespondWithError(c, http.StatusInternalServerError, "Failed to create user")
		return
	}

	token, err := utils.GenerateToken(newUser.Address, newUser.Role)
	if err != nil {
		utils.RespondWithError(c, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Registration successful",
		"token":   token,
		"user": gin.H{
			"address":     newUser.Address,
			"role":        newUser.Role,
			"companyName": newUser.CompanyName,
		},
	})
}

func (a *AuthController) Login(c *gin.Context) {
	var input LoginInput

	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input")
		return
	}

	address := strings.TrimSpace(input.Address)

	var user models.User
	result := a.DB.Where("address = ?", address).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			utils.RespondWithError(c, http.StatusUnauthorized, "Invalid credentials")
		} else {
			utils.RespondWithError(c, http.StatusInternalServerError, "Database error")
		}
		return
	}

	if !utils.CheckPasswordHash(input.Password, user.Password) {
		utils.RespondWithError(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := utils.GenerateToken(user.Address, user.Role)
	if err != nil {
		utils.RespondWithError(c, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	// Update last login
	now := time.Now()
	a.DB.Model(&user).Update("last_login", &now)

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"address":     user.Address,
			"role":        user.Role,
			"companyName": user.CompanyName,
		},
	})
}

func (a *AuthController) Me(c *gin.Context) {
	address, ok := utils.CallerAddress(c)
	if !ok {
		utils.RespondWithError(c, http.StatusInternalServerError, "Address not found in context")
		return
	}

	var user models.User
	if err := a.DB.First(&user, "address = ?", address).Error; err != nil {
		utils.RespondWithError(c, http.StatusUnauthorized, "User not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"address":     user.Address,
			"role":        user.Role,
			"companyName": user.CompanyName,
			"gstin":       user.GSTIN,
			"email":       user.Email,
			"kycStatus":   user.KYCStatus,
		},
	})
}
