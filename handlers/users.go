package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/investflow/models"
	"gorm.io/gorm"
)

type UserHandler struct {
	db *gorm.DB
}

func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db}
}

// GetInvestments lists the investments owned by the account with the given
// phone number.
func (h *UserHandler) GetInvestments(c *gin.Context) {
	phone := c.Param("phone")

	var user models.User
	if err := h.db.Preload("Investments").Where("phone = ?", phone).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "no account found with this phone number")
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to look up account")
		return
	}

	investments := user.Investments
	if investments == nil {
		investments = []models.Investment{}
	}

	respondOK(c, http.StatusOK, "", gin.H{"investments": investments})
}

// Me returns the profile of the authenticated user.
func (h *UserHandler) Me(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var user models.User
	if err := h.db.First(&user, userID.(uint)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "account not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to look up account")
		return
	}

	respondOK(c, http.StatusOK, "", gin.H{"user": user})
}
