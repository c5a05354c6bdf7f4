package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yourusername/investflow/models"
	"github.com/yourusername/investflow/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Collection amount bounds in currency minor units, imposed by the collector.
const (
	minCollectionAmount = 500
	maxCollectionAmount = 10_000_000
)

type PaymentHandler struct {
	db      *gorm.DB
	gateway utils.CollectionGateway
	logger  *zap.Logger
}

func NewPaymentHandler(db *gorm.DB, gateway utils.CollectionGateway, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		db:      db,
		gateway: gateway,
		logger:  logger,
	}
}

type InitiatePaymentRequest struct {
	Phone       string `json:"phone" binding:"required"`
	Amount      int64  `json:"amount" binding:"required"`
	PlanName    string `json:"planName" binding:"required"`
	Description string `json:"description"`
}

// Initiate asks the collector to pull funds and records the resulting
// transaction under the gateway-assigned identifier. The gateway owns
// transaction identity; the local reference is only a correlation key.
func (h *PaymentHandler) Initiate(c *gin.Context) {
	var req InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	if !phonePattern.MatchString(req.Phone) {
		respondError(c, http.StatusBadRequest, "phone must be in the format +256XXXXXXXXX")
		return
	}
	if req.Amount < minCollectionAmount || req.Amount > maxCollectionAmount {
		respondError(c, http.StatusBadRequest,
			fmt.Sprintf("amount must be between %d and %d", minCollectionAmount, maxCollectionAmount))
		return
	}

	reference := uuid.NewString()
	result, err := h.gateway.RequestCollection(c.Request.Context(), utils.CollectionIntent{
		Phone:       req.Phone,
		Amount:      req.Amount,
		Reference:   reference,
		PlanName:    req.PlanName,
		Description: req.Description,
	})
	if err != nil {
		h.logger.Error("collection request failed",
			zap.String("reference", reference), zap.Error(err))
		var gwErr *utils.GatewayError
		if errors.As(err, &gwErr) && gwErr.Message != "" {
			respondError(c, http.StatusInternalServerError, gwErr.Message)
			return
		}
		respondError(c, http.StatusInternalServerError, "payment gateway request failed")
		return
	}

	txn := models.Transaction{
		GatewayID:   result.TransactionID,
		Reference:   reference,
		Phone:       req.Phone,
		Amount:      req.Amount,
		PlanName:    req.PlanName,
		Description: req.Description,
		Status:      models.TransactionProcessing,
	}
	if err := h.db.Create(&txn).Error; err != nil {
		h.logger.Error("failed to record transaction",
			zap.String("gatewayID", result.TransactionID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "failed to record transaction")
		return
	}

	respondOK(c, http.StatusOK, "payment initiated", gin.H{
		"transaction": result.Transaction,
		"collection":  result.Collection,
	})
}

// CheckStatus polls the gateway and syncs the local record one way: the
// gateway always wins. A status read for a transaction this instance never
// recorded is still answered, nothing is persisted for it.
func (h *PaymentHandler) CheckStatus(c *gin.Context) {
	gatewayID := c.Param("transactionId")

	result, err := h.gateway.QueryStatus(c.Request.Context(), gatewayID)
	if err != nil {
		h.logger.Error("status query failed", zap.String("gatewayID", gatewayID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "failed to query transaction status")
		return
	}

	if result.Status != "" {
		update := h.db.Model(&models.Transaction{}).
			Where("gateway_id = ?", gatewayID).
			Update("status", result.Status)
		if update.Error != nil {
			h.logger.Warn("failed to sync transaction status",
				zap.String("gatewayID", gatewayID), zap.Error(update.Error))
		}
	}

	respondOK(c, http.StatusOK, "", gin.H{"transaction": result.Transaction})
}
