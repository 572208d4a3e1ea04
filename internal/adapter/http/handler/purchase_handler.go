package handler

import (
	"agentpay/internal/adapter/http/dto"
	"agentpay/internal/adapter/http/middleware"
	"agentpay/internal/core/ports"
	"agentpay/pkg/apperror"
	"agentpay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PurchaseHandler handles the agent purchase endpoint.
type PurchaseHandler struct {
	purchaseSvc ports.PurchaseService
}

// NewPurchaseHandler creates a new PurchaseHandler.
func NewPurchaseHandler(purchaseSvc ports.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{purchaseSvc: purchaseSvc}
}

// Create handles POST /api/v1/purchases.
func (h *PurchaseHandler) Create(c *gin.Context) {
	var req dto.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	merchantID, err := uuid.Parse(req.MerchantID)
	if err != nil {
		response.Error(c, apperror.Validation("merchant_id must be a UUID"))
		return
	}

	agentKeyID := c.MustGet(middleware.CtxAgentKeyID).(uuid.UUID)
	walletID := c.MustGet(middleware.CtxWalletID).(uuid.UUID)

	result, err := h.purchaseSvc.Purchase(c.Request.Context(), ports.PurchaseRequest{
		AgentKeyID: agentKeyID,
		WalletID:   walletID,
		MerchantID: merchantID,
		ProductID:  req.ProductID,
		VariantID:  req.VariantID,
		Quantity:   req.Quantity,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.PurchaseResponse{
		TransactionID: result.TransactionID.String(),
		TxHash:        result.TxHash,
		OrderID:       result.OrderID,
		OrderNumber:   result.OrderNumber,
		Product: dto.ProductSummary{
			ID:        result.Product.ID,
			Name:      result.Product.Name,
			VariantID: result.Product.VariantID,
		},
		AmountUSDC: result.AmountUSDC,
		Status:     string(result.Status),
	}

	response.Created(c, resp)
}
