package handler

import (
	"agentpay/internal/adapter/http/dto"
	"agentpay/internal/core/ports"
	"agentpay/pkg/apperror"
	"agentpay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MerchantHandler exposes the connected-merchant directory and catalog lookups.
type MerchantHandler struct {
	merchantRepo ports.MerchantRepository
	catalogSvc   ports.CatalogService
}

// NewMerchantHandler creates a new MerchantHandler.
func NewMerchantHandler(merchantRepo ports.MerchantRepository, catalogSvc ports.CatalogService) *MerchantHandler {
	return &MerchantHandler{merchantRepo: merchantRepo, catalogSvc: catalogSvc}
}

// List handles GET /api/v1/merchants.
func (h *MerchantHandler) List(c *gin.Context) {
	merchants, err := h.merchantRepo.ListActive(c.Request.Context())
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}

	items := make([]dto.MerchantResponse, 0, len(merchants))
	for i := range merchants {
		m := &merchants[i]
		items = append(items, dto.MerchantResponse{
			ID:       m.ID.String(),
			Name:     m.Name,
			StoreURL: m.StoreURL(),
		})
	}
	response.OK(c, items)
}

// GetProduct handles GET /api/v1/merchants/:id/products/:product_id.
func (h *MerchantHandler) GetProduct(c *gin.Context) {
	merchantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("merchant id must be a UUID"))
		return
	}

	product, err := h.catalogSvc.GetProduct(c.Request.Context(), merchantID, c.Param("product_id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.ProductResponse{
		ID:        product.ID,
		Title:     product.Title,
		PriceUSDC: product.PriceUSDC,
		StoreURL:  product.StoreURL,
	}
	for _, v := range product.Variants {
		resp.Variants = append(resp.Variants, dto.VariantResponse{
			ID:        v.ID,
			Title:     v.Title,
			PriceUSDC: v.PriceUSDC,
		})
	}
	response.OK(c, resp)
}
