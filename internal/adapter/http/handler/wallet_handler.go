package handler

import (
	"strconv"
	"time"

	"agentpay/internal/adapter/http/dto"
	"agentpay/internal/adapter/http/middleware"
	"agentpay/internal/core/domain"
	"agentpay/internal/core/ports"
	"agentpay/pkg/apperror"
	"agentpay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WalletHandler handles wallet balance and history endpoints.
type WalletHandler struct {
	walletSvc ports.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc}
}

// GetBalance handles GET /api/v1/wallet/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	walletID := c.MustGet(middleware.CtxWalletID).(uuid.UUID)

	bal, err := h.walletSvc.GetBalance(c.Request.Context(), walletID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{
		WalletID:  bal.WalletID.String(),
		Address:   bal.Address,
		USDC:      bal.USDC,
		NativeWei: bal.NativeWei,
		CheckedAt: bal.CheckedAt.Format(time.RFC3339),
	})
}

// ListTransactions handles GET /api/v1/wallet/transactions.
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	walletID := c.MustGet(middleware.CtxWalletID).(uuid.UUID)

	params := ports.TransactionListParams{WalletID: walletID}

	if v := c.Query("status"); v != "" {
		status := domain.TransactionStatus(v)
		switch status {
		case domain.TransactionStatusPending, domain.TransactionStatusSettling,
			domain.TransactionStatusSettled, domain.TransactionStatusFailed:
			params.Status = &status
		default:
			response.Error(c, apperror.Validation("unknown status filter"))
			return
		}
	}
	if v := c.Query("type"); v != "" {
		txType := domain.TransactionType(v)
		switch txType {
		case domain.TransactionTypePurchase, domain.TransactionTypeFund, domain.TransactionTypeRefund:
			params.Type = &txType
		default:
			response.Error(c, apperror.Validation("unknown type filter"))
			return
		}
	}
	var err error
	if params.From, err = queryInt64(c, "from"); err != nil {
		response.Error(c, apperror.Validation("from must be a Unix timestamp"))
		return
	}
	if params.To, err = queryInt64(c, "to"); err != nil {
		response.Error(c, apperror.Validation("to must be a Unix timestamp"))
		return
	}
	params.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	params.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}

	txs, total, err := h.walletSvc.ListTransactions(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.TransactionResponse, 0, len(txs))
	for i := range txs {
		items = append(items, toTransactionResponse(&txs[i]))
	}

	totalPages := int((total + int64(params.PageSize) - 1) / int64(params.PageSize))
	response.OK(c, dto.TransactionListResponse{
		Items:      items,
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: totalPages,
	})
}

func toTransactionResponse(tx *domain.Transaction) dto.TransactionResponse {
	resp := dto.TransactionResponse{
		ID:          tx.ID.String(),
		Type:        string(tx.Type),
		Status:      string(tx.Status),
		AmountUSDC:  tx.AmountUSDC,
		TxHash:      tx.TxHash,
		ProductName: tx.ProductName,
		InitiatedAt: tx.InitiatedAt.Format(time.RFC3339),
	}
	if tx.MerchantID != nil {
		id := tx.MerchantID.String()
		resp.MerchantID = &id
	}
	if tx.SettledAt != nil {
		s := tx.SettledAt.Format(time.RFC3339)
		resp.SettledAt = &s
	}
	return resp
}

func queryInt64(c *gin.Context, name string) (*int64, error) {
	v := c.Query(name)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
