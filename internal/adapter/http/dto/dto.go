package dto

// PurchaseRequest is the request body for agent purchases.
type PurchaseRequest struct {
	MerchantID string  `json:"merchant_id" binding:"required,uuid"`
	ProductID  string  `json:"product_id" binding:"required,max=100,safe_id"`
	VariantID  *string `json:"variant_id,omitempty" binding:"omitempty,max=100,safe_id"`
	Quantity   int     `json:"quantity" binding:"required,gt=0,lte=100"`
}

// PurchaseResponse is the response body for a settled purchase.
type PurchaseResponse struct {
	TransactionID string         `json:"transaction_id"`
	TxHash        string         `json:"tx_hash"`
	OrderID       *string        `json:"order_id,omitempty"`
	OrderNumber   *string        `json:"order_number,omitempty"`
	Product       ProductSummary `json:"product"`
	AmountUSDC    string         `json:"amount_usdc"`
	Status        string         `json:"status"`
}

// ProductSummary identifies what was bought.
type ProductSummary struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	VariantID *string `json:"variant_id,omitempty"`
}

// BalanceResponse is the response for the wallet balance query.
type BalanceResponse struct {
	WalletID  string `json:"wallet_id"`
	Address   string `json:"address"`
	USDC      string `json:"usdc"`
	NativeWei string `json:"native_wei"`
	CheckedAt string `json:"checked_at"`
}

// TransactionResponse is one row of transaction history.
type TransactionResponse struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Status      string  `json:"status"`
	AmountUSDC  string  `json:"amount_usdc"`
	TxHash      *string `json:"tx_hash,omitempty"`
	MerchantID  *string `json:"merchant_id,omitempty"`
	ProductName *string `json:"product_name,omitempty"`
	InitiatedAt string  `json:"initiated_at"`
	SettledAt   *string `json:"settled_at,omitempty"`
}

// TransactionListResponse wraps a paginated transaction list.
type TransactionListResponse struct {
	Items      []TransactionResponse `json:"items"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}

// MerchantResponse describes one connected merchant.
type MerchantResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	StoreURL string `json:"store_url"`
}

// ProductResponse is the catalog lookup response.
type ProductResponse struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	PriceUSDC string            `json:"price_usdc"`
	StoreURL  string            `json:"store_url"`
	Variants  []VariantResponse `json:"variants,omitempty"`
}

// VariantResponse is one purchasable variation of a product.
type VariantResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	PriceUSDC string `json:"price_usdc"`
}
