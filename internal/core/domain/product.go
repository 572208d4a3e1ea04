package domain

// ProductVariant is one purchasable variation of a product.
type ProductVariant struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	PriceUSDC string `json:"price_usdc"`
}

// Product is a catalog entry fetched from a merchant's store. Transient:
// products live in the merchant's catalog and are only cached here.
type Product struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	PriceUSDC string           `json:"price_usdc"`
	StoreURL  string           `json:"store_url"`
	Variants  []ProductVariant `json:"variants,omitempty"`
}

// VariantPrice resolves the unit price for an optional variant id. The
// second return is false when the variant does not exist on the product.
func (p *Product) VariantPrice(variantID string) (string, bool) {
	if variantID == "" {
		return p.PriceUSDC, true
	}
	for _, v := range p.Variants {
		if v.ID == variantID {
			return v.PriceUSDC, true
		}
	}
	return "", false
}
