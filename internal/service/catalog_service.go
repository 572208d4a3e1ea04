package service

import (
	"context"
	"fmt"
	"time"

	"agentpay/internal/core/domain"
	"agentpay/internal/core/ports"
	"agentpay/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CatalogServiceImpl resolves merchant products through a cache-aside layer
// with a stale fallback for merchant API outages.
type CatalogServiceImpl struct {
	merchantRepo ports.MerchantRepository
	catalog      ports.ProductCatalog
	cache        ports.ProductCache
	cacheTTL     time.Duration
	log          zerolog.Logger
}

func NewCatalogService(
	merchantRepo ports.MerchantRepository,
	catalog ports.ProductCatalog,
	cache ports.ProductCache,
	cacheTTL time.Duration,
	log zerolog.Logger,
) *CatalogServiceImpl {
	return &CatalogServiceImpl{
		merchantRepo: merchantRepo,
		catalog:      catalog,
		cache:        cache,
		cacheTTL:     cacheTTL,
		log:          log,
	}
}

func (s *CatalogServiceImpl) GetProduct(ctx context.Context, merchantID uuid.UUID, productID string) (*domain.Product, error) {
	if cached, err := s.cache.Get(ctx, merchantID, productID); err != nil {
		s.log.Warn().Err(err).
			Str("merchant_id", merchantID.String()).
			Str("product_id", productID).
			Msg("product cache read failed")
	} else if cached != nil {
		return cached, nil
	}

	merchant, err := s.merchantRepo.GetByID(ctx, merchantID)
	if err != nil {
		return nil, fmt.Errorf("load merchant: %w", err)
	}
	if merchant == nil || !merchant.IsActive {
		return nil, apperror.NotFound("merchant")
	}

	product, err := s.catalog.GetProduct(ctx, merchant, productID)
	if err != nil {
		// A dead merchant API should not block purchases of known products.
		if appErr, ok := apperror.As(err); ok && appErr.Code == apperror.CodeUpstreamUnavailable {
			stale, staleErr := s.cache.GetStale(ctx, merchantID, productID)
			if staleErr == nil && stale != nil {
				s.log.Warn().
					Str("merchant_id", merchantID.String()).
					Str("product_id", productID).
					Msg("merchant API unavailable, serving stale product")
				return stale, nil
			}
		}
		return nil, err
	}

	if cacheErr := s.cache.Set(ctx, merchantID, productID, product, s.cacheTTL); cacheErr != nil {
		s.log.Warn().Err(cacheErr).
			Str("merchant_id", merchantID.String()).
			Str("product_id", productID).
			Msg("product cache write failed")
	}
	return product, nil
}
