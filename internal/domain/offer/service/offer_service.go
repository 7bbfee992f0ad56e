package service

import (
	"context"
	"fmt"
	"time"

	"loyalty_wallet/internal/domain/offer/model"
	"loyalty_wallet/internal/domain/offer/repository"
	"loyalty_wallet/pkg/cache"
	"loyalty_wallet/pkg/metrics"
)

type OfferService interface {
	CreateOffer(businessID, title, description string, stampsRequired int, tiers model.TierLevels, barcodeFormat string) (*model.Offer, error)
	GetOffer(id string) (*model.Offer, error)
	GetOffers(businessID string, page, limit int) ([]model.Offer, int64, error)
	GetActiveOffers(businessID string) ([]model.Offer, error)
	UpdateTierLevels(businessID, offerID string, tiers model.TierLevels) (*model.Offer, error)
	UpdateStatus(businessID, offerID string, status int) error
}

// CachedOfferService 带缓存的卡券服务
//
// 扫码链路每次都要取商户的在售卡券做哈希匹配，缓存命中率决定了
// 扫码接口的数据库压力。
type CachedOfferService struct {
	repo  repository.OfferRepository
	cache cache.CacheService
}

func NewCachedOfferService(repo repository.OfferRepository, cacheService cache.CacheService) OfferService {
	return &CachedOfferService{
		repo:  repo,
		cache: cacheService,
	}
}

// 缓存键常量
const (
	OfferCacheKeyPrefix    = "offer:"
	ScanListCacheKeyPrefix = "offer_scan:"
	OfferCacheTTL          = time.Hour
	ScanListCacheTTL       = time.Minute * 10
)

// getOfferCacheKey 获取单个卡券缓存键
func (s *CachedOfferService) getOfferCacheKey(id string) string {
	return fmt.Sprintf("%s%s", OfferCacheKeyPrefix, id)
}

// getScanListCacheKey 获取扫码匹配列表缓存键
func (s *CachedOfferService) getScanListCacheKey(businessID string) string {
	return fmt.Sprintf("%s%s", ScanListCacheKeyPrefix, businessID)
}

// invalidateOfferCache 清除卡券相关缓存
func (s *CachedOfferService) invalidateOfferCache(ctx context.Context, offerID, businessID string) error {
	if err := s.cache.Delete(ctx, s.getOfferCacheKey(offerID)); err != nil {
		return fmt.Errorf("failed to invalidate offer cache: %w", err)
	}

	if err := s.cache.Delete(ctx, s.getScanListCacheKey(businessID)); err != nil {
		return fmt.Errorf("failed to invalidate scan list cache: %w", err)
	}

	return nil
}

func (s *CachedOfferService) CreateOffer(businessID, title, description string, stampsRequired int, tiers model.TierLevels, barcodeFormat string) (*model.Offer, error) {
	if stampsRequired < 1 || stampsRequired > 50 {
		return nil, fmt.Errorf("stamps required must be between 1 and 50, got %d", stampsRequired)
	}

	if len(tiers) > 0 {
		if err := ValidateTierConfig(tiers); err != nil {
			return nil, err
		}
	}

	if barcodeFormat == "" {
		barcodeFormat = model.BarcodePDF417
	}
	if barcodeFormat != model.BarcodePDF417 && barcodeFormat != model.BarcodeQR {
		return nil, fmt.Errorf("unsupported barcode format %q", barcodeFormat)
	}

	offer := &model.Offer{
		BusinessID:     businessID,
		Title:          title,
		Description:    description,
		StampsRequired: stampsRequired,
		TierLevels:     tiers,
		BarcodeFormat:  barcodeFormat,
		Status:         model.StatusActive,
	}

	if err := s.repo.Create(offer); err != nil {
		return nil, err
	}

	// 新卡券直接失效扫码列表，下次匹配时回源重建
	ctx := context.Background()
	if err := s.cache.Delete(ctx, s.getScanListCacheKey(businessID)); err != nil {
		fmt.Printf("Warning: failed to invalidate scan list cache: %v\n", err)
	}

	return offer, nil
}

// GetOffer 获取单个卡券（带缓存）
func (s *CachedOfferService) GetOffer(id string) (*model.Offer, error) {
	ctx := context.Background()
	cacheKey := s.getOfferCacheKey(id)

	var offer model.Offer
	if err := s.cache.Get(ctx, cacheKey, &offer); err == nil {
		metrics.GetGlobalCollector().RecordCacheOperation("redis", OfferCacheKeyPrefix, true)
		return &offer, nil
	}
	metrics.GetGlobalCollector().RecordCacheOperation("redis", OfferCacheKeyPrefix, false)

	offerData, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, cacheKey, offerData, OfferCacheTTL); err != nil {
		fmt.Printf("Warning: failed to cache offer: %v\n", err)
	}

	return offerData, nil
}

func (s *CachedOfferService) GetOffers(businessID string, page, limit int) ([]model.Offer, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}

	offset := (page - 1) * limit
	return s.repo.GetList(businessID, offset, limit)
}

// GetActiveOffers 扫码匹配用的在售卡券列表（带缓存）
func (s *CachedOfferService) GetActiveOffers(businessID string) ([]model.Offer, error) {
	ctx := context.Background()
	cacheKey := s.getScanListCacheKey(businessID)

	var offers []model.Offer
	if err := s.cache.Get(ctx, cacheKey, &offers); err == nil {
		metrics.GetGlobalCollector().RecordCacheOperation("redis", ScanListCacheKeyPrefix, true)
		return offers, nil
	}
	metrics.GetGlobalCollector().RecordCacheOperation("redis", ScanListCacheKeyPrefix, false)

	offers, err := s.repo.ListActive(businessID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, cacheKey, offers, ScanListCacheTTL); err != nil {
		fmt.Printf("Warning: failed to cache scan list: %v\n", err)
	}

	return offers, nil
}

// UpdateTierLevels 更新等级阶梯（带缓存失效）
func (s *CachedOfferService) UpdateTierLevels(businessID, offerID string, tiers model.TierLevels) (*model.Offer, error) {
	if err := ValidateTierConfig(tiers); err != nil {
		return nil, err
	}

	offer, err := s.repo.GetByID(offerID)
	if err != nil {
		return nil, err
	}

	// 租户隔离：只能改自己的卡券
	if offer.BusinessID != businessID {
		return nil, fmt.Errorf("offer %s does not belong to business %s", offerID, businessID)
	}

	if err := s.repo.UpdateTierLevels(offerID, tiers); err != nil {
		return nil, err
	}
	offer.TierLevels = tiers

	ctx := context.Background()
	if err := s.invalidateOfferCache(ctx, offerID, businessID); err != nil {
		fmt.Printf("Warning: failed to invalidate cache after tier update: %v\n", err)
	}

	return offer, nil
}

// UpdateStatus 更新卡券状态（带缓存失效）
func (s *CachedOfferService) UpdateStatus(businessID, offerID string, status int) error {
	if status != model.StatusActive && status != model.StatusPaused && status != model.StatusArchived {
		return fmt.Errorf("invalid offer status %d", status)
	}

	offer, err := s.repo.GetByID(offerID)
	if err != nil {
		return err
	}

	if offer.BusinessID != businessID {
		return fmt.Errorf("offer %s does not belong to business %s", offerID, businessID)
	}

	if err := s.repo.UpdateStatus(offerID, status); err != nil {
		return err
	}

	ctx := context.Background()
	if err := s.invalidateOfferCache(ctx, offerID, businessID); err != nil {
		fmt.Printf("Warning: failed to invalidate cache after status update: %v\n", err)
	}

	return nil
}
