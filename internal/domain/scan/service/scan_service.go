package service

import (
	"context"
	"errors"

	customerModel "loyalty_wallet/internal/domain/customer/model"
	customerService "loyalty_wallet/internal/domain/customer/service"
	offerModel "loyalty_wallet/internal/domain/offer/model"
	offerService "loyalty_wallet/internal/domain/offer/service"
	progressModel "loyalty_wallet/internal/domain/progress/model"
	progressService "loyalty_wallet/internal/domain/progress/service"
	walletService "loyalty_wallet/internal/domain/wallet/service"
	"loyalty_wallet/internal/pkg/cooldown"
	"loyalty_wallet/internal/pkg/errs"
	"loyalty_wallet/internal/pkg/token"
	"loyalty_wallet/pkg/logger"
	"loyalty_wallet/pkg/metrics"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 区分"暂停"和"不存在"时最多回看的卡券数
const pausedProbeLimit = 500

// ScanOutcome 扫码集点的完整结果
type ScanOutcome struct {
	Progress         *progressModel.CustomerProgress `json:"progress"`
	RewardEarned     bool                            `json:"rewardEarned"`
	AlreadyCompleted bool                            `json:"alreadyCompleted"`
	Tier             *offerService.TierStatus        `json:"tier,omitempty"`
	WalletUpdates    []walletService.WalletUpdate    `json:"walletUpdates"`
}

// VerifyOutcome 只读校验结果，不产生任何变更
type VerifyOutcome struct {
	Customer *customerModel.Customer         `json:"customer"`
	Offer    *offerModel.Offer               `json:"offer"`
	Progress *progressModel.CustomerProgress `json:"progress"`
	Tier     *offerService.TierStatus        `json:"tier,omitempty"`
}

// PrizeOutcome 奖励核销结果
type PrizeOutcome struct {
	Progress      *progressModel.CustomerProgress `json:"progress"`
	Tier          *offerService.TierStatus        `json:"tier,omitempty"`
	TierUpgraded  bool                            `json:"tierUpgraded"`
	WalletUpdates []walletService.WalletUpdate    `json:"walletUpdates"`
}

// ScanService 扫码编排：解码 → 匹配卡券 → 进度变更 → 钱包同步
type ScanService interface {
	Progress(ctx context.Context, businessID, payload, hash string) (*ScanOutcome, error)
	Verify(ctx context.Context, businessID, payload, hash string) (*VerifyOutcome, error)
	Prize(ctx context.Context, businessID, staffID, payload, hash string) (*PrizeOutcome, error)
	Claims(ctx context.Context, businessID, customerID, offerID string, page, limit int) ([]progressModel.RewardClaim, int64, error)
}

type scanService struct {
	customers customerService.CustomerService
	offers    offerService.OfferService
	progress  progressService.ProgressService
	sync      walletService.SyncService
	guard     cooldown.Guard
	log       *zap.Logger
}

func NewScanService(
	customers customerService.CustomerService,
	offers offerService.OfferService,
	progress progressService.ProgressService,
	sync walletService.SyncService,
	guard cooldown.Guard,
) ScanService {
	log := logger.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &scanService{
		customers: customers,
		offers:    offers,
		progress:  progress,
		sync:      sync,
		guard:     guard,
		log:       log,
	}
}

// resolve 解码扫码负载并定位 (客户, 卡券)
//
// hash 只对在售卡券逐个重算比对，不信任负载里携带的任何 ID。
func (s *scanService) resolve(ctx context.Context, businessID, payload, hash string) (*customerModel.Customer, *offerModel.Offer, error) {
	tok, offerHash, err := token.SplitScanPayload(payload, hash)
	if err != nil {
		return nil, nil, err
	}

	decoded, err := token.Decode(tok)
	if err != nil {
		return nil, nil, err
	}
	if decoded.BusinessID != businessID {
		// 别家商户的码，对本商户等同于无法解析
		return nil, nil, errs.ErrTokenDecode
	}

	offers, err := s.offers.GetActiveOffers(businessID)
	if err != nil {
		return nil, nil, err
	}

	var matched *offerModel.Offer
	for i := range offers {
		if token.VerifyOfferHash(offers[i].ID, businessID, offerHash) {
			matched = &offers[i]
			break
		}
	}
	if matched == nil {
		return nil, nil, s.classifyMiss(businessID, offerHash)
	}

	customer, err := s.customers.GetCustomer(businessID, decoded.CustomerID)
	if err != nil {
		return nil, nil, err
	}

	return customer, matched, nil
}

// classifyMiss 在售列表没匹配上时，区分"已暂停"和"不存在"
func (s *scanService) classifyMiss(businessID, offerHash string) error {
	all, _, err := s.offers.GetOffers(businessID, 1, pausedProbeLimit)
	if err != nil {
		return errs.ErrOfferNotFound
	}
	for i := range all {
		if token.VerifyOfferHash(all[i].ID, businessID, offerHash) {
			return errs.ErrOfferInactive
		}
	}
	return errs.ErrOfferNotFound
}

// stamp 建行 + 发积点，行锁冲突时整体重试一次
func (s *scanService) stamp(ctx context.Context, customer *customerModel.Customer, offer *offerModel.Offer) (*progressService.StampResult, error) {
	attempt := func() (*progressService.StampResult, error) {
		if _, err := s.progress.EnsureProgress(ctx, customer.ID, offer.ID, offer.BusinessID); err != nil {
			return nil, err
		}
		return s.progress.AddStamp(ctx, customer.ID, offer.ID, 1)
	}

	result, err := attempt()
	if errors.Is(err, errs.ErrProgressConflict) {
		result, err = attempt()
	}
	return result, err
}

func (s *scanService) Progress(ctx context.Context, businessID, payload, hash string) (*ScanOutcome, error) {
	customer, offer, err := s.resolve(ctx, businessID, payload, hash)
	if err != nil {
		metrics.GetGlobalCollector().RecordScan("rejected")
		return nil, err
	}

	guardKey := customer.ID + ":" + offer.ID
	acquired, guardErr := s.guard.Acquire(ctx, guardKey)
	if guardErr != nil {
		s.log.Warn("scan cooldown guard unavailable, allowing scan", zap.Error(guardErr))
	}
	if !acquired {
		metrics.GetGlobalCollector().RecordScan("cooldown")
		return nil, errs.ErrScanCooldown
	}

	result, err := s.stamp(ctx, customer, offer)
	if err != nil {
		// 积点没发出去，窗口还回去，别挡住顾客重试
		if guardErr == nil {
			if relErr := s.guard.Release(ctx, guardKey); relErr != nil {
				s.log.Warn("failed to release scan cooldown", zap.Error(relErr))
			}
		}
		if errors.Is(err, errs.ErrProgressConflict) {
			metrics.GetGlobalCollector().RecordScan("conflict")
		}
		return nil, err
	}

	outcome := "stamped"
	if result.RewardEarned {
		outcome = "completed"
	}
	metrics.GetGlobalCollector().RecordScan(outcome)

	tier := offerService.ComputeTier(offer.TierLevels, result.Progress.RewardsClaimed)
	updates := s.sync.SyncAfterProgressChange(ctx, customer, offer, result.Progress, tier)

	s.log.Info("scan processed",
		zap.String("customer_id", customer.ID),
		zap.String("offer_id", offer.ID),
		zap.Int("current_stamps", result.Progress.CurrentStamps),
		zap.Bool("reward_earned", result.RewardEarned),
		zap.Bool("already_completed", result.AlreadyCompleted))

	return &ScanOutcome{
		Progress:         result.Progress,
		RewardEarned:     result.RewardEarned,
		AlreadyCompleted: result.AlreadyCompleted,
		Tier:             tier,
		WalletUpdates:    updates,
	}, nil
}

func (s *scanService) Verify(ctx context.Context, businessID, payload, hash string) (*VerifyOutcome, error) {
	customer, offer, err := s.resolve(ctx, businessID, payload, hash)
	if err != nil {
		return nil, err
	}

	prog, err := s.progress.GetProgress(ctx, customer.ID, offer.ID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		// 从未扫过：合成零进度快照，不落库
		prog = &progressModel.CustomerProgress{
			CustomerID: customer.ID,
			OfferID:    offer.ID,
			BusinessID: offer.BusinessID,
			MaxStamps:  offer.StampsRequired,
		}
	}

	return &VerifyOutcome{
		Customer: customer,
		Offer:    offer,
		Progress: prog,
		Tier:     offerService.ComputeTier(offer.TierLevels, prog.RewardsClaimed),
	}, nil
}

func (s *scanService) Prize(ctx context.Context, businessID, staffID, payload, hash string) (*PrizeOutcome, error) {
	customer, offer, err := s.resolve(ctx, businessID, payload, hash)
	if err != nil {
		metrics.GetGlobalCollector().RecordScan("rejected")
		return nil, err
	}

	before, err := s.progress.GetProgress(ctx, customer.ID, offer.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotCompleted
		}
		return nil, err
	}
	tierBefore := offerService.ComputeTier(offer.TierLevels, before.RewardsClaimed)

	after, err := s.progress.ClaimReward(ctx, customer.ID, offer.ID, staffID, "")
	if err != nil {
		return nil, err
	}

	tierAfter := offerService.ComputeTier(offer.TierLevels, after.RewardsClaimed)
	metrics.GetGlobalCollector().RecordScan("claimed")

	updates := s.sync.SyncAfterProgressChange(ctx, customer, offer, after, tierAfter)

	s.log.Info("reward claimed",
		zap.String("customer_id", customer.ID),
		zap.String("offer_id", offer.ID),
		zap.String("claimed_by", staffID),
		zap.Int("rewards_claimed", after.RewardsClaimed))

	return &PrizeOutcome{
		Progress:      after,
		Tier:          tierAfter,
		TierUpgraded:  tierChanged(tierBefore, tierAfter),
		WalletUpdates: updates,
	}, nil
}

// tierChanged 核销后等级名是否变化（含从无等级到有等级）
func tierChanged(before, after *offerService.TierStatus) bool {
	switch {
	case after == nil || after.Current == nil:
		return false
	case before == nil || before.Current == nil:
		return true
	default:
		return before.Current.Name != after.Current.Name
	}
}

func (s *scanService) Claims(ctx context.Context, businessID, customerID, offerID string, page, limit int) ([]progressModel.RewardClaim, int64, error) {
	// 校验客户归属后再放行历史查询
	if _, err := s.customers.GetCustomer(businessID, customerID); err != nil {
		return nil, 0, err
	}
	return s.progress.GetClaims(ctx, customerID, offerID, page, limit)
}
