package service

import (
	"context"

	"loyalty_wallet/internal/domain/progress/model"
	"loyalty_wallet/internal/domain/progress/repository"
	"loyalty_wallet/pkg/metrics"
)

// StampResult 一次发放积点的结果
type StampResult struct {
	Progress         *model.CustomerProgress `json:"progress"`
	RewardEarned     bool                    `json:"rewardEarned"`     // 本次扫码攒满了一个周期
	AlreadyCompleted bool                    `json:"alreadyCompleted"` // 早已攒满待核销，本次未累积
}

type ProgressService interface {
	EnsureProgress(ctx context.Context, customerID, offerID, businessID string) (*model.CustomerProgress, error)
	GetProgress(ctx context.Context, customerID, offerID string) (*model.CustomerProgress, error)
	AddStamp(ctx context.Context, customerID, offerID string, count int) (*StampResult, error)
	ClaimReward(ctx context.Context, customerID, offerID, claimedBy, notes string) (*model.CustomerProgress, error)
	GetClaims(ctx context.Context, customerID, offerID string, page, limit int) ([]model.RewardClaim, int64, error)
}

type progressService struct {
	repo repository.ProgressRepository
}

func NewProgressService(repo repository.ProgressRepository) ProgressService {
	return &progressService{repo: repo}
}

func (s *progressService) EnsureProgress(ctx context.Context, customerID, offerID, businessID string) (*model.CustomerProgress, error) {
	return s.repo.FindOrCreate(ctx, customerID, offerID, businessID)
}

func (s *progressService) GetProgress(ctx context.Context, customerID, offerID string) (*model.CustomerProgress, error) {
	return s.repo.GetByCustomerAndOffer(ctx, customerID, offerID)
}

func (s *progressService) AddStamp(ctx context.Context, customerID, offerID string, count int) (*StampResult, error) {
	progress, rewardEarned, err := s.repo.AddStamp(ctx, customerID, offerID, count)
	if err != nil {
		return nil, err
	}

	if !progress.IsCompleted || rewardEarned {
		metrics.GetGlobalCollector().RecordStampIssued()
	}

	return &StampResult{
		Progress:         progress,
		RewardEarned:     rewardEarned,
		AlreadyCompleted: progress.IsCompleted && !rewardEarned,
	}, nil
}

func (s *progressService) ClaimReward(ctx context.Context, customerID, offerID, claimedBy, notes string) (*model.CustomerProgress, error) {
	progress, err := s.repo.ClaimReward(ctx, customerID, offerID, claimedBy, notes)
	if err != nil {
		return nil, err
	}

	metrics.GetGlobalCollector().RecordRewardClaimed()
	return progress, nil
}

func (s *progressService) GetClaims(ctx context.Context, customerID, offerID string, page, limit int) ([]model.RewardClaim, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}

	offset := (page - 1) * limit
	return s.repo.GetClaims(ctx, customerID, offerID, offset, limit)
}
