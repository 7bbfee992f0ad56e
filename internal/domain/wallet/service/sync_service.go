package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	customerModel "loyalty_wallet/internal/domain/customer/model"
	offerModel "loyalty_wallet/internal/domain/offer/model"
	offerService "loyalty_wallet/internal/domain/offer/service"
	progressModel "loyalty_wallet/internal/domain/progress/model"
	"loyalty_wallet/internal/domain/wallet/adapter"
	walletModel "loyalty_wallet/internal/domain/wallet/model"
	"loyalty_wallet/internal/domain/wallet/repository"
	"loyalty_wallet/internal/pkg/errs"
	"loyalty_wallet/pkg/logger"
	"loyalty_wallet/pkg/metrics"

	"go.uber.org/zap"
)

// WalletUpdate 单个钱包渠道的同步结果，随扫码响应一起返回
type WalletUpdate struct {
	Platform string `json:"platform"`
	Success  bool   `json:"success"`
	Detail   string `json:"detail,omitempty"`
}

// SyncService 把进度变更扇出到客户已持有的所有钱包渠道
type SyncService interface {
	// SyncAfterProgressChange 推送进度到该客户该卡券下的全部卡记录，
	// 返回逐渠道结果。只同步已存在的卡，不会替客户开新渠道。
	SyncAfterProgressChange(ctx context.Context, customer *customerModel.Customer, offer *offerModel.Offer, progress *progressModel.CustomerProgress, tier *offerService.TierStatus) []WalletUpdate
	// Shutdown 等待在途推送落地
	Shutdown(ctx context.Context) error
}

type walletSyncService struct {
	adapters    map[string]adapter.WalletAdapter
	repo        repository.WalletPassRepository
	pushTimeout time.Duration
	log         *zap.Logger
	inflight    sync.WaitGroup
}

// NewSyncService 创建钱包同步服务
//
// adapters 按 WalletType 索引；禁用的渠道也要注册进来，这样同步
// 结果里能如实报告 "channel disabled" 而不是凭空消失。
func NewSyncService(adapters []adapter.WalletAdapter, repo repository.WalletPassRepository, pushTimeout time.Duration) SyncService {
	byType := make(map[string]adapter.WalletAdapter, len(adapters))
	for _, ad := range adapters {
		byType[ad.WalletType()] = ad
	}

	log := logger.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &walletSyncService{
		adapters:    byType,
		repo:        repo,
		pushTimeout: pushTimeout,
		log:         log,
	}
}

func (s *walletSyncService) SyncAfterProgressChange(ctx context.Context, customer *customerModel.Customer, offer *offerModel.Offer, progress *progressModel.CustomerProgress, tier *offerService.TierStatus) []WalletUpdate {
	// 事务已提交，推送不跟随请求取消；上游断开也要把通知发完
	detached := context.WithoutCancel(ctx)

	passes, err := s.repo.GetByCustomerAndOffer(detached, customer.ID, offer.ID)
	if err != nil {
		s.log.Error("failed to load wallet passes for sync",
			zap.String("customer_id", customer.ID),
			zap.String("offer_id", offer.ID),
			zap.Error(err))
		return nil
	}
	if len(passes) == 0 {
		return []WalletUpdate{}
	}

	results := make([]WalletUpdate, len(passes))
	var wg sync.WaitGroup

	for i := range passes {
		pass := passes[i]

		ad, ok := s.adapters[pass.WalletType]
		if !ok {
			results[i] = WalletUpdate{
				Platform: walletModel.PlatformName(pass.WalletType),
				Success:  false,
				Detail:   "no adapter for wallet type",
			}
			continue
		}

		if !ad.Enabled() {
			metrics.GetGlobalCollector().RecordWalletPush(pass.WalletType, "skipped", 0)
			results[i] = WalletUpdate{
				Platform: ad.Platform(),
				Success:  false,
				Detail:   "channel disabled",
			}
			continue
		}

		wg.Add(1)
		s.inflight.Add(1)
		go func(i int, pass walletModel.WalletPass) {
			defer wg.Done()
			defer s.inflight.Done()
			results[i] = s.push(detached, ad, &pass, customer, offer, progress, tier)
		}(i, pass)
	}

	wg.Wait()
	return results
}

// push 单渠道推送：超时受限，远端对象 404 时重建后再试一次
func (s *walletSyncService) push(ctx context.Context, ad adapter.WalletAdapter, pass *walletModel.WalletPass, customer *customerModel.Customer, offer *offerModel.Offer, progress *progressModel.CustomerProgress, tier *offerService.TierStatus) WalletUpdate {
	start := time.Now()
	outcome := "success"
	detail := "updated"

	err := s.pushWithTimeout(ctx, ad, pass, progress, tier)
	if err != nil && isMissingRemoteObject(err) {
		if recreateErr := s.recreate(ctx, ad, customer, offer, progress); recreateErr != nil {
			err = recreateErr
		} else if err = s.pushWithTimeout(ctx, ad, pass, progress, tier); err == nil {
			outcome = "recreated"
			detail = "remote object recreated"
		}
	}
	if err != nil {
		outcome = "failed"
	}

	metrics.GetGlobalCollector().RecordWalletPush(pass.WalletType, outcome, time.Since(start))

	if err != nil {
		s.log.Warn("wallet push failed",
			zap.String("platform", ad.Platform()),
			zap.String("customer_id", pass.CustomerID),
			zap.String("offer_id", pass.OfferID),
			zap.String("remote_id", pass.RemoteID),
			zap.Error(err))
		return WalletUpdate{Platform: ad.Platform(), Success: false, Detail: failureDetail(err)}
	}

	if updErr := s.repo.UpdateLastPush(ctx, pass.ID, time.Now()); updErr != nil {
		s.log.Warn("failed to record last push time",
			zap.String("pass_id", pass.ID),
			zap.Error(updErr))
	}

	return WalletUpdate{Platform: ad.Platform(), Success: true, Detail: detail}
}

func (s *walletSyncService) pushWithTimeout(ctx context.Context, ad adapter.WalletAdapter, pass *walletModel.WalletPass, progress *progressModel.CustomerProgress, tier *offerService.TierStatus) error {
	pushCtx, cancel := context.WithTimeout(ctx, s.pushTimeout)
	defer cancel()
	return ad.PushUpdate(pushCtx, pass, progress, tier)
}

func (s *walletSyncService) recreate(ctx context.Context, ad adapter.WalletAdapter, customer *customerModel.Customer, offer *offerModel.Offer, progress *progressModel.CustomerProgress) error {
	recreateCtx, cancel := context.WithTimeout(ctx, s.pushTimeout)
	defer cancel()

	if err := ad.EnsureClassExists(recreateCtx, offer); err != nil {
		return err
	}
	return ad.EnsureObjectExists(recreateCtx, customer, offer, progress)
}

// Shutdown 等待在途推送，超时放弃
func (s *walletSyncService) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wallet sync shutdown: %w", ctx.Err())
	}
}

// isMissingRemoteObject 远端卡对象已不存在（被用户删除或平台清理）
func isMissingRemoteObject(err error) bool {
	var adapterErr *errs.WalletAdapterError
	return errors.As(err, &adapterErr) && adapterErr.StatusCode == 404
}

// failureDetail 给响应体的简短失败描述，完整错误进日志
func failureDetail(err error) string {
	var adapterErr *errs.WalletAdapterError
	if errors.As(err, &adapterErr) && adapterErr.StatusCode > 0 {
		return fmt.Sprintf("push failed (status %d)", adapterErr.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "push timed out"
	}
	return "push failed"
}
