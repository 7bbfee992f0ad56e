package service

import (
	"context"
	"errors"
	"time"

	customerService "loyalty_wallet/internal/domain/customer/service"
	offerService "loyalty_wallet/internal/domain/offer/service"
	progressService "loyalty_wallet/internal/domain/progress/service"
	"loyalty_wallet/internal/domain/wallet/adapter"
	walletModel "loyalty_wallet/internal/domain/wallet/model"
	"loyalty_wallet/internal/domain/wallet/repository"
	"loyalty_wallet/internal/pkg/errs"
	"loyalty_wallet/pkg/logger"
	"loyalty_wallet/pkg/metrics"

	customerModel "loyalty_wallet/internal/domain/customer/model"
	offerModel "loyalty_wallet/internal/domain/offer/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PassIssueResult 签发结果：Google 给 Save 链接，Apple 给 pass.json
type PassIssueResult struct {
	Pass        *walletModel.WalletPass `json:"pass"`
	SaveURL     string                  `json:"saveUrl,omitempty"`
	PassPayload map[string]interface{}  `json:"passPayload,omitempty"`
}

// PassService 钱包卡券签发 + PassKit Web Service 回调
type PassService interface {
	IssuePass(ctx context.Context, businessID, customerID, offerID, walletType string) (*PassIssueResult, error)
	RegisterAppleDevice(ctx context.Context, deviceLibraryID, passTypeID, serial, authToken, pushToken string) (bool, error)
	UnregisterAppleDevice(ctx context.Context, deviceLibraryID, passTypeID, serial, authToken string) error
	AppleSerialsForDevice(ctx context.Context, deviceLibraryID, passTypeID string, updatedSince *time.Time) ([]string, time.Time, error)
	ApplePassPayload(ctx context.Context, passTypeID, serial, authToken string) (map[string]interface{}, error)
}

type passService struct {
	repo      repository.WalletPassRepository
	google    *adapter.GoogleAdapter
	apple     *adapter.AppleAdapter
	customers customerService.CustomerService
	offers    offerService.OfferService
	progress  progressService.ProgressService
	log       *zap.Logger
}

func NewPassService(
	repo repository.WalletPassRepository,
	google *adapter.GoogleAdapter,
	apple *adapter.AppleAdapter,
	customers customerService.CustomerService,
	offers offerService.OfferService,
	progress progressService.ProgressService,
) PassService {
	log := logger.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &passService{
		repo:      repo,
		google:    google,
		apple:     apple,
		customers: customers,
		offers:    offers,
		progress:  progress,
		log:       log,
	}
}

// IssuePass 给客户签发指定平台的会员卡
//
// 幂等：重复签发返回同一张卡（Google 同一 objectID，Apple 同一
// 序列号），进度行在签发时一并建好。
func (s *passService) IssuePass(ctx context.Context, businessID, customerID, offerID, walletType string) (*PassIssueResult, error) {
	var ad adapter.WalletAdapter
	switch walletType {
	case walletModel.WalletApple:
		ad = s.apple
	case walletModel.WalletGoogle:
		ad = s.google
	default:
		return nil, errs.ErrWalletUnsupported
	}
	if !ad.Enabled() {
		return nil, errs.NewWalletUnavailable(ad.Platform())
	}

	customer, err := s.customers.GetCustomer(businessID, customerID)
	if err != nil {
		return nil, err
	}

	offer, err := s.offers.GetOffer(offerID)
	if err != nil {
		return nil, err
	}
	if offer.BusinessID != businessID {
		return nil, errs.ErrOfferNotFound
	}
	if !offer.IsActive() {
		return nil, errs.ErrOfferInactive
	}

	prog, err := s.progress.EnsureProgress(ctx, customerID, offerID, businessID)
	if err != nil {
		return nil, err
	}

	// 先探一次是否已有卡，决定要不要计一次新建
	_, err = s.repo.GetByCustomerOfferType(ctx, customerID, offerID, walletType)
	isNew := errors.Is(err, errs.ErrPassNotFound)
	if err != nil && !isNew {
		return nil, err
	}

	if err := ad.EnsureClassExists(ctx, offer); err != nil {
		return nil, err
	}
	if err := ad.EnsureObjectExists(ctx, customer, offer, prog); err != nil {
		return nil, err
	}

	var pass *walletModel.WalletPass
	switch walletType {
	case walletModel.WalletApple:
		// Apple 的 EnsureObjectExists 已落本地行
		pass, err = s.repo.GetByCustomerOfferType(ctx, customerID, offerID, walletType)
	case walletModel.WalletGoogle:
		pass, err = s.ensureGooglePassRow(ctx, customer, offer)
	}
	if err != nil {
		return nil, err
	}

	if isNew {
		metrics.GetGlobalCollector().RecordPassCreated(walletType)
		s.log.Info("wallet pass issued",
			zap.String("platform", ad.Platform()),
			zap.String("customer_id", customerID),
			zap.String("offer_id", offerID))
	}

	result := &PassIssueResult{Pass: pass}
	tier := offerService.ComputeTier(offer.TierLevels, prog.RewardsClaimed)

	switch walletType {
	case walletModel.WalletGoogle:
		result.SaveURL, err = s.google.SaveLink(customer, offer)
		if err != nil {
			return nil, err
		}
	case walletModel.WalletApple:
		result.PassPayload = s.apple.BuildPassPayload(pass, customer, offer, prog, tier)
	}

	return result, nil
}

// ensureGooglePassRow Google 的远端对象已就位，本地行缺了就补
func (s *passService) ensureGooglePassRow(ctx context.Context, customer *customerModel.Customer, offer *offerModel.Offer) (*walletModel.WalletPass, error) {
	existing, err := s.repo.GetByCustomerOfferType(ctx, customer.ID, offer.ID, walletModel.WalletGoogle)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, errs.ErrPassNotFound) {
		return nil, err
	}

	pass := &walletModel.WalletPass{
		CustomerID:   customer.ID,
		OfferID:      offer.ID,
		BusinessID:   customer.BusinessID,
		WalletType:   walletModel.WalletGoogle,
		RemoteID:     s.google.ObjectID(customer.ID, offer.ID),
		SerialNumber: uuid.NewString(),
		Status:       walletModel.PassActive,
	}

	if createErr := s.repo.Create(ctx, pass); createErr != nil {
		// 并发签发撞唯一索引，回读已有行
		if existing, getErr := s.repo.GetByCustomerOfferType(ctx, customer.ID, offer.ID, walletModel.WalletGoogle); getErr == nil {
			return existing, nil
		}
		return nil, createErr
	}

	return pass, nil
}

// loadAuthorizedPass 按序列号取卡并校验 PassKit 回调鉴权令牌
func (s *passService) loadAuthorizedPass(ctx context.Context, passTypeID, serial, authToken string) (*walletModel.WalletPass, error) {
	if passTypeID != s.apple.PassTypeID() {
		return nil, errs.ErrPassNotFound
	}

	pass, err := s.repo.GetBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}
	if pass.WalletType != walletModel.WalletApple {
		return nil, errs.ErrPassNotFound
	}
	if !s.apple.VerifyAuthToken(pass, authToken) {
		return nil, errs.ErrPassAuthFailed
	}

	return pass, nil
}

// RegisterAppleDevice 设备订阅一张卡的更新推送，返回是否新建
func (s *passService) RegisterAppleDevice(ctx context.Context, deviceLibraryID, passTypeID, serial, authToken, pushToken string) (bool, error) {
	pass, err := s.loadAuthorizedPass(ctx, passTypeID, serial, authToken)
	if err != nil {
		return false, err
	}

	reg := &walletModel.AppleDeviceRegistration{
		DeviceLibraryID: deviceLibraryID,
		WalletPassID:    pass.ID,
		PushToken:       pushToken,
	}

	created, err := s.repo.RegisterDevice(ctx, reg)
	if err != nil {
		return false, err
	}
	if created {
		s.log.Info("apple device registered",
			zap.String("serial_number", serial),
			zap.String("device_library_id", deviceLibraryID))
	}

	return created, nil
}

func (s *passService) UnregisterAppleDevice(ctx context.Context, deviceLibraryID, passTypeID, serial, authToken string) error {
	pass, err := s.loadAuthorizedPass(ctx, passTypeID, serial, authToken)
	if err != nil {
		return err
	}
	return s.repo.UnregisterDevice(ctx, deviceLibraryID, pass.ID)
}

// AppleSerialsForDevice 列出设备订阅的卡（该端点按协议无鉴权头）
func (s *passService) AppleSerialsForDevice(ctx context.Context, deviceLibraryID, passTypeID string, updatedSince *time.Time) ([]string, time.Time, error) {
	if passTypeID != s.apple.PassTypeID() {
		return nil, time.Time{}, errs.ErrPassNotFound
	}
	return s.repo.GetSerialsForDevice(ctx, deviceLibraryID, updatedSince)
}

// ApplePassPayload 设备回拉最新 pass.json
func (s *passService) ApplePassPayload(ctx context.Context, passTypeID, serial, authToken string) (map[string]interface{}, error) {
	pass, err := s.loadAuthorizedPass(ctx, passTypeID, serial, authToken)
	if err != nil {
		return nil, err
	}

	customer, err := s.customers.GetCustomer(pass.BusinessID, pass.CustomerID)
	if err != nil {
		return nil, err
	}
	offer, err := s.offers.GetOffer(pass.OfferID)
	if err != nil {
		return nil, err
	}
	prog, err := s.progress.EnsureProgress(ctx, pass.CustomerID, pass.OfferID, pass.BusinessID)
	if err != nil {
		return nil, err
	}

	tier := offerService.ComputeTier(offer.TierLevels, prog.RewardsClaimed)
	return s.apple.BuildPassPayload(pass, customer, offer, prog, tier), nil
}
