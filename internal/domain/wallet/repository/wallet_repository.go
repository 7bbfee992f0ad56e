package repository

import (
	"context"
	"errors"
	"time"

	"loyalty_wallet/internal/domain/wallet/model"
	"loyalty_wallet/internal/pkg/errs"

	"gorm.io/gorm"
)

type WalletPassRepository interface {
	Create(ctx context.Context, pass *model.WalletPass) error
	GetByCustomerAndOffer(ctx context.Context, customerID, offerID string) ([]model.WalletPass, error)
	GetByCustomerOfferType(ctx context.Context, customerID, offerID, walletType string) (*model.WalletPass, error)
	GetBySerial(ctx context.Context, serial string) (*model.WalletPass, error)
	UpdateLastPush(ctx context.Context, passID string, at time.Time) error
	UpdateRemoteID(ctx context.Context, passID, remoteID string) error
	UpdateStatus(ctx context.Context, passID string, status int) error

	RegisterDevice(ctx context.Context, reg *model.AppleDeviceRegistration) (bool, error)
	UnregisterDevice(ctx context.Context, deviceLibraryID, passID string) error
	GetDeviceTokens(ctx context.Context, passID string) ([]string, error)
	GetRegistration(ctx context.Context, deviceLibraryID, passID string) (*model.AppleDeviceRegistration, error)
	GetSerialsForDevice(ctx context.Context, deviceLibraryID string, updatedSince *time.Time) ([]string, time.Time, error)
	DeleteRegistrationsByToken(ctx context.Context, pushToken string) error
}

type walletPassRepository struct {
	db *gorm.DB
}

func NewWalletPassRepository(db *gorm.DB) WalletPassRepository {
	return &walletPassRepository{db: db}
}

func (r *walletPassRepository) Create(ctx context.Context, pass *model.WalletPass) error {
	return r.db.WithContext(ctx).Create(pass).Error
}

// GetByCustomerAndOffer 客户在一张卡券上持有的全部钱包凭证
func (r *walletPassRepository) GetByCustomerAndOffer(ctx context.Context, customerID, offerID string) ([]model.WalletPass, error) {
	var passes []model.WalletPass
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND offer_id = ? AND status = ?", customerID, offerID, model.PassActive).
		Order("wallet_type ASC").
		Find(&passes).Error
	return passes, err
}

func (r *walletPassRepository) GetByCustomerOfferType(ctx context.Context, customerID, offerID, walletType string) (*model.WalletPass, error) {
	var pass model.WalletPass
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND offer_id = ? AND wallet_type = ?", customerID, offerID, walletType).
		First(&pass).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrPassNotFound
		}
		return nil, err
	}
	return &pass, nil
}

func (r *walletPassRepository) GetBySerial(ctx context.Context, serial string) (*model.WalletPass, error) {
	var pass model.WalletPass
	err := r.db.WithContext(ctx).
		Where("serial_number = ?", serial).
		First(&pass).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrPassNotFound
		}
		return nil, err
	}
	return &pass, nil
}

func (r *walletPassRepository) UpdateLastPush(ctx context.Context, passID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.WalletPass{}).
		Where("id = ?", passID).
		Update("last_push_at", at).Error
}

func (r *walletPassRepository) UpdateRemoteID(ctx context.Context, passID, remoteID string) error {
	return r.db.WithContext(ctx).Model(&model.WalletPass{}).
		Where("id = ?", passID).
		Update("remote_id", remoteID).Error
}

func (r *walletPassRepository) UpdateStatus(ctx context.Context, passID string, status int) error {
	return r.db.WithContext(ctx).Model(&model.WalletPass{}).
		Where("id = ?", passID).
		Update("status", status).Error
}

// RegisterDevice 登记设备推送注册（幂等）
//
// 返回值表示是否新建：PassKit 协议要求新建回 201、已存在回 200。
func (r *walletPassRepository) RegisterDevice(ctx context.Context, reg *model.AppleDeviceRegistration) (bool, error) {
	existing, err := r.GetRegistration(ctx, reg.DeviceLibraryID, reg.WalletPassID)
	if err == nil {
		// 设备换了推送令牌时原地更新
		if existing.PushToken != reg.PushToken {
			updateErr := r.db.WithContext(ctx).Model(&model.AppleDeviceRegistration{}).
				Where("id = ?", existing.ID).
				Update("push_token", reg.PushToken).Error
			return false, updateErr
		}
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	if err := r.db.WithContext(ctx).Create(reg).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (r *walletPassRepository) UnregisterDevice(ctx context.Context, deviceLibraryID, passID string) error {
	return r.db.WithContext(ctx).
		Where("device_library_id = ? AND wallet_pass_id = ?", deviceLibraryID, passID).
		Delete(&model.AppleDeviceRegistration{}).Error
}

func (r *walletPassRepository) GetDeviceTokens(ctx context.Context, passID string) ([]string, error) {
	var tokens []string
	err := r.db.WithContext(ctx).Model(&model.AppleDeviceRegistration{}).
		Where("wallet_pass_id = ?", passID).
		Pluck("push_token", &tokens).Error
	return tokens, err
}

func (r *walletPassRepository) GetRegistration(ctx context.Context, deviceLibraryID, passID string) (*model.AppleDeviceRegistration, error) {
	var reg model.AppleDeviceRegistration
	err := r.db.WithContext(ctx).
		Where("device_library_id = ? AND wallet_pass_id = ?", deviceLibraryID, passID).
		First(&reg).Error
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// GetSerialsForDevice 设备注册过的、在 updatedSince 之后有更新的凭证序列号
func (r *walletPassRepository) GetSerialsForDevice(ctx context.Context, deviceLibraryID string, updatedSince *time.Time) ([]string, time.Time, error) {
	query := r.db.WithContext(ctx).Model(&model.WalletPass{}).
		Joins("JOIN apple_device_registrations ON apple_device_registrations.wallet_pass_id = wallet_passes.id").
		Where("apple_device_registrations.device_library_id = ?", deviceLibraryID).
		Where("wallet_passes.status = ?", model.PassActive)

	if updatedSince != nil {
		query = query.Where("wallet_passes.updated_at > ?", *updatedSince)
	}

	var serials []string
	if err := query.Pluck("wallet_passes.serial_number", &serials).Error; err != nil {
		return nil, time.Time{}, err
	}

	var lastUpdated time.Time
	if len(serials) > 0 {
		row := r.db.WithContext(ctx).Model(&model.WalletPass{}).
			Joins("JOIN apple_device_registrations ON apple_device_registrations.wallet_pass_id = wallet_passes.id").
			Where("apple_device_registrations.device_library_id = ?", deviceLibraryID).
			Select("MAX(wallet_passes.updated_at)").
			Row()
		if err := row.Scan(&lastUpdated); err != nil {
			return nil, time.Time{}, err
		}
	}

	return serials, lastUpdated, nil
}

// DeleteRegistrationsByToken APNs 报废令牌后清理对应注册
func (r *walletPassRepository) DeleteRegistrationsByToken(ctx context.Context, pushToken string) error {
	return r.db.WithContext(ctx).
		Where("push_token = ?", pushToken).
		Delete(&model.AppleDeviceRegistration{}).Error
}
