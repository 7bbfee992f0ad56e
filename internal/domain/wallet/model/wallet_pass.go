package model

import (
	"time"

	baseModel "loyalty_wallet/pkg/model"
)

// 钱包平台类型（存储值）
const (
	WalletApple  = "apple"
	WalletGoogle = "google"
)

// 对外展示的平台名
const (
	PlatformAppleName  = "Apple Wallet"
	PlatformGoogleName = "Google Wallet"
)

// PlatformName 存储值到展示名的映射
func PlatformName(walletType string) string {
	switch walletType {
	case WalletApple:
		return PlatformAppleName
	case WalletGoogle:
		return PlatformGoogleName
	default:
		return walletType
	}
}

// 凭证状态
const (
	PassActive  = 1
	PassExpired = 2
	PassRevoked = 3
	PassDeleted = 4
)

// WalletPass 客户持有的钱包凭证
//
// 每个 (customer, offer, wallet_type) 一行。这组行就是"客户把卡
// 装进了哪些钱包"的权威答案，同步分发器只对已存在的行推送。
type WalletPass struct {
	baseModel.BaseModel
	CustomerID string `gorm:"type:uuid;uniqueIndex:idx_pass_customer_offer_type;not null" json:"customerId"`
	OfferID    string `gorm:"type:uuid;uniqueIndex:idx_pass_customer_offer_type;not null" json:"offerId"`
	BusinessID string `gorm:"type:uuid;index;not null" json:"businessId"`
	WalletType string `gorm:"type:varchar(10);uniqueIndex:idx_pass_customer_offer_type;not null" json:"walletType"`

	// RemoteID 远端对象 ID（Google loyaltyObject；Apple 无远端对象，留空）
	RemoteID string `gorm:"type:varchar(255)" json:"remoteId"`

	// SerialNumber PassKit 序列号，Google 侧也生成便于统一排查
	SerialNumber string `gorm:"type:varchar(64);uniqueIndex" json:"serialNumber"`

	// AuthenticationToken PassKit web service 鉴权令牌（仅 Apple）
	// 派生方式固定为 HMAC-SHA256(secret, customerID:offerID)
	AuthenticationToken string `gorm:"type:varchar(128)" json:"-"`

	LastPushAt *time.Time `json:"lastPushAt,omitempty"`
	Status     int        `gorm:"default:1" json:"status"`
}

// AppleDeviceRegistration 设备对凭证的推送注册
//
// 由 PassKit web service 回调写入，APNs 推送按它定位设备。
type AppleDeviceRegistration struct {
	baseModel.HardModel
	DeviceLibraryID string `gorm:"type:varchar(64);uniqueIndex:idx_device_pass;not null" json:"deviceLibraryId"`
	WalletPassID    string `gorm:"type:uuid;uniqueIndex:idx_device_pass;index;not null" json:"walletPassId"`
	PushToken       string `gorm:"type:varchar(255);not null" json:"-"`
}
