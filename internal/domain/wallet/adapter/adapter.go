package adapter

import (
	"context"
	"strings"

	customerModel "loyalty_wallet/internal/domain/customer/model"
	offerModel "loyalty_wallet/internal/domain/offer/model"
	offerService "loyalty_wallet/internal/domain/offer/service"
	progressModel "loyalty_wallet/internal/domain/progress/model"
	walletModel "loyalty_wallet/internal/domain/wallet/model"
)

// WalletAdapter 钱包平台适配器
//
// 两个平台各自权威：Apple 的凭证在设备上，远端面只有 APNs 与
// PassKit 回调；Google 的凭证是云端 loyaltyObject。适配器把这两套
// 模型折叠成同一组幂等操作，分发器对它们一视同仁。
type WalletAdapter interface {
	// Platform 展示名，如 "Apple Wallet"
	Platform() string

	// WalletType 存储值，walletModel.WalletApple / WalletGoogle
	WalletType() string

	// Enabled 渠道凭据是否配置齐全。未启用的适配器由分发器折叠成
	// "渠道不可用"的同步结果，不会升级成错误。
	Enabled() bool

	// EnsureClassExists 幂等保证卡券级模板存在。并发调用不得向上
	// 抛重复创建错误。
	EnsureClassExists(ctx context.Context, offer *offerModel.Offer) error

	// EnsureObjectExists 幂等保证客户级对象存在。对象 ID 只从
	// (发行方, 客户, 卡券) 确定性推导。
	EnsureObjectExists(ctx context.Context, customer *customerModel.Customer, offer *offerModel.Offer, progress *progressModel.CustomerProgress) error

	// PushUpdate 将进度快照写到平台并触发设备可见的更新通知。
	// 失败返回 *errs.WalletAdapterError，由分发器折叠。
	PushUpdate(ctx context.Context, pass *walletModel.WalletPass, progress *progressModel.CustomerProgress, tier *offerService.TierStatus) error
}

// SanitizeRemoteID 远端对象 ID 的统一净化规则
//
// 平台只接受 [A-Za-z0-9._-]，其余字符一律替换成下划线。ID 永远
// 重新推导，不做反向解析。
func SanitizeRemoteID(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// ProgressGlyphs 卡面上的集点进度串（实心/空心星）
func ProgressGlyphs(current, max int) string {
	if max <= 0 {
		return ""
	}
	if current > max {
		current = max
	}
	if current < 0 {
		current = 0
	}
	return strings.Repeat("★", current) + strings.Repeat("☆", max-current)
}
