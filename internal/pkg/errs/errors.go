package errs

import (
	"errors"
	"fmt"
)

// 跨层哨兵错误，handler 通过 errors.Is 映射到响应码
var (
	// ErrTokenDecode 扫码 payload 无法解析
	ErrTokenDecode = errors.New("scan token decode failed")

	// ErrOfferNotFound hash 未匹配到该商户的任何活动
	ErrOfferNotFound = errors.New("offer not found")

	// ErrOfferInactive 活动已暂停或下线
	ErrOfferInactive = errors.New("offer is not active")

	// ErrNotCompleted 集章未满，不能核销奖励
	ErrNotCompleted = errors.New("progress not completed")

	// ErrProgressConflict 进度行并发修改冲突（锁超时/序列化失败）
	ErrProgressConflict = errors.New("progress row conflict")

	// ErrScanCooldown 同一张卡在冷却窗口内重复扫码
	ErrScanCooldown = errors.New("scan cooldown active")

	// ErrCustomerNotFound 客户不存在
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrCustomerExists 同商户下邮箱已注册
	ErrCustomerExists = errors.New("customer already exists")

	// ErrPassNotFound 钱包凭证不存在
	ErrPassNotFound = errors.New("wallet pass not found")

	// ErrPassAuthFailed PassKit 回调携带的鉴权令牌不匹配
	ErrPassAuthFailed = errors.New("pass authentication failed")

	// ErrWalletUnsupported 未知的钱包平台
	ErrWalletUnsupported = errors.New("unsupported wallet platform")
)

// WalletAdapterError 钱包适配器调用失败
// 永远不会升级为请求级错误，只进入同步报告并记日志
type WalletAdapterError struct {
	Platform   string // "Apple Wallet" / "Google Wallet"
	RemoteID   string // 远端对象 ID（用于人工对账）
	StatusCode int    // 远端 HTTP 状态码，0 表示网络层失败
	Retryable  bool   // 限流/超时等可在下次同步时重试
	Err        error
}

func (e *WalletAdapterError) Error() string {
	return fmt.Sprintf("wallet adapter %s failed (remote_id=%s, status=%d): %v",
		e.Platform, e.RemoteID, e.StatusCode, e.Err)
}

func (e *WalletAdapterError) Unwrap() error {
	return e.Err
}

// NewWalletRateLimited 远端限流，标记为可重试
func NewWalletRateLimited(platform, remoteID string) *WalletAdapterError {
	return &WalletAdapterError{
		Platform:   platform,
		RemoteID:   remoteID,
		StatusCode: 429,
		Retryable:  true,
		Err:        errors.New("rate limited by wallet provider"),
	}
}

// NewWalletUnavailable 渠道未配置/未启用
func NewWalletUnavailable(platform string) *WalletAdapterError {
	return &WalletAdapterError{
		Platform:  platform,
		Retryable: true,
		Err:       errors.New("wallet service unavailable"),
	}
}
