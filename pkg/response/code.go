package response

// 业务状态码
const (
	CodeSuccess = 0
	CodeError   = 1

	// 认证错误 100xx
	ErrAuthFailed   = 10003
	ErrTokenInvalid = 10004
	ErrNoPermission = 10005

	// 商户/优惠活动错误 200xx
	ErrOfferNotFound  = 20001
	ErrOfferPaused    = 20002
	ErrTierConfig     = 20003
	ErrCustomerExists = 20004

	// 扫码/进度错误 300xx
	ErrScanTokenInvalid = 30001
	ErrNotCompleted     = 30002
	ErrScanConflict     = 30003
	ErrScanCooldown     = 30004

	// 钱包错误 400xx
	ErrWalletUnsupported = 40001
	ErrWalletPassExists  = 40002
	ErrWalletDisabled    = 40003

	// 系统错误 500xx
	ErrServerInternal  = 50001
	ErrInvalidParam    = 50002
	ErrTooManyRequests = 50003
)
