package adapter

import (
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	customerModel "loyalty_wallet/internal/domain/customer/model"
	offerModel "loyalty_wallet/internal/domain/offer/model"
	offerService "loyalty_wallet/internal/domain/offer/service"
	progressModel "loyalty_wallet/internal/domain/progress/model"
	walletModel "loyalty_wallet/internal/domain/wallet/model"
	"loyalty_wallet/internal/pkg/config"
	"loyalty_wallet/internal/pkg/errs"
	"loyalty_wallet/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// APNs provider token 官方允许 20-60 分钟复用，取 40 分钟
const apnsTokenLifetime = 40 * time.Minute

// PassStore Apple 渠道需要的本地存储子集
type PassStore interface {
	GetByCustomerOfferType(ctx context.Context, customerID, offerID, walletType string) (*walletModel.WalletPass, error)
	Create(ctx context.Context, pass *walletModel.WalletPass) error
	GetDeviceTokens(ctx context.Context, passID string) ([]string, error)
	DeleteRegistrationsByToken(ctx context.Context, pushToken string) error
}

// AppleAdapter Apple Wallet (PassKit) 渠道
//
// Apple 没有服务端对象注册表：卡面数据在 pass.json 里，更新通过
// APNs 空推送触发设备回拉。本地 wallet_passes 行即"对象"。
type AppleAdapter struct {
	cfg        config.AppleConfig
	repo       PassStore
	httpClient *http.Client
	apnsKey    *ecdsa.PrivateKey

	mu            sync.Mutex
	providerToken string
	tokenExpiry   time.Time
}

func NewAppleAdapter(cfg config.AppleConfig, repo PassStore) *AppleAdapter {
	a := &AppleAdapter{
		cfg:        cfg,
		repo:       repo,
		httpClient: &http.Client{Timeout: time.Second * 10},
	}

	if cfg.Enabled() {
		key, err := jwt.ParseECPrivateKeyFromPEM([]byte(cfg.APNsPrivateKey))
		if err != nil {
			if logger.Log != nil {
				logger.Log.Error("apple apns private key unusable, channel disabled", zap.Error(err))
			}
		} else {
			a.apnsKey = key
		}
	}

	return a
}

func (a *AppleAdapter) Platform() string {
	return walletModel.PlatformAppleName
}

func (a *AppleAdapter) WalletType() string {
	return walletModel.WalletApple
}

func (a *AppleAdapter) Enabled() bool {
	return a.cfg.Enabled() && a.apnsKey != nil
}

// PassTypeID PassKit Web Service 路径里的 passTypeIdentifier
func (a *AppleAdapter) PassTypeID() string {
	return a.cfg.PassTypeIdentifier
}

// AuthToken PassKit Web Service 回调的每卡鉴权令牌
//
// 由密钥对 (customerID, offerID) 做 HMAC-SHA256 派生，同一张卡
// 重复签发得到同一令牌。
func (a *AppleAdapter) AuthToken(customerID, offerID string) string {
	mac := hmac.New(sha256.New, []byte(a.cfg.AuthTokenSecret))
	mac.Write([]byte(customerID + ":" + offerID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyAuthToken 常数时间比较回调携带的令牌
func (a *AppleAdapter) VerifyAuthToken(pass *walletModel.WalletPass, presented string) bool {
	if pass.AuthenticationToken == "" || presented == "" {
		return false
	}
	return hmac.Equal([]byte(pass.AuthenticationToken), []byte(presented))
}

// EnsureClassExists Apple 无模板注册表，只校验渠道配置
func (a *AppleAdapter) EnsureClassExists(ctx context.Context, offer *offerModel.Offer) error {
	if !a.Enabled() {
		return errs.NewWalletUnavailable(a.Platform())
	}
	return nil
}

// EnsureObjectExists 保证 (客户, 卡券, apple) 的本地卡记录存在
//
// 序列号取随机 UUID，鉴权令牌确定性派生。并发签发撞唯一索引时
// 回读已有行。
func (a *AppleAdapter) EnsureObjectExists(ctx context.Context, customer *customerModel.Customer, offer *offerModel.Offer, progress *progressModel.CustomerProgress) error {
	if !a.Enabled() {
		return errs.NewWalletUnavailable(a.Platform())
	}

	_, err := a.repo.GetByCustomerOfferType(ctx, customer.ID, offer.ID, walletModel.WalletApple)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errs.ErrPassNotFound) {
		return err
	}

	serial := uuid.NewString()
	pass := &walletModel.WalletPass{
		CustomerID:          customer.ID,
		OfferID:             offer.ID,
		BusinessID:          customer.BusinessID,
		WalletType:          walletModel.WalletApple,
		RemoteID:            serial,
		SerialNumber:        serial,
		AuthenticationToken: a.AuthToken(customer.ID, offer.ID),
		Status:              walletModel.PassActive,
	}

	if createErr := a.repo.Create(ctx, pass); createErr != nil {
		// 并发创建输了也没关系，行在就行
		if _, getErr := a.repo.GetByCustomerOfferType(ctx, customer.ID, offer.ID, walletModel.WalletApple); getErr == nil {
			return nil
		}
		return createErr
	}

	return nil
}

// getProviderToken APNs ES256 provider token，进程内缓存复用
func (a *AppleAdapter) getProviderToken() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.providerToken != "" && time.Now().Before(a.tokenExpiry) {
		return a.providerToken, nil
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": a.cfg.TeamID,
		"iat": now.Unix(),
	})
	token.Header["kid"] = a.cfg.APNsKeyID

	signed, err := token.SignedString(a.apnsKey)
	if err != nil {
		return "", fmt.Errorf("sign apns provider token: %w", err)
	}

	a.providerToken = signed
	a.tokenExpiry = now.Add(apnsTokenLifetime)

	return signed, nil
}

// PushUpdate 向每台已注册设备发空推送，让钱包回拉最新 pass
//
// 410/400(BadDeviceToken) 的令牌当场剪除。只要有一台设备推送
// 成功即视为整体成功；没有注册设备是空操作。
func (a *AppleAdapter) PushUpdate(ctx context.Context, pass *walletModel.WalletPass, progress *progressModel.CustomerProgress, tier *offerService.TierStatus) error {
	if !a.Enabled() {
		return errs.NewWalletUnavailable(a.Platform())
	}

	tokens, err := a.repo.GetDeviceTokens(ctx, pass.ID)
	if err != nil {
		return &errs.WalletAdapterError{
			Platform: a.Platform(),
			RemoteID: pass.SerialNumber,
			Err:      fmt.Errorf("load device tokens: %w", err),
		}
	}
	if len(tokens) == 0 {
		if logger.Log != nil {
			logger.Log.Debug("no registered devices for pass, skipping push",
				zap.String("serial_number", pass.SerialNumber))
		}
		return nil
	}

	providerToken, err := a.getProviderToken()
	if err != nil {
		return &errs.WalletAdapterError{
			Platform: a.Platform(),
			RemoteID: pass.SerialNumber,
			Err:      err,
		}
	}

	var (
		succeeded int
		lastErr   error
	)

	for _, deviceToken := range tokens {
		status, reason, pushErr := a.pushOne(ctx, providerToken, deviceToken)
		if pushErr != nil {
			lastErr = pushErr
			continue
		}

		switch {
		case status == http.StatusOK:
			succeeded++
		case status == http.StatusGone || (status == http.StatusBadRequest && reason == "BadDeviceToken"):
			// 设备早已注销，顺手清掉注册记录
			if delErr := a.repo.DeleteRegistrationsByToken(ctx, deviceToken); delErr != nil && logger.Log != nil {
				logger.Log.Warn("failed to prune dead device token", zap.Error(delErr))
			}
		case status == http.StatusTooManyRequests:
			lastErr = errs.NewWalletRateLimited(a.Platform(), pass.SerialNumber)
		default:
			lastErr = fmt.Errorf("apns push failed with status %d (%s)", status, reason)
		}
	}

	if succeeded == 0 && lastErr != nil {
		var adapterErr *errs.WalletAdapterError
		if errors.As(lastErr, &adapterErr) {
			return lastErr
		}
		return &errs.WalletAdapterError{
			Platform:  a.Platform(),
			RemoteID:  pass.SerialNumber,
			Retryable: true,
			Err:       lastErr,
		}
	}

	return nil
}

// pushOne 单设备 APNs 请求，返回状态码和失败原因
func (a *AppleAdapter) pushOne(ctx context.Context, providerToken, deviceToken string) (int, string, error) {
	endpoint := a.cfg.APNsHost + "/3/device/" + deviceToken

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(`{"aps":{}}`))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Authorization", "Bearer "+providerToken)
	req.Header.Set("apns-topic", a.cfg.PassTypeIdentifier)
	req.Header.Set("apns-push-type", "background")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return resp.StatusCode, "", nil
	}

	body, _ := io.ReadAll(resp.Body)
	var apnsResp struct {
		Reason string `json:"reason"`
	}
	if len(body) > 0 {
		// reason 解析失败不影响状态码判断
		_ = json.Unmarshal(body, &apnsResp)
	}

	return resp.StatusCode, apnsResp.Reason, nil
}

// BuildPassPayload 组装 pass.json（storeCard 布局）
//
// 打包成 .pkpass 由签名服务完成，这里只负责内容。
func (a *AppleAdapter) BuildPassPayload(pass *walletModel.WalletPass, customer *customerModel.Customer, offer *offerModel.Offer, progress *progressModel.CustomerProgress, tier *offerService.TierStatus) map[string]interface{} {
	message := BarcodeMessage(customer.ID, customer.BusinessID, offer.ID)
	format := ResolveBarcodeFormat(offer.BarcodeFormat, message)

	secondaryFields := []map[string]interface{}{
		{"key": "stamps", "label": "STAMPS", "value": fmt.Sprintf("%d / %d", progress.CurrentStamps, progress.MaxStamps)},
		{"key": "rewards", "label": "REWARDS", "value": progress.RewardsClaimed},
	}

	auxiliaryFields := []map[string]interface{}{}
	if tier != nil && tier.Current != nil {
		auxiliaryFields = append(auxiliaryFields, map[string]interface{}{
			"key": "tier", "label": "TIER", "value": tier.Current.Name,
		})
	}

	return map[string]interface{}{
		"formatVersion":       1,
		"passTypeIdentifier":  a.cfg.PassTypeIdentifier,
		"teamIdentifier":      a.cfg.TeamID,
		"serialNumber":        pass.SerialNumber,
		"organizationName":    offer.Title,
		"description":         offer.Title,
		"webServiceURL":       a.cfg.WebServiceURL,
		"authenticationToken": pass.AuthenticationToken,
		"barcodes": []map[string]interface{}{
			{
				"format":          applePassBarcodeFormat(format),
				"message":         message,
				"messageEncoding": "iso-8859-1",
			},
		},
		"storeCard": map[string]interface{}{
			"primaryFields": []map[string]interface{}{
				{"key": "progress", "label": "PROGRESS", "value": ProgressGlyphs(progress.CurrentStamps, progress.MaxStamps)},
			},
			"secondaryFields": secondaryFields,
			"auxiliaryFields": auxiliaryFields,
		},
	}
}

// applePassBarcodeFormat PassKit 符号名映射
func applePassBarcodeFormat(format string) string {
	if format == offerModel.BarcodeQR {
		return "PKBarcodeFormatQR"
	}
	return "PKBarcodeFormatPDF417"
}
