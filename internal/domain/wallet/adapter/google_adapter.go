package adapter

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
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
	"loyalty_wallet/pkg/cache"
	"loyalty_wallet/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	walletScope   = "https://www.googleapis.com/auth/wallet_object.issuer"
	saveLinkBase  = "https://pay.google.com/gp/v/save/"
	classMarkerNS = "wallet:gclass:"
	// 提前一分钟刷新访问令牌，避免边缘过期
	tokenSlack = time.Minute
)

// GoogleAdapter Google Wallet 渠道
//
// loyaltyClass / loyaltyObject 走 Wallet Objects REST。服务账号用
// RS256 JWT 换取访问令牌，进程内缓存到过期。
type GoogleAdapter struct {
	cfg        config.GoogleConfig
	httpClient *http.Client
	cache      cache.CacheService
	privateKey *rsa.PrivateKey

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewGoogleAdapter(cfg config.GoogleConfig, cacheService cache.CacheService) *GoogleAdapter {
	a := &GoogleAdapter{
		cfg:        cfg,
		cache:      cacheService,
		httpClient: &http.Client{Timeout: time.Second * 10},
	}

	if cfg.Enabled() {
		key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.PrivateKey))
		if err != nil {
			if logger.Log != nil {
				logger.Log.Error("google wallet private key unusable, channel disabled", zap.Error(err))
			}
		} else {
			a.privateKey = key
		}
	}

	return a
}

func (a *GoogleAdapter) Platform() string {
	return walletModel.PlatformGoogleName
}

func (a *GoogleAdapter) WalletType() string {
	return walletModel.WalletGoogle
}

func (a *GoogleAdapter) Enabled() bool {
	return a.cfg.Enabled() && a.privateKey != nil
}

// ClassID 卡券级模板 ID，从 (发行方, 卡券) 确定性推导
func (a *GoogleAdapter) ClassID(offerID string) string {
	return a.cfg.IssuerID + "." + SanitizeRemoteID("loyalty-"+offerID)
}

// ObjectID 客户级对象 ID，从 (发行方, 客户, 卡券) 确定性推导
func (a *GoogleAdapter) ObjectID(customerID, offerID string) string {
	return a.cfg.IssuerID + "." + SanitizeRemoteID(customerID+"-"+offerID)
}

// getAccessToken 服务账号两步认证：自签 JWT 换访问令牌
func (a *GoogleAdapter) getAccessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry) {
		return a.accessToken, nil
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   a.cfg.ServiceAccountEmail,
		"scope": walletScope,
		"aud":   a.cfg.TokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}

	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign service account assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	a.accessToken = tokenResp.AccessToken
	a.tokenExpiry = now.Add(time.Duration(tokenResp.ExpiresIn)*time.Second - tokenSlack)

	return a.accessToken, nil
}

// doRequest 带服务账号令牌的 REST 调用
func (a *GoogleAdapter) doRequest(ctx context.Context, method, endpoint string, payload interface{}) (int, []byte, error) {
	token, err := a.getAccessToken(ctx)
	if err != nil {
		return 0, nil, err
	}

	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}

	return resp.StatusCode, body, nil
}

// adapterError 折叠为统一的适配器错误
func (a *GoogleAdapter) adapterError(remoteID string, status int, err error) *errs.WalletAdapterError {
	if status == http.StatusTooManyRequests {
		return errs.NewWalletRateLimited(a.Platform(), remoteID)
	}
	return &errs.WalletAdapterError{
		Platform:   a.Platform(),
		RemoteID:   remoteID,
		StatusCode: status,
		Retryable:  status == 0 || status >= 500,
		Err:        err,
	}
}

// EnsureClassExists 幂等创建 loyaltyClass
//
// Redis 标记抑制重复探测；GET-then-POST，POST 回 409 视为并发
// 创建成功。
func (a *GoogleAdapter) EnsureClassExists(ctx context.Context, offer *offerModel.Offer) error {
	if !a.Enabled() {
		return errs.NewWalletUnavailable(a.Platform())
	}

	classID := a.ClassID(offer.ID)
	marker := classMarkerNS + classID

	if exists, err := a.cache.Exists(ctx, marker); err == nil && exists {
		return nil
	}

	status, _, err := a.doRequest(ctx, http.MethodGet, a.cfg.APIBaseURL+"/loyaltyClass/"+classID, nil)
	if err != nil {
		return a.adapterError(classID, 0, err)
	}

	switch {
	case status == http.StatusOK:
		// 已存在
	case status == http.StatusNotFound:
		classPayload := map[string]interface{}{
			"id":                 classID,
			"issuerName":         offer.Title,
			"programName":        offer.Title,
			"reviewStatus":       "UNDER_REVIEW",
			"countryCode":        "US",
			"hexBackgroundColor": classColor(offer),
		}
		createStatus, body, err := a.doRequest(ctx, http.MethodPost, a.cfg.APIBaseURL+"/loyaltyClass", classPayload)
		if err != nil {
			return a.adapterError(classID, 0, err)
		}
		// 409 = 并发创建已经赢了，同样算成功
		if createStatus != http.StatusOK && createStatus != http.StatusConflict {
			return a.adapterError(classID, createStatus, fmt.Errorf("create class failed: %s", string(body)))
		}
	default:
		return a.adapterError(classID, status, fmt.Errorf("probe class failed"))
	}

	if err := a.cache.Set(ctx, marker, true, time.Hour*24); err != nil && logger.Log != nil {
		logger.Log.Warn("failed to set class marker", zap.String("class_id", classID), zap.Error(err))
	}

	return nil
}

// classColor 取最高等级的颜色做卡面底色
func classColor(offer *offerModel.Offer) string {
	if len(offer.TierLevels) > 0 {
		return offer.TierLevels[len(offer.TierLevels)-1].Color
	}
	return "#4285F4"
}

// EnsureObjectExists 幂等创建客户的 loyaltyObject
func (a *GoogleAdapter) EnsureObjectExists(ctx context.Context, customer *customerModel.Customer, offer *offerModel.Offer, progress *progressModel.CustomerProgress) error {
	if !a.Enabled() {
		return errs.NewWalletUnavailable(a.Platform())
	}

	objectID := a.ObjectID(customer.ID, offer.ID)

	status, _, err := a.doRequest(ctx, http.MethodGet, a.cfg.APIBaseURL+"/loyaltyObject/"+objectID, nil)
	if err != nil {
		return a.adapterError(objectID, 0, err)
	}
	if status == http.StatusOK {
		return nil
	}
	if status != http.StatusNotFound {
		return a.adapterError(objectID, status, fmt.Errorf("probe object failed"))
	}

	message := BarcodeMessage(customer.ID, customer.BusinessID, offer.ID)
	format := ResolveBarcodeFormat(offer.BarcodeFormat, message)

	objectPayload := map[string]interface{}{
		"id":          objectID,
		"classId":     a.ClassID(offer.ID),
		"state":       "ACTIVE",
		"accountId":   customer.ID,
		"accountName": customer.FullName,
		"loyaltyPoints": map[string]interface{}{
			"label":   "Stamps",
			"balance": map[string]interface{}{"int": progress.CurrentStamps},
		},
		"secondaryLoyaltyPoints": map[string]interface{}{
			"label":   "Rewards",
			"balance": map[string]interface{}{"int": progress.RewardsClaimed},
		},
		"barcode": map[string]interface{}{
			"type":  googleBarcodeType(format),
			"value": message,
		},
	}

	createStatus, body, err := a.doRequest(ctx, http.MethodPost, a.cfg.APIBaseURL+"/loyaltyObject", objectPayload)
	if err != nil {
		return a.adapterError(objectID, 0, err)
	}
	if createStatus != http.StatusOK && createStatus != http.StatusConflict {
		return a.adapterError(objectID, createStatus, fmt.Errorf("create object failed: %s", string(body)))
	}

	return nil
}

// googleBarcodeType 符号名映射
func googleBarcodeType(format string) string {
	if format == offerModel.BarcodeQR {
		return "QR_CODE"
	}
	return "PDF_417"
}

// PushUpdate PATCH 进度到 loyaltyObject，再用 addMessage 触发通知
func (a *GoogleAdapter) PushUpdate(ctx context.Context, pass *walletModel.WalletPass, progress *progressModel.CustomerProgress, tier *offerService.TierStatus) error {
	if !a.Enabled() {
		return errs.NewWalletUnavailable(a.Platform())
	}

	// ID 永远重新推导，不信任远端返回的字符串
	objectID := a.ObjectID(pass.CustomerID, pass.OfferID)

	progressText := ProgressGlyphs(progress.CurrentStamps, progress.MaxStamps)
	if tier != nil && tier.Current != nil {
		progressText += " · " + tier.Current.Name
	}

	patchPayload := map[string]interface{}{
		"loyaltyPoints": map[string]interface{}{
			"label":   "Stamps",
			"balance": map[string]interface{}{"int": progress.CurrentStamps},
		},
		"secondaryLoyaltyPoints": map[string]interface{}{
			"label":   "Rewards",
			"balance": map[string]interface{}{"int": progress.RewardsClaimed},
		},
		"textModulesData": []map[string]interface{}{
			{"id": "progress", "header": "Progress", "body": progressText},
		},
	}

	status, body, err := a.doRequest(ctx, http.MethodPatch, a.cfg.APIBaseURL+"/loyaltyObject/"+objectID, patchPayload)
	if err != nil {
		return a.adapterError(objectID, 0, err)
	}
	if status != http.StatusOK {
		return a.adapterError(objectID, status, fmt.Errorf("patch object failed: %s", string(body)))
	}

	message := "Stamp added!"
	if progress.IsCompleted {
		message = "Your reward is ready to claim!"
	}

	msgPayload := map[string]interface{}{
		"message": map[string]interface{}{
			"header": "Loyalty card updated",
			"body":   message,
		},
	}

	msgStatus, msgBody, err := a.doRequest(ctx, http.MethodPost, a.cfg.APIBaseURL+"/loyaltyObject/"+objectID+"/addMessage", msgPayload)
	if err != nil {
		return a.adapterError(objectID, 0, err)
	}
	if msgStatus != http.StatusOK {
		return a.adapterError(objectID, msgStatus, fmt.Errorf("add message failed: %s", string(msgBody)))
	}

	return nil
}

// SaveLink 生成 "Save to Google Wallet" 链接（RS256 签名 JWT）
func (a *GoogleAdapter) SaveLink(customer *customerModel.Customer, offer *offerModel.Offer) (string, error) {
	if !a.Enabled() {
		return "", errs.NewWalletUnavailable(a.Platform())
	}

	objectID := a.ObjectID(customer.ID, offer.ID)

	claims := jwt.MapClaims{
		"iss": a.cfg.ServiceAccountEmail,
		"aud": "google",
		"typ": "savetowallet",
		"iat": time.Now().Unix(),
		"payload": map[string]interface{}{
			"loyaltyObjects": []map[string]interface{}{
				{"id": objectID, "classId": a.ClassID(offer.ID)},
			},
		},
	}
	if len(a.cfg.Origins) > 0 {
		claims["origins"] = a.cfg.Origins
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign save link: %w", err)
	}

	return saveLinkBase + signed, nil
}
