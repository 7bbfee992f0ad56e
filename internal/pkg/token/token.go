package token

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"loyalty_wallet/internal/pkg/errs"
)

// 扫码身份令牌编解码
//
// 令牌是可逆的 URL 安全编码，只为避免二维码里出现裸的客户/商户 ID，
// 不提供机密性保证。活动侧通过 8 位十六进制 OfferHash 定位，校验方
// 对商户名下的每个活动重新计算并比对，从不反解。

// OfferHashLen OfferHash 截断长度（十六进制字符数）
const OfferHashLen = 8

// 令牌内部字段分隔符；base64 RawURL 字母表不含 ':'，拼接 payload 时安全
const tokenSep = ":"

// DecodedToken 解码后的扫码身份
type DecodedToken struct {
	CustomerID string    `json:"customerId"`
	BusinessID string    `json:"businessId"`
	IssuedAt   time.Time `json:"issuedAt"`
	Valid      bool      `json:"valid"`
}

// Encode 生成扫码身份令牌
func Encode(customerID, businessID string, issuedAt time.Time) string {
	raw := fmt.Sprintf("%s%s%s%s%d", customerID, tokenSep, businessID, tokenSep, issuedAt.Unix())
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode 解析扫码身份令牌
// 任何畸形输入都返回 errs.ErrTokenDecode 且 Valid=false，不会 panic
func Decode(tok string) (DecodedToken, error) {
	if tok == "" {
		return DecodedToken{}, fmt.Errorf("%w: empty token", errs.ErrTokenDecode)
	}

	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		return DecodedToken{}, fmt.Errorf("%w: %v", errs.ErrTokenDecode, err)
	}

	parts := strings.Split(string(raw), tokenSep)
	if len(parts) != 3 {
		return DecodedToken{}, fmt.Errorf("%w: expected 3 segments, got %d", errs.ErrTokenDecode, len(parts))
	}
	if parts[0] == "" || parts[1] == "" {
		return DecodedToken{}, fmt.Errorf("%w: empty id segment", errs.ErrTokenDecode)
	}

	ts, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return DecodedToken{}, fmt.Errorf("%w: bad timestamp", errs.ErrTokenDecode)
	}

	return DecodedToken{
		CustomerID: parts[0],
		BusinessID: parts[1],
		IssuedAt:   time.Unix(ts, 0),
		Valid:      true,
	}, nil
}

// OfferHash 计算活动摘要
// 对 (offerID, businessID) 做 sha256 后截断为 8 位十六进制，
// 确定性、不可逆，校验靠重算比对
func OfferHash(offerID, businessID string) string {
	sum := sha256.Sum256([]byte(offerID + tokenSep + businessID))
	return hex.EncodeToString(sum[:])[:OfferHashLen]
}

// VerifyOfferHash 校验 hash 是否由该 (offerID, businessID) 生成
func VerifyOfferHash(offerID, businessID, hash string) bool {
	return hash != "" && OfferHash(offerID, businessID) == hash
}

// SplitScanPayload 归一化两种二维码格式
// 扫码 payload 可能是单段 "token:hash"，也可能是两个独立路径段；
// 两种格式归一化后下游行为完全一致
func SplitScanPayload(payload, hash string) (string, string, error) {
	if hash != "" {
		if payload == "" {
			return "", "", fmt.Errorf("%w: empty token segment", errs.ErrTokenDecode)
		}
		return payload, hash, nil
	}

	// 单段格式：token 是 base64url，不含 ':'，最后一个 ':' 之后即 hash
	idx := strings.LastIndex(payload, tokenSep)
	if idx <= 0 || idx == len(payload)-1 {
		return "", "", fmt.Errorf("%w: combined payload missing hash segment", errs.ErrTokenDecode)
	}
	return payload[:idx], payload[idx+1:], nil
}
