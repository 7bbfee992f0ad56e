package token

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"loyalty_wallet/internal/pkg/errs"
)

func TestEncodeDecode(t *testing.T) {
	t.Run("Round trip preserves identity", func(t *testing.T) {
		customerID := uuid.New().String()
		businessID := uuid.New().String()
		issuedAt := time.Now().Truncate(time.Second)

		tok := Encode(customerID, businessID, issuedAt)
		assert.NotEmpty(t, tok)
		// URL 安全：不应出现需要转义的字符
		assert.NotContains(t, tok, "+")
		assert.NotContains(t, tok, "/")
		assert.NotContains(t, tok, "=")

		decoded, err := Decode(tok)
		assert.NoError(t, err)
		assert.True(t, decoded.Valid)
		assert.Equal(t, customerID, decoded.CustomerID)
		assert.Equal(t, businessID, decoded.BusinessID)
		assert.Equal(t, issuedAt.Unix(), decoded.IssuedAt.Unix())
	})

	t.Run("Malformed inputs never panic", func(t *testing.T) {
		cases := []string{
			"",
			"not-base64!!!",
			"aGVsbG8",                  // 解码后没有分隔符
			Encode("", "", time.Now()), // 空 ID 段
			"YTpiOmNkZWY",              // 时间戳不是数字
		}
		for _, c := range cases {
			decoded, err := Decode(c)
			assert.Error(t, err, "input %q", c)
			assert.ErrorIs(t, err, errs.ErrTokenDecode)
			assert.False(t, decoded.Valid)
		}
	})
}

func TestOfferHash(t *testing.T) {
	t.Run("Deterministic and fixed width", func(t *testing.T) {
		h1 := OfferHash("offer-1", "biz-1")
		h2 := OfferHash("offer-1", "biz-1")
		assert.Equal(t, h1, h2)
		assert.Len(t, h1, OfferHashLen)
	})

	t.Run("Different pairs produce different hashes", func(t *testing.T) {
		assert.NotEqual(t, OfferHash("offer-1", "biz-1"), OfferHash("offer-2", "biz-1"))
		assert.NotEqual(t, OfferHash("offer-1", "biz-1"), OfferHash("offer-1", "biz-2"))
	})

	t.Run("Wrong hashes always rejected", func(t *testing.T) {
		// 属性：1000 组随机 (offerID, businessID, 错误hash) 三元组全部校验失败
		rng := rand.New(rand.NewSource(42))
		for i := 0; i < 1000; i++ {
			offerID := uuid.New().String()
			businessID := uuid.New().String()
			wrong := fmt.Sprintf("%08x", rng.Uint32())
			if wrong == OfferHash(offerID, businessID) {
				continue // 天文数字级别的碰撞，跳过即可
			}
			assert.False(t, VerifyOfferHash(offerID, businessID, wrong))
		}
	})

	t.Run("Empty hash rejected", func(t *testing.T) {
		assert.False(t, VerifyOfferHash("offer-1", "biz-1", ""))
	})
}

func TestSplitScanPayload(t *testing.T) {
	customerID := uuid.New().String()
	businessID := uuid.New().String()
	tok := Encode(customerID, businessID, time.Now())
	hash := OfferHash("offer-1", businessID)

	t.Run("Combined format", func(t *testing.T) {
		gotTok, gotHash, err := SplitScanPayload(tok+":"+hash, "")
		assert.NoError(t, err)
		assert.Equal(t, tok, gotTok)
		assert.Equal(t, hash, gotHash)
	})

	t.Run("Split format", func(t *testing.T) {
		gotTok, gotHash, err := SplitScanPayload(tok, hash)
		assert.NoError(t, err)
		assert.Equal(t, tok, gotTok)
		assert.Equal(t, hash, gotHash)
	})

	t.Run("Both formats decode identically", func(t *testing.T) {
		tok1, hash1, err1 := SplitScanPayload(tok+":"+hash, "")
		tok2, hash2, err2 := SplitScanPayload(tok, hash)
		assert.NoError(t, err1)
		assert.NoError(t, err2)
		assert.Equal(t, tok1, tok2)
		assert.Equal(t, hash1, hash2)
	})

	t.Run("Missing hash segment fails", func(t *testing.T) {
		_, _, err := SplitScanPayload(tok, "")
		assert.ErrorIs(t, err, errs.ErrTokenDecode)

		_, _, err = SplitScanPayload(tok+":", "")
		assert.ErrorIs(t, err, errs.ErrTokenDecode)

		_, _, err = SplitScanPayload(":"+hash, "")
		assert.ErrorIs(t, err, errs.ErrTokenDecode)
	})

	t.Run("Token never contains separator", func(t *testing.T) {
		// base64url 字母表保证了单段格式可以安全切分
		assert.False(t, strings.Contains(tok, ":"))
	})
}
