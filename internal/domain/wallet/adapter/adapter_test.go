package adapter

import (
	"strings"
	"testing"

	offerModel "loyalty_wallet/internal/domain/offer/model"
	"loyalty_wallet/internal/pkg/token"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeRemoteID(t *testing.T) {
	t.Run("Allowed characters pass through", func(t *testing.T) {
		assert.Equal(t, "abc.XYZ_09-", SanitizeRemoteID("abc.XYZ_09-"))
	})

	t.Run("Disallowed characters become underscores", func(t *testing.T) {
		assert.Equal(t, "cust_1_off_er", SanitizeRemoteID("cust 1/off:er"))
	})

	t.Run("Unicode collapses to underscores", func(t *testing.T) {
		got := SanitizeRemoteID("café☕")
		for _, r := range got {
			assert.True(t, strings.ContainsRune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789._-", r))
		}
	})
}

func TestProgressGlyphs(t *testing.T) {
	assert.Equal(t, "★★☆☆☆", ProgressGlyphs(2, 5))
	assert.Equal(t, "★★★★★", ProgressGlyphs(5, 5))
	assert.Equal(t, "☆☆☆", ProgressGlyphs(0, 3))

	t.Run("Over-count clamps to max", func(t *testing.T) {
		assert.Equal(t, "★★★", ProgressGlyphs(7, 3))
	})

	t.Run("Negative current renders empty stars", func(t *testing.T) {
		assert.Equal(t, "☆☆☆", ProgressGlyphs(-1, 3))
	})

	t.Run("Zero max renders nothing", func(t *testing.T) {
		assert.Equal(t, "", ProgressGlyphs(3, 0))
	})
}

func TestBarcodeMessage(t *testing.T) {
	message := BarcodeMessage("cust-1", "biz-1", "offer-1")

	// 负载必须能按扫码入口的规则切回 token + hash
	idx := strings.LastIndex(message, ":")
	assert.Greater(t, idx, 0)

	tok, hash := message[:idx], message[idx+1:]
	decoded, err := token.Decode(tok)
	assert.NoError(t, err)
	assert.Equal(t, "cust-1", decoded.CustomerID)
	assert.Equal(t, "biz-1", decoded.BusinessID)
	assert.True(t, token.VerifyOfferHash("offer-1", "biz-1", hash))
}

func TestResolveBarcodeFormat(t *testing.T) {
	short := "token:hash"

	t.Run("Empty preference defaults to pdf417", func(t *testing.T) {
		assert.Equal(t, offerModel.BarcodePDF417, ResolveBarcodeFormat("", short))
	})

	t.Run("Explicit qr is honored", func(t *testing.T) {
		assert.Equal(t, offerModel.BarcodeQR, ResolveBarcodeFormat(offerModel.BarcodeQR, short))
	})

	t.Run("Oversized payload downgrades pdf417 to qr", func(t *testing.T) {
		long := strings.Repeat("x", PDF417CapacityChars+1)
		assert.Equal(t, offerModel.BarcodeQR, ResolveBarcodeFormat(offerModel.BarcodePDF417, long))
	})

	t.Run("Payload at capacity keeps pdf417", func(t *testing.T) {
		exact := strings.Repeat("x", PDF417CapacityChars)
		assert.Equal(t, offerModel.BarcodePDF417, ResolveBarcodeFormat(offerModel.BarcodePDF417, exact))
	})
}
