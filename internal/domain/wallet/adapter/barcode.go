package adapter

import (
	"time"

	offerModel "loyalty_wallet/internal/domain/offer/model"
	"loyalty_wallet/internal/pkg/token"
	"loyalty_wallet/pkg/logger"

	"go.uber.org/zap"
)

// PDF417CapacityChars PDF417 在本场景编码参数下的安全容量
const PDF417CapacityChars = 1850

// BarcodeMessage 卡面条码里编码的扫码负载（token:hash）
func BarcodeMessage(customerID, businessID, offerID string) string {
	tok := token.Encode(customerID, businessID, time.Now())
	return tok + ":" + token.OfferHash(offerID, businessID)
}

// ResolveBarcodeFormat 按商户偏好选条码符号
//
// 负载超出 PDF417 容量时静默降级到 QR，只在日志里留痕，
// 不打断出卡流程。
func ResolveBarcodeFormat(preferred, message string) string {
	if preferred == "" {
		preferred = offerModel.BarcodePDF417
	}

	if preferred == offerModel.BarcodePDF417 && len(message) > PDF417CapacityChars {
		if logger.Log != nil {
			logger.Log.Warn("barcode payload exceeds pdf417 capacity, falling back to qr",
				zap.Int("payload_len", len(message)),
				zap.Int("capacity", PDF417CapacityChars),
			)
		}
		return offerModel.BarcodeQR
	}

	return preferred
}
