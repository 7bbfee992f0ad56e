package middleware

import (
	"time"

	"loyalty_wallet/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// MetricsMiddleware HTTP 指标中间件
//
// 按路由模板（c.FullPath）打标签，避免 /scan/progress/:payload
// 里的动态段撑爆标签基数。
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			// 未匹配到路由（404），统一归档
			endpoint = "unmatched"
		}

		collector := metrics.GetGlobalCollector()
		collector.RecordHTTPRequest(
			c.Request.Method,
			endpoint,
			metrics.StatusCategory(c.Writer.Status()),
			time.Since(start),
		)
	}
}

// SecurityHeadersMiddleware 安全头中间件
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		c.Next()
	}
}
