package scan

import (
	"loyalty_wallet/internal/domain/customer"
	"loyalty_wallet/internal/domain/offer"
	"loyalty_wallet/internal/domain/progress"
	"loyalty_wallet/internal/domain/scan/handler"
	"loyalty_wallet/internal/domain/scan/service"
	"loyalty_wallet/internal/domain/wallet"
	"loyalty_wallet/internal/pkg/config"
	"loyalty_wallet/internal/pkg/cooldown"
	"loyalty_wallet/internal/pkg/middleware"
	"loyalty_wallet/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// ScanModule 扫码模块：集点、校验、核销的统一入口
//
// 依赖所有其他业务模块的服务，优先级放最后初始化。
type ScanModule struct{}

func init() {
	registry.Register(&ScanModule{})
}

var scanService service.ScanService

// GetService 返回扫码编排服务
func GetService() service.ScanService {
	return scanService
}

func (m *ScanModule) Name() string {
	return "scan"
}

func (m *ScanModule) Priority() int {
	return 30
}

func (m *ScanModule) Init(ctx *registry.ModuleContext) error {
	// 1. 依赖注入
	guard := cooldown.NewRedisGuard(ctx.Redis, "scan_cooldown", config.GlobalConfig.Scan.Cooldown())

	scanService = service.NewScanService(
		customer.GetService(),
		offer.GetService(),
		progress.GetService(),
		wallet.GetSyncService(),
		guard,
	)

	sHandler := handler.NewScanHandler(scanService)

	// 2. 路由注册
	setupRoutes(ctx.Router, sHandler)

	return nil
}

// setupRoutes 扫码路由
//
// 二维码有两种格式：单段 "token:hash" 和两个独立路径段，
// 所以每个动作都挂单段和双段两条路由。
func setupRoutes(r *gin.Engine, h *handler.ScanHandler) {
	scans := r.Group("/scan")
	scans.Use(middleware.AuthMiddleware())
	{
		scans.POST("/progress/:payload", h.ScanProgress)
		scans.POST("/progress/:payload/:hash", h.ScanProgress)
		scans.GET("/verify/:payload", h.VerifyScan)
		scans.GET("/verify/:payload/:hash", h.VerifyScan)
		scans.POST("/prize/:payload", h.ClaimPrize)
		scans.POST("/prize/:payload/:hash", h.ClaimPrize)
		scans.GET("/claims", h.ListClaims)
	}
}
