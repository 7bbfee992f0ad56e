package wallet

import (
	"context"

	"loyalty_wallet/internal/domain/customer"
	"loyalty_wallet/internal/domain/offer"
	"loyalty_wallet/internal/domain/progress"
	"loyalty_wallet/internal/domain/wallet/adapter"
	"loyalty_wallet/internal/domain/wallet/handler"
	"loyalty_wallet/internal/domain/wallet/repository"
	"loyalty_wallet/internal/domain/wallet/service"
	"loyalty_wallet/internal/pkg/config"
	"loyalty_wallet/internal/pkg/middleware"
	"loyalty_wallet/internal/pkg/registry"
	"loyalty_wallet/pkg/cache"

	"github.com/gin-gonic/gin"
)

// WalletModule 钱包模块：卡券签发 + 多平台同步
type WalletModule struct{}

func init() {
	registry.Register(&WalletModule{})
}

var (
	syncService service.SyncService
	passService service.PassService
)

// GetSyncService 返回钱包同步服务（scan 模块在进度变更后调用）
func GetSyncService() service.SyncService {
	return syncService
}

// GetPassService 返回卡券签发服务
func GetPassService() service.PassService {
	return passService
}

func (m *WalletModule) Name() string {
	return "wallet"
}

func (m *WalletModule) Priority() int {
	return 20
}

func (m *WalletModule) Init(ctx *registry.ModuleContext) error {
	// 1. 依赖注入
	wRepo := repository.NewWalletPassRepository(ctx.DB)

	google := adapter.NewGoogleAdapter(config.GlobalConfig.Google, cache.NewRedisCache(ctx.Redis))
	apple := adapter.NewAppleAdapter(config.GlobalConfig.Apple, wRepo)

	syncService = service.NewSyncService(
		[]adapter.WalletAdapter{apple, google},
		wRepo,
		config.GlobalConfig.Scan.PushTimeout(),
	)
	passService = service.NewPassService(
		wRepo, google, apple,
		customer.GetService(), offer.GetService(), progress.GetService(),
	)

	wHandler := handler.NewWalletHandler(passService, wRepo)
	pkHandler := handler.NewPassKitHandler(passService)

	// 2. 路由注册
	setupRoutes(ctx.Router, wHandler, pkHandler)

	return nil
}

// Shutdown 停服前等在途推送落地
func (m *WalletModule) Shutdown(ctx context.Context) error {
	if syncService == nil {
		return nil
	}
	return syncService.Shutdown(ctx)
}

func setupRoutes(r *gin.Engine, h *handler.WalletHandler, pk *handler.PassKitHandler) {
	g := r.Group("/wallet")

	authorized := g.Group("/passes")
	authorized.Use(middleware.AuthMiddleware())
	{
		authorized.POST("", h.IssuePass)
		authorized.GET("", h.ListPasses)
	}

	// PassKit Web Service：iOS 系统钱包回调，走 ApplePass 令牌鉴权
	apple := g.Group("/apple/v1")
	{
		apple.POST("/devices/:deviceLibraryIdentifier/registrations/:passTypeIdentifier/:serialNumber", pk.RegisterDevice)
		apple.DELETE("/devices/:deviceLibraryIdentifier/registrations/:passTypeIdentifier/:serialNumber", pk.UnregisterDevice)
		apple.GET("/devices/:deviceLibraryIdentifier/registrations/:passTypeIdentifier", pk.ListSerials)
		apple.GET("/passes/:passTypeIdentifier/:serialNumber", pk.GetPass)
		apple.POST("/log", pk.DeviceLog)
	}
}
