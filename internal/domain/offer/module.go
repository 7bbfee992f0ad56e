package offer

import (
	"loyalty_wallet/internal/domain/offer/handler"
	"loyalty_wallet/internal/domain/offer/repository"
	"loyalty_wallet/internal/domain/offer/service"
	"loyalty_wallet/internal/pkg/middleware"
	"loyalty_wallet/internal/pkg/registry"
	"loyalty_wallet/pkg/cache"

	"github.com/gin-gonic/gin"
)

// OfferModule 卡券模块
type OfferModule struct{}

func init() {
	registry.Register(&OfferModule{})
}

// 模块内共享的服务实例，scan / wallet 模块在 Init 之后取用
var offerService service.OfferService

// GetService 返回卡券服务（供后初始化的模块复用同一份缓存）
func GetService() service.OfferService {
	return offerService
}

func (m *OfferModule) Name() string {
	return "offer"
}

func (m *OfferModule) Priority() int {
	return 10
}

func (m *OfferModule) Init(ctx *registry.ModuleContext) error {
	// 1. 依赖注入
	oRepo := repository.NewOfferRepository(ctx.DB)
	offerService = service.NewCachedOfferService(oRepo, cache.NewRedisCache(ctx.Redis))
	oHandler := handler.NewOfferHandler(offerService)

	// 2. 路由注册
	setupRoutes(ctx.Router, oHandler)

	return nil
}

func setupRoutes(r *gin.Engine, h *handler.OfferHandler) {
	g := r.Group("/offers")

	authorized := g.Group("")
	authorized.Use(middleware.AuthMiddleware())
	{
		authorized.GET("", h.GetOffers)
		authorized.GET("/:id", h.GetOffer)

		// 卡券配置需要管理员权限
		admin := authorized.Group("")
		admin.Use(middleware.AdminMiddleware())
		{
			admin.POST("", h.CreateOffer)
			admin.PUT("/:id/tiers", h.UpdateTierLevels)
			admin.PUT("/:id/status", h.UpdateStatus)
		}
	}
}
