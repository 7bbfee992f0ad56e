package customer

import (
	"loyalty_wallet/internal/domain/customer/handler"
	"loyalty_wallet/internal/domain/customer/repository"
	"loyalty_wallet/internal/domain/customer/service"
	"loyalty_wallet/internal/pkg/middleware"
	"loyalty_wallet/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// CustomerModule 客户模块
type CustomerModule struct{}

func init() {
	registry.Register(&CustomerModule{})
}

var customerService service.CustomerService

// GetService 返回客户服务（供 wallet / scan 模块复用）
func GetService() service.CustomerService {
	return customerService
}

func (m *CustomerModule) Name() string {
	return "customer"
}

func (m *CustomerModule) Priority() int {
	return 5
}

func (m *CustomerModule) Init(ctx *registry.ModuleContext) error {
	// 1. 依赖注入
	cRepo := repository.NewCustomerRepository(ctx.DB)
	customerService = service.NewCustomerService(cRepo)
	cHandler := handler.NewCustomerHandler(customerService)

	// 2. 路由注册
	setupRoutes(ctx.Router, cHandler)

	return nil
}

func setupRoutes(r *gin.Engine, h *handler.CustomerHandler) {
	g := r.Group("/customers")

	authorized := g.Group("")
	authorized.Use(middleware.AuthMiddleware())
	{
		authorized.POST("", h.Signup)
		authorized.GET("", h.GetCustomers)
		authorized.GET("/:id", h.GetCustomer)
		authorized.GET("/:id/scan-payload", h.GetScanPayload)
	}
}
