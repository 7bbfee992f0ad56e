package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loyalty_wallet/internal/pkg/config"
	"loyalty_wallet/internal/pkg/middleware"
	"loyalty_wallet/internal/pkg/registry"
	"loyalty_wallet/pkg/database"
	"loyalty_wallet/pkg/logger"
	"loyalty_wallet/pkg/metrics"

	_ "loyalty_wallet/docs"

	// 模块通过 init() 自注册，这里显式列出全部业务模块
	_ "loyalty_wallet/internal/domain/customer"
	_ "loyalty_wallet/internal/domain/offer"
	_ "loyalty_wallet/internal/domain/progress"
	_ "loyalty_wallet/internal/domain/scan"
	_ "loyalty_wallet/internal/domain/wallet"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// @title Loyalty Wallet API
// @version 1.0
// @description 集点卡进度与多钱包同步服务
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// 1. 加载配置
	config.LoadConfig()

	// 2. 初始化日志
	logger.Init(config.GlobalConfig.App.Debug)
	defer logger.Sync()

	// 3. 初始化存储
	db := database.InitDatabase()
	rdb := database.InitRedis()

	// 4. 初始化 Gin 与全局中间件
	gin.SetMode(config.GlobalConfig.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.RateLimitMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// 5. 按优先级初始化业务模块（依赖注入 + 路由注册）
	mctx := &registry.ModuleContext{DB: db, Redis: rdb, Router: r}
	if err := registry.InitModules(mctx); err != nil {
		logger.Log.Fatal("Failed to initialize modules", zap.Error(err))
	}

	// 6. 基础路由
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 7. 周期性上报数据库连接池指标
	go reportPoolStats(db)

	// 8. 启动 HTTP 服务
	srv := &http.Server{
		Addr:    ":" + config.GlobalConfig.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Log.Info("Server starting", zap.String("port", config.GlobalConfig.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 9. 优雅退出：先停收新请求，再等在途钱包推送落地
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := registry.ShutdownModules(ctx); err != nil {
		logger.Log.Error("Module shutdown reported errors", zap.Error(err))
	}

	logger.Log.Info("Server exited")
}

// reportPoolStats 每 15 秒把连接池状态写入 Prometheus 指标
func reportPoolStats(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logger.Log.Warn("Failed to access sql.DB for pool stats", zap.Error(err))
		return
	}

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		stats := sqlDB.Stats()
		metrics.GetGlobalCollector().UpdateDBConnections(stats.InUse, stats.Idle)
	}
}
