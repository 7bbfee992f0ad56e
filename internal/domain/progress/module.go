package progress

import (
	"loyalty_wallet/internal/domain/progress/repository"
	"loyalty_wallet/internal/domain/progress/service"
	"loyalty_wallet/internal/pkg/registry"
)

// ProgressModule 进度模块
//
// 不挂路由：进度只通过扫码链路和钱包签发链路变更，
// 这里只负责把服务实例注册给后初始化的模块。
type ProgressModule struct{}

func init() {
	registry.Register(&ProgressModule{})
}

var progressService service.ProgressService

// GetService 返回进度服务（wallet / scan 模块取用）
func GetService() service.ProgressService {
	return progressService
}

func (m *ProgressModule) Name() string {
	return "progress"
}

func (m *ProgressModule) Priority() int {
	return 8
}

func (m *ProgressModule) Init(ctx *registry.ModuleContext) error {
	pRepo := repository.NewProgressRepository(ctx.DB)
	progressService = service.NewProgressService(pRepo)
	return nil
}
