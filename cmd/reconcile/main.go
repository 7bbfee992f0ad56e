package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	customerRepo "loyalty_wallet/internal/domain/customer/repository"
	customerService "loyalty_wallet/internal/domain/customer/service"
	offerRepo "loyalty_wallet/internal/domain/offer/repository"
	offerService "loyalty_wallet/internal/domain/offer/service"
	progressRepo "loyalty_wallet/internal/domain/progress/repository"
	progressService "loyalty_wallet/internal/domain/progress/service"
	"loyalty_wallet/internal/domain/wallet/adapter"
	walletRepo "loyalty_wallet/internal/domain/wallet/repository"
	walletService "loyalty_wallet/internal/domain/wallet/service"
	"loyalty_wallet/internal/pkg/config"
	"loyalty_wallet/internal/pkg/worker"
	"loyalty_wallet/pkg/cache"
	"loyalty_wallet/pkg/database"
	"loyalty_wallet/pkg/logger"

	"github.com/jmoiron/sqlx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// driftQuery 找出"进度已更新但钱包卡还没推到"的 (客户, 卡券) 对
//
// last_push_at 为空表示发卡后从未推成功过，一并算作漂移。
const driftQuery = `
SELECT DISTINCT wp.customer_id, wp.offer_id, wp.business_id
FROM wallet_passes wp
JOIN customer_progress cp
  ON cp.customer_id = wp.customer_id
 AND cp.offer_id = wp.offer_id
WHERE wp.deleted_at IS NULL
  AND wp.status = 1
  AND (wp.last_push_at IS NULL OR wp.last_push_at < cp.updated_at)`

type driftRow struct {
	CustomerID string `db:"customer_id"`
	OfferID    string `db:"offer_id"`
	BusinessID string `db:"business_id"`
}

func main() {
	workers := flag.Int("workers", 4, "并发补推 worker 数")
	dryRun := flag.Bool("dry-run", false, "只报告漂移，不实际推送")
	flag.Parse()

	config.LoadConfig()
	logger.Init(config.GlobalConfig.App.Debug)
	defer logger.Sync()

	// 一个底层连接池同时喂 sqlx（漂移查询）和 GORM（业务仓储）
	sqlDB, err := database.OpenSQL()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer sqlDB.Close()

	sqlxDB := sqlx.NewDb(sqlDB, "pgx")

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		log.Fatalf("Failed to open gorm session: %v", err)
	}

	rdb := database.InitRedis()
	defer rdb.Close()

	// 1. 扫漂移
	var rows []driftRow
	if err := sqlxDB.Select(&rows, driftQuery); err != nil {
		log.Fatalf("Drift query failed: %v", err)
	}

	log.Printf("Found %d drifted (customer, offer) pairs", len(rows))
	if len(rows) == 0 {
		return
	}
	if *dryRun {
		for _, r := range rows {
			fmt.Printf("drift: customer=%s offer=%s business=%s\n", r.CustomerID, r.OfferID, r.BusinessID)
		}
		return
	}

	// 2. 组装和扫码链路一致的同步组件
	wRepo := walletRepo.NewWalletPassRepository(gormDB)
	google := adapter.NewGoogleAdapter(config.GlobalConfig.Google, cache.NewRedisCache(rdb))
	apple := adapter.NewAppleAdapter(config.GlobalConfig.Apple, wRepo)
	syncSvc := walletService.NewSyncService(
		[]adapter.WalletAdapter{apple, google},
		wRepo,
		config.GlobalConfig.Scan.PushTimeout(),
	)

	customers := customerService.NewCustomerService(customerRepo.NewCustomerRepository(gormDB))
	offers := offerService.NewCachedOfferService(offerRepo.NewOfferRepository(gormDB), cache.NewRedisCache(rdb))
	progresses := progressService.NewProgressService(progressRepo.NewProgressRepository(gormDB))

	processor := makeProcessor(customers, offers, progresses, syncSvc)

	// 3. 灌池并等全部任务终结
	pool := worker.NewRepushPool(processor, *workers, len(rows)+1)
	pool.Start()
	for _, r := range rows {
		pool.AddTask(worker.RepushTask{
			CustomerID: r.CustomerID,
			OfferID:    r.OfferID,
			BusinessID: r.BusinessID,
		})
	}
	pool.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := syncSvc.Shutdown(shutdownCtx); err != nil {
		log.Printf("Sync service shutdown: %v", err)
	}

	log.Println("Reconcile finished")
}

// makeProcessor 单个漂移对的补推逻辑
func makeProcessor(
	customers customerService.CustomerService,
	offers offerService.OfferService,
	progresses progressService.ProgressService,
	syncSvc walletService.SyncService,
) worker.ProcessFunc {
	return func(task worker.RepushTask) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		customer, err := customers.GetCustomer(task.BusinessID, task.CustomerID)
		if err != nil {
			return fmt.Errorf("load customer: %w", err)
		}
		offer, err := offers.GetOffer(task.OfferID)
		if err != nil {
			return fmt.Errorf("load offer: %w", err)
		}
		prog, err := progresses.GetProgress(ctx, task.CustomerID, task.OfferID)
		if err != nil {
			return fmt.Errorf("load progress: %w", err)
		}

		tier := offerService.ComputeTier(offer.TierLevels, prog.RewardsClaimed)
		updates := syncSvc.SyncAfterProgressChange(ctx, customer, offer, prog, tier)

		// 渠道未启用或类型无适配器的卡重试也不会变好，只把真实推送失败交给池子重试
		for _, u := range updates {
			if u.Success || u.Detail == "channel disabled" || u.Detail == "no adapter for wallet type" {
				continue
			}
			return fmt.Errorf("push %s failed: %s", u.Platform, u.Detail)
		}
		return nil
	}
}
