package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"loyalty_wallet/internal/pkg/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDatabase 初始化数据库连接
//
// 底层使用 pgx 的 database/sql 驱动建立连接，再交给 GORM 管理，
// 便于 cmd/reconcile 等工具复用同一个 DSN 构造逻辑。
func InitDatabase() *gorm.DB {
	sqlDB, err := OpenSQL()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// 配置 GORM
	gormConfig := &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Warn),
		PrepareStmt:                              true, // 预编译 SQL 缓存
		DisableForeignKeyConstraintWhenMigrating: true, // 禁用外键约束检查
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormConfig)
	if err != nil {
		log.Fatalf("Failed to open gorm session: %v", err)
	}

	// 连接池配置
	configureConnectionPool(sqlDB)

	// 表结构统一由 golang-migrate 管理（见 cmd/migrate 与 migrations/），
	// 不在启动时执行 AutoMigrate。

	return db
}

// OpenSQL 打开底层 *sql.DB（pgx stdlib 驱动）
func OpenSQL() (*sql.DB, error) {
	return sql.Open("pgx", DSN())
}

// DSN 根据全局配置拼接 PostgreSQL 连接串
func DSN() string {
	cfg := config.GlobalConfig.Database
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, cfg.SSLMode, cfg.TimeZone)
}

// configureConnectionPool 配置数据库连接池
func configureConnectionPool(sqlDB *sql.DB) {
	// 设置连接池中的最大连接数
	sqlDB.SetMaxOpenConns(100) // 根据数据库服务器性能调整

	// 设置连接池中的最大空闲连接数
	sqlDB.SetMaxIdleConns(10) // 推荐 SetMaxOpenConns 的 10%

	// 设置连接的最大生命周期
	sqlDB.SetConnMaxLifetime(time.Hour) // 1小时，避免长时间连接问题

	// 设置连接的最大空闲时间
	sqlDB.SetConnMaxIdleTime(time.Minute * 30) // 30分钟

	log.Println("Database connection pool configured successfully")
}
