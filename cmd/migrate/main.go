package main

import (
	"errors"
	"log"

	"loyalty_wallet/internal/pkg/config"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	config.LoadConfig()
	cfg := config.GlobalConfig.Database
	dsn := "postgres://" + cfg.User + ":" + cfg.Password + "@" + cfg.Host + ":" + cfg.Port + "/" + cfg.DBName + "?sslmode=" + cfg.SSLMode

	m, err := migrate.New(
		"file://migrations",
		dsn,
	)
	if err != nil {
		log.Fatal(err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		// 数据库处于 dirty 状态时回退到已记录版本后重试
		var dirty migrate.ErrDirty
		if errors.As(err, &dirty) {
			log.Printf("Database is dirty at version %d, forcing...", dirty.Version)
			if err := m.Force(dirty.Version); err != nil {
				log.Fatal("Failed to force version:", err)
			}
			if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				log.Fatal(err)
			}
		} else {
			log.Fatal(err)
		}
	}

	log.Println("Migration successful")
}
