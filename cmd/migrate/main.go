package main

import (
	"database/sql"
	"flag"
	"fmt"

	"marketplace-be/internal/config"
	"marketplace-be/internal/db"
	"marketplace-be/internal/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var (
	migrateUp   = db.RunMigrations
	migrateDown = db.RollbackMigration
)

func main() {
	_ = godotenv.Load()

	mode := flag.String("mode", "up", "migration mode: up or down")
	dir := flag.String("dir", "./migrations", "directory holding the migration files")
	flag.Parse()

	cfg := config.FromEnv()
	logger.Init(cfg.AppEnv, cfg.LogLevel)
	defer logger.Sync()

	if cfg.DBURL == "" && cfg.DBHost == "" {
		logger.L().Fatal("DB_URL or DB_HOST must be set")
	}

	database, err := db.NewDatabase(cfg)
	if err != nil {
		logger.L().Fatal("failed to connect db", zap.Error(err))
	}
	defer database.Close()

	if err := run(database, *mode, *dir); err != nil {
		logger.L().Fatal("migration failed", zap.String("mode", *mode), zap.Error(err))
	}
}

func run(database *sql.DB, mode, dir string) error {
	switch mode {
	case "up":
		if err := migrateUp(database, dir); err != nil {
			return err
		}
		logger.L().Info("all migrations applied", zap.String("dir", dir))
		return nil
	case "down":
		if err := migrateDown(database, dir); err != nil {
			return err
		}
		logger.L().Info("rolled back latest migration", zap.String("dir", dir))
		return nil
	default:
		return fmt.Errorf("unknown mode: %s (use 'up' or 'down')", mode)
	}
}
