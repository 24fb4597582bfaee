package main

import (
	"log"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/TURahim/collab-canvas-sub001/internal/cache"
	"github.com/TURahim/collab-canvas-sub001/internal/config"
	"github.com/TURahim/collab-canvas-sub001/internal/database"
	"github.com/TURahim/collab-canvas-sub001/internal/logging"
	"github.com/TURahim/collab-canvas-sub001/internal/server"
	"github.com/TURahim/collab-canvas-sub001/internal/store"
)

func main() {
	// 설정 로드
	cfg := config.Load()

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("❌ Logger setup failed: %v", err)
	}
	defer logger.Sync()

	// 원격 상태 저장소
	var (
		backend store.Backend
		redis   *cache.RedisClient
	)
	switch cfg.Store.Backend {
	case "redis":
		redis, err = cache.NewRedisClient(cfg.Redis, logger)
		if err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		defer redis.Close()
		backend = store.NewRedisBackend(redis.Client(), logger)
	case "memory":
		backend = store.NewMemoryBackend(store.WithSweepInterval(cfg.Store.SweepInterval))
	default:
		logger.Fatal("unknown store backend", zap.String("backend", cfg.Store.Backend))
	}
	defer backend.Close()

	// 데이터베이스 연결 (선택)
	var db *gorm.DB
	if cfg.Database.Enabled() {
		db, err = database.ConnectDB(cfg.Database)
		if err != nil {
			logger.Fatal("database connection failed", zap.Error(err))
		}
		defer database.Close()

		if err := database.Ping(db); err != nil {
			logger.Fatal("database ping failed", zap.Error(err))
		}
		logger.Info("database connected", zap.String("host", cfg.Database.Host))
	}

	// 서버 생성 및 설정
	srv := server.New(cfg, server.Deps{
		Backend: backend,
		DB:      db,
		Redis:   redis,
		Logger:  logger,
	})
	srv.SetupMiddleware()
	srv.SetupRoutes()

	// 서버 시작
	if err := srv.Start(); err != nil {
		logger.Fatal("server failed to start", zap.Error(err))
	}
}
