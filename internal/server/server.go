package server

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/TURahim/collab-canvas-sub001/internal/archive"
	"github.com/TURahim/collab-canvas-sub001/internal/auth"
	"github.com/TURahim/collab-canvas-sub001/internal/cache"
	"github.com/TURahim/collab-canvas-sub001/internal/config"
	"github.com/TURahim/collab-canvas-sub001/internal/handler"
	"github.com/TURahim/collab-canvas-sub001/internal/middleware"
	"github.com/TURahim/collab-canvas-sub001/internal/presence"
	"github.com/TURahim/collab-canvas-sub001/internal/store"
)

// Deps are the connections the server is built on. DB and Redis are optional.
type Deps struct {
	Backend store.Backend
	DB      *gorm.DB
	Redis   *cache.RedisClient
	Logger  *zap.Logger
}

// Server Fiber 서버 래퍼
type Server struct {
	app            *fiber.App
	cfg            *config.Config
	backend        store.Backend
	logger         *zap.Logger
	archive        *archive.Archive
	hub            *handler.RoomHub
	janitor        *presence.Janitor
	roomMiddleware *middleware.RoomMiddleware
	syncWSHandler  *handler.SyncWSHandler
	roomHandler    *handler.RoomHandler
	healthHandler  *handler.HealthHandler
	jwtManager     *auth.JWTManager

	shutdownOnce sync.Once
	shutdownErr  error
}

// New 새 서버 인스턴스 생성
func New(cfg *config.Config, deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "Collab Sync Server",
		ServerHeader:          "Fiber",
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // WebSocket과 호환성 문제로 비활성화
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		BodyLimit:             1 * 1024 * 1024,
		DisableStartupMessage: true,
	})

	// Auth 초기화
	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	// DB가 있으면 아카이브와 룸 디렉터리 사용
	var (
		arch      *archive.Archive
		lifecycle handler.RoomLifecycle
		directory middleware.RoomDirectory
	)
	if deps.DB != nil {
		arch = archive.New(deps.DB, deps.Backend, cfg.Store.ArchiveDebounce, log)
		lifecycle = arch
		directory = arch
	}

	syncCfg := cfg.Sync.Collab(cfg.Store.TombstoneTTL).WithDefaults()
	hub := handler.NewRoomHub(lifecycle, log)
	janitor := presence.NewJanitor(deps.Backend, hub,
		syncCfg.StaleTimeout, syncCfg.DragTTL, cfg.Store.JanitorInterval, nil, log)
	policy := handler.NewPolicy(deps.Backend, syncCfg.StaleTimeout)

	return &Server{
		app:            app,
		cfg:            cfg,
		backend:        deps.Backend,
		logger:         log,
		archive:        arch,
		hub:            hub,
		janitor:        janitor,
		roomMiddleware: middleware.NewRoomMiddleware(directory, log),
		syncWSHandler: handler.NewSyncWSHandler(deps.Backend, hub, policy, jwtManager,
			cfg.WebSocket, cfg.Auth.AllowAnonymous, log),
		roomHandler:   handler.NewRoomHandler(deps.Backend, hub, log),
		healthHandler: handler.NewHealthHandler(deps.Backend, deps.DB, deps.Redis),
		jwtManager:    jwtManager,
	}
}

// App exposes the Fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "UTC",
	}))

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: s.cfg.CORS.AllowOrigins,
		AllowHeaders: s.cfg.CORS.AllowHeaders,
		AllowMethods: "GET, OPTIONS",
	}))
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	// 헬스체크 엔드포인트
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	// Room 스냅샷 (인증 필요)
	api := s.app.Group("/api", auth.AuthMiddleware(s.jwtManager, s.cfg.Auth.AllowAnonymous))
	api.Get("/rooms", s.roomHandler.ListRooms)
	roomGroup := api.Group("/rooms/:roomId", s.roomMiddleware.RequireRoom())
	roomGroup.Get("/objects", s.roomHandler.GetObjects)
	roomGroup.Get("/presence", s.roomHandler.GetPresence)

	// WebSocket 업그레이드 체크 미들웨어
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// 동기화 저장소 WebSocket
	s.app.Get("/ws/rooms/:roomId",
		s.roomMiddleware.RequireRoom(),
		s.syncWSHandler.Upgrade,
		s.syncWSHandler.Handler(),
	)
}

// Start 서버 시작 (Graceful Shutdown 포함)
func (s *Server) Start() error {
	// Graceful Shutdown 설정
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		s.logger.Info("shutting down server")
		if err := s.Shutdown(); err != nil {
			s.logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	s.logger.Info("collab sync server starting",
		zap.String("addr", s.cfg.Server.Port),
		zap.String("store", s.cfg.Store.Backend),
		zap.Bool("archive", s.archive != nil))

	s.janitor.Start()
	return s.app.Listen(s.cfg.Server.Port)
}

// Serve runs the server on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.janitor.Start()
	return s.app.Listener(ln)
}

// Shutdown 서버 종료
//
// Live sockets are dropped so their on-disconnect actions run, then pending
// archive writes are flushed. Only the first call acts; later calls return
// its result.
func (s *Server) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown()
	})
	return s.shutdownErr
}

func (s *Server) shutdown() error {
	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := s.hub.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.app.ShutdownWithTimeout(timeout); err != nil {
		errs = append(errs, err)
	}
	s.janitor.Stop()
	if s.archive != nil {
		if err := s.archive.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
