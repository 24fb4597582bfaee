package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/TURahim/collab-canvas-sub001/internal/cache"
	"github.com/TURahim/collab-canvas-sub001/internal/store"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandler 헬스체크 핸들러
type HealthHandler struct {
	backend store.Backend
	db      *gorm.DB
	redis   *cache.RedisClient
}

// NewHealthHandler HealthHandler 생성
//
// db and redis may be nil when not configured.
func NewHealthHandler(backend store.Backend, db *gorm.DB, redis *cache.RedisClient) *HealthHandler {
	return &HealthHandler{backend: backend, db: db, redis: redis}
}

// ComponentCheck 컴포넌트 상태
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse 헬스체크 응답
type HealthResponse struct {
	Status    string                    `json:"status"`
	Timestamp string                    `json:"timestamp"`
	Checks    map[string]ComponentCheck `json:"checks"`
}

func check(name string, fn func() error) ComponentCheck {
	start := time.Now()
	if err := fn(); err != nil {
		return ComponentCheck{Status: "unhealthy", Error: name + " check failed"}
	}
	return ComponentCheck{Status: "healthy", Latency: time.Since(start).String()}
}

func (h *HealthHandler) pingDB() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Check 전체 상태 확인 (Store + DB + Redis)
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthCheckTimeout)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    make(map[string]ComponentCheck),
	}

	// 1. Store 체크 (서버 시계)
	response.Checks["store"] = check("store", func() error {
		_, err := h.backend.Now(ctx)
		return err
	})

	// 2. Database 체크
	if h.db != nil {
		response.Checks["database"] = check("database", h.pingDB)
	} else {
		response.Checks["database"] = ComponentCheck{Status: "not_configured"}
	}

	// 3. Redis 체크
	if h.redis != nil {
		response.Checks["redis"] = check("redis", func() error { return h.redis.Health(ctx) })
	} else {
		response.Checks["redis"] = ComponentCheck{Status: "not_configured"}
	}

	for _, cc := range response.Checks {
		if cc.Status == "unhealthy" {
			response.Status = "unhealthy"
		}
	}

	statusCode := fiber.StatusOK
	if response.Status == "unhealthy" {
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(response)
}

// Liveness K8s liveness probe용 (단순 체크)
func (h *HealthHandler) Liveness(c *fiber.Ctx) error {
	return c.SendString("OK")
}

// Readiness K8s readiness probe용 (저장소 연결 체크)
func (h *HealthHandler) Readiness(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthCheckTimeout)
	defer cancel()

	if _, err := h.backend.Now(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString("NOT READY")
	}
	if h.db != nil && h.pingDB() != nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString("NOT READY")
	}
	return c.SendString("READY")
}
