package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/TURahim/collab-canvas-sub001/internal/collab"
)

// Config 애플리케이션 전체 설정
type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Auth      AuthConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	Store     StoreConfig
	Sync      SyncConfig
	Log       LogConfig
}

// ServerConfig HTTP 서버 설정
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// WebSocketConfig WebSocket 관련 설정
type WebSocketConfig struct {
	ReadBufferSize   int
	WriteBufferSize  int
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// MaxMessageSize caps a single inbound frame.
	MaxMessageSize int64
}

// CORSConfig CORS 설정
type CORSConfig struct {
	AllowOrigins string
	AllowHeaders string
}

// AuthConfig 인증 설정
type AuthConfig struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
	// AllowAnonymous lets clients without a token join under a generated id.
	AllowAnonymous bool
}

// RedisConfig Redis 설정
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DatabaseConfig 데이터베이스 설정. Host가 비어 있으면 아카이브와 룸 디렉터리를 사용하지 않는다.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	TimeZone string
}

// Enabled reports whether a database is configured.
func (c DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// StoreConfig 원격 상태 저장소 설정
type StoreConfig struct {
	// Backend is "memory" or "redis".
	Backend         string
	TombstoneTTL    time.Duration
	SweepInterval   time.Duration
	JanitorInterval time.Duration
	ArchiveDebounce time.Duration
}

// SyncConfig 클라이언트 동기화 튜닝 (collab.Config 로 변환)
type SyncConfig struct {
	ThrottleInterval  time.Duration
	DebounceInterval  time.Duration
	HeartbeatInterval time.Duration
	StaleTimeout      time.Duration
	DragTTL           time.Duration
	Interpolation     bool
	FrameInterval     time.Duration
	MaxStep           float64
	MoveThreshold     float64
	RetryAttempts     int
	RetryInitial      time.Duration
}

// Collab converts the env tuning into a session config.
func (s SyncConfig) Collab(tombstoneTTL time.Duration) collab.Config {
	return collab.Config{
		ThrottleInterval:  s.ThrottleInterval,
		DebounceInterval:  s.DebounceInterval,
		HeartbeatInterval: s.HeartbeatInterval,
		StaleTimeout:      s.StaleTimeout,
		DragTTL:           s.DragTTL,
		TombstoneTTL:      tombstoneTTL,
		Interpolation:     s.Interpolation,
		FrameInterval:     s.FrameInterval,
		MaxStep:           s.MaxStep,
		MoveThreshold:     s.MoveThreshold,
		RetryAttempts:     s.RetryAttempts,
		RetryInitial:      s.RetryInitial,
	}
}

// LogConfig 로깅 설정
type LogConfig struct {
	Level string
	// Development switches zap to its console encoder.
	Development bool
}

// Load 환경 변수에서 설정 로드
func Load() *Config {
	// .env 파일 로드 (없어도 에러 무시)
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	// 필수 환경 변수 검증
	jwtSecret := getRequiredEnv("JWT_SECRET")
	if jwtSecret == "change-this-secret-in-production" {
		log.Fatal("🚨 CRITICAL: JWT_SECRET must be changed from default value in production!")
	}

	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", ":8080"),
			ReadTimeout:     getDuration("READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:     getDuration("IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:   getInt("WS_READ_BUFFER_SIZE", 16*1024),
			WriteBufferSize:  getInt("WS_WRITE_BUFFER_SIZE", 16*1024),
			HandshakeTimeout: getDuration("WS_HANDSHAKE_TIMEOUT", 10*time.Second),
			WriteTimeout:     getDuration("WS_WRITE_TIMEOUT", 5*time.Second),
			MaxMessageSize:   int64(getInt("WS_MAX_MESSAGE_SIZE", 256*1024)),
		},
		CORS: CORSConfig{
			AllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
			AllowHeaders: getEnv("CORS_ALLOW_HEADERS", "Origin, Content-Type, Accept, Authorization"),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AccessTokenExpiry: getDuration("ACCESS_TOKEN_EXPIRY", 1*time.Hour),
			AllowAnonymous:    getBool("AUTH_ALLOW_ANONYMOUS", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", ""),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "postgres"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			TimeZone: getEnv("DB_TIMEZONE", "UTC"),
		},
		Store: StoreConfig{
			Backend:         strings.ToLower(getEnv("STORE_BACKEND", "memory")),
			TombstoneTTL:    getDuration("STORE_TOMBSTONE_TTL", collab.DefaultTombstoneTTL),
			SweepInterval:   getDuration("STORE_SWEEP_INTERVAL", 10*time.Second),
			JanitorInterval: getDuration("STORE_JANITOR_INTERVAL", 5*time.Second),
			ArchiveDebounce: getDuration("ARCHIVE_DEBOUNCE", 2*time.Second),
		},
		Sync: SyncConfig{
			ThrottleInterval:  getDuration("SYNC_THROTTLE_INTERVAL", collab.DefaultThrottleInterval),
			DebounceInterval:  getDuration("SYNC_DEBOUNCE_INTERVAL", collab.DefaultDebounceInterval),
			HeartbeatInterval: getDuration("SYNC_HEARTBEAT_INTERVAL", collab.DefaultHeartbeatInterval),
			StaleTimeout:      getDuration("SYNC_STALE_TIMEOUT", 0),
			DragTTL:           getDuration("SYNC_DRAG_TTL", collab.DefaultDragTTL),
			Interpolation:     getBool("SYNC_INTERPOLATION", true),
			FrameInterval:     getDuration("SYNC_FRAME_INTERVAL", collab.DefaultFrameInterval),
			MaxStep:           getFloat("SYNC_MAX_STEP", collab.DefaultMaxStep),
			MoveThreshold:     getFloat("SYNC_MOVE_THRESHOLD", collab.DefaultMoveThreshold),
			RetryAttempts:     getInt("SYNC_RETRY_ATTEMPTS", collab.DefaultRetryAttempts),
			RetryInitial:      getDuration("SYNC_RETRY_INITIAL", collab.DefaultRetryInitial),
		},
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getBool("LOG_DEVELOPMENT", false),
		},
	}
}

// getRequiredEnv 필수 환경 변수 조회 (없으면 Fatal)
func getRequiredEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("🚨 CRITICAL: Required environment variable %s is not set!", key)
	}
	return value
}

// getEnv 환경 변수 조회 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getInt 정수형 환경 변수 조회
func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getFloat 실수형 환경 변수 조회
func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getBool 불리언 환경 변수 조회
func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getDuration 시간 환경 변수 조회
func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		// 숫자만 있으면 초로 간주
		if !strings.ContainsAny(value, "smh") {
			if secs, err := strconv.Atoi(value); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
