package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 구조체 - 모든 환경변수를 담음
type Config struct {
	// Redis
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool

	// Supabase
	SupabaseURL            string
	SupabaseServiceKey     string
	SupabaseStorageBaseURL string

	// Gemini API (2D 이미지 생성)
	GeminiAPIKeys []string
	GeminiModel   string

	// Meshy API (3D draft / rig / animation)
	MeshyAPIURL string
	MeshyAPIKey string

	// Skybox API
	SkyboxAPIURL string
	SkyboxAPIKey string

	// Polling
	PollInterval time.Duration
	PollTimeout  time.Duration

	// Server
	Port string

	// Credit
	ImagePerPrice int
}

var globalConfig *Config

// LoadConfig - 환경변수 로드
func LoadConfig() (*Config, error) {
	// .env 파일 로드 (있으면)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env file not found, using environment variables")
	}

	// Redis UseTLS 파싱
	useTLS := true // 기본값
	if tlsStr := os.Getenv("REDIS_USE_TLS"); tlsStr != "" {
		if parsed, err := strconv.ParseBool(tlsStr); err == nil {
			useTLS = parsed
		}
	}

	// ImagePerPrice 파싱
	imagePerPrice := 5 // 기본값 (5 크레딧/장)
	if priceStr := os.Getenv("IMAGE_PER_PRICE"); priceStr != "" {
		if parsed, err := strconv.Atoi(priceStr); err == nil {
			imagePerPrice = parsed
		}
	}

	// Gemini API 키 파싱 (쉼표 구분, 429 시 순차 재시도)
	var geminiKeys []string
	for _, key := range strings.Split(os.Getenv("GEMINI_API_KEYS"), ",") {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			geminiKeys = append(geminiKeys, trimmed)
		}
	}
	if len(geminiKeys) == 0 && os.Getenv("GEMINI_API_KEY") != "" {
		geminiKeys = []string{os.Getenv("GEMINI_API_KEY")}
	}

	globalConfig = &Config{
		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   useTLS,

		// Supabase
		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:     getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBaseURL: getEnv("SUPABASE_STORAGE_BASE_URL", ""),

		// Gemini API
		GeminiAPIKeys: geminiKeys,
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),

		// Meshy API
		MeshyAPIURL: getEnv("MESHY_API_URL", "https://api.meshy.ai"),
		MeshyAPIKey: getEnv("MESHY_API_KEY", ""),

		// Skybox API
		SkyboxAPIURL: getEnv("SKYBOX_API_URL", "https://backend.blockadelabs.com/api/v1"),
		SkyboxAPIKey: getEnv("SKYBOX_API_KEY", ""),

		// Polling
		PollInterval: getEnvDuration("POLL_INTERVAL", 2*time.Second),
		PollTimeout:  getEnvDuration("POLL_TIMEOUT", 5*time.Minute),

		// Server
		Port: getEnv("PORT", "8080"),

		// Credit
		ImagePerPrice: imagePerPrice,
	}

	// 필수 환경변수 검증
	if err := globalConfig.validate(); err != nil {
		return nil, err
	}

	log.Println("✅ Configuration loaded successfully")
	log.Printf("   Redis: %s:%s (TLS: %v)", globalConfig.RedisHost, globalConfig.RedisPort, globalConfig.RedisUseTLS)
	log.Printf("   Supabase: %s", globalConfig.SupabaseURL)
	log.Printf("   Gemini: %s (%d keys)", globalConfig.GeminiModel, len(globalConfig.GeminiAPIKeys))
	log.Printf("   Meshy: %s", globalConfig.MeshyAPIURL)
	log.Printf("   Polling: every %v, timeout %v", globalConfig.PollInterval, globalConfig.PollTimeout)

	return globalConfig, nil
}

// GetConfig - 로드된 설정 가져오기
func GetConfig() *Config {
	if globalConfig == nil {
		log.Fatal("❌ Config not loaded. Call LoadConfig() first.")
	}
	return globalConfig
}

// validate - 필수 환경변수 검증
func (c *Config) validate() error {
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabaseServiceKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_KEY is required")
	}
	if len(c.GeminiAPIKeys) == 0 {
		return fmt.Errorf("GEMINI_API_KEYS is required")
	}
	if c.MeshyAPIKey == "" {
		return fmt.Errorf("MESHY_API_KEY is required")
	}
	return nil
}

// getEnv - 환경변수 가져오기 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration - duration 환경변수 파싱 (기본값 지원)
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		log.Printf("⚠️  Invalid duration for %s, using default %v", key, defaultValue)
	}
	return defaultValue
}

// GetRedisAddr - Redis 연결 문자열 생성
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}
