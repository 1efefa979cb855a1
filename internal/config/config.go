package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            string
	Env             string
	Provider        ProviderConfig
	Store           StoreConfig
	Assets          AssetConfig
	PoolSize        int
	ProviderTimeout time.Duration
}

type ProviderConfig struct {
	Name         string
	GeminiAPIKey string
	OpenAIAPIKey string
	Model        string
}

type StoreConfig struct {
	PostgresDSN string
}

type AssetConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8080", "server port")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	return &Config{
		Port:            *port,
		Env:             env,
		Provider:        loadProviderConfig(),
		Store:           StoreConfig{PostgresDSN: strings.TrimSpace(os.Getenv("THREAT_STORE_PG_DSN"))},
		Assets:          loadAssetConfig(env),
		PoolSize:        intEnv("GENERATION_POOL_SIZE", 0),
		ProviderTimeout: time.Duration(intEnv("PROVIDER_TIMEOUT_SECONDS", 0)) * time.Second,
	}, nil
}

func loadProviderConfig() ProviderConfig {
	name := strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER")))
	if name == "" {
		name = "gemini"
	}
	return ProviderConfig{
		Name:         name,
		GeminiAPIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		OpenAIAPIKey: strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		Model:        strings.TrimSpace(os.Getenv("LLM_MODEL")),
	}
}

func loadAssetConfig(env string) AssetConfig {
	endpoint := resolveAssetEndpoint(env)
	return AssetConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("ASSET_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ASSET_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ASSET_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("ASSET_S3_BUCKET")), "threatforge-context"),
		UseSSL:    resolveAssetUseSSL(env),
	}
}

func resolveAssetEndpoint(env string) string {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return firstNonEmpty(strings.TrimSpace(os.Getenv("ASSET_MINIO_ENDPOINT")), "minio:9000")
	}
	return strings.TrimSpace(os.Getenv("ASSET_S3_ENDPOINT"))
}

func resolveAssetUseSSL(env string) bool {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return false
	}
	raw := strings.TrimSpace(os.Getenv("ASSET_S3_USE_SSL"))
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

func intEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
