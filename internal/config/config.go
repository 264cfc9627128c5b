package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"salesdash/internal/logger"
)

type Config struct {
	DBPath    string
	OutputDir string

	ProviderAPIBaseURL   string
	ProviderTenantID     string
	ProviderCallDelayMs  int
	ProviderTimeoutMs    int
	ProviderPageSize     int
	ProviderHydrateBatch int

	OAuthClientID     string
	OAuthClientSecret string
	OAuthAuthURL      string
	OAuthTokenURL     string
	OAuthRedirectURI  string
	OAuthRefreshToken string
	OAuthScopes       []string

	MatchNameThreshold float64
	MatchGapThreshold  float64

	HTTPAddr string

	CatalogRefreshIntervalSec int

	LogLevel  string
	LogFormat string
	LogOutput string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:    getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		ProviderAPIBaseURL:   getEnv("PROVIDER_API_BASE_URL", "https://api.xero.com/api.xro/2.0"),
		ProviderTenantID:     getEnv("PROVIDER_TENANT_ID", ""),
		ProviderCallDelayMs:  getEnvInt("PROVIDER_CALL_DELAY_MS", 1100),
		ProviderTimeoutMs:    getEnvInt("PROVIDER_TIMEOUT_MS", 30000),
		ProviderPageSize:     getEnvInt("PROVIDER_PAGE_SIZE", 100),
		ProviderHydrateBatch: getEnvInt("PROVIDER_HYDRATE_BATCH", 50),

		OAuthClientID:     getEnv("PROVIDER_CLIENT_ID", ""),
		OAuthClientSecret: getEnv("PROVIDER_CLIENT_SECRET", ""),
		OAuthAuthURL:      getEnv("PROVIDER_AUTH_URL", "https://login.xero.com/identity/connect/authorize"),
		OAuthTokenURL:     getEnv("PROVIDER_TOKEN_URL", "https://identity.xero.com/connect/token"),
		OAuthRedirectURI:  getEnv("PROVIDER_REDIRECT_URI", "http://localhost:8080/callback"),
		OAuthRefreshToken: getEnv("PROVIDER_REFRESH_TOKEN", ""),
		OAuthScopes:       getEnvList("PROVIDER_SCOPES", []string{"offline_access", "accounting.transactions.read", "accounting.settings.read"}),

		MatchNameThreshold: getEnvFloat("MATCH_NAME_THRESHOLD", 0.75),
		MatchGapThreshold:  getEnvFloat("MATCH_GAP_THRESHOLD", 0.08),

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		CatalogRefreshIntervalSec: getEnvInt("CATALOG_REFRESH_INTERVAL_SEC", 3600),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
		LogOutput: getEnv("LOG_OUTPUT", "stderr"),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

// ProviderCallDelay is the fixed spacing applied between provider calls.
func (c Config) ProviderCallDelay() time.Duration {
	return time.Duration(c.ProviderCallDelayMs) * time.Millisecond
}

func (c Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutMs) * time.Millisecond
}

func (c Config) CatalogRefreshInterval() time.Duration {
	return time.Duration(c.CatalogRefreshIntervalSec) * time.Second
}

func (c Config) LoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:  c.LogLevel,
		Format: c.LogFormat,
		Output: c.LogOutput,
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback
	}
	parts := strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' })
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
