package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the config file read when no path is given.
const ConfigPath = "config.yaml"

// ConfigPathEnv overrides ConfigPath.
const ConfigPathEnv = "GALLERY_CONFIG"

const (
	defaultPort            = "8080"
	defaultPublicPrefix    = "/img/"
	defaultAssetDir        = "webpages/img"
	defaultUploadDir       = "uploads"
	defaultMaxUploadBytes  = 20 << 20
	defaultMaxUploadFields = 10
)

// FileConfig represents configuration loaded from YAML, then overridden by
// any environment variables that are set.
type FileConfig struct {
	Port     string `yaml:"port" env:"GALLERY_PORT"`
	LogLevel string `yaml:"logLevel" env:"GALLERY_LOG_LEVEL"`

	CatalogBackend string `yaml:"catalogBackend" env:"GALLERY_CATALOG_BACKEND"`
	DatabaseURL    string `yaml:"databaseURL" env:"DATABASE_URL"`
	SeedSamples    bool   `yaml:"seedSamples" env:"GALLERY_SEED_SAMPLES"`

	AssetBackend   string `yaml:"assetBackend" env:"GALLERY_ASSET_BACKEND"`
	AssetDir       string `yaml:"assetDir" env:"GALLERY_ASSET_DIR"`
	PublicPrefix   string `yaml:"publicPrefix" env:"GALLERY_PUBLIC_PREFIX"`
	UploadDir      string `yaml:"uploadDir" env:"GALLERY_UPLOAD_DIR"`
	WebRoot        string `yaml:"webRoot" env:"GALLERY_WEB_ROOT"`
	MinioEndpoint  string `yaml:"minioEndpoint" env:"MINIO_ENDPOINT"`
	MinioAccessKey string `yaml:"minioAccessKey" env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `yaml:"minioSecretKey" env:"MINIO_SECRET_KEY"`
	MinioBucket    string `yaml:"minioBucket" env:"MINIO_BUCKET"`
	MinioUseSSL    bool   `yaml:"minioUseSSL" env:"MINIO_USE_SSL"`
	MinioKeyPrefix string `yaml:"minioKeyPrefix" env:"MINIO_KEY_PREFIX"`

	MaxUploadBytes  int64 `yaml:"maxUploadBytes" env:"GALLERY_MAX_UPLOAD_BYTES"`
	MaxUploadFields int   `yaml:"maxUploadFields" env:"GALLERY_MAX_UPLOAD_FIELDS"`

	RedisAddr                string   `yaml:"redisAddr" env:"REDIS_ADDR"`
	RedisPassword            string   `yaml:"redisPassword" env:"REDIS_PASSWORD"`
	UploadRateLimitPerMinute int      `yaml:"uploadRateLimitPerMinute" env:"GALLERY_UPLOAD_RATE_LIMIT_PER_MINUTE"`
	TrustedProxyCIDRs        []string `yaml:"trustedProxyCidrs" env:"GALLERY_TRUSTED_PROXY_CIDRS" envSeparator:","`
}

// ResolvePath picks the config file: explicit path, then $GALLERY_CONFIG,
// then ConfigPath.
func ResolvePath(path string) string {
	if p := strings.TrimSpace(path); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(ConfigPathEnv)); p != "" {
		return p
	}
	return ConfigPath
}

// Load reads config from path. A missing file is not an error when every
// required value comes from defaults or the environment.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	path = ResolvePath(path)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.CatalogBackend = strings.ToLower(strings.TrimSpace(cfg.CatalogBackend))
	if cfg.CatalogBackend == "" {
		cfg.CatalogBackend = "memory"
	}
	cfg.AssetBackend = strings.ToLower(strings.TrimSpace(cfg.AssetBackend))
	if cfg.AssetBackend == "" {
		cfg.AssetBackend = "local"
	}
	if cfg.AssetDir == "" {
		cfg.AssetDir = defaultAssetDir
	}
	if cfg.PublicPrefix == "" {
		cfg.PublicPrefix = defaultPublicPrefix
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = defaultUploadDir
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.MaxUploadFields <= 0 {
		cfg.MaxUploadFields = defaultMaxUploadFields
	}
}

func validateConfig(cfg FileConfig) error {
	switch cfg.CatalogBackend {
	case "memory":
	case "postgres", "mysql":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return fmt.Errorf("config: databaseURL is required for catalogBackend %q", cfg.CatalogBackend)
		}
	default:
		return fmt.Errorf("config: catalogBackend must be memory, postgres or mysql, got %q", cfg.CatalogBackend)
	}
	switch cfg.AssetBackend {
	case "local":
	case "minio":
		if cfg.MinioEndpoint == "" {
			return errors.New("config: minioEndpoint is required (set in config.yaml or MINIO_ENDPOINT)")
		}
		if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
			return errors.New("config: minioAccessKey and minioSecretKey are required")
		}
		if cfg.MinioBucket == "" {
			return errors.New("config: minioBucket is required (set in config.yaml or MINIO_BUCKET)")
		}
	default:
		return fmt.Errorf("config: assetBackend must be local or minio, got %q", cfg.AssetBackend)
	}
	if cfg.UploadRateLimitPerMinute < 0 {
		return errors.New("config: uploadRateLimitPerMinute must be >= 0")
	}
	if cfg.UploadRateLimitPerMinute > 0 && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required when uploadRateLimitPerMinute is set")
	}
	return nil
}
