package storage

import (
	"fmt"

	"github.com/spf13/viper"
)

// Backend-ы хранилища
const (
	BackendS3    = "s3"
	BackendLocal = "local"
)

type Config struct {
	Backend         string `mapstructure:"Backend"`
	AccessKeyID     string `mapstructure:"AccessKeyID"`
	SecretAccessKey string `mapstructure:"SecretAccessKey"`
	Bucket          string `mapstructure:"Bucket"`
	Endpoint        string `mapstructure:"Endpoint"`
	Region          string `mapstructure:"Region"`
	LocalDir        string `mapstructure:"LocalDir"`
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.BindEnv("Backend", "STORAGE_BACKEND")
	v.BindEnv("AccessKeyID", "STORAGE_ACCESS_KEY_ID")
	v.BindEnv("SecretAccessKey", "STORAGE_SECRET_ACCESS_KEY")
	v.BindEnv("Bucket", "STORAGE_BUCKET")
	v.BindEnv("Endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("Region", "STORAGE_REGION")
	v.BindEnv("LocalDir", "STORAGE_LOCAL_DIR")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: using only environment variables: %v\n", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal config: %w", err)
	}

	if cfg.Backend == "" {
		cfg.Backend = BackendLocal
	}
	if cfg.Backend == BackendLocal && cfg.LocalDir == "" {
		cfg.LocalDir = "/var/lib/lmsadmin/blobs"
	}

	// Проверяем, что все необходимые поля заполнены
	if cfg.Backend == BackendS3 {
		if cfg.AccessKeyID == "" {
			return nil, fmt.Errorf("AccessKeyID is required")
		}
		if cfg.SecretAccessKey == "" {
			return nil, fmt.Errorf("SecretAccessKey is required")
		}
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("Bucket is required")
		}
	}

	return &cfg, nil
}

// New создает хранилище по конфигурации
func New(cfg *Config) (Storage, error) {
	switch cfg.Backend {
	case BackendS3:
		return NewS3Storage(cfg)
	case BackendLocal:
		return NewLocalStorage(cfg.LocalDir)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
