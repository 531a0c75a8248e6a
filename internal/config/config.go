package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Storage   StorageConfig
	Retention RetentionConfig
	Metadata  MetadataConfig
	Auth      AuthConfig
	Cache     CacheConfig
	Indexer   IndexerConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port            string
	GRPCPort        string
	ScratchDir      string
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	Path     string
}

type StorageConfig struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	UsePathStyle  bool
	StagingBucket string
	SecureBucket  string
	LocalDir      string
}

type RetentionConfig struct {
	SweepInterval      time.Duration
	SweepBatchSize     int
	DefaultExpiryHours int
	MaxExpiryHours     int
}

type MetadataConfig struct {
	ExiftoolPath string
	FFprobePath  string
	FFmpegPath   string
	ToolTimeout  time.Duration
}

type AuthConfig struct {
	JWTSecret         string
	JWKSURL           string
	JWKSRefresh       time.Duration
	JWKSClientTimeout time.Duration
}

type CacheConfig struct {
	Size int
	TTL  time.Duration
}

type IndexerConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

type LogConfig struct {
	Level string
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Значения по умолчанию. Ключи совпадают с именами переменных окружения,
// поэтому .env-файл и окружение перекрывают друг друга без отдельных привязок.
var defaults = map[string]interface{}{
	"HTTP_PORT":        "2525",
	"GRPC_PORT":        "50051",
	"SCRATCH_DIR":      filepath.Join(os.TempDir(), "fidera"),
	"MAX_UPLOAD_BYTES": int64(100 << 20),
	"SHUTDOWN_TIMEOUT": 15 * time.Second,

	"DATABASE_DRIVER":   DriverPostgres,
	"DATABASE_HOST":     "",
	"DATABASE_PORT":     "5432",
	"DATABASE_USER":     "",
	"DATABASE_PASSWORD": "",
	"DATABASE_NAME":     "",
	"DATABASE_SSLMODE":  "disable",
	"DATABASE_PATH":     "fidera.db",

	"S3_ENDPOINT":       "",
	"S3_REGION":         "us-east-1",
	"S3_ACCESS_KEY":     "",
	"S3_SECRET_KEY":     "",
	"S3_USE_PATH_STYLE": true,
	"STAGING_BUCKET":    "fidera-staging",
	"SECURE_BUCKET":     "fidera-secure",
	"LOCAL_STORAGE_DIR": "data/storage",

	"SWEEP_INTERVAL":       time.Minute,
	"SWEEP_BATCH_SIZE":     500,
	"DEFAULT_EXPIRY_HOURS": 24,
	"MAX_EXPIRY_HOURS":     24 * 30,

	"EXIFTOOL_PATH": "exiftool",
	"FFPROBE_PATH":  "ffprobe",
	"FFMPEG_PATH":   "ffmpeg",
	"TOOL_TIMEOUT":  time.Minute,

	"JWT_SECRET":          "",
	"JWKS_URL":            "",
	"JWKS_REFRESH":        10 * time.Minute,
	"JWKS_CLIENT_TIMEOUT": 10 * time.Second,

	"FILE_CACHE_SIZE": 1024,
	"FILE_CACHE_TTL":  5 * time.Minute,

	"INDEXER_WEBHOOK_URL": "",
	"INDEXER_TIMEOUT":     10 * time.Second,

	"LOG_LEVEL": "info",
}

// NewConfig читает конфигурацию: окружение > файл > значения по умолчанию.
// Отсутствующий файл не ошибка, тогда используются только переменные окружения.
func NewConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var pathErr *fs.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		log.Warn().Str("path", path).Msg("config file not found, using environment variables only")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("HTTP_PORT"),
			GRPCPort:        v.GetString("GRPC_PORT"),
			ScratchDir:      v.GetString("SCRATCH_DIR"),
			MaxUploadBytes:  v.GetInt64("MAX_UPLOAD_BYTES"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		Database: DatabaseConfig{
			Driver:   v.GetString("DATABASE_DRIVER"),
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetString("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
			Path:     v.GetString("DATABASE_PATH"),
		},
		Storage: StorageConfig{
			Endpoint:      v.GetString("S3_ENDPOINT"),
			Region:        v.GetString("S3_REGION"),
			AccessKey:     v.GetString("S3_ACCESS_KEY"),
			SecretKey:     v.GetString("S3_SECRET_KEY"),
			UsePathStyle:  v.GetBool("S3_USE_PATH_STYLE"),
			StagingBucket: v.GetString("STAGING_BUCKET"),
			SecureBucket:  v.GetString("SECURE_BUCKET"),
			LocalDir:      v.GetString("LOCAL_STORAGE_DIR"),
		},
		Retention: RetentionConfig{
			SweepInterval:      v.GetDuration("SWEEP_INTERVAL"),
			SweepBatchSize:     v.GetInt("SWEEP_BATCH_SIZE"),
			DefaultExpiryHours: v.GetInt("DEFAULT_EXPIRY_HOURS"),
			MaxExpiryHours:     v.GetInt("MAX_EXPIRY_HOURS"),
		},
		Metadata: MetadataConfig{
			ExiftoolPath: v.GetString("EXIFTOOL_PATH"),
			FFprobePath:  v.GetString("FFPROBE_PATH"),
			FFmpegPath:   v.GetString("FFMPEG_PATH"),
			ToolTimeout:  v.GetDuration("TOOL_TIMEOUT"),
		},
		Auth: AuthConfig{
			JWTSecret:         v.GetString("JWT_SECRET"),
			JWKSURL:           v.GetString("JWKS_URL"),
			JWKSRefresh:       v.GetDuration("JWKS_REFRESH"),
			JWKSClientTimeout: v.GetDuration("JWKS_CLIENT_TIMEOUT"),
		},
		Cache: CacheConfig{
			Size: v.GetInt("FILE_CACHE_SIZE"),
			TTL:  v.GetDuration("FILE_CACHE_TTL"),
		},
		Indexer: IndexerConfig{
			WebhookURL: v.GetString("INDEXER_WEBHOOK_URL"),
			Timeout:    v.GetDuration("INDEXER_TIMEOUT"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет, что все необходимые поля заполнены и согласованы
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Host == "" || c.Database.User == "" || c.Database.Name == "" {
			return fmt.Errorf("database configuration is incomplete: host=%s, port=%s, user=%s, name=%s",
				c.Database.Host, c.Database.Port, c.Database.User, c.Database.Name)
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("DATABASE_PATH is required for sqlite3")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Storage.StagingBucket == "" || c.Storage.SecureBucket == "" {
		return fmt.Errorf("STAGING_BUCKET and SECURE_BUCKET are required")
	}
	if c.Storage.StagingBucket == c.Storage.SecureBucket {
		return fmt.Errorf("staging and secure buckets must differ, both are %q", c.Storage.StagingBucket)
	}

	if c.Retention.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.Retention.SweepInterval)
	}
	if c.Retention.SweepBatchSize <= 0 {
		return fmt.Errorf("SWEEP_BATCH_SIZE must be positive, got %d", c.Retention.SweepBatchSize)
	}
	if c.Retention.DefaultExpiryHours <= 0 || c.Retention.DefaultExpiryHours > c.Retention.MaxExpiryHours {
		return fmt.Errorf("DEFAULT_EXPIRY_HOURS must be in (0, %d], got %d",
			c.Retention.MaxExpiryHours, c.Retention.DefaultExpiryHours)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.Server.MaxUploadBytes)
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("FILE_CACHE_SIZE must not be negative, got %d", c.Cache.Size)
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == DriverSQLite {
		return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", c.Path)
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

// HasObjectStore сообщает, настроено ли сетевое хранилище
func (c *StorageConfig) HasObjectStore() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != ""
}
