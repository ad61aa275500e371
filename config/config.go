package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"gamebatch/internal/models"
)

type Config struct {
	ApiURL             string
	AccessKey          string
	SecretKey          string
	BucketName         string
	Region             string
	UploadPrefix       string
	PresignExpiryHours int

	OutputDir       string
	EmulatorDir     string
	AltEmulatorDir  string
	UnpackerPath    string
	SevenZipPath    string
	ArchivePassword string

	CompressionFormat    string
	CompressionLevel     int
	MaxConcurrentUploads int
	MaxRetries           int
	RetryDelayMS         int
	OnlineCheckTTL       int

	LogLevel string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn(".env file not found, using environment variables only")
	}

	config := &Config{
		ApiURL:             getEnv("API_URL", ""),
		AccessKey:          getEnv("ACCESS_KEY", ""),
		SecretKey:          getEnv("SECRET_KEY", ""),
		BucketName:         getEnv("BUCKET_NAME", ""),
		Region:             getEnv("REGION", ""),
		UploadPrefix:       getEnv("UPLOAD_PREFIX", "games"),
		PresignExpiryHours: getEnvAsInt("PRESIGN_EXPIRY_HOURS", 168),

		OutputDir:       getEnv("OUTPUT_DIR", "output"),
		EmulatorDir:     getEnv("EMULATOR_DIR", "emulator"),
		AltEmulatorDir:  getEnv("ALT_EMULATOR_DIR", "emulator_alt"),
		UnpackerPath:    getEnv("UNPACKER_PATH", ""),
		SevenZipPath:    getEnv("SEVENZIP_PATH", "7z"),
		ArchivePassword: getEnv("ARCHIVE_PASSWORD", ""),

		CompressionFormat:    strings.ToLower(getEnv("COMPRESSION_FORMAT", models.FormatZip)),
		CompressionLevel:     getEnvAsInt("COMPRESSION_LEVEL", 5),
		MaxConcurrentUploads: getEnvAsInt("MAX_CONCURRENT_UPLOADS", 2),
		MaxRetries:           getEnvAsInt("MAX_RETRIES", 3),
		RetryDelayMS:         getEnvAsInt("RETRY_DELAY_MS", 2000),
		OnlineCheckTTL:       getEnvAsInt("ONLINE_CHECK_TTL_SECONDS", 30),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return config, nil
}

// BatchSettings returns the batch defaults; command flags override them.
func (c *Config) BatchSettings() models.BatchSettings {
	return models.BatchSettings{
		CompressionFormat:    c.CompressionFormat,
		CompressionLevel:     c.CompressionLevel,
		UsePassword:          c.ArchivePassword != "",
		MaxConcurrentUploads: c.MaxConcurrentUploads,
		MaxRetries:           c.MaxRetries,
		RetryDelay:           time.Duration(c.RetryDelayMS) * time.Millisecond,
	}
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", valueStr, "default", defaultValue)
		return defaultValue
	}
	return value
}
