package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/credichain/lending/internal/logger"
)

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	LogLevel string `yaml:"level"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
	// SeedPath is replayed into an empty ledger at startup. Empty disables seeding.
	SeedPath string `yaml:"seed_path"`
}

type LendingConfig struct {
	MinInterestBPS     uint32 `yaml:"min_interest_bps"`
	MaxInterestBPS     uint32 `yaml:"max_interest_bps"`
	MaxLenders         int    `yaml:"max_lenders"`
	MaxDurationSeconds int64  `yaml:"max_duration_seconds"`
	FaucetEnabled      bool   `yaml:"faucet_enabled"`
	// DisplayDecimals is the number of decimals in one whole unit.
	DisplayDecimals int32 `yaml:"display_decimals"`
}

type ReputationConfig struct {
	Interval     time.Duration `yaml:"interval"`
	InitialScore int           `yaml:"initial_score"`
	Increment    int           `yaml:"increment"`
	Decrement    int           `yaml:"decrement"`
	MinScore     int           `yaml:"min_score"`
	MaxScore     int           `yaml:"max_score"`
	// Store is "file" or "redis".
	Store    string `yaml:"store"`
	FilePath string `yaml:"file_path"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// AppConfig is the main config struct that holds all configs
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LogConfig        `yaml:"logging"`
	Database   DatabaseConfig   `yaml:"database"`
	Lending    LendingConfig    `yaml:"lending"`
	Reputation ReputationConfig `yaml:"reputation"`
	Redis      RedisConfig      `yaml:"redis"`
}

const (
	StoreFile  = "file"
	StoreRedis = "redis"
)

// Default returns the configuration used when no file is present.
func Default() *AppConfig {
	return &AppConfig{
		Server:   ServerConfig{Port: 8080, ShutdownTimeout: 10 * time.Second},
		Logging:  LogConfig{LogLevel: "info"},
		Database: DatabaseConfig{Path: "lending.db"},
		Lending: LendingConfig{
			MinInterestBPS:  1,
			MaxInterestBPS:  5000,
			MaxLenders:      32,
			DisplayDecimals: 6,
		},
		Reputation: ReputationConfig{
			Interval:     60 * time.Second,
			InitialScore: 50,
			Increment:    5,
			Decrement:    10,
			MinScore:     0,
			MaxScore:     100,
			Store:        StoreFile,
			FilePath:     "reputation.json",
		},
		Redis: RedisConfig{Addr: "localhost:6379", Key: "reputation:records"},
	}
}

func assignDefaultConfigValues(cfg *AppConfig) *AppConfig {
	// server config defaults
	cfg.Server.Port = GetEnvOrDefaultAsInt("PORT", cfg.Server.Port)
	cfg.Server.ShutdownTimeout = GetEnvOrDefaultAsDuration("SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Logging.LogLevel = GetEnvOrDefaultAsString("LOGGING_LEVEL", cfg.Logging.LogLevel)

	cfg.Database.Path = GetEnvOrDefaultAsString("DB_PATH", cfg.Database.Path)
	cfg.Database.SeedPath = GetEnvOrDefaultAsString("SEED_PATH", cfg.Database.SeedPath)

	// lending policy
	cfg.Lending.MinInterestBPS = uint32(GetEnvOrDefaultAsUint64("MIN_INTEREST_BPS", uint64(cfg.Lending.MinInterestBPS)))
	cfg.Lending.MaxInterestBPS = uint32(GetEnvOrDefaultAsUint64("MAX_INTEREST_BPS", uint64(cfg.Lending.MaxInterestBPS)))
	cfg.Lending.MaxLenders = GetEnvOrDefaultAsInt("MAX_LENDERS", cfg.Lending.MaxLenders)
	cfg.Lending.MaxDurationSeconds = int64(GetEnvOrDefaultAsInt("MAX_DURATION_SECONDS", int(cfg.Lending.MaxDurationSeconds)))
	cfg.Lending.FaucetEnabled = GetEnvOrDefaultAsBool("FAUCET_ENABLED", cfg.Lending.FaucetEnabled)
	cfg.Lending.DisplayDecimals = int32(GetEnvOrDefaultAsInt("DISPLAY_DECIMALS", int(cfg.Lending.DisplayDecimals)))

	// reputation aggregator
	cfg.Reputation.Interval = GetEnvOrDefaultAsDuration("REPUTATION_INTERVAL", cfg.Reputation.Interval)
	cfg.Reputation.InitialScore = GetEnvOrDefaultAsInt("REPUTATION_INITIAL_SCORE", cfg.Reputation.InitialScore)
	cfg.Reputation.Increment = GetEnvOrDefaultAsInt("REPUTATION_INCREMENT", cfg.Reputation.Increment)
	cfg.Reputation.Decrement = GetEnvOrDefaultAsInt("REPUTATION_DECREMENT", cfg.Reputation.Decrement)
	cfg.Reputation.MinScore = GetEnvOrDefaultAsInt("REPUTATION_MIN_SCORE", cfg.Reputation.MinScore)
	cfg.Reputation.MaxScore = GetEnvOrDefaultAsInt("REPUTATION_MAX_SCORE", cfg.Reputation.MaxScore)
	cfg.Reputation.Store = strings.ToLower(GetEnvOrDefaultAsString("REPUTATION_STORE", cfg.Reputation.Store))
	cfg.Reputation.FilePath = GetEnvOrDefaultAsString("REPUTATION_FILE", cfg.Reputation.FilePath)

	// Redis config defaults
	cfg.Redis.Addr = GetEnvOrDefaultAsString("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = GetEnvOrDefaultAsString("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = GetEnvOrDefaultAsInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.Key = GetEnvOrDefaultAsString("REDIS_KEY", cfg.Redis.Key)

	return cfg
}

// LoadFromConfigFilePath parses the YAML file over Default and applies env
// overrides. A missing file leaves the defaults in place.
func LoadFromConfigFilePath(configPath string) (*AppConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Warn("Config file not found, using defaults", slog.String("path", configPath))
	case err != nil:
		logger.Error("Failed to read config file", err, slog.String("path", configPath))
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			logger.Error("Failed to unmarshal config", err)
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	cfg = assignDefaultConfigValues(cfg)

	if err := validateConfig(cfg); err != nil {
		logger.Error("Config validation failed", err)
		return nil, err
	}

	logger.Info("Configuration loaded successfully", slog.String("path", configPath))
	return cfg, nil
}

func validateConfig(cfg *AppConfig) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if strings.TrimSpace(cfg.Database.Path) == "" {
		return errors.New("database.path is required")
	}

	lending := cfg.Lending
	if lending.MinInterestBPS < 1 || lending.MinInterestBPS > lending.MaxInterestBPS {
		return fmt.Errorf("lending interest bounds invalid: min %d, max %d",
			lending.MinInterestBPS, lending.MaxInterestBPS)
	}
	if lending.MaxInterestBPS > 10000 {
		return fmt.Errorf("lending.max_interest_bps must not exceed 10000, got %d", lending.MaxInterestBPS)
	}
	if lending.MaxLenders < 1 || lending.MaxLenders > 256 {
		return fmt.Errorf("lending.max_lenders must be between 1 and 256, got %d", lending.MaxLenders)
	}
	if lending.DisplayDecimals < 0 || lending.DisplayDecimals > 18 {
		return fmt.Errorf("lending.display_decimals must be between 0 and 18, got %d", lending.DisplayDecimals)
	}
	if lending.MaxDurationSeconds < 0 {
		return fmt.Errorf("lending.max_duration_seconds must not be negative, got %d", lending.MaxDurationSeconds)
	}

	rep := cfg.Reputation
	if rep.Interval < time.Second {
		return fmt.Errorf("reputation.interval must be at least 1s, got %v", rep.Interval)
	}
	if rep.MinScore > rep.MaxScore {
		return fmt.Errorf("reputation score bounds invalid: min %d, max %d", rep.MinScore, rep.MaxScore)
	}
	if rep.InitialScore < rep.MinScore || rep.InitialScore > rep.MaxScore {
		return fmt.Errorf("reputation.initial_score must be between %d and %d, got %d",
			rep.MinScore, rep.MaxScore, rep.InitialScore)
	}
	if rep.Increment < 0 || rep.Decrement < 0 {
		return errors.New("reputation increment and decrement must not be negative")
	}

	switch rep.Store {
	case StoreFile:
		if strings.TrimSpace(rep.FilePath) == "" {
			return errors.New("reputation.file_path is required for the file store")
		}
	case StoreRedis:
		if strings.TrimSpace(cfg.Redis.Addr) == "" || strings.TrimSpace(cfg.Redis.Key) == "" {
			return errors.New("redis.addr and redis.key are required for the redis store")
		}
	default:
		return fmt.Errorf("reputation.store must be %q or %q, got %q", StoreFile, StoreRedis, rep.Store)
	}

	return nil
}

// GetEnvOrDefaultAsInt returns the value of the given env variable
// as an int or the default value if not set or invalid.
func GetEnvOrDefaultAsInt(key string, defaultValue int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return int(value)
}

// GetEnvOrDefaultAsUint64 returns the value of the env variable
// as uint64 or the default value if not set or invalid.
func GetEnvOrDefaultAsUint64(key string, defaultValue uint64) uint64 {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func GetEnvOrDefaultAsString(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		if strings.TrimSpace(val) != "" {
			return val
		}
	}
	return defaultVal
}

// GetEnvOrDefaultAsBool accepts the strconv.ParseBool forms.
func GetEnvOrDefaultAsBool(key string, defaultVal bool) bool {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		return defaultVal
	}
	return value
}

// GetEnvOrDefaultAsDuration accepts Go duration strings ("90s") or bare
// seconds ("90").
func GetEnvOrDefaultAsDuration(key string, defaultVal time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	valueStr = strings.TrimSpace(valueStr)
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}

// LoadFromConfig loads a .env file when present, then the config file at
// CONFIG_PATH.
func LoadFromConfig() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	configPath := GetEnvOrDefaultAsString("CONFIG_PATH", "configs/config.yaml")

	cfg, err := LoadFromConfigFilePath(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	return cfg, nil
}
