package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/congo-pay/order_stake/internal/escrow"
	"github.com/congo-pay/order_stake/internal/infra"
	"github.com/congo-pay/order_stake/internal/ledger"
)

const (
	defaultAppName         = "OrderStake"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultStoreBackend    = infra.BackendMemory
	defaultBoltPath        = "data/ledger.db"
	defaultBadgerPath      = "data/badger"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultEnrollRateLimit = 10
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// now supplies the ledger start time when LEDGER_START_TIME_MS is unset.
var now = time.Now

// DotEnvFiles are loaded in order before reading the environment. Variables that are
// already set are never overridden, and missing files are skipped.
var DotEnvFiles = []string{".env.local", ".env"}

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName   string
	AppEnv    string
	Port      string
	LogLevel  string
	LogFormat string

	StoreBackend string
	BoltPath     string
	BadgerPath   string
	DatabaseURL  string
	RedisURL     string

	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// Ledger only applies to a store that has never been initialized. Without
	// LEDGER_START_TIME_MS the grid starts at load time and LedgerStartSet is false.
	Ledger             ledger.Params
	LedgerStartSet     bool
	ExpiryPolicy       escrow.ExpiryPolicy
	EnrollBatchSize    int
	EnrollRateLimitMin int
}

// Load reads configuration values from .env files and the environment and populates a
// Config instance.
func Load() (Config, error) {
	if err := loadDotEnv(DotEnvFiles...); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", defaultLogFormat)),
		StoreBackend:   strings.ToLower(getEnv("STORE_BACKEND", defaultStoreBackend)),
		BoltPath:       getEnv("BOLT_PATH", defaultBoltPath),
		BadgerPath:     getEnv("BADGER_PATH", defaultBadgerPath),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}

	if cfg.Ledger, cfg.LedgerStartSet, err = ledgerParams(); err != nil {
		return Config{}, err
	}
	if cfg.ExpiryPolicy, err = escrow.ParseExpiryPolicy(os.Getenv("EXPIRY_POLICY")); err != nil {
		return Config{}, fmt.Errorf("invalid EXPIRY_POLICY: %w", err)
	}
	if cfg.EnrollBatchSize, err = intEnv("ENROLL_BATCH_SIZE", ledger.DefaultBatchSize); err != nil {
		return Config{}, err
	}
	if cfg.EnrollRateLimitMin, err = intEnv("ENROLL_RATE_LIMIT_PER_MIN", defaultEnrollRateLimit); err != nil {
		return Config{}, err
	}

	switch cfg.StoreBackend {
	case infra.BackendMemory, infra.BackendBolt, infra.BackendBadger:
	case infra.BackendPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set for the %s backend", infra.BackendPostgres)
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	return cfg, nil
}

// Storage returns the backend selection for infra.OpenStorage.
func (c Config) Storage() infra.StorageOptions {
	return infra.StorageOptions{
		Backend:     c.StoreBackend,
		BoltPath:    c.BoltPath,
		BadgerPath:  c.BadgerPath,
		DatabaseURL: c.DatabaseURL,
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func ledgerParams() (ledger.Params, bool, error) {
	start := uint64(now().UnixMilli())
	startSet := os.Getenv("LEDGER_START_TIME_MS") != ""
	var err error
	if start, err = uint64Env("LEDGER_START_TIME_MS", start); err != nil {
		return ledger.Params{}, false, err
	}
	p := escrow.DefaultParams(start)
	if p.EpochLengthMs, err = uint64Env("EPOCH_LENGTH_MS", p.EpochLengthMs); err != nil {
		return ledger.Params{}, false, err
	}
	if p.MaxEpochs, err = uint64Env("MAX_EPOCHS", p.MaxEpochs); err != nil {
		return ledger.Params{}, false, err
	}
	if p.NormalizationConstant, err = uint64Env("NORMALIZATION_CONSTANT", p.NormalizationConstant); err != nil {
		return ledger.Params{}, false, err
	}
	if p.LockDurationMs, err = uint64Env("LOCK_DURATION_MS", p.LockDurationMs); err != nil {
		return ledger.Params{}, false, err
	}
	if err := p.Validate(); err != nil {
		return ledger.Params{}, false, fmt.Errorf("invalid ledger settings: %w", err)
	}
	return p, startSet, nil
}

func loadDotEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

func durationEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func uint64Env(key string, fallback uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
