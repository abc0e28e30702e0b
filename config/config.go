package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Dispatch modes.
const (
	DispatchInline = "inline"
	DispatchQueue  = "queue"
)

// Lock backends.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Discord  DiscordConfig
	Gate     GateConfig
	Dispatch DispatchConfig
	Redis    RedisConfig
	Ops      OpsConfig
	LogLevel string
}

// DiscordConfig holds bot credentials.
type DiscordConfig struct {
	Token string
}

// GateConfig holds the verification gate's channels, roles and behaviour.
type GateConfig struct {
	VerifyChannelID    string
	VerifyChannelName  string
	WelcomeChannelID   string
	WelcomeChannelName string
	UnverifiedRoleName string
	VerifiedRoleName   string
	Emoji              string
	PromptScanDepth    int
	AllowChannelCreate bool
	CleanupReactions   bool
	GateBots           bool
	CommandPrefix      string
	WarningCooldown    time.Duration
}

// DispatchConfig controls how events reach the reconciler.
type DispatchConfig struct {
	Mode                string // inline or queue
	LockBackend         string // local or redis
	CallTimeout         time.Duration
	EventTimeout        time.Duration
	MaxConcurrentEvents int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// OpsConfig holds the ops HTTP surface settings. An empty Port disables it.
type OpsConfig struct {
	Port           string
	JWTSecret      string
	JWTExpireHours int
}

// NeedsRedis reports whether any configured component talks to Redis.
func (c *Config) NeedsRedis() bool {
	return c.Dispatch.Mode == DispatchQueue || c.Dispatch.LockBackend == LockRedis
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Discord: DiscordConfig{
			Token: getEnv("DISCORD_TOKEN", ""),
		},
		Gate: GateConfig{
			VerifyChannelID:    getEnv("VERIFY_CHANNEL_ID", ""),
			VerifyChannelName:  getEnv("VERIFY_CHANNEL_NAME", "✅ verify"),
			WelcomeChannelID:   getEnv("WELCOME_CHANNEL_ID", ""),
			WelcomeChannelName: getEnv("WELCOME_CHANNEL_NAME", "👋│𝐰𝐞𝐥𝐜𝐨𝐦𝐞"),
			UnverifiedRoleName: getEnv("UNVERIFIED_ROLE_NAME", "Unverified"),
			VerifiedRoleName:   getEnv("VERIFIED_ROLE_NAME", "Verified"),
			Emoji:              getEnv("VERIFICATION_EMOJI", "✅"),
			PromptScanDepth:    getEnvInt("PROMPT_HISTORY_SCAN_DEPTH", 5),
			AllowChannelCreate: getEnvBool("ALLOW_CHANNEL_CREATE", true),
			CleanupReactions:   getEnvBool("CLEANUP_REACTIONS", true),
			GateBots:           getEnvBool("GATE_BOTS", false),
			CommandPrefix:      getEnv("COMMAND_PREFIX", "--"),
			WarningCooldown:    getEnvSeconds("WARNING_COOLDOWN_SEC", 600),
		},
		Dispatch: DispatchConfig{
			Mode:                strings.ToLower(getEnv("DISPATCH_MODE", DispatchInline)),
			LockBackend:         strings.ToLower(getEnv("LOCK_BACKEND", LockLocal)),
			CallTimeout:         getEnvSeconds("CALL_TIMEOUT_SEC", 10),
			EventTimeout:        getEnvSeconds("EVENT_TIMEOUT_SEC", 30),
			MaxConcurrentEvents: getEnvInt("MAX_CONCURRENT_EVENTS", 64),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Ops: OpsConfig{
			Port:           os.Getenv("OPS_PORT"),
			JWTSecret:      getEnv("OPS_JWT_SECRET", "change-me-in-production"),
			JWTExpireHours: getEnvInt("OPS_JWT_EXPIRE_HOURS", 24),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	if _, set := os.LookupEnv("OPS_PORT"); !set {
		cfg.Ops.Port = "8081"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no sensible fallback. The Discord token
// is checked by the binaries that need it.
func (c *Config) Validate() error {
	var errs []error
	switch c.Dispatch.Mode {
	case DispatchInline, DispatchQueue:
	default:
		errs = append(errs, fmt.Errorf("DISPATCH_MODE must be %q or %q, got %q", DispatchInline, DispatchQueue, c.Dispatch.Mode))
	}
	switch c.Dispatch.LockBackend {
	case LockLocal, LockRedis:
	default:
		errs = append(errs, fmt.Errorf("LOCK_BACKEND must be %q or %q, got %q", LockLocal, LockRedis, c.Dispatch.LockBackend))
	}
	if c.Gate.UnverifiedRoleName == c.Gate.VerifiedRoleName {
		errs = append(errs, errors.New("UNVERIFIED_ROLE_NAME and VERIFIED_ROLE_NAME must differ"))
	}
	if c.Gate.PromptScanDepth < 1 {
		errs = append(errs, errors.New("PROMPT_HISTORY_SCAN_DEPTH must be at least 1"))
	}
	if c.Dispatch.MaxConcurrentEvents < 1 {
		errs = append(errs, errors.New("MAX_CONCURRENT_EVENTS must be at least 1"))
	}
	return errors.Join(errs...)
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
