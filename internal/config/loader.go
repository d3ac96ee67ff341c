package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BELLA_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BELLA_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "BELLA_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "BELLA_CHAIN_ID")
	setStr(&cfg.Chain.FactoryAddress, "BELLA_CHAIN_FACTORY_ADDRESS")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "BELLA_SUPABASE_DSN")
	setStr(&cfg.Supabase.Host, "BELLA_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "BELLA_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "BELLA_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "BELLA_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "BELLA_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "BELLA_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "BELLA_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "BELLA_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "BELLA_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "BELLA_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BELLA_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BELLA_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BELLA_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BELLA_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BELLA_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "BELLA_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BELLA_S3_REGION")
	setStr(&cfg.S3.Bucket, "BELLA_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BELLA_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BELLA_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "BELLA_S3_FORCE_PATH_STYLE")

	// ── Poll ──
	setDuration(&cfg.Poll.ChainInterval, "BELLA_POLL_CHAIN_INTERVAL")
	setDuration(&cfg.Poll.AggregateInterval, "BELLA_POLL_AGGREGATE_INTERVAL")
	setDuration(&cfg.Poll.SnapshotTTL, "BELLA_POLL_SNAPSHOT_TTL")

	// ── Settlement ──
	setBool(&cfg.Settlement.RefundsEnabled, "BELLA_SETTLEMENT_REFUNDS_ENABLED")
	setDuration(&cfg.Settlement.LockTTL, "BELLA_SETTLEMENT_LOCK_TTL")

	// ── Admin ──
	setStr(&cfg.Admin.APIKey, "BELLA_ADMIN_API_KEY")
	setStr(&cfg.Admin.PrivateKey, "BELLA_ADMIN_PRIVATE_KEY")
	setStr(&cfg.Admin.EncryptedKeyPath, "BELLA_ADMIN_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Admin.KeyPassword, "BELLA_ADMIN_KEY_PASSWORD")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "BELLA_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "BELLA_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BELLA_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "BELLA_SERVER_RATE_LIMIT")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "BELLA_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "BELLA_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "BELLA_ARCHIVE_RETENTION_DAYS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BELLA_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BELLA_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BELLA_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BELLA_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "BELLA_MODE")
	setStr(&cfg.LogLevel, "BELLA_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
