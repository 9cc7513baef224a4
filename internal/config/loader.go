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
// built-in defaults, applies WAGERPOOL_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known WAGERPOOL_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Owner ──
	setStr(&cfg.Owner.Address, "WAGERPOOL_OWNER_ADDRESS")
	setStr(&cfg.Owner.PrivateKey, "WAGERPOOL_OWNER_PRIVATE_KEY")
	setStr(&cfg.Owner.EncryptedKeyPath, "WAGERPOOL_OWNER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Owner.KeyPassword, "WAGERPOOL_OWNER_KEY_PASSWORD")

	// ── Engine ──
	setInt(&cfg.Engine.FeeBps, "WAGERPOOL_ENGINE_FEE_BPS")
	setStr(&cfg.Engine.MinBet, "WAGERPOOL_ENGINE_MIN_BET")
	setStr(&cfg.Engine.MaxBet, "WAGERPOOL_ENGINE_MAX_BET")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "WAGERPOOL_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "WAGERPOOL_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "WAGERPOOL_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "WAGERPOOL_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "WAGERPOOL_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "WAGERPOOL_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "WAGERPOOL_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "WAGERPOOL_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "WAGERPOOL_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "WAGERPOOL_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "WAGERPOOL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "WAGERPOOL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "WAGERPOOL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "WAGERPOOL_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "WAGERPOOL_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "WAGERPOOL_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "WAGERPOOL_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "WAGERPOOL_S3_REGION")
	setStr(&cfg.S3.Bucket, "WAGERPOOL_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "WAGERPOOL_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "WAGERPOOL_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "WAGERPOOL_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "WAGERPOOL_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "WAGERPOOL_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Prefix, "WAGERPOOL_ARCHIVE_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "WAGERPOOL_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "WAGERPOOL_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "WAGERPOOL_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "WAGERPOOL_SERVER_API_KEY")
	setStr(&cfg.Server.AdminKey, "WAGERPOOL_SERVER_ADMIN_KEY")
	setInt(&cfg.Server.RateLimitPerMin, "WAGERPOOL_SERVER_RATE_LIMIT_PER_MIN")
	setDuration(&cfg.Server.ReadTimeout, "WAGERPOOL_SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "WAGERPOOL_SERVER_WRITE_TIMEOUT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "WAGERPOOL_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "WAGERPOOL_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "WAGERPOOL_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "WAGERPOOL_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "WAGERPOOL_MODE")
	setStr(&cfg.LogLevel, "WAGERPOOL_LOG_LEVEL")
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
