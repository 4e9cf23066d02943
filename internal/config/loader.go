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
// built-in defaults, applies SETTLECORE_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known SETTLECORE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setInt64(&cfg.Chain.ChainID, "SETTLECORE_CHAIN_ID")
	setStr(&cfg.Chain.MatcherAddress, "SETTLECORE_CHAIN_MATCHER_ADDRESS")
	setStr(&cfg.Chain.CollateralAddress, "SETTLECORE_CHAIN_COLLATERAL_ADDRESS")

	// ── Roles ──
	setStr(&cfg.Roles.AdminAddress, "SETTLECORE_ROLES_ADMIN_ADDRESS")

	// ── Signer ──
	setStr(&cfg.Signer.PrivateKey, "SETTLECORE_SIGNER_PRIVATE_KEY")
	setStr(&cfg.Signer.EncryptedKeyPath, "SETTLECORE_SIGNER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Signer.KeyPassword, "SETTLECORE_SIGNER_KEY_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SETTLECORE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SETTLECORE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SETTLECORE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SETTLECORE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SETTLECORE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SETTLECORE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SETTLECORE_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SETTLECORE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SETTLECORE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SETTLECORE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SETTLECORE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SETTLECORE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SETTLECORE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SETTLECORE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SETTLECORE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SETTLECORE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "SETTLECORE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SETTLECORE_S3_REGION")
	setStr(&cfg.S3.Bucket, "SETTLECORE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SETTLECORE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SETTLECORE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SETTLECORE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SETTLECORE_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "SETTLECORE_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "SETTLECORE_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "SETTLECORE_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SETTLECORE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SETTLECORE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SETTLECORE_SERVER_CORS_ORIGINS")
	setKeyMap(&cfg.Server.APIKeys, "SETTLECORE_SERVER_API_KEYS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SETTLECORE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SETTLECORE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SETTLECORE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SETTLECORE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Storage, "SETTLECORE_STORAGE")
	setStr(&cfg.Mode, "SETTLECORE_MODE")
	setStr(&cfg.LogLevel, "SETTLECORE_LOG_LEVEL")
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

// setKeyMap parses "key1:value1,key2:value2" pairs, replacing the target map
// when the variable is set.
func setKeyMap(dst *map[string]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	parsed := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || k == "" {
			continue
		}
		parsed[k] = val
	}
	if len(parsed) > 0 {
		*dst = parsed
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
