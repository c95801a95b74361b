package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Media drivers.
const (
	MediaFS = "fs"
	MediaS3 = "s3"
)

type Config struct {
	AppName  string `yaml:"app_name"`
	Env      string `yaml:"env"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	Debug    bool   `yaml:"debug"`

	StoreDriver   string `yaml:"store_driver"`
	DatabaseURL   string `yaml:"database_url"`
	SQLitePath    string `yaml:"sqlite_path"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_db"`
	RedisAddr     string `yaml:"redis_addr"`

	JWTSecret          string   `yaml:"-"`
	AccessTokenMinutes int      `yaml:"access_token_minutes"`
	EncryptKey         string   `yaml:"-"`
	LegacyEncryptKeys  []string `yaml:"-"`

	MediaDriver string `yaml:"media_driver"`
	UploadDir   string `yaml:"upload_dir"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3PublicURL string `yaml:"s3_public_url"`
	S3AccessKey string `yaml:"-"`
	S3SecretKey string `yaml:"-"`

	CORSOrigins                []string `yaml:"cors_origins"`
	MaxMessagesPerConversation int      `yaml:"max_messages_per_conversation"`
	OutboxSweepCron            string   `yaml:"outbox_sweep_cron"`
	WSEventsPerSecond          float64  `yaml:"ws_events_per_second"`
	WSEventBurst               int      `yaml:"ws_event_burst"`
}

// Load reads .env (if present), then the optional YAML file named by
// CONFIG_FILE, then environment variables. Later sources win.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.AppName = getEnv("APP_NAME", orDefault(cfg.AppName, "groupchat"))
	cfg.Env = getEnv("APP_ENV", orDefault(cfg.Env, "development"))
	cfg.Host = getEnv("HTTP_HOST", orDefault(cfg.Host, "0.0.0.0"))
	cfg.Port = getEnvAsInt("HTTP_PORT", orDefaultInt(cfg.Port, 8000))
	cfg.LogLevel = getEnv("LOG_LEVEL", orDefault(cfg.LogLevel, "info"))
	cfg.Debug = getEnvAsBool("DEBUG", cfg.Debug)

	cfg.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", orDefault(cfg.StoreDriver, DriverPostgres)))
	cfg.DatabaseURL = getEnv("DATABASE_URL", orDefault(cfg.DatabaseURL, postgresURL()))
	cfg.SQLitePath = getEnv("SQLITE_PATH", orDefault(cfg.SQLitePath, "groupchat.db"))
	cfg.MongoURI = getEnv("MONGO_URI", orDefault(cfg.MongoURI, "mongodb://localhost:27017"))
	cfg.MongoDatabase = getEnv("MONGO_DB", orDefault(cfg.MongoDatabase, "groupchat"))
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.AccessTokenMinutes = getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", orDefaultInt(cfg.AccessTokenMinutes, 60*24))
	cfg.EncryptKey = os.Getenv("ENCRYPTION_KEY")
	cfg.LegacyEncryptKeys = splitList(os.Getenv("LEGACY_ENCRYPTION_KEYS"))

	cfg.MediaDriver = strings.ToLower(getEnv("MEDIA_DRIVER", orDefault(cfg.MediaDriver, MediaFS)))
	cfg.UploadDir = getEnv("UPLOAD_DIR", orDefault(cfg.UploadDir, "uploads"))
	cfg.S3Bucket = getEnv("S3_BUCKET", cfg.S3Bucket)
	cfg.S3Region = getEnv("S3_REGION", orDefault(cfg.S3Region, "us-east-1"))
	cfg.S3Endpoint = getEnv("S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3PublicURL = getEnv("S3_PUBLIC_URL", cfg.S3PublicURL)
	cfg.S3AccessKey = os.Getenv("S3_ACCESS_KEY_ID")
	cfg.S3SecretKey = os.Getenv("S3_SECRET_ACCESS_KEY")

	if cors := splitList(os.Getenv("CORS_ORIGINS")); len(cors) > 0 {
		cfg.CORSOrigins = cors
	} else if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	cfg.MaxMessagesPerConversation = getEnvAsInt("MAX_MESSAGES_PER_CONVERSATION", orDefaultInt(cfg.MaxMessagesPerConversation, 1000))
	cfg.OutboxSweepCron = getEnv("OUTBOX_SWEEP_CRON", orDefault(cfg.OutboxSweepCron, "* * * * *"))
	cfg.WSEventsPerSecond = getEnvAsFloat("WS_EVENTS_PER_SECOND", orDefaultFloat(cfg.WSEventsPerSecond, 20))
	cfg.WSEventBurst = getEnvAsInt("WS_EVENT_BURST", orDefaultInt(cfg.WSEventBurst, 40))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.EncryptKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	switch c.StoreDriver {
	case DriverPostgres, DriverSQLite, DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.MediaDriver {
	case MediaFS:
		if err := os.MkdirAll(c.UploadDir, 0o755); err != nil {
			return fmt.Errorf("creating upload dir: %w", err)
		}
	case MediaS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when MEDIA_DRIVER=s3")
		}
	default:
		return fmt.Errorf("unknown MEDIA_DRIVER %q", c.MediaDriver)
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction reports whether internal error detail must be withheld.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func postgresURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnv("POSTGRES_USER", "postgres"), getEnv("POSTGRES_PASSWORD", "postgres")),
		Host:     fmt.Sprintf("%s:%s", getEnv("POSTGRES_HOST", "localhost"), getEnv("POSTGRES_PORT", "5432")),
		Path:     getEnv("POSTGRES_DB", "groupchat"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orDefaultInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func orDefaultFloat(v, def float64) float64 {
	if v != 0 {
		return v
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
