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

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Media     MediaConfig
	CORS      CORSConfig
	Cache     CacheConfig
	Telemetry TelemetryConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	BodyLimitMB           int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// RealmConfig holds the signing and session parameters of one auth realm.
type RealmConfig struct {
	JWTSecret string
	// TokenTTLMinutes of zero issues tokens without an exp claim.
	TokenTTLMinutes int
	IssueCookie     bool
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	Admin          RealmConfig
	User           RealmConfig
	BcryptCost     int
	CookieName     string
	CookieSecure   bool
	RevokeOnLogout bool
	// RevocationMaxTTLMinutes bounds denylist entries for tokens without exp.
	RevocationMaxTTLMinutes int
}

// MediaConfig configures the S3 compatible media host.
type MediaConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	KeyPrefix       string
	Folder          string
	PublicBaseURL   string
	ForcePathStyle  bool
	PresignTTLMins  int
	MaxUploadSizeMB int
}

// CORSConfig lists the origins allowed to call the API.
type CORSConfig struct {
	AllowOrigins     []string
	AllowCredentials bool
}

// CacheConfig tunes the material listing cache.
type CacheConfig struct {
	Enabled        bool
	LifeWindowSecs int
	HardMaxCacheMB int
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	OTLPEndpoint string
	Insecure     bool
	SampleRatio  float64
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	sampleRatio, err := strconv.ParseFloat(getEnv("OTEL_SAMPLE_RATIO", "1"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid OTEL_SAMPLE_RATIO: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	appEnv := getEnv("APP_ENV", "development")

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "dumaterial-api"),
			Env:                   appEnv,
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("PORT", "3000"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			BodyLimitMB:           getEnvAsInt("HTTP_BODY_LIMIT_MB", 50),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			Admin: RealmConfig{
				JWTSecret:       os.Getenv("JWT_ADMIN_SECRET"),
				TokenTTLMinutes: getEnvAsInt("JWT_ADMIN_TTL_MINUTES", 7*24*60),
				IssueCookie:     getEnvAsBool("JWT_ADMIN_COOKIE", true),
			},
			User: RealmConfig{
				JWTSecret:       os.Getenv("JWT_USER_SECRET"),
				TokenTTLMinutes: getEnvAsInt("JWT_USER_TTL_MINUTES", 7*24*60),
				IssueCookie:     getEnvAsBool("JWT_USER_COOKIE", false),
			},
			BcryptCost:              getEnvAsInt("AUTH_BCRYPT_COST", 10),
			CookieName:              getEnv("AUTH_COOKIE_NAME", "jwt"),
			CookieSecure:            getEnvAsBool("AUTH_COOKIE_SECURE", appEnv == "production"),
			RevokeOnLogout:          getEnvAsBool("AUTH_REVOKE_ON_LOGOUT", false),
			RevocationMaxTTLMinutes: getEnvAsInt("AUTH_REVOCATION_MAX_TTL_MINUTES", 30*24*60),
		},
		Media: MediaConfig{
			Bucket:          os.Getenv("MEDIA_S3_BUCKET"),
			Region:          os.Getenv("MEDIA_S3_REGION"),
			Endpoint:        os.Getenv("MEDIA_S3_ENDPOINT"),
			KeyPrefix:       os.Getenv("MEDIA_S3_KEY_PREFIX"),
			Folder:          getEnv("MEDIA_FOLDER", "du_material"),
			PublicBaseURL:   strings.TrimSuffix(os.Getenv("MEDIA_PUBLIC_BASE_URL"), "/"),
			ForcePathStyle:  getEnvAsBool("MEDIA_S3_FORCE_PATH_STYLE", false),
			PresignTTLMins:  getEnvAsInt("MEDIA_PRESIGN_TTL_MINUTES", 15),
			MaxUploadSizeMB: getEnvAsInt("MEDIA_MAX_UPLOAD_MB", 25),
		},
		CORS: CORSConfig{
			AllowOrigins:     getEnvAsList("CORS_ALLOW_ORIGINS", []string{"http://localhost:5173"}),
			AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", true),
		},
		Cache: CacheConfig{
			Enabled:        getEnvAsBool("CACHE_ENABLED", true),
			LifeWindowSecs: getEnvAsInt("CACHE_LIFE_WINDOW_SECONDS", 60),
			HardMaxCacheMB: getEnvAsInt("CACHE_HARD_MAX_MB", 64),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Insecure:     getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", false),
			SampleRatio:  sampleRatio,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would merge the two trust domains.
func (c *Config) Validate() error {
	if c.Auth.Admin.JWTSecret == "" {
		return errors.New("JWT_ADMIN_SECRET is required")
	}
	if c.Auth.User.JWTSecret == "" {
		return errors.New("JWT_USER_SECRET is required")
	}
	if c.Auth.Admin.JWTSecret == c.Auth.User.JWTSecret {
		return errors.New("JWT_ADMIN_SECRET and JWT_USER_SECRET must differ")
	}
	if c.Auth.Admin.TokenTTLMinutes < 0 || c.Auth.User.TokenTTLMinutes < 0 {
		return errors.New("token TTL must not be negative")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// TokenTTL returns the realm token lifetime; zero means no expiry.
func (r RealmConfig) TokenTTL() time.Duration {
	return time.Duration(r.TokenTTLMinutes) * time.Minute
}

// PresignTTL returns the lifetime of download links.
func (m MediaConfig) PresignTTL() time.Duration {
	if m.PresignTTLMins <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(m.PresignTTLMins) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
