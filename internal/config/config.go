package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	App     AppConfig
	DB      DBConfig
	Storage StorageConfig
	MinIO   MinIOConfig
	JWT     JWTConfig
	Tokens  TokenConfig
	Server  ServerConfig
}

type AppConfig struct {
	Env            string
	LogLevel       string
	MetricsEnabled bool
	// BootstrapAdmin is the username of the administrator created on first
	// start. Empty disables bootstrapping.
	BootstrapAdmin string
}

// IsProduction reports whether temporary download archives should be removed
// after they are sent.
func (a AppConfig) IsProduction() bool {
	return a.Env == "prod" || a.Env == "production"
}

type DBConfig struct {
	Driver     string
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
	SSLMode    string
	SQLitePath string
}

type StorageConfig struct {
	Backend  string
	RootPath string
	TempDir  string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

type JWTConfig struct {
	Secret            string
	ExpirationMinutes int
}

type TokenConfig struct {
	RefreshLifetime time.Duration
	CreateLifetime  time.Duration
	ResetLifetime   time.Duration
	SweepInterval   time.Duration
}

type ServerConfig struct {
	Port           string
	BodyLimitMB    int
	AllowOrigins   string
	LoginRateLimit int
}

func Load() *Config {
	return &Config{
		App: AppConfig{
			Env:            getEnv("APP_ENV", "dev"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			BootstrapAdmin: getEnv("BOOTSTRAP_ADMIN", "admin"),
		},
		DB: DBConfig{
			Driver:     getEnv("DB_DRIVER", "sqlite"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "fileknight"),
			Password:   getEnv("DB_PASSWORD", "fileknight_secret"),
			Name:       getEnv("DB_NAME", "fileknight"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("SQLITE_PATH", "fileknight.db"),
		},
		Storage: StorageConfig{
			Backend:  getEnv("STORAGE_BACKEND", "filesystem"),
			RootPath: getEnv("USER_STORAGE_PATH", "./storage/users"),
			TempDir:  getEnv("TEMP_DIR", os.TempDir()),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "fileknight"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "fileknight_secret"),
			Bucket:    getEnv("MINIO_BUCKET", "fileknight"),
			Region:    getEnv("MINIO_REGION", ""),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationMinutes: getEnvAsInt("JWT_EXPIRATION_MINUTES", 15),
		},
		Tokens: TokenConfig{
			RefreshLifetime: getEnvAsDuration("REFRESH_TOKEN_LIFETIME", 30*24*time.Hour),
			CreateLifetime:  getEnvAsDuration("CREATE_TOKEN_LIFETIME", 72*time.Hour),
			ResetLifetime:   getEnvAsDuration("RESET_TOKEN_LIFETIME", 24*time.Hour),
			SweepInterval:   getEnvAsDuration("TOKEN_SWEEP_INTERVAL", 1*time.Hour),
		},
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			BodyLimitMB:    getEnvAsInt("BODY_LIMIT_MB", 512),
			AllowOrigins:   getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173"),
			LoginRateLimit: getEnvAsInt("LOGIN_RATE_LIMIT", 10),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
