package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPath  = ".env"
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

type Config struct {
	Env      string
	DB       DBConfig
	Server   ServerConfig
	Logger   LoggerConfig
	Dispatch DispatchConfig
	Claim    ClaimConfig
	Backup   BackupConfig
	Tracing  TracingConfig
}

type DBConfig struct {
	// DatabaseURI пустой - сервер работает на хранилище в памяти.
	DatabaseURI string
	Migrations  string
}

type ServerConfig struct {
	RunAddress      string
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	LogLevel string
}

type DispatchConfig struct {
	Workers   int
	QueueSize int
}

type ClaimConfig struct {
	LeaseDuration time.Duration
}

type BackupConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type TracingConfig struct {
	Enabled  bool
	Endpoint string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", EnvLocal)
	v.SetDefault("run_address", ":8080")
	v.SetDefault("migrations_path", "migrations")
	v.SetDefault("log_level", "info")
	v.SetDefault("shutdown_timeout", 15*time.Second)
	v.SetDefault("dispatch_workers", 4)
	v.SetDefault("dispatch_queue_size", 64)
	v.SetDefault("lease_duration", 5*time.Minute)
	v.SetDefault("backup_bucket", "fieldsync-backup")
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_exporter_otlp_endpoint", "localhost:4317")
}

// Load читает конфигурацию из окружения. Файл .env необязателен.
func Load(v *viper.Viper) *Config {
	setDefaults(v)
	v.AutomaticEnv()

	return &Config{
		Env: v.GetString("app_env"),
		DB: DBConfig{
			DatabaseURI: v.GetString("database_uri"),
			Migrations:  v.GetString("migrations_path"),
		},
		Server: ServerConfig{
			RunAddress:      v.GetString("run_address"),
			ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		},
		Logger: LoggerConfig{LogLevel: v.GetString("log_level")},
		Dispatch: DispatchConfig{
			Workers:   v.GetInt("dispatch_workers"),
			QueueSize: v.GetInt("dispatch_queue_size"),
		},
		Claim: ClaimConfig{LeaseDuration: v.GetDuration("lease_duration")},
		Backup: BackupConfig{
			Endpoint:  v.GetString("backup_endpoint"),
			Bucket:    v.GetString("backup_bucket"),
			AccessKey: v.GetString("backup_access_key"),
			SecretKey: v.GetString("backup_secret_key"),
			UseSSL:    v.GetBool("backup_use_ssl"),
		},
		Tracing: TracingConfig{
			Enabled:  v.GetBool("otel_enabled"),
			Endpoint: v.GetString("otel_exporter_otlp_endpoint"),
		},
	}
}

func MustLoad() *Config {
	if err := godotenv.Load(envPath); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	return Load(viper.New())
}
