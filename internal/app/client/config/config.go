package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultServerAddress = "localhost:8080"
	defaultLogLevel      = "info"
	defaultEnv           = "local"
	defaultConfigDir     = ".fieldsync"
)

type Config struct {
	Env           string
	ServerAddress string
	LogLevel      string
	ConfigDir     string
	TokenPath     string
	DataPath      string
	ActorID       string
	SyncInterval  time.Duration
	ProbeInterval time.Duration
	SyncTimeout   time.Duration
	BatchSize     int
	MaxAttempts   int
	Retention     time.Duration
	EnableTLS     bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", defaultEnv)
	v.SetDefault("SERVER_ADDRESS", defaultServerAddress)
	v.SetDefault("LOG_LEVEL", defaultLogLevel)
	v.SetDefault("CONFIG_DIR", defaultConfigDir)
	v.SetDefault("SYNC_INTERVAL_SECONDS", 60)
	v.SetDefault("PROBE_INTERVAL_SECONDS", 15)
	v.SetDefault("SYNC_TIMEOUT_SECONDS", 30)
	v.SetDefault("BATCH_SIZE", 50)
	v.SetDefault("MAX_ATTEMPTS", 5)
	v.SetDefault("RETENTION_HOURS", 72)
	v.SetDefault("ENABLE_TLS", false)
}

// Load читает конфигурацию из окружения и, если задан, из файла configFile.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("чтение файла конфигурации: %w", err)
		}
	}

	// Получаем домашнюю директорию пользователя
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	configDir := v.GetString("CONFIG_DIR")
	if configDir == defaultConfigDir {
		configDir = filepath.Join(homeDir, configDir)
	}

	tokenPath := v.GetString("TOKEN_PATH")
	if tokenPath == "" {
		tokenPath = filepath.Join(configDir, "token")
	}
	dataPath := v.GetString("DATA_PATH")
	if dataPath == "" {
		dataPath = filepath.Join(configDir, "queue.db")
	}

	cfg := &Config{
		Env:           v.GetString("APP_ENV"),
		ServerAddress: v.GetString("SERVER_ADDRESS"),
		LogLevel:      v.GetString("LOG_LEVEL"),
		ConfigDir:     configDir,
		TokenPath:     tokenPath,
		DataPath:      dataPath,
		ActorID:       v.GetString("ACTOR_ID"),
		SyncInterval:  time.Duration(v.GetInt("SYNC_INTERVAL_SECONDS")) * time.Second,
		ProbeInterval: time.Duration(v.GetInt("PROBE_INTERVAL_SECONDS")) * time.Second,
		SyncTimeout:   time.Duration(v.GetInt("SYNC_TIMEOUT_SECONDS")) * time.Second,
		BatchSize:     v.GetInt("BATCH_SIZE"),
		MaxAttempts:   v.GetInt("MAX_ATTEMPTS"),
		Retention:     time.Duration(v.GetInt("RETENTION_HOURS")) * time.Hour,
		EnableTLS:     v.GetBool("ENABLE_TLS"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad загружает конфигурацию клиента
func MustLoad(configFile string) *Config {
	// Определяем путь к .env файлу (относительно места запуска)
	envPath := ".env"
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		envPath = "../.env"
	}
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			fmt.Printf("Ошибка загрузки .env файла: %v\n", err)
		}
	}

	cfg, err := Load(viper.New(), configFile)
	if err != nil {
		panic(fmt.Sprintf("Ошибка конфигурации: %v", err))
	}

	// Создаем директории если их нет
	if err := os.MkdirAll(cfg.ConfigDir, 0o700); err != nil {
		fmt.Printf("Ошибка создания директории конфигурации: %v\n", err)
	}
	return cfg
}

func (c *Config) validate() error {
	if c.ServerAddress == "" {
		return fmt.Errorf("server_address не может быть пустым")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size должен быть больше нуля")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts должен быть больше нуля")
	}
	if c.SyncTimeout <= 0 || c.SyncInterval <= 0 || c.ProbeInterval <= 0 {
		return fmt.Errorf("интервалы синхронизации должны быть положительными")
	}
	return nil
}

// IsLocal проверяет, local ли окружение
func (c *Config) IsLocal() bool {
	return c.Env == "local" || c.Env == ""
}
