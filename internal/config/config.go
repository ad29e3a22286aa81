package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	API       APIConfig
	Shopify   ShopifyConfig
	Sync      SyncConfig
	Scheduler SchedulerConfig
	History   HistoryConfig
}

type ServerConfig struct {
	Port int
	Env  string // "development", "production"
}

type DatabaseConfig struct {
	Host    string
	Port    string
	Name    string
	User    string
	Pass    string
	Charset string
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
}

type APIConfig struct {
	Key string
}

type ShopifyConfig struct {
	Store       string
	AccessToken string
	APIVersion  string
	Timeout     time.Duration
}

type SyncConfig struct {
	PageSize   int
	Deadline   time.Duration
	MaxRetries int
	RetryBase  time.Duration
	RetryMax   time.Duration
	CostMargin float64
	VendorKey  string
}

type SchedulerConfig struct {
	MaxTriggers int
}

type HistoryConfig struct {
	Cap      int
	RedisKey string
}

// Load reads configuration from .env file and environment variables.
func Load() (*Config, error) {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "3306")
	viper.SetDefault("DB_CHARSET", "utf8mb4")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("SHOPIFY_API_VERSION", "2024-04")
	viper.SetDefault("SHOPIFY_TIMEOUT", "60s")
	viper.SetDefault("SYNC_PAGE_SIZE", 250)
	viper.SetDefault("SYNC_DEADLINE", "290s")
	viper.SetDefault("SYNC_MAX_RETRIES", 3)
	viper.SetDefault("SYNC_RETRY_BASE", "1s")
	viper.SetDefault("SYNC_RETRY_MAX", "30s")
	viper.SetDefault("SYNC_COST_MARGIN", 0)
	viper.SetDefault("SYNC_VENDOR_KEY", "custom.fornitore")
	viper.SetDefault("SCHEDULER_MAX_TRIGGERS", 3)
	viper.SetDefault("HISTORY_CAP", 10)
	viper.SetDefault("HISTORY_REDIS_KEY", "quickedit:history")

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetInt("APP_PORT"),
			Env:  viper.GetString("APP_ENV"),
		},
		Database: DatabaseConfig{
			Host:    viper.GetString("DB_HOST"),
			Port:    viper.GetString("DB_PORT"),
			Name:    viper.GetString("DB_NAME"),
			User:    viper.GetString("DB_USER"),
			Pass:    viper.GetString("DB_PASS"),
			Charset: viper.GetString("DB_CHARSET"),
		},
		Redis: RedisConfig{
			Addr: viper.GetString("REDIS_ADDR"),
			Pass: viper.GetString("REDIS_PASS"),
			DB:   viper.GetInt("REDIS_DB"),
		},
		API: APIConfig{
			Key: viper.GetString("API_KEY"),
		},
		Shopify: ShopifyConfig{
			Store:       viper.GetString("SHOPIFY_STORE"),
			AccessToken: viper.GetString("SHOPIFY_ACCESS_TOKEN"),
			APIVersion:  viper.GetString("SHOPIFY_API_VERSION"),
			Timeout:     durationOr("SHOPIFY_TIMEOUT", 60*time.Second),
		},
		Sync: SyncConfig{
			PageSize:   viper.GetInt("SYNC_PAGE_SIZE"),
			Deadline:   durationOr("SYNC_DEADLINE", 290*time.Second),
			MaxRetries: viper.GetInt("SYNC_MAX_RETRIES"),
			RetryBase:  durationOr("SYNC_RETRY_BASE", time.Second),
			RetryMax:   durationOr("SYNC_RETRY_MAX", 30*time.Second),
			CostMargin: viper.GetFloat64("SYNC_COST_MARGIN"),
			VendorKey:  viper.GetString("SYNC_VENDOR_KEY"),
		},
		Scheduler: SchedulerConfig{
			MaxTriggers: viper.GetInt("SCHEDULER_MAX_TRIGGERS"),
		},
		History: HistoryConfig{
			Cap:      viper.GetInt("HISTORY_CAP"),
			RedisKey: viper.GetString("HISTORY_REDIS_KEY"),
		},
	}

	if cfg.Shopify.Store == "" || cfg.Shopify.AccessToken == "" {
		log.Println("WARNING: SHOPIFY_STORE or SHOPIFY_ACCESS_TOKEN is not set")
	}
	if cfg.API.Key == "" {
		log.Println("WARNING: API_KEY is not set, /api routes are unprotected")
	}

	return cfg, nil
}

// durationOr parses key as a duration, falling back to def on bad input.
func durationOr(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(viper.GetString(key))
	if err != nil || d < 0 {
		return def
	}
	return d
}

// Enabled reports whether the audit database is configured.
func (d *DatabaseConfig) Enabled() bool {
	return d.Name != ""
}

// DSN returns the MySQL DSN string for GORM.
func (d *DatabaseConfig) DSN() string {
	return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + d.Port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=Local"
}
