package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	Server     struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	// LicenseAPI configures the outbound client for the remote license
	// authority, including its reliability budget.
	LicenseAPI struct {
		BaseURL        string        `mapstructure:"BASE_URL"`
		APIKey         string        `mapstructure:"API_KEY"`
		RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
		RetryAttempts  int           `mapstructure:"RETRY_ATTEMPTS"`
		RetryDelay     time.Duration `mapstructure:"RETRY_DELAY"`
		RetryBackoff   bool          `mapstructure:"RETRY_BACKOFF"`
		Breaker        struct {
			FailureThreshold uint32        `mapstructure:"FAILURE_THRESHOLD"`
			Interval         time.Duration `mapstructure:"INTERVAL"`
			RecoveryTimeout  time.Duration `mapstructure:"RECOVERY_TIMEOUT"`
		} `mapstructure:"BREAKER"`
	} `mapstructure:"LICENSE_API"`
	// Sync bounds the comprehensive fetch and the reconciliation write path.
	Sync struct {
		FetchBatchSize              int    `mapstructure:"FETCH_BATCH_SIZE"`
		ConcurrencyLimit            int    `mapstructure:"CONCURRENCY_LIMIT"`
		MaxConcurrentBatches        int    `mapstructure:"MAX_CONCURRENT_BATCHES"`
		MaxLicensesForComprehensive int    `mapstructure:"MAX_LICENSES_FOR_COMPREHENSIVE"`
		StrictValidation            bool   `mapstructure:"STRICT_VALIDATION"`
		WriteBatchSize              int    `mapstructure:"WRITE_BATCH_SIZE"`
		Cron                        string `mapstructure:"CRON"`
		PushCron                    string `mapstructure:"PUSH_CRON"`
	} `mapstructure:"SYNC"`
	Lifecycle struct {
		ExpiryThresholdDays    int    `mapstructure:"EXPIRY_THRESHOLD_DAYS"`
		DefaultGracePeriodDays int    `mapstructure:"DEFAULT_GRACE_PERIOD_DAYS"`
		DefaultProduct         string `mapstructure:"DEFAULT_PRODUCT"`
		SweepCron              string `mapstructure:"SWEEP_CRON"`
		ReminderCron           string `mapstructure:"REMINDER_CRON"`
	} `mapstructure:"LIFECYCLE"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func LoadConfig(p Params) *Config {

	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		os.Exit(1)
	}

	cfg.ApplyDefaults()

	if p.Vault != nil {
		// START - Vault
		client := p.Vault
		ctx := context.Background()

		zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
		secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
		if err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}
		zap.L().Info("Success Get Secret")

		get := func(key string) string {
			if val, ok := secret.Data.Data[key].(string); ok {
				return val
			}
			return ""
		}

		cfg.Database.User = get("postgres_user")
		cfg.Database.Password = get("postgres_password")
		cfg.Redis.Password = get("redis_password")
		cfg.LicenseAPI.APIKey = get("license_api_key")
		// END - Vault
	}

	return &cfg
}

// ApplyDefaults fills the bounds the engine cannot run without.
func (c *Config) ApplyDefaults() {
	if c.LicenseAPI.RequestTimeout <= 0 {
		c.LicenseAPI.RequestTimeout = 30 * time.Second
	}
	if c.LicenseAPI.RetryAttempts <= 0 {
		c.LicenseAPI.RetryAttempts = 3
	}
	if c.LicenseAPI.RetryDelay <= 0 {
		c.LicenseAPI.RetryDelay = time.Second
	}
	if c.LicenseAPI.Breaker.FailureThreshold == 0 {
		c.LicenseAPI.Breaker.FailureThreshold = 5
	}
	if c.LicenseAPI.Breaker.Interval <= 0 {
		c.LicenseAPI.Breaker.Interval = time.Minute
	}
	if c.LicenseAPI.Breaker.RecoveryTimeout <= 0 {
		c.LicenseAPI.Breaker.RecoveryTimeout = 30 * time.Second
	}
	if c.Sync.FetchBatchSize <= 0 {
		c.Sync.FetchBatchSize = 100
	}
	if c.Sync.ConcurrencyLimit <= 0 {
		c.Sync.ConcurrencyLimit = 5
	}
	if c.Sync.MaxConcurrentBatches <= 0 {
		c.Sync.MaxConcurrentBatches = 10
	}
	if c.Sync.ConcurrencyLimit > c.Sync.MaxConcurrentBatches {
		c.Sync.ConcurrencyLimit = c.Sync.MaxConcurrentBatches
	}
	if c.Sync.MaxLicensesForComprehensive <= 0 {
		c.Sync.MaxLicensesForComprehensive = 10000
	}
	if c.Sync.WriteBatchSize <= 0 {
		c.Sync.WriteBatchSize = 50
	}
	if c.Lifecycle.ExpiryThresholdDays <= 0 {
		c.Lifecycle.ExpiryThresholdDays = 30
	}
	if c.Lifecycle.DefaultGracePeriodDays <= 0 {
		c.Lifecycle.DefaultGracePeriodDays = 30
	}
	if c.Lifecycle.DefaultProduct == "" {
		c.Lifecycle.DefaultProduct = "licensehub"
	}
}
